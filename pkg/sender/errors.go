package sender

import (
	"errors"
	"strings"
)

var (
	ErrInvalidResponse   = errors.New("invalid response")
	ErrProxyDisposed     = errors.New("proxy is disposed")
	ErrAlreadyRegistered = errors.New("contract already registered")
	ErrAmbiguousContract = errors.New("contract is indistinguishable from a registered contract")
	ErrUnknownMember     = errors.New("unknown member")
	ErrSenderClosed      = errors.New("sender is closed")
)

// UnmatchedBindingsError lists every remote binding that no registered
// contract matched during one synchronization.
type UnmatchedBindingsError struct {
	ObjectIDs []string
	Errors    []error
}

func (e *UnmatchedBindingsError) Error() string {
	return "no registered contract matches bindings: " + strings.Join(e.ObjectIDs, ", ")
}

func (e *UnmatchedBindingsError) Unwrap() []error {
	return e.Errors
}
