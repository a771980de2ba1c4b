package message

import (
	"errors"
	"fmt"
)

var (
	ErrMalformed               = errors.New("malformed message")
	ErrUnsupportedRequestType  = errors.New("unsupported request type")
	ErrUnsupportedResponseType = errors.New("unsupported response type")
	ErrRequestDeserialize      = errors.New("request failed to deserialize")
	ErrResponseDeserialize     = errors.New("response failed to deserialize")
	ErrInvalidNotification     = errors.New("invalid notification")
)

// BindingError is a failure to resolve or access a member of a bound object.
// It travels inside ExceptionResponse; Cause is local only.
type BindingError struct {
	ObjectID string `json:"objectId,omitempty"`
	MemberID string `json:"memberId,omitempty"`
	Message  string `json:"message"`
	Cause    error  `json:"-"`
}

func NewBindingError(objectID string, memberID string, cause error, format string, args ...interface{}) *BindingError {
	msg := fmt.Sprintf(format, args...)
	if cause != nil {
		msg += ": " + cause.Error()
	}
	return &BindingError{
		ObjectID: objectID,
		MemberID: memberID,
		Message:  msg,
		Cause:    cause,
	}
}

func (e *BindingError) Error() string {
	return e.Message
}

func (e *BindingError) Unwrap() error {
	return e.Cause
}

// AsBindingError returns err as a BindingError, wrapping it when needed.
func AsBindingError(err error) *BindingError {
	if err == nil {
		return nil
	}
	var be *BindingError
	if errors.As(err, &be) {
		return be
	}
	return &BindingError{
		Message: err.Error(),
		Cause:   err,
	}
}
