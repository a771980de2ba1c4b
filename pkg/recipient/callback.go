package recipient

import (
	"github.com/kbirk/abind/pkg/message"
)

// Callback receives the notifications of every event it subscribed to.
// Implementations must be comparable; subscriptions are keyed by the
// callback value.
type Callback interface {
	Callback(n *message.EventNotification)
}

type funcCallback struct {
	fn func(*message.EventNotification)
}

func (c *funcCallback) Callback(n *message.EventNotification) {
	c.fn(n)
}

// NewCallback returns a distinct Callback delivering to fn.
func NewCallback(fn func(*message.EventNotification)) Callback {
	return &funcCallback{fn: fn}
}
