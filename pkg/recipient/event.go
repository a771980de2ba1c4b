package recipient

import (
	"fmt"
	"sync"

	"github.com/kbirk/abind/pkg/contract"
	"github.com/kbirk/abind/pkg/message"
)

type subscriber struct {
	callback Callback
	count    int
}

// registeredEvent fans one event source out to its subscribers. The source
// handler is attached iff there is at least one subscriber.
type registeredEvent struct {
	objectID  string
	eventID   string
	source    contract.EventSource
	recipient *Recipient

	mu          *sync.Mutex
	subscribers []*subscriber
	handlerID   contract.HandlerID
	attached    bool
}

func newRegisteredEvent(r *Recipient, objectID string, eventID string, source contract.EventSource) *registeredEvent {
	return &registeredEvent{
		objectID:  objectID,
		eventID:   eventID,
		source:    source,
		recipient: r,
		mu:        &sync.Mutex{},
	}
}

func (e *registeredEvent) subscribe(cb Callback) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, s := range e.subscribers {
		if s.callback == cb {
			s.count++
			return nil
		}
	}

	if !e.attached {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("attaching to event source panicked: %v", r)
			}
		}()
		e.handlerID = e.source.AddAny(e.raise)
		e.attached = true
	}
	e.subscribers = append(e.subscribers, &subscriber{callback: cb, count: 1})
	return nil
}

// unsubscribe releases one subscription held by cb.
func (e *registeredEvent) unsubscribe(cb Callback) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, s := range e.subscribers {
		if s.callback != cb {
			continue
		}
		s.count--
		if s.count == 0 {
			e.subscribers = append(e.subscribers[:i:i], e.subscribers[i+1:]...)
			e.detachIfIdleUnsafe()
		}
		return true
	}
	return false
}

// drop removes cb regardless of how many times it subscribed.
func (e *registeredEvent) drop(cb Callback) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, s := range e.subscribers {
		if s.callback == cb {
			e.subscribers = append(e.subscribers[:i:i], e.subscribers[i+1:]...)
			e.detachIfIdleUnsafe()
			return
		}
	}
}

func (e *registeredEvent) close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.subscribers = nil
	e.detachIfIdleUnsafe()
}

func (e *registeredEvent) subscriberCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subscribers)
}

func (e *registeredEvent) detachIfIdleUnsafe() {
	if len(e.subscribers) > 0 || !e.attached {
		return
	}
	e.source.RemoveHandler(e.handlerID)
	e.attached = false
}

func (e *registeredEvent) raise(args any) {
	payload, err := e.recipient.codec.Encode(args)
	if err != nil {
		e.recipient.logError(fmt.Sprintf("Failed to encode args of %s on %s: %s", e.eventID, e.objectID, err.Error()))
		return
	}

	e.mu.Lock()
	callbacks := make([]Callback, 0, len(e.subscribers))
	for _, s := range e.subscribers {
		callbacks = append(callbacks, s.callback)
	}
	e.mu.Unlock()

	for _, cb := range callbacks {
		cb.Callback(message.NewEventNotification(e.objectID, e.eventID, payload))
	}
}
