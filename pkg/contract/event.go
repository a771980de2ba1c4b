package contract

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

var (
	ErrNilHandler     = errors.New("event handler is nil")
	ErrUnknownHandler = errors.New("event handler is not attached")
)

type HandlerID uint64

// EventHooks run before a handler is attached and after it is detached.
// A failing OnAdd leaves the event unchanged.
type EventHooks struct {
	OnAdd    func() error
	OnRemove func() error
}

// EventSource is the type-erased view of an Event.
type EventSource interface {
	ArgsType() reflect.Type
	AddAny(fn func(args any)) HandlerID
	RemoveHandler(id HandlerID) bool
	RaiseAny(args any) error
	HandlerCount() int
}

type eventHandler[A any] struct {
	id HandlerID
	fn func(A)
}

// Event is a multicast event carrying args of type A. The zero value is
// ready to use.
type Event[A any] struct {
	mu       sync.Mutex
	handlers []eventHandler[A]
	nextID   HandlerID
	hooks    EventHooks
}

func NewEvent[A any]() *Event[A] {
	return &Event[A]{}
}

func (e *Event[A]) SetHooks(hooks EventHooks) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks = hooks
}

func (e *Event[A]) Add(fn func(A)) (HandlerID, error) {
	if fn == nil {
		return 0, ErrNilHandler
	}
	e.mu.Lock()
	onAdd := e.hooks.OnAdd
	e.mu.Unlock()

	if onAdd != nil {
		if err := onAdd(); err != nil {
			return 0, err
		}
	}
	return e.add(fn), nil
}

func (e *Event[A]) Remove(id HandlerID) error {
	if !e.remove(id) {
		return ErrUnknownHandler
	}
	e.mu.Lock()
	onRemove := e.hooks.OnRemove
	e.mu.Unlock()

	if onRemove != nil {
		return onRemove()
	}
	return nil
}

// Raise invokes every attached handler in attach order. Handlers run outside
// the event lock and may add or remove handlers.
func (e *Event[A]) Raise(args A) {
	e.mu.Lock()
	handlers := make([]eventHandler[A], len(e.handlers))
	copy(handlers, e.handlers)
	e.mu.Unlock()

	for _, h := range handlers {
		h.fn(args)
	}
}

// Clear detaches every handler and hook without running OnRemove.
func (e *Event[A]) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = nil
	e.hooks = EventHooks{}
}

func (e *Event[A]) HandlerCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.handlers)
}

func (e *Event[A]) ArgsType() reflect.Type {
	return reflect.TypeOf((*A)(nil)).Elem()
}

// AddAny attaches fn without running hooks.
func (e *Event[A]) AddAny(fn func(args any)) HandlerID {
	return e.add(func(a A) {
		fn(a)
	})
}

func (e *Event[A]) RemoveHandler(id HandlerID) bool {
	return e.remove(id)
}

func (e *Event[A]) RaiseAny(args any) error {
	var a A
	if args != nil {
		var ok bool
		a, ok = args.(A)
		if !ok {
			return fmt.Errorf("event expects %v, got %T", e.ArgsType(), args)
		}
	}
	e.Raise(a)
	return nil
}

func (e *Event[A]) add(fn func(A)) HandlerID {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	e.handlers = append(e.handlers, eventHandler[A]{id: e.nextID, fn: fn})
	return e.nextID
}

func (e *Event[A]) remove(id HandlerID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, h := range e.handlers {
		if h.id == id {
			e.handlers = append(e.handlers[:i:i], e.handlers[i+1:]...)
			return true
		}
	}
	return false
}

// Empty is the argument type of events that carry no data.
type Empty struct{}
