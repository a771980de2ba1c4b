package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kbirk/abind/pkg/contract"
	"github.com/kbirk/abind/pkg/message"
)

type eventHandler struct {
	id contract.HandlerID
	fn func(json.RawMessage)
}

// Proxy forwards member access on one remote object. It is only valid
// until the next synchronization of the sender that created it.
type Proxy struct {
	sender   *Sender
	objectID string
	contract *contract.Contract

	mu       *sync.Mutex
	handlers map[string][]eventHandler
	nextID   contract.HandlerID
	cleanups []func()
	disposed bool
}

func newProxy(s *Sender, objectID string, c *contract.Contract) *Proxy {
	return &Proxy{
		sender:   s,
		objectID: objectID,
		contract: c,
		mu:       &sync.Mutex{},
		handlers: make(map[string][]eventHandler),
	}
}

func (p *Proxy) ObjectID() string {
	return p.objectID
}

func (p *Proxy) Contract() *contract.Contract {
	return p.contract
}

func (p *Proxy) IsDisposed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disposed
}

// Dispose detaches every local handler. Remote subscriptions are left to
// the recipient.
func (p *Proxy) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	p.handlers = make(map[string][]eventHandler)
	cleanups := p.cleanups
	p.cleanups = nil
	p.mu.Unlock()

	for _, fn := range cleanups {
		fn()
	}
}

// Subscribe asks the recipient to notify this sender about eventID.
func (p *Proxy) Subscribe(ctx context.Context, eventID string) error {
	if _, ok := p.contract.Event(eventID); !ok {
		return p.unknownMember("event", eventID)
	}
	resp, err := p.roundTrip(ctx, &message.SubscribeRequest{ObjectID: p.objectID, EventID: eventID})
	if err != nil {
		return err
	}
	sub, ok := resp.(*message.SubscribeResponse)
	if !ok {
		return p.unexpectedKind(message.ResponseSubscribe, resp)
	}
	return p.checkEcho(sub.ObjectID, sub.EventID, eventID)
}

func (p *Proxy) Unsubscribe(ctx context.Context, eventID string) error {
	if _, ok := p.contract.Event(eventID); !ok {
		return p.unknownMember("event", eventID)
	}
	resp, err := p.roundTrip(ctx, &message.UnsubscribeRequest{ObjectID: p.objectID, EventID: eventID})
	if err != nil {
		return err
	}
	unsub, ok := resp.(*message.UnsubscribeResponse)
	if !ok {
		return p.unexpectedKind(message.ResponseUnsubscribe, resp)
	}
	return p.checkEcho(unsub.ObjectID, unsub.EventID, eventID)
}

// AddHandler subscribes to eventID and records fn for its notifications.
func (p *Proxy) AddHandler(ctx context.Context, eventID string, fn func(args json.RawMessage)) (contract.HandlerID, error) {
	if fn == nil {
		return 0, contract.ErrNilHandler
	}
	if err := p.Subscribe(ctx, eventID); err != nil {
		return 0, err
	}
	return p.attach(eventID, fn), nil
}

// RemoveHandler unsubscribes from eventID and forgets the handler. When the
// unsubscribe fails the handler stays attached and the call may be retried.
func (p *Proxy) RemoveHandler(ctx context.Context, eventID string, id contract.HandlerID) error {
	if !p.hasHandler(eventID, id) {
		return contract.ErrUnknownHandler
	}
	if err := p.Unsubscribe(ctx, eventID); err != nil {
		return err
	}
	p.detach(eventID, id)
	return nil
}

func (p *Proxy) GetValue(ctx context.Context, propertyID string, out any) error {
	if _, ok := p.contract.Property(propertyID); !ok {
		return p.unknownMember("property", propertyID)
	}
	resp, err := p.roundTrip(ctx, &message.PropertyGetRequest{ObjectID: p.objectID, PropertyID: propertyID})
	if err != nil {
		return err
	}
	get, ok := resp.(*message.PropertyGetResponse)
	if !ok {
		return p.unexpectedKind(message.ResponsePropertyGet, resp)
	}
	if err := p.checkEcho(get.ObjectID, get.PropertyID, propertyID); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := p.sender.codec.Decode(get.Value, out); err != nil {
		return fmt.Errorf("%w: value of %s on %s: %v", ErrInvalidResponse, propertyID, p.objectID, err)
	}
	return nil
}

func (p *Proxy) SetValue(ctx context.Context, propertyID string, value any) error {
	decl, ok := p.contract.Property(propertyID)
	if !ok {
		return p.unknownMember("property", propertyID)
	}
	if !decl.CanWrite() {
		return fmt.Errorf("property %s on %s is read-only", propertyID, p.objectID)
	}
	raw, err := p.sender.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("encoding %s on %s: %w", propertyID, p.objectID, err)
	}
	resp, err := p.roundTrip(ctx, &message.PropertySetRequest{ObjectID: p.objectID, PropertyID: propertyID, Value: raw})
	if err != nil {
		return err
	}
	set, ok := resp.(*message.PropertySetResponse)
	if !ok {
		return p.unexpectedKind(message.ResponsePropertySet, resp)
	}
	return p.checkEcho(set.ObjectID, set.PropertyID, propertyID)
}

// Invoke calls the method named by methodID, either a bare name or a full
// method id, and decodes its result into out when out is non-nil.
func (p *Proxy) Invoke(ctx context.Context, methodID string, out any, args ...any) error {
	decl, ok := p.contract.Method(methodID)
	if !ok {
		return p.unknownMember("method", methodID)
	}
	if !decl.AcceptsArgs(len(args)) {
		return fmt.Errorf("method %s on %s called with %d arguments", decl.ID, p.objectID, len(args))
	}

	rawArgs := make([]json.RawMessage, len(args))
	for i, arg := range args {
		raw, err := p.sender.codec.Encode(arg)
		if err != nil {
			return fmt.Errorf("encoding argument %d of %s on %s: %w", i, decl.ID, p.objectID, err)
		}
		rawArgs[i] = raw
	}

	resp, err := p.roundTrip(ctx, &message.InvokeRequest{ObjectID: p.objectID, MethodID: decl.ID, MethodArgs: rawArgs})
	if err != nil {
		return err
	}
	invoke, ok := resp.(*message.InvokeResponse)
	if !ok {
		return p.unexpectedKind(message.ResponseInvoke, resp)
	}
	if err := p.checkEcho(invoke.ObjectID, invoke.MethodID, decl.ID); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := p.sender.codec.Decode(invoke.Result, out); err != nil {
		return fmt.Errorf("%w: result of %s on %s: %v", ErrInvalidResponse, decl.ID, p.objectID, err)
	}
	return nil
}

// OnEventNotification runs the local handlers of the notified event in the
// order they were added.
func (p *Proxy) OnEventNotification(n *message.EventNotification) {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	handlers := append([]eventHandler(nil), p.handlers[n.EventID]...)
	p.mu.Unlock()

	for _, h := range handlers {
		h.fn(n.EventArgs)
	}
}

func (p *Proxy) attach(eventID string, fn func(json.RawMessage)) contract.HandlerID {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	p.handlers[eventID] = append(p.handlers[eventID], eventHandler{id: p.nextID, fn: fn})
	return p.nextID
}

func (p *Proxy) hasHandler(eventID string, id contract.HandlerID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range p.handlers[eventID] {
		if h.id == id {
			return true
		}
	}
	return false
}

func (p *Proxy) detach(eventID string, id contract.HandlerID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	handlers := p.handlers[eventID]
	for i, h := range handlers {
		if h.id == id {
			p.handlers[eventID] = append(handlers[:i:i], handlers[i+1:]...)
			return true
		}
	}
	return false
}

func (p *Proxy) onDispose(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cleanups = append(p.cleanups, fn)
}

func (p *Proxy) roundTrip(ctx context.Context, req message.Request) (message.Response, error) {
	if p.IsDisposed() {
		return nil, fmt.Errorf("%w: %s", ErrProxyDisposed, p.objectID)
	}
	resp, err := p.sender.roundTrip(ctx, req)
	if err != nil {
		return nil, err
	}
	if exc, ok := resp.(*message.ExceptionResponse); ok {
		return nil, exc.Exception
	}
	return resp, nil
}

func (p *Proxy) checkEcho(objectID string, memberID string, expectedMemberID string) error {
	if objectID != p.objectID {
		return fmt.Errorf("%w: expected object %s, got %s", ErrInvalidResponse, p.objectID, objectID)
	}
	if memberID != expectedMemberID {
		return fmt.Errorf("%w: expected member %s on %s, got %s", ErrInvalidResponse, expectedMemberID, p.objectID, memberID)
	}
	return nil
}

func (p *Proxy) unexpectedKind(expected message.ResponseType, resp message.Response) error {
	return fmt.Errorf("%w: expected %s response for %s, got %s", ErrInvalidResponse, expected, p.objectID, resp.Kind())
}

func (p *Proxy) unknownMember(kind string, id string) error {
	return fmt.Errorf("%w: %s %s on %s (%s)", ErrUnknownMember, kind, id, p.objectID, p.contract.Name())
}
