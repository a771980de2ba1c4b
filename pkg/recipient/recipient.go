package recipient

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/kbirk/abind/pkg/contract"
	"github.com/kbirk/abind/pkg/log"
	"github.com/kbirk/abind/pkg/message"
)

var (
	ErrInvalidObjectID   = errors.New("invalid object id")
	ErrNilTarget         = errors.New("target is nil")
	ErrAlreadyRegistered = errors.New("object id already registered")
	ErrContractMismatch  = errors.New("target does not satisfy contract")
	ErrRecipientClosed   = errors.New("recipient is closed")
	errCallbackRequired  = errors.New("subscription requires a callback")
)

type Config struct {
	Codec  message.Codec
	Logger log.Logger
}

// Recipient hosts registered objects and answers requests addressed to
// their members.
type Recipient struct {
	codec   message.Codec
	logger  log.Logger
	mu      *sync.RWMutex
	objects map[string]*registeredObject
	order   []string
	closed  bool
}

func New(conf Config) *Recipient {
	codec := conf.Codec
	if codec == nil {
		codec = message.DefaultCodec
	}
	return &Recipient{
		codec:   codec,
		logger:  conf.Logger,
		mu:      &sync.RWMutex{},
		objects: make(map[string]*registeredObject),
	}
}

func (r *Recipient) logDebug(msg string) {
	if r.logger != nil {
		r.logger.Debug(msg)
	}
}

func (r *Recipient) logInfo(msg string) {
	if r.logger != nil {
		r.logger.Info(msg)
	}
}

func (r *Recipient) logWarn(msg string) {
	if r.logger != nil {
		r.logger.Warn(msg)
	}
}

func (r *Recipient) logError(msg string) {
	if r.logger != nil {
		r.logger.Error(msg)
	}
}

// Register hosts target under objectID. Properties whose type matches one
// of the nested contracts, or that were declared nested, are registered as
// objects of their own under objectID + "/" + propertyID when non-nil.
func (r *Recipient) Register(objectID string, c *contract.Contract, target any, nested ...*contract.Contract) error {
	if objectID == "" {
		return ErrInvalidObjectID
	}
	if c == nil {
		return fmt.Errorf("%w: no contract for %s", ErrContractMismatch, objectID)
	}
	if isNil(target) {
		return ErrNilTarget
	}
	if !c.Implements(target) {
		return fmt.Errorf("%w: %T does not implement %s", ErrContractMismatch, target, c.Name())
	}

	objects, err := r.buildObjects(objectID, c, target, nested, nil)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRecipientClosed
	}
	for _, obj := range objects {
		if _, ok := r.objects[obj.id]; ok {
			return fmt.Errorf("%w: %s", ErrAlreadyRegistered, obj.id)
		}
	}
	for _, obj := range objects {
		r.objects[obj.id] = obj
		r.order = append(r.order, obj.id)
		r.logDebug(fmt.Sprintf("Registered %s as %s", obj.id, obj.contract.Name()))
	}
	return nil
}

// RegisterAuto registers target under a generated object id and returns it.
func (r *Recipient) RegisterAuto(c *contract.Contract, target any, nested ...*contract.Contract) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	objectID := hex.EncodeToString(buf)
	if err := r.Register(objectID, c, target, nested...); err != nil {
		return "", err
	}
	return objectID, nil
}

// Objects returns the registered object ids in registration order.
func (r *Recipient) Objects() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Request decodes data, dispatches it and encodes the response. Only bytes
// that are not a message at all fail with an error; every other failure
// becomes an exception response.
func (r *Recipient) Request(ctx context.Context, data []byte, cb Callback) ([]byte, error) {
	var resp message.Response

	req, err := message.DecodeRequest(data)
	if err != nil {
		if errors.Is(err, message.ErrMalformed) {
			return nil, err
		}
		r.logWarn(fmt.Sprintf("Rejected request: %s", err.Error()))
		resp = message.NewExceptionResponse(err)
	} else {
		resp = r.Dispatch(ctx, req, cb)
	}

	return message.EncodeResponse(resp)
}

// Dispatch routes req to the addressed member. Failures are returned as an
// exception response.
func (r *Recipient) Dispatch(ctx context.Context, req message.Request, cb Callback) message.Response {
	resp, err := r.dispatch(ctx, req, cb)
	if err != nil {
		r.logWarn(fmt.Sprintf("Request %s failed: %s", kindOf(req), err.Error()))
		return message.NewExceptionResponse(err)
	}
	return resp
}

func kindOf(req message.Request) string {
	if req == nil {
		return "<nil>"
	}
	return string(req.Kind())
}

func (r *Recipient) dispatch(ctx context.Context, req message.Request, cb Callback) (message.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch req := req.(type) {
	case *message.GetBindingsRequest:
		return &message.GetBindingsResponse{
			ResponseType: message.ResponseGetBindings,
			Bindings:     r.bindings(),
		}, nil

	case *message.SubscribeRequest:
		if cb == nil {
			return nil, message.NewBindingError(req.ObjectID, req.EventID, errCallbackRequired, "failed to subscribe to %s on %s", req.EventID, req.ObjectID)
		}
		e, err := r.event(req.ObjectID, req.EventID)
		if err != nil {
			return nil, err
		}
		if err := e.subscribe(cb); err != nil {
			return nil, message.NewBindingError(req.ObjectID, req.EventID, err, "failed to subscribe to %s on %s", req.EventID, req.ObjectID)
		}
		return &message.SubscribeResponse{
			ResponseType: message.ResponseSubscribe,
			ObjectID:     req.ObjectID,
			EventID:      req.EventID,
		}, nil

	case *message.UnsubscribeRequest:
		e, err := r.event(req.ObjectID, req.EventID)
		if err != nil {
			return nil, err
		}
		if !e.unsubscribe(cb) {
			r.logDebug(fmt.Sprintf("Unsubscribe from %s on %s without subscription", req.EventID, req.ObjectID))
		}
		return &message.UnsubscribeResponse{
			ResponseType: message.ResponseUnsubscribe,
			ObjectID:     req.ObjectID,
			EventID:      req.EventID,
		}, nil

	case *message.PropertyGetRequest:
		p, err := r.property(req.ObjectID, req.PropertyID)
		if err != nil {
			return nil, err
		}
		value, err := p.get()
		if err != nil {
			return nil, err
		}
		return &message.PropertyGetResponse{
			ResponseType: message.ResponsePropertyGet,
			ObjectID:     req.ObjectID,
			PropertyID:   req.PropertyID,
			Value:        value,
		}, nil

	case *message.PropertySetRequest:
		p, err := r.property(req.ObjectID, req.PropertyID)
		if err != nil {
			return nil, err
		}
		if err := p.set(req.Value); err != nil {
			return nil, err
		}
		return &message.PropertySetResponse{
			ResponseType: message.ResponsePropertySet,
			ObjectID:     req.ObjectID,
			PropertyID:   req.PropertyID,
		}, nil

	case *message.InvokeRequest:
		m, err := r.method(req.ObjectID, req.MethodID)
		if err != nil {
			return nil, err
		}
		result, err := m.invoke(req.MethodArgs)
		if err != nil {
			return nil, err
		}
		return &message.InvokeResponse{
			ResponseType: message.ResponseInvoke,
			ObjectID:     req.ObjectID,
			MethodID:     req.MethodID,
			Result:       result,
		}, nil
	}

	return nil, fmt.Errorf("%w: %s", message.ErrUnsupportedRequestType, kindOf(req))
}

func (r *Recipient) object(objectID string, memberID string) (*registeredObject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, message.NewBindingError(objectID, memberID, ErrRecipientClosed, "cannot reach %s on %s", memberID, objectID)
	}
	obj, ok := r.objects[objectID]
	if !ok {
		return nil, message.NewBindingError(objectID, memberID, nil, "object %s is not registered", objectID)
	}
	return obj, nil
}

func (r *Recipient) event(objectID string, eventID string) (*registeredEvent, error) {
	obj, err := r.object(objectID, eventID)
	if err != nil {
		return nil, err
	}
	return obj.event(eventID)
}

func (r *Recipient) property(objectID string, propertyID string) (*registeredProperty, error) {
	obj, err := r.object(objectID, propertyID)
	if err != nil {
		return nil, err
	}
	return obj.property(propertyID)
}

func (r *Recipient) method(objectID string, methodID string) (*registeredMethod, error) {
	obj, err := r.object(objectID, methodID)
	if err != nil {
		return nil, err
	}
	return obj.method(methodID)
}

func (r *Recipient) bindings() []message.ObjectBinding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bindings := make([]message.ObjectBinding, 0, len(r.order))
	for _, id := range r.order {
		bindings = append(bindings, r.objects[id].binding)
	}
	return bindings
}

func (r *Recipient) eachEvent(fn func(*registeredEvent)) {
	r.mu.RLock()
	objects := make([]*registeredObject, 0, len(r.order))
	for _, id := range r.order {
		objects = append(objects, r.objects[id])
	}
	r.mu.RUnlock()

	for _, obj := range objects {
		obj.eachEvent(fn)
	}
}

// DropCallback removes every subscription held by cb, typically because the
// peer behind it disconnected.
func (r *Recipient) DropCallback(cb Callback) {
	if cb == nil {
		return
	}
	r.eachEvent(func(e *registeredEvent) {
		e.drop(cb)
	})
}

// Close detaches every event handler from the hosted objects. Requests made
// after Close fail.
func (r *Recipient) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.eachEvent(func(e *registeredEvent) {
		e.close()
	})
	r.logInfo("Recipient closed")
}
