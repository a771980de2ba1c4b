package sender

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/kbirk/abind/pkg/contract"
	"github.com/kbirk/abind/pkg/log"
	"github.com/kbirk/abind/pkg/message"
)

// Client performs one request/response round-trip with a recipient.
type Client interface {
	Request(ctx context.Context, data []byte) ([]byte, error)
}

type Config struct {
	Client Client
	Codec  message.Codec
	Logger log.Logger
	// RequestTimeout bounds round-trips whose context has no deadline.
	RequestTimeout time.Duration
}

type registration struct {
	contract *contract.Contract
	desc     contract.ObjectDescription
	factory  func(*Proxy) any
}

type boundProxy struct {
	proxy   *Proxy
	value   any
	binding message.ObjectBinding
}

// Sender matches the objects a recipient reports against registered
// contracts and hands out proxies for them.
type Sender struct {
	conf          Config
	codec         message.Codec
	mu            *sync.RWMutex
	notifyMu      *sync.Mutex
	registrations []*registration
	proxies       map[string]*boundProxy
	order         []string
	closed        bool
}

func New(conf Config) *Sender {
	codec := conf.Codec
	if codec == nil {
		codec = message.DefaultCodec
	}
	return &Sender{
		conf:     conf,
		codec:    codec,
		mu:       &sync.RWMutex{},
		notifyMu: &sync.Mutex{},
		proxies:  make(map[string]*boundProxy),
	}
}

func (s *Sender) logDebug(msg string) {
	if s.conf.Logger != nil {
		s.conf.Logger.Debug(msg)
	}
}

func (s *Sender) logInfo(msg string) {
	if s.conf.Logger != nil {
		s.conf.Logger.Info(msg)
	}
}

func (s *Sender) logWarn(msg string) {
	if s.conf.Logger != nil {
		s.conf.Logger.Warn(msg)
	}
}

func (s *Sender) logError(msg string) {
	if s.conf.Logger != nil {
		s.conf.Logger.Error(msg)
	}
}

// Register makes the contract of T available for matching. factory wraps a
// generic proxy into a value implementing T.
func Register[T any](s *Sender, c *contract.Contract, factory func(*Proxy) T) error {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if c == nil || c.Type() != typ {
		return fmt.Errorf("contract does not describe %v", typ)
	}
	if factory == nil {
		return fmt.Errorf("no proxy factory for %v", typ)
	}

	desc := contract.Describe(c)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, reg := range s.registrations {
		if reg.contract.Type() == typ {
			return fmt.Errorf("%w: %v", ErrAlreadyRegistered, typ)
		}
		if reg.desc.Equal(desc) {
			return fmt.Errorf("%w: %v matches %v", ErrAmbiguousContract, typ, reg.contract.Type())
		}
	}

	s.registrations = append(s.registrations, &registration{
		contract: c,
		desc:     desc,
		factory: func(p *Proxy) any {
			return factory(p)
		},
	})
	return nil
}

// RegisteredContracts returns the registered contracts in registration order.
func (s *Sender) RegisteredContracts() []*contract.Contract {
	s.mu.RLock()
	defer s.mu.RUnlock()

	contracts := make([]*contract.Contract, 0, len(s.registrations))
	for _, reg := range s.registrations {
		contracts = append(contracts, reg.contract)
	}
	return contracts
}

// SynchronizeBindings replaces every proxy with fresh ones built from the
// bindings the recipient currently reports. Proxies handed out earlier are
// disposed. Every binding is attempted; those that match no contract are
// reported together in an UnmatchedBindingsError.
//
// It must not be called from an event handler.
func (s *Sender) SynchronizeBindings(ctx context.Context) error {
	resp, err := s.roundTrip(ctx, &message.GetBindingsRequest{})
	if err != nil {
		return err
	}

	var bindings []message.ObjectBinding
	switch resp := resp.(type) {
	case *message.ExceptionResponse:
		return resp.Exception
	case *message.GetBindingsResponse:
		bindings = resp.Bindings
	default:
		return fmt.Errorf("%w: expected %s response, got %s", ErrInvalidResponse, message.ResponseGetBindings, resp.Kind())
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSenderClosed
	}

	s.disposeAllUnsafe()

	unmatched := &UnmatchedBindingsError{}
	for _, binding := range bindings {
		reg := s.matchUnsafe(binding.Description())
		if reg == nil {
			unmatched.ObjectIDs = append(unmatched.ObjectIDs, binding.ObjectID)
			unmatched.Errors = append(unmatched.Errors, fmt.Errorf("no registered contract matches binding %s", binding.ObjectID))
			continue
		}
		if _, ok := s.proxies[binding.ObjectID]; ok {
			s.logWarn(fmt.Sprintf("Duplicate binding %s replaces earlier one", binding.ObjectID))
		} else {
			s.order = append(s.order, binding.ObjectID)
		}
		p := newProxy(s, binding.ObjectID, reg.contract)
		s.proxies[binding.ObjectID] = &boundProxy{
			proxy:   p,
			value:   reg.factory(p),
			binding: binding,
		}
		s.logDebug(fmt.Sprintf("Bound %s as %s", binding.ObjectID, reg.contract.Name()))
	}

	s.logInfo(fmt.Sprintf("Synchronized %d of %d bindings", len(s.proxies), len(bindings)))

	if len(unmatched.ObjectIDs) > 0 {
		return unmatched
	}
	return nil
}

func (s *Sender) matchUnsafe(desc contract.ObjectDescription) *registration {
	for _, reg := range s.registrations {
		if reg.desc.Equal(desc) {
			return reg
		}
	}
	return nil
}

func (s *Sender) disposeAllUnsafe() {
	for _, bp := range s.proxies {
		bp.proxy.Dispose()
	}
	s.proxies = make(map[string]*boundProxy)
	s.order = nil
}

type Binding[T any] struct {
	ObjectID string
	Proxy    T
}

// GetBindingsByType returns the current proxies implementing T in the order
// the recipient reported them.
func GetBindingsByType[T any](s *Sender) []Binding[T] {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bindings []Binding[T]
	for _, id := range s.order {
		if v, ok := s.proxies[id].value.(T); ok {
			bindings = append(bindings, Binding[T]{ObjectID: id, Proxy: v})
		}
	}
	return bindings
}

func GetBinding[T any](s *Sender, objectID string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var zero T
	bp, ok := s.proxies[objectID]
	if !ok {
		return zero, false
	}
	v, ok := bp.value.(T)
	if !ok {
		return zero, false
	}
	return v, true
}

// Nested returns the proxy bound to the nested object held by propertyID of
// the object behind p.
func Nested[N any](p *Proxy, propertyID string) (N, error) {
	var zero N
	if p.IsDisposed() {
		return zero, ErrProxyDisposed
	}

	s := p.sender
	s.mu.RLock()
	defer s.mu.RUnlock()

	parent, ok := s.proxies[p.objectID]
	if !ok || parent.proxy != p {
		return zero, ErrProxyDisposed
	}
	nestedID, ok := parent.binding.NestedBinding(propertyID)
	if !ok {
		return zero, fmt.Errorf("%w: %s on %s holds no bound object", ErrUnknownMember, propertyID, p.objectID)
	}
	bp, ok := s.proxies[nestedID]
	if !ok {
		return zero, fmt.Errorf("nested object %s is not bound", nestedID)
	}
	v, ok := bp.value.(N)
	if !ok {
		return zero, fmt.Errorf("nested object %s is a %T", nestedID, bp.value)
	}
	return v, nil
}

// HandleNotification delivers an inbound notification to the proxy it
// addresses. Notifications for unknown objects are dropped.
func (s *Sender) HandleNotification(data []byte) error {
	n, err := message.DecodeNotification(data)
	if err != nil {
		return err
	}

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.RLock()
	bp, ok := s.proxies[n.ObjectID]
	s.mu.RUnlock()

	if !ok {
		s.logDebug(fmt.Sprintf("Dropped %s notification for unbound object %s", n.EventID, n.ObjectID))
		return nil
	}
	bp.proxy.OnEventNotification(n)
	return nil
}

// Close disposes every proxy. The sender cannot be synchronized again.
func (s *Sender) Close() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.disposeAllUnsafe()
	s.closed = true
}

func (s *Sender) roundTrip(ctx context.Context, req message.Request) (message.Response, error) {
	if s.conf.Client == nil {
		return nil, errors.New("sender has no client")
	}
	if s.conf.RequestTimeout > 0 {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.conf.RequestTimeout)
			defer cancel()
		}
	}

	data, err := message.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	reply, err := s.conf.Client.Request(ctx, data)
	if err != nil {
		return nil, err
	}

	resp, err := message.DecodeResponse(reply)
	if err != nil {
		if errors.Is(err, message.ErrMalformed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return resp, nil
}
