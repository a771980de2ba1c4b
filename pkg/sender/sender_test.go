package sender_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbirk/abind/internal/testobjects"
	"github.com/kbirk/abind/pkg/contract"
	"github.com/kbirk/abind/pkg/message"
	"github.com/kbirk/abind/pkg/recipient"
	"github.com/kbirk/abind/pkg/sender"
)

// loopback connects a sender directly to a recipient in the same process.
type loopback struct {
	recipient *recipient.Recipient
	callback  recipient.Callback
}

func (l *loopback) Request(ctx context.Context, data []byte) ([]byte, error) {
	return l.recipient.Request(ctx, data, l.callback)
}

type clientFunc func(ctx context.Context, data []byte) ([]byte, error)

func (f clientFunc) Request(ctx context.Context, data []byte) ([]byte, error) {
	return f(ctx, data)
}

func connect(t *testing.T, r *recipient.Recipient) *sender.Sender {
	l := &loopback{recipient: r}
	s := sender.New(sender.Config{Client: l})
	l.callback = recipient.NewCallback(func(n *message.EventNotification) {
		bs, err := message.EncodeNotification(n)
		require.NoError(t, err)
		require.NoError(t, s.HandleNotification(bs))
	})
	return s
}

func registerAll(t *testing.T, s *sender.Sender) {
	require.NoError(t, sender.Register(s, testobjects.RegisteredObjectContract, testobjects.NewRegisteredObjectProxy))
	require.NoError(t, sender.Register(s, testobjects.RegisteredObject2Contract, testobjects.NewRegisteredObject2Proxy))
	require.NoError(t, sender.Register(s, testobjects.NestedObjectContract, testobjects.NewNestedObjectProxy))
}

type fixture struct {
	recipient *recipient.Recipient
	sender    *sender.Sender
	obj1      *testobjects.RegisteredObject
	obj2      *testobjects.RegisteredObject
	obj3      *testobjects.RegisteredObject2
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		recipient: recipient.New(recipient.Config{}),
		obj1:      testobjects.NewRegisteredObject(testobjects.NewNestedObject("nested value")),
		obj2:      testobjects.NewRegisteredObject(nil),
		obj3:      testobjects.NewRegisteredObject2(),
	}
	require.NoError(t, f.recipient.Register("objId1", testobjects.RegisteredObjectContract, f.obj1, testobjects.NestedObjectContract))
	require.NoError(t, f.recipient.Register("objId2", testobjects.RegisteredObjectContract, f.obj2, testobjects.NestedObjectContract))
	require.NoError(t, f.recipient.Register("objId3", testobjects.RegisteredObject2Contract, f.obj3))

	f.sender = connect(t, f.recipient)
	registerAll(t, f.sender)
	require.NoError(t, f.sender.SynchronizeBindings(context.Background()))
	return f
}

func (f *fixture) proxy(t *testing.T, objectID string) *testobjects.RegisteredObjectProxy {
	v, ok := sender.GetBinding[testobjects.IRegisteredObject](f.sender, objectID)
	require.True(t, ok)
	return v.(*testobjects.RegisteredObjectProxy)
}

type IRegisteredObject2Twin interface {
	NotifyOnCountChanged() *contract.Event[int]
	Count() (int, error)
	Add(a int, b int) (int, error)
}

func TestRegister(t *testing.T) {
	s := sender.New(sender.Config{})
	require.NoError(t, sender.Register(s, testobjects.RegisteredObject2Contract, testobjects.NewRegisteredObject2Proxy))

	err := sender.Register(s, testobjects.RegisteredObject2Contract, testobjects.NewRegisteredObject2Proxy)
	assert.ErrorIs(t, err, sender.ErrAlreadyRegistered)

	twin := contract.New[IRegisteredObject2Twin]("")
	contract.AddEvent(twin, "NotifyOnCountChanged", IRegisteredObject2Twin.NotifyOnCountChanged)
	contract.AddProperty[IRegisteredObject2Twin, int](twin, "Count", IRegisteredObject2Twin.Count, nil)
	contract.AddMethod[IRegisteredObject2Twin](twin, "Add", IRegisteredObject2Twin.Add)

	err = sender.Register(s, twin, func(p *sender.Proxy) IRegisteredObject2Twin { return nil })
	assert.ErrorIs(t, err, sender.ErrAmbiguousContract)

	err = sender.Register(s, testobjects.NestedObjectContract, testobjects.NewRegisteredObjectProxy)
	assert.Error(t, err)

	contracts := s.RegisteredContracts()
	require.Len(t, contracts, 1)
	assert.Same(t, testobjects.RegisteredObject2Contract, contracts[0])
}

func TestSynchronizeBindings(t *testing.T) {
	f := newFixture(t)

	objects := sender.GetBindingsByType[testobjects.IRegisteredObject](f.sender)
	require.Len(t, objects, 2)
	assert.Equal(t, "objId1", objects[0].ObjectID)
	assert.Equal(t, "objId2", objects[1].ObjectID)

	objects2 := sender.GetBindingsByType[testobjects.IRegisteredObject2](f.sender)
	require.Len(t, objects2, 1)
	assert.Equal(t, "objId3", objects2[0].ObjectID)

	nested := sender.GetBindingsByType[testobjects.INestedObject](f.sender)
	require.Len(t, nested, 1)
	assert.Equal(t, "objId1/NestedObject", nested[0].ObjectID)

	_, ok := sender.GetBinding[testobjects.IRegisteredObject](f.sender, "objId3")
	assert.False(t, ok)
}

func TestSingleBindingProducesSingleProxy(t *testing.T) {
	r := recipient.New(recipient.Config{})
	require.NoError(t, r.Register("objId1", testobjects.RegisteredObjectContract, testobjects.NewRegisteredObject(nil)))

	s := connect(t, r)
	require.NoError(t, sender.Register(s, testobjects.RegisteredObjectContract, testobjects.NewRegisteredObjectProxy))
	require.NoError(t, s.SynchronizeBindings(context.Background()))

	objects := sender.GetBindingsByType[testobjects.IRegisteredObject](s)
	require.Len(t, objects, 1)
	assert.Equal(t, "objId1", objects[0].ObjectID)
}

func TestUnmatchedBindingsAggregate(t *testing.T) {
	r := recipient.New(recipient.Config{})
	require.NoError(t, r.Register("objId1", testobjects.RegisteredObjectContract, testobjects.NewRegisteredObject(nil)))
	require.NoError(t, r.Register("objId2", testobjects.RegisteredObjectContract, testobjects.NewRegisteredObject(nil)))
	require.NoError(t, r.Register("objId3", testobjects.RegisteredObject2Contract, testobjects.NewRegisteredObject2()))

	s := connect(t, r)
	require.NoError(t, sender.Register(s, testobjects.RegisteredObject2Contract, testobjects.NewRegisteredObject2Proxy))

	err := s.SynchronizeBindings(context.Background())
	require.Error(t, err)

	var unmatched *sender.UnmatchedBindingsError
	require.True(t, errors.As(err, &unmatched))
	assert.Equal(t, []string{"objId1", "objId2"}, unmatched.ObjectIDs)
	assert.Len(t, unmatched.Errors, 2)
	assert.Contains(t, err.Error(), "objId1")
	assert.Contains(t, err.Error(), "objId2")

	bound := sender.GetBindingsByType[testobjects.IRegisteredObject2](s)
	require.Len(t, bound, 1)
	assert.Equal(t, "objId3", bound[0].ObjectID)
}

func TestResyncDisposesProxies(t *testing.T) {
	f := newFixture(t)

	before := f.proxy(t, "objId1")
	require.NoError(t, f.sender.SynchronizeBindings(context.Background()))
	after := f.proxy(t, "objId1")

	assert.NotSame(t, before, after)
	assert.True(t, before.Proxy().IsDisposed())
	assert.False(t, after.Proxy().IsDisposed())

	_, err := before.StringValueProperty()
	assert.ErrorIs(t, err, sender.ErrProxyDisposed)

	_, err = after.StringValueProperty()
	assert.NoError(t, err)
}

func TestProxyProperties(t *testing.T) {
	f := newFixture(t)
	obj := f.proxy(t, "objId1")

	require.NoError(t, obj.SetStringValueProperty("actual value"))
	value, err := obj.StringValueProperty()
	require.NoError(t, err)
	assert.Equal(t, "actual value", value)

	stored, _ := f.obj1.StringValueProperty()
	assert.Equal(t, "actual value", stored)

	err = obj.Proxy().SetValue(context.Background(), "Missing", 1)
	assert.ErrorIs(t, err, sender.ErrUnknownMember)
}

func TestProxyMethods(t *testing.T) {
	f := newFixture(t)
	obj := f.proxy(t, "objId1")

	require.NoError(t, obj.VoidReturnMethod("string", 2.0))
	assert.Equal(t, [][]any{{"string", 2.0}}, f.obj1.Calls())

	echo, err := obj.StringReturnMethodStrVal("echo", 1)
	require.NoError(t, err)
	assert.Equal(t, "echo", echo)

	sum, err := sender.GetBindingsByType[testobjects.IRegisteredObject2](f.sender)[0].Proxy.Add(2, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, sum)
}

func TestProxyMethodErrors(t *testing.T) {
	f := newFixture(t)
	obj := f.proxy(t, "objId1")

	err := obj.Explode()
	require.Error(t, err)
	var be *message.BindingError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "objId1", be.ObjectID)
	assert.Contains(t, err.Error(), "objId1")
	assert.Contains(t, err.Error(), "Explode()")

	err = obj.Panic()
	assert.Contains(t, err.Error(), "target panicked")

	_, err = obj.StringReturnMethodStrVal("x", -1)
	assert.Contains(t, err.Error(), "negative value")

	require.NoError(t, obj.VoidReturnMethodStr("after failures"))
	assert.Equal(t, []string{"after failures"}, f.obj1.StrCalls())

	err = obj.Proxy().Invoke(context.Background(), "StringReturnMethodStrVal", nil, "only one")
	assert.Error(t, err)
}

func TestProxyEvents(t *testing.T) {
	f := newFixture(t)
	obj := f.proxy(t, "objId1")

	var got []testobjects.DataChangedArgs
	id, err := obj.NotifyOnDataChanged().Add(func(args testobjects.DataChangedArgs) {
		got = append(got, args)
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.obj1.NotifyOnDataChanged().HandlerCount())

	f.obj1.RaiseDataChanged("temperature", 21)
	f.obj2.RaiseDataChanged("ignored", 0)
	assert.Equal(t, []testobjects.DataChangedArgs{{Name: "temperature", Data: 21}}, got)

	require.NoError(t, obj.NotifyOnDataChanged().Remove(id))
	assert.Equal(t, 0, f.obj1.NotifyOnDataChanged().HandlerCount())

	f.obj1.RaiseDataChanged("temperature", 22)
	assert.Len(t, got, 1)
}

func TestProxyEventMultipleHandlers(t *testing.T) {
	f := newFixture(t)
	obj := f.proxy(t, "objId1")

	first, second := 0, 0
	id1, err := obj.NotifyOnNonDataChanged().Add(func(contract.Empty) { first++ })
	require.NoError(t, err)
	_, err = obj.NotifyOnNonDataChanged().Add(func(contract.Empty) { second++ })
	require.NoError(t, err)

	f.obj1.RaiseNonDataChanged()
	assert.Equal(t, 1, first)
	assert.Equal(t, 1, second)

	require.NoError(t, obj.NotifyOnNonDataChanged().Remove(id1))
	f.obj1.RaiseNonDataChanged()
	assert.Equal(t, 1, first)
	assert.Equal(t, 2, second)
}

func TestProxyLowLevelHandlers(t *testing.T) {
	f := newFixture(t)
	obj := f.proxy(t, "objId1")

	var payloads []string
	id, err := obj.Proxy().AddHandler(context.Background(), "NotifyOnNonDataChanged", func(args json.RawMessage) {
		payloads = append(payloads, string(args))
	})
	require.NoError(t, err)

	f.obj1.RaiseNonDataChanged()
	assert.Equal(t, []string{"{}"}, payloads)

	require.NoError(t, obj.Proxy().RemoveHandler(context.Background(), "NotifyOnNonDataChanged", id))
	assert.ErrorIs(t, obj.Proxy().RemoveHandler(context.Background(), "NotifyOnNonDataChanged", id), contract.ErrUnknownHandler)

	_, err = obj.Proxy().AddHandler(context.Background(), "Missing", func(json.RawMessage) {})
	assert.ErrorIs(t, err, sender.ErrUnknownMember)
}

func TestRemoveHandlerFailureKeepsHandler(t *testing.T) {
	r := recipient.New(recipient.Config{})
	target := testobjects.NewRegisteredObject(nil)
	require.NoError(t, r.Register("objId1", testobjects.RegisteredObjectContract, target))

	l := &loopback{recipient: r}
	var failing bool
	s := sender.New(sender.Config{
		Client: clientFunc(func(ctx context.Context, data []byte) ([]byte, error) {
			if failing {
				return nil, errors.New("link down")
			}
			return l.Request(ctx, data)
		}),
	})
	l.callback = recipient.NewCallback(func(n *message.EventNotification) {
		bs, err := message.EncodeNotification(n)
		require.NoError(t, err)
		require.NoError(t, s.HandleNotification(bs))
	})
	require.NoError(t, sender.Register(s, testobjects.RegisteredObjectContract, testobjects.NewRegisteredObjectProxy))
	require.NoError(t, s.SynchronizeBindings(context.Background()))

	v, ok := sender.GetBinding[testobjects.IRegisteredObject](s, "objId1")
	require.True(t, ok)
	proxy := v.(*testobjects.RegisteredObjectProxy).Proxy()

	var calls int
	id, err := proxy.AddHandler(context.Background(), "NotifyOnNonDataChanged", func(json.RawMessage) {
		calls++
	})
	require.NoError(t, err)

	failing = true
	assert.Error(t, proxy.RemoveHandler(context.Background(), "NotifyOnNonDataChanged", id))

	target.RaiseNonDataChanged()
	assert.Equal(t, 1, calls)

	failing = false
	require.NoError(t, proxy.RemoveHandler(context.Background(), "NotifyOnNonDataChanged", id))

	target.RaiseNonDataChanged()
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, target.NotifyOnNonDataChanged().HandlerCount())
}

func TestDisposedProxyDropsNotifications(t *testing.T) {
	f := newFixture(t)
	obj := f.proxy(t, "objId1")

	calls := 0
	_, err := obj.NotifyOnNonDataChanged().Add(func(contract.Empty) { calls++ })
	require.NoError(t, err)

	require.NoError(t, f.sender.SynchronizeBindings(context.Background()))

	// the recipient still notifies, but the new proxy has no handlers
	f.obj1.RaiseNonDataChanged()
	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, obj.NotifyOnNonDataChanged().HandlerCount())
}

func TestNestedProxy(t *testing.T) {
	f := newFixture(t)

	nested, err := f.proxy(t, "objId1").NestedObject()
	require.NoError(t, err)
	value, err := nested.NestedValue()
	require.NoError(t, err)
	assert.Equal(t, "nested value", value)

	_, err = f.proxy(t, "objId2").NestedObject()
	assert.ErrorIs(t, err, sender.ErrUnknownMember)
}

func TestHandleNotification(t *testing.T) {
	f := newFixture(t)

	bs, err := message.EncodeNotification(message.NewEventNotification("unknown", "NotifyOnNonDataChanged", json.RawMessage(`{}`)))
	require.NoError(t, err)
	assert.NoError(t, f.sender.HandleNotification(bs))

	err = f.sender.HandleNotification([]byte(`{"notificationType":"other"}`))
	assert.ErrorIs(t, err, message.ErrInvalidNotification)
}

func TestInvalidResponses(t *testing.T) {
	var reply func(req message.Request) message.Response
	client := clientFunc(func(ctx context.Context, data []byte) ([]byte, error) {
		req, err := message.DecodeRequest(data)
		if err != nil {
			return nil, err
		}
		return message.EncodeResponse(reply(req))
	})

	s := sender.New(sender.Config{Client: client})
	require.NoError(t, sender.Register(s, testobjects.RegisteredObject2Contract, testobjects.NewRegisteredObject2Proxy))

	reply = func(message.Request) message.Response {
		return &message.SubscribeResponse{}
	}
	err := s.SynchronizeBindings(context.Background())
	assert.ErrorIs(t, err, sender.ErrInvalidResponse)

	reply = func(message.Request) message.Response {
		return message.NewExceptionResponse(message.NewBindingError("", "", nil, "bindings unavailable"))
	}
	err = s.SynchronizeBindings(context.Background())
	assert.EqualError(t, err, "bindings unavailable")

	reply = func(message.Request) message.Response {
		return &message.GetBindingsResponse{Bindings: []message.ObjectBinding{
			message.NewObjectBinding("objId3", contract.Describe(testobjects.RegisteredObject2Contract)),
		}}
	}
	require.NoError(t, s.SynchronizeBindings(context.Background()))
	obj := sender.GetBindingsByType[testobjects.IRegisteredObject2](s)[0].Proxy

	reply = func(message.Request) message.Response {
		return &message.PropertyGetResponse{ObjectID: "someoneElse", PropertyID: "Count", Value: json.RawMessage(`1`)}
	}
	_, err = obj.Count()
	assert.ErrorIs(t, err, sender.ErrInvalidResponse)
	assert.Contains(t, err.Error(), "objId3")

	reply = func(message.Request) message.Response {
		return &message.PropertyGetResponse{ObjectID: "objId3", PropertyID: "Other", Value: json.RawMessage(`1`)}
	}
	_, err = obj.Count()
	assert.ErrorIs(t, err, sender.ErrInvalidResponse)
	assert.Contains(t, err.Error(), "Count")

	reply = func(message.Request) message.Response {
		return &message.InvokeResponse{ObjectID: "objId3", MethodID: "Add(int,int)", Result: json.RawMessage(`"NaN"`)}
	}
	_, err = obj.Add(1, 2)
	assert.ErrorIs(t, err, sender.ErrInvalidResponse)

	reply = func(message.Request) message.Response {
		return &message.PropertySetResponse{ObjectID: "objId3", PropertyID: "Count"}
	}
	_, err = obj.NotifyOnCountChanged().Add(func(int) {})
	assert.ErrorIs(t, err, sender.ErrInvalidResponse)
	assert.Equal(t, 0, obj.NotifyOnCountChanged().HandlerCount())
}

func TestUnsupportedResponseKind(t *testing.T) {
	client := clientFunc(func(ctx context.Context, data []byte) ([]byte, error) {
		return []byte(`{"responseType":"teleport"}`), nil
	})
	s := sender.New(sender.Config{Client: client})
	assert.ErrorIs(t, s.SynchronizeBindings(context.Background()), sender.ErrInvalidResponse)

	client = func(ctx context.Context, data []byte) ([]byte, error) {
		return []byte(`not json`), nil
	}
	s = sender.New(sender.Config{Client: client})
	assert.ErrorIs(t, s.SynchronizeBindings(context.Background()), message.ErrMalformed)
}

func TestRequestTimeout(t *testing.T) {
	client := clientFunc(func(ctx context.Context, data []byte) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	s := sender.New(sender.Config{Client: client, RequestTimeout: 20 * time.Millisecond})

	err := s.SynchronizeBindings(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClose(t *testing.T) {
	f := newFixture(t)
	obj := f.proxy(t, "objId1")

	f.sender.Close()
	assert.True(t, obj.Proxy().IsDisposed())
	assert.Empty(t, sender.GetBindingsByType[testobjects.IRegisteredObject](f.sender))
	assert.ErrorIs(t, f.sender.SynchronizeBindings(context.Background()), sender.ErrSenderClosed)
}
