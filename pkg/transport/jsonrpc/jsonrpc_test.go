package jsonrpc

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/rpc/v2/json2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbirk/abind/internal/testobjects"
	"github.com/kbirk/abind/pkg/contract"
	"github.com/kbirk/abind/pkg/recipient"
	"github.com/kbirk/abind/pkg/sender"
)

type fixture struct {
	target  *testobjects.RegisteredObject
	service *BindingService
	server  *httptest.Server
}

func newFixture(t *testing.T, conf ServerConfig, opts ...func(*BindingService)) *fixture {
	target := testobjects.NewRegisteredObject(testobjects.NewNestedObject("nested"))

	r := recipient.New(recipient.Config{})
	require.NoError(t, r.Register("objId1", testobjects.RegisteredObjectContract, target, testobjects.NestedObjectContract))

	conf.Recipient = r
	service := NewBindingService(conf)
	for _, opt := range opts {
		opt(service)
	}
	server := httptest.NewServer(NewHandler(service))
	t.Cleanup(server.Close)

	return &fixture{
		target:  target,
		service: service,
		server:  server,
	}
}

func (f *fixture) client() *Client {
	return NewClient(ClientConfig{
		URL:      f.server.URL,
		PollWait: 200 * time.Millisecond,
	})
}

func TestRequestAndPoll(t *testing.T) {
	f := newFixture(t, ServerConfig{})
	client := f.client()

	s := sender.New(sender.Config{
		Client: client,
	})
	require.NoError(t, sender.Register(s, testobjects.RegisteredObjectContract, testobjects.NewRegisteredObjectProxy))
	require.NoError(t, sender.Register(s, testobjects.NestedObjectContract, testobjects.NewNestedObjectProxy))
	require.NoError(t, s.SynchronizeBindings(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	done := AttachSender(ctx, client, s)

	obj, ok := sender.GetBinding[testobjects.IRegisteredObject](s, "objId1")
	require.True(t, ok)

	require.NoError(t, obj.SetStringValueProperty("json"))
	value, err := obj.StringValueProperty()
	require.NoError(t, err)
	assert.Equal(t, "json", value)

	received := make(chan testobjects.DataChangedArgs, 2)
	_, err = obj.NotifyOnDataChanged().Add(func(args testobjects.DataChangedArgs) {
		received <- args
	})
	require.NoError(t, err)

	f.target.RaiseDataChanged("a", 1)
	f.target.RaiseDataChanged("b", 2)

	for _, expected := range []testobjects.DataChangedArgs{{Name: "a", Data: 1}, {Name: "b", Data: 2}} {
		select {
		case args := <-received:
			assert.Equal(t, expected, args)
		case <-time.After(2 * time.Second):
			t.Fatal("notification not delivered")
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listen did not stop")
	}
}

func TestPollReturnsEmptyAfterWait(t *testing.T) {
	f := newFixture(t, ServerConfig{})
	client := f.client()

	start := time.Now()
	items, err := client.Poll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestMissingSession(t *testing.T) {
	f := newFixture(t, ServerConfig{})
	client := NewClient(ClientConfig{
		URL: f.server.URL,
	})
	client.conf.Session = ""

	_, err := client.Request(context.Background(), []byte(`{"requestType":"getBindings"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrMissingSession.Error())
}

func TestMalformedPayload(t *testing.T) {
	f := newFixture(t, ServerConfig{})
	client := f.client()

	_, err := client.Request(context.Background(), []byte(`[1, 2]`))
	require.Error(t, err)

	var rpcErr *json2.Error
	assert.ErrorAs(t, err, &rpcErr)
}

func TestIdleSessionsExpire(t *testing.T) {
	mu := &sync.Mutex{}
	now := time.Now()
	f := newFixture(t, ServerConfig{
		SessionTimeout: time.Minute,
	}, func(s *BindingService) {
		s.now = func() time.Time {
			mu.Lock()
			defer mu.Unlock()
			return now
		}
	})

	idle := f.client()
	s := sender.New(sender.Config{
		Client: idle,
	})
	require.NoError(t, sender.Register(s, testobjects.RegisteredObjectContract, testobjects.NewRegisteredObjectProxy))
	require.NoError(t, s.SynchronizeBindings(context.Background()))

	obj, _ := sender.GetBinding[testobjects.IRegisteredObject](s, "objId1")
	_, err := obj.NotifyOnNonDataChanged().Add(func(contract.Empty) {})
	require.NoError(t, err)
	require.Equal(t, 1, f.target.NotifyOnNonDataChanged().HandlerCount())

	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()

	// any other session's call sweeps the idle one
	_, err = f.client().Poll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, f.service.Sessions())
	assert.Equal(t, 0, f.target.NotifyOnNonDataChanged().HandlerCount())
}
