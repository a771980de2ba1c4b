package grpcbinding

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/kbirk/abind/internal/testobjects"
	"github.com/kbirk/abind/pkg/message"
	"github.com/kbirk/abind/pkg/recipient"
	"github.com/kbirk/abind/pkg/sender"
)

type fixture struct {
	target *testobjects.RegisteredObject2
	conn   *grpc.ClientConn
}

func newFixture(t *testing.T) *fixture {
	target := testobjects.NewRegisteredObject2()

	r := recipient.New(recipient.Config{})
	require.NoError(t, r.Register("counter", testobjects.RegisteredObject2Contract, target))

	lis := bufconn.Listen(1 << 20)
	ctx, cancel := context.WithCancel(context.Background())

	served := make(chan error, 1)
	go func() {
		served <- NewServer(ServerConfig{Recipient: r}).Serve(ctx, lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		cancel()
		assert.NoError(t, <-served)
	})

	return &fixture{
		target: target,
		conn:   conn,
	}
}

func (f *fixture) sender(t *testing.T, ctx context.Context) (*sender.Sender, *Client) {
	client := NewClient(ClientConfig{
		Conn: f.conn,
	})
	s := sender.New(sender.Config{
		Client: client,
	})
	require.NoError(t, sender.Register(s, testobjects.RegisteredObject2Contract, testobjects.NewRegisteredObject2Proxy))
	require.NoError(t, s.SynchronizeBindings(ctx))
	AttachSender(ctx, client, s)
	return s, client
}

func TestRequestAndNotifications(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, _ := f.sender(t, ctx)

	counter, ok := sender.GetBinding[testobjects.IRegisteredObject2](s, "counter")
	require.True(t, ok)

	counts := make(chan int, 4)
	_, err := counter.NotifyOnCountChanged().Add(func(count int) {
		counts <- count
	})
	require.NoError(t, err)

	sum, err := counter.Add(2, 3)
	require.NoError(t, err)
	assert.Equal(t, 5, sum)

	select {
	case count := <-counts:
		assert.Equal(t, 1, count)
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}

	count, err := counter.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNotificationsAreRoutedPerClient(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subscribed, _ := f.sender(t, ctx)
	other, _ := f.sender(t, ctx)

	first, _ := sender.GetBinding[testobjects.IRegisteredObject2](subscribed, "counter")
	second, _ := sender.GetBinding[testobjects.IRegisteredObject2](other, "counter")

	got := make(chan int, 1)
	_, err := first.NotifyOnCountChanged().Add(func(count int) {
		got <- count
	})
	require.NoError(t, err)

	// the other client triggers the change but never subscribed
	_, err = second.Add(1, 1)
	require.NoError(t, err)

	select {
	case count := <-got:
		assert.Equal(t, 1, count)
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}
}

func TestListenEndDropsSubscriptions(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	s, _ := f.sender(t, ctx)

	counter, _ := sender.GetBinding[testobjects.IRegisteredObject2](s, "counter")
	_, err := counter.NotifyOnCountChanged().Add(func(int) {})
	require.NoError(t, err)
	require.Equal(t, 1, f.target.NotifyOnCountChanged().HandlerCount())

	cancel()

	require.Eventually(t, func() bool {
		return f.target.NotifyOnCountChanged().HandlerCount() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestMissingClientID(t *testing.T) {
	f := newFixture(t)

	out := new(wrapperspb.BytesValue)
	err := f.conn.Invoke(context.Background(), RequestMethod, wrapperspb.Bytes([]byte(`{}`)), out)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestMalformedRequest(t *testing.T) {
	f := newFixture(t)

	client := NewClient(ClientConfig{
		Conn: f.conn,
	})
	_, err := client.Request(context.Background(), []byte("not json"))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func requestAs(t *testing.T, srv *Server, id string, req message.Request) message.Response {
	data, err := message.EncodeRequest(req)
	require.NoError(t, err)

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(ClientIDKey, id))
	out, err := srv.Request(ctx, wrapperspb.Bytes(data))
	require.NoError(t, err)

	resp, err := message.DecodeResponse(out.GetValue())
	require.NoError(t, err)
	return resp
}

func TestIdleSessionsExpire(t *testing.T) {
	target := testobjects.NewRegisteredObject2()
	r := recipient.New(recipient.Config{})
	require.NoError(t, r.Register("counter", testobjects.RegisteredObject2Contract, target))

	srv := NewServer(ServerConfig{
		Recipient:      r,
		SessionTimeout: time.Minute,
	})
	now := time.Unix(0, 0)
	srv.now = func() time.Time { return now }

	const clients = 50
	for i := 0; i < clients; i++ {
		resp := requestAs(t, srv, fmt.Sprintf("client-%d", i), &message.SubscribeRequest{
			ObjectID: "counter",
			EventID:  "NotifyOnCountChanged",
		})
		require.IsType(t, &message.SubscribeResponse{}, resp)
	}
	require.Equal(t, clients, srv.Sessions())
	require.Equal(t, 1, target.NotifyOnCountChanged().HandlerCount())

	listener := srv.session("listener")
	require.True(t, listener.listen())

	now = now.Add(30 * time.Second)
	requestAs(t, srv, "late", &message.GetBindingsRequest{})
	assert.Equal(t, clients+2, srv.Sessions())

	now = now.Add(2 * time.Minute)
	requestAs(t, srv, "late", &message.GetBindingsRequest{})

	assert.Equal(t, 2, srv.Sessions())
	assert.Equal(t, 0, target.NotifyOnCountChanged().HandlerCount())
}
