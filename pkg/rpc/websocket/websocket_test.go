package websocket

import (
	"context"
	"testing"
	"time"

	"github.com/kbirk/abind/pkg/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notifyHandler struct {
	closed chan uint64
}

func (h *notifyHandler) HandleRequest(ctx context.Context, peer rpc.Peer, payload []byte) ([]byte, error) {
	if err := peer.Notify(append([]byte("event:"), payload...)); err != nil {
		return nil, err
	}
	return payload, nil
}

func (h *notifyHandler) PeerClosed(peer rpc.Peer) {
	h.closed <- peer.ID()
}

func TestWebSocketRoundTrip(t *testing.T) {
	transport := NewServerTransport(ServerTransportConfig{
		Host: "127.0.0.1",
	})
	handler := &notifyHandler{
		closed: make(chan uint64, 1),
	}
	server := rpc.NewServer(rpc.ServerConfig{
		Transport: transport,
	})
	server.RegisterHandler(handler)

	require.NoError(t, server.Listen())
	go server.Serve()
	defer server.Shutdown(context.Background())

	client := rpc.NewClient(rpc.ClientConfig{
		Transport: NewClientTransport(ClientTransportConfig{
			Host: "127.0.0.1",
			Port: transport.Port(),
		}),
	})

	received := make(chan string, 1)
	client.OnNotification(func(payload []byte) error {
		received <- string(payload)
		return nil
	})

	resp, err := client.Request(context.Background(), []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(resp))

	select {
	case got := <-received:
		assert.Equal(t, "event:hello", got)
	case <-time.After(time.Second):
		t.Fatal("notification not delivered")
	}

	require.NoError(t, client.Close())

	select {
	case <-handler.closed:
	case <-time.After(time.Second):
		t.Fatal("peer close not reported")
	}
}

func TestWebSocketListenTwice(t *testing.T) {
	transport := NewServerTransport(ServerTransportConfig{
		Host: "127.0.0.1",
	})
	require.NoError(t, transport.Listen())
	defer transport.Close()

	assert.Error(t, transport.Listen())
}
