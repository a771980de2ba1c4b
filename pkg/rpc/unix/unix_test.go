package unix

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/kbirk/abind/pkg/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoHandler struct{}

func (echoHandler) HandleRequest(ctx context.Context, peer rpc.Peer, payload []byte) ([]byte, error) {
	return payload, nil
}

func (echoHandler) PeerClosed(peer rpc.Peer) {}

func TestUnixRoundTrip(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "abind.sock")

	// a stale socket file is replaced
	require.NoError(t, os.WriteFile(socketPath, nil, 0o600))

	transport := NewServerTransport(ServerTransportConfig{
		SocketPath: socketPath,
	})
	server := rpc.NewServer(rpc.ServerConfig{
		Transport: transport,
	})
	server.RegisterHandler(echoHandler{})

	require.NoError(t, server.Listen())
	go server.Serve()

	client := rpc.NewClient(rpc.ClientConfig{
		Transport: NewClientTransport(ClientTransportConfig{
			SocketPath: socketPath,
		}),
	})
	defer client.Close()

	resp, err := client.Request(context.Background(), []byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(resp))

	require.NoError(t, server.Shutdown(context.Background()))

	_, err = os.Stat(socketPath)
	assert.True(t, os.IsNotExist(err))
}
