package unix

import (
	"fmt"
	"net"
	"os"

	"github.com/kbirk/abind/pkg/rpc"
)

type ServerTransportConfig struct {
	SocketPath     string // Path to the Unix socket file
	MaxMessageSize uint32 // 0 for no limit
}

// ServerTransport implements rpc.ServerTransport for Unix sockets. The
// socket file is replaced on Listen and removed on Close.
type ServerTransport struct {
	*rpc.ListenerTransport
	socketPath string
}

func NewServerTransport(config ServerTransportConfig) *ServerTransport {
	listen := func() (net.Listener, error) {
		if err := os.RemoveAll(config.SocketPath); err != nil {
			return nil, fmt.Errorf("failed to remove existing socket file: %w", err)
		}
		return net.Listen("unix", config.SocketPath)
	}
	return &ServerTransport{
		ListenerTransport: rpc.NewListenerTransport(listen, nil, config.MaxMessageSize),
		socketPath:        config.SocketPath,
	}
}

func (t *ServerTransport) Close() error {
	err := t.ListenerTransport.Close()
	os.RemoveAll(t.socketPath)
	return err
}

type ClientTransportConfig struct {
	SocketPath     string // Path to the Unix socket file
	MaxMessageSize uint32 // 0 for no limit
}

// ClientTransport implements rpc.ClientTransport for Unix sockets.
type ClientTransport struct {
	conf ClientTransportConfig
}

func NewClientTransport(config ClientTransportConfig) *ClientTransport {
	return &ClientTransport{
		conf: config,
	}
}

func (t *ClientTransport) Connect() (rpc.Connection, error) {
	conn, err := net.Dial("unix", t.conf.SocketPath)
	if err != nil {
		return nil, err
	}
	return rpc.NewStreamConnection(conn, t.conf.MaxMessageSize), nil
}
