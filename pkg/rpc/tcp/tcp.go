package tcp

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/kbirk/abind/pkg/rpc"
)

// setNoDelay sets TCP_NODELAY, looking through a TLS wrapper if needed.
func setNoDelay(conn net.Conn, noDelay bool) error {
	if tlsConn, ok := conn.(*tls.Conn); ok {
		conn = tlsConn.NetConn()
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		return tcpConn.SetNoDelay(noDelay)
	}
	return nil
}

type ServerTransportConfig struct {
	Host           string
	Port           int         // 0 picks a free port, see Addr
	NoDelay        bool        // Disable Nagle's algorithm for better latency
	TLSConfig      *tls.Config // Optional
	MaxMessageSize uint32      // 0 for no limit
}

// ServerTransport implements rpc.ServerTransport for TCP, optionally over TLS.
type ServerTransport struct {
	*rpc.ListenerTransport
}

func NewServerTransport(config ServerTransportConfig) *ServerTransport {
	address := net.JoinHostPort(config.Host, strconv.Itoa(config.Port))
	listen := func() (net.Listener, error) {
		if config.TLSConfig != nil {
			return tls.Listen("tcp", address, config.TLSConfig)
		}
		return net.Listen("tcp", address)
	}
	prepare := func(conn net.Conn) error {
		return setNoDelay(conn, config.NoDelay)
	}
	return &ServerTransport{
		ListenerTransport: rpc.NewListenerTransport(listen, prepare, config.MaxMessageSize),
	}
}

// Port returns the bound port, or 0 before Listen.
func (t *ServerTransport) Port() int {
	if addr, ok := t.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

type ClientTransportConfig struct {
	Host           string
	Port           int
	NoDelay        bool        // Disable Nagle's algorithm for better latency
	TLSConfig      *tls.Config // Optional
	MaxMessageSize uint32      // 0 for no limit
}

// ClientTransport implements rpc.ClientTransport for TCP.
type ClientTransport struct {
	conf ClientTransportConfig
}

func NewClientTransport(config ClientTransportConfig) *ClientTransport {
	return &ClientTransport{
		conf: config,
	}
}

func (t *ClientTransport) Connect() (rpc.Connection, error) {
	address := net.JoinHostPort(t.conf.Host, strconv.Itoa(t.conf.Port))

	var conn net.Conn
	var err error
	if t.conf.TLSConfig != nil {
		conn, err = tls.Dial("tcp", address, t.conf.TLSConfig)
	} else {
		conn, err = net.Dial("tcp", address)
	}
	if err != nil {
		return nil, err
	}

	if err := setNoDelay(conn, t.conf.NoDelay); err != nil {
		conn.Close()
		return nil, err
	}

	return rpc.NewStreamConnection(conn, t.conf.MaxMessageSize), nil
}

// LoadServerTLSConfig loads a PEM certificate and key pair.
func LoadServerTLSConfig(certFile string, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// LoadClientTLSConfig trusts the PEM encoded CA in caFile. An empty caFile
// uses the system pool.
func LoadClientTLSConfig(caFile string, insecureSkipVerify bool) (*tls.Config, error) {
	config := &tls.Config{
		InsecureSkipVerify: insecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}
	if caFile == "" {
		return config, nil
	}

	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}
	config.RootCAs = pool
	return config, nil
}
