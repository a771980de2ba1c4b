package websocket

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kbirk/abind/pkg/rpc"
)

const defaultPath = "/rpc"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WebSocketConnection implements rpc.Connection with one binary websocket
// message per frame.
type WebSocketConnection struct {
	conn           *websocket.Conn
	mu             *sync.Mutex
	maxMessageSize uint32
}

func newConnection(conn *websocket.Conn, maxMessageSize uint32) *WebSocketConnection {
	if maxMessageSize > 0 {
		conn.SetReadLimit(int64(maxMessageSize))
	}
	return &WebSocketConnection{
		conn:           conn,
		mu:             &sync.Mutex{},
		maxMessageSize: maxMessageSize,
	}
}

func (c *WebSocketConnection) Send(data []byte) error {
	if c.maxMessageSize > 0 && uint32(len(data)) > c.maxMessageSize {
		return fmt.Errorf("message size %d exceeds limit %d", len(data), c.maxMessageSize)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.conn.WriteMessage(websocket.BinaryMessage, data)
	if errors.Is(err, websocket.ErrCloseSent) || errors.Is(err, net.ErrClosed) {
		return rpc.ErrConnectionClosed
	}
	return err
}

func (c *WebSocketConnection) Receive() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || errors.Is(err, net.ErrClosed) {
			return nil, rpc.ErrConnectionClosed
		}
		return nil, err
	}
	return data, nil
}

func (c *WebSocketConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// a close frame first, so the peer sees a normal closure
	deadline := time.Now().Add(time.Second)
	err := c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		deadline,
	)

	closeErr := c.conn.Close()
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return err
	}
	return closeErr
}

type ServerTransportConfig struct {
	Host           string
	Port           int         // 0 picks a free port, see Port
	Path           string      // defaults to /rpc
	TLSConfig      *tls.Config // Optional
	MaxMessageSize uint32      // 0 for no limit
}

// ServerTransport implements rpc.ServerTransport for WebSocket.
type ServerTransport struct {
	conf     ServerTransportConfig
	server   *http.Server
	listener net.Listener
	connCh   chan rpc.Connection
	mu       *sync.Mutex
	closed   bool
}

func NewServerTransport(config ServerTransportConfig) *ServerTransport {
	if config.Path == "" {
		config.Path = defaultPath
	}
	return &ServerTransport{
		conf:   config,
		connCh: make(chan rpc.Connection, 16),
		mu:     &sync.Mutex{},
	}
}

func (t *ServerTransport) Listen() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return rpc.ErrTransportClosed
	}
	if t.server != nil {
		return fmt.Errorf("transport is already listening")
	}

	l, err := net.Listen("tcp", net.JoinHostPort(t.conf.Host, strconv.Itoa(t.conf.Port)))
	if err != nil {
		return err
	}
	if t.conf.TLSConfig != nil {
		l = tls.NewListener(l, t.conf.TLSConfig)
	}
	t.listener = l

	mux := http.NewServeMux()
	mux.HandleFunc(t.conf.Path, t.handleWebSocket)

	t.server = &http.Server{
		Handler: mux,
	}

	server := t.server
	go server.Serve(l)

	return nil
}

// Port returns the bound port, or 0 before Listen.
func (t *ServerTransport) Port() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return 0
	}
	if addr, ok := t.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

func (t *ServerTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		conn.Close()
		return
	}
	select {
	case t.connCh <- newConnection(conn, t.conf.MaxMessageSize):
	default:
		conn.Close()
	}
}

func (t *ServerTransport) Accept() (rpc.Connection, error) {
	conn, ok := <-t.connCh
	if !ok {
		return nil, rpc.ErrTransportClosed
	}
	return conn, nil
}

func (t *ServerTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	close(t.connCh)

	if t.server != nil {
		return t.server.Close()
	}
	return nil
}

type ClientTransportConfig struct {
	Host           string
	Port           int
	Path           string      // defaults to /rpc
	TLSConfig      *tls.Config // Optional, switches to wss
	MaxMessageSize uint32      // 0 for no limit
}

// ClientTransport implements rpc.ClientTransport for WebSocket.
type ClientTransport struct {
	conf ClientTransportConfig
}

func NewClientTransport(config ClientTransportConfig) *ClientTransport {
	if config.Path == "" {
		config.Path = defaultPath
	}
	return &ClientTransport{
		conf: config,
	}
}

func (t *ClientTransport) Connect() (rpc.Connection, error) {
	scheme := "ws"

	dialer := websocket.Dialer{}
	if t.conf.TLSConfig != nil {
		dialer.TLSClientConfig = t.conf.TLSConfig
		scheme = "wss"
	}

	u := url.URL{
		Scheme: scheme,
		Host:   net.JoinHostPort(t.conf.Host, strconv.Itoa(t.conf.Port)),
		Path:   t.conf.Path,
	}

	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}

	return newConnection(conn, t.conf.MaxMessageSize), nil
}
