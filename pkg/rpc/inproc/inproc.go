// Package inproc connects a client and a server inside one process over
// paired channels. It is mostly useful for tests and for embedding a
// recipient next to its sender.
package inproc

import (
	"errors"
	"sync"

	"github.com/kbirk/abind/pkg/rpc"
)

type connection struct {
	receiver     chan []byte
	disconnected chan struct{}
	once         *sync.Once
	remote       *connection
}

func newPair() (*connection, *connection) {
	local := &connection{receiver: make(chan []byte), disconnected: make(chan struct{}), once: &sync.Once{}}
	remote := &connection{receiver: make(chan []byte), disconnected: make(chan struct{}), once: &sync.Once{}}
	local.remote = remote
	remote.remote = local
	return local, remote
}

func (c *connection) Send(data []byte) error {
	select {
	case <-c.disconnected:
		return rpc.ErrConnectionClosed
	case c.remote.receiver <- data:
		return nil
	}
}

func (c *connection) Receive() ([]byte, error) {
	select {
	case <-c.disconnected:
		return nil, rpc.ErrConnectionClosed
	case data := <-c.receiver:
		return data, nil
	}
}

func (c *connection) Close() error {
	c.once.Do(func() {
		close(c.disconnected)
		c.remote.Close()
	})
	return nil
}

// Listener is both the server transport and the factory for client
// transports dialing it.
type Listener struct {
	connCh    chan rpc.Connection
	mu        *sync.Mutex
	listening bool
	closed    bool
}

func NewListener() *Listener {
	return &Listener{
		connCh: make(chan rpc.Connection, 16),
		mu:     &sync.Mutex{},
	}
}

func (l *Listener) Listen() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return rpc.ErrTransportClosed
	}
	l.listening = true
	return nil
}

func (l *Listener) Accept() (rpc.Connection, error) {
	conn, ok := <-l.connCh
	if !ok {
		return nil, rpc.ErrTransportClosed
	}
	return conn, nil
}

func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	close(l.connCh)
	return nil
}

// Connect implements rpc.ClientTransport.
func (l *Listener) Connect() (rpc.Connection, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed || !l.listening {
		return nil, rpc.ErrTransportClosed
	}

	local, remote := newPair()
	select {
	case l.connCh <- remote:
		return local, nil
	default:
		return nil, errors.New("listener backlog is full")
	}
}
