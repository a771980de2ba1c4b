package rpc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

// StreamConnection frames messages over a stream oriented net.Conn with a
// 4 byte big endian length prefix.
type StreamConnection struct {
	conn           net.Conn
	mu             *sync.Mutex
	maxMessageSize uint32
}

// NewStreamConnection wraps conn. A maxMessageSize of 0 means no limit.
func NewStreamConnection(conn net.Conn, maxMessageSize uint32) *StreamConnection {
	return &StreamConnection{
		conn:           conn,
		mu:             &sync.Mutex{},
		maxMessageSize: maxMessageSize,
	}
}

func (c *StreamConnection) Send(data []byte) error {
	if c.maxMessageSize > 0 && uint32(len(data)) > c.maxMessageSize {
		return fmt.Errorf("message size %d exceeds limit %d", len(data), c.maxMessageSize)
	}

	frame := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(frame, uint32(len(data)))
	copy(frame[4:], data)

	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.conn.Write(frame)
	return err
}

func (c *StreamConnection) Receive() ([]byte, error) {
	header := make([]byte, 4)
	if _, err := io.ReadFull(c.conn, header); err != nil {
		return nil, closedOr(err)
	}
	length := binary.BigEndian.Uint32(header)
	if c.maxMessageSize > 0 && length > c.maxMessageSize {
		return nil, fmt.Errorf("message size %d exceeds limit %d", length, c.maxMessageSize)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(c.conn, data); err != nil {
		return nil, closedOr(err)
	}
	return data, nil
}

func (c *StreamConnection) Close() error {
	return c.conn.Close()
}

func (c *StreamConnection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func closedOr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return ErrConnectionClosed
	}
	return err
}

// ListenerTransport is a ServerTransport over any net.Listener producing
// stream connections.
type ListenerTransport struct {
	listen         func() (net.Listener, error)
	prepare        func(net.Conn) error
	maxMessageSize uint32
	listener       net.Listener
	connCh         chan Connection
	mu             *sync.Mutex
	closed         bool
}

// NewListenerTransport creates a transport that obtains its listener from
// listen. prepare, if set, runs on every accepted connection.
func NewListenerTransport(listen func() (net.Listener, error), prepare func(net.Conn) error, maxMessageSize uint32) *ListenerTransport {
	return &ListenerTransport{
		listen:         listen,
		prepare:        prepare,
		maxMessageSize: maxMessageSize,
		connCh:         make(chan Connection, 16),
		mu:             &sync.Mutex{},
	}
}

func (t *ListenerTransport) Listen() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrTransportClosed
	}
	if t.listener != nil {
		return fmt.Errorf("transport is already listening")
	}

	l, err := t.listen()
	if err != nil {
		return err
	}
	t.listener = l

	go t.acceptLoop(l)

	return nil
}

// Addr returns the bound address, or nil before Listen.
func (t *ListenerTransport) Addr() net.Addr {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *ListenerTransport) acceptLoop(l net.Listener) {
	for {
		conn, err := l.Accept()
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if closed || errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}

		if t.prepare != nil {
			if err := t.prepare(conn); err != nil {
				conn.Close()
				continue
			}
		}

		t.mu.Lock()
		if !t.closed {
			select {
			case t.connCh <- NewStreamConnection(conn, t.maxMessageSize):
			default:
				conn.Close()
			}
		} else {
			conn.Close()
		}
		t.mu.Unlock()
	}
}

func (t *ListenerTransport) Accept() (Connection, error) {
	conn, ok := <-t.connCh
	if !ok {
		return nil, ErrTransportClosed
	}
	return conn, nil
}

func (t *ListenerTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	close(t.connCh)

	if t.listener != nil {
		return t.listener.Close()
	}
	return nil
}
