package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/kbirk/abind/pkg/log"
	"github.com/kbirk/abind/pkg/serialize"
)

type Client struct {
	conf      ClientConfig
	mu        *sync.Mutex
	conn      Connection
	transport ClientTransport
	requests  map[uint64]chan *serialize.Reader
	requestID uint64
	closed    bool

	notifyMu      *sync.Mutex
	notifyHandler func([]byte) error
	queue         [][]byte
	queued        chan struct{}
	done          chan struct{}
}

type ClientConfig struct {
	Transport  ClientTransport
	ErrHandler func(error)
	middleware []Middleware
	Logger     log.Logger
}

func seedRequestID() uint64 {
	return uint64(rand.Uint32())<<32 + uint64(rand.Uint32())
}

func NewClient(conf ClientConfig) *Client {
	c := &Client{
		conf:      conf,
		transport: conf.Transport,
		mu:        &sync.Mutex{},
		requestID: seedRequestID(),
		requests:  make(map[uint64]chan *serialize.Reader),
		notifyMu:  &sync.Mutex{},
		queued:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	go c.dispatchNotifications()
	return c
}

func (c *Client) Middleware(middleware Middleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conf.middleware = append(c.conf.middleware, middleware)
}

func (c *Client) GetMiddleware() []Middleware {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Middleware(nil), c.conf.middleware...)
}

// OnNotification sets the function receiving server pushed payloads. They
// are delivered one at a time in arrival order.
func (c *Client) OnNotification(fn func(payload []byte) error) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.notifyHandler = fn
}

func (c *Client) reportError(err error) {
	c.logError("Encountered error: " + err.Error())
	if c.conf.ErrHandler != nil {
		c.conf.ErrHandler(err)
	}
}

// handleError drops the broken connection and fails every pending request.
func (c *Client) handleError(conn Connection, err error) error {

	c.reportError(err)

	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return err
	}
	c.conn.Close()
	c.conn = nil
	requests := c.requests
	c.requests = make(map[uint64]chan *serialize.Reader)
	c.mu.Unlock()

	for _, ch := range requests {
		ch <- nil
	}

	return err
}

func (c *Client) logDebug(msg string) {
	if c.conf.Logger != nil {
		c.conf.Logger.Debug(msg)
	}
}

func (c *Client) logInfo(msg string) {
	if c.conf.Logger != nil {
		c.conf.Logger.Info(msg)
	}
}

func (c *Client) logWarn(msg string) {
	if c.conf.Logger != nil {
		c.conf.Logger.Warn(msg)
	}
}

func (c *Client) logError(msg string) {
	if c.conf.Logger != nil {
		c.conf.Logger.Error(msg)
	}
}

// Connect establishes the connection ahead of the first request.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectUnsafe()
}

func (c *Client) connectUnsafe() error {
	if c.closed {
		return ErrClientClosed
	}
	if c.conn != nil {
		return nil
	}

	c.logDebug("Connecting to server")
	conn, err := c.transport.Connect()
	if err != nil {
		return err
	}
	c.conn = conn

	go c.receiveLoop(conn)

	return nil
}

func (c *Client) receiveLoop(conn Connection) {
	for {
		bs, err := conn.Receive()
		if err != nil {
			if errors.Is(err, ErrConnectionClosed) {
				c.logDebug("Connection closed normally")
				c.failPending(conn)
				return
			}
			c.handleError(conn, err)
			return
		}

		reader := serialize.NewReader(bs)

		var prefix [16]byte
		err = DeserializePrefix(&prefix, reader)
		if err != nil {
			c.handleError(conn, err)
			return
		}

		switch prefix {
		case ResponsePrefix:
			var requestID uint64
			err = serialize.DeserializeUInt64(&requestID, reader)
			if err != nil {
				c.handleError(conn, err)
				return
			}

			c.mu.Lock()
			ch, ok := c.requests[requestID]
			delete(c.requests, requestID)
			c.mu.Unlock()

			if !ok {
				// the caller gave up on this request
				c.logWarn(fmt.Sprintf("Dropped response to unknown request id: %d", requestID))
				continue
			}
			ch <- reader

		case NotificationPrefix:
			var payload []byte
			err = serialize.DeserializeBytes(&payload, reader)
			if err != nil {
				c.handleError(conn, err)
				return
			}
			c.enqueue(payload)

		default:
			c.handleError(conn, fmt.Errorf("unexpected prefix: %v", prefix))
			return
		}
	}
}

func (c *Client) failPending(conn Connection) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	requests := c.requests
	c.requests = make(map[uint64]chan *serialize.Reader)
	c.mu.Unlock()

	for _, ch := range requests {
		ch <- nil
	}
}

func (c *Client) enqueue(payload []byte) {
	c.notifyMu.Lock()
	c.queue = append(c.queue, payload)
	c.notifyMu.Unlock()

	select {
	case c.queued <- struct{}{}:
	default:
	}
}

func (c *Client) dispatchNotifications() {
	for {
		select {
		case <-c.done:
			return
		case <-c.queued:
		}

		for {
			c.notifyMu.Lock()
			if len(c.queue) == 0 {
				c.notifyMu.Unlock()
				break
			}
			payload := c.queue[0]
			c.queue = c.queue[1:]
			handler := c.notifyHandler
			c.notifyMu.Unlock()

			if handler == nil {
				c.logWarn("Dropped notification without handler")
				continue
			}
			if err := handler(payload); err != nil {
				c.reportError(err)
			}
		}
	}
}

func (c *Client) sendMessage(ctx context.Context, payload []byte) (uint64, chan *serialize.Reader, error) {

	c.mu.Lock()
	err := c.connectUnsafe()
	if err != nil {
		c.mu.Unlock()
		return 0, nil, err
	}

	requestID := c.requestID
	c.requestID++

	ch := make(chan *serialize.Reader, 1)
	c.requests[requestID] = ch
	conn := c.conn
	c.mu.Unlock()

	err = conn.Send(encodeRequest(ctx, requestID, payload))
	if err != nil {
		c.mu.Lock()
		delete(c.requests, requestID)
		c.mu.Unlock()
		return 0, nil, c.handleError(conn, err)
	}

	return requestID, ch, nil
}

func (c *Client) receiveMessage(ctx context.Context, requestID uint64, ch chan *serialize.Reader) ([]byte, error) {
	select {
	case reader := <-ch:
		if reader == nil {
			return nil, ErrConnectionClosed
		}
		return decodeResponse(reader)
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.requests, requestID)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Request sends payload and waits for the response or for ctx to end.
func (c *Client) Request(ctx context.Context, payload []byte) ([]byte, error) {
	return ApplyHandlerChain(ctx, payload, c.GetMiddleware(), func(ctx context.Context, req []byte) ([]byte, error) {
		requestID, ch, err := c.sendMessage(ctx, req)
		if err != nil {
			return nil, err
		}
		return c.receiveMessage(ctx, requestID, ch)
	})
}

// Close closes the connection and stops notification delivery.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	close(c.done)

	if conn != nil {
		conn.Close()
		c.failPending(conn)
	}
	return nil
}
