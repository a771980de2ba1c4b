package jsonrpc

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/rpc/v2/json2"

	"github.com/kbirk/abind/pkg/log"
	"github.com/kbirk/abind/pkg/sender"
)

const (
	defaultPollWait     = 10 * time.Second
	defaultRetryBackoff = 500 * time.Millisecond
)

type ClientConfig struct {
	URL        string
	HTTPClient *http.Client
	// Session defaults to a random id.
	Session string
	// PollWait is how long each Poll asks the server to wait. Defaults to 10s.
	PollWait   time.Duration
	ErrHandler func(error)
	Logger     log.Logger
}

// Client calls the Binding service. It satisfies sender.Client.
type Client struct {
	conf ClientConfig
}

func NewClient(conf ClientConfig) *Client {
	if conf.HTTPClient == nil {
		conf.HTTPClient = http.DefaultClient
	}
	if conf.Session == "" {
		conf.Session = newSessionID()
	}
	if conf.PollWait <= 0 {
		conf.PollWait = defaultPollWait
	}
	return &Client{
		conf: conf,
	}
}

func newSessionID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

func (c *Client) Session() string {
	return c.conf.Session
}

func (c *Client) reportError(err error) {
	if c.conf.Logger != nil {
		c.conf.Logger.Error("Encountered error: " + err.Error())
	}
	if c.conf.ErrHandler != nil {
		c.conf.ErrHandler(err)
	}
}

// cleanlyCloseBody drains body so the connection can be reused.
func cleanlyCloseBody(body io.ReadCloser) error {
	if body == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, body)
	return body.Close()
}

func (c *Client) call(ctx context.Context, method string, args any, reply any) error {
	body, err := json2.EncodeClientRequest(method, args)
	if err != nil {
		return fmt.Errorf("failed to encode client params: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.conf.URL, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	resp, err := c.conf.HTTPClient.Do(request)
	if err != nil {
		return fmt.Errorf("failed to issue request: %w", err)
	}
	defer cleanlyCloseBody(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("received status code: %d", resp.StatusCode)
	}

	if err := json2.DecodeClientResponse(resp.Body, reply); err != nil {
		return fmt.Errorf("failed to decode client response: %w", err)
	}
	return nil
}

func (c *Client) Request(ctx context.Context, data []byte) ([]byte, error) {
	reply := &RequestReply{}
	err := c.call(ctx, ServiceName+".Request", &RequestArgs{
		Session: c.conf.Session,
		Payload: data,
	}, reply)
	if err != nil {
		return nil, err
	}
	return reply.Payload, nil
}

// Poll returns the notifications queued for this session, waiting up to
// the configured PollWait for the first one.
func (c *Client) Poll(ctx context.Context) ([][]byte, error) {
	reply := &PollReply{}
	err := c.call(ctx, ServiceName+".Poll", &PollArgs{
		Session:    c.conf.Session,
		WaitMillis: c.conf.PollWait.Milliseconds(),
	}, reply)
	if err != nil {
		return nil, err
	}
	items := make([][]byte, len(reply.Notifications))
	for i, n := range reply.Notifications {
		items[i] = n
	}
	return items, nil
}

// Listen polls until ctx is done, handing every notification to fn in
// arrival order. Failed polls are reported and retried after a pause.
func (c *Client) Listen(ctx context.Context, fn func([]byte) error) error {
	for {
		items, err := c.Poll(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			c.reportError(err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(defaultRetryBackoff):
			}
			continue
		}
		for _, item := range items {
			if err := fn(item); err != nil {
				c.reportError(err)
			}
		}
	}
}

// AttachSender polls in the background, feeding s until ctx is done.
func AttachSender(ctx context.Context, client *Client, s *sender.Sender) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- client.Listen(ctx, s.HandleNotification)
	}()
	return done
}

var _ sender.Client = (*Client)(nil)
