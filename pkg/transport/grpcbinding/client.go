package grpcbinding

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/kbirk/abind/pkg/log"
	"github.com/kbirk/abind/pkg/sender"
)

type ClientConfig struct {
	Conn grpc.ClientConnInterface
	// ClientID defaults to a random id.
	ClientID   string
	ErrHandler func(error)
	Logger     log.Logger
}

// Client calls abind.Binding. It satisfies sender.Client.
type Client struct {
	conf ClientConfig
	id   string
}

func NewClient(conf ClientConfig) *Client {
	id := conf.ClientID
	if id == "" {
		id = newClientID()
	}
	return &Client{
		conf: conf,
		id:   id,
	}
}

func newClientID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) logDebug(msg string) {
	if c.conf.Logger != nil {
		c.conf.Logger.Debug(msg)
	}
}

func (c *Client) reportError(err error) {
	if c.conf.Logger != nil {
		c.conf.Logger.Error("Encountered error: " + err.Error())
	}
	if c.conf.ErrHandler != nil {
		c.conf.ErrHandler(err)
	}
}

func (c *Client) outgoing(ctx context.Context) context.Context {
	return metadata.AppendToOutgoingContext(ctx, ClientIDKey, c.id)
}

func (c *Client) Request(ctx context.Context, data []byte) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	err := c.conf.Conn.Invoke(c.outgoing(ctx), RequestMethod, wrapperspb.Bytes(data), out)
	if err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}

// Listen opens the notification stream and hands every payload to fn in
// arrival order. It returns nil once ctx is done or the server ends the
// stream. Errors from fn are reported and do not end the stream.
func (c *Client) Listen(ctx context.Context, fn func([]byte) error) error {
	stream, err := c.conf.Conn.NewStream(c.outgoing(ctx), listenStreamDesc, ListenMethod)
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}

	c.logDebug(fmt.Sprintf("Client %s listening", c.id))

	for {
		in := new(wrapperspb.BytesValue)
		err := stream.RecvMsg(in)
		if err != nil {
			if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := fn(in.GetValue()); err != nil {
			c.reportError(err)
		}
	}
}

// AttachSender listens in the background, feeding s until ctx is done. The
// returned channel yields the listen result once.
func AttachSender(ctx context.Context, client *Client, s *sender.Sender) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- client.Listen(ctx, s.HandleNotification)
	}()
	return done
}

var _ sender.Client = (*Client)(nil)
