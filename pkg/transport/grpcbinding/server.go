package grpcbinding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/kbirk/abind/pkg/log"
	"github.com/kbirk/abind/pkg/recipient"
)

const (
	defaultQueueSize      = 1024
	defaultSessionTimeout = 2 * time.Minute
)

type ServerConfig struct {
	Recipient *recipient.Recipient
	// QueueSize bounds the notifications held for a client that is not
	// listening. The oldest are dropped first. Defaults to 1024.
	QueueSize int
	// SessionTimeout ends sessions that are not listening and have not made
	// a request for this long, dropping their subscriptions. Defaults to 2m.
	SessionTimeout time.Duration
	Logger         log.Logger
}

// Server implements BindingServer.
type Server struct {
	conf     ServerConfig
	mu       *sync.Mutex
	sessions map[string]*session
	now      func() time.Time
}

func NewServer(conf ServerConfig) *Server {
	if conf.QueueSize <= 0 {
		conf.QueueSize = defaultQueueSize
	}
	if conf.SessionTimeout <= 0 {
		conf.SessionTimeout = defaultSessionTimeout
	}
	return &Server{
		conf:     conf,
		mu:       &sync.Mutex{},
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

func (s *Server) logDebug(msg string) {
	if s.conf.Logger != nil {
		s.conf.Logger.Debug(msg)
	}
}

// Register adds the service to g.
func (s *Server) Register(g *grpc.Server) {
	g.RegisterService(&ServiceDesc, s)
}

// Serve runs a new grpc.Server on lis until ctx is done. Stopping cancels
// the open Listen streams.
func (s *Server) Serve(ctx context.Context, lis net.Listener, opts ...grpc.ServerOption) error {
	g := grpc.NewServer(opts...)
	s.Register(g)

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		err := g.Serve(lis)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-gctx.Done()
		g.Stop()
		return nil
	})
	return group.Wait()
}

func clientID(ctx context.Context) (string, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	ids := md.Get(ClientIDKey)
	if len(ids) == 0 || ids[0] == "" {
		return "", status.Errorf(codes.InvalidArgument, "missing %s metadata", ClientIDKey)
	}
	return ids[0], nil
}

// session returns the session for id and ends idle sessions that are not
// listening.
func (s *Server) session(id string) *session {
	now := s.now()

	s.mu.Lock()
	var expired []*session
	for key, sess := range s.sessions {
		if key != id && !sess.isListening() && now.Sub(sess.lastSeen) > s.conf.SessionTimeout {
			expired = append(expired, sess)
			delete(s.sessions, key)
		}
	}
	sess, ok := s.sessions[id]
	if !ok {
		sess = newSession(id, s.conf.QueueSize, s.conf.Logger)
		s.sessions[id] = sess
	}
	sess.lastSeen = now
	s.mu.Unlock()

	for _, e := range expired {
		s.conf.Recipient.DropCallback(e)
		s.logDebug(fmt.Sprintf("Expired session %s", e.id))
	}
	return sess
}

// Sessions returns the number of live sessions.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) closeSession(sess *session) {
	s.mu.Lock()
	if s.sessions[sess.id] == sess {
		delete(s.sessions, sess.id)
	}
	s.mu.Unlock()

	s.conf.Recipient.DropCallback(sess)
	s.logDebug(fmt.Sprintf("Closed session %s", sess.id))
}

func (s *Server) Request(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	id, err := clientID(ctx)
	if err != nil {
		return nil, err
	}

	out, err := s.conf.Recipient.Request(ctx, in.GetValue(), s.session(id))
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return wrapperspb.Bytes(out), nil
}

// Listen streams the client's notifications until the client goes away.
// The client's subscriptions end with the stream.
func (s *Server) Listen(_ *emptypb.Empty, stream grpc.ServerStreamingServer[wrapperspb.BytesValue]) error {
	ctx := stream.Context()
	id, err := clientID(ctx)
	if err != nil {
		return err
	}

	sess := s.session(id)
	if !sess.listen() {
		return status.Errorf(codes.AlreadyExists, "client %s is already listening", id)
	}
	defer s.closeSession(sess)

	s.logDebug(fmt.Sprintf("Client %s listening", id))

	for {
		for _, data := range sess.Drain() {
			if err := stream.Send(wrapperspb.Bytes(data)); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-sess.Ready():
		}
	}
}

// session ties the requests and the notification stream of one client
// together. The session itself is the Callback the recipient sees.
type session struct {
	*recipient.Queue
	id        string
	lastSeen  time.Time
	mu        *sync.Mutex
	listening bool
}

func newSession(id string, size int, logger log.Logger) *session {
	return &session{
		Queue: recipient.NewQueue(size, logger),
		id:    id,
		mu:    &sync.Mutex{},
	}
}

func (s *session) listen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listening {
		return false
	}
	s.listening = true
	return true
}

func (s *session) isListening() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listening
}
