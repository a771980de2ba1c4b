// Package jsonrpc exposes a Recipient as a JSON-RPC 2.0 service over HTTP.
// Binding.Request carries binding requests; Binding.Poll long-polls the
// notifications queued for the calling session.
package jsonrpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"

	"github.com/kbirk/abind/pkg/log"
	"github.com/kbirk/abind/pkg/recipient"
)

const (
	ServiceName = "Binding"

	defaultQueueSize      = 1024
	defaultMaxPollWait    = 30 * time.Second
	defaultSessionTimeout = 2 * time.Minute
)

var ErrMissingSession = errors.New("missing session id")

type RequestArgs struct {
	Session string          `json:"session"`
	Payload json.RawMessage `json:"payload"`
}

type RequestReply struct {
	Payload json.RawMessage `json:"payload"`
}

type PollArgs struct {
	Session string `json:"session"`
	// WaitMillis is how long to wait for a first notification. It is capped
	// by the server.
	WaitMillis int64 `json:"waitMillis"`
}

type PollReply struct {
	Notifications []json.RawMessage `json:"notifications"`
}

type ServerConfig struct {
	Recipient *recipient.Recipient
	// QueueSize bounds the notifications held per session. Defaults to 1024.
	QueueSize int
	// MaxPollWait caps a single Poll. Defaults to 30s.
	MaxPollWait time.Duration
	// SessionTimeout ends sessions that neither request nor poll for this
	// long, dropping their subscriptions. Defaults to 2m.
	SessionTimeout time.Duration
	Logger         log.Logger
}

type session struct {
	*recipient.Queue
	id       string
	lastSeen time.Time
}

// BindingService is the receiver registered with gorilla/rpc.
type BindingService struct {
	conf     ServerConfig
	mu       *sync.Mutex
	sessions map[string]*session
	now      func() time.Time
}

func NewBindingService(conf ServerConfig) *BindingService {
	if conf.QueueSize <= 0 {
		conf.QueueSize = defaultQueueSize
	}
	if conf.MaxPollWait <= 0 {
		conf.MaxPollWait = defaultMaxPollWait
	}
	if conf.SessionTimeout <= 0 {
		conf.SessionTimeout = defaultSessionTimeout
	}
	return &BindingService{
		conf:     conf,
		mu:       &sync.Mutex{},
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

// NewHandler returns an http.Handler serving the service with the JSON-RPC
// 2.0 codec.
func NewHandler(service *BindingService) http.Handler {
	server := rpc.NewServer()
	server.RegisterCodec(json2.NewCodec(), "application/json")
	server.RegisterCodec(json2.NewCodec(), "application/json;charset=UTF-8")
	if err := server.RegisterService(service, ServiceName); err != nil {
		panic(err)
	}
	return server
}

func (s *BindingService) logDebug(msg string) {
	if s.conf.Logger != nil {
		s.conf.Logger.Debug(msg)
	}
}

// session returns the live session for id and expires idle ones.
func (s *BindingService) session(id string) (*session, error) {
	if id == "" {
		return nil, ErrMissingSession
	}

	now := s.now()

	s.mu.Lock()
	var expired []*session
	for key, sess := range s.sessions {
		if key != id && now.Sub(sess.lastSeen) > s.conf.SessionTimeout {
			expired = append(expired, sess)
			delete(s.sessions, key)
		}
	}
	sess, ok := s.sessions[id]
	if !ok {
		sess = &session{
			Queue: recipient.NewQueue(s.conf.QueueSize, s.conf.Logger),
			id:    id,
		}
		s.sessions[id] = sess
	}
	sess.lastSeen = now
	s.mu.Unlock()

	for _, e := range expired {
		s.conf.Recipient.DropCallback(e)
		s.logDebug(fmt.Sprintf("Expired session %s", e.id))
	}
	return sess, nil
}

// Sessions returns the number of live sessions.
func (s *BindingService) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close ends every session.
func (s *BindingService) Close() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	for _, sess := range sessions {
		s.conf.Recipient.DropCallback(sess)
	}
}

func (s *BindingService) Request(r *http.Request, args *RequestArgs, reply *RequestReply) error {
	sess, err := s.session(args.Session)
	if err != nil {
		return err
	}

	out, err := s.conf.Recipient.Request(r.Context(), args.Payload, sess)
	if err != nil {
		return err
	}
	reply.Payload = out
	return nil
}

func (s *BindingService) Poll(r *http.Request, args *PollArgs, reply *PollReply) error {
	sess, err := s.session(args.Session)
	if err != nil {
		return err
	}

	wait := time.Duration(args.WaitMillis) * time.Millisecond
	if wait > s.conf.MaxPollWait {
		wait = s.conf.MaxPollWait
	}

	if sess.Len() == 0 && wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()

		select {
		case <-sess.Ready():
		case <-timer.C:
		case <-r.Context().Done():
		}
	}

	items := sess.Drain()
	reply.Notifications = make([]json.RawMessage, len(items))
	for i, item := range items {
		reply.Notifications[i] = item
	}
	return nil
}
