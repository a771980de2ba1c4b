package rpc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kbirk/abind/pkg/log"
	"github.com/kbirk/abind/pkg/serialize"
)

// Peer is one connected client as seen by the server.
type Peer interface {
	ID() uint64
	// Notify pushes a payload to the client outside of any request.
	Notify(payload []byte) error
}

// RequestHandler serves the requests of every peer.
type RequestHandler interface {
	HandleRequest(ctx context.Context, peer Peer, payload []byte) ([]byte, error)
	// PeerClosed is called once the peer's connection is gone.
	PeerClosed(peer Peer)
}

type Server struct {
	conf       ServerConfig
	transport  ServerTransport
	handler    RequestHandler
	middleware []Middleware
	peers      map[uint64]*serverPeer
	nextPeerID uint64
	listening  bool
	running    bool
	mu         *sync.Mutex
}

type ServerConfig struct {
	Transport  ServerTransport
	ErrHandler func(error)
	Logger     log.Logger
}

type serverPeer struct {
	id   uint64
	conn Connection
}

func (p *serverPeer) ID() uint64 {
	return p.id
}

func (p *serverPeer) Notify(payload []byte) error {
	return p.conn.Send(encodeNotification(payload))
}

func NewServer(conf ServerConfig) *Server {
	return &Server{
		conf:      conf,
		transport: conf.Transport,
		peers:     make(map[uint64]*serverPeer),
		mu:        &sync.Mutex{},
	}
}

func (s *Server) handleError(err error) {
	if errors.Is(err, ErrConnectionClosed) {
		s.logInfo("Client disconnected")
		return
	}
	s.logError("Encountered error: " + err.Error())
	if s.conf.ErrHandler != nil {
		s.conf.ErrHandler(err)
	}
}

func (s *Server) logDebug(msg string) {
	if s.conf.Logger != nil {
		s.conf.Logger.Debug(msg)
	}
}

func (s *Server) logInfo(msg string) {
	if s.conf.Logger != nil {
		s.conf.Logger.Info(msg)
	}
}

func (s *Server) logWarn(msg string) {
	if s.conf.Logger != nil {
		s.conf.Logger.Warn(msg)
	}
}

func (s *Server) logError(msg string) {
	if s.conf.Logger != nil {
		s.conf.Logger.Error(msg)
	}
}

func (s *Server) RegisterHandler(handler RequestHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handler != nil {
		panic("request handler already registered")
	}
	s.handler = handler
}

func (s *Server) Middleware(m Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middleware = append(s.middleware, m)
}

// Peers returns the number of connected peers.
func (s *Server) Peers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

func (s *Server) handleConnection(conn Connection) {
	s.mu.Lock()
	s.nextPeerID++
	peer := &serverPeer{
		id:   s.nextPeerID,
		conn: conn,
	}
	s.peers[peer.id] = peer
	handler := s.handler
	s.mu.Unlock()

	s.logDebug(fmt.Sprintf("Peer %d connected", peer.id))

	defer func() {
		conn.Close()

		s.mu.Lock()
		delete(s.peers, peer.id)
		s.mu.Unlock()

		if handler != nil {
			handler.PeerClosed(peer)
		}
		s.logDebug(fmt.Sprintf("Peer %d disconnected", peer.id))
	}()

	for {
		bs, err := conn.Receive()
		if err != nil {
			s.handleError(err)
			return
		}

		reader := serialize.NewReader(bs)

		var prefix [16]byte
		err = DeserializePrefix(&prefix, reader)
		if err != nil {
			s.handleError(err)
			continue
		}

		if prefix != RequestPrefix {
			s.handleError(fmt.Errorf("unexpected prefix: %v", prefix))
			continue
		}

		go s.handleRequest(peer, handler, reader)
	}
}

func (s *Server) handleRequest(peer *serverPeer, handler RequestHandler, reader *serialize.Reader) {
	// get the context
	ctx := context.Background()
	err := DeserializeContext(&ctx, reader)
	if err != nil {
		s.handleError(err)
		return
	}

	// get the request id
	var requestID uint64
	err = serialize.DeserializeUInt64(&requestID, reader)
	if err != nil {
		s.handleError(err)
		return
	}

	var payload []byte
	err = serialize.DeserializeBytes(&payload, reader)
	if err != nil {
		s.handleError(err)
		return
	}

	s.mu.Lock()
	middleware := append([]Middleware(nil), s.middleware...)
	s.mu.Unlock()

	ctx = newContextWithPeer(ctx, peer)

	resp, err := ApplyHandlerChain(ctx, payload, middleware, func(ctx context.Context, req []byte) ([]byte, error) {
		if handler == nil {
			return nil, errors.New("no request handler registered")
		}
		return handler.HandleRequest(ctx, peer, req)
	})

	var bs []byte
	if err != nil {
		bs = RespondWithError(requestID, err)
	} else {
		bs = RespondWithMessage(requestID, resp)
	}

	err = peer.conn.Send(bs)
	if err != nil {
		s.handleError(err)
		return
	}
}

// Listen binds the transport without accepting connections yet.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listening {
		return nil
	}
	err := s.transport.Listen()
	if err != nil {
		return err
	}
	s.listening = true
	return nil
}

func (s *Server) ListenAndServe() error {
	err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve()
}

// Serve accepts connections until Shutdown. Listen must have succeeded.
func (s *Server) Serve() error {
	s.mu.Lock()
	if !s.listening {
		s.mu.Unlock()
		return fmt.Errorf("server is not listening")
	}
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	s.logInfo("Starting server")

	for {
		conn, err := s.transport.Accept()
		if err != nil {
			// a closed transport means shutdown
			if errors.Is(err, ErrTransportClosed) {
				break
			}
			s.handleError(err)
			continue
		}

		go s.handleConnection(conn)
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	return nil
}

// Shutdown stops accepting connections and closes every connected peer.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	peers := make([]*serverPeer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	err := s.transport.Close()

	for _, p := range peers {
		p.conn.Close()
	}

	if ctxErr := ctx.Err(); ctxErr != nil && err == nil {
		err = ctxErr
	}
	return err
}
