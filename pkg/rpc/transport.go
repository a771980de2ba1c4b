package rpc

// Connection represents a bidirectional, message oriented channel
type Connection interface {
	// Send sends one message to the remote peer. It is safe for concurrent use.
	Send(data []byte) error

	// Receive blocks until a message is received from the remote peer.
	// A closed connection reports ErrConnectionClosed.
	Receive() ([]byte, error)

	// Close closes the connection
	Close() error
}

// ServerTransport handles incoming connections for the server
type ServerTransport interface {
	// Listen starts listening for incoming connections
	Listen() error

	// Accept blocks until a new connection is available. A closed
	// transport reports ErrTransportClosed.
	Accept() (Connection, error)

	// Close stops listening and closes the transport
	Close() error
}

// ClientTransport handles outgoing connections for the client
type ClientTransport interface {
	// Connect establishes a connection to the server
	Connect() (Connection, error)
}
