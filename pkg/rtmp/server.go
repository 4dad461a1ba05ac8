package rtmp

import (
	"io"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/aminofox/rtmplink/pkg/errors"
	"github.com/aminofox/rtmplink/pkg/logger"
)

// SessionState represents the per-connection server state
type SessionState int

const (
	// StateWaitingC1 is before the client's version byte and first
	// handshake packet have arrived
	StateWaitingC1 SessionState = iota

	// StateWaitingC2 is after S0/S1/S2 were sent, before the client's
	// echo packet
	StateWaitingC2

	// StateWaitingCommandConnect is after the handshake, before the
	// NetConnection connect command
	StateWaitingCommandConnect

	// StateWaitingData is the steady state after the connect exchange
	StateWaitingData
)

// String returns the string representation of the session state
func (s SessionState) String() string {
	switch s {
	case StateWaitingC1:
		return "WaitingC1"
	case StateWaitingC2:
		return "WaitingC2"
	case StateWaitingCommandConnect:
		return "WaitingCommandConnect"
	case StateWaitingData:
		return "WaitingData"
	default:
		return "Unknown"
	}
}

// MessageHandler processes messages arriving on an established connection
type MessageHandler func(conn *ServerConn, msg Message) error

// Server accepts RTMP client connections. Each connection runs its own
// session goroutine; sessions share no state.
type Server struct {
	addr     string
	listener net.Listener
	logger   logger.Logger
	mu       sync.RWMutex
	conns    map[string]*ServerConn
	handler  MessageHandler
	running  bool
}

// ServerConn is one accepted client connection
type ServerConn struct {
	// ID is the server-assigned session identifier
	ID string

	conn   net.Conn
	stream *Stream
	reader *Reader
	writer *Writer
	state  SessionState
	logger logger.Logger
}

// NewServer creates a new RTMP server
func NewServer(addr string, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewDefaultLogger(logger.InfoLevel, "text")
	}
	return &Server{
		addr:   addr,
		logger: log,
		conns:  make(map[string]*ServerConn),
	}
}

// SetHandler sets the callback invoked for every message read in the
// data state.
func (s *Server) SetHandler(fn MessageHandler) {
	s.handler = fn
}

// Start starts the accept loop
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrap(errors.ErrCodeNetworkError, "cannot listen on "+s.addr, err)
	}

	s.listener = listener
	s.running = true
	s.logger.Info("server started", logger.String("addr", s.addr))

	go s.acceptLoop()
	return nil
}

// Stop stops the server and closes all connections
func (s *Server) Stop() error {
	s.running = false

	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, conn := range s.conns {
		conn.conn.Close()
	}

	s.logger.Info("server stopped")
	return nil
}

// Addr returns the server listen address
func (s *Server) Addr() string {
	return s.addr
}

// IsRunning returns whether the server is running
func (s *Server) IsRunning() bool {
	return s.running
}

func (s *Server) acceptLoop() {
	for s.running {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.running {
				return
			}
			s.logger.Error("accept failed", logger.Err(err))
			continue
		}

		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(netConn net.Conn) {
	defer netConn.Close()

	stream := NewStream(netConn)
	conn := &ServerConn{
		ID:     uuid.New().String(),
		conn:   netConn,
		stream: stream,
		reader: NewReader(stream),
		writer: NewWriter(stream),
		state:  StateWaitingC1,
	}
	conn.logger = s.logger.With(logger.String("session", conn.ID))

	conn.logger.Info("client connected", logger.String("remote", netConn.RemoteAddr().String()))

	s.mu.Lock()
	s.conns[conn.ID] = conn
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn.ID)
		s.mu.Unlock()
	}()

	if err := s.runSession(conn); err != nil {
		conn.logger.Error("session terminated", logger.Err(err))
		return
	}
	conn.logger.Info("client disconnected")
}

// runSession advances the per-connection state machine. Each state's
// handler must succeed for the session to advance.
func (s *Server) runSession(conn *ServerConn) error {
	for {
		switch conn.state {
		case StateWaitingC1:
			if err := serverHandshakeAccept(conn.stream); err != nil {
				return err
			}
			conn.state = StateWaitingC2

		case StateWaitingC2:
			if err := serverHandshakeComplete(conn.stream); err != nil {
				return err
			}
			conn.state = StateWaitingCommandConnect

		case StateWaitingCommandConnect:
			if err := s.handleCommandConnect(conn); err != nil {
				return err
			}
			conn.state = StateWaitingData

		case StateWaitingData:
			msg, err := conn.reader.ReadMessage()
			if err != nil {
				if err == io.EOF {
					return nil
				}
				return err
			}
			if err := s.dispatch(conn, msg); err != nil {
				return err
			}
		}
	}
}

// handleCommandConnect reads exactly one command message, expected to be
// the NetConnection connect, and replies with the success result.
func (s *Server) handleCommandConnect(conn *ServerConn) error {
	msg, err := conn.reader.ReadMessage()
	if err != nil {
		return err
	}

	cmd, ok := msg.(*Command)
	if !ok {
		return errors.Newf(errors.ErrCodeProtocolAssertion, "expected connect command, got %T", msg)
	}
	if len(cmd.Values) == 0 {
		return errors.New(errors.ErrCodeProtocolAssertion, "empty command before connect")
	}
	if name, _ := cmd.Values[0].(string); name != "connect" {
		return errors.Newf(errors.ErrCodeProtocolAssertion, "expected connect command, got %v", cmd.Values[0])
	}
	conn.logger.Debug("connect received")

	result := &Command{Values: []interface{}{
		"_result",
		float64(1),
		map[string]interface{}{
			"fmsVer":       "FMS/3,0,2,217",
			"capabilities": float64(31),
		},
		map[string]interface{}{
			"level":          "status",
			"code":           "NetConnection.Connect.Success",
			"description":    "Connection succeeded.",
			"objectEncoding": float64(0),
		},
	}}
	return conn.WriteMessage(result)
}

// dispatch handles steady-state messages. Chunk size renegotiation is
// applied to the reader; everything else goes to the configured handler.
func (s *Server) dispatch(conn *ServerConn, msg Message) error {
	if scs, ok := msg.(*SetChunkSize); ok {
		if err := conn.reader.SetChunkSize(scs.ChunkSize); err != nil {
			return err
		}
		conn.logger.Debug("inbound chunk size updated", logger.Uint32("size", scs.ChunkSize))
		return nil
	}

	if s.handler == nil {
		conn.logger.Debug("message dropped, no handler configured")
		return nil
	}
	return s.handler(conn, msg)
}

// WriteMessage encodes, writes and flushes one message on this connection
func (c *ServerConn) WriteMessage(msg Message) error {
	if err := c.writer.WriteMessage(msg); err != nil {
		return err
	}
	return c.writer.Flush()
}

// SendSharedObjectUpdate acknowledges a shared object use and pushes the
// given attribute changes, the way Flash Media Server answers a new
// subscriber.
func (c *ServerConn) SendSharedObjectUpdate(name string, changes map[string]interface{}) error {
	msg := &SharedObjectMessage{
		Name:    name,
		Version: 0,
		Events:  []SOEvent{&SOUseSuccess{}, &SOClear{}, &SOChange{Changes: changes}},
	}
	return c.WriteMessage(msg)
}
