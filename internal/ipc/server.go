package ipc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
)

// Handler processes one request message and returns the response type
// and payload.
type Handler func(msgType MessageType, payload []byte) (MessageType, any, error)

// Server accepts client connections on a unix socket and dispatches
// requests to registered handlers.
type Server struct {
	socketPath string
	log        *slog.Logger

	mu       sync.Mutex
	handlers map[MessageType]Handler
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewServer creates an IPC server bound to socketPath.
func NewServer(socketPath string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		socketPath: socketPath,
		log:        log,
		handlers:   make(map[MessageType]Handler),
		conns:      make(map[net.Conn]struct{}),
	}
}

// Handle registers a handler for a message type.
func (s *Server) Handle(msgType MessageType, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[msgType] = h
}

// Start begins accepting connections. A stale socket file from a
// previous run is removed first.
func (s *Server) Start() error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("restrict socket permissions: %w", err)
	}

	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(listener)

	s.log.Info("ipc server listening", "socket", s.socketPath)
	return nil
}

// Close stops the listener and all client connections.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listener := s.listener
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}
	s.wg.Wait()
	os.Remove(s.socketPath)
	return err
}

func (s *Server) acceptLoop(listener net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("ipc accept failed", "error", err)
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	for {
		msg, err := ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.log.Debug("ipc read failed", "error", err)
			}
			return
		}

		resp := s.dispatch(msg)
		if err := resp.Write(conn); err != nil {
			s.log.Debug("ipc write failed", "error", err)
			return
		}
	}
}

func (s *Server) dispatch(msg *Message) *Message {
	if msg.Header.Type == MsgPing {
		return NewMessage(MsgPong, msg.Header.RequestID, nil)
	}

	s.mu.Lock()
	h, ok := s.handlers[msg.Header.Type]
	s.mu.Unlock()
	if !ok {
		return errorMessage(msg.Header.RequestID, ErrInvalidRequest,
			fmt.Sprintf("unsupported message type 0x%04x", msg.Header.Type))
	}

	respType, respPayload, err := h(msg.Header.Type, msg.Payload)
	if err != nil {
		return errorMessage(msg.Header.RequestID, ErrInternalError, err.Error())
	}

	var data []byte
	if respPayload != nil {
		if data, err = json.Marshal(respPayload); err != nil {
			return errorMessage(msg.Header.RequestID, ErrInternalError,
				fmt.Sprintf("marshal response: %v", err))
		}
	}
	return NewMessage(respType, msg.Header.RequestID, data)
}

func errorMessage(requestID uint32, code int, message string) *Message {
	payload, _ := json.Marshal(ErrorResponse{Code: code, Message: message})
	return NewMessage(MsgError, requestID, payload)
}
