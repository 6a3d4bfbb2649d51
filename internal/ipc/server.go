package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"sync"

	"callsign/internal/api"
	"callsign/internal/logging"
)

// Handler is the daemon surface the RPC service forwards to.
type Handler interface {
	Status() api.DaemonStatus
	ResetMission() string
	ForceAdvance() (int, bool)
	JournalEntries(ctx context.Context, runID string, limit int) ([]api.JournalEntry, error)
	TestNotification(ctx context.Context) error
	RequestStop()
}

// Server accepts CLI connections on a unix socket.
type Server struct {
	listener net.Listener
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewServer binds the control socket and begins serving. A stale socket
// file from a crashed daemon is removed first; the caller's instance
// lock guarantees no live daemon owns it.
func NewServer(socketPath string, handler Handler, logger *slog.Logger) (*Server, error) {
	if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale socket: %w", err)
	}
	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("listen on control socket: %w", err)
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		listener.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}

	s := &Server{
		listener: listener,
		logger:   logging.NewComponentLogger(logger, "ipc"),
	}
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName(ServiceName, &service{handler: handler}); err != nil {
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}
	go s.acceptLoop(rpcServer)
	return s, nil
}

func (s *Server) acceptLoop(rpcServer *rpc.Server) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.logger.Warn("accept failed", logging.Error(err))
			}
			return
		}
		go rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
	}
}

// Close stops accepting connections and removes the socket file.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.listener.Close()
}

// service adapts Handler to net/rpc method signatures.
type service struct {
	handler Handler
}

func (s *service) Status(_ StatusArgs, reply *StatusReply) error {
	reply.Status = s.handler.Status()
	return nil
}

func (s *service) Reset(_ ResetArgs, reply *ResetReply) error {
	reply.RunID = s.handler.ResetMission()
	return nil
}

func (s *service) ForceAdvance(_ AdvanceArgs, reply *AdvanceReply) error {
	reply.Step, reply.Advanced = s.handler.ForceAdvance()
	return nil
}

func (s *service) Journal(args JournalArgs, reply *JournalReply) error {
	entries, err := s.handler.JournalEntries(context.Background(), args.RunID, args.Limit)
	if err != nil {
		return err
	}
	reply.Entries = entries
	return nil
}

func (s *service) TestNotification(_ TestNotificationArgs, _ *TestNotificationReply) error {
	return s.handler.TestNotification(context.Background())
}

func (s *service) Stop(_ StopArgs, _ *StopReply) error {
	s.handler.RequestStop()
	return nil
}
