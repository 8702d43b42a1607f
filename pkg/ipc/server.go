package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
)

// Handler executes one controller command and returns its reply.
// Event requests never reach it; the server answers those from the journal.
type Handler func(ctx context.Context, req *Request) *Response

// Journal is the event source backing `mum events`.
type Journal interface {
	Since(cursor uint64) ([]StoredEvent, uint64, error)
	Subscribe() (<-chan StoredEvent, func())
}

// Server accepts controller connections on a Unix socket.
type Server struct {
	path    string
	handler Handler
	journal Journal
}

// NewServer creates an IPC server listening at path.
func NewServer(path string, handler Handler, journal Journal) *Server {
	return &Server{path: path, handler: handler, journal: journal}
}

// Serve listens and handles connections until ctx is cancelled.
// A stale socket file from a dead daemon is removed first.
func (s *Server) Serve(ctx context.Context) error {
	if _, err := os.Stat(s.path); err == nil {
		if conn, err := net.Dial("unix", s.path); err == nil {
			_ = conn.Close()
			return fmt.Errorf("ipc: another daemon is listening on %s", s.path)
		}
		slog.Debug("removing stale socket", "path", s.path)
		_ = os.Remove(s.path)
	}

	listener, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("ipc: listen: %w", err)
	}

	go func() {
		<-ctx.Done()
		_ = listener.Close()
		_ = os.Remove(s.path)
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("ipc: accept: %w", err)
		}
		go s.serveConn(ctx, conn)
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	for {
		var req Request
		if err := readFrame(conn, &req); err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				slog.Debug("ipc read error", "err", err)
			}
			return
		}

		resp := s.dispatch(ctx, conn, &req)
		if resp == nil {
			// follow mode writes its own frames and ends the connection
			return
		}
		if err := writeFrame(conn, resp); err != nil {
			slog.Debug("ipc write error", "err", err)
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, conn net.Conn, req *Request) *Response {
	if req.Events != nil {
		return s.handleEvents(ctx, conn, req.Events)
	}
	return s.handler(ctx, req)
}

// handleEvents drains the journal and, in follow mode, streams live events
// until the controller hangs up. Returns nil when it has written the frames
// itself.
func (s *Server) handleEvents(ctx context.Context, conn net.Conn, req *EventsRequest) *Response {
	batch, next, err := s.journal.Since(req.Since)
	if err != nil {
		return Errorf(CodeBadRequest, "event journal: %v", err)
	}
	if !req.Follow {
		return &Response{Events: &EventBatch{Events: batch, Next: next}}
	}

	if err := writeFrame(conn, &Response{Events: &EventBatch{Events: batch, Next: next}}); err != nil {
		return nil
	}

	live, cancel := s.journal.Subscribe()
	defer cancel()

	// Detect the controller hanging up so the subscription is released.
	hangup := make(chan struct{})
	go func() {
		defer close(hangup)
		_, _ = conn.Read(make([]byte, 1))
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hangup:
			return nil
		case ev, ok := <-live:
			if !ok {
				return nil
			}
			if ev.Cursor <= next {
				continue // already sent in the batch
			}
			if err := writeFrame(conn, &Response{Event: &ev}); err != nil {
				return nil
			}
		}
	}
}
