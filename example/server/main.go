// Command server is a length-framed echo server for trying out the client.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Zereker/connector"
)

// Handler handles one accepted connection.
type Handler interface {
	Handle(conn *net.TCPConn)
}

// Server accepts TCP connections and dispatches them to a Handler.
type Server struct {
	listener *net.TCPListener

	mu       sync.Mutex
	shutdown bool
}

func NewServer(addr *net.TCPAddr) (*Server, error) {
	listener, err := net.ListenTCP(addr.Network(), addr)
	if err != nil {
		return nil, err
	}
	return &Server{listener: listener}, nil
}

// Serve blocks until ctx is canceled or Accept fails.
func (s *Server) Serve(ctx context.Context, handler Handler) error {
	slog.Info("server started", "addr", s.listener.Addr())

	go func() {
		<-ctx.Done()

		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		// unblock Accept
		_ = s.listener.SetDeadline(time.Now())
	}()

	for {
		conn, err := s.listener.AcceptTCP()
		if err != nil {
			s.mu.Lock()
			isShutdown := s.shutdown
			s.mu.Unlock()

			if isShutdown {
				slog.Info("server stopped", "addr", s.listener.Addr())
				return ctx.Err()
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			slog.Error("accept error", "error", err)
			return err
		}

		slog.Debug("accepted connection", "remote_addr", conn.RemoteAddr())
		_ = conn.SetNoDelay(true)
		go handler.Handle(conn)
	}
}

// echo writes every frame back to its sender and closes once the
// client half-closes.
type echo struct {
	packer *connector.LengthPacker
}

func (e echo) Handle(conn *net.TCPConn) {
	defer conn.Close()

	unpacker := connector.NewLengthUnpacker(e.packer.MaxPayload() + connector.HeadLen)
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			msgs, unpackErr := unpacker.Unpack(buf[:n])
			for _, msg := range msgs {
				if _, err := conn.Write(e.packer.Pack([][]byte{msg}, false)); err != nil {
					return
				}
			}
			if unpackErr != nil {
				slog.Warn("dropping client", "remote_addr", conn.RemoteAddr(), "error", unpackErr)
				return
			}
		}
		if err != nil {
			slog.Info("client gone", "remote_addr", conn.RemoteAddr(), "error", err)
			return
		}
	}
}

func main() {
	addr := &net.TCPAddr{IP: net.ParseIP(connector.DefaultServerIP), Port: connector.DefaultServerPort}

	server, err := NewServer(addr)
	if err != nil {
		slog.Error("failed to create server", "error", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Serve(ctx, echo{packer: connector.NewLengthPacker(0)}); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("server error", "error", err)
	}
}
