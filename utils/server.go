package utils

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const (
	defaultReadTimeout  = 60 * time.Second
	defaultWriteTimeout = defaultReadTimeout
	defaultDrainTimeout = 30 * time.Second
)

// Server serves HTTP until it is told to stop, then drains in-flight requests
// and runs its shutdown hooks in order.
type Server struct {
	srv        *http.Server
	drain      time.Duration
	onShutdown []func()
}

// NewServer creates a Server for handler on addr.
func NewServer(addr string, handler http.Handler, onShutdown ...func()) *Server {
	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  defaultReadTimeout,
			WriteTimeout: defaultWriteTimeout,
		},
		drain:      defaultDrainTimeout,
		onShutdown: onShutdown,
	}
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.runHooks()

	served := make(chan error, 1)
	go func() { served <- s.srv.Serve(ln) }()

	select {
	case err := <-served:
		return err
	case <-ctx.Done():
	}

	Sugar.Info("draining HTTP server")
	drainCtx, cancel := context.WithTimeout(context.Background(), s.drain)
	defer cancel()
	err := s.srv.Shutdown(drainCtx)
	if serveErr := <-served; !errors.Is(serveErr, http.ErrServerClosed) && err == nil {
		err = serveErr
	}
	if err != nil {
		Sugar.Errorf("HTTP server shutdown error: %v", err)
		return err
	}
	Sugar.Info("HTTP server stopped")
	return nil
}

// ListenAndServe listens on the configured address and stops on SIGINT or SIGTERM.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Serve(ctx, ln)
}

func (s *Server) runHooks() {
	for _, hook := range s.onShutdown {
		hook()
	}
}

// GraceServer serves handler on addr with graceful shutdown.
func GraceServer(addr string, handler http.Handler, onShutdown ...func()) error {
	return NewServer(addr, handler, onShutdown...).ListenAndServe()
}
