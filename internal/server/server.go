package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/life-stream-dev/life-stream-go-jtp/internal/auth"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/config"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/connection"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/logger"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/message"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/registry"
	"github.com/life-stream-dev/life-stream-go-jtp/internal/transport"
	"golang.org/x/sync/errgroup"
)

var (
	ErrServerClosed    = errors.New("server closed")
	ErrShutdownTimeout = errors.New("shutdown grace period exceeded")
	ErrUnknownCommand  = errors.New("unknown command")
)

type Options struct {
	Address          string
	TLS              config.TLSConfig
	MaxConnections   int
	IdleTimeout      time.Duration
	HandshakeTimeout time.Duration
	MaxMessageSize   int
	RateLimit        config.RateLimitConfig
	Codec            message.Codec
}

func OptionsFromConfig(cfg config.ServerConfig) Options {
	return Options{
		Address:          cfg.Address(),
		TLS:              cfg.TLS,
		MaxConnections:   cfg.MaxConnections,
		IdleTimeout:      cfg.IdleTimeoutDuration(),
		HandshakeTimeout: cfg.HandshakeTimeoutDuration(),
		MaxMessageSize:   cfg.MaxMessageSize,
		RateLimit:        cfg.RateLimit,
	}
}

type Server struct {
	opts        Options
	registry    *registry.Registry
	credentials auth.CredentialStore
	connections *connection.Manager

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	listener   net.Listener
	acceptDone chan struct{}
	stopping   atomic.Bool
	stopOnce   sync.Once
	stopErr    error
	handlers   sync.WaitGroup
}

func New(opts Options, reg *registry.Registry, credentials auth.CredentialStore) *Server {
	if opts.Codec == nil {
		opts.Codec = message.DefaultCodec
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		opts:        opts,
		registry:    reg,
		credentials: credentials,
		connections: connection.NewManager(),
		ctx:         ctx,
		cancel:      cancel,
	}
}

func (s *Server) Registry() *registry.Registry {
	return s.registry
}

func (s *Server) Connections() *connection.Manager {
	return s.connections
}

// Listen binds the configured address. Serve must be called afterwards.
func (s *Server) Listen() error {
	ln, err := transport.Listen(s.opts.Address, s.opts.TLS)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	logger.InfoF("JTP Server Listen On %s (tls=%v)", ln.Addr().String(), s.opts.TLS.Enabled)
	return nil
}

// Addr is only valid after Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve runs the accept loop until Stop is called.
func (s *Server) Serve() error {
	s.mu.Lock()
	if s.stopping.Load() {
		s.mu.Unlock()
		return ErrServerClosed
	}
	if s.listener == nil {
		s.mu.Unlock()
		return errors.New("server is not listening")
	}
	ln := s.listener
	s.acceptDone = make(chan struct{})
	done := s.acceptDone
	s.mu.Unlock()
	defer close(done)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.stopping.Load() || connection.IsNetClosedError(err) {
				return ErrServerClosed
			}
			logger.ErrorF("Accept connection error: %v", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		logger.DebugF("Accepted new connection from %s", conn.RemoteAddr().String())

		s.handlers.Add(1)
		go func(c net.Conn) {
			defer s.handlers.Done()
			newConnectionHandler(s, c).handleConnection()
		}(conn)
	}
}

func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Stop closes the listener and every active connection, then waits for the
// handlers to finish until ctx expires. Handlers still running afterwards
// are abandoned and ErrShutdownTimeout is returned.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)

		s.mu.Lock()
		ln, acceptDone := s.listener, s.acceptDone
		s.mu.Unlock()

		if ln != nil {
			if err := ln.Close(); err != nil && !connection.IsNetClosedError(err) {
				logger.ErrorF("Server close error: %v", err)
			}
		}
		if acceptDone != nil {
			<-acceptDone
		}
		s.cancel()

		g := new(errgroup.Group)
		for _, entry := range s.connections.Snapshot() {
			entry := entry
			g.Go(func() error {
				if err := entry.Close(); err != nil && !connection.IsNetClosedError(err) {
					return err
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			logger.WarnF("Error occured while closing connections, details: %v", err)
		}

		done := make(chan struct{})
		go func() {
			s.handlers.Wait()
			close(done)
		}()

		select {
		case <-done:
			logger.Info("JTP Server stopped")
		case <-ctx.Done():
			logger.WarnF("Shutdown grace period exceeded, forcing shutdown with %d connections left", s.connections.Count())
			s.stopErr = ErrShutdownTimeout
		}
	})
	return s.stopErr
}

// Invoke lets the server be registered with the event cleaner.
func (s *Server) Invoke(ctx context.Context) error {
	return s.Stop(ctx)
}
