package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/niels/ctf-server/pkg/config"
	"github.com/niels/ctf-server/pkg/logging"
	"github.com/niels/ctf-server/pkg/monitor"
	"github.com/niels/ctf-server/pkg/protocol"
	"github.com/niels/ctf-server/pkg/router"
	"github.com/rs/zerolog"
)

// Options configures the connection acceptor
type Options struct {
	Addr           string
	ReadBufferSize int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	RequestTimeout time.Duration
	// MaxConnections bounds the connections served at once
	MaxConnections int
}

// OptionsFromConfig converts the server and concurrency sections of cfg
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Addr:           cfg.Server.Address(),
		ReadBufferSize: cfg.Server.ReadBufferSize,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		RequestTimeout: time.Duration(cfg.Server.RequestTimeout) * time.Second,
		MaxConnections: cfg.Concurrency.MaxTasks,
	}
}

// Server accepts TCP connections and serves exactly one request on each
type Server struct {
	opts    Options
	handler router.Handler
	tracker monitor.Tracker
	logger  zerolog.Logger

	mu       sync.Mutex
	listener net.Listener
	ready    chan struct{}
}

// New creates a server dispatching every request to handler
func New(handler router.Handler, opts Options) *Server {
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = protocol.DefaultBufferSize
	}
	if opts.MaxConnections <= 0 {
		opts.MaxConnections = 1
	}
	return &Server{
		opts:    opts,
		handler: handler,
		tracker: monitor.NopTracker{},
		logger:  logging.WithComponent("server"),
		ready:   make(chan struct{}),
	}
}

// WithTracker sets a custom request tracker
func (s *Server) WithTracker(tracker monitor.Tracker) *Server {
	s.tracker = tracker
	return s
}

// Addr returns the bound address once the server is listening, nil before
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Ready is closed once the listener is bound
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// ListenAndServe binds opts.Addr and serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled or accepting fails.
// In-flight connections are allowed to finish before Serve returns.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.ready)

	s.tracker.Start(ln.Addr().String())
	s.logger.Info().Str("addr", ln.Addr().String()).Int("max_connections", s.opts.MaxConnections).Msg("Server listening")

	// Closing the listener is what unblocks Accept on shutdown
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	// Create a semaphore to limit concurrency
	semaphore := make(chan struct{}, s.opts.MaxConnections)

	// Create a wait group to wait for all connections to finish
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		s.tracker.Finish()
		s.logger.Info().Msg("Server stopped")
	}()

	var delay time.Duration
	for {
		// Acquire a semaphore slot before accepting
		select {
		case semaphore <- struct{}{}:
		case <-ctx.Done():
			return nil
		}

		conn, err := ln.Accept()
		if err != nil {
			<-semaphore
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				// Back off on transient accept failures such as fd exhaustion
				delay = nextDelay(delay)
				s.logger.Warn().Err(err).Dur("retry_in", delay).Msg("Accept failed")
				time.Sleep(delay)
				continue
			}
			return fmt.Errorf("accept failed: %w", err)
		}
		delay = 0

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-semaphore }() // Release the slot when done
			s.serveConn(ctx, conn)
		}()
	}
}

func nextDelay(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	d *= 2
	if d > time.Second {
		d = time.Second
	}
	return d
}

// serveConn reads one request, dispatches it and closes the connection
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	id := uuid.NewString()
	logger := logging.WithRequest("server", id).With().Str("remote", conn.RemoteAddr().String()).Logger()
	s.tracker.RequestStarted(id)

	w := protocol.NewResponseWriter(conn)
	var req *protocol.Request

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Handler panicked")
			if !w.Committed() {
				w.WriteResponse(protocol.ErrorPage(http.StatusInternalServerError), req != nil && req.IsHead())
			}
			s.tracker.RequestFailed(id, fmt.Sprintf("panic: %v", r))
		}
	}()

	if s.opts.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
	}
	req, err := protocol.ReadRequest(conn, s.opts.ReadBufferSize)
	if err != nil {
		if errors.Is(err, io.EOF) {
			logger.Debug().Msg("Connection closed before sending a request")
		} else {
			logger.Warn().Err(err).Msg("Failed to read request")
		}
		s.tracker.RequestFailed(id, err.Error())
		return
	}
	if req.Truncated {
		logger.Debug().Int("buffer_size", s.opts.ReadBufferSize).Msg("Request truncated to read buffer")
	}

	if s.opts.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	}

	// Shutdown does not cancel requests already being served
	reqCtx := context.WithoutCancel(ctx)
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(reqCtx, s.opts.RequestTimeout)
		defer cancel()
	}

	start := time.Now()
	if err := s.handler.Serve(reqCtx, w, req); err != nil {
		if !w.Committed() {
			w.WriteResponse(protocol.ErrorPage(http.StatusInternalServerError), req.IsHead())
		}
		logger.Warn().Err(err).Str("method", req.Method).Str("path", req.Path).Msg("Request failed")
		s.tracker.RequestFailed(id, fmt.Sprintf("%s %s: %v", req.Method, req.Path, err))
		return
	}

	logger.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", w.Status()).
		Int64("bytes", w.BytesWritten()).
		Dur("duration", time.Since(start)).
		Msg("Request served")
	s.tracker.RequestCompleted(id, req.Method, req.Path, w.Status(), w.BytesWritten())
}
