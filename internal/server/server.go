// Package server runs the socket protocol state machine over websocket connections.
package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/life-stream-dev/twidder/internal/config"
	"github.com/life-stream-dev/twidder/internal/connection"
	"github.com/life-stream-dev/twidder/internal/logger"
	"github.com/life-stream-dev/twidder/internal/utils"
)

// Server accepts websocket upgrades and runs one Connection per socket.
type Server struct {
	upgrader  websocket.Upgrader
	registry  *connection.Registry
	directory Directory
	opts      Options

	sem    chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	// mu orders wg.Add against Shutdown
	mu      sync.Mutex
	closing bool
	wg      sync.WaitGroup
}

// OptionsFromConfig converts validated socket settings.
func OptionsFromConfig(c config.SocketConfig) Options {
	return Options{
		HeartbeatInterval:   utils.MustParseStringTime(c.HeartbeatInterval),
		MaxMissedHeartbeats: c.MaxMissedHeartbeats,
		WriteWait:           utils.MustParseStringTime(c.WriteWait),
		SendQueueSize:       c.SendQueueSize,
		MaxMessageSize:      c.MaxMessageSize,
	}
}

func NewServer(registry *connection.Registry, directory Directory, opts Options, maxConnections int, allowedOrigins []string) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	if maxConnections < 1 {
		maxConnections = 1
	}
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		registry:  registry,
		directory: directory,
		opts:      opts,
		sem:       make(chan struct{}, maxConnections),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// originChecker allows every origin when the list is empty.
func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// ServeHTTP upgrades the request and blocks until the connection closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	default:
		logger.WarnF("Connection limit reached, rejecting %s", r.RemoteAddr)
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	if !s.track() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.wg.Done()

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.ErrorF("Fail to upgrade websocket from %s, details: %v", r.RemoteAddr, err)
		return
	}

	conn := NewConnection(uuid.NewString(), ws, s.registry, s.directory, s.opts)
	logger.DebugF("[%s] Accepted new connection from %s", conn.ID(), ws.RemoteAddr())
	conn.Serve(s.ctx)
}

// track counts a new connection unless Shutdown has started.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	return true
}

// Shutdown refuses new sockets, evicts every live connection and waits for
// their loops to exit.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	s.registry.CloseAll(ReasonShutdown)
	s.cancel()
	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Invoke lets the server be registered with event.Cleaner.
func (s *Server) Invoke(ctx context.Context) error {
	return s.Shutdown(ctx)
}
