package server

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/life-stream-dev/twidder/internal/connection"
	"github.com/life-stream-dev/twidder/internal/logger"
	"github.com/life-stream-dev/twidder/internal/protocol"
)

// Transport is the subset of *websocket.Conn a Connection needs.
type Transport interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadLimit(limit int64)
	SetWriteDeadline(t time.Time) error
	Close() error
	RemoteAddr() net.Addr
}

// Directory resolves a session token to the account it was issued for.
type Directory interface {
	Resolve(ctx context.Context, token string) (accountID string, ok bool)
}

type State int32

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// identity holds the fields that exist only while authenticated.
type identity struct {
	accountID string
	token     string
}

type Options struct {
	HeartbeatInterval   time.Duration
	MaxMissedHeartbeats int
	WriteWait           time.Duration
	SendQueueSize       int
	MaxMessageSize      int64
}

func DefaultOptions() Options {
	return Options{
		HeartbeatInterval:   30 * time.Second,
		MaxMissedHeartbeats: 2,
		WriteWait:           10 * time.Second,
		SendQueueSize:       64,
		MaxMessageSize:      8192,
	}
}

// Connection is the protocol state machine of one socket.
type Connection struct {
	id        string
	transport Transport
	registry  *connection.Registry
	directory Directory
	opts      Options

	mu    sync.Mutex
	state State
	ident *identity

	// owned by the protocol loop
	missedHeartbeats int

	outbound       chan []byte
	done           chan struct{}
	writerDone     chan struct{}
	closed         atomic.Bool
	closeOnce      sync.Once
	closeReason    string
	transportClose sync.Once
}

var _ connection.Member = (*Connection)(nil)

func NewConnection(id string, transport Transport, registry *connection.Registry, directory Directory, opts Options) *Connection {
	c := &Connection{
		id:         id,
		transport:  transport,
		registry:   registry,
		directory:  directory,
		opts:       opts,
		state:      StateUnauthenticated,
		outbound:   make(chan []byte, opts.SendQueueSize),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	go c.writePump()
	return c
}

func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Account returns the bound account while authenticated.
func (c *Connection) Account() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ident == nil {
		return "", false
	}
	return c.ident.accountID, true
}

func (c *Connection) SessionToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ident == nil {
		return ""
	}
	return c.ident.token
}

func (c *Connection) Closed() bool {
	return c.closed.Load()
}

// Done is closed once the connection has been closed.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

func (c *Connection) Push(action protocol.ServerAction, data any) bool {
	return c.enqueue(protocol.EncodePush(action, data))
}

func (c *Connection) respond(id int64, action protocol.ServerAction, data any) bool {
	return c.enqueue(protocol.EncodeResponse(id, action, data))
}

func (c *Connection) enqueue(frame []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.outbound <- frame:
		return true
	case <-c.done:
		return false
	default:
		logger.WarnF("[%s] Send queue full, dropping frame", c.id)
		return false
	}
}

func (c *Connection) Evict(reason string) {
	c.Push(protocol.ServerLogout, protocol.LogoutReason{Reason: reason})
	c.Close(reason)
}

// Close is idempotent. It releases the account slot if this connection still
// holds it, stops accepting frames, and lets the writer flush and close the
// transport.
func (c *Connection) Close(reason string) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		c.mu.Lock()
		ident := c.ident
		c.ident = nil
		c.state = StateClosed
		c.closeReason = reason
		c.mu.Unlock()

		if ident != nil {
			c.registry.Unregister(ident.accountID, c)
		}
		close(c.done)
		logger.InfoF("[%s] Connection closed: %s", c.id, reason)
	})
}

// bind moves the connection to Authenticated and returns the identity it
// replaced. ok is false when the connection is already closed.
func (c *Connection) bind(accountID, token string) (previous *identity, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return nil, false
	}
	previous = c.ident
	c.ident = &identity{accountID: accountID, token: token}
	c.state = StateAuthenticated
	return previous, true
}

// unbind moves the connection back to Unauthenticated.
func (c *Connection) unbind() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	previous := c.ident
	c.ident = nil
	c.state = StateUnauthenticated
	c.mu.Unlock()

	if previous != nil {
		c.registry.Unregister(previous.accountID, c)
	}
}
