package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/life-stream-dev/twidder/internal/logger"
	"github.com/life-stream-dev/twidder/internal/protocol"
)

const (
	ReasonUnknownSession = "Token is not associated with any user."
	ReasonShutdown       = "Server is shutting down."
)

var (
	ErrMalformedFrame        = protocol.ErrMalformedMessage
	ErrUnauthenticatedAction = errors.New("action requires an authenticated connection")
	ErrHeartbeatTimeout      = errors.New("heartbeat timeout")
	ErrHandlerPanic          = errors.New("handler panic")
)

type inboundFrame struct {
	data []byte
	err  error
}

// Serve runs the protocol loop until the connection closes. It returns after
// the writer has flushed and released the transport.
func (c *Connection) Serve(ctx context.Context) {
	inbound := make(chan inboundFrame)
	go c.readPump(inbound)

	timer := time.NewTimer(c.opts.HeartbeatInterval)
	defer func() {
		timer.Stop()
		<-c.writerDone
		logger.DebugF("[%s] Protocol loop exited", c.id)
	}()

	for {
		select {
		case <-ctx.Done():
			c.Evict(ReasonShutdown)
			return
		case <-c.done:
			return
		case frame := <-inbound:
			if frame.err != nil {
				handleReadError(c.id, frame.err)
				c.Close("connection lost")
				return
			}
			resetTimer(timer, c.opts.HeartbeatInterval)
			if err := c.handleFrame(ctx, frame.data); err != nil {
				logger.WarnF("[%s] Closing connection, details: %v", c.id, err)
				c.Evict(closeReason(err))
				return
			}
		case <-timer.C:
			if err := c.onReadTimeout(); err != nil {
				logger.InfoF("[%s] Peer missed %d heartbeats", c.id, c.missedHeartbeats)
				c.Evict(closeReason(err))
				return
			}
			timer.Reset(c.opts.HeartbeatInterval)
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

func closeReason(err error) string {
	switch {
	case errors.Is(err, ErrHeartbeatTimeout):
		return "Heartbeat timeout."
	case errors.Is(err, ErrMalformedFrame):
		return "Malformed message."
	case errors.Is(err, ErrUnauthenticatedAction):
		return "You are not signed in."
	default:
		return "Protocol error."
	}
}

func (c *Connection) handleFrame(ctx context.Context, data []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()

	req, err := protocol.Decode(data)
	if err != nil {
		return err
	}
	logger.DebugF("[%s] Receive %s request, id %d", c.id, req.Action, req.ID)

	if req.Action.RequiresAuth() && c.State() != StateAuthenticated {
		return fmt.Errorf("%w: %s", ErrUnauthenticatedAction, req.Action)
	}

	switch req.Action {
	case protocol.ClientPing:
		return c.onPing(req)
	case protocol.ClientPong:
		return c.onPong()
	case protocol.ClientLogin:
		return c.onLogin(ctx, req)
	default:
		return fmt.Errorf("%w: %s", protocol.ErrUnhandledAction, req.Action)
	}
}

func (c *Connection) onPing(req *protocol.Request) error {
	c.respond(req.ID, protocol.ServerPong, req.Data)
	return nil
}

func (c *Connection) onPong() error {
	c.missedHeartbeats = 0
	if accountID, ok := c.Account(); ok {
		c.registry.Refresh(accountID)
	}
	return nil
}

func (c *Connection) onLogin(ctx context.Context, req *protocol.Request) error {
	if c.State() == StateAuthenticated {
		// repeated LOGIN: the client sees LOGGED_IN twice
		logger.WarnF("[%s] LOGIN on an authenticated connection", c.id)
		c.respond(req.ID, protocol.ServerLoggedIn, nil)
	}

	token, err := req.Token()
	if err != nil {
		return err
	}

	accountID, ok := c.directory.Resolve(ctx, token)
	if !ok {
		logger.InfoF("[%s] Token is not associated with any user", c.id)
		c.unbind()
		c.Push(protocol.ServerLogout, protocol.LogoutReason{Reason: ReasonUnknownSession})
		return nil
	}

	previous, ok := c.bind(accountID, token)
	if !ok {
		return nil
	}
	if previous != nil && previous.accountID != accountID {
		c.registry.Unregister(previous.accountID, c)
	}
	if !c.registry.Register(accountID, c) {
		return nil
	}

	c.respond(req.ID, protocol.ServerLoggedIn, nil)
	logger.InfoF("[%s] Logged in as %s", c.id, accountID)
	return nil
}

func (c *Connection) onReadTimeout() error {
	c.missedHeartbeats++
	c.Push(protocol.ServerPing, nil)
	logger.DebugF("[%s] No frame within %s, missed %d", c.id, c.opts.HeartbeatInterval, c.missedHeartbeats)
	if c.missedHeartbeats >= c.opts.MaxMissedHeartbeats {
		return ErrHeartbeatTimeout
	}
	return nil
}
