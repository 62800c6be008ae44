package server

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/life-stream-dev/twidder/internal/logger"
)

// maxCloseReason is the largest reason a close frame can carry.
const maxCloseReason = 123

func (c *Connection) readPump(inbound chan<- inboundFrame) {
	if c.opts.MaxMessageSize > 0 {
		c.transport.SetReadLimit(c.opts.MaxMessageSize)
	}
	for {
		_, data, err := c.transport.ReadMessage()
		select {
		case inbound <- inboundFrame{data: data, err: err}:
		case <-c.done:
			return
		}
		if err != nil {
			return
		}
	}
}

// writePump is the only goroutine writing to the transport.
func (c *Connection) writePump() {
	defer close(c.writerDone)
	defer c.closeTransport()

	for {
		select {
		case frame := <-c.outbound:
			if err := c.write(frame); err != nil {
				logger.WarnF("[%s] Fail to send frame, details: %v", c.id, err)
				c.Close("write failed")
				return
			}
		case <-c.done:
			c.drain()
			c.writeClose()
			return
		}
	}
}

func (c *Connection) write(frame []byte) error {
	_ = c.transport.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
	if err := c.transport.WriteMessage(websocket.TextMessage, frame); err != nil {
		return err
	}
	logger.DebugF("[%s] Send %d bytes to client", c.id, len(frame))
	return nil
}

// drain flushes frames queued before the close so a LOGOUT reaches the peer.
func (c *Connection) drain() {
	for {
		select {
		case frame := <-c.outbound:
			if err := c.write(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Connection) writeClose() {
	c.mu.Lock()
	reason := c.closeReason
	c.mu.Unlock()
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	if err := c.transport.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.opts.WriteWait)); err != nil && !isNetClosedError(err) {
		logger.DebugF("[%s] Fail to send close frame, details: %v", c.id, err)
	}
}

func (c *Connection) closeTransport() {
	c.transportClose.Do(func() {
		if err := c.transport.Close(); err != nil && !isNetClosedError(err) {
			logger.WarnF("[%s] Error occured while closing connection, details: %v", c.id, err)
		}
	})
}
