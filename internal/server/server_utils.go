package server

import (
	"errors"
	"io"
	"net"
	"os"

	"github.com/gorilla/websocket"
	"github.com/life-stream-dev/twidder/internal/logger"
)

func isNetClosedError(err error) bool {
	if errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	var opErr *net.OpError
	ok := errors.As(err, &opErr)
	return ok && opErr.Timeout()
}

func handleReadError(connID string, err error) {
	switch {
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		logger.InfoF("[%s] Client close connection", connID)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), isNetClosedError(err):
		logger.InfoF("[%s] Connection dropped", connID)
	case errors.Is(err, websocket.ErrReadLimit):
		logger.WarnF("[%s] Frame exceeds read limit", connID)
	case os.IsTimeout(err):
		logger.WarnF("[%s] Reading timeout", connID)
	default:
		logger.ErrorF("[%s] Error occured while reading frame, details: %v", connID, err)
	}
}
