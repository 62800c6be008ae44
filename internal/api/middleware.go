package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/life-stream-dev/twidder/internal/database"
	"github.com/life-stream-dev/twidder/internal/logger"
	"github.com/pkg/errors"
)

const (
	ctxEmail = "email"
	ctxToken = "token"
)

// requestLogger writes one line per request through the shared logger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		switch {
		case status >= http.StatusInternalServerError:
			logger.ErrorF("[%s %s] %d %v", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
		case status >= http.StatusBadRequest:
			logger.WarnF("[%s %s] %d %v", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
		default:
			logger.DebugF("[%s %s] %d %v", c.Request.Method, c.Request.URL.Path, status, time.Since(start))
		}
	}
}

// authRequired resolves the Authorization header to a session.
func authRequired(sessions database.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimSpace(c.GetHeader("Authorization"))
		if token == "" {
			failure(c, http.StatusUnauthorized, msgNotSignedIn)
			return
		}
		session, err := sessions.GetSession(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, database.ErrNotFound) {
				failure(c, http.StatusUnauthorized, msgNotSignedIn)
				return
			}
			logger.ErrorF("[%s %s] Fail to check session, details: %v", c.Request.Method, c.Request.URL.Path, err)
			failure(c, http.StatusInternalServerError, "Internal server error.")
			return
		}
		c.Set(ctxEmail, session.Email)
		c.Set(ctxToken, session.Token)
		c.Next()
	}
}
