package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/life-stream-dev/twidder/internal/logger"
	"github.com/pkg/errors"
)

const msgNotSignedIn = "You are not signed in."

// Error is a failure the client is allowed to see.
type Error struct {
	Status  int
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func badRequest(message string) *Error   { return &Error{Status: http.StatusBadRequest, Message: message} }
func unauthorized(message string) *Error { return &Error{Status: http.StatusUnauthorized, Message: message} }
func forbidden(message string) *Error    { return &Error{Status: http.StatusForbidden, Message: message} }
func notFound(message string) *Error     { return &Error{Status: http.StatusNotFound, Message: message} }
func conflict(message string) *Error     { return &Error{Status: http.StatusConflict, Message: message} }

func missing(field string) *Error {
	return badRequest("Missing " + field + ".")
}

// internalError hides err from the client.
func internalError(err error, context string) *Error {
	return &Error{
		Status:  http.StatusInternalServerError,
		Message: "Internal server error.",
		cause:   errors.Wrap(err, context),
	}
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func success(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Success: true, Message: message, Data: data})
}

func failure(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, envelope{Success: false, Message: message})
}

// handle adapts an error-returning handler to gin.
func handle(fn func(c *gin.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := fn(c)
		if err == nil {
			return
		}
		var apiErr *Error
		if !errors.As(err, &apiErr) {
			apiErr = internalError(err, c.FullPath())
		}
		if apiErr.Status >= http.StatusInternalServerError {
			logger.ErrorF("[%s %s] %v", c.Request.Method, c.Request.URL.Path, apiErr)
		}
		failure(c, apiErr.Status, apiErr.Message)
	}
}
