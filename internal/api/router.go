// Package api serves the HTTP endpoints.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// NewRouter mounts the REST routes and the socket endpoint.
func NewRouter(h *Handler, socket http.Handler, debug bool) *gin.Engine {
	if debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.POST("/sign_in", handle(h.signIn))
	r.POST("/sign_up", handle(h.signUp))
	if socket != nil {
		r.GET("/socket", gin.WrapH(socket))
	}

	protected := r.Group("/", authRequired(h.store))
	protected.GET("/get_user_data_by_token", handle(h.getUserDataByToken))
	protected.GET("/get_user_data_by_email/:email", handle(h.getUserDataByEmail))
	protected.PUT("/change_password", handle(h.changePassword))
	protected.POST("/post_message", handle(h.postMessage))
	protected.GET("/get_user_messages_by_token", handle(h.getUserMessagesByToken))
	protected.GET("/get_user_messages_by_email/:email", handle(h.getUserMessagesByEmail))
	protected.DELETE("/sign_out", handle(h.signOut))

	return r
}
