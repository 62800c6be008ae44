package api

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/life-stream-dev/twidder/internal/connection"
	"github.com/life-stream-dev/twidder/internal/database"
	"github.com/life-stream-dev/twidder/internal/logger"
	"github.com/life-stream-dev/twidder/internal/protocol"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

type Handler struct {
	store    database.Store
	notifier connection.Notifier
	// bcrypt cost, lowered in tests
	cost int
}

func NewHandler(store database.Store, notifier connection.Notifier) *Handler {
	return &Handler{store: store, notifier: notifier, cost: bcrypt.DefaultCost}
}

func bindJSON(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil {
		return bindingError(err)
	}
	return nil
}

func (h *Handler) hashPassword(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// checkPassword reports false for unknown accounts as well.
func (h *Handler) checkPassword(c *gin.Context, email, password string) (bool, error) {
	user, err := h.store.GetUser(c.Request.Context(), email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil, nil
}

func (h *Handler) signIn(c *gin.Context) error {
	var req signInRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	ok, err := h.checkPassword(c, *req.Username, *req.Password)
	if err != nil {
		return internalError(err, "fail to check password")
	}
	if !ok {
		return unauthorized("Invalid credentials.")
	}

	token, err := createToken()
	if err != nil {
		return internalError(err, "fail to create token")
	}
	if err := h.store.CreateSession(c.Request.Context(), database.NewSession(token, *req.Username)); err != nil {
		return internalError(err, "fail to save session")
	}
	logger.InfoF("User %s signed in", *req.Username)
	success(c, http.StatusOK, "Successfully signed in.", token)
	return nil
}

func (h *Handler) signUp(c *gin.Context) error {
	var req signUpRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	hash, err := h.hashPassword(*req.Password)
	if err != nil {
		return internalError(err, "fail to hash password")
	}
	user := &database.User{
		Email:        *req.Email,
		PasswordHash: hash,
		FirstName:    *req.FirstName,
		FamilyName:   *req.FamilyName,
		Gender:       *req.Gender,
		City:         *req.City,
		Country:      *req.Country,
	}
	if err := h.store.CreateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, database.ErrConflict) {
			return conflict("User already exists.")
		}
		return internalError(err, "fail to create user")
	}
	logger.InfoF("User %s signed up", user.Email)
	success(c, http.StatusCreated, "Successfully created a new user.", nil)
	return nil
}

func (h *Handler) userByEmail(c *gin.Context, email string) (*database.User, error) {
	user, err := h.store.GetUser(c.Request.Context(), email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) || errors.Is(err, database.ErrEmptyKey) {
			return nil, notFound("No such user.")
		}
		return nil, internalError(err, "fail to load user")
	}
	return user, nil
}

func (h *Handler) getUserDataByToken(c *gin.Context) error {
	user, err := h.userByEmail(c, c.GetString(ctxEmail))
	if err != nil {
		return err
	}
	success(c, http.StatusOK, "User data retrieved.", user)
	return nil
}

func (h *Handler) getUserDataByEmail(c *gin.Context) error {
	user, err := h.userByEmail(c, c.Param("email"))
	if err != nil {
		return err
	}
	success(c, http.StatusOK, "User data retrieved.", user)
	return nil
}

func (h *Handler) changePassword(c *gin.Context) error {
	var req changePasswordRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	email := c.GetString(ctxEmail)
	ok, err := h.checkPassword(c, email, *req.OldPassword)
	if err != nil {
		return internalError(err, "fail to check password")
	}
	if !ok {
		return forbidden("Wrong password.")
	}
	hash, err := h.hashPassword(*req.NewPassword)
	if err != nil {
		return internalError(err, "fail to hash password")
	}
	if err := h.store.UpdatePasswordHash(c.Request.Context(), email, hash); err != nil {
		return internalError(err, "fail to update password")
	}
	success(c, http.StatusOK, "Password changed.", nil)
	return nil
}

func formatRegion(coords *coordinates) *string {
	if coords == nil {
		return nil
	}
	region := fmt.Sprintf("%.5f,%.5f", *coords.Lat, *coords.Lon)
	return &region
}

func (h *Handler) postMessage(c *gin.Context) error {
	var req postMessageRequest
	if err := bindJSON(c, &req); err != nil {
		return err
	}
	author := c.GetString(ctxEmail)
	recipient := author
	if req.Email != nil {
		recipient = *req.Email
	}
	if _, err := h.store.GetUser(c.Request.Context(), recipient); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return notFound("No such recipient.")
		}
		return internalError(err, "fail to load recipient")
	}

	message := &database.Message{
		Recipient: recipient,
		Author:    author,
		Contents:  *req.Message,
		Region:    formatRegion(req.Coords),
	}
	if err := h.store.SaveMessage(c.Request.Context(), message); err != nil {
		return internalError(err, "fail to save message")
	}
	h.notifier.Notify(recipient, protocol.ServerNewMessage, nil)

	success(c, http.StatusCreated, "Message posted.", nil)
	return nil
}

func (h *Handler) listMessages(c *gin.Context, email string) error {
	messages, err := h.store.ListMessages(c.Request.Context(), email)
	if err != nil {
		return internalError(err, "fail to load messages")
	}
	success(c, http.StatusOK, "User messages retrieved.", messages)
	return nil
}

func (h *Handler) getUserMessagesByToken(c *gin.Context) error {
	return h.listMessages(c, c.GetString(ctxEmail))
}

func (h *Handler) getUserMessagesByEmail(c *gin.Context) error {
	user, err := h.userByEmail(c, c.Param("email"))
	if err != nil {
		return err
	}
	return h.listMessages(c, user.Email)
}

func (h *Handler) signOut(c *gin.Context) error {
	if err := h.store.DeleteSession(c.Request.Context(), c.GetString(ctxToken)); err != nil {
		return internalError(err, "fail to delete session")
	}
	logger.InfoF("User %s signed out", c.GetString(ctxEmail))
	success(c, http.StatusOK, "Successfully signed out.", nil)
	return nil
}
