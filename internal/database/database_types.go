// Package database stores users, sessions and messages.
package database

import (
	"context"
	"errors"
	"time"
)

const (
	UserCollectionName    = "users"
	SessionCollectionName = "sessions"
	MessageCollectionName = "messages"
)

var (
	ErrNotFound = errors.New("document does not exist")
	ErrConflict = errors.New("unique key conflicts")
	ErrEmptyKey = errors.New("key is empty")
)

type User struct {
	Email        string `bson:"email" json:"email"`
	PasswordHash string `bson:"password_hash" json:"-"`
	FirstName    string `bson:"first_name" json:"firstname"`
	FamilyName   string `bson:"family_name" json:"familyname"`
	Gender       string `bson:"gender" json:"gender"`
	City         string `bson:"city" json:"city"`
	Country      string `bson:"country" json:"country"`
}

// Session binds an opaque token to the account that signed in with it.
type Session struct {
	Token     string    `bson:"token"`
	Email     string    `bson:"email"`
	CreatedAt time.Time `bson:"created_at"`
}

type Message struct {
	Recipient string    `bson:"recipient" json:"-"`
	Author    string    `bson:"author" json:"author"`
	Contents  string    `bson:"contents" json:"contents"`
	Region    *string   `bson:"region" json:"region"`
	CreatedAt time.Time `bson:"created_at" json:"-"`
}

type UserStore interface {
	GetUser(ctx context.Context, email string) (*User, error)
	// CreateUser returns ErrConflict when the email is taken.
	CreateUser(ctx context.Context, user *User) error
	UpdatePasswordHash(ctx context.Context, email, hash string) error
}

type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, token string) (*Session, error)
	DeleteSession(ctx context.Context, token string) error
}

type MessageStore interface {
	SaveMessage(ctx context.Context, message *Message) error
	// ListMessages returns the messages addressed to recipient, oldest first.
	ListMessages(ctx context.Context, recipient string) ([]*Message, error)
}

type Store interface {
	UserStore
	SessionStore
	MessageStore
	Close(ctx context.Context) error
}

func NewSession(token, email string) *Session {
	return &Session{Token: token, Email: email, CreatedAt: time.Now().UTC()}
}
