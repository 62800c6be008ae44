package database

import (
	"context"
	"sync"
	"time"
)

type MemoryStore struct {
	mu       sync.RWMutex
	users    map[string]User
	sessions map[string]Session
	messages map[string][]Message
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]User),
		sessions: make(map[string]Session),
		messages: make(map[string][]Message),
	}
}

func (ms *MemoryStore) GetUser(_ context.Context, email string) (*User, error) {
	if email == "" {
		return nil, ErrEmptyKey
	}
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	user, ok := ms.users[email]
	if !ok {
		return nil, ErrNotFound
	}
	return &user, nil
}

func (ms *MemoryStore) CreateUser(_ context.Context, user *User) error {
	if user.Email == "" {
		return ErrEmptyKey
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.users[user.Email]; ok {
		return ErrConflict
	}
	ms.users[user.Email] = *user
	return nil
}

func (ms *MemoryStore) UpdatePasswordHash(_ context.Context, email, hash string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	user, ok := ms.users[email]
	if !ok {
		return ErrNotFound
	}
	user.PasswordHash = hash
	ms.users[email] = user
	return nil
}

func (ms *MemoryStore) CreateSession(_ context.Context, session *Session) error {
	if session.Token == "" {
		return ErrEmptyKey
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.sessions[session.Token]; ok {
		return ErrConflict
	}
	ms.sessions[session.Token] = *session
	return nil
}

func (ms *MemoryStore) GetSession(_ context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrEmptyKey
	}
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	session, ok := ms.sessions[token]
	if !ok {
		return nil, ErrNotFound
	}
	return &session, nil
}

func (ms *MemoryStore) DeleteSession(_ context.Context, token string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.sessions, token)
	return nil
}

func (ms *MemoryStore) SaveMessage(_ context.Context, message *Message) error {
	if message.Recipient == "" {
		return ErrEmptyKey
	}
	stored := *message
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.messages[stored.Recipient] = append(ms.messages[stored.Recipient], stored)
	return nil
}

func (ms *MemoryStore) ListMessages(_ context.Context, recipient string) ([]*Message, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	stored := ms.messages[recipient]
	result := make([]*Message, 0, len(stored))
	for i := range stored {
		message := stored[i]
		result = append(result, &message)
	}
	return result, nil
}

func (ms *MemoryStore) Close(context.Context) error {
	return nil
}
