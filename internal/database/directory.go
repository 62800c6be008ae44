package database

import (
	"context"
	"errors"

	"github.com/life-stream-dev/twidder/internal/logger"
)

// Directory resolves socket login tokens against the session table.
type Directory struct {
	sessions SessionStore
}

func NewDirectory(sessions SessionStore) *Directory {
	return &Directory{sessions: sessions}
}

// Resolve reports the account bound to token. Storage failures resolve to
// nothing so a broken backend never authenticates anyone.
func (d *Directory) Resolve(ctx context.Context, token string) (string, bool) {
	session, err := d.sessions.GetSession(ctx, token)
	if err != nil {
		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrEmptyKey) {
			logger.WarnF("Fail to resolve session token, details: %v", err)
		}
		return "", false
	}
	return session.Email, true
}
