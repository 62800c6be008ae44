package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/life-stream-dev/twidder/internal/logger"
	"github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS User (
	Email TEXT PRIMARY KEY,
	PasswordHash TEXT NOT NULL,
	FirstName TEXT NOT NULL,
	FamilyName TEXT NOT NULL,
	Gender TEXT NOT NULL,
	City TEXT NOT NULL,
	Country TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS Session (
	Token TEXT PRIMARY KEY,
	Email TEXT NOT NULL,
	CreatedAt DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (Email) REFERENCES User(Email) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS Message (
	Id INTEGER PRIMARY KEY AUTOINCREMENT,
	Recipient TEXT NOT NULL,
	Author TEXT NOT NULL,
	Contents TEXT NOT NULL,
	Region TEXT,
	CreatedAt DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (Recipient) REFERENCES User(Email) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_message_recipient ON Message(Recipient);
`

// SQLiteStore keeps the original single-file schema.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db, path: path}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logger.InfoF("Opened sqlite database %s", path)
	return store, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(sqliteSchema)
	return err
}

func isConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func wrapSQLError(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrNotFound
	case isConstraintError(err):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return fmt.Errorf("database operation failed: %w", err)
	}
}

func (s *SQLiteStore) GetUser(ctx context.Context, email string) (*User, error) {
	if email == "" {
		return nil, ErrEmptyKey
	}
	row := s.db.QueryRowContext(ctx,
		"SELECT Email, PasswordHash, FirstName, FamilyName, Gender, City, Country FROM User WHERE Email = ?", email)
	var user User
	if err := row.Scan(&user.Email, &user.PasswordHash, &user.FirstName, &user.FamilyName, &user.Gender, &user.City, &user.Country); err != nil {
		return nil, wrapSQLError(err)
	}
	return &user, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	if user.Email == "" {
		return ErrEmptyKey
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO User(Email, PasswordHash, FirstName, FamilyName, Gender, City, Country) VALUES (?, ?, ?, ?, ?, ?, ?)",
		user.Email, user.PasswordHash, user.FirstName, user.FamilyName, user.Gender, user.City, user.Country)
	if err != nil {
		return wrapSQLError(err)
	}
	return nil
}

func (s *SQLiteStore) UpdatePasswordHash(ctx context.Context, email, hash string) error {
	result, err := s.db.ExecContext(ctx, "UPDATE User SET PasswordHash = ? WHERE Email = ?", hash, email)
	if err != nil {
		return wrapSQLError(err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, session *Session) error {
	if session.Token == "" {
		return ErrEmptyKey
	}
	createdAt := session.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, "INSERT INTO Session(Token, Email, CreatedAt) VALUES (?, ?, ?)",
		session.Token, session.Email, createdAt)
	if err != nil {
		return wrapSQLError(err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrEmptyKey
	}
	row := s.db.QueryRowContext(ctx, "SELECT Token, Email, CreatedAt FROM Session WHERE Token = ?", token)
	var session Session
	if err := row.Scan(&session.Token, &session.Email, &session.CreatedAt); err != nil {
		return nil, wrapSQLError(err)
	}
	return &session, nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM Session WHERE Token = ?", token); err != nil {
		return wrapSQLError(err)
	}
	return nil
}

func (s *SQLiteStore) SaveMessage(ctx context.Context, message *Message) error {
	if message.Recipient == "" {
		return ErrEmptyKey
	}
	createdAt := message.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var region sql.NullString
	if message.Region != nil {
		region = sql.NullString{String: *message.Region, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO Message(Recipient, Author, Contents, Region, CreatedAt) VALUES (?, ?, ?, ?, ?)",
		message.Recipient, message.Author, message.Contents, region, createdAt)
	if err != nil {
		return wrapSQLError(err)
	}
	return nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, recipient string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT Recipient, Author, Contents, Region, CreatedAt FROM Message WHERE Recipient = ? ORDER BY Id", recipient)
	if err != nil {
		return nil, wrapSQLError(err)
	}
	defer rows.Close()

	messages := make([]*Message, 0)
	for rows.Next() {
		var message Message
		var region sql.NullString
		if err := rows.Scan(&message.Recipient, &message.Author, &message.Contents, &region, &message.CreatedAt); err != nil {
			return nil, wrapSQLError(err)
		}
		if region.Valid {
			message.Region = &region.String
		}
		messages = append(messages, &message)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapSQLError(err)
	}
	return messages, nil
}

func (s *SQLiteStore) Close(context.Context) error {
	logger.InfoF("Closing database connection")
	return s.db.Close()
}
