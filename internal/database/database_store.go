package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/life-stream-dev/twidder/internal/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoStore struct {
	client           *mongo.Client
	db               *mongo.Database
	operationTimeout time.Duration
}

var _ Store = (*MongoStore)(nil)

func (ds *MongoStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, ds.operationTimeout)
}

func wrapMongoError(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return fmt.Errorf("database operation failed: %w", err)
}

func (ds *MongoStore) GetUser(ctx context.Context, email string) (*User, error) {
	if email == "" {
		return nil, ErrEmptyKey
	}
	ctx, cancel := ds.withTimeout(ctx)
	defer cancel()

	var user User
	startTime := time.Now()
	err := ds.db.Collection(UserCollectionName).FindOne(ctx, bson.D{{Key: "email", Value: email}}).Decode(&user)
	logger.DebugF("user query cost: %v", time.Since(startTime))
	if err != nil {
		return nil, wrapMongoError(err)
	}
	return &user, nil
}

func (ds *MongoStore) CreateUser(ctx context.Context, user *User) error {
	if user.Email == "" {
		return ErrEmptyKey
	}
	ctx, cancel := ds.withTimeout(ctx)
	defer cancel()

	if _, err := ds.db.Collection(UserCollectionName).InsertOne(ctx, user); err != nil {
		return wrapMongoError(err)
	}
	logger.InfoF("User created: email=%s", user.Email)
	return nil
}

func (ds *MongoStore) UpdatePasswordHash(ctx context.Context, email, hash string) error {
	ctx, cancel := ds.withTimeout(ctx)
	defer cancel()

	result, err := ds.db.Collection(UserCollectionName).UpdateOne(ctx,
		bson.D{{Key: "email", Value: email}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "password_hash", Value: hash}}}},
	)
	if err != nil {
		return wrapMongoError(err)
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (ds *MongoStore) CreateSession(ctx context.Context, session *Session) error {
	if session.Token == "" {
		return ErrEmptyKey
	}
	ctx, cancel := ds.withTimeout(ctx)
	defer cancel()

	if _, err := ds.db.Collection(SessionCollectionName).InsertOne(ctx, session); err != nil {
		return wrapMongoError(err)
	}
	return nil
}

func (ds *MongoStore) GetSession(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, ErrEmptyKey
	}
	ctx, cancel := ds.withTimeout(ctx)
	defer cancel()

	var session Session
	startTime := time.Now()
	err := ds.db.Collection(SessionCollectionName).FindOne(ctx, bson.D{{Key: "token", Value: token}}).Decode(&session)
	logger.DebugF("session query cost: %v", time.Since(startTime))
	if err != nil {
		return nil, wrapMongoError(err)
	}
	return &session, nil
}

func (ds *MongoStore) DeleteSession(ctx context.Context, token string) error {
	ctx, cancel := ds.withTimeout(ctx)
	defer cancel()

	result, err := ds.db.Collection(SessionCollectionName).DeleteOne(ctx, bson.D{{Key: "token", Value: token}})
	if err != nil {
		return wrapMongoError(err)
	}
	logger.DebugF("Session deleted: deleted=%d", result.DeletedCount)
	return nil
}

func (ds *MongoStore) SaveMessage(ctx context.Context, message *Message) error {
	if message.Recipient == "" {
		return ErrEmptyKey
	}
	ctx, cancel := ds.withTimeout(ctx)
	defer cancel()

	stored := *message
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	if _, err := ds.db.Collection(MessageCollectionName).InsertOne(ctx, &stored); err != nil {
		return wrapMongoError(err)
	}
	return nil
}

func (ds *MongoStore) ListMessages(ctx context.Context, recipient string) ([]*Message, error) {
	ctx, cancel := ds.withTimeout(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := ds.db.Collection(MessageCollectionName).Find(ctx, bson.D{{Key: "recipient", Value: recipient}}, opts)
	if err != nil {
		return nil, wrapMongoError(err)
	}
	messages := make([]*Message, 0)
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, wrapMongoError(err)
	}
	return messages, nil
}
