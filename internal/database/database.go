package database

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/life-stream-dev/twidder/internal/config"
	"github.com/life-stream-dev/twidder/internal/logger"
	"github.com/life-stream-dev/twidder/internal/utils"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoURI builds the connection string from the configured credentials.
func MongoURI(cfg config.DatabaseConfig) string {
	if cfg.Username == "" {
		return fmt.Sprintf("mongodb://%s:%d/", cfg.Host, cfg.Port)
	}
	// escape special characters
	encodedUser := url.QueryEscape(cfg.Username)
	encodedPass := url.QueryEscape(cfg.Password)
	return fmt.Sprintf("mongodb://%s:%s@%s:%d/?authSource=admin",
		encodedUser, encodedPass,
		cfg.Host,
		cfg.Port,
	)
}

// ConnectMongo dials uri, verifies it with a ping and prepares the indexes.
func ConnectMongo(cfg config.DatabaseConfig, uri, appName string) (*MongoStore, error) {
	logger.DebugF("Connecting to database...")

	clientOptions := options.Client().ApplyURI(uri).SetAppName(appName)
	// pool
	clientOptions.SetMinPoolSize(cfg.MinPoolSize)
	clientOptions.SetMaxPoolSize(cfg.MaxPoolSize)
	clientOptions.SetMaxConnIdleTime(utils.MustParseStringTime(cfg.ConnectIdleTimeout))
	// timeouts
	clientOptions.SetConnectTimeout(utils.MustParseStringTime(cfg.ConnectTimeout))
	clientOptions.SetSocketTimeout(utils.MustParseStringTime(cfg.SocketTimeout))
	// heartbeat
	clientOptions.SetHeartbeatInterval(utils.MustParseStringTime(cfg.Heartbeat))
	if cfg.UseTLS {
		clientOptions.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	// pool monitor
	clientOptions.SetPoolMonitor(&event.PoolMonitor{
		Event: func(evt *event.PoolEvent) {
			switch evt.Type {
			case event.ConnectionCreated:
				logger.DebugF("Database connection created: %s", evt.Address)
			case event.ConnectionClosed:
				logger.DebugF("Database connection closed: %s (%s)", evt.Address, evt.Reason)
			}
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("error occured while connecting to database: %w", err)
	}
	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error occured while pinging database: %w", err)
	}

	store := &MongoStore{
		client:           client,
		db:               client.Database(cfg.Database),
		operationTimeout: utils.MustParseStringTime(cfg.OperationTimeout),
	}
	if err := store.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	logger.InfoF("Connected to database %s", cfg.Database)
	return store, nil
}

func (ds *MongoStore) ensureIndexes(ctx context.Context) error {
	indexes := map[string]mongo.IndexModel{
		UserCollectionName: {
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("users_email_unique"),
		},
		SessionCollectionName: {
			Keys:    bson.D{{Key: "token", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("sessions_token_unique"),
		},
		MessageCollectionName: {
			Keys:    bson.D{{Key: "recipient", Value: 1}, {Key: "created_at", Value: 1}},
			Options: options.Index().SetName("messages_recipient"),
		},
	}
	for collection, model := range indexes {
		if _, err := ds.db.Collection(collection).Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("error occured while creating %s indexes: %w", collection, err)
		}
	}
	return nil
}

func (ds *MongoStore) Close(ctx context.Context) error {
	logger.InfoF("Closing database connection")
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ds.operationTimeout)
		defer cancel()
	}
	return ds.client.Disconnect(ctx)
}
