package database

import (
	"fmt"

	"github.com/life-stream-dev/twidder/internal/config"
)

// Open returns the store selected by database.driver.
func Open(cfg *config.Config) (Store, error) {
	switch cfg.Database.Driver {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(cfg.Database.SQLitePath)
	case "mongo":
		return ConnectMongo(cfg.Database, MongoURI(cfg.Database), cfg.AppName)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}
