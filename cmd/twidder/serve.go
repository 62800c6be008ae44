package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/life-stream-dev/twidder/internal/api"
	"github.com/life-stream-dev/twidder/internal/config"
	"github.com/life-stream-dev/twidder/internal/connection"
	"github.com/life-stream-dev/twidder/internal/database"
	"github.com/life-stream-dev/twidder/internal/event"
	"github.com/life-stream-dev/twidder/internal/logger"
	"github.com/life-stream-dev/twidder/internal/server"
	"github.com/life-stream-dev/twidder/internal/utils"
	"github.com/redis/go-redis/v9"
)

const logMaxAge = 7 * 24 * time.Hour

// app holds every long-lived component of a running server.
type app struct {
	cfg      *config.Config
	store    database.Store
	rdb      *redis.Client
	registry *connection.Registry
	socket   *server.Server
	handler  http.Handler
}

func newApp(cfg *config.Config) (*app, error) {
	store, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, store: store}
	var tracker connection.Tracker
	if cfg.Redis.Enabled {
		a.rdb, err = connectRedis(cfg.Redis)
		if err != nil {
			_ = store.Close(context.Background())
			return nil, err
		}
		tracker = connection.NewRedisTracker(a.rdb, cfg.Redis.NodeID, utils.MustParseStringTime(cfg.Redis.PresenceTTL))
	}

	a.registry = connection.NewRegistry(tracker)
	a.socket = server.NewServer(
		a.registry,
		database.NewDirectory(store),
		server.OptionsFromConfig(cfg.Socket),
		cfg.Socket.MaxConnections,
		cfg.HTTP.AllowedOrigins,
	)
	a.handler = api.NewRouter(api.NewHandler(store, connection.NewDispatcher(a.registry)), a.socket, cfg.DebugMode)
	return a, nil
}

func connectRedis(cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	logger.InfoF("Connected to redis %s", cfg.Addr)
	return rdb, nil
}

// register adds shutdown hooks; they run newest first.
func (a *app) register(cleaner *event.Cleaner, httpServer *http.Server) {
	cleaner.Add(event.CallableFunc(a.store.Close))
	if a.rdb != nil {
		cleaner.Add(event.CallableFunc(func(context.Context) error { return a.rdb.Close() }))
	}
	cleaner.Add(event.CallableFunc(httpServer.Shutdown))
	cleaner.Add(a.socket)
}

func runServe(ctx context.Context, configPath string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.ReadConfig(configPath)
	if err != nil {
		if errors.Is(err, config.ErrConfigCreated) {
			logger.WarnF("%v: %s", err, configPath)
		} else {
			logger.ErrorF("Error occured while reading config %v", err)
		}
		return err
	}

	loggerCallback := logger.Init(logger.Options{
		Dir:    cfg.LogDir,
		Level:  logger.LevelFor(cfg.DebugMode),
		MaxAge: logMaxAge,
	})
	logger.Debug("Application initializing...")
	cleaner := event.NewCleaner(loggerCallback)

	a, err := newApp(cfg)
	if err != nil {
		logger.ErrorF("Error occured while initializing application, details: %v", err)
		_ = cleaner.Clean()
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.register(cleaner, httpServer)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	listenErr := make(chan error, 1)
	go func() {
		logger.InfoF("HTTP server listen on %s", cfg.HTTP.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorF("HTTP server stopped, details: %v", err)
			listenErr <- err
			cancel()
		}
	}()

	cleanErr := cleaner.Wait(ctx)
	select {
	case err := <-listenErr:
		return errors.Join(err, cleanErr)
	default:
		return cleanErr
	}
}
