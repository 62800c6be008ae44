package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"

	"github.com/life-stream-dev/twidder/internal/utils"
	"github.com/spf13/viper"
)

const (
	DefaultPath = "config.json"
	envPrefix   = "TWIDDER"
)

type DatabaseConfig struct {
	Driver             string `json:"driver" mapstructure:"driver"`
	SQLitePath         string `json:"sqlite_path" mapstructure:"sqlite_path"`
	Host               string `json:"host" mapstructure:"host"`
	Port               uint64 `json:"port" mapstructure:"port"`
	Username           string `json:"username" mapstructure:"username"`
	Password           string `json:"password" mapstructure:"password"`
	Database           string `json:"database" mapstructure:"database"`
	UseTLS             bool   `json:"use_tls" mapstructure:"use_tls"`
	ConnectTimeout     string `json:"connect_timeout" mapstructure:"connect_timeout"`
	SocketTimeout      string `json:"socket_timeout" mapstructure:"socket_timeout"`
	ConnectIdleTimeout string `json:"connect_idle_timeout" mapstructure:"connect_idle_timeout"`
	OperationTimeout   string `json:"operation_timeout" mapstructure:"operation_timeout"`
	Heartbeat          string `json:"heartbeat" mapstructure:"heartbeat"`
	MinPoolSize        uint64 `json:"min_pool_size" mapstructure:"min_pool_size"`
	MaxPoolSize        uint64 `json:"max_pool_size" mapstructure:"max_pool_size"`
}

type RedisConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	Addr        string `json:"addr" mapstructure:"addr"`
	Password    string `json:"password" mapstructure:"password"`
	DB          int    `json:"db" mapstructure:"db"`
	PresenceTTL string `json:"presence_ttl" mapstructure:"presence_ttl"`
	NodeID      string `json:"node_id" mapstructure:"node_id"`
}

type SocketConfig struct {
	HeartbeatInterval   string `json:"heartbeat_interval" mapstructure:"heartbeat_interval"`
	MaxMissedHeartbeats int    `json:"max_missed_heartbeats" mapstructure:"max_missed_heartbeats"`
	WriteWait           string `json:"write_wait" mapstructure:"write_wait"`
	SendQueueSize       int    `json:"send_queue_size" mapstructure:"send_queue_size"`
	MaxMessageSize      int64  `json:"max_message_size" mapstructure:"max_message_size"`
	MaxConnections      int    `json:"max_connections" mapstructure:"max_connections"`
}

type HTTPConfig struct {
	Addr           string   `json:"addr" mapstructure:"addr"`
	AllowedOrigins []string `json:"allowed_origins" mapstructure:"allowed_origins"`
}

type Config struct {
	Database  DatabaseConfig `json:"database" mapstructure:"database"`
	Redis     RedisConfig    `json:"redis" mapstructure:"redis"`
	Socket    SocketConfig   `json:"socket" mapstructure:"socket"`
	HTTP      HTTPConfig     `json:"http" mapstructure:"http"`
	DebugMode bool           `json:"debug_mode" mapstructure:"debug_mode"`
	AppName   string         `json:"app_name" mapstructure:"app_name"`
	LogDir    string         `json:"log_dir" mapstructure:"log_dir"`
}

var (
	ErrConfigCreated = errors.New("the configuration file does not exist and has been created. Please try again after editing the configuration file")
	ErrInvalidConfig = errors.New("invalid configuration")
)

var (
	mu      sync.RWMutex
	current *Config
)

func Default() Config {
	return Config{
		Database: DatabaseConfig{
			Driver:             "sqlite",
			SQLitePath:         "database.db",
			Host:               "localhost",
			Port:               27017,
			Database:           "twidder",
			ConnectTimeout:     "10s",
			SocketTimeout:      "30s",
			ConnectIdleTimeout: "5m",
			OperationTimeout:   "5s",
			Heartbeat:          "15s",
			MinPoolSize:        1,
			MaxPoolSize:        20,
		},
		Redis: RedisConfig{
			Addr:        "127.0.0.1:6379",
			PresenceTTL: "90s",
			NodeID:      "twidder-1",
		},
		Socket: SocketConfig{
			HeartbeatInterval:   "30s",
			MaxMissedHeartbeats: 2,
			WriteWait:           "10s",
			SendQueueSize:       64,
			MaxMessageSize:      8192,
			MaxConnections:      10000,
		},
		HTTP: HTTPConfig{
			Addr: ":5000",
		},
		AppName: "twidder",
		LogDir:  "logs",
	}
}

// ReadConfig loads path (config.json when empty) on top of the defaults and
// TWIDDER_* environment overrides. A missing file is created from the
// defaults and reported with ErrConfigCreated.
func ReadConfig(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	v := viper.New()
	setDefaults(v, Default())
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("the configuration file does not contain valid JSON: %w", err)
			}
		}
		if werr := writeDefault(path); werr != nil {
			return nil, fmt.Errorf("unable to create configuration file %s: %w", path, werr)
		}
		return nil, ErrConfigCreated
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mu.Lock()
	current = cfg
	mu.Unlock()
	return cfg, nil
}

// GetConfig returns the last configuration loaded by ReadConfig.
func GetConfig() (*Config, error) {
	mu.RLock()
	cfg := current
	mu.RUnlock()
	if cfg != nil {
		return cfg, nil
	}
	return ReadConfig(DefaultPath)
}

func (c *Config) Validate() error {
	// zero socket/idle timeouts disable the limit in the mongo driver
	durations := []struct {
		key      string
		value    string
		positive bool
	}{
		{"socket.heartbeat_interval", c.Socket.HeartbeatInterval, true},
		{"socket.write_wait", c.Socket.WriteWait, true},
		{"database.operation_timeout", c.Database.OperationTimeout, true},
		{"database.connect_timeout", c.Database.ConnectTimeout, true},
		{"database.socket_timeout", c.Database.SocketTimeout, false},
		{"database.connect_idle_timeout", c.Database.ConnectIdleTimeout, false},
		{"database.heartbeat", c.Database.Heartbeat, true},
		{"redis.presence_ttl", c.Redis.PresenceTTL, true},
	}
	for _, d := range durations {
		value, err := utils.ParseStringTime(d.value)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, d.key, err)
		}
		if d.positive && value == 0 {
			return fmt.Errorf("%w: %s must be greater than zero", ErrInvalidConfig, d.key)
		}
	}
	if c.Socket.MaxMissedHeartbeats < 1 {
		return fmt.Errorf("%w: socket.max_missed_heartbeats must be at least 1", ErrInvalidConfig)
	}
	if c.Socket.SendQueueSize < 1 {
		return fmt.Errorf("%w: socket.send_queue_size must be at least 1", ErrInvalidConfig)
	}
	if c.Socket.MaxConnections < 1 {
		return fmt.Errorf("%w: socket.max_connections must be at least 1", ErrInvalidConfig)
	}
	switch c.Database.Driver {
	case "memory", "sqlite", "mongo":
	default:
		return fmt.Errorf("%w: unknown database.driver %q", ErrInvalidConfig, c.Database.Driver)
	}
	return nil
}

func writeDefault(path string) error {
	data, err := json.MarshalIndent(Default(), "", "\t")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// setDefaults registers every key so AutomaticEnv can override keys that
// are absent from the file.
func setDefaults(v *viper.Viper, def Config) {
	var m map[string]any
	data, _ := json.Marshal(def)
	_ = json.Unmarshal(data, &m)
	var walk func(prefix string, node map[string]any)
	walk = func(prefix string, node map[string]any) {
		for key, value := range node {
			if child, ok := value.(map[string]any); ok {
				walk(prefix+key+".", child)
				continue
			}
			v.SetDefault(prefix+key, value)
		}
	}
	walk("", m)
}
