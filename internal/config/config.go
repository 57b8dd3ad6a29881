package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates all runtime settings of the server and the CLI client.
type Config struct {
	AppName     string
	Environment string
	HTTP        HTTPConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	Local       LocalConfig
	Remote      RemoteConfig
	Sync        SyncConfig
	Context     ContextConfig
	Logger      LoggerConfig
	Migrations  MigrationsConfig
}

type HTTPConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxConn      int
}

type DatabaseConfig struct {
	// Backend is "postgres" or "memory"; memory keeps lists and sessions
	// in process and needs neither Postgres nor Redis.
	Backend         string
	URL             string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
	SSLMode         string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	SessionTTL time.Duration
}

// LocalConfig selects the client's local store.
type LocalConfig struct {
	Store string // bolt or sqlite
	Path  string
}

// RemoteConfig tells the client where the list API lives.
type RemoteConfig struct {
	URL      string
	Token    string
	OwnerID  string
	DeviceID string
	Timeout  time.Duration
}

type SyncConfig struct {
	BackoffMin        time.Duration
	BackoffMax        time.Duration
	BackoffFactor     float64
	BackoffJitter     float64
	ReconcileInterval time.Duration
	ProbeInterval     time.Duration
}

type ContextConfig struct {
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	Level    string
	Encoding string
	Output   string
}

type MigrationsConfig struct {
	Enabled bool
	Path    string
}

// Load reads configuration from environment variables (optionally .env)
// and applies sane defaults so both binaries can boot in any environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppName:     getString("APP_NAME", "todosync"),
		Environment: getString("APP_ENV", "development"),
		HTTP: HTTPConfig{
			Host:         getString("SERVER_HOST", "0.0.0.0"),
			Port:         getString("SERVER_PORT", "8080"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			MaxConn:      getInt("SERVER_MAX_CONN", 0),
		},
		Database: DatabaseConfig{
			Backend:         getString("LIST_BACKEND", "postgres"),
			URL:             os.Getenv("DATABASE_URL"),
			Host:            getString("DB_HOST", "localhost"),
			Port:            getString("DB_PORT", "5432"),
			Name:            getString("DB_NAME", "todosync"),
			User:            getString("DB_USER", "todosync"),
			Password:        os.Getenv("DB_PASSWORD"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 5),
			MaxConnLifetime: getDuration("DB_CONN_LIFETIME", time.Hour),
			SSLMode:         getString("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getString("REDIS_URL", "redis://localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:     os.Getenv("JWT_SECRET"),
			SessionTTL: getDuration("SESSION_TTL", 30*24*time.Hour),
		},
		Local: LocalConfig{
			Store: getString("LOCAL_STORE", "bolt"),
			Path:  os.Getenv("LOCAL_PATH"),
		},
		Remote: RemoteConfig{
			URL:      getString("REMOTE_URL", "http://localhost:8080"),
			Token:    os.Getenv("REMOTE_TOKEN"),
			OwnerID:  os.Getenv("OWNER_ID"),
			DeviceID: os.Getenv("DEVICE_ID"),
			Timeout:  getDuration("REMOTE_TIMEOUT", 30*time.Second),
		},
		Sync: SyncConfig{
			BackoffMin:        getDuration("BACKOFF_MIN", 2*time.Second),
			BackoffMax:        getDuration("BACKOFF_MAX", 120*time.Second),
			BackoffFactor:     getFloat("BACKOFF_FACTOR", 1.5),
			BackoffJitter:     getFloat("BACKOFF_JITTER", 0.05),
			ReconcileInterval: getDuration("RECONCILE_INTERVAL", 0),
			ProbeInterval:     getDuration("PROBE_INTERVAL", 10*time.Second),
		},
		Context: ContextConfig{
			RequestTimeout:  getDuration("REQUEST_TIMEOUT_SECONDS", 5*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),
		},
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "json"),
			Output:   getString("LOG_OUTPUT", "stdout"),
		},
		Migrations: MigrationsConfig{
			Enabled: getBool("RUN_MIGRATIONS", true),
			Path:    getString("MIGRATIONS_PATH", "./assets/migrations"),
		},
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = buildPostgresURL(cfg)
	}
	if cfg.Local.Path == "" {
		cfg.Local.Path = defaultLocalPath(cfg.Local.Store)
	}
	if cfg.Remote.DeviceID == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Remote.DeviceID = host
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad panics if configuration cannot be loaded.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) validate() error {
	switch c.Local.Store {
	case "bolt", "sqlite":
	default:
		return fmt.Errorf("LOCAL_STORE must be bolt or sqlite, got %q", c.Local.Store)
	}
	switch c.Database.Backend {
	case "postgres", "memory":
	default:
		return fmt.Errorf("LIST_BACKEND must be postgres or memory, got %q", c.Database.Backend)
	}
	if c.Sync.BackoffMax < c.Sync.BackoffMin {
		return fmt.Errorf("BACKOFF_MAX (%s) is below BACKOFF_MIN (%s)", c.Sync.BackoffMax, c.Sync.BackoffMin)
	}
	// NaN fails this comparison as well.
	if !(c.Sync.BackoffFactor > 1) {
		return fmt.Errorf("BACKOFF_FACTOR must be greater than 1, got %v", c.Sync.BackoffFactor)
	}
	return nil
}

func buildPostgresURL(cfg *Config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)
}

func defaultLocalPath(store string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	name := "todo.db"
	if store == "sqlite" {
		name = "todo.sqlite"
	}
	return filepath.Join(dir, "todosync", name)
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// Address returns the HTTP listen address for the fasthttp server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.HTTP.Host, c.HTTP.Port)
}
