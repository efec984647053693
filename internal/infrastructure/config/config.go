package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	Logging        LogConfig
	Admin          AdminConfig
	Session        SessionConfig
	Paths          PathConfig
	ServiceManager ServiceManagerConfig
	Account        AccountConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// AdminConfig holds the admin HTTP server configuration
type AdminConfig struct {
	Host    string `envconfig:"ADMIN_HOST" default:"127.0.0.1"`
	Port    string `envconfig:"ADMIN_PORT" default:"8090"`
	Enabled bool   `envconfig:"ADMIN_ENABLED" default:"true"`
	// CORSOrigins lists the dashboards allowed to read the admin API.
	CORSOrigins []string `envconfig:"ADMIN_CORS_ORIGINS" default:"http://127.0.0.1:8090"`
	RateLimit   int      `envconfig:"ADMIN_RATE_LIMIT" default:"50"`
}

// SessionConfig holds the per-user session policy
type SessionConfig struct {
	ImeStartTimeout time.Duration `envconfig:"IME_START_TIMEOUT" default:"5s"`
	ImeStopTimeout  time.Duration `envconfig:"IME_STOP_TIMEOUT" default:"2s"`
	RestartMax      int           `envconfig:"IME_RESTART_MAX" default:"3"`
	RestartWindow   time.Duration `envconfig:"IME_RESTART_WINDOW" default:"3s"`
	SceneBoard      bool          `envconfig:"SCENE_BOARD_ENABLED" default:"false"`
	QueueCapacity   int           `envconfig:"MESSAGE_QUEUE_CAPACITY" default:"4096"`
	CallTimeout     time.Duration `envconfig:"CALL_TIMEOUT" default:"10s"`
}

// PathConfig holds on-disk locations
type PathConfig struct {
	SystemConfig string `envconfig:"SYSTEM_CONFIG" default:"/etc/imf/system.yaml"`
	Catalog      string `envconfig:"IME_CATALOG" default:"/etc/imf/catalog.yaml"`
	Settings     string `envconfig:"SETTINGS_FILE" default:"/var/lib/imf/settings.toml"`
}

// ServiceManagerConfig holds the service manager client configuration
type ServiceManagerConfig struct {
	Enabled     bool          `envconfig:"SAMGR_ENABLED" default:"false"`
	Address     string        `envconfig:"SAMGR_ADDR" default:"http://127.0.0.1:8091"`
	LoadTimeout time.Duration `envconfig:"SAMGR_LOAD_TIMEOUT" default:"8s"`
	RetryCount  int           `envconfig:"SAMGR_RETRY" default:"3"`
}

// AccountConfig holds the account readiness polling policy
type AccountConfig struct {
	ReadyRetries  int           `envconfig:"ACCOUNT_READY_RETRIES" default:"10"`
	ReadyInterval time.Duration `envconfig:"ACCOUNT_READY_INTERVAL" default:"100ms"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		Admin: AdminConfig{
			Host:        "127.0.0.1",
			Port:        "8090",
			Enabled:     true,
			CORSOrigins: []string{"http://127.0.0.1:8090"},
			RateLimit:   50,
		},
		Session: SessionConfig{
			ImeStartTimeout: 5 * time.Second,
			ImeStopTimeout:  2 * time.Second,
			RestartMax:      3,
			RestartWindow:   3 * time.Second,
			SceneBoard:      false,
			QueueCapacity:   4096,
			CallTimeout:     10 * time.Second,
		},
		Paths: PathConfig{
			SystemConfig: "/etc/imf/system.yaml",
			Catalog:      "/etc/imf/catalog.yaml",
			Settings:     "/var/lib/imf/settings.toml",
		},
		ServiceManager: ServiceManagerConfig{
			Address:     "http://127.0.0.1:8091",
			LoadTimeout: 8 * time.Second,
			RetryCount:  3,
		},
		Account: AccountConfig{
			ReadyRetries:  10,
			ReadyInterval: 100 * time.Millisecond,
		},
	}
}
