package config

import (
	"fmt"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport"`
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
}

// StorageConfig holds storage backend configuration
type StorageConfig struct {
	Backend  string         `mapstructure:"backend"`
	Path     string         `mapstructure:"path"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection parameters
type PostgresConfig struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
	Debug bool   `mapstructure:"debug"`
}

// New loads and validates the application configuration.
//
// Configuration is resolved once: defaults, then an optional config.yaml,
// then environment variables. The returned Config is never mutated after
// validation, so the rest of the application only ever observes a
// fully-resolved value.
func New() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set default values
	viper.SetDefault("server.transport", "http")
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8000)
	viper.SetDefault("storage.backend", "sqlite-memory")
	viper.SetDefault("storage.path", "./dev.db")
	// Empty defaults keep env-bound keys visible to Unmarshal
	viper.SetDefault("storage.postgres.user", "")
	viper.SetDefault("storage.postgres.password", "")
	viper.SetDefault("storage.postgres.host", "")
	viper.SetDefault("storage.postgres.port", 5432)
	viper.SetDefault("storage.postgres.database", "telegram_bot")
	viper.SetDefault("logging.mode", "production")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.debug", false)

	// Environment variable bindings (names fixed by the deployment contract)
	bindings := map[string]string{
		"server.host":               "MCP_HOST",
		"server.port":               "MCP_PORT",
		"server.transport":          "MCP_TRANSPORT",
		"storage.backend":           "STORAGE_DB",
		"logging.debug":             "DEBUG_MODE",
		"storage.postgres.user":     "PG_USER",
		"storage.postgres.password": "PG_PASSWORD",
		"storage.postgres.host":     "PG_HOST",
		"storage.postgres.port":     "PG_PORT",
	}
	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("error binding %s: %w", env, err)
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Server.Host == "" {
		return fmt.Errorf("server.host must not be empty")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d, must be in range 1-65535", c.Server.Port)
	}

	switch c.Storage.Backend {
	case "sqlite-memory":
	case "sqlite":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path must not be empty for the sqlite backend")
		}
	case "postgres":
		pg := c.Storage.Postgres
		if pg.User == "" || pg.Password == "" || pg.Host == "" {
			return fmt.Errorf("postgres backend requires PG_USER, PG_PASSWORD and PG_HOST to be set")
		}
		if pg.Port < 1 || pg.Port > 65535 {
			return fmt.Errorf("invalid storage.postgres.port: %d, must be in range 1-65535", pg.Port)
		}
	default:
		return fmt.Errorf("unsupported storage.backend: %s, must be 'sqlite-memory', 'sqlite' or 'postgres'", c.Storage.Backend)
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	return nil
}

// ListenAddr returns the host:port address the HTTP transport binds to
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
