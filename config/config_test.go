package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfigValidation(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server: ServerConfig{
				Transport: "http",
				Host:      "0.0.0.0",
				Port:      8000,
			},
			Storage: StorageConfig{
				Backend: "sqlite-memory",
				Path:    "./dev.db",
			},
			Logging: LoggingConfig{
				Mode:  "production",
				Level: "info",
			},
		}
	}

	t.Run("ValidConfig", func(t *testing.T) {
		err := valid().validate()
		require.NoError(t, err)
	})

	t.Run("InvalidServerTransport", func(t *testing.T) {
		cfg := valid()
		cfg.Server.Transport = "invalid"

		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server.transport")
	})

	t.Run("EmptyHost", func(t *testing.T) {
		cfg := valid()
		cfg.Server.Host = ""

		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "server.host must not be empty")
	})

	t.Run("PortRange", func(t *testing.T) {
		for _, port := range []int{1, 80, 8000, 65535} {
			cfg := valid()
			cfg.Server.Port = port
			assert.NoError(t, cfg.validate(), "port %d should be accepted", port)
		}
		for _, port := range []int{0, -1, 65536, 100000} {
			cfg := valid()
			cfg.Server.Port = port
			err := cfg.validate()
			require.Error(t, err, "port %d should be rejected", port)
			assert.Contains(t, err.Error(), "invalid server.port")
		}
	})

	t.Run("UnsupportedStorageBackend", func(t *testing.T) {
		cfg := valid()
		cfg.Storage.Backend = "mysql"

		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported storage.backend")
	})

	t.Run("SqliteBackendRequiresPath", func(t *testing.T) {
		cfg := valid()
		cfg.Storage.Backend = "sqlite"
		cfg.Storage.Path = ""

		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "storage.path must not be empty")
	})

	t.Run("PostgresBackendRequiresCredentials", func(t *testing.T) {
		cfg := valid()
		cfg.Storage.Backend = "postgres"
		cfg.Storage.Postgres = PostgresConfig{
			User: "bot",
			Host: "db.internal",
			Port: 5432,
		}

		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "postgres backend requires")
	})

	t.Run("PostgresBackendValid", func(t *testing.T) {
		cfg := valid()
		cfg.Storage.Backend = "postgres"
		cfg.Storage.Postgres = PostgresConfig{
			User:     "bot",
			Password: "secret",
			Host:     "db.internal",
			Port:     5432,
			Database: "telegram_bot",
		}

		require.NoError(t, cfg.validate())
	})

	t.Run("InvalidLoggingMode", func(t *testing.T) {
		cfg := valid()
		cfg.Logging.Mode = "invalid_mode"

		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid logging.mode")
	})

	t.Run("InvalidLogLevel", func(t *testing.T) {
		cfg := valid()
		cfg.Logging.Level = "invalid_level"

		err := cfg.validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid logging.level")
	})
}

func TestConfigFromEnvironment(t *testing.T) {
	// Each subtest loads from a clean viper instance and an empty working
	// directory so no stray config.yaml leaks in.
	load := func(t *testing.T) (*Config, error) {
		t.Helper()
		t.Chdir(t.TempDir())
		viper.Reset()
		t.Cleanup(viper.Reset)
		return New()
	}

	t.Run("Defaults", func(t *testing.T) {
		cfg, err := load(t)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 8000, cfg.Server.Port)
		assert.Equal(t, "http", cfg.Server.Transport)
		assert.Equal(t, "sqlite-memory", cfg.Storage.Backend)
		assert.Equal(t, "telegram_bot", cfg.Storage.Postgres.Database)
		assert.False(t, cfg.Logging.Debug)
	})

	t.Run("HostAndPortFromEnv", func(t *testing.T) {
		t.Setenv("MCP_HOST", "127.0.0.1")
		t.Setenv("MCP_PORT", "9100")

		cfg, err := load(t)
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1", cfg.Server.Host)
		assert.Equal(t, 9100, cfg.Server.Port)
	})

	t.Run("ResolutionIsIdempotent", func(t *testing.T) {
		t.Setenv("MCP_HOST", "10.0.0.5")

		first, err := load(t)
		require.NoError(t, err)
		second, err := load(t)
		require.NoError(t, err)
		assert.Equal(t, first.Server.Host, second.Server.Host)
		assert.Equal(t, first.Server.Port, second.Server.Port)
	})

	t.Run("NonNumericPort", func(t *testing.T) {
		t.Setenv("MCP_PORT", "not-a-number")

		_, err := load(t)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error unmarshaling config")
	})

	t.Run("OutOfRangePort", func(t *testing.T) {
		t.Setenv("MCP_PORT", "70000")

		_, err := load(t)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server.port")
	})

	t.Run("StorageAndDebugFromEnv", func(t *testing.T) {
		t.Setenv("STORAGE_DB", "postgres")
		t.Setenv("DEBUG_MODE", "1")
		t.Setenv("PG_USER", "bot")
		t.Setenv("PG_PASSWORD", "secret")
		t.Setenv("PG_HOST", "db.internal")
		t.Setenv("PG_PORT", "5433")

		cfg, err := load(t)
		require.NoError(t, err)
		assert.Equal(t, "postgres", cfg.Storage.Backend)
		assert.True(t, cfg.Logging.Debug)
		assert.Equal(t, "bot", cfg.Storage.Postgres.User)
		assert.Equal(t, 5433, cfg.Storage.Postgres.Port)
	})

	t.Run("EnvOverridesConfigFile", func(t *testing.T) {
		dir := t.TempDir()
		fileCfg := map[string]any{
			"server": map[string]any{
				"host": "192.168.1.1",
				"port": 9000,
			},
		}
		data, err := yaml.Marshal(fileCfg)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0o644))

		t.Chdir(dir)
		t.Setenv("MCP_PORT", "9001")
		viper.Reset()
		t.Cleanup(viper.Reset)

		cfg, err := New()
		require.NoError(t, err)
		assert.Equal(t, "192.168.1.1", cfg.Server.Host)
		assert.Equal(t, 9001, cfg.Server.Port)
	})
}

func TestListenAddr(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8000},
	}
	assert.Equal(t, "0.0.0.0:8000", cfg.ListenAddr())
}
