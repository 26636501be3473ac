package integration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gopkg.in/yaml.v3"

	"github.com/isdmx/groupbox/config"
	"github.com/isdmx/groupbox/logger"
	"github.com/isdmx/groupbox/mcpserver"
	"github.com/isdmx/groupbox/storage"
)

// TestIntegrationBootstrap covers the startup path: environment,
// configuration, logger and storage wired together.
func TestIntegrationBootstrap(t *testing.T) {
	loadConfig := func(t *testing.T) (*config.Config, error) {
		t.Helper()
		t.Chdir(t.TempDir())
		viper.Reset()
		t.Cleanup(viper.Reset)
		return config.New()
	}

	t.Run("DefaultEnvironment", func(t *testing.T) {
		cfg, err := loadConfig(t)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0:8000", cfg.ListenAddr())

		log, err := logger.NewFromConfig(cfg)
		require.NoError(t, err)

		store, err := storage.New(cfg, log)
		require.NoError(t, err)
		defer store.Close()

		server, err := mcpserver.New(cfg, log, store)
		require.NoError(t, err)
		assert.NotNil(t, server.GetMCPServer())
	})

	t.Run("InvalidPortFailsBeforeServerStart", func(t *testing.T) {
		t.Setenv("MCP_PORT", "not-a-number")

		_, err := loadConfig(t)
		require.Error(t, err)
	})

	t.Run("ConfigFileAndEnvCombined", func(t *testing.T) {
		dir := t.TempDir()
		data, err := yaml.Marshal(map[string]any{
			"logging": map[string]any{"mode": "development", "level": "debug"},
		})
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0o644))

		t.Chdir(dir)
		t.Setenv("MCP_HOST", "127.0.0.1")
		t.Setenv("STORAGE_DB", "sqlite")
		viper.Reset()
		t.Cleanup(viper.Reset)

		cfg, err := config.New()
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1", cfg.Server.Host)
		assert.Equal(t, "sqlite", cfg.Storage.Backend)
		assert.Equal(t, "development", cfg.Logging.Mode)
	})
}

// TestIntegrationToolFlow exercises the full tool surface against an
// in-memory store the way an MCP client would.
func TestIntegrationToolFlow(t *testing.T) {
	log := zaptest.NewLogger(t)
	store, err := storage.NewSQLiteStore(log, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	cfg := &config.Config{
		Server:  config.ServerConfig{Transport: "http", Host: "0.0.0.0", Port: 8000},
		Storage: config.StorageConfig{Backend: "sqlite-memory"},
		Logging: config.LoggingConfig{Mode: "production", Level: "info"},
	}
	_, err = mcpserver.New(cfg, log, store)
	require.NoError(t, err)

	ctx := context.Background()

	// Seed two users and a group through the store the tools operate on
	_, err = store.CreateUser(ctx, storage.NewUser{TelegramID: 1, Username: "alice", FirstName: "Alice"})
	require.NoError(t, err)
	_, err = store.CreateUser(ctx, storage.NewUser{TelegramID: 2, Username: "bob"})
	require.NoError(t, err)

	group, err := store.CreateGroup(ctx, storage.NewGroup{
		Name:        "devs",
		Description: "Developers",
		UserIDs:     []int64{1, 2},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, group.UsersCount)

	// Membership round-trip
	require.NoError(t, store.RemoveUserFromGroup(ctx, group.ID, 2))
	user, err := store.GetUserByTelegramID(ctx, 2)
	require.NoError(t, err)
	assert.Empty(t, user.Groups)

	detail, err := store.GetGroupByName(ctx, "devs")
	require.NoError(t, err)
	assert.Equal(t, 1, detail.UsersCount)
	require.Len(t, detail.Users, 1)
	assert.Equal(t, "alice", detail.Users[0].Username)
}
