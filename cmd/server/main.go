// Package main is the entry point for the users-groups MCP server.
//
// The server exposes Model Context Protocol tools for managing users and
// groups backed by a SQLite or PostgreSQL database. Runtime configuration
// is resolved once at startup from the environment (MCP_HOST, MCP_PORT,
// STORAGE_DB, DEBUG_MODE, PG_*) with an optional YAML file; any dependency
// or configuration failure aborts the process before the server starts.
//
// The application uses Uber's fx framework for dependency injection and
// lifecycle management, with zap for structured logging and viper for
// configuration.
package main

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/groupbox/config"
	"github.com/isdmx/groupbox/logger"
	"github.com/isdmx/groupbox/mcpserver"
	"github.com/isdmx/groupbox/storage"
)

func main() {
	app := fx.New(
		// Provide dependencies
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// Storage backend based on config
			storage.New,

			// MCP Server
			mcpserver.New,
		),

		// Close the store when the application stops
		fx.Invoke(
			func(lc fx.Lifecycle, store storage.Store) {
				lc.Append(fx.Hook{
					OnStop: func(_ context.Context) error {
						return store.Close()
					},
				})
			},
		),

		// Start the appropriate transport based on config
		fx.Invoke(
			func(cfg *config.Config, server *mcpserver.MCPServer) {
				switch cfg.Server.Transport {
				case "stdio":
					go func() {
						if err := server.ServeStdio(); err != nil {
							panic(err)
						}
					}()
				case "http":
					go func() {
						if err := server.ServeHTTP(); err != nil {
							panic(err)
						}
					}()
				default:
					panic("unsupported transport: " + cfg.Server.Transport)
				}
			},
		),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Start the application
	app.Run()
}
