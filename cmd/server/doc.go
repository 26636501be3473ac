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
