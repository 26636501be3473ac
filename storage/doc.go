// Package storage provides persistence for users and groups.
//
// The storage package defines the Store interface and provides concrete
// implementations for different database backends: SQLite (in-memory or
// file-based, for development) and PostgreSQL (for production). The
// backend is selected at startup from the configuration and the schema
// is created on open, so re-opening an initialized database is a no-op.
//
// Usage:
//
//	store, err := storage.New(cfg, logger)
//	user, err := store.CreateUser(ctx, storage.NewUser{
//	    TelegramID: 12345,
//	    Username:   "alice",
//	})
package storage
