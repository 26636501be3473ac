// Package config provides application configuration management.
//
// The config package handles loading and validation of the application's
// configuration from environment variables and optional YAML files. It
// covers server settings (transport, bind host and port), storage backend
// selection, and logging behavior.
//
// The environment variables MCP_HOST, MCP_PORT, STORAGE_DB, DEBUG_MODE and
// PG_USER/PG_PASSWORD/PG_HOST/PG_PORT take precedence over file values.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Listening on: %s\n", cfg.ListenAddr())
package config
