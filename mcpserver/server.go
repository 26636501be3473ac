package mcpserver

import (
	"encoding/json"
	"net/http"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/groupbox/config"
	"github.com/isdmx/groupbox/storage"
)

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	store     storage.Store
	mcpServer *server.MCPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, store storage.Store) (*MCPServer, error) {
	s := &MCPServer{
		config: cfg,
		logger: logger,
		store:  store,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", s.config.Server.Transport),
		zap.String("server.host", s.config.Server.Host),
		zap.Int("server.port", s.config.Server.Port),
		zap.String("storage.backend", s.config.Storage.Backend),
		zap.String("logging.mode", s.config.Logging.Mode),
		zap.String("logging.level", s.config.Logging.Level),
		zap.Bool("logging.debug", s.config.Logging.Debug),
	)

	// Create the MCP server
	s.mcpServer = server.NewMCPServer("users-groups-mcp", "MCP server for managing users and groups")

	// Register the user and group management tools
	s.registerGroupTools()
	s.registerUserTools()

	return s, nil
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP, binding to the configured host and
// port. Besides the MCP streamable endpoint it serves GET /health for
// liveness probes.
func (s *MCPServer) ServeHTTP() error {
	addr := s.config.ListenAddr()
	s.logger.Info("starting MCP server on HTTP", zap.String("addr", addr))

	streamable := server.NewStreamableHTTPServer(s.mcpServer)

	mux := http.NewServeMux()
	mux.Handle("/mcp", streamable)
	mux.HandleFunc("/health", s.handleHealth)

	httpServer := &http.Server{Addr: addr, Handler: mux}
	return httpServer.ListenAndServe()
}

func (s *MCPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Error("health check failed", zap.Error(err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{
			"status":  "unhealthy",
			"service": "users-groups-mcp-server",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "users-groups-mcp-server",
	})
}

// GetMCPServer returns the underlying MCP server
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
