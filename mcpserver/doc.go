// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package implements an MCP-compliant server that exposes
// tools for managing users and groups. It uses the mark3labs/mcp-go
// library to handle the protocol details and supports both stdio and
// streamable HTTP transports. The HTTP transport additionally serves a
// /health endpoint for liveness probes.
package mcpserver
