// Package mcp provides an MCP (Model Context Protocol) server adapter
// for quarry. It lets AI assistants search the local index and trigger
// syncs.
package mcp

import "errors"

// ErrMissingSearchService is returned when the search service is not provided.
var ErrMissingSearchService = errors.New("mcp: search service is required")
