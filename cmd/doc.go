// Package cmd implements the command-line interface for workspace-mcp.
//
// This package provides the following commands:
//   - serve: Start the MCP server with the response cache
//   - search: Run a hybrid query against the stored responses
//   - analytics: Aggregate the stored responses
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
package cmd
