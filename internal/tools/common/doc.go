// Package common provides shared helpers for MCP tool implementations:
// caller correlation and the instrumented handler wrapper every tool is
// registered through.
package common
