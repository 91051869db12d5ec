// Package logging provides structured logging utilities for the workspace-mcp server.
//
// All components log through the standard library's slog package. This package
// keeps attribute names consistent and keeps PII out of operational logs.
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithComponent(slog.Default(), "responsecache")
//	logger.Info("response stored",
//	    logging.Tool("list_items"),
//	    logging.RecordID(id),
//	    logging.UserHash(record.UserEmail))
//
// Warn once for an ongoing condition:
//
//	var unavailable logging.OnceFlag
//	unavailable.Warn(logger, "vector store unreachable")
//
// # Security Considerations
//
// User emails are hashed before they reach operational logs. Full emails only
// appear in audit logs when explicitly enabled.
package logging
