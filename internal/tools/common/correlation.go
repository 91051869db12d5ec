package common

import (
	"context"

	"github.com/teemow/workspace-mcp/internal/responsecache"
)

// Correlation identifies who made a tool call and from which session.
type Correlation struct {
	UserEmail string
	SessionID string
}

// CorrelationFromArgs extracts the caller's email from the request arguments
// and the session id from the MCP client session, falling back to a
// session_id argument. Missing values are left empty.
func CorrelationFromArgs(ctx context.Context, args map[string]any) Correlation {
	return Correlation{
		UserEmail: responsecache.UserEmailFromArgs(args),
		SessionID: responsecache.SessionIDFromContext(ctx, args),
	}
}
