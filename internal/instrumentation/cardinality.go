package instrumentation

import "strings"

// Cardinality management helpers for metrics.
// These functions reduce high-cardinality label values to prevent metrics explosion.
//
// # Warning
//
// High cardinality in metrics can cause:
// - Increased memory usage in Prometheus/metrics backends
// - Slower query performance
// - Higher storage costs
//
// Always use these helpers when recording metrics with user identifiers.

// ExtractUserDomain extracts the domain part from an email address so that
// tool metrics can be split by organisation without one series per user.
//
// Example:
//
//	ExtractUserDomain("jane@example.com")  // "example.com"
//	ExtractUserDomain("user@gmail.com")    // "gmail.com"
//	ExtractUserDomain("invalid")           // "unknown"
//	ExtractUserDomain("")                  // "unknown"
func ExtractUserDomain(email string) string {
	if email == "" {
		return "unknown"
	}

	parts := strings.Split(email, "@")
	if len(parts) == 2 && parts[1] != "" {
		return parts[1]
	}

	return "unknown"
}

// Vector store operation names used for metrics and span names.
// Status and StoreOutcome constants are defined in config.go.
const (
	OperationListCollections  = "list_collections"
	OperationCreateCollection = "create_collection"
	OperationCollectionInfo   = "collection_info"
	OperationUpsert           = "upsert"
	OperationRetrieve         = "retrieve"
	OperationScroll           = "scroll"
	OperationQuery            = "query"
)

// Search query types.
const (
	QueryTypeID       = "id"
	QueryTypeFilter   = "filter"
	QueryTypeSemantic = "semantic"
)
