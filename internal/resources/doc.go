// Package resources exposes the vector store to MCP clients as read-only
// qdrant:// resources: the collection list, per-collection info, the newest
// cached responses, and searches using the response cache query grammar.
//
// Every resource answers with JSON. A failure, such as an unreachable
// vector store or a missing collection, is returned as an {"error": ...}
// document instead of a protocol error so clients can show it inline.
package resources
