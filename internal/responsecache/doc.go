// Package responsecache stores MCP tool responses in a vector store and
// answers queries over them.
//
// Every successful tool call passing through the Interceptor becomes a
// StructuredPayload: tool name, arguments, timing, caller correlation and the
// response itself, gzip-compressed when its JSON form is larger than the
// configured threshold. The record is embedded and written in the
// background; the caller receives a short summary, or the full response when
// it passed verbose=true.
//
// Stored records are read back through a small query grammar:
//
//	id:9b2f...                         one record by id
//	tool_name:list_items               exact-match filters, unranked
//	tool_name:list_items open issues   filters plus similarity ranking
//	open issues                        similarity ranking only
//
// Aggregator computes usage statistics over a time range.
//
// Records are write-once. Nothing in this package updates or deletes them.
package responsecache
