// Package cache_tools provides the MCP tools for inspecting the tool
// response cache: search_responses runs the hybrid query grammar,
// get_response returns full records by id, and response_analytics reports
// usage statistics. All three are excluded from caching by default.
package cache_tools
