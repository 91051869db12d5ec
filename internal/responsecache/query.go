package responsecache

import (
	"regexp"
	"sort"
	"strings"

	"github.com/teemow/workspace-mcp/internal/instrumentation"
	"github.com/teemow/workspace-mcp/internal/vectorstore"
)

// QueryType is the intent of a parsed query.
type QueryType string

// Query types.
const (
	QueryIDLookup QueryType = instrumentation.QueryTypeID
	QueryFiltered QueryType = instrumentation.QueryTypeFilter
	QuerySemantic QueryType = instrumentation.QueryTypeSemantic
)

// ParsedQuery is the result of ParseQuery.
//
// For QueryIDLookup only ID is set. For QueryFiltered, Filters holds at least
// one condition and SemanticQuery is the remaining text, possibly empty. For
// QuerySemantic, SemanticQuery is the whole input.
type ParsedQuery struct {
	Type          QueryType         `json:"type"`
	ID            string            `json:"id,omitempty"`
	Filters       map[string]string `json:"filters,omitempty"`
	SemanticQuery string            `json:"semantic_query,omitempty"`
}

// Ranked reports whether the query needs an embedding and similarity ranking.
func (q ParsedQuery) Ranked() bool {
	switch q.Type {
	case QuerySemantic, QueryFiltered:
		return q.SemanticQuery != ""
	}
	return false
}

// Filter converts the filter map into a backend filter, or nil when empty.
func (q ParsedQuery) Filter() *vectorstore.Filter {
	return filterFromMap(q.Filters)
}

const idPrefix = "id:"

var filterToken = regexp.MustCompile(`(\w+):(\S+)`)

// ParseQuery parses the hybrid query grammar:
//
//	id:<id>                  exact record lookup, takes precedence
//	field:value ... [text]   exact-match filters, optional ranked text
//	text                     semantic search
//
// A field:value token whose field is not a payload field is still kept as a
// filter. Later tokens for the same field replace earlier ones.
func ParseQuery(query string) ParsedQuery {
	trimmed := strings.TrimSpace(query)
	if strings.HasPrefix(trimmed, idPrefix) {
		return ParsedQuery{
			Type: QueryIDLookup,
			ID:   strings.TrimSpace(strings.TrimPrefix(trimmed, idPrefix)),
		}
	}

	matches := filterToken.FindAllStringSubmatch(trimmed, -1)
	if len(matches) == 0 {
		return ParsedQuery{Type: QuerySemantic, SemanticQuery: trimmed}
	}

	filters := make(map[string]string, len(matches))
	for _, m := range matches {
		filters[m[1]] = m[2]
	}
	remainder := filterToken.ReplaceAllString(trimmed, " ")

	return ParsedQuery{
		Type:          QueryFiltered,
		Filters:       filters,
		SemanticQuery: strings.Join(strings.Fields(remainder), " "),
	}
}

func filterFromMap(filters map[string]string) *vectorstore.Filter {
	if len(filters) == 0 {
		return nil
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	f := vectorstore.NewFilter()
	for _, k := range keys {
		f.WithMatch(k, filters[k])
	}
	return f
}
