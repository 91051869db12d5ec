package resources

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/workspace-mcp/internal/logging"
	"github.com/teemow/workspace-mcp/internal/responsecache"
	"github.com/teemow/workspace-mcp/internal/server"
	"github.com/teemow/workspace-mcp/internal/vectorstore"
)

// Scheme is the URI scheme of the vector store resources.
const Scheme = "qdrant://"

const (
	CollectionsListURI      = Scheme + "collections/list"
	CollectionInfoTemplate  = Scheme + "collection/{name}/info"
	RecentResponsesTemplate = Scheme + "collection/{name}/responses/recent"
	SearchTemplate          = Scheme + "search/{query}"
	ScopedSearchTemplate    = Scheme + "search/{collection}/{query}"
)

const mimeJSON = "application/json"

// DefaultRecentCount is the number of records returned by the recent
// responses resource when the URI carries no limit.
const DefaultRecentCount = 10

// Descriptor describes one registered resource or resource template.
type Descriptor struct {
	URI         string
	Name        string
	Description string
	Template    bool
}

// Catalog lists the qdrant:// resources in registration order.
var Catalog = []Descriptor{
	{URI: CollectionsListURI, Name: "Vector Store Collections", Description: "Collections in the vector store with point counts and status"},
	{URI: CollectionInfoTemplate, Name: "Collection Info", Description: "Vector size, distance, status and point count of a collection", Template: true},
	{URI: RecentResponsesTemplate, Name: "Recent Responses", Description: "Newest cached responses in a collection, decompressed. Append ?limit=N to change the count", Template: true},
	{URI: SearchTemplate, Name: "Search Responses", Description: "Search the response collection with the hybrid query grammar (id:, field:value, free text)", Template: true},
	{URI: ScopedSearchTemplate, Name: "Search Collection", Description: "Search a named collection with the hybrid query grammar", Template: true},
}

// RegisterVectorResources registers the qdrant:// diagnostic resources.
func RegisterVectorResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if sc == nil {
		return fmt.Errorf("server context is required")
	}

	// One handler serves every entry; it routes on the URI itself, so the
	// overlapping search templates resolve the same way for every client.
	handler := func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return Read(ctx, sc, request.Params.URI)
	}

	for _, d := range Catalog {
		if !d.Template {
			s.AddResource(mcp.NewResource(
				d.URI,
				d.Name,
				mcp.WithResourceDescription(d.Description),
				mcp.WithMIMEType(mimeJSON),
			), handler)
			continue
		}
		s.AddResourceTemplate(mcp.NewResourceTemplate(
			d.URI,
			d.Name,
			mcp.WithTemplateDescription(d.Description),
			mcp.WithTemplateMIMEType(mimeJSON),
		), handler)
	}

	return nil
}

// route is a parsed qdrant:// URI.
type route struct {
	kind       string
	collection string
	query      string
	limit      int
}

const (
	routeCollections = "collections"
	routeInfo        = "info"
	routeRecent      = "recent"
	routeSearch      = "search"
)

// parseURI resolves uri to a route. Path segments are URL-unescaped, so a
// query may contain an encoded "/".
func parseURI(uri string) (route, error) {
	rest, ok := strings.CutPrefix(uri, Scheme)
	if !ok {
		return route{}, fmt.Errorf("unsupported scheme in %q", uri)
	}

	rawQuery := ""
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		rest, rawQuery = rest[:i], rest[i+1:]
	}

	raw := strings.Split(rest, "/")
	segs := make([]string, len(raw))
	for i, s := range raw {
		u, err := url.PathUnescape(s)
		if err != nil {
			return route{}, fmt.Errorf("invalid path segment %q: %w", s, err)
		}
		segs[i] = u
	}

	switch {
	case len(segs) == 2 && segs[0] == "collections" && segs[1] == "list":
		return route{kind: routeCollections}, nil
	case len(segs) == 3 && segs[0] == "collection" && segs[2] == "info" && segs[1] != "":
		return route{kind: routeInfo, collection: segs[1]}, nil
	case len(segs) == 4 && segs[0] == "collection" && segs[2] == "responses" && segs[3] == "recent" && segs[1] != "":
		limit := DefaultRecentCount
		if rawQuery != "" {
			values, err := url.ParseQuery(rawQuery)
			if err != nil {
				return route{}, fmt.Errorf("invalid query string: %w", err)
			}
			if v := values.Get("limit"); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n <= 0 {
					return route{}, fmt.Errorf("limit must be a positive integer, got %q", v)
				}
				limit = n
			}
		}
		return route{kind: routeRecent, collection: segs[1], limit: limit}, nil
	case len(segs) == 2 && segs[0] == "search" && segs[1] != "":
		return route{kind: routeSearch, query: segs[1]}, nil
	case len(segs) == 3 && segs[0] == "search" && segs[1] != "" && segs[2] != "":
		return route{kind: routeSearch, collection: segs[1], query: segs[2]}, nil
	}
	return route{}, fmt.Errorf("unknown resource %q", uri)
}

// Read serves a qdrant:// resource. Failures are reported in the JSON body
// rather than as an error.
func Read(ctx context.Context, sc *server.ServerContext, uri string) ([]mcp.ResourceContents, error) {
	logger := logging.WithOperation(sc.Logger(), "resource_read")

	r, err := parseURI(uri)
	if err != nil {
		return jsonContents(uri, errorBody(err, nil))
	}

	var body any
	switch r.kind {
	case routeCollections:
		body, err = listCollections(ctx, sc)
	case routeInfo:
		body, err = collectionInfo(ctx, sc, r.collection)
	case routeRecent:
		body, err = recentResponses(ctx, sc, r.collection, r.limit)
	case routeSearch:
		body, err = search(ctx, sc, r.collection, r.query)
	}
	if err != nil {
		logger.Debug("resource read failed", "uri", uri, logging.Err(err))
		return jsonContents(uri, errorBody(err, r.fields()))
	}
	return jsonContents(uri, body)
}

func (r route) fields() map[string]any {
	f := map[string]any{}
	if r.collection != "" {
		f["collection"] = r.collection
	}
	if r.query != "" {
		f["query"] = r.query
	}
	return f
}

func errorBody(err error, fields map[string]any) map[string]any {
	body := map[string]any{"error": errorMessage(err)}
	for k, v := range fields {
		body[k] = v
	}
	return body
}

func errorMessage(err error) string {
	switch {
	case errors.Is(err, vectorstore.ErrConnectionUnavailable):
		return "vector store unavailable"
	case errors.Is(err, vectorstore.ErrCollectionNotFound):
		return "collection not found"
	}
	return err.Error()
}

func listCollections(ctx context.Context, sc *server.ServerContext) (any, error) {
	infos, err := sc.Store().Collections(ctx)
	if err != nil {
		return nil, err
	}
	if infos == nil {
		infos = []vectorstore.CollectionInfo{}
	}
	body := map[string]any{
		"count":       len(infos),
		"collections": infos,
	}
	if ep, ok := sc.Connection().Endpoint(); ok {
		body["endpoint"] = ep.String()
	}
	return body, nil
}

func collectionInfo(ctx context.Context, sc *server.ServerContext, name string) (any, error) {
	return sc.Store().ForCollection(name).Info(ctx)
}

func recentResponses(ctx context.Context, sc *server.ServerContext, name string, n int) (any, error) {
	records, err := sc.Store().ForCollection(name).Recent(ctx, n)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*responsecache.StructuredPayload{}
	}
	return map[string]any{
		"collection": name,
		"count":      len(records),
		"responses":  records,
	}, nil
}

func search(ctx context.Context, sc *server.ServerContext, collection, query string) (any, error) {
	searcher := sc.Searcher().ForCollection(collection)
	parsed := responsecache.ParseQuery(query)

	results, err := searcher.Search(ctx, parsed, responsecache.DefaultSearchLimit, 0)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []responsecache.ScoredResult{}
	}
	return map[string]any{
		"query":      query,
		"parsed":     parsed,
		"collection": searcher.Collection(),
		"count":      len(results),
		"results":    results,
	}, nil
}

func jsonContents(uri string, body any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		data = []byte(fmt.Sprintf(`{"error": %q}`, "failed to encode resource: "+err.Error()))
	}
	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: mimeJSON,
			Text:     string(data),
		},
	}, nil
}
