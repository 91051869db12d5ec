package responsecache

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/teemow/workspace-mcp/internal/vectorstore"
)

// Kind classifies a stored record by the tool that produced it.
type Kind string

// Record kinds.
const (
	KindToolResponse Kind = "tool_response"
	KindCluster      Kind = "cluster"
	KindJob          Kind = "job"
	KindQuery        Kind = "query"
	KindGeneric      Kind = "generic"
)

// ClassifyKind derives a record kind from a tool name.
func ClassifyKind(toolName string) Kind {
	name := strings.ToLower(toolName)
	switch {
	case name == "":
		return KindGeneric
	case strings.Contains(name, "cluster"):
		return KindCluster
	case strings.Contains(name, "job"):
		return KindJob
	case strings.Contains(name, "query"), strings.Contains(name, "search"):
		return KindQuery
	}
	return KindToolResponse
}

// Payload field names. These are the keys filters and group-by refer to.
const (
	FieldKind               = "kind"
	FieldToolName           = "tool_name"
	FieldTimestamp          = "timestamp"
	FieldTimestampMs        = "timestamp_ms"
	FieldExecutionTimeMs    = "execution_time_ms"
	FieldSessionID          = "session_id"
	FieldUserEmail          = "user_email"
	FieldToolArgs           = "tool_args"
	FieldResponseData       = "response_data"
	FieldResponseSummary    = "response_summary"
	FieldResponseTypeTag    = "response_type_tag"
	FieldCompressionApplied = "compression_applied"
	FieldCompressionAlgo    = "compression_algorithm"
	FieldOriginalSize       = "original_size"
	FieldCompressedSize     = "compressed_size"
)

// StructuredPayload is one cached tool call. Records are write-once.
type StructuredPayload struct {
	ID              string          `json:"id"`
	Kind            Kind            `json:"kind"`
	ToolName        string          `json:"tool_name"`
	Timestamp       time.Time       `json:"timestamp"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
	SessionID       string          `json:"session_id,omitempty"`
	UserEmail       string          `json:"user_email,omitempty"`
	ToolArgs        Value           `json:"tool_args"`
	ResponseData    Value           `json:"response_data"`
	ResponseSummary string          `json:"response_summary"`
	ResponseTypeTag string          `json:"response_type_tag,omitempty"`
	Compression     CompressionInfo `json:"compression"`

	// Set on read when the stored response could not be decoded.
	RawResponse string `json:"raw_response,omitempty"`
	DecodeError string `json:"decode_error,omitempty"`
}

// encodePayload flattens rec into a backend payload. The response data is
// serialized, compressed when large, and stored as text.
func encodePayload(rec *StructuredPayload, c *Compressor) (map[string]any, error) {
	data, err := rec.ResponseData.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("serialize response: %w", err)
	}
	args, err := rec.ToolArgs.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("serialize tool args: %w", err)
	}

	res, err := c.CompressIfNeeded(data)
	if err != nil {
		return nil, err
	}
	rec.Compression = res.CompressionInfo

	stored := string(res.Data)
	if res.Applied {
		stored = base64.StdEncoding.EncodeToString(res.Data)
	}

	return map[string]any{
		FieldKind:               string(rec.Kind),
		FieldToolName:           rec.ToolName,
		FieldTimestamp:          rec.Timestamp.Format(time.RFC3339Nano),
		FieldTimestampMs:        rec.Timestamp.UnixMilli(),
		FieldExecutionTimeMs:    rec.ExecutionTimeMs,
		FieldSessionID:          rec.SessionID,
		FieldUserEmail:          rec.UserEmail,
		FieldToolArgs:           string(args),
		FieldResponseData:       stored,
		FieldResponseSummary:    rec.ResponseSummary,
		FieldResponseTypeTag:    rec.ResponseTypeTag,
		FieldCompressionApplied: res.Applied,
		FieldCompressionAlgo:    res.Algorithm,
		FieldOriginalSize:       res.OriginalSize,
		FieldCompressedSize:     res.CompressedSize,
	}, nil
}

// decodePayload rebuilds a record from a backend point. A response that
// fails to decompress or parse is reported through RawResponse and
// DecodeError instead of an error.
func decodePayload(p vectorstore.Point, c *Compressor) *StructuredPayload {
	pl := p.Payload
	rec := &StructuredPayload{
		ID:              p.ID,
		Kind:            Kind(payloadString(pl, FieldKind)),
		ToolName:        payloadString(pl, FieldToolName),
		ExecutionTimeMs: payloadInt(pl, FieldExecutionTimeMs),
		SessionID:       payloadString(pl, FieldSessionID),
		UserEmail:       payloadString(pl, FieldUserEmail),
		ResponseSummary: payloadString(pl, FieldResponseSummary),
		ResponseTypeTag: payloadString(pl, FieldResponseTypeTag),
		Compression: CompressionInfo{
			Applied:        payloadBool(pl, FieldCompressionApplied),
			Algorithm:      payloadString(pl, FieldCompressionAlgo),
			OriginalSize:   payloadInt(pl, FieldOriginalSize),
			CompressedSize: payloadInt(pl, FieldCompressedSize),
		},
	}

	rec.Timestamp = payloadTime(pl)

	if args := payloadString(pl, FieldToolArgs); args != "" {
		if v, err := ParseJSON([]byte(args)); err == nil {
			rec.ToolArgs = v
		}
	}

	stored := payloadString(pl, FieldResponseData)
	data, err := responseBytes(stored, rec.Compression, c)
	if err != nil {
		rec.RawResponse = stored
		rec.DecodeError = err.Error()
		return rec
	}
	if len(data) == 0 {
		return rec
	}
	v, err := ParseJSON(data)
	if err != nil {
		rec.RawResponse = stored
		rec.DecodeError = fmt.Sprintf("parse response: %v", err)
		return rec
	}
	rec.ResponseData = v
	return rec
}

func responseBytes(stored string, info CompressionInfo, c *Compressor) ([]byte, error) {
	if !info.Applied {
		return []byte(stored), nil
	}
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return nil, fmt.Errorf("decode compressed response: %w", err)
	}
	return c.Decompress(raw, info)
}

// MarshalIndent renders rec as indented JSON for tools and resources.
func (rec *StructuredPayload) MarshalIndent() ([]byte, error) {
	return json.MarshalIndent(rec, "", "  ")
}

func payloadString(pl map[string]any, key string) string {
	s, _ := pl[key].(string)
	return s
}

func payloadBool(pl map[string]any, key string) bool {
	b, _ := pl[key].(bool)
	return b
}

func payloadInt(pl map[string]any, key string) int64 {
	switch v := pl[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func payloadNumber(pl map[string]any, key string) (float64, bool) {
	switch v := pl[key].(type) {
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

// payloadTime is the record time at full precision, falling back to
// timestamp_ms for records without the RFC 3339 field.
func payloadTime(pl map[string]any) time.Time {
	if ts, err := time.Parse(time.RFC3339Nano, payloadString(pl, FieldTimestamp)); err == nil {
		return ts.UTC()
	}
	if ms := payloadInt(pl, FieldTimestampMs); ms > 0 {
		return time.UnixMilli(ms).UTC()
	}
	return time.Time{}
}
