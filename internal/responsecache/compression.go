package responsecache

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
)

// DefaultCompressionThreshold is the serialized size in bytes above which
// response data is compressed.
const DefaultCompressionThreshold = 5120

// AlgorithmGzip names gzip compression in CompressionInfo.
const AlgorithmGzip = "gzip"

// CompressionInfo describes how a record's response data is stored.
type CompressionInfo struct {
	Applied        bool   `json:"applied"`
	Algorithm      string `json:"algorithm,omitempty"`
	OriginalSize   int64  `json:"original_size"`
	CompressedSize int64  `json:"compressed_size"`
}

// CompressionResult is the output of CompressIfNeeded.
type CompressionResult struct {
	Data []byte
	CompressionInfo
}

// Compressor applies size-gated gzip compression.
type Compressor struct {
	// Threshold is exclusive: data of exactly Threshold bytes is left alone.
	Threshold int
	Level     int
}

// NewCompressor returns a Compressor. A threshold of 0 or less uses the default.
func NewCompressor(threshold int) *Compressor {
	if threshold <= 0 {
		threshold = DefaultCompressionThreshold
	}
	return &Compressor{Threshold: threshold, Level: gzip.BestCompression}
}

// CompressIfNeeded compresses data when it is larger than the threshold.
// The output is deterministic for a given input.
func (c *Compressor) CompressIfNeeded(data []byte) (CompressionResult, error) {
	size := int64(len(data))
	if len(data) <= c.Threshold {
		return CompressionResult{
			Data:            data,
			CompressionInfo: CompressionInfo{OriginalSize: size, CompressedSize: size},
		}, nil
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, c.Level)
	if err != nil {
		return CompressionResult{}, fmt.Errorf("create gzip writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return CompressionResult{}, fmt.Errorf("compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return CompressionResult{}, fmt.Errorf("compress: %w", err)
	}

	return CompressionResult{
		Data: buf.Bytes(),
		CompressionInfo: CompressionInfo{
			Applied:        true,
			Algorithm:      AlgorithmGzip,
			OriginalSize:   size,
			CompressedSize: int64(buf.Len()),
		},
	}, nil
}

// Decompress reverses CompressIfNeeded. Data that was not compressed is
// returned unchanged.
func (c *Compressor) Decompress(data []byte, info CompressionInfo) ([]byte, error) {
	if !info.Applied {
		return data, nil
	}
	if info.Algorithm != "" && info.Algorithm != AlgorithmGzip {
		return nil, fmt.Errorf("unsupported compression algorithm %q", info.Algorithm)
	}

	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}
	return out, nil
}
