package responsecache

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressor_RoundTrip(t *testing.T) {
	c := NewCompressor(DefaultCompressionThreshold)

	tests := []struct {
		name        string
		size        int
		wantApplied bool
	}{
		{name: "empty", size: 0, wantApplied: false},
		{name: "small", size: 100, wantApplied: false},
		{name: "at threshold", size: DefaultCompressionThreshold, wantApplied: false},
		{name: "one over threshold", size: DefaultCompressionThreshold + 1, wantApplied: true},
		{name: "large", size: 10240, wantApplied: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := bytes.Repeat([]byte("abcdefgh"), tt.size/8+1)[:tt.size]

			res, err := c.CompressIfNeeded(in)
			require.NoError(t, err)
			assert.Equal(t, tt.wantApplied, res.Applied)
			assert.Equal(t, int64(tt.size), res.OriginalSize)
			if tt.wantApplied {
				assert.Equal(t, AlgorithmGzip, res.Algorithm)
				assert.Less(t, res.CompressedSize, res.OriginalSize)
				assert.Equal(t, int64(len(res.Data)), res.CompressedSize)
			} else {
				assert.Equal(t, res.OriginalSize, res.CompressedSize)
			}

			out, err := c.Decompress(res.Data, res.CompressionInfo)
			require.NoError(t, err)
			assert.Equal(t, len(in), len(out))
			assert.True(t, bytes.Equal(in, out))
		})
	}
}

func TestCompressor_Deterministic(t *testing.T) {
	c := NewCompressor(10)
	in := []byte(strings.Repeat("deterministic ", 50))

	a, err := c.CompressIfNeeded(in)
	require.NoError(t, err)
	b, err := c.CompressIfNeeded(in)
	require.NoError(t, err)
	assert.Equal(t, a.Data, b.Data)
}

func TestCompressor_DecompressErrors(t *testing.T) {
	c := NewCompressor(0)
	assert.Equal(t, DefaultCompressionThreshold, c.Threshold)

	_, err := c.Decompress([]byte("not gzip"), CompressionInfo{Applied: true, Algorithm: AlgorithmGzip})
	assert.Error(t, err)

	_, err = c.Decompress([]byte("x"), CompressionInfo{Applied: true, Algorithm: "zstd"})
	assert.Error(t, err)
}
