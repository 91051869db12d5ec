package embedding

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
)

// HashProvider embeds text by feature hashing words and word bigrams into a
// fixed number of buckets. It is deterministic and needs no network, which
// makes it the default for development and tests. Texts sharing vocabulary
// score higher under cosine similarity.
type HashProvider struct {
	dimensions int
}

// NewHashProvider returns a HashProvider. Non-positive dimensions use 384.
func NewHashProvider(dimensions int) *HashProvider {
	if dimensions <= 0 {
		dimensions = DefaultHashDimensions
	}
	return &HashProvider{dimensions: dimensions}
}

// Encode returns the L2-normalized feature vector of text. Text without any
// word characters yields the zero vector.
func (p *HashProvider) Encode(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, p.dimensions)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	for i, w := range words {
		p.add(vec, w, 1)
		if i > 0 {
			p.add(vec, words[i-1]+" "+w, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

func (p *HashProvider) add(vec []float32, feature string, weight float32) {
	h := xxhash.Sum64String(feature)
	idx := h % uint64(p.dimensions)
	if h>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

// Dimensions returns the vector size.
func (p *HashProvider) Dimensions() int {
	return p.dimensions
}

// Name returns "hash".
func (p *HashProvider) Name() string {
	return ProviderHash
}
