package embedding

import (
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

// charsPerToken approximates token length when the codec cannot be loaded.
const charsPerToken = 4

// Truncator shortens text to a token budget using the cl100k_base encoding.
type Truncator struct {
	maxTokens int

	once  sync.Once
	codec tokenizer.Codec
}

// NewTruncator returns a Truncator for maxTokens. Non-positive disables truncation.
func NewTruncator(maxTokens int) *Truncator {
	return &Truncator{maxTokens: maxTokens}
}

// Truncate returns text cut to at most maxTokens tokens.
func (t *Truncator) Truncate(text string) string {
	if t == nil || t.maxTokens <= 0 || text == "" {
		return text
	}
	// A token never spans fewer than one byte.
	if len(text) <= t.maxTokens {
		return text
	}

	t.once.Do(func() {
		codec, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err == nil {
			t.codec = codec
		}
	})

	if t.codec == nil {
		return truncateRunes(text, t.maxTokens*charsPerToken)
	}

	ids, _, err := t.codec.Encode(text)
	if err != nil {
		return truncateRunes(text, t.maxTokens*charsPerToken)
	}
	if len(ids) <= t.maxTokens {
		return text
	}

	out, err := t.codec.Decode(ids[:t.maxTokens])
	if err != nil {
		return truncateRunes(text, t.maxTokens*charsPerToken)
	}
	// The cut can split a multi-byte character.
	return strings.ToValidUTF8(out, "")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
