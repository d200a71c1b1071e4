package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"unicode"
)

const (
	wordWeight    = 1.0
	trigramWeight = 0.5
)

// HashingEmbedder is a local, dependency-free embedder. Each word and each
// character trigram of a word is hashed into one of Dimensions buckets with
// a hash-derived sign; the result is L2-normalized. Shared trigrams give
// related words (bike, bikes, biking) a positive similarity.
type HashingEmbedder struct {
	dims int
}

// NewHashingEmbedder creates a hashing embedder; dims below 16 are raised to 16
func NewHashingEmbedder(dims int) *HashingEmbedder {
	if dims < 16 {
		dims = 16
	}
	return &HashingEmbedder{dims: dims}
}

func (h *HashingEmbedder) Dimensions() int { return h.dims }

func (h *HashingEmbedder) ModelVersion() string {
	return fmt.Sprintf("hashing-v1-%d", h.dims)
}

// Embed never fails; text without any letters or digits maps to the zero vector
func (h *HashingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dims)
	for _, word := range Tokenize(text) {
		h.add(vec, "w:"+word, wordWeight)
		padded := []rune("#" + word + "#")
		for i := 0; i+3 <= len(padded); i++ {
			h.add(vec, "t:"+string(padded[i:i+3]), trigramWeight)
		}
	}
	Normalize(vec)
	return vec, nil
}

func (h *HashingEmbedder) add(vec []float32, feature string, weight float32) {
	hasher := fnv.New64a()
	hasher.Write([]byte(feature))
	sum := hasher.Sum64()
	idx := int(sum % uint64(h.dims))
	if (sum>>63)&1 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

// Tokenize lower-cases text and splits it on anything that is not a letter or digit
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
