// Package embedding maps normalized text into a fixed-dimension vector space
// for approximate semantic comparison. The embedding is a stateless feature
// hash: it depends only on the input text, so vectors computed at any time
// remain directly comparable to each other.
package embedding

import (
	"hash/fnv"
	"math"
	"strings"
)

const (
	// Dimension is the fixed size of every embedding vector.
	Dimension = 256

	// maxInputChars bounds embedding cost; longer text is truncated.
	// Duplicate detection is a fuzzy signal, so the approximation is fine.
	maxInputChars = 10000

	// maxTokens caps how many leading tokens contribute to the vector.
	maxTokens = 500
)

// Embedder produces deterministic feature-hashed embeddings.
type Embedder struct {
	dimension int
}

// New returns an Embedder with the default dimension.
func New() *Embedder {
	return &Embedder{dimension: Dimension}
}

// Embed maps text to an L2-normalized vector. Tokens are hashed into
// buckets and weighted by inverse rank, so earlier tokens count more.
// Empty or whitespace-only text yields the zero vector.
func (e *Embedder) Embed(text string) []float64 {
	if runes := []rune(text); len(runes) > maxInputChars {
		text = string(runes[:maxInputChars])
	}
	vec := make([]float64, e.dimension)
	tokens := strings.Fields(strings.ToLower(text))
	if len(tokens) > maxTokens {
		tokens = tokens[:maxTokens]
	}
	for rank, token := range tokens {
		vec[e.bucket(token)] += 1.0 / float64(rank+1)
	}
	normalize(vec)
	return vec
}

func (e *Embedder) bucket(token string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(token))
	return int(h.Sum32() % uint32(e.dimension))
}

func normalize(vec []float64) {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
}

// Similarity returns the cosine similarity of two vectors, truncated to
// their common length. A zero vector on either side yields 0.0. If the
// cosine computation degenerates numerically, it falls back to Jaccard
// similarity over the sets of nonzero dimensions.
func Similarity(a, b []float64) float64 {
	n := min(len(a), len(b))
	if n == 0 {
		return 0.0
	}
	a, b = a[:n], b[:n]

	if equalNonzero(a, b) {
		return 1.0
	}

	var dot, normA, normB float64
	for i := range n {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0.0
	}
	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return jaccard(a, b)
	}
	// Clamp rounding drift so identical vectors compare as exactly 1.
	return math.Min(sim, 1.0)
}

func equalNonzero(a, b []float64) bool {
	nonzero := false
	for i := range a {
		if a[i] != b[i] {
			return false
		}
		if a[i] != 0 {
			nonzero = true
		}
	}
	return nonzero
}

func jaccard(a, b []float64) float64 {
	var intersection, union int
	for i := range a {
		nza, nzb := a[i] != 0, b[i] != 0
		if nza && nzb {
			intersection++
		}
		if nza || nzb {
			union++
		}
	}
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}
