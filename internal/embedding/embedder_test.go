package embedding

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmbed_Deterministic(t *testing.T) {
	t.Parallel()

	e := New()
	text := "The Minimum Wages Act provides for fixing minimum rates of wages."
	v1 := e.Embed(text)
	v2 := e.Embed(text)
	require.Equal(t, v1, v2)
	require.Len(t, v1, Dimension)
}

func TestEmbed_L2Normalized(t *testing.T) {
	t.Parallel()

	e := New()
	vec := e.Embed("wages workers act rule notification gazette amendment")
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	require.InDelta(t, 1.0, sum, 1e-9)
}

func TestEmbed_EmptyYieldsZeroVector(t *testing.T) {
	t.Parallel()

	e := New()
	vec := e.Embed("   \n\t ")
	for _, v := range vec {
		require.Zero(t, v)
	}
}

func TestEmbed_TruncatesLongInput(t *testing.T) {
	t.Parallel()

	e := New()
	base := strings.Repeat("wage worker act ", 700) // > 10000 chars
	extended := base + strings.Repeat("completely different suffix ", 100)
	require.Equal(t, e.Embed(base[:maxInputChars]), e.Embed(extended[:maxInputChars]))
	// Text beyond the truncation point must not change the vector.
	require.Equal(t, e.Embed(extended[:maxInputChars]), e.Embed(extended))
}

func TestEmbed_TruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()

	e := New()
	// Multi-byte runes: a byte-indexed cut would split one and change the
	// final token.
	long := strings.Repeat("श्रमिक मजदूरी अधिनियम ", 800)
	head := string([]rune(long)[:maxInputChars])
	require.Equal(t, e.Embed(head), e.Embed(long))
}

func TestSimilarity_Symmetric(t *testing.T) {
	t.Parallel()

	e := New()
	v1 := e.Embed("minimum wages act for scheduled employments")
	v2 := e.Embed("industrial disputes act conciliation proceedings")
	require.Equal(t, Similarity(v1, v2), Similarity(v2, v1))
}

func TestSimilarity_SelfIsExactlyOne(t *testing.T) {
	t.Parallel()

	e := New()
	v := e.Embed("payment of gratuity act nineteen seventy two")
	require.Equal(t, 1.0, Similarity(v, v))
}

func TestSimilarity_ZeroVectorIsZero(t *testing.T) {
	t.Parallel()

	zero := make([]float64, Dimension)
	v := New().Embed("factories act health safety welfare provisions")
	require.Equal(t, 0.0, Similarity(zero, v))
	require.Equal(t, 0.0, Similarity(v, zero))
	require.Equal(t, 0.0, Similarity(zero, zero))
}

func TestSimilarity_CommonLengthTruncation(t *testing.T) {
	t.Parallel()

	long := []float64{1, 0, 0, 1}
	short := []float64{1, 0}
	require.Equal(t, 1.0, Similarity(long, short))
}

func TestSimilarity_RangeAndOrdering(t *testing.T) {
	t.Parallel()

	e := New()
	base := e.Embed("the code on wages consolidates four labour laws relating to wages and bonus")
	near := e.Embed("the code on wages consolidates four labour laws relating to wages and bonus payments")
	far := e.Embed("maritime shipping customs tariff schedule")

	simNear := Similarity(base, near)
	simFar := Similarity(base, far)
	require.Greater(t, simNear, simFar)
	require.GreaterOrEqual(t, simNear, 0.0)
	require.LessOrEqual(t, simNear, 1.0)
}

func TestJaccard_Fallback(t *testing.T) {
	t.Parallel()

	a := []float64{1, 0, 1, 0}
	b := []float64{1, 1, 0, 0}
	require.InDelta(t, 1.0/3.0, jaccard(a, b), 1e-12)
	require.Equal(t, 0.0, jaccard([]float64{0, 0}, []float64{0, 0}))
}

func TestSimilarity_NotNaN(t *testing.T) {
	t.Parallel()

	tiny := []float64{math.SmallestNonzeroFloat64, 0}
	require.False(t, math.IsNaN(Similarity(tiny, tiny)))
}
