package rng

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"
)

// fixedSource returns the same float on every draw.
type fixedSource struct{ f float64 }

func (s fixedSource) Intn(n int) int   { return 0 }
func (s fixedSource) Float64() float64 { return s.f }

func TestChanceEdges(t *testing.T) {
	// The edge probabilities never reach the source at all.
	assert.False(t, Chance(nil, 0))
	assert.False(t, Chance(nil, -0.5))
	assert.True(t, Chance(nil, 1))
	assert.True(t, Chance(nil, 1.5))
}

func TestChanceComparesAgainstDraw(t *testing.T) {
	assert.True(t, Chance(fixedSource{f: 0.29}, 0.3))
	assert.False(t, Chance(fixedSource{f: 0.3}, 0.3), "draw equal to p fails")
	assert.False(t, Chance(fixedSource{f: 0.31}, 0.3))
}

func TestSeededSourceReplays(t *testing.T) {
	first := NewSeededSource(42)
	second := NewSeededSource(42)

	for i := 0; i < 100; i++ {
		assert.Equal(t, first.Intn(1000), second.Intn(1000))
		assert.Equal(t, first.Float64(), second.Float64())
	}
}

func TestSeededSourceDivergesAcrossSeeds(t *testing.T) {
	first := NewSeededSource(1)
	second := NewSeededSource(2)

	same := true
	for i := 0; i < 20; i++ {
		if first.Intn(1 << 30) != second.Intn(1<<30) {
			same = false
		}
	}
	assert.False(t, same, "different seeds should produce different streams")
}

func TestSourcesStayInRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		seed := rapid.Int64().Draw(t, "seed")
		n := rapid.IntRange(1, 1_000_000).Draw(t, "n")

		for _, src := range []Source{NewSeededSource(seed), NewCryptoSource()} {
			v := src.Intn(n)
			if v < 0 || v >= n {
				t.Fatalf("Intn(%d) returned %d", n, v)
			}
			f := src.Float64()
			if f < 0 || f >= 1 {
				t.Fatalf("Float64 returned %v", f)
			}
		}
	})
}

func TestIntnPanicsOnNonPositive(t *testing.T) {
	assert.Panics(t, func() { NewSeededSource(1).Intn(0) })
	assert.Panics(t, func() { NewCryptoSource().Intn(-1) })
}

func TestLoggedSourceDelegatesAndRecords(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	src := NewLoggedSource(NewSeededSource(7), zap.New(core))
	mirror := NewSeededSource(7)

	require.Equal(t, mirror.Intn(100), src.Intn(100))
	require.Equal(t, mirror.Float64(), src.Float64())

	entries := logs.FilterMessage("rng draw").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "intn", entries[0].ContextMap()["kind"])
	assert.Equal(t, "float64", entries[1].ContextMap()["kind"])
}
