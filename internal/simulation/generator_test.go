package simulation

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moralgraph/simulator/internal/rubric"
	"github.com/moralgraph/simulator/internal/types"
)

func TestCorrelatedGeneratorProducesCompleteScoreMap(t *testing.T) {
	r := rubric.Default()
	gen := NewCorrelatedGenerator()
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		scores, err := gen.Generate(r, Context{Participant: types.Participant{ID: "P0001"}}, rng)
		require.NoError(t, err)

		assert.Len(t, scores, r.Len())
		for _, name := range r.DimensionNames() {
			score, ok := scores[name]
			require.True(t, ok, "missing score for %q", name)
			assert.GreaterOrEqual(t, score, rubric.MinScore)
			assert.LessOrEqual(t, score, rubric.MaxScore)
		}
	}
}

func TestCorrelatedGeneratorSnapsToGrid(t *testing.T) {
	r := rubric.Default()
	gen := NewCorrelatedGenerator()
	rng := rand.New(rand.NewSource(7))

	valid := make(map[float64]bool, len(scoreGrid))
	for _, s := range scoreGrid {
		valid[s] = true
	}

	for i := 0; i < 100; i++ {
		scores, err := gen.Generate(r, Context{}, rng)
		require.NoError(t, err)
		for name, score := range scores {
			assert.True(t, valid[score], "score %.3f for %q not on the 0.5 grid", score, name)
		}
	}
}

func TestCorrelatedGeneratorIsDeterministicForSeed(t *testing.T) {
	r := rubric.Default()
	gen := NewCorrelatedGenerator()

	first, err := gen.Generate(r, Context{}, rand.New(rand.NewSource(99)))
	require.NoError(t, err)
	second, err := gen.Generate(r, Context{}, rand.New(rand.NewSource(99)))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestCorrelatedGeneratorDoesNotMutateRubric(t *testing.T) {
	r := rubric.Default()
	before := r.Dimensions()

	gen := NewCorrelatedGenerator()
	_, err := gen.Generate(r, Context{}, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	assert.Equal(t, before, r.Dimensions())
}

func TestAffinityShiftsTopicScores(t *testing.T) {
	r := rubric.Default()
	gen := NewCorrelatedGenerator()

	p := types.Participant{
		ID:       "P0001",
		Strength: "Mathematics and Logic",
		Weakness: "Economics and Business",
	}

	meanFor := func(topic string) float64 {
		rng := rand.New(rand.NewSource(55))
		sum, n := 0.0, 0
		for i := 0; i < 400; i++ {
			scores, err := gen.Generate(r, Context{Participant: p, Topic: topic}, rng)
			require.NoError(t, err)
			for _, s := range scores {
				sum += s
				n++
			}
		}
		return sum / float64(n)
	}

	strength := meanFor(p.Strength)
	neutral := meanFor("Health and Medicine")
	weakness := meanFor(p.Weakness)

	assert.Greater(t, strength, neutral)
	assert.Greater(t, neutral, weakness)
}

func TestSnapToGrid(t *testing.T) {
	tests := []struct {
		name     string
		raw      float64
		expected float64
	}{
		{name: "exact grid value", raw: 3.5, expected: 3.5},
		{name: "rounds down", raw: 3.2, expected: 3.0},
		{name: "rounds up", raw: 3.3, expected: 3.5},
		{name: "below minimum clamps to grid floor", raw: 0.4, expected: 1.0},
		{name: "above maximum clamps to grid ceiling", raw: 6.2, expected: 5.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, snapToGrid(tt.raw))
		})
	}
}

func TestTopicPickerCoversTopics(t *testing.T) {
	picker := newTopicPicker(rubric.Topics)
	rng := rand.New(rand.NewSource(3))

	seen := make(map[string]bool)
	for i := 0; i < 500; i++ {
		topic := picker.pick(rng)
		assert.Contains(t, rubric.Topics, topic)
		seen[topic] = true
	}

	// With 500 draws over 8 topics every topic should appear
	assert.Len(t, seen, len(rubric.Topics))
}
