package simulation

import (
	"math"
	"math/rand"

	"github.com/moralgraph/simulator/internal/rubric"
	"github.com/moralgraph/simulator/internal/types"
)

// scoreGrid is the granular scoring scale raw scores snap to
var scoreGrid = []float64{1.0, 1.5, 2.0, 2.5, 3.0, 3.5, 4.0, 4.5, 5.0}

// Context carries participant attributes a generator may condition on
type Context struct {
	Participant types.Participant
	Topic       string
}

// Generator produces one raw score per rubric dimension for a single
// interaction. Implementations must return exactly the rubric's dimension
// set, every value in [1.0, 5.0], must be deterministic given the supplied
// rng, and must never mutate the rubric.
type Generator interface {
	Generate(r *rubric.Rubric, ctx Context, rng *rand.Rand) (map[string]float64, error)
}

// CorrelatedGenerator draws a latent per-interaction quality factor and
// derives dimension scores from it, so good performance tends to be
// consistent across dimensions instead of degenerate uniform noise.
// AffinityShift moves the latent mean up on the participant's strength
// topic and down on the weakness topic.
type CorrelatedGenerator struct {
	BaseMean      float64
	BaseStd       float64
	NoiseStd      float64
	AffinityShift float64
}

// NewCorrelatedGenerator returns a generator centered on a 3.5 latent
// quality with moderate cross-dimension noise.
func NewCorrelatedGenerator() *CorrelatedGenerator {
	return &CorrelatedGenerator{
		BaseMean:      3.5,
		BaseStd:       0.7,
		NoiseStd:      0.5,
		AffinityShift: 0.4,
	}
}

// Generate implements Generator
func (g *CorrelatedGenerator) Generate(r *rubric.Rubric, ctx Context, rng *rand.Rand) (map[string]float64, error) {
	mean := g.BaseMean
	switch {
	case ctx.Topic == "":
	case ctx.Topic == ctx.Participant.Strength:
		mean += g.AffinityShift
	case ctx.Topic == ctx.Participant.Weakness:
		mean -= g.AffinityShift
	}

	base := clamp(mean+rng.NormFloat64()*g.BaseStd, rubric.MinScore, rubric.MaxScore)

	scores := make(map[string]float64, r.Len())
	for _, name := range r.DimensionNames() {
		raw := clamp(base+rng.NormFloat64()*g.NoiseStd, rubric.MinScore, rubric.MaxScore)
		scores[name] = snapToGrid(raw)
	}

	return scores, nil
}

// snapToGrid rounds a raw score to the nearest valid grid value
func snapToGrid(raw float64) float64 {
	best := scoreGrid[0]
	bestDist := math.Abs(raw - best)
	for _, s := range scoreGrid[1:] {
		if d := math.Abs(raw - s); d < bestDist {
			best = s
			bestDist = d
		}
	}
	return best
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// topicPicker tracks per-participant topic usage so interaction topics show
// realistic variety: previously used topics are favored with probability
// 0.7, weighted toward the less-used ones.
type topicPicker struct {
	topics []string
	counts map[string]int
}

func newTopicPicker(topics []string) *topicPicker {
	return &topicPicker{
		topics: topics,
		counts: make(map[string]int, len(topics)),
	}
}

func (p *topicPicker) pick(rng *rand.Rand) string {
	anyUsed := false
	for _, c := range p.counts {
		if c > 0 {
			anyUsed = true
			break
		}
	}

	var topic string
	if anyUsed && rng.Float64() < 0.7 {
		topic = p.weightedPick(rng)
	} else {
		topic = p.topics[rng.Intn(len(p.topics))]
	}

	p.counts[topic]++
	return topic
}

func (p *topicPicker) weightedPick(rng *rand.Rand) string {
	weights := make([]float64, len(p.topics))
	total := 0.0
	for i, topic := range p.topics {
		weights[i] = 1.0 / float64(p.counts[topic]+1)
		total += weights[i]
	}

	target := rng.Float64() * total
	for i, topic := range p.topics {
		target -= weights[i]
		if target <= 0 {
			return topic
		}
	}
	return p.topics[len(p.topics)-1]
}
