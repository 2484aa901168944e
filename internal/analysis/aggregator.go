package analysis

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/moralgraph/simulator/internal/errors"
	"github.com/moralgraph/simulator/internal/rubric"
	"github.com/moralgraph/simulator/internal/types"
)

// Statistics holds the descriptive statistics for a sequence of values.
// Std is the sample standard deviation (ddof=1) and is NaN when Count < 2;
// callers rendering JSON should treat NaN as null.
type Statistics struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	P25   float64 `json:"p25"`
	P50   float64 `json:"p50"`
	P75   float64 `json:"p75"`
}

// nullFloat renders NaN as JSON null instead of failing the marshal
type nullFloat float64

func (f nullFloat) MarshalJSON() ([]byte, error) {
	if math.IsNaN(float64(f)) {
		return []byte("null"), nil
	}
	return json.Marshal(float64(f))
}

func (f *nullFloat) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = nullFloat(math.NaN())
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = nullFloat(v)
	return nil
}

type statisticsJSON struct {
	Count int       `json:"count"`
	Mean  nullFloat `json:"mean"`
	Std   nullFloat `json:"std"`
	Min   nullFloat `json:"min"`
	Max   nullFloat `json:"max"`
	P25   nullFloat `json:"p25"`
	P50   nullFloat `json:"p50"`
	P75   nullFloat `json:"p75"`
}

// MarshalJSON implements json.Marshaler. Undefined statistics (std for
// count < 2, everything for an empty input) serialize as null.
func (s Statistics) MarshalJSON() ([]byte, error) {
	return json.Marshal(statisticsJSON{
		Count: s.Count,
		Mean:  nullFloat(s.Mean),
		Std:   nullFloat(s.Std),
		Min:   nullFloat(s.Min),
		Max:   nullFloat(s.Max),
		P25:   nullFloat(s.P25),
		P50:   nullFloat(s.P50),
		P75:   nullFloat(s.P75),
	})
}

// UnmarshalJSON implements json.Unmarshaler, mapping null back to NaN
func (s *Statistics) UnmarshalJSON(data []byte) error {
	var aux statisticsJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*s = Statistics{
		Count: aux.Count,
		Mean:  float64(aux.Mean),
		Std:   float64(aux.Std),
		Min:   float64(aux.Min),
		Max:   float64(aux.Max),
		P25:   float64(aux.P25),
		P50:   float64(aux.P50),
		P75:   float64(aux.P75),
	}
	return nil
}

// WeightedTotal folds a score map into Σ score[d] × weight[d] over the
// rubric's dimensions. A score map missing a rubric dimension, or carrying a
// key the rubric does not declare, fails with an UnknownDimensionError.
func WeightedTotal(r *rubric.Rubric, scores map[string]float64) (float64, error) {
	// Extra keys first, so the error names the stray key rather than a
	// dimension that happens to be missing too.
	for key := range scores {
		if !r.Contains(key) {
			return 0, errors.NewUnknownDimensionError(key)
		}
	}

	total := 0.0
	for _, name := range r.DimensionNames() {
		score, ok := scores[name]
		if !ok {
			return 0, errors.NewUnknownDimensionError(name)
		}
		weight, err := r.WeightOf(name)
		if err != nil {
			return 0, err
		}
		total += score * weight
	}

	return total, nil
}

// Summarize computes descriptive statistics over values. Empty and
// single-element inputs do not panic: Count is reported as-is and the
// undefined fields come back NaN.
func Summarize(values []float64) Statistics {
	n := len(values)
	if n == 0 {
		return Statistics{
			Count: 0,
			Mean:  math.NaN(),
			Std:   math.NaN(),
			Min:   math.NaN(),
			Max:   math.NaN(),
			P25:   math.NaN(),
			P50:   math.NaN(),
			P75:   math.NaN(),
		}
	}

	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(n)

	std := math.NaN()
	if n >= 2 {
		ss := 0.0
		for _, v := range sorted {
			d := v - mean
			ss += d * d
		}
		std = math.Sqrt(ss / float64(n-1))
	}

	return Statistics{
		Count: n,
		Mean:  mean,
		Std:   std,
		Min:   sorted[0],
		Max:   sorted[n-1],
		P25:   percentile(sorted, 0.25),
		P50:   percentile(sorted, 0.50),
		P75:   percentile(sorted, 0.75),
	}
}

// percentile computes the p-th quantile of a sorted slice with linear
// interpolation between closest ranks.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return math.NaN()
	}
	if n == 1 {
		return sorted[0]
	}

	rank := p * float64(n-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}

	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Grouped holds per-partition statistics with first-seen key order preserved
// for deterministic report layout.
type Grouped struct {
	keys   []string
	values map[string][]float64
}

// NewGrouped creates an empty grouping accumulator
func NewGrouped() *Grouped {
	return &Grouped{values: make(map[string][]float64)}
}

// Add appends a value to a partition, registering the key on first sight
func (g *Grouped) Add(key string, value float64) {
	if _, seen := g.values[key]; !seen {
		g.keys = append(g.keys, key)
	}
	g.values[key] = append(g.values[key], value)
}

// Keys returns partition keys in first-seen order
func (g *Grouped) Keys() []string {
	return append([]string(nil), g.keys...)
}

// Stats summarizes one partition
func (g *Grouped) Stats(key string) (Statistics, bool) {
	values, ok := g.values[key]
	if !ok {
		return Statistics{}, false
	}
	return Summarize(values), true
}

// GroupBy partitions interactions by an arbitrary key extractor and collects
// valueFn per partition.
func GroupBy(interactions []types.Interaction, keyFn func(types.Interaction) string, valueFn func(types.Interaction) float64) *Grouped {
	g := NewGrouped()
	for _, it := range interactions {
		g.Add(keyFn(it), valueFn(it))
	}
	return g
}

// ByTopic groups total weighted scores by interaction topic
func ByTopic(interactions []types.Interaction) *Grouped {
	return GroupBy(interactions,
		func(it types.Interaction) string { return it.Topic },
		func(it types.Interaction) float64 { return it.TotalWeightedScore },
	)
}

// ByDimension groups raw dimension scores along the rubric's dimension axis.
// Partition order follows the rubric declaration, not interaction order.
func ByDimension(r *rubric.Rubric, interactions []types.Interaction) *Grouped {
	g := NewGrouped()
	for _, name := range r.DimensionNames() {
		for _, it := range interactions {
			if score, ok := it.Scores[name]; ok {
				g.Add(name, score)
			}
		}
	}
	return g
}
