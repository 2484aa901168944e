package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/moralgraph/simulator/internal/rubric"
	"github.com/moralgraph/simulator/internal/types"
)

// TopicSummary is the per-topic slice of a report
type TopicSummary struct {
	Topic string  `json:"topic"`
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
}

// DimensionSummary is the per-dimension slice of a report
type DimensionSummary struct {
	Dimension string  `json:"dimension"`
	Mean      float64 `json:"mean"`
}

// SummaryReport is a derived, read-only view over a completed experiment.
// It is computed once per ExperimentResult snapshot; recompute it from
// scratch if the underlying result ever changes.
type SummaryReport struct {
	RunID             string             `json:"run_id"`
	TotalParticipants int                `json:"total_participants"`
	TotalInteractions int                `json:"total_interactions"`
	Overall           Statistics         `json:"overall"`
	Topics            []TopicSummary     `json:"topics"`
	Dimensions        []DimensionSummary `json:"dimensions"`
}

// BuildReport computes the summary over a completed experiment: overall
// statistics on TotalWeightedScore, per-topic counts and means, and
// per-dimension means. Topic and dimension breakdowns are two independent
// passes over the same interactions.
func BuildReport(r *rubric.Rubric, result *types.ExperimentResult) *SummaryReport {
	totals := make([]float64, len(result.Interactions))
	for i, it := range result.Interactions {
		totals[i] = it.TotalWeightedScore
	}

	byTopic := ByTopic(result.Interactions)
	topics := make([]TopicSummary, 0, len(byTopic.Keys()))
	for _, topic := range byTopic.Keys() {
		stats, _ := byTopic.Stats(topic)
		topics = append(topics, TopicSummary{
			Topic: topic,
			Count: stats.Count,
			Mean:  stats.Mean,
		})
	}
	// Busiest topics first, matching the original report layout
	sort.SliceStable(topics, func(i, j int) bool {
		return topics[i].Count > topics[j].Count
	})

	byDim := ByDimension(r, result.Interactions)
	dimensions := make([]DimensionSummary, 0, r.Len())
	for _, name := range byDim.Keys() {
		stats, _ := byDim.Stats(name)
		dimensions = append(dimensions, DimensionSummary{
			Dimension: name,
			Mean:      stats.Mean,
		})
	}

	return &SummaryReport{
		RunID:             result.RunID,
		TotalParticipants: len(result.ParticipantIDs()),
		TotalInteractions: len(result.Interactions),
		Overall:           Summarize(totals),
		Topics:            topics,
		Dimensions:        dimensions,
	}
}

// DimensionScores returns the per-dimension mean map consumed by the chart
// layer, keyed by dimension name.
func (sr *SummaryReport) DimensionScores() map[string]float64 {
	scores := make(map[string]float64, len(sr.Dimensions))
	for _, d := range sr.Dimensions {
		scores[d.Dimension] = d.Mean
	}
	return scores
}

// RenderMarkdown renders the human-readable experiment report
func (sr *SummaryReport) RenderMarkdown() string {
	var b strings.Builder

	b.WriteString("# Moral Graph Experiment Simulation\n")
	b.WriteString("\n## Experiment Results\n")

	b.WriteString("\n### Overview\n")
	fmt.Fprintf(&b, "- Total Participants: %d\n", sr.TotalParticipants)
	fmt.Fprintf(&b, "- Total Interactions: %d\n", sr.TotalInteractions)

	b.WriteString("\n### Score Statistics\n")
	b.WriteString("\nDistribution of Total Weighted Scores:\n\n")
	b.WriteString("| Metric | Value |\n")
	b.WriteString("|--------|-------|\n")
	fmt.Fprintf(&b, "| Count | %d |\n", sr.Overall.Count)
	fmt.Fprintf(&b, "| Mean | %s |\n", formatStat(sr.Overall.Mean))
	fmt.Fprintf(&b, "| Std Dev | %s |\n", formatStat(sr.Overall.Std))
	fmt.Fprintf(&b, "| Min | %s |\n", formatStat(sr.Overall.Min))
	fmt.Fprintf(&b, "| 25%% | %s |\n", formatStat(sr.Overall.P25))
	fmt.Fprintf(&b, "| Median | %s |\n", formatStat(sr.Overall.P50))
	fmt.Fprintf(&b, "| 75%% | %s |\n", formatStat(sr.Overall.P75))
	fmt.Fprintf(&b, "| Max | %s |\n", formatStat(sr.Overall.Max))

	b.WriteString("\n### Topic Distribution\n")
	b.WriteString("\nNumber of interactions per topic:\n\n")
	b.WriteString("| Topic | Count | Average Score |\n")
	b.WriteString("|-------|-------|---------------|\n")
	for _, topic := range sr.Topics {
		fmt.Fprintf(&b, "| %s | %d | %s |\n", topic.Topic, topic.Count, formatStat(topic.Mean))
	}

	b.WriteString("\n### Dimension Scores\n")
	b.WriteString("\nAverage scores per dimension:\n\n")
	b.WriteString("| Dimension | Average Score |\n")
	b.WriteString("|-----------|---------------|\n")
	for _, dim := range sr.Dimensions {
		fmt.Fprintf(&b, "| %s | %s |\n", dim.Dimension, formatStat(dim.Mean))
	}

	return b.String()
}

func formatStat(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f", v)
}
