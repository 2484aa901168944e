package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/moralgraph/simulator/internal/analysis"
	"github.com/moralgraph/simulator/internal/errors"
	"github.com/moralgraph/simulator/internal/rubric"
	"github.com/moralgraph/simulator/internal/types"
)

// Fixed leading and trailing CSV columns; dimension columns sit between
// them in rubric declaration order.
var (
	csvLeadColumns  = []string{"ParticipantID", "InteractionID", "Specialization"}
	csvTotalColumn  = "TotalWeightedScore"
	totalsTolerance = 1e-6
)

// WriteCSV exports an experiment's interactions in the interchange layout:
// ParticipantID, InteractionID, Specialization, one column per rubric
// dimension, TotalWeightedScore. Scores are written with shortest exact
// formatting so a round-trip reproduces identical records.
func WriteCSV(w io.Writer, r *rubric.Rubric, result *types.ExperimentResult) error {
	cw := csv.NewWriter(w)

	header := append([]string{}, csvLeadColumns...)
	header = append(header, r.DimensionNames()...)
	header = append(header, csvTotalColumn)
	if err := cw.Write(header); err != nil {
		return errors.WrapError(err, "writing csv header")
	}

	for _, it := range result.Interactions {
		record := []string{it.ParticipantID, it.InteractionID, it.Topic}
		for _, name := range r.DimensionNames() {
			score, ok := it.Scores[name]
			if !ok {
				return errors.NewUnknownDimensionError(name)
			}
			record = append(record, formatFloat(score))
		}
		record = append(record, formatFloat(it.TotalWeightedScore))

		if err := cw.Write(record); err != nil {
			return errors.WrapError(err, "writing csv record for %s", it.InteractionID)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCSV re-ingests an interchange CSV against a rubric. The header's
// dimension columns must exactly match the rubric; each row's stored total
// is verified against the recomputed weighted total.
func ReadCSV(rd io.Reader, r *rubric.Rubric) (*types.ExperimentResult, error) {
	cr := csv.NewReader(rd)

	header, err := cr.Read()
	if err != nil {
		return nil, errors.NewValidationError("csv import: missing header", err)
	}

	expected := len(csvLeadColumns) + r.Len() + 1
	if len(header) != expected {
		return nil, errors.NewValidationError(
			fmt.Sprintf("csv import: header has %d columns, expected %d", len(header), expected))
	}
	for i, want := range csvLeadColumns {
		if header[i] != want {
			return nil, errors.NewValidationError(
				fmt.Sprintf("csv import: column %d is %q, expected %q", i, header[i], want))
		}
	}
	for i, name := range r.DimensionNames() {
		if got := header[len(csvLeadColumns)+i]; got != name {
			return nil, errors.NewUnknownDimensionError(got)
		}
	}
	if last := header[len(header)-1]; last != csvTotalColumn {
		return nil, errors.NewValidationError(
			fmt.Sprintf("csv import: last column is %q, expected %q", last, csvTotalColumn))
	}

	result := &types.ExperimentResult{}
	row := 0
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewValidationError(fmt.Sprintf("csv import: row %d", row+1), err)
		}
		row++

		it := types.Interaction{
			ParticipantID: record[0],
			InteractionID: record[1],
			Topic:         record[2],
			Scores:        make(map[string]float64, r.Len()),
		}

		for i, name := range r.DimensionNames() {
			score, err := strconv.ParseFloat(record[len(csvLeadColumns)+i], 64)
			if err != nil {
				return nil, errors.NewValidationError(
					fmt.Sprintf("csv import: row %d dimension %q", row, name), err)
			}
			if score < rubric.MinScore || score > rubric.MaxScore {
				return nil, errors.NewValidationError(
					fmt.Sprintf("csv import: row %d dimension %q score %.2f outside [%.1f, %.1f]",
						row, name, score, rubric.MinScore, rubric.MaxScore))
			}
			it.Scores[name] = score
		}

		total, err := strconv.ParseFloat(record[len(record)-1], 64)
		if err != nil {
			return nil, errors.NewValidationError(fmt.Sprintf("csv import: row %d total", row), err)
		}

		recomputed, err := analysis.WeightedTotal(r, it.Scores)
		if err != nil {
			return nil, err
		}
		if diff := total - recomputed; diff > totalsTolerance || diff < -totalsTolerance {
			return nil, errors.NewValidationError(
				fmt.Sprintf("csv import: row %d total %.6f does not match recomputed %.6f", row, total, recomputed))
		}
		it.TotalWeightedScore = total

		result.Interactions = append(result.Interactions, it)
	}

	return result, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
