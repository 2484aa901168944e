package export

import (
	"fmt"
	"io"

	"github.com/moralgraph/simulator/internal/encoding"
	"github.com/moralgraph/simulator/internal/errors"
	"github.com/moralgraph/simulator/internal/rubric"
	"github.com/moralgraph/simulator/internal/types"
)

// jsonEnvelope wraps a result with the rubric's dimension list so the
// interchange file is self-describing on round-trip.
type jsonEnvelope struct {
	Dimensions []rubric.Dimension     `json:"dimensions"`
	Result     types.ExperimentResult `json:"result"`
}

// WriteJSON exports the full experiment result, including run metadata the
// CSV layout cannot carry, plus the rubric's dimension list. The output is
// indented so interchange files stay diffable.
func WriteJSON(w io.Writer, r *rubric.Rubric, result *types.ExperimentResult) error {
	data, err := encoding.MarshalIndentJSON(jsonEnvelope{
		Dimensions: r.Dimensions(),
		Result:     *result,
	})
	if err != nil {
		return errors.WrapError(err, "encoding experiment result")
	}

	_, err = w.Write(data)
	return err
}

// ReadJSON re-ingests a JSON export, validating every interaction's score
// map against the rubric.
func ReadJSON(rd io.Reader, r *rubric.Rubric) (*types.ExperimentResult, error) {
	data, err := io.ReadAll(rd)
	if err != nil {
		return nil, errors.NewValidationError("json import: reading payload", err)
	}

	var envelope jsonEnvelope
	if err := encoding.UnmarshalJSON(data, &envelope); err != nil {
		return nil, errors.NewValidationError("json import: malformed payload", err)
	}

	if len(envelope.Dimensions) != r.Len() {
		return nil, errors.NewValidationError(
			fmt.Sprintf("json import: payload declares %d dimensions, rubric has %d",
				len(envelope.Dimensions), r.Len()))
	}
	for i, name := range r.DimensionNames() {
		if envelope.Dimensions[i].Name != name {
			return nil, errors.NewUnknownDimensionError(envelope.Dimensions[i].Name)
		}
	}

	result := envelope.Result
	if err := Validate(r, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// Validate checks that every interaction carries a complete, in-range score
// vector for the rubric.
func Validate(r *rubric.Rubric, result *types.ExperimentResult) error {
	for i, it := range result.Interactions {
		if len(it.Scores) != r.Len() {
			return errors.NewValidationError(
				fmt.Sprintf("interaction %d has %d scores, rubric declares %d dimensions",
					i, len(it.Scores), r.Len()))
		}
		for key, score := range it.Scores {
			if !r.Contains(key) {
				return errors.NewUnknownDimensionError(key)
			}
			if score < rubric.MinScore || score > rubric.MaxScore {
				return errors.NewValidationError(
					fmt.Sprintf("interaction %d dimension %q score %.2f outside [%.1f, %.1f]",
						i, key, score, rubric.MinScore, rubric.MaxScore))
			}
		}
	}
	return nil
}
