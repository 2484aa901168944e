package database

import (
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/moralgraph/simulator/internal/encoding"
	"github.com/moralgraph/simulator/internal/errors"
	"github.com/moralgraph/simulator/internal/types"
)

// Repository handles experiment persistence
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// SaveResult persists a completed experiment and all its interactions in a
// single transaction.
func (r *Repository) SaveResult(result *types.ExperimentResult) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (id, seed, participant_count, interaction_count, started_at, completed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, result.RunID, result.Seed, len(result.ParticipantIDs()), len(result.Interactions),
		result.StartedAt, result.CompletedAt, time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO interactions (id, run_id, position, participant_id, topic, scores, total_weighted_score)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare interaction insert: %w", err)
	}
	defer stmt.Close()

	for i, it := range result.Interactions {
		scores, err := encoding.MarshalJSON(it.Scores)
		if err != nil {
			return fmt.Errorf("failed to encode scores for interaction %d: %w", i, err)
		}

		if _, err := stmt.Exec(it.InteractionID, result.RunID, i, it.ParticipantID,
			it.Topic, string(scores), it.TotalWeightedScore); err != nil {
			return fmt.Errorf("failed to insert interaction %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	return nil
}

// GetRun fetches a stored run summary
func (r *Repository) GetRun(id string) (*Run, error) {
	var run Run
	err := r.db.QueryRow(`
		SELECT id, seed, participant_count, interaction_count, started_at, completed_at, created_at
		FROM runs
		WHERE id = ?
	`, id).Scan(&run.ID, &run.Seed, &run.ParticipantCount, &run.InteractionCount,
		&run.StartedAt, &run.CompletedAt, &run.CreatedAt)

	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFoundError("run", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	return &run, nil
}

// ListRuns returns the most recent stored runs, newest first
func (r *Repository) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(`
		SELECT id, seed, participant_count, interaction_count, started_at, completed_at, created_at
		FROM runs
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Seed, &run.ParticipantCount, &run.InteractionCount,
			&run.StartedAt, &run.CompletedAt, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// LoadResult reconstructs the full ExperimentResult for a stored run,
// interactions in their original order.
func (r *Repository) LoadResult(id string) (*types.ExperimentResult, error) {
	run, err := r.GetRun(id)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(`
		SELECT id, participant_id, topic, scores, total_weighted_score
		FROM interactions
		WHERE run_id = ?
		ORDER BY position ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load interactions: %w", err)
	}
	defer rows.Close()

	result := &types.ExperimentResult{
		RunID:       run.ID,
		Seed:        run.Seed,
		StartedAt:   run.StartedAt,
		CompletedAt: run.CompletedAt,
	}

	for rows.Next() {
		var it types.Interaction
		var scoresJSON string
		if err := rows.Scan(&it.InteractionID, &it.ParticipantID, &it.Topic,
			&scoresJSON, &it.TotalWeightedScore); err != nil {
			return nil, fmt.Errorf("failed to scan interaction: %w", err)
		}

		if err := encoding.UnmarshalJSON([]byte(scoresJSON), &it.Scores); err != nil {
			return nil, fmt.Errorf("failed to decode scores for %s: %w", it.InteractionID, err)
		}

		result.Interactions = append(result.Interactions, it)
	}

	return result, rows.Err()
}

// DeleteRun removes a stored run and its interactions
func (r *Repository) DeleteRun(id string) error {
	res, err := r.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return errors.NewNotFoundError("run", id)
	}

	return nil
}
