package store

import (
	"context"
	"fmt"
	"time"
)

// Entry kinds in History.
const (
	KindModel       = "model"
	KindRun         = "run"
	KindCalibration = "calibration"
)

// Entry is one line of the audit history.
type Entry struct {
	Seq       int64     `json:"seq"`
	Kind      string    `json:"kind"`
	ID        string    `json:"id"`
	ModelName string    `json:"model_name"`
	ModelHash string    `json:"model_hash"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// HistoryFilter narrows History.
type HistoryFilter struct {
	// Model matches a model name or full hash. Runs match on the model
	// they executed, calibrations on their source or derived model.
	Model string

	// Limit keeps only the most recent entries when positive.
	Limit int
}

// History returns models, runs and calibrations interleaved by seq.
func (s *Store) History(ctx context.Context, f HistoryFilter) ([]Entry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}

	// The inner query selects the newest rows; the outer one restores
	// ascending order.
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, kind, id, model_name, model_hash, detail, created_at FROM (
			SELECT m.seq, 'model' AS kind, m.hash AS id, m.name AS model_name, m.hash AS model_hash,
			       CASE WHEN m.parent_hash IS NULL THEN 'ir v' || m.ir_version
			            ELSE 'calibrated from ' || substr(m.parent_hash, 1, 12) END AS detail,
			       m.created_at
			FROM models m
			WHERE ?1 = '' OR m.name = ?1 OR m.hash = ?1

			UNION ALL

			SELECT r.seq, 'run', r.id, m.name, r.model_hash,
			       r.mode || ' ' || r.status || ' samples=' || r.samples,
			       r.created_at
			FROM runs r JOIN models m ON m.hash = r.model_hash
			WHERE ?1 = '' OR m.name = ?1 OR r.model_hash = ?1

			UNION ALL

			SELECT c.seq, 'calibration', c.id, m.name, c.model_hash,
			       c.params || ' params, ' || c.failed || ' failed',
			       c.created_at
			FROM calibrations c JOIN models m ON m.hash = c.source_hash
			WHERE ?1 = '' OR m.name = ?1 OR c.source_hash = ?1 OR c.model_hash = ?1

			ORDER BY seq DESC
			LIMIT ?2
		)
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, f.Model, limit)
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e       Entry
			created string
		)
		if err := rows.Scan(&e.Seq, &e.Kind, &e.ID, &e.ModelName, &e.ModelHash, &e.Detail, &created); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		if e.CreatedAt, err = parseTimestamp(created); err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	return entries, nil
}
