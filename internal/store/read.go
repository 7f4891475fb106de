package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/qml/internal/ir"
)

// ModelRecord is a stored IR document.
type ModelRecord struct {
	Hash       string          `json:"hash"`
	Name       string          `json:"name"`
	IRVersion  string          `json:"ir_version"`
	ParentHash string          `json:"parent_hash,omitempty"`
	Seq        int64           `json:"seq"`
	CreatedAt  time.Time       `json:"created_at"`
	IR         json.RawMessage `json:"-"`
}

// RunRecord is a stored run. Result holds the run JSON as written.
type RunRecord struct {
	ID            string          `json:"id"`
	ModelHash     string          `json:"model_hash"`
	ModelName     string          `json:"model_name"`
	Mode          string          `json:"mode"`
	Seed          *uint64         `json:"seed,omitempty"`
	Samples       int             `json:"samples"`
	Status        string          `json:"status"`
	Digest        string          `json:"digest"`
	EngineVersion string          `json:"engine_version"`
	Seq           int64           `json:"seq"`
	CreatedAt     time.Time       `json:"created_at"`
	Result        json.RawMessage `json:"result"`
}

// CalibrationRecord is a stored calibration report.
type CalibrationRecord struct {
	ID         string          `json:"id"`
	SourceHash string          `json:"source_hash"`
	ModelHash  string          `json:"model_hash"`
	ModelName  string          `json:"model_name"`
	DataHash   string          `json:"data_hash"`
	Digest     string          `json:"digest"`
	Params     int             `json:"params"`
	Failed     int             `json:"failed"`
	Seq        int64           `json:"seq"`
	CreatedAt  time.Time       `json:"created_at"`
	Report     json.RawMessage `json:"report"`
}

// AmbiguousRefError is returned when a hash prefix matches several models.
type AmbiguousRefError struct {
	Ref     string
	Matches []string
}

func (e *AmbiguousRefError) Error() string {
	return fmt.Sprintf("model reference %q is ambiguous: %d models match", e.Ref, len(e.Matches))
}

type scanner interface {
	Scan(dest ...any) error
}

const modelSelect = `SELECT hash, name, ir_version, ir, parent_hash, seq, created_at FROM models`

const runSelect = `
	SELECT r.id, r.model_hash, m.name, r.mode, r.seed, r.samples, r.status, r.digest,
	       r.engine_version, r.result, r.seq, r.created_at
	FROM runs r JOIN models m ON m.hash = r.model_hash`

const calibrationSelect = `
	SELECT c.id, c.source_hash, c.model_hash, m.name, c.data_hash, c.digest,
	       c.params, c.failed, c.report, c.seq, c.created_at
	FROM calibrations c JOIN models m ON m.hash = c.source_hash`

// ReadModel retrieves a model record by its full hash.
// Returns ErrNotFound if no such model exists.
func (s *Store) ReadModel(ctx context.Context, hash string) (ModelRecord, error) {
	rec, err := scanModel(s.db.QueryRowContext(ctx, modelSelect+` WHERE hash = ?`, hash))
	if err != nil {
		return ModelRecord{}, fmt.Errorf("read model %s: %w", hash, err)
	}
	return rec, nil
}

// LoadModel retrieves a model and decodes it, validating the schema and
// the content hash on the way.
func (s *Store) LoadModel(ctx context.Context, hash string) (*ir.Model, error) {
	rec, err := s.ReadModel(ctx, hash)
	if err != nil {
		return nil, err
	}
	m, err := ir.Load(rec.IR)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", hash, err)
	}
	return m, nil
}

// FindModel resolves a user reference: a full hash, a unique hash prefix,
// or a model name, which selects the most recently stored model of that
// name.
func (s *Store) FindModel(ctx context.Context, ref string) (ModelRecord, error) {
	if ref == "" {
		return ModelRecord{}, fmt.Errorf("find model: empty reference: %w", ErrNotFound)
	}

	rows, err := s.db.QueryContext(ctx, modelSelect+`
		WHERE substr(hash, 1, length(?1)) = ?1
		ORDER BY seq ASC, hash COLLATE BINARY ASC
	`, ref)
	if err != nil {
		return ModelRecord{}, fmt.Errorf("find model %q: %w", ref, err)
	}
	matches, err := collect(rows, scanModel)
	if err != nil {
		return ModelRecord{}, fmt.Errorf("find model %q: %w", ref, err)
	}
	switch {
	case len(matches) == 1:
		return matches[0], nil
	case len(matches) > 1:
		hashes := make([]string, len(matches))
		for i, m := range matches {
			hashes[i] = m.Hash
		}
		return ModelRecord{}, &AmbiguousRefError{Ref: ref, Matches: hashes}
	}

	rec, err := scanModel(s.db.QueryRowContext(ctx, modelSelect+`
		WHERE name = ?
		ORDER BY seq DESC
		LIMIT 1
	`, ref))
	if err != nil {
		return ModelRecord{}, fmt.Errorf("find model %q: %w", ref, err)
	}
	return rec, nil
}

// ListModels returns every stored model in seq order.
func (s *Store) ListModels(ctx context.Context) ([]ModelRecord, error) {
	rows, err := s.db.QueryContext(ctx, modelSelect+`
		ORDER BY seq ASC, hash COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	recs, err := collect(rows, scanModel)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return recs, nil
}

// Lineage returns the chain from hash back through its calibration
// parents, starting with hash itself.
func (s *Store) Lineage(ctx context.Context, hash string) ([]ModelRecord, error) {
	var chain []ModelRecord
	seen := make(map[string]bool)
	for next := hash; next != ""; {
		if seen[next] {
			return nil, fmt.Errorf("lineage of %s: loop at %s", hash, next)
		}
		seen[next] = true
		rec, err := s.ReadModel(ctx, next)
		if err != nil {
			return nil, fmt.Errorf("lineage of %s: %w", hash, err)
		}
		chain = append(chain, rec)
		next = rec.ParentHash
	}
	return chain, nil
}

// ReadRun retrieves a run by id.
// Returns ErrNotFound if no such run exists.
func (s *Store) ReadRun(ctx context.Context, id string) (RunRecord, error) {
	rec, err := scanRun(s.db.QueryRowContext(ctx, runSelect+` WHERE r.id = ?`, id))
	if err != nil {
		return RunRecord{}, fmt.Errorf("read run %s: %w", id, err)
	}
	return rec, nil
}

// ListRuns returns the runs of one model, or of every model when
// modelHash is empty.
func (s *Store) ListRuns(ctx context.Context, modelHash string) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, runSelect+`
		WHERE ?1 = '' OR r.model_hash = ?1
		ORDER BY r.seq ASC, r.id COLLATE BINARY ASC
	`, modelHash)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	recs, err := collect(rows, scanRun)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return recs, nil
}

// ReadCalibration retrieves a calibration by id.
// Returns ErrNotFound if no such calibration exists.
func (s *Store) ReadCalibration(ctx context.Context, id string) (CalibrationRecord, error) {
	rec, err := scanCalibration(s.db.QueryRowContext(ctx, calibrationSelect+` WHERE c.id = ?`, id))
	if err != nil {
		return CalibrationRecord{}, fmt.Errorf("read calibration %s: %w", id, err)
	}
	return rec, nil
}

// ListCalibrations returns the calibrations of one source model, or all
// of them when sourceHash is empty.
func (s *Store) ListCalibrations(ctx context.Context, sourceHash string) ([]CalibrationRecord, error) {
	rows, err := s.db.QueryContext(ctx, calibrationSelect+`
		WHERE ?1 = '' OR c.source_hash = ?1
		ORDER BY c.seq ASC, c.id COLLATE BINARY ASC
	`, sourceHash)
	if err != nil {
		return nil, fmt.Errorf("list calibrations: %w", err)
	}
	recs, err := collect(rows, scanCalibration)
	if err != nil {
		return nil, fmt.Errorf("list calibrations: %w", err)
	}
	return recs, nil
}

// collect drains rows through scan and closes them.
func collect[T any](rows *sql.Rows, scan func(scanner) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		rec, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanModel(row scanner) (ModelRecord, error) {
	var (
		rec     ModelRecord
		irText  string
		parent  sql.NullString
		created string
	)
	err := row.Scan(&rec.Hash, &rec.Name, &rec.IRVersion, &irText, &parent, &rec.Seq, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return ModelRecord{}, ErrNotFound
	}
	if err != nil {
		return ModelRecord{}, fmt.Errorf("scan model: %w", err)
	}
	rec.IR = json.RawMessage(irText)
	rec.ParentHash = parent.String
	if rec.CreatedAt, err = parseTimestamp(created); err != nil {
		return ModelRecord{}, err
	}
	return rec, nil
}

func scanRun(row scanner) (RunRecord, error) {
	var (
		rec     RunRecord
		seed    sql.NullString
		result  string
		created string
	)
	err := row.Scan(
		&rec.ID, &rec.ModelHash, &rec.ModelName, &rec.Mode, &seed, &rec.Samples,
		&rec.Status, &rec.Digest, &rec.EngineVersion, &result, &rec.Seq, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, ErrNotFound
	}
	if err != nil {
		return RunRecord{}, fmt.Errorf("scan run: %w", err)
	}
	if rec.Seed, err = parseSeed(seed); err != nil {
		return RunRecord{}, err
	}
	rec.Result = json.RawMessage(result)
	if rec.CreatedAt, err = parseTimestamp(created); err != nil {
		return RunRecord{}, err
	}
	return rec, nil
}

func scanCalibration(row scanner) (CalibrationRecord, error) {
	var (
		rec     CalibrationRecord
		report  string
		created string
	)
	err := row.Scan(
		&rec.ID, &rec.SourceHash, &rec.ModelHash, &rec.ModelName, &rec.DataHash, &rec.Digest,
		&rec.Params, &rec.Failed, &report, &rec.Seq, &created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return CalibrationRecord{}, ErrNotFound
	}
	if err != nil {
		return CalibrationRecord{}, fmt.Errorf("scan calibration: %w", err)
	}
	rec.Report = json.RawMessage(report)
	if rec.CreatedAt, err = parseTimestamp(created); err != nil {
		return CalibrationRecord{}, err
	}
	return rec, nil
}
