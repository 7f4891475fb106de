package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/qml/internal/calibrate"
	"github.com/roach88/qml/internal/engine"
	"github.com/roach88/qml/internal/ir"
)

// SaveModel records a compiled IR document.
// Saving a hash that is already present is a no-op that returns the
// existing record.
func (s *Store) SaveModel(ctx context.Context, m *ir.Model) (ModelRecord, error) {
	var rec ModelRecord
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		rec, err = s.saveModelTx(ctx, tx, m, "")
		return err
	})
	if err != nil {
		return ModelRecord{}, fmt.Errorf("save model: %w", err)
	}
	return rec, nil
}

// SaveRun records a run result together with the model it executed.
// The run digest is recomputed from the model hash, sample count and seed.
//
// Note: A run id that is already present is silently ignored (idempotent)
// and the stored record is returned.
func (s *Store) SaveRun(ctx context.Context, m *ir.Model, res *engine.Result) (RunRecord, error) {
	if res.ModelHash != m.ModelHash {
		return RunRecord{}, fmt.Errorf("save run %s: result is for model %s, not %s", res.RunID, res.ModelHash, m.ModelHash)
	}

	var seed uint64
	if res.Seed != nil {
		seed = *res.Seed
	}
	digest, err := ir.RunDigest(m.ModelHash, res.Samples, seed)
	if err != nil {
		return RunRecord{}, fmt.Errorf("save run %s: %w", res.RunID, err)
	}
	resultJSON, err := marshalJSON("result", res)
	if err != nil {
		return RunRecord{}, fmt.Errorf("save run %s: %w", res.RunID, err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.saveModelTx(ctx, tx, m, ""); err != nil {
			return err
		}
		exists, err := rowExists(ctx, tx, `SELECT 1 FROM runs WHERE id = ?`, res.RunID)
		if err != nil || exists {
			return err
		}
		seq, err := nextSeq(ctx, tx)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO runs
			(id, model_hash, mode, seed, samples, status, digest, engine_version, result, seq, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			res.RunID,
			m.ModelHash,
			string(res.Mode),
			formatSeed(res.Seed),
			res.Samples,
			res.Status,
			digest,
			res.EngineVersion,
			resultJSON,
			seq,
			s.timestamp(),
		)
		return err
	})
	if err != nil {
		return RunRecord{}, fmt.Errorf("save run %s: %w", res.RunID, err)
	}
	return s.ReadRun(ctx, res.RunID)
}

// SaveCalibration records a calibration report, the source model and the
// derived model. The derived model is linked to its source through
// parent_hash so Lineage can walk back to the hand-written model.
func (s *Store) SaveCalibration(ctx context.Context, source *ir.Model, rep *calibrate.Report) (CalibrationRecord, error) {
	if rep.Model == nil {
		return CalibrationRecord{}, fmt.Errorf("save calibration %s: report has no calibrated model", rep.RunID)
	}
	if rep.SourceHash != source.ModelHash {
		return CalibrationRecord{}, fmt.Errorf("save calibration %s: report is for model %s, not %s", rep.RunID, rep.SourceHash, source.ModelHash)
	}
	reportJSON, err := marshalJSON("report", rep)
	if err != nil {
		return CalibrationRecord{}, fmt.Errorf("save calibration %s: %w", rep.RunID, err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.saveModelTx(ctx, tx, source, ""); err != nil {
			return err
		}
		if rep.Model.ModelHash != source.ModelHash {
			if _, err := s.saveModelTx(ctx, tx, rep.Model, source.ModelHash); err != nil {
				return err
			}
		}
		exists, err := rowExists(ctx, tx, `SELECT 1 FROM calibrations WHERE id = ?`, rep.RunID)
		if err != nil || exists {
			return err
		}
		seq, err := nextSeq(ctx, tx)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO calibrations
			(id, source_hash, model_hash, data_hash, digest, params, failed, report, seq, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			rep.RunID,
			source.ModelHash,
			rep.Model.ModelHash,
			rep.DataHash,
			rep.CalibrationHash,
			len(rep.Parameters),
			len(rep.Failed()),
			reportJSON,
			seq,
			s.timestamp(),
		)
		return err
	})
	if err != nil {
		return CalibrationRecord{}, fmt.Errorf("save calibration %s: %w", rep.RunID, err)
	}
	return s.ReadCalibration(ctx, rep.RunID)
}

// saveModelTx inserts m unless its hash is already stored.
func (s *Store) saveModelTx(ctx context.Context, tx *sql.Tx, m *ir.Model, parent string) (ModelRecord, error) {
	rec, err := scanModel(tx.QueryRowContext(ctx, modelSelect+` WHERE hash = ?`, m.ModelHash))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return ModelRecord{}, err
	}

	irJSON, err := marshalModel(m)
	if err != nil {
		return ModelRecord{}, err
	}
	seq, err := nextSeq(ctx, tx)
	if err != nil {
		return ModelRecord{}, err
	}
	parentHash := sql.NullString{String: parent, Valid: parent != ""}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO models (hash, name, ir_version, ir, parent_hash, seq, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		m.ModelHash,
		m.ModelName,
		m.IRVersion,
		irJSON,
		parentHash,
		seq,
		s.timestamp(),
	)
	if err != nil {
		return ModelRecord{}, fmt.Errorf("insert model %s: %w", m.ModelHash, err)
	}
	return scanModel(tx.QueryRowContext(ctx, modelSelect+` WHERE hash = ?`, m.ModelHash))
}

// inTx runs fn in a transaction, committing on success.
func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func rowExists(ctx context.Context, tx *sql.Tx, query string, args ...any) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
