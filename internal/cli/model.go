package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/qml/internal/compiler"
	"github.com/roach88/qml/internal/ir"
	"github.com/roach88/qml/internal/store"
)

// loadModel resolves a model argument. Existing files are compiled (.qml)
// or loaded as IR (.json). Anything else is looked up in the store by hash
// prefix or name, which requires --db.
func loadModel(ctx context.Context, ref string, st *store.Store) (*ir.Model, error) {
	if _, err := os.Stat(ref); err == nil {
		return loadModelFile(ref)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	if st == nil {
		return nil, fmt.Errorf("model file not found: %s", ref)
	}
	rec, err := st.FindModel(ctx, ref)
	if err != nil {
		return nil, err
	}
	slog.Debug("model resolved from store", "ref", ref, "hash", rec.Hash)
	return st.LoadModel(ctx, rec.Hash)
}

// loadModelFile compiles a .qml source or loads a compiled IR document.
func loadModelFile(path string) (*ir.Model, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read IR: %w", err)
		}
		return ir.Load(data)
	}
	slog.Debug("compiling model", "path", path)
	return compiler.New().CompileFile(path)
}

// openStore opens the audit store named by --db, or returns nil when the
// flag is unset.
func openStore(opts *RootOptions) (*store.Store, error) {
	if opts.Database == "" {
		return nil, nil
	}
	slog.Debug("opening store", "path", opts.Database)
	return store.Open(opts.Database)
}

// closeStore closes st, logging failures.
func closeStore(st *store.Store) {
	if st == nil {
		return
	}
	if err := st.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}

// modelSummary is the short description of a model used by compile and
// validate.
type modelSummary struct {
	Name        string `json:"name"`
	Hash        string `json:"hash"`
	IRVersion   string `json:"ir_version"`
	Horizon     int    `json:"horizon"`
	Step        string `json:"step"`
	Params      int    `json:"params"`
	Vars        int    `json:"vars"`
	Constraints int    `json:"constraints"`
}

func summarize(m *ir.Model) modelSummary {
	return modelSummary{
		Name:        m.ModelName,
		Hash:        m.ModelHash,
		IRVersion:   m.IRVersion,
		Horizon:     m.Horizon,
		Step:        string(m.Step),
		Params:      len(m.Params),
		Vars:        len(m.Vars),
		Constraints: len(m.Constraints),
	}
}

func (s modelSummary) String() string {
	return fmt.Sprintf("%s (%s)\n  horizon %d %s, %d param(s), %d var(s), %d constraint(s)",
		s.Name, shortHash(s.Hash), s.Horizon, s.Step, s.Params, s.Vars, s.Constraints)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
