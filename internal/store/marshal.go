package store

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/qml/internal/ir"
)

// marshalJSON converts a result or report to compact JSON TEXT.
// Uses json.Encoder with HTML escaping disabled so constraint messages
// such as "revenue < 0" are stored as written.
func marshalJSON(what string, v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("marshal %s: %w", what, err)
	}
	// Encoder adds a trailing newline, remove it
	return strings.TrimSpace(buf.String()), nil
}

// marshalModel serializes an IR document after checking its hash, so a
// record can never disagree with its primary key.
func marshalModel(m *ir.Model) (string, error) {
	if err := ir.VerifyHash(m); err != nil {
		return "", fmt.Errorf("marshal model: %w", err)
	}
	data, err := ir.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal model: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// formatSeed stores a uint64 seed as decimal TEXT; INTEGER would
// overflow above 2^63.
func formatSeed(seed *uint64) sql.NullString {
	if seed == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: strconv.FormatUint(*seed, 10), Valid: true}
}

func parseSeed(v sql.NullString) (*uint64, error) {
	if !v.Valid {
		return nil, nil
	}
	seed, err := strconv.ParseUint(v.String, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse seed %q: %w", v.String, err)
	}
	return &seed, nil
}
