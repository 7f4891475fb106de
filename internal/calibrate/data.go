package calibrate

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/roach88/qml/internal/ir"
)

// Table is numeric CSV data keyed by header name. Missing cells (empty,
// "NA", "NaN", "null") are stored as NaN.
type Table struct {
	Columns []string
	rows    int
	data    map[string][]float64
	hash    string
}

// ReadCSVFile reads a CSV file with a header row.
func ReadCSVFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &DataError{Code: ErrCodeData, Message: err.Error()}
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV reads CSV data with a header row. Every non-missing cell must
// parse as a number.
func ReadCSV(r io.Reader) (*Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, &DataError{Code: ErrCodeData, Message: err.Error()}
	}
	cr := csv.NewReader(bytes.NewReader(raw))
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &DataError{Code: ErrCodeData, Message: "empty CSV"}
	}
	if err != nil {
		return nil, &DataError{Code: ErrCodeData, Message: err.Error()}
	}

	t := &Table{data: make(map[string][]float64, len(header)), hash: ir.DataHash(raw)}
	for _, h := range header {
		name := strings.TrimSpace(h)
		if _, dup := t.data[name]; dup {
			return nil, &DataError{Code: ErrCodeData, Message: "duplicate column " + strconv.Quote(name)}
		}
		t.Columns = append(t.Columns, name)
		t.data[name] = nil
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &DataError{Code: ErrCodeData, Message: err.Error()}
		}
		line, _ := cr.FieldPos(0)
		for i, cell := range rec {
			v, err := parseCell(cell)
			if err != nil {
				return nil, &DataError{
					Code:    ErrCodeData,
					Message: "line " + strconv.Itoa(line) + ", column " + strconv.Quote(t.Columns[i]) + ": " + err.Error(),
				}
			}
			col := t.Columns[i]
			t.data[col] = append(t.data[col], v)
		}
		t.rows++
	}
	return t, nil
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "", "na", "nan", "null":
		return math.NaN(), nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, errors.New("not a number: " + strconv.Quote(s))
	}
	if math.IsInf(v, 0) {
		return 0, errors.New("infinite value")
	}
	return v, nil
}

// Rows returns the number of data rows.
func (t *Table) Rows() int { return t.rows }

// Hash returns the SHA-256 of the raw CSV bytes.
func (t *Table) Hash() string { return t.hash }

// Column returns a copy of the named column.
func (t *Table) Column(name string) ([]float64, bool) {
	col, ok := t.data[name]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), col...), true
}
