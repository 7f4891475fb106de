package calibrate

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qml/internal/ir"
)

func TestReadCSV_MissingCells(t *testing.T) {
	data := "month, churn ,revenue\n1,0.05,100\n2,,NA\n3,0.07, 120\n"
	tab, err := ReadCSV(strings.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, []string{"month", "churn", "revenue"}, tab.Columns)
	assert.Equal(t, 3, tab.Rows())
	assert.Equal(t, ir.DataHash([]byte(data)), tab.Hash())

	churn, ok := tab.Column("churn")
	require.True(t, ok)
	require.Len(t, churn, 3)
	assert.Equal(t, 0.05, churn[0])
	assert.True(t, math.IsNaN(churn[1]))

	rev, _ := tab.Column("revenue")
	assert.True(t, math.IsNaN(rev[1]))
	assert.Equal(t, 120.0, rev[2])

	_, ok = tab.Column("absent")
	assert.False(t, ok)
}

func TestReadCSV_ColumnIsACopy(t *testing.T) {
	tab, err := ReadCSV(strings.NewReader("x\n1\n2\n"))
	require.NoError(t, err)
	col, _ := tab.Column("x")
	col[0] = 99
	again, _ := tab.Column("x")
	assert.Equal(t, 1.0, again[0])
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ""},
		{"not a number", "x\n1\nabc\n"},
		{"ragged row", "x,y\n1,2\n3\n"},
		{"duplicate column", "x,x\n1,2\n"},
		{"infinite", "x\n1e400\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.data))
			var de *DataError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, ErrCodeData, de.Code)
		})
	}
}

func TestReadCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d.csv")
	require.NoError(t, os.WriteFile(path, []byte("# exported\nx\n1\n"), 0o644))

	tab, err := ReadCSVFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, tab.Rows())

	_, err = ReadCSVFile(filepath.Join(t.TempDir(), "none.csv"))
	assert.Error(t, err)
}
