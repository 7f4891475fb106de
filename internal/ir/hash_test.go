package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qml/internal/units"
)

func float(v float64) *float64 { return &v }

// testModel builds x[0] = 1000; x[t] = x[t-1] * (1 - decay).
func testModel() *Model {
	frac := units.Fraction
	return &Model{
		ModelName: "Decay",
		IRVersion: IRVersion,
		Horizon:   10,
		Step:      units.Month,
		Params: []Param{{
			Name:       "decay",
			Type:       frac,
			Value:      float(0.05),
			Provenance: Provenance{Source: "test", Method: MethodAssumption, Confidence: 0.5},
		}},
		Vars: []Var{{
			Name: "x",
			Type: units.Series(frac),
			Init: &Expr{Kind: ExprNum, Type: units.Untyped, Value: 1000},
			Recurrence: &Expr{
				Kind: ExprBinary, Type: frac, Operator: "*",
				Args: []*Expr{
					{Kind: ExprIndex, Type: frac, Name: "x", Index: &TimeIndex{Relative: true, Offset: -1}},
					{
						Kind: ExprBinary, Type: frac, Operator: "-",
						Args: []*Expr{
							{Kind: ExprNum, Type: units.Untyped, Value: 1},
							{Kind: ExprRef, Type: frac, Name: "decay"},
						},
					},
				},
			},
		}},
		Constraints: []Constraint{{
			Name:     "positive",
			Severity: SeverityFatal,
			Message:  "x went negative",
			Scope:    Scope{Kind: ScopeAll},
			Expr: &Expr{
				Kind: ExprBinary, Type: units.Boolean, Operator: ">=",
				Args: []*Expr{
					{Kind: ExprIndex, Type: frac, Name: "x", Index: &TimeIndex{Relative: true}},
					{Kind: ExprNum, Type: units.Untyped},
				},
			},
		}},
	}
}

func TestModelHashDeterminism(t *testing.T) {
	h1, err := ComputeModelHash(testModel())
	require.NoError(t, err)
	h2, err := ComputeModelHash(testModel())
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64, "SHA-256 hex is 64 characters")
}

func TestModelHashIgnoresStoredHash(t *testing.T) {
	m := testModel()
	before, err := ComputeModelHash(m)
	require.NoError(t, err)

	m.ModelHash = "something else"
	after, err := ComputeModelHash(m)
	require.NoError(t, err)

	assert.Equal(t, before, after)
}

func TestModelHashChangesWithContent(t *testing.T) {
	base := MustStamp(testModel())

	changed := testModel()
	changed.Params[0].Value = float(0.06)
	MustStamp(changed)
	assert.NotEqual(t, base.ModelHash, changed.ModelHash, "param value is part of identity")

	renamed := testModel()
	renamed.Params[0].Provenance.Notes = "revised"
	MustStamp(renamed)
	assert.NotEqual(t, base.ModelHash, renamed.ModelHash, "provenance is part of identity")
}

func TestVerifyHash(t *testing.T) {
	m := MustStamp(testModel())
	require.NoError(t, VerifyHash(m))

	m.Horizon = 20
	err := VerifyHash(m)
	var mismatch *HashMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, m.ModelHash, mismatch.Stored)
}

func TestCloneDoesNotAlias(t *testing.T) {
	m := testModel()
	m.Params[0].Distribution = &Distribution{Family: FamilyNormal, Params: []float64{1, 2}}
	m.Params[0].Value = nil

	c := m.Clone()
	c.Params[0].Distribution.Params[0] = 99
	c.Params[0].Name = "other"

	assert.Equal(t, 1.0, m.Params[0].Distribution.Params[0])
	assert.Equal(t, "decay", m.Params[0].Name)
}

func TestRunDigest(t *testing.T) {
	a, err := RunDigest("abc", 100, 42)
	require.NoError(t, err)
	b, err := RunDigest("abc", 100, 42)
	require.NoError(t, err)
	c, err := RunDigest("abc", 100, 43)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestCalibrationDigestDomainSeparated(t *testing.T) {
	d := CalibrationDigest("abc", DataHash([]byte("x,y\n1,2\n")))
	assert.Len(t, d, 64)
	assert.NotEqual(t, d, CalibrationDigest("abd", DataHash([]byte("x,y\n1,2\n"))))
}
