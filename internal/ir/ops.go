package ir

import (
	"fmt"

	"github.com/roach88/qml/internal/units"
)

// ApplyBinary applies an IR binary operator to two operands already scaled
// into a common unit. Booleans are encoded as 0 and 1.
func ApplyBinary(op string, l, r float64) (float64, error) {
	switch units.Op(op) {
	case units.Add:
		return l + r, nil
	case units.Sub:
		return l - r, nil
	case units.Mul:
		return l * r, nil
	case units.Div:
		if r == 0 {
			return 0, fmt.Errorf("division by zero")
		}
		return l / r, nil
	case units.Lt:
		return Bool(l < r), nil
	case units.Le:
		return Bool(l <= r), nil
	case units.Gt:
		return Bool(l > r), nil
	case units.Ge:
		return Bool(l >= r), nil
	case units.Eq:
		return Bool(l == r), nil
	case units.Ne:
		return Bool(l != r), nil
	case units.And:
		return Bool(l != 0 && r != 0), nil
	case units.Or:
		return Bool(l != 0 || r != 0), nil
	}
	return 0, fmt.Errorf("unknown operator %q", op)
}

// Bool encodes b as 1 or 0.
func Bool(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
