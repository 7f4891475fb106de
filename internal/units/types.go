package units

import (
	"fmt"
	"strings"
)

// Kind tags the variants of a semantic type.
type Kind int

const (
	// KindUntyped is a bare numeric literal that adopts the type of the
	// operand it is combined with, like an untyped Go constant.
	KindUntyped Kind = iota
	KindFraction
	KindCurrency
	KindDuration
	KindRate
	KindBoolean
	KindSeries
)

// Type is a semantic value type: a tagged union over the kinds above.
// Numeric kinds carry a Unit; KindSeries carries its element type.
type Type struct {
	Kind Kind
	Unit Unit
	Elem *Type
}

// Convenience constructors.
var (
	Untyped  = Type{Kind: KindUntyped}
	Fraction = Type{Kind: KindFraction}
	Boolean  = Type{Kind: KindBoolean}
)

// Currency returns the type of an amount in code.
func Currency(code string) Type {
	return Type{Kind: KindCurrency, Unit: Money(code)}
}

// Duration returns the type of a length of time measured in g.
func Duration(g Granularity) Type {
	return Type{Kind: KindDuration, Unit: TimeUnit(g)}
}

// Rate returns a dimensionless rate per g (churn per month).
func Rate(g Granularity) Type {
	return Type{Kind: KindRate, Unit: Per(Dimensionless, g)}
}

// CurrencyRate returns an amount of code per g (burn per month).
func CurrencyRate(code string, g Granularity) Type {
	return Type{Kind: KindRate, Unit: Per(Money(code), g)}
}

// Series returns TimeSeries<elem>.
func Series(elem Type) Type {
	e := elem
	return Type{Kind: KindSeries, Elem: &e}
}

// FromUnit classifies a unit into its semantic type. It fails when the
// exponents have no economic meaning.
func FromUnit(u Unit) (Type, bool) {
	u = u.Normalize()
	switch {
	case u.CurrencyExp == 0 && u.TimeExp == 0:
		return Fraction, true
	case u.CurrencyExp == 1 && u.TimeExp == 0:
		return Type{Kind: KindCurrency, Unit: u}, true
	case u.CurrencyExp == 0 && u.TimeExp == 1:
		return Type{Kind: KindDuration, Unit: u}, true
	case (u.CurrencyExp == 0 || u.CurrencyExp == 1) && u.TimeExp == -1:
		return Type{Kind: KindRate, Unit: u}, true
	}
	return Type{}, false
}

// IsNumeric reports whether values of t are plain numbers.
func (t Type) IsNumeric() bool {
	switch t.Kind {
	case KindUntyped, KindFraction, KindCurrency, KindDuration, KindRate:
		return true
	}
	return false
}

// Equal reports structural equality.
func (t Type) Equal(o Type) bool {
	if t.Kind != o.Kind {
		return false
	}
	if t.Kind == KindSeries {
		return t.Elem.Equal(*o.Elem)
	}
	return t.Unit.Normalize() == o.Unit.Normalize()
}

// String renders t in surface syntax; ParseType accepts the output.
func (t Type) String() string {
	switch t.Kind {
	case KindUntyped:
		return "untyped number"
	case KindFraction:
		return "Fraction"
	case KindBoolean:
		return "Boolean"
	case KindCurrency:
		return fmt.Sprintf("Currency<%s>", t.Unit.Currency)
	case KindDuration:
		return fmt.Sprintf("Duration<%s>", t.Unit.Time)
	case KindRate:
		if t.Unit.CurrencyExp == 1 {
			return fmt.Sprintf("Rate<%s, %s>", t.Unit.Currency, t.Unit.Time)
		}
		return fmt.Sprintf("Rate<%s>", t.Unit.Time)
	case KindSeries:
		return fmt.Sprintf("TimeSeries<%s>", t.Elem.String())
	}
	return "invalid"
}

// MarshalText implements encoding.TextMarshaler so types serialize as
// their surface syntax in the IR.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(b []byte) error {
	parsed, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseType parses a type written in surface syntax, e.g.
// "TimeSeries<Currency<USD>>" or "Rate<EUR, month>".
func ParseType(s string) (Type, error) {
	s = strings.TrimSpace(s)
	name, args, err := splitGeneric(s)
	if err != nil {
		return Type{}, err
	}

	switch name {
	case "untyped number":
		return Untyped, nil
	case "Fraction":
		if len(args) != 0 {
			return Type{}, fmt.Errorf("Fraction takes no type arguments")
		}
		return Fraction, nil
	case "Boolean":
		if len(args) != 0 {
			return Type{}, fmt.Errorf("Boolean takes no type arguments")
		}
		return Boolean, nil
	case "Currency":
		if len(args) != 1 || !ValidCurrency(args[0]) {
			return Type{}, fmt.Errorf("Currency needs one ISO 4217 code, got %q", s)
		}
		return Currency(args[0]), nil
	case "Duration":
		if len(args) != 1 {
			return Type{}, fmt.Errorf("Duration needs one granularity, got %q", s)
		}
		g, err := ParseGranularity(args[0])
		if err != nil {
			return Type{}, err
		}
		return Duration(g), nil
	case "Rate":
		switch len(args) {
		case 1:
			g, err := ParseGranularity(args[0])
			if err != nil {
				return Type{}, err
			}
			return Rate(g), nil
		case 2:
			if !ValidCurrency(args[0]) {
				return Type{}, fmt.Errorf("unknown currency %q in %q", args[0], s)
			}
			g, err := ParseGranularity(args[1])
			if err != nil {
				return Type{}, err
			}
			return CurrencyRate(args[0], g), nil
		}
		return Type{}, fmt.Errorf("Rate needs <granularity> or <currency, granularity>, got %q", s)
	case "TimeSeries":
		if len(args) != 1 {
			return Type{}, fmt.Errorf("TimeSeries needs one element type, got %q", s)
		}
		elem, err := ParseType(args[0])
		if err != nil {
			return Type{}, err
		}
		if elem.Kind == KindSeries {
			return Type{}, fmt.Errorf("nested TimeSeries is not allowed")
		}
		return Series(elem), nil
	}
	return Type{}, fmt.Errorf("unknown type %q", name)
}

// splitGeneric splits "Name<a, b<c>>" into "Name" and ["a", "b<c>"],
// respecting nested angle brackets.
func splitGeneric(s string) (string, []string, error) {
	open := strings.IndexByte(s, '<')
	if open < 0 {
		return s, nil, nil
	}
	if !strings.HasSuffix(s, ">") {
		return "", nil, fmt.Errorf("unterminated type arguments in %q", s)
	}
	name := strings.TrimSpace(s[:open])
	inner := s[open+1 : len(s)-1]

	var args []string
	depth, start := 0, 0
	for i, r := range inner {
		switch r {
		case '<':
			depth++
		case '>':
			depth--
			if depth < 0 {
				return "", nil, fmt.Errorf("unbalanced type arguments in %q", s)
			}
		case ',':
			if depth == 0 {
				args = append(args, strings.TrimSpace(inner[start:i]))
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return "", nil, fmt.Errorf("unbalanced type arguments in %q", s)
	}
	args = append(args, strings.TrimSpace(inner[start:]))
	for _, a := range args {
		if a == "" {
			return "", nil, fmt.Errorf("empty type argument in %q", s)
		}
	}
	return name, args, nil
}
