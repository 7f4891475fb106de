package units

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/currency"
)

// Granularity is a physical-time unit.
type Granularity string

// Supported granularities.
const (
	Day     Granularity = "day"
	Week    Granularity = "week"
	Month   Granularity = "month"
	Quarter Granularity = "quarter"
	Year    Granularity = "year"
)

// daysPer is the conversion of each granularity to the canonical base (days).
// Months and quarters use the mean Gregorian length so that 12 months and
// 4 quarters are exactly one year.
var daysPer = map[Granularity]float64{
	Day:     1,
	Week:    7,
	Month:   365.25 / 12,
	Quarter: 365.25 / 4,
	Year:    365.25,
}

// ParseGranularity parses a granularity name. Plural forms are accepted.
func ParseGranularity(s string) (Granularity, error) {
	g := Granularity(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s"))
	if _, ok := daysPer[g]; !ok {
		return "", fmt.Errorf("unknown time granularity %q", s)
	}
	return g, nil
}

// Days returns the length of one unit of g in days.
func (g Granularity) Days() float64 {
	return daysPer[g]
}

// ValidCurrency reports whether code is an ISO 4217 currency code.
func ValidCurrency(code string) bool {
	if len(code) != 3 || strings.ToUpper(code) != code {
		return false
	}
	_, err := currency.ParseISO(code)
	return err == nil
}

// MinorUnits returns how many minor units make up one major unit of the
// currency (100 for USD, 1 for JPY). Unknown codes report 1.
func MinorUnits(code string) float64 {
	cur, err := currency.ParseISO(code)
	if err != nil {
		return 1
	}
	scale, _ := currency.Standard.Rounding(cur)
	return math.Pow10(scale)
}

// Unit is a symbolic product currency^CurrencyExp · time^TimeExp.
//
// Currency is meaningful only when CurrencyExp != 0 and Time only when
// TimeExp != 0; Normalize clears them otherwise so that Units compare with ==.
type Unit struct {
	Currency    string      `json:"currency,omitempty"`
	CurrencyExp int         `json:"currency_exp,omitempty"`
	Time        Granularity `json:"time,omitempty"`
	TimeExp     int         `json:"time_exp,omitempty"`
}

// Dimensionless is the unit of a Fraction.
var Dimensionless = Unit{}

// Money returns the unit of an amount in the given currency.
func Money(code string) Unit {
	return Unit{Currency: code, CurrencyExp: 1}
}

// Per returns u divided by one unit of time g.
func Per(u Unit, g Granularity) Unit {
	u.Time = g
	u.TimeExp--
	return u.Normalize()
}

// TimeUnit returns the unit of a duration measured in g.
func TimeUnit(g Granularity) Unit {
	return Unit{Time: g, TimeExp: 1}
}

// Normalize clears labels of dimensions whose exponent is zero.
func (u Unit) Normalize() Unit {
	if u.CurrencyExp == 0 {
		u.Currency = ""
	}
	if u.TimeExp == 0 {
		u.Time = ""
	}
	return u
}

// Factor returns the size of one u expressed in canonical base units
// (minor currency units and days).
func (u Unit) Factor() float64 {
	f := 1.0
	if u.CurrencyExp != 0 {
		f *= math.Pow(MinorUnits(u.Currency), float64(u.CurrencyExp))
	}
	if u.TimeExp != 0 {
		f *= math.Pow(u.Time.Days(), float64(u.TimeExp))
	}
	return f
}

// SameDimensions reports whether u and v have identical exponents,
// regardless of currency code or time granularity.
func (u Unit) SameDimensions(v Unit) bool {
	return u.CurrencyExp == v.CurrencyExp && u.TimeExp == v.TimeExp
}

// String renders the unit as a product, for diagnostics.
func (u Unit) String() string {
	var parts []string
	if u.CurrencyExp != 0 {
		parts = append(parts, powString(u.Currency, u.CurrencyExp))
	}
	if u.TimeExp != 0 {
		parts = append(parts, powString(string(u.Time), u.TimeExp))
	}
	if len(parts) == 0 {
		return "1"
	}
	return strings.Join(parts, "·")
}

func powString(base string, exp int) string {
	if exp == 1 {
		return base
	}
	return fmt.Sprintf("%s^%d", base, exp)
}
