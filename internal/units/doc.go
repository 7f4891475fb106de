// Package units implements the semantic type and unit system of the modeling
// language.
//
// Every numeric value carries a Unit: a symbolic product of two base
// dimensions, currency and time, each raised to an integer exponent. The
// semantic kinds (Fraction, Currency, Duration, Rate) are derived from the
// exponents after an operation, never declared ad hoc:
//
//	currency^0 · time^0   Fraction
//	currency^1 · time^0   Currency<C>
//	currency^0 · time^1   Duration<g>
//	currency^a · time^-1  Rate<g> (a=0) or Rate<C, g> (a=1)
//
// Any other combination (currency·time, currency², time²) has no economic
// meaning and is rejected with a TypeError.
//
// Units also carry a scale to a canonical base (days for time, minor currency
// units for money). When two operands share dimensions but not scale, for
// example Rate<month> times Duration<year>, the algebra returns a numeric
// factor that the engine multiplies into the result, so unit cancellation is
// symbolic rather than a table of hard-coded combinations.
//
// This package is pure: it has no state beyond the optional currency
// conversion table passed to NewAlgebra.
package units
