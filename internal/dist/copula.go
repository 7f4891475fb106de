package dist

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/roach88/qml/internal/ir"
)

// psdTolerance is the most negative eigenvalue still accepted as zero.
const psdTolerance = 1e-10

// pClamp keeps copula probabilities away from 0 and 1, where unbounded
// marginals have infinite quantiles.
const pClamp = 1e-12

// Joint draws a full parameter vector for one sample. Stochastic params
// form the copula dimensions in declaration order; literal and Constant
// params are fixed.
//
// A Joint is read-only after construction and safe for concurrent use
// as long as each goroutine supplies its own RNG.
type Joint struct {
	names    []string
	fixed    []float64      // value per param, NaN for stochastic ones
	marginal []Distribution // nil for fixed params
	dims     []int          // param index of each copula dimension
	factor   *mat.Dense     // lower factor L with L·Lᵀ = R; nil when R = I
}

// NewJoint validates the declared correlations of params and factors the
// joint correlation matrix. A matrix that is not positive semi-definite is
// rejected, never repaired.
func NewJoint(params []ir.Param) (*Joint, error) {
	j := &Joint{
		names:    make([]string, len(params)),
		fixed:    make([]float64, len(params)),
		marginal: make([]Distribution, len(params)),
	}
	dimOf := make(map[string]int)
	index := make(map[string]int, len(params))

	for i := range params {
		p := &params[i]
		j.names[i] = p.Name
		index[p.Name] = i
		switch {
		case p.Value != nil:
			j.fixed[i] = *p.Value
		case p.Distribution != nil:
			d, err := FromIR(p.Distribution)
			if err != nil {
				return nil, fmt.Errorf("param %s: %w", p.Name, err)
			}
			if !p.IsStochastic() {
				j.fixed[i] = d.Central()
				continue
			}
			j.fixed[i] = math.NaN()
			j.marginal[i] = d
			dimOf[p.Name] = len(j.dims)
			j.dims = append(j.dims, i)
		default:
			return nil, &InvalidDistributionError{Message: fmt.Sprintf("param %s has neither value nor distribution", p.Name)}
		}
	}

	pairs, err := correlationPairs(params, index)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return j, nil
	}

	n := len(j.dims)
	r := mat.NewSymDense(n, nil)
	for d := range n {
		r.SetSym(d, d, 1)
	}
	for pair, rho := range pairs {
		r.SetSym(dimOf[pair[0]], dimOf[pair[1]], rho)
	}
	factor, err := lowerFactor(r)
	if err != nil {
		names := make([]string, n)
		for d, i := range j.dims {
			names[d] = j.names[i]
		}
		return nil, &InvalidCorrelationError{Code: ErrCodeNotPSD, Params: names, Message: err.Error()}
	}
	j.factor = factor
	return j, nil
}

// correlationPairs collects declared correlations keyed by the sorted pair
// of names. Declaring a pair from both sides is allowed only with the same
// rho.
func correlationPairs(params []ir.Param, index map[string]int) (map[[2]string]float64, error) {
	pairs := make(map[[2]string]float64)
	for i := range params {
		p := &params[i]
		if p.Distribution == nil || len(p.Distribution.Correlations) == 0 {
			continue
		}
		if !p.IsStochastic() {
			return nil, &InvalidCorrelationError{Code: ErrCodeNotStochastic, Params: []string{p.Name},
				Message: fmt.Sprintf("%s has no random distribution and cannot be correlated", p.Name)}
		}
		for _, c := range p.Distribution.Correlations {
			both := []string{p.Name, c.Param}
			if c.Param == p.Name {
				return nil, &InvalidCorrelationError{Code: ErrCodeSelfCorrelation, Params: both,
					Message: fmt.Sprintf("%s is correlated with itself", p.Name)}
			}
			k, ok := index[c.Param]
			if !ok {
				return nil, &InvalidCorrelationError{Code: ErrCodeUnknownParam, Params: both,
					Message: fmt.Sprintf("%s is correlated with undeclared param %s", p.Name, c.Param)}
			}
			if !params[k].IsStochastic() {
				return nil, &InvalidCorrelationError{Code: ErrCodeNotStochastic, Params: both,
					Message: fmt.Sprintf("%s has no random distribution and cannot be correlated", c.Param)}
			}
			if math.IsNaN(c.Rho) || math.Abs(c.Rho) > 1 {
				return nil, &InvalidCorrelationError{Code: ErrCodeRhoRange, Params: both,
					Message: fmt.Sprintf("rho(%s, %s) = %g is outside [-1, 1]", p.Name, c.Param, c.Rho)}
			}
			key := [2]string{p.Name, c.Param}
			if key[1] < key[0] {
				key[0], key[1] = key[1], key[0]
			}
			if prev, dup := pairs[key]; dup && prev != c.Rho {
				return nil, &InvalidCorrelationError{Code: ErrCodeConflictingRho, Params: both,
					Message: fmt.Sprintf("rho(%s, %s) declared as both %g and %g", key[0], key[1], prev, c.Rho)}
			}
			pairs[key] = c.Rho
		}
	}
	return pairs, nil
}

// lowerFactor returns L with L·Lᵀ = r. Cholesky handles the positive
// definite case; singular but PSD matrices (|rho| = 1) fall back to the
// eigen factor V·√Λ.
func lowerFactor(r *mat.SymDense) (*mat.Dense, error) {
	var eig mat.EigenSym
	if !eig.Factorize(r, true) {
		return nil, fmt.Errorf("eigendecomposition failed")
	}
	values := eig.Values(nil)
	for _, v := range values {
		if v < -psdTolerance {
			return nil, fmt.Errorf("correlation matrix is not positive semi-definite (eigenvalue %.6g)", v)
		}
	}

	n := r.SymmetricDim()
	var chol mat.Cholesky
	if chol.Factorize(r) {
		var l mat.TriDense
		chol.LTo(&l)
		return mat.DenseCopyOf(&l), nil
	}

	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	out := mat.NewDense(n, n, nil)
	for c := range n {
		s := math.Sqrt(math.Max(values[c], 0))
		for row := range n {
			out.Set(row, c, vecs.At(row, c)*s)
		}
	}
	return out, nil
}

// Params returns the param names in declaration order.
func (j *Joint) Params() []string { return j.names }

// Stochastic reports whether any param is random.
func (j *Joint) Stochastic() bool { return len(j.dims) > 0 }

// Central writes every param's central value into out.
func (j *Joint) Central(out []float64) {
	for i := range j.names {
		if j.marginal[i] != nil {
			out[i] = j.marginal[i].Central()
		} else {
			out[i] = j.fixed[i]
		}
	}
}

// Draw writes one joint sample into out, indexed like Params. It consumes
// exactly one standard normal per stochastic param, in declaration order.
func (j *Joint) Draw(rng *rand.Rand, out []float64) {
	copy(out, j.fixed)
	if len(j.dims) == 0 {
		return
	}
	z := make([]float64, len(j.dims))
	for d := range z {
		z[d] = rng.NormFloat64()
	}
	if j.factor != nil {
		var y mat.VecDense
		y.MulVec(j.factor, mat.NewVecDense(len(z), z))
		z = y.RawVector().Data
	}
	for d, i := range j.dims {
		p := distuv.UnitNormal.CDF(z[d])
		p = math.Min(math.Max(p, pClamp), 1-pClamp)
		out[i] = j.marginal[i].Quantile(p)
	}
}
