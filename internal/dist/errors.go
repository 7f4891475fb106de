package dist

import (
	"errors"
	"fmt"
)

// Correlation error codes (E5xx).
const (
	ErrCodeUnknownParam    = "E501" // correlated with an undeclared param
	ErrCodeSelfCorrelation = "E502" // param correlated with itself
	ErrCodeNotStochastic   = "E503" // correlation endpoint has no random distribution
	ErrCodeRhoRange        = "E504" // |rho| > 1
	ErrCodeConflictingRho  = "E505" // pair declared twice with different rho
	ErrCodeNotPSD          = "E506" // joint matrix not positive semi-definite
	ErrCodeBadDistribution = "E510" // invalid family or parameters
)

// InvalidCorrelationError reports a correlation structure that cannot be
// realised by a Gaussian copula. Params names the pair, or every param of
// the joint matrix for E506.
type InvalidCorrelationError struct {
	Code    string
	Params  []string
	Message string
}

func (e *InvalidCorrelationError) Error() string {
	return fmt.Sprintf("invalid correlation [%s]: %s", e.Code, e.Message)
}

// Kind returns the error taxonomy name.
func (e *InvalidCorrelationError) Kind() string { return "InvalidCorrelationError" }

// ErrorCode returns the stable error code.
func (e *InvalidCorrelationError) ErrorCode() string { return e.Code }

// Location names the params involved.
func (e *InvalidCorrelationError) Location() string {
	return fmt.Sprint(e.Params)
}

// InvalidDistributionError reports an unknown family or out-of-domain
// parameters.
type InvalidDistributionError struct {
	Family  string
	Message string
}

func (e *InvalidDistributionError) Error() string {
	if e.Family == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Family, e.Message)
}

// Kind returns the error taxonomy name.
func (e *InvalidDistributionError) Kind() string { return "InvalidDistributionError" }

// ErrorCode returns the stable error code.
func (e *InvalidDistributionError) ErrorCode() string { return ErrCodeBadDistribution }

// IsInvalidCorrelation reports whether err is an InvalidCorrelationError.
// Uses errors.As to handle wrapped errors.
func IsInvalidCorrelation(err error) bool {
	var ce *InvalidCorrelationError
	return errors.As(err, &ce)
}
