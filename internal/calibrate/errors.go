package calibrate

import (
	"errors"
	"fmt"
)

// Calibration error codes (E7xx).
const (
	ErrCodeInsufficientData = "E701" // fewer clean observations than the minimum
	ErrCodeFitConvergence   = "E702" // optimiser failed or produced invalid parameters
	ErrCodeDataDomain       = "E703" // observations outside the family's support
	ErrCodeConfig           = "E704" // calibration config invalid
	ErrCodeData             = "E705" // CSV unreadable or malformed
	ErrCodeUnknownColumn    = "E706" // mapped column absent from the data
)

// InsufficientDataError is returned when a parameter has fewer clean
// observations than the configured minimum.
type InsufficientDataError struct {
	Param string
	N     int
	Min   int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %q: %d observations, need at least %d", e.Param, e.N, e.Min)
}

// Kind returns the error taxonomy name.
func (e *InsufficientDataError) Kind() string { return "InsufficientDataError" }

// ErrorCode returns the stable error code.
func (e *InsufficientDataError) ErrorCode() string { return ErrCodeInsufficientData }

// Location names the parameter.
func (e *InsufficientDataError) Location() string { return e.Param }

// FitConvergenceError is returned when maximum likelihood estimation fails.
type FitConvergenceError struct {
	Param   string
	Family  string
	Message string
}

func (e *FitConvergenceError) Error() string {
	return fmt.Sprintf("fit %s to %q did not converge: %s", e.Family, e.Param, e.Message)
}

// Kind returns the error taxonomy name.
func (e *FitConvergenceError) Kind() string { return "FitConvergenceError" }

// ErrorCode returns the stable error code.
func (e *FitConvergenceError) ErrorCode() string { return ErrCodeFitConvergence }

// Location names the parameter.
func (e *FitConvergenceError) Location() string { return e.Param }

// DataError reports unusable input data: a malformed CSV, a missing
// column or observations the family cannot describe.
type DataError struct {
	Code    string
	Param   string
	Message string
}

func (e *DataError) Error() string {
	if e.Param == "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Param, e.Message)
}

// Kind returns the error taxonomy name.
func (e *DataError) Kind() string { return "DataError" }

// ErrorCode returns the stable error code.
func (e *DataError) ErrorCode() string { return e.Code }

// Location names the parameter, if any.
func (e *DataError) Location() string { return e.Param }

// ConfigError reports an invalid calibration config.
type ConfigError struct {
	Path    string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return "calibration config: " + e.Message
	}
	return fmt.Sprintf("calibration config %s: %s", e.Path, e.Message)
}

// Kind returns the error taxonomy name.
func (e *ConfigError) Kind() string { return "ConfigError" }

// ErrorCode returns the stable error code.
func (e *ConfigError) ErrorCode() string { return ErrCodeConfig }

// Location returns the config path.
func (e *ConfigError) Location() string { return e.Path }

// IsInsufficientData reports whether err is an InsufficientDataError.
func IsInsufficientData(err error) bool {
	var ie *InsufficientDataError
	return errors.As(err, &ie)
}

// IsFitConvergence reports whether err is a FitConvergenceError.
func IsFitConvergence(err error) bool {
	var fe *FitConvergenceError
	return errors.As(err, &fe)
}
