package engine

import (
	"errors"
	"fmt"
)

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeIndex indicates a read before t=0 or of a step not yet computed.
	ErrCodeIndex RuntimeErrorCode = "E601"

	// ErrCodeNonFinite indicates a NaN or infinite intermediate value.
	ErrCodeNonFinite RuntimeErrorCode = "E602"

	// ErrCodeArithmetic indicates division by zero or a failed function call.
	ErrCodeArithmetic RuntimeErrorCode = "E603"

	// ErrCodeInvalidModel indicates IR the engine cannot execute.
	ErrCodeInvalidModel RuntimeErrorCode = "E604"
)

// RuntimeError represents an error detected while evaluating a sample.
//
// Runtime errors abort the whole run. Constraint violations are not
// runtime errors; they are recorded in the Result.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Node is the var or constraint being evaluated.
	Node string

	// T is the time step; Sample is the Monte Carlo sample index.
	T      int
	Sample int
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	return fmt.Sprintf("%s: %s (node=%s, t=%d, sample=%d)", e.Code, e.Message, e.Node, e.T, e.Sample)
}

// Kind returns "RuntimeIndexError" for invalid lookbacks, else "RuntimeError".
func (e *RuntimeError) Kind() string {
	if e.Code == ErrCodeIndex {
		return "RuntimeIndexError"
	}
	return "RuntimeError"
}

// ErrorCode returns the stable error code.
func (e *RuntimeError) ErrorCode() string { return string(e.Code) }

// Location returns node@t.
func (e *RuntimeError) Location() string { return fmt.Sprintf("%s@t=%d", e.Node, e.T) }

// IsRuntimeIndexError returns true if err is an invalid time-index read.
// Uses errors.As to handle wrapped errors.
func IsRuntimeIndexError(err error) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == ErrCodeIndex
	}
	return false
}

// evalError is raised inside compiled expressions, which do not know the
// node, step or sample; run() locates it into a RuntimeError.
type evalError struct {
	code RuntimeErrorCode
	msg  string
}

func (e *evalError) Error() string { return e.msg }

func evalErrorf(code RuntimeErrorCode, format string, args ...any) error {
	return &evalError{code: code, msg: fmt.Sprintf(format, args...)}
}

// locate converts err into a RuntimeError for node at (t, sample).
func locate(err error, node string, t, sample int) error {
	var ee *evalError
	if errors.As(err, &ee) {
		return &RuntimeError{Code: ee.code, Message: ee.msg, Node: node, T: t, Sample: sample}
	}
	return err
}
