package calibrate

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/qml/internal/ir"
)

// Report is the outcome of a calibration run.
type Report struct {
	RunID           string        `json:"run_id"`
	Timestamp       time.Time     `json:"timestamp"`
	ModelName       string        `json:"model_name"`
	SourceHash      string        `json:"source_hash"`
	ModelHash       string        `json:"model_hash"`
	DataHash        string        `json:"data_hash"`
	CalibrationHash string        `json:"calibration_hash"`
	Seed            uint64        `json:"seed"`
	ConfidenceLevel float64       `json:"confidence_level"`
	Parameters      []ParamReport `json:"parameters"`
	Drift           *DriftReport  `json:"drift,omitempty"`
	DriftError      *ErrorInfo    `json:"drift_error,omitempty"`

	// Model is the calibrated IR.
	Model *ir.Model `json:"-"`
}

// ParamReport describes the fit of one parameter.
type ParamReport struct {
	Name         string                `json:"name"`
	Column       string                `json:"column"`
	Distribution string                `json:"distribution"`
	Params       map[string]float64    `json:"params,omitempty"`
	Intervals    map[string][2]float64 `json:"ci,omitempty"`
	*GoodnessOfFit
	N            int        `json:"n"`
	Missing      int        `json:"dropped"`
	Interpolated int        `json:"interpolated"`
	Outliers     int        `json:"outliers"`
	Confidence   float64    `json:"confidence,omitempty"`
	Error        *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo is the machine-readable form of a per-parameter failure.
type ErrorInfo struct {
	Kind     string `json:"kind"`
	Code     string `json:"code"`
	Location string `json:"location,omitempty"`
	Message  string `json:"message"`
}

type codedError interface {
	error
	Kind() string
	ErrorCode() string
	Location() string
}

func errorInfo(err error) *ErrorInfo {
	var ce codedError
	if errors.As(err, &ce) {
		return &ErrorInfo{Kind: ce.Kind(), Code: ce.ErrorCode(), Location: ce.Location(), Message: ce.Error()}
	}
	return &ErrorInfo{Kind: "Error", Message: err.Error()}
}

// Failed returns the names of parameters that could not be fitted.
func (r *Report) Failed() []string {
	var out []string
	for _, p := range r.Parameters {
		if p.Error != nil {
			out = append(out, p.Name)
		}
	}
	return out
}

// Param returns the report for the named parameter.
func (r *Report) Param(name string) (*ParamReport, bool) {
	for i := range r.Parameters {
		if r.Parameters[i].Name == name {
			return &r.Parameters[i], true
		}
	}
	return nil, false
}

// Markdown renders the report for humans.
func (r *Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Calibration of %s\n\n", r.ModelName)
	fmt.Fprintf(&b, "- run: `%s`\n", r.RunID)
	fmt.Fprintf(&b, "- timestamp: %s\n", r.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "- source model: `%s`\n", short(r.SourceHash))
	fmt.Fprintf(&b, "- calibrated model: `%s`\n", short(r.ModelHash))
	fmt.Fprintf(&b, "- data: `%s`\n\n", short(r.DataHash))

	b.WriteString("## Parameters\n\n")
	fmt.Fprintf(&b, "| param | family | estimate | %g%% CI | n | KS p | AIC | confidence |\n", r.ConfidenceLevel*100)
	b.WriteString("|---|---|---|---|---|---|---|---|\n")
	for _, p := range r.Parameters {
		if p.Error != nil {
			fmt.Fprintf(&b, "| %s | %s | %s: %s | | %d | | | |\n", p.Name, p.Distribution, p.Error.Kind, p.Error.Message, p.N)
			continue
		}
		var est, ci []string
		for _, name := range ParamNames(p.Distribution) {
			est = append(est, fmt.Sprintf("%s=%.4g", name, p.Params[name]))
			if iv, ok := p.Intervals[name]; ok {
				ci = append(ci, fmt.Sprintf("%s [%.4g, %.4g]", name, iv[0], iv[1]))
			}
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %d | %.3f | %.2f | %.2f |\n",
			p.Name, p.Distribution, strings.Join(est, ", "), strings.Join(ci, ", "),
			p.N, p.KSPValue, p.AIC, p.Confidence)
	}

	if r.Drift != nil || r.DriftError != nil {
		b.WriteString("\n## Drift\n\n")
		switch {
		case r.DriftError != nil:
			fmt.Fprintf(&b, "%s: %s\n", r.DriftError.Kind, r.DriftError.Message)
		default:
			fmt.Fprintf(&b, "- MAPE: %.2f%%", r.Drift.MAPE*100)
			if r.Drift.MAPEExceeded {
				b.WriteString(" (threshold exceeded)")
			}
			b.WriteString("\n")
			if r.Drift.ChangePoint >= 0 {
				fmt.Fprintf(&b, "- change point: index %d, drifting %s\n", r.Drift.ChangePoint, r.Drift.Direction)
			} else {
				b.WriteString("- change point: none\n")
			}
		}
	}
	return b.String()
}

func short(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
