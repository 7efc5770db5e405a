// SPDX-License-Identifier: MIT
package spectral

import "fmt"

// AnalysisError reports that a source could not be fetched, decoded or
// transformed. No partial Field is ever returned alongside it.
type AnalysisError struct {
	Source string
	Err    error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis of '%s' failed: %v", e.Source, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// Axis names used by IndexError.
const (
	AxisTime      = "time"
	AxisFrequency = "frequency"
)

// IndexError reports a query that maps outside the analyzed grid.
type IndexError struct {
	Axis  string  // AxisTime or AxisFrequency.
	Value float64 // Queried seconds or Hz.
	Index int     // Rounded grid index.
	Len   int     // Grid length along Axis.
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("%s %g maps to index %d outside [0, %d)", e.Axis, e.Value, e.Index, e.Len)
}
