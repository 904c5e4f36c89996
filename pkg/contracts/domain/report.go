package domain

// Stage identifies the pipeline stage a symbol failed in
type Stage string

const (
	StageFetch   Stage = "fetch"
	StageProcess Stage = "process"
)

// SymbolFailure is one excluded symbol with the reason it was excluded.
// Failures are collected, never thrown across symbols.
type SymbolFailure struct {
	Symbol    string `json:"symbol" csv:"Symbol"`
	Stage     Stage  `json:"stage" csv:"Stage"`
	Reason    string `json:"reason" csv:"Reason"`
	Retryable bool   `json:"retryable" csv:"Retryable"`
	Attempts  int    `json:"attempts,omitempty" csv:"Attempts"`
}

// ErrorReport enumerates every symbol excluded from a pipeline run and why,
// in the order the failures were recorded. Callers inspect it to decide
// whether partial results are acceptable.
type ErrorReport struct {
	Failures []SymbolFailure `json:"failures"`
}

// Add appends a failure entry
func (r *ErrorReport) Add(f SymbolFailure) {
	r.Failures = append(r.Failures, f)
}

// Merge appends all failures from another report
func (r *ErrorReport) Merge(other ErrorReport) {
	r.Failures = append(r.Failures, other.Failures...)
}

// HasFailures reports whether any symbol was excluded
func (r *ErrorReport) HasFailures() bool {
	return len(r.Failures) > 0
}

// ByStage returns the failures recorded for one stage
func (r *ErrorReport) ByStage(stage Stage) []SymbolFailure {
	var out []SymbolFailure
	for _, f := range r.Failures {
		if f.Stage == stage {
			out = append(out, f)
		}
	}
	return out
}

// Symbols returns the distinct failed symbols in first-seen order
func (r *ErrorReport) Symbols() []string {
	seen := make(map[string]bool, len(r.Failures))
	var out []string
	for _, f := range r.Failures {
		if !seen[f.Symbol] {
			seen[f.Symbol] = true
			out = append(out, f.Symbol)
		}
	}
	return out
}
