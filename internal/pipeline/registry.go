package pipeline

import (
	"sync"
	"time"
)

// RunStatus is the lifecycle state of a tracked run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// RunInfo is the diagnostics view of one run
type RunInfo struct {
	ID               string        `json:"id"`
	Trigger          string        `json:"trigger"`
	Status           RunStatus     `json:"status"`
	Period           string        `json:"period"`
	StartedAt        time.Time     `json:"started_at"`
	CompletedAt      *time.Time    `json:"completed_at,omitempty"`
	Duration         time.Duration `json:"duration,omitempty"`
	SymbolsRequested int           `json:"symbols_requested"`
	SymbolsSucceeded int           `json:"symbols_succeeded"`
	FailureCount     int           `json:"failure_count"`
	Error            string        `json:"error,omitempty"`
}

// defaultRegistryLimit bounds how many finished runs the registry keeps
const defaultRegistryLimit = 50

// Registry tracks pipeline runs for the diagnostics listener. It keeps the
// most recent runs in memory; nothing is persisted.
type Registry struct {
	mu    sync.RWMutex
	runs  map[string]*RunInfo
	order []string // insertion order, oldest first
	limit int
}

// NewRegistry creates a run registry keeping the default number of runs
func NewRegistry() *Registry {
	return &Registry{
		runs:  make(map[string]*RunInfo),
		limit: defaultRegistryLimit,
	}
}

// Begin records a run as running
func (r *Registry) Begin(id, trigger, period string, symbolsRequested int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.runs[id] = &RunInfo{
		ID:               id,
		Trigger:          trigger,
		Status:           RunStatusRunning,
		Period:           period,
		StartedAt:        time.Now(),
		SymbolsRequested: symbolsRequested,
	}
	r.order = append(r.order, id)
	r.evictLocked()
}

// Complete marks a run as finished successfully
func (r *Registry) Complete(id string, result *RunResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.runs[id]
	if !ok {
		return
	}
	now := time.Now()
	info.Status = RunStatusCompleted
	info.CompletedAt = &now
	info.Duration = result.Duration
	info.SymbolsSucceeded = result.SymbolsSucceeded
	info.FailureCount = len(result.Report.Failures)
}

// Fail marks a run as failed
func (r *Registry) Fail(id string, runErr error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, ok := r.runs[id]
	if !ok {
		return
	}
	now := time.Now()
	info.Status = RunStatusFailed
	info.CompletedAt = &now
	info.Duration = now.Sub(info.StartedAt)
	if runErr != nil {
		info.Error = runErr.Error()
	}
}

// Get returns one run by ID
func (r *Registry) Get(id string) (RunInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.runs[id]
	if !ok {
		return RunInfo{}, false
	}
	return *info, true
}

// List returns the tracked runs, most recent first
func (r *Registry) List() []RunInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RunInfo, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		if info, ok := r.runs[r.order[i]]; ok {
			out = append(out, *info)
		}
	}
	return out
}

// evictLocked drops the oldest finished runs beyond the limit
func (r *Registry) evictLocked() {
	for len(r.order) > r.limit {
		oldest := r.order[0]
		if info, ok := r.runs[oldest]; ok && info.Status == RunStatusRunning {
			break // never evict an in-flight run
		}
		delete(r.runs, oldest)
		r.order = r.order[1:]
	}
}
