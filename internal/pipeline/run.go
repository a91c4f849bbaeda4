package pipeline

import (
	"context"
	"sync"
	"time"

	"review-backend/internal/layout"
	"review-backend/internal/shared/metrics"
)

// Run is one in-flight or finished review of a document. All mutation
// goes through the methods below; Snapshot returns a copy safe to
// serialize while the run progresses.
type Run struct {
	ID          string
	DocumentID  string
	Fingerprint string
	Mode        layout.Mode
	Force       bool
	CreatedAt   time.Time

	mu       sync.RWMutex
	state    RunState
	records  []StageRecord
	report   *Report
	errCode  string
	errMsg   string
	finished *time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func newRun(id, documentID, fingerprint string, mode layout.Mode, force bool, cancel context.CancelFunc) *Run {
	records := make([]StageRecord, len(stageOrder))
	for i, stage := range stageOrder {
		records[i] = StageRecord{Stage: stage, State: StagePending}
	}
	return &Run{
		ID:          id,
		DocumentID:  documentID,
		Fingerprint: fingerprint,
		Mode:        mode,
		Force:       force,
		CreatedAt:   time.Now().UTC(),
		state:       RunIdle,
		records:     records,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

// Cancel aborts the run. Stages already completed keep their records.
func (r *Run) Cancel() {
	r.cancel()
}

// Done is closed once the run reaches completed or failed.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Report returns the final report once the run completed.
func (r *Run) Report() (*Report, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.state != RunCompleted || r.report == nil {
		return nil, false
	}
	return r.report, true
}

// finishedBefore reports whether the run reached a terminal state
// before the cutoff.
func (r *Run) finishedBefore(cutoff time.Time) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.finished != nil && r.finished.Before(cutoff)
}

func (r *Run) beginStage(stage Stage) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = runStateFor(stage)
	rec := r.record(stage)
	rec.State = StageRunning
	rec.StartedAt = &now
}

func (r *Run) endStage(stage Stage, cacheHit bool) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.record(stage)
	rec.State = StageSucceeded
	rec.CacheHit = cacheHit
	rec.CompletedAt = &now
	if rec.StartedAt != nil {
		rec.DurationMs = float64(now.Sub(*rec.StartedAt).Microseconds()) / 1000.0
		metrics.ObserveStageDurationMs(string(stage), rec.DurationMs)
	}
	if cacheHit {
		metrics.IncCacheHit()
	} else {
		metrics.IncCacheMiss()
	}
}

func (r *Run) failStage(stage Stage, code string, err error) {
	now := time.Now().UTC()
	r.mu.Lock()
	rec := r.record(stage)
	rec.State = StageFailed
	rec.ErrorCode = code
	if err != nil {
		rec.Error = err.Error()
	}
	rec.CompletedAt = &now
	if rec.StartedAt != nil {
		rec.DurationMs = float64(now.Sub(*rec.StartedAt).Microseconds()) / 1000.0
	}
	r.state = RunFailed
	r.errCode = code
	if err != nil {
		r.errMsg = err.Error()
	}
	r.finished = &now
	r.mu.Unlock()

	metrics.IncReviewFailed()
	close(r.done)
}

func (r *Run) complete(report *Report) {
	now := time.Now().UTC()
	r.mu.Lock()
	r.report = report
	r.state = RunCompleted
	r.finished = &now
	r.mu.Unlock()

	metrics.IncReviewCompleted()
	close(r.done)
}

func (r *Run) record(stage Stage) *StageRecord {
	for i := range r.records {
		if r.records[i].Stage == stage {
			return &r.records[i]
		}
	}
	return &r.records[0]
}

// RunView is the serializable snapshot of a run.
type RunView struct {
	ReviewID    string        `json:"reviewId"`
	DocumentID  string        `json:"documentId"`
	Fingerprint string        `json:"fingerprint"`
	Mode        string        `json:"mode"`
	ForceRefresh bool         `json:"forceRefresh,omitempty"`
	State       RunState      `json:"state"`
	Stages      []StageRecord `json:"stages"`
	ErrorCode   string        `json:"errorCode,omitempty"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"createdAt"`
	CompletedAt *time.Time    `json:"completedAt,omitempty"`
}

// Snapshot copies the run's current state.
func (r *Run) Snapshot() RunView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stages := make([]StageRecord, len(r.records))
	copy(stages, r.records)
	return RunView{
		ReviewID:     r.ID,
		DocumentID:   r.DocumentID,
		Fingerprint:  r.Fingerprint,
		Mode:         string(r.Mode),
		ForceRefresh: r.Force,
		State:        r.state,
		Stages:       stages,
		ErrorCode:    r.errCode,
		Error:        r.errMsg,
		CreatedAt:    r.CreatedAt,
		CompletedAt:  r.finished,
	}
}
