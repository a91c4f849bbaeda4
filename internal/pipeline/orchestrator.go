package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"review-backend/internal/analyses"
	"review-backend/internal/cache"
	"review-backend/internal/documents"
	"review-backend/internal/layout"
	"review-backend/internal/llm"
	"review-backend/internal/reconcile"
	"review-backend/internal/shared/metrics"
	"review-backend/internal/shared/storage/object"
	"review-backend/internal/shared/telemetry"
)

const parseRetryBaseDelay = 500 * time.Millisecond

// defaultRunTTL is how long finished runs stay pollable before Submit
// sweeps them out of the registry.
const defaultRunTTL = time.Hour

// Orchestrator drives review runs through parse, analyze, suggest and
// render. Each stage's output is cached by document fingerprint, so a
// re-review of unchanged bytes replays without touching the parser or
// the model.
type Orchestrator struct {
	Parser       layout.Parser
	Local        layout.Parser
	Engine       *analyses.Engine
	Resolver     reconcile.Resolver
	Cache        *cache.Store
	Store        object.ObjectStore
	Docs         *documents.Service
	ParseRetries int
	RunTTL       time.Duration

	parseSem chan struct{}
	modelSem chan struct{}

	mu   sync.RWMutex
	runs map[string]*Run
}

// NewOrchestrator wires the pipeline. maxParse and maxModel bound how
// many runs may occupy the parser and the model at once.
func NewOrchestrator(parser layout.Parser, engine *analyses.Engine, resolver reconcile.Resolver, store *cache.Store, objects object.ObjectStore, docs *documents.Service, maxParse, maxModel int) *Orchestrator {
	if maxParse < 1 {
		maxParse = 2
	}
	if maxModel < 1 {
		maxModel = 2
	}
	return &Orchestrator{
		Parser:       parser,
		Local:        layout.LocalParser{},
		Engine:       engine,
		Resolver:     resolver,
		Cache:        store,
		Store:        objects,
		Docs:         docs,
		ParseRetries: 3,
		RunTTL:       defaultRunTTL,
		parseSem:     make(chan struct{}, maxParse),
		modelSem:     make(chan struct{}, maxModel),
		runs:         make(map[string]*Run),
	}
}

// SubmitOptions control one review run.
type SubmitOptions struct {
	// ForceRefresh bypasses cached stage outputs and appends a new
	// analysis version. Older versions stay readable.
	ForceRefresh bool
	// Mode selects the parser. Empty means service when one is
	// configured, local otherwise.
	Mode layout.Mode
}

// Submit starts a review run for the document and returns immediately.
// Poll the returned run (or GET its review resource) for progress.
func (o *Orchestrator) Submit(doc documents.Document, opts SubmitOptions) (*Run, error) {
	mode := opts.Mode
	if mode == "" {
		if o.Parser != nil {
			mode = layout.ModeService
		} else {
			mode = layout.ModeLocal
		}
	}
	if mode == layout.ModeService && o.Parser == nil {
		return nil, errors.New("no layout-parsing backend configured")
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := newRun(uuid.NewString(), doc.ID, doc.Fingerprint, mode, opts.ForceRefresh, cancel)

	o.mu.Lock()
	o.evictExpiredLocked(time.Now().UTC())
	o.runs[run.ID] = run
	o.mu.Unlock()

	metrics.IncReviewStarted()
	telemetry.Info("review.start", map[string]any{
		"review_id":     run.ID,
		"document_id":   doc.ID,
		"fingerprint":   doc.Fingerprint,
		"mode":          string(mode),
		"force_refresh": opts.ForceRefresh,
	})

	go o.execute(ctx, run, doc)
	return run, nil
}

// evictExpiredLocked drops terminal runs older than RunTTL so the
// registry does not grow for the process lifetime. Callers hold o.mu.
func (o *Orchestrator) evictExpiredLocked(now time.Time) {
	ttl := o.RunTTL
	if ttl <= 0 {
		ttl = defaultRunTTL
	}
	cutoff := now.Add(-ttl)
	for id, run := range o.runs {
		if run.finishedBefore(cutoff) {
			delete(o.runs, id)
		}
	}
}

// Get returns a run by ID.
func (o *Orchestrator) Get(reviewID string) (*Run, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	run, ok := o.runs[reviewID]
	return run, ok
}

func (o *Orchestrator) execute(ctx context.Context, run *Run, doc documents.Document) {
	pl, ok := o.runParse(ctx, run, doc)
	if !ok {
		return
	}

	result, ok := o.runAnalyze(ctx, run, pl)
	if !ok {
		return
	}

	bundle, ok := o.runSuggest(ctx, run, result)
	if !ok {
		return
	}

	report, ok := o.runRender(ctx, run, pl, result, bundle)
	if !ok {
		return
	}

	telemetry.Info("review.complete", map[string]any{
		"review_id":   run.ID,
		"fingerprint": run.Fingerprint,
		"version":     report.Version,
		"findings":    len(report.Findings),
	})
	run.complete(report)
}

func (o *Orchestrator) runParse(ctx context.Context, run *Run, doc documents.Document) (layout.ParsedLayout, bool) {
	run.beginStage(StageParse)

	if err := o.acquire(ctx, o.parseSem); err != nil {
		run.failStage(StageParse, "canceled", err)
		return layout.ParsedLayout{}, false
	}
	defer func() { <-o.parseSem }()

	data, err := o.Docs.Raw(ctx, doc)
	if err != nil {
		run.failStage(StageParse, "storage_error", err)
		return layout.ParsedLayout{}, false
	}

	parser := o.parserFor(run.Mode)
	payload, fromCache, err := o.Cache.Do(ctx, doc.Fingerprint, cache.StageParse, false, func(ctx context.Context) ([]byte, error) {
		pl, err := o.parseWithRetry(ctx, parser, data, doc)
		if err != nil {
			return nil, err
		}
		return json.Marshal(pl)
	})
	if err != nil {
		run.failStage(StageParse, parseErrorCode(err), err)
		return layout.ParsedLayout{}, false
	}

	var pl layout.ParsedLayout
	if err := json.Unmarshal(payload, &pl); err != nil {
		run.failStage(StageParse, "internal_error", fmt.Errorf("decode cached layout: %w", err))
		return layout.ParsedLayout{}, false
	}
	run.endStage(StageParse, fromCache)
	return pl, true
}

func (o *Orchestrator) runAnalyze(ctx context.Context, run *Run, pl layout.ParsedLayout) (analyses.AnalysisResult, bool) {
	run.beginStage(StageAnalyze)

	if err := o.acquire(ctx, o.modelSem); err != nil {
		run.failStage(StageAnalyze, "canceled", err)
		return analyses.AnalysisResult{}, false
	}
	defer func() { <-o.modelSem }()

	payload, fromCache, err := o.Cache.Do(ctx, run.Fingerprint, cache.StageAnalyze, run.Force, func(ctx context.Context) ([]byte, error) {
		result, err := o.Engine.Analyze(ctx, pl, run.Force)
		if err != nil {
			return nil, err
		}
		return json.Marshal(result)
	})
	if err != nil {
		run.failStage(StageAnalyze, analyzeErrorCode(err), err)
		return analyses.AnalysisResult{}, false
	}

	var result analyses.AnalysisResult
	if err := json.Unmarshal(payload, &result); err != nil {
		run.failStage(StageAnalyze, "internal_error", fmt.Errorf("decode cached analysis: %w", err))
		return analyses.AnalysisResult{}, false
	}
	run.endStage(StageAnalyze, fromCache)
	return result, true
}

func (o *Orchestrator) runSuggest(ctx context.Context, run *Run, result analyses.AnalysisResult) (SuggestBundle, bool) {
	run.beginStage(StageSuggest)

	bypass := run.Force
	if !bypass {
		// A cached bundle derived from another analysis version is stale.
		if payload, ok := o.Cache.Get(run.Fingerprint, cache.StageSuggest); ok {
			var cached SuggestBundle
			if err := json.Unmarshal(payload, &cached); err != nil || cached.Version != result.Version {
				bypass = true
			}
		}
	}

	payload, fromCache, err := o.Cache.Do(ctx, run.Fingerprint, cache.StageSuggest, bypass, func(ctx context.Context) ([]byte, error) {
		return json.Marshal(buildSuggestions(result))
	})
	if err != nil {
		code := "internal_error"
		if errors.Is(err, context.Canceled) {
			code = "canceled"
		}
		run.failStage(StageSuggest, code, err)
		return SuggestBundle{}, false
	}

	var bundle SuggestBundle
	if err := json.Unmarshal(payload, &bundle); err != nil {
		run.failStage(StageSuggest, "internal_error", fmt.Errorf("decode cached suggestions: %w", err))
		return SuggestBundle{}, false
	}
	run.endStage(StageSuggest, fromCache)
	return bundle, true
}

func (o *Orchestrator) runRender(ctx context.Context, run *Run, pl layout.ParsedLayout, result analyses.AnalysisResult, bundle SuggestBundle) (*Report, bool) {
	run.beginStage(StageRender)

	bypass := run.Force
	if !bypass {
		// A cached report for a different analysis version is stale.
		if payload, ok := o.Cache.Get(run.Fingerprint, cache.StageRender); ok {
			var cached Report
			if err := json.Unmarshal(payload, &cached); err != nil || cached.Version != result.Version {
				bypass = true
			}
		}
	}

	payload, fromCache, err := o.Cache.Do(ctx, run.Fingerprint, cache.StageRender, bypass, func(ctx context.Context) ([]byte, error) {
		report := renderReport(pl, result, bundle, o.Resolver, time.Now().UTC())
		o.saveReportArtifact(ctx, report)
		return json.Marshal(report)
	})
	if err != nil {
		code := "internal_error"
		if errors.Is(err, context.Canceled) {
			code = "canceled"
		}
		run.failStage(StageRender, code, err)
		return nil, false
	}

	var report Report
	if err := json.Unmarshal(payload, &report); err != nil {
		run.failStage(StageRender, "internal_error", fmt.Errorf("decode cached report: %w", err))
		return nil, false
	}
	run.endStage(StageRender, fromCache)
	return &report, true
}

func (o *Orchestrator) parseWithRetry(ctx context.Context, parser layout.Parser, data []byte, doc documents.Document) (layout.ParsedLayout, error) {
	attempts := o.ParseRetries
	if attempts < 1 {
		attempts = 1
	}
	delay := parseRetryBaseDelay
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		pl, err := parser.Parse(ctx, data, doc.FileName, doc.MimeType)
		if err == nil {
			return pl, nil
		}
		lastErr = err
		if !errors.Is(err, layout.ErrUnavailable) || attempt == attempts {
			return layout.ParsedLayout{}, err
		}
		telemetry.Warn("parse retry", map[string]any{
			"attempt":     attempt,
			"fingerprint": doc.Fingerprint,
			"error":       err.Error(),
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return layout.ParsedLayout{}, ctx.Err()
		}
		delay *= 2
	}
	return layout.ParsedLayout{}, lastErr
}

func (o *Orchestrator) parserFor(mode layout.Mode) layout.Parser {
	if mode == layout.ModeLocal || o.Parser == nil {
		return o.Local
	}
	return o.Parser
}

// saveReportArtifact persists the markdown summary next to the raw
// document. Failures are logged, not fatal; the report itself lives in
// the cache and the run result.
func (o *Orchestrator) saveReportArtifact(ctx context.Context, report *Report) {
	if o.Store == nil {
		return
	}
	key := fmt.Sprintf("%s/report-v%d.md", report.Fingerprint, report.Version)
	if _, err := o.Store.SaveWithKey(ctx, key, "text/markdown; charset=utf-8", strings.NewReader(report.Summary)); err != nil {
		telemetry.Warn("report artifact write failed", map[string]any{
			"fingerprint": report.Fingerprint,
			"key":         key,
			"error":       err.Error(),
		})
	}
}

func (o *Orchestrator) acquire(ctx context.Context, sem chan struct{}) error {
	select {
	case sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func parseErrorCode(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, layout.ErrMalformed):
		return "parsing_malformed"
	case errors.Is(err, layout.ErrUnavailable):
		return "parsing_unavailable"
	default:
		return "internal_error"
	}
}

func analyzeErrorCode(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, llm.ErrRejected):
		return analyses.ErrorCodeModelRejected
	case errors.Is(err, context.DeadlineExceeded):
		return analyses.ErrorCodeModelTimeout
	default:
		return "model_error"
	}
}
