package analyses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"review-backend/internal/layout"
	"review-backend/internal/llm"
	"review-backend/internal/shared/metrics"
	"review-backend/internal/shared/telemetry"
)

// Prompt revisions recorded with every result.
const (
	AnalyzeVersion = "v1"
	SuggestVersion = "v1"
)

// Engine runs the legal and business review passes plus the overall
// recommendation pass over a parsed layout.
type Engine struct {
	Repo      Repo
	LLM       llm.Client
	Provider  string
	Model     string
	Retries   int
	BaseDelay time.Duration

	// Now is overridable in tests.
	Now func() time.Time
}

// Analyze returns the latest stored result for the layout's fingerprint,
// or runs the model passes and appends a new version. With force set the
// stored result is ignored and a new version is always produced.
func (e *Engine) Analyze(ctx context.Context, pl layout.ParsedLayout, force bool) (AnalysisResult, error) {
	if e.Repo == nil || e.LLM == nil {
		return AnalysisResult{}, errors.New("analysis engine not configured")
	}
	fingerprint := pl.Fingerprint
	if fingerprint == "" {
		return AnalysisResult{}, errors.New("layout has no fingerprint")
	}

	if !force {
		latest, err := e.Repo.Latest(ctx, fingerprint)
		if err == nil {
			return latest, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return AnalysisResult{}, fmt.Errorf("load latest analysis: %w", err)
		}
	}

	docText := pl.Text()
	client := newRetryingLLM(e.LLM, e.retries(), e.BaseDelay, fingerprint)

	legal, legalOutcome, err := e.reviewPass(ctx, client, CategoryLegal, docText)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("legal review: %w", err)
	}
	business, businessOutcome, err := e.reviewPass(ctx, client, CategoryBusiness, docText)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("business review: %w", err)
	}

	findings := append(append([]RiskFinding{}, legal...), business...)
	salvaged := legalOutcome == OutcomeUnparseable || businessOutcome == OutcomeUnparseable
	if salvaged {
		telemetry.Warn("review pass unparseable, salvaging recommendation-only result", map[string]any{
			"fingerprint":      fingerprint,
			"legal_outcome":    int(legalOutcome),
			"business_outcome": int(businessOutcome),
		})
	}

	recommendation, keyRisks, negotiationPoints := e.recommend(ctx, client, docText, findings)

	result := AnalysisResult{
		Fingerprint:           fingerprint,
		Findings:              findings,
		OverallRecommendation: recommendation,
		KeyRisks:              keyRisks,
		NegotiationPoints:     negotiationPoints,
		Salvaged:              salvaged,
		StageVersions: map[string]string{
			"analyze": AnalyzeVersion,
			"suggest": SuggestVersion,
		},
		Provider:  e.Provider,
		Model:     e.Model,
		CreatedAt: e.now(),
	}

	stored, err := e.Repo.Append(ctx, result)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("store analysis: %w", err)
	}
	return stored, nil
}

// History returns all stored versions for a fingerprint, newest first.
func (e *Engine) History(ctx context.Context, fingerprint string) ([]AnalysisResult, error) {
	return e.Repo.List(ctx, fingerprint)
}

func (e *Engine) reviewPass(ctx context.Context, client llm.Client, category Category, docText string) ([]RiskFinding, ParseOutcome, error) {
	system, _ := llm.PromptTemplate(string(category))
	metrics.IncModelCall()
	raw, err := client.Complete(ctx, llm.CompletionInput{
		System: system,
		User:   docText,
	})
	if err != nil {
		return nil, OutcomeUnparseable, err
	}
	findings, outcome := ParseFindings(raw, category)
	if outcome == OutcomePartial {
		telemetry.Warn("review pass dropped findings", map[string]any{
			"category": string(category),
			"kept":     len(findings),
		})
	}
	return findings, outcome, nil
}

func (e *Engine) recommend(ctx context.Context, client llm.Client, docText string, findings []RiskFinding) (string, []string, []string) {
	system, _ := llm.PromptTemplate(llm.PromptRecommendation)
	summary, err := json.Marshal(findings)
	if err != nil {
		summary = []byte("[]")
	}

	metrics.IncModelCall()
	raw, err := client.Complete(ctx, llm.CompletionInput{
		System: system,
		User:   docText + "\n\nIdentified findings:\n" + string(summary),
	})
	if err == nil {
		if text, risks, points, parseErr := ParseRecommendation(raw); parseErr == nil {
			return text, risks, points
		}
	}
	if err != nil {
		telemetry.Warn("recommendation pass failed, using fallback", map[string]any{
			"error": err.Error(),
		})
	}
	return fallbackRecommendation(findings)
}

// fallbackRecommendation derives an overall recommendation from the
// finding stats when the recommendation pass fails.
func fallbackRecommendation(findings []RiskFinding) (string, []string, []string) {
	high := 0
	var keyRisks []string
	var points []string
	for _, f := range findings {
		if f.Severity == SeverityHigh {
			high++
			if desc := strings.TrimSpace(f.Description); desc != "" && len(keyRisks) < 5 {
				keyRisks = append(keyRisks, desc)
			}
		}
		if s := strings.TrimSpace(f.Suggestion); s != "" && len(points) < 5 {
			points = append(points, s)
		}
	}

	switch {
	case len(findings) == 0:
		return "No material risks were identified. The contract appears acceptable to sign, though a final manual review is still advised.", nil, nil
	case high > 0:
		return fmt.Sprintf("The review found %d finding(s), %d of them high severity. Renegotiate the flagged clauses before signing.", len(findings), high), keyRisks, points
	default:
		return fmt.Sprintf("The review found %d finding(s) of low or medium severity. Signing with targeted amendments is reasonable.", len(findings)), keyRisks, points
	}
}

func (e *Engine) retries() int {
	if e.Retries < 1 {
		return 3
	}
	return e.Retries
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}
