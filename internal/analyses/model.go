package analyses

import (
	"time"

	"review-backend/internal/layout"
)

// Category separates the two review passes.
type Category string

const (
	CategoryLegal    Category = "legal"
	CategoryBusiness Category = "business"
)

// Severity buckets a finding's risk level.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// RiskFinding is one risky clause identified by the model. ResolvedSpan
// and Confidence are filled during rendering, once the clause quote has
// been located in the block layout; they stay empty when no anchor
// cleared the similarity threshold.
type RiskFinding struct {
	Category     Category     `json:"category"`
	Severity     Severity     `json:"severity"`
	Score        int          `json:"score"`
	ClauseText   string       `json:"clauseText"`
	Description  string       `json:"description"`
	Suggestion   string       `json:"suggestion"`
	ResolvedSpan *layout.Span `json:"resolvedSpan,omitempty"`
	Confidence   float64      `json:"confidence,omitempty"`
}

// AnalysisResult is one versioned review of a document fingerprint.
// Versions are append-only: a forced refresh adds a new version and the
// older ones stay readable.
type AnalysisResult struct {
	Fingerprint           string            `json:"fingerprint"`
	Version               int               `json:"version"`
	Findings              []RiskFinding     `json:"findings"`
	OverallRecommendation string            `json:"overallRecommendation"`
	KeyRisks              []string          `json:"keyRisks,omitempty"`
	NegotiationPoints     []string          `json:"negotiationPoints,omitempty"`
	// Salvaged marks results built without clause-level data because the
	// model output could not be parsed into findings.
	Salvaged      bool              `json:"salvaged,omitempty"`
	StageVersions map[string]string `json:"stageVersions"`
	Provider      string            `json:"provider"`
	Model         string            `json:"model"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// ClampScore limits a raw model score to [0, 100].
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// NormalizeSeverity maps unknown labels to medium.
func NormalizeSeverity(raw string) Severity {
	switch Severity(raw) {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return Severity(raw)
	default:
		return SeverityMedium
	}
}
