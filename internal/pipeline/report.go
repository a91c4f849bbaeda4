package pipeline

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"review-backend/internal/analyses"
	"review-backend/internal/layout"
	"review-backend/internal/reconcile"
)

// Suggestion is one actionable item surfaced by the suggest stage.
type Suggestion struct {
	Category   analyses.Category `json:"category"`
	Severity   analyses.Severity `json:"severity"`
	Score      int               `json:"score"`
	ClauseText string            `json:"clauseText"`
	Text       string            `json:"text"`
}

// SuggestBundle is the suggest stage's output: the recommendation plus
// the per-finding suggestion list. Version ties the bundle to the
// analysis it was derived from; a cached bundle for another version is
// stale and gets recomputed.
type SuggestBundle struct {
	Version               int          `json:"version"`
	OverallRecommendation string       `json:"overallRecommendation"`
	KeyRisks              []string     `json:"keyRisks,omitempty"`
	NegotiationPoints     []string     `json:"negotiationPoints,omitempty"`
	Suggestions           []Suggestion `json:"suggestions"`
}

// BlockHighlight marks one layout block for front-end highlighting.
type BlockHighlight struct {
	OrderIndex int                `json:"orderIndex"`
	Box        layout.BoundingBox `json:"boundingBox"`
	Severity   analyses.Severity  `json:"severity"`
}

// Report is the render stage's output for one analysis version.
type Report struct {
	Fingerprint           string                 `json:"fingerprint"`
	Version               int                    `json:"version"`
	GeneratedAt           time.Time              `json:"generatedAt"`
	Findings              []analyses.RiskFinding `json:"findings"`
	Unresolved            int                    `json:"unresolved"`
	RiskScore             float64                `json:"riskScore"`
	RiskLevel             analyses.Severity      `json:"riskLevel"`
	OverallRecommendation string                 `json:"overallRecommendation"`
	KeyRisks              []string               `json:"keyRisks,omitempty"`
	NegotiationPoints     []string               `json:"negotiationPoints,omitempty"`
	Suggestions           []Suggestion           `json:"suggestions"`
	Highlights            []BlockHighlight       `json:"highlights"`
	Salvaged              bool                   `json:"salvaged,omitempty"`
	Summary               string                 `json:"summary"`
}

const defaultSuggestionText = "Review this clause with counsel before signing."

// buildSuggestions derives the suggest stage output from an analysis
// result. Findings without suggestion text get a default.
func buildSuggestions(result analyses.AnalysisResult) SuggestBundle {
	bundle := SuggestBundle{
		Version:               result.Version,
		OverallRecommendation: result.OverallRecommendation,
		KeyRisks:              result.KeyRisks,
		NegotiationPoints:     result.NegotiationPoints,
		Suggestions:           make([]Suggestion, 0, len(result.Findings)),
	}
	for _, f := range result.Findings {
		text := strings.TrimSpace(f.Suggestion)
		if text == "" {
			text = defaultSuggestionText
		}
		bundle.Suggestions = append(bundle.Suggestions, Suggestion{
			Category:   f.Category,
			Severity:   f.Severity,
			Score:      f.Score,
			ClauseText: f.ClauseText,
			Text:       text,
		})
	}
	return bundle
}

// renderReport locates every finding's clause in the layout and
// assembles the final report.
func renderReport(pl layout.ParsedLayout, result analyses.AnalysisResult, bundle SuggestBundle, resolver reconcile.Resolver, now time.Time) *Report {
	findings := make([]analyses.RiskFinding, len(result.Findings))
	copy(findings, result.Findings)

	unresolved := 0
	highlights := map[int]BlockHighlight{}
	for i := range findings {
		match, ok := resolver.Resolve(pl, findings[i].ClauseText)
		if !ok {
			findings[i].ResolvedSpan = nil
			findings[i].Confidence = 0
			unresolved++
			continue
		}
		span := match.Span
		findings[i].ResolvedSpan = &span
		findings[i].Confidence = match.Confidence

		for idx := span.Start; idx <= span.End && idx < len(pl.Blocks); idx++ {
			blk := pl.Blocks[idx]
			if blk.NonVisual {
				continue
			}
			existing, seen := highlights[idx]
			if !seen || severityRank(findings[i].Severity) > severityRank(existing.Severity) {
				highlights[idx] = BlockHighlight{
					OrderIndex: blk.OrderIndex,
					Box:        blk.Box,
					Severity:   findings[i].Severity,
				}
			}
		}
	}

	ordered := make([]BlockHighlight, 0, len(highlights))
	for _, h := range highlights {
		ordered = append(ordered, h)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].OrderIndex < ordered[j].OrderIndex
	})

	report := &Report{
		Fingerprint:           result.Fingerprint,
		Version:               result.Version,
		GeneratedAt:           now,
		Findings:              findings,
		Unresolved:            unresolved,
		RiskScore:             riskScore(findings),
		OverallRecommendation: bundle.OverallRecommendation,
		KeyRisks:              bundle.KeyRisks,
		NegotiationPoints:     bundle.NegotiationPoints,
		Suggestions:           bundle.Suggestions,
		Highlights:            ordered,
		Salvaged:              result.Salvaged,
	}
	report.RiskLevel = riskLevelFor(report.RiskScore)
	report.Summary = markdownSummary(report)
	return report
}

// riskScore aggregates per-finding weights into a document-level score
// on 0-100. Severity carries the most weight, the category a little
// less, and the average is amplified so a handful of serious findings
// still registers strongly, capped at 100.
func riskScore(findings []analyses.RiskFinding) float64 {
	if len(findings) == 0 {
		return 0
	}
	total := 0.0
	for _, f := range findings {
		total += severityWeight(f.Severity) * categoryWeight(f.Category) * 100
	}
	score := total / float64(len(findings)) * 1.5
	if score > 100 {
		score = 100
	}
	return math.Round(score*100) / 100
}

func severityWeight(s analyses.Severity) float64 {
	switch s {
	case analyses.SeverityHigh:
		return 1.0
	case analyses.SeverityMedium:
		return 0.6
	default:
		return 0.3
	}
}

func categoryWeight(c analyses.Category) float64 {
	if c == analyses.CategoryLegal {
		return 1.0
	}
	return 0.8
}

func riskLevelFor(score float64) analyses.Severity {
	switch {
	case score >= 70:
		return analyses.SeverityHigh
	case score >= 40:
		return analyses.SeverityMedium
	default:
		return analyses.SeverityLow
	}
}

func severityRank(s analyses.Severity) int {
	switch s {
	case analyses.SeverityHigh:
		return 3
	case analyses.SeverityMedium:
		return 2
	case analyses.SeverityLow:
		return 1
	default:
		return 0
	}
}

// markdownSummary renders the human-readable report artifact.
func markdownSummary(r *Report) string {
	var b strings.Builder
	b.WriteString("# Contract Review Report\n\n")
	fmt.Fprintf(&b, "Fingerprint: `%s`  \nVersion: %d  \nGenerated: %s\n\n", r.Fingerprint, r.Version, r.GeneratedAt.Format(time.RFC3339))

	counts := map[analyses.Severity]int{}
	for _, f := range r.Findings {
		counts[f.Severity]++
	}
	b.WriteString("## Overview\n\n")
	fmt.Fprintf(&b, "- Findings: %d (high: %d, medium: %d, low: %d)\n",
		len(r.Findings), counts[analyses.SeverityHigh], counts[analyses.SeverityMedium], counts[analyses.SeverityLow])
	fmt.Fprintf(&b, "- Overall risk: %.2f/100 (%s)\n", r.RiskScore, r.RiskLevel)
	if r.Unresolved > 0 {
		fmt.Fprintf(&b, "- Clauses not located in the document layout: %d\n", r.Unresolved)
	}
	if r.Salvaged {
		b.WriteString("- Clause-level findings could not be extracted from the model output; this report carries the overall recommendation only.\n")
	}
	b.WriteString("\n## Recommendation\n\n")
	b.WriteString(r.OverallRecommendation)
	b.WriteString("\n")

	if len(r.KeyRisks) > 0 {
		b.WriteString("\n### Key risks\n\n")
		for _, risk := range r.KeyRisks {
			fmt.Fprintf(&b, "- %s\n", risk)
		}
	}
	if len(r.NegotiationPoints) > 0 {
		b.WriteString("\n### Negotiation points\n\n")
		for _, point := range r.NegotiationPoints {
			fmt.Fprintf(&b, "- %s\n", point)
		}
	}

	if len(r.Findings) > 0 {
		b.WriteString("\n## Findings\n\n")
		for i, f := range r.Findings {
			fmt.Fprintf(&b, "### %d. [%s/%s] score %d\n\n", i+1, f.Category, f.Severity, f.Score)
			if f.ClauseText != "" {
				fmt.Fprintf(&b, "> %s\n\n", f.ClauseText)
			}
			if f.Description != "" {
				b.WriteString(f.Description)
				b.WriteString("\n\n")
			}
			if f.Suggestion != "" {
				fmt.Fprintf(&b, "Suggested action: %s\n\n", f.Suggestion)
			}
			if f.ResolvedSpan != nil {
				fmt.Fprintf(&b, "Location: blocks %d-%d (confidence %.2f)\n\n", f.ResolvedSpan.Start, f.ResolvedSpan.End, f.Confidence)
			}
		}
	}

	return b.String()
}
