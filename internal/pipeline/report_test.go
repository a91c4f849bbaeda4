package pipeline

import (
	"strings"
	"testing"
	"time"

	"review-backend/internal/analyses"
	"review-backend/internal/layout"
	"review-backend/internal/reconcile"
)

func TestRiskScoreAggregation(t *testing.T) {
	cases := []struct {
		name      string
		findings  []analyses.RiskFinding
		wantScore float64
		wantLevel analyses.Severity
	}{
		{"no findings", nil, 0, analyses.SeverityLow},
		{
			"single high legal caps at 100",
			[]analyses.RiskFinding{{Category: analyses.CategoryLegal, Severity: analyses.SeverityHigh}},
			100, analyses.SeverityHigh,
		},
		{
			"single low legal lands medium",
			[]analyses.RiskFinding{{Category: analyses.CategoryLegal, Severity: analyses.SeverityLow}},
			45, analyses.SeverityMedium,
		},
		{
			"single low business stays low",
			[]analyses.RiskFinding{{Category: analyses.CategoryBusiness, Severity: analyses.SeverityLow}},
			36, analyses.SeverityLow,
		},
		{
			"high legal plus low business",
			[]analyses.RiskFinding{
				{Category: analyses.CategoryLegal, Severity: analyses.SeverityHigh},
				{Category: analyses.CategoryBusiness, Severity: analyses.SeverityLow},
			},
			93, analyses.SeverityHigh,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			score := riskScore(tc.findings)
			if score != tc.wantScore {
				t.Fatalf("score = %v, want %v", score, tc.wantScore)
			}
			if level := riskLevelFor(score); level != tc.wantLevel {
				t.Fatalf("level = %s, want %s", level, tc.wantLevel)
			}
		})
	}
}

func TestBuildSuggestionsCarriesAnalysisVersion(t *testing.T) {
	result := analyses.AnalysisResult{
		Version:               3,
		OverallRecommendation: "Renegotiate.",
		Findings: []analyses.RiskFinding{
			{Category: analyses.CategoryLegal, Severity: analyses.SeverityHigh, ClauseText: "x", Suggestion: ""},
		},
	}
	bundle := buildSuggestions(result)
	if bundle.Version != 3 {
		t.Fatalf("bundle version = %d, want the analysis version", bundle.Version)
	}
	if len(bundle.Suggestions) != 1 || bundle.Suggestions[0].Text != defaultSuggestionText {
		t.Fatalf("suggestions = %+v", bundle.Suggestions)
	}
}

func TestRenderReportIncludesRiskStatistics(t *testing.T) {
	pl := layout.ParsedLayout{
		Fingerprint: strings.Repeat("ab", 32),
		Blocks: []layout.Block{
			{Text: "The supplier accepts unlimited liability.", OrderIndex: 0, Box: layout.BoundingBox{Page: 1, Width: 100, Height: 20}},
		},
	}
	result := analyses.AnalysisResult{
		Fingerprint:           pl.Fingerprint,
		Version:               1,
		OverallRecommendation: "Renegotiate.",
		Findings: []analyses.RiskFinding{
			{Category: analyses.CategoryLegal, Severity: analyses.SeverityHigh, Score: 90, ClauseText: "The supplier accepts unlimited liability.", Description: "Uncapped."},
		},
	}
	report := renderReport(pl, result, buildSuggestions(result), reconcile.NewResolver(0.72), time.Now().UTC())

	if report.RiskScore != 100 || report.RiskLevel != analyses.SeverityHigh {
		t.Fatalf("risk = %v/%s", report.RiskScore, report.RiskLevel)
	}
	if !strings.Contains(report.Summary, "Overall risk: 100.00/100 (high)") {
		t.Fatalf("summary missing risk line:\n%s", report.Summary)
	}
}
