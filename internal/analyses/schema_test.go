package analyses

import (
	"encoding/json"
	"testing"
)

func TestParseFindingsEnvelope(t *testing.T) {
	raw := json.RawMessage(`{
		"findings": [
			{"category": "legal", "clause_text": "Unlimited liability applies.", "description": "No liability cap.", "severity": "high", "score": 92, "suggestion": "Add a cap."},
			{"category": "legal", "clause_text": "Disputes go to arbitration.", "description": "Venue unclear.", "severity": "low", "score": 20, "suggestion": "Name the venue."}
		]
	}`)

	findings, outcome := ParseFindings(raw, CategoryLegal)
	if outcome != OutcomeParsed {
		t.Fatalf("outcome = %v, want parsed", outcome)
	}
	if len(findings) != 2 {
		t.Fatalf("got %d findings, want 2", len(findings))
	}
	if findings[0].Severity != SeverityHigh || findings[0].Score != 92 {
		t.Fatalf("first finding = %+v", findings[0])
	}
}

func TestParseFindingsBareArray(t *testing.T) {
	raw := json.RawMessage(`[{"clause_text": "Auto-renews yearly.", "description": "Renewal trap.", "severity": "medium", "score": 55}]`)
	findings, outcome := ParseFindings(raw, CategoryBusiness)
	if outcome != OutcomeParsed || len(findings) != 1 {
		t.Fatalf("outcome=%v findings=%d", outcome, len(findings))
	}
	if findings[0].Category != CategoryBusiness {
		t.Fatalf("category = %s, want business fallback", findings[0].Category)
	}
}

func TestParseFindingsClampsAndNormalizes(t *testing.T) {
	raw := json.RawMessage(`{"findings": [
		{"clause_text": "a", "description": "b", "severity": "catastrophic", "score": 150},
		{"clause_text": "c", "description": "d", "severity": "HIGH", "score": -5}
	]}`)
	findings, outcome := ParseFindings(raw, CategoryLegal)
	if outcome != OutcomeParsed || len(findings) != 2 {
		t.Fatalf("outcome=%v findings=%d", outcome, len(findings))
	}
	if findings[0].Score != 100 {
		t.Fatalf("score = %d, want clamped to 100", findings[0].Score)
	}
	if findings[0].Severity != SeverityMedium {
		t.Fatalf("severity = %s, want medium for unknown label", findings[0].Severity)
	}
	if findings[1].Score != 0 {
		t.Fatalf("score = %d, want clamped to 0", findings[1].Score)
	}
	if findings[1].Severity != SeverityHigh {
		t.Fatalf("severity = %s, want high after lowercasing", findings[1].Severity)
	}
}

func TestParseFindingsPartial(t *testing.T) {
	raw := json.RawMessage(`{"findings": [
		{"clause_text": "valid clause", "description": "ok", "severity": "low", "score": 10},
		{"severity": "high", "score": 90}
	]}`)
	findings, outcome := ParseFindings(raw, CategoryLegal)
	if outcome != OutcomePartial {
		t.Fatalf("outcome = %v, want partial", outcome)
	}
	if len(findings) != 1 {
		t.Fatalf("got %d findings, want 1", len(findings))
	}
}

func TestParseFindingsUnparseable(t *testing.T) {
	cases := []string{
		`"just a string"`,
		`{"summary": "no array here"}`,
		`not json at all`,
		``,
	}
	for _, tc := range cases {
		if _, outcome := ParseFindings(json.RawMessage(tc), CategoryLegal); outcome != OutcomeUnparseable {
			t.Fatalf("input %q: outcome = %v, want unparseable", tc, outcome)
		}
	}
}

func TestParseFindingsTolerantScore(t *testing.T) {
	raw := json.RawMessage(`{"findings": [
		{"clause_text": "a", "description": "b", "severity": "low", "score": "64"},
		{"clause_text": "c", "description": "d", "severity": "low", "score": 0.8},
		{"clause_text": "e", "description": "f", "severity": "low"},
		{"clause_text": "g", "description": "h", "severity": "low", "score": 1},
		{"clause_text": "i", "description": "j", "severity": "low", "score": "1"}
	]}`)
	findings, outcome := ParseFindings(raw, CategoryLegal)
	if outcome != OutcomeParsed || len(findings) != 5 {
		t.Fatalf("outcome=%v findings=%d", outcome, len(findings))
	}
	if findings[0].Score != 64 {
		t.Fatalf("string score = %d, want 64", findings[0].Score)
	}
	if findings[1].Score != 80 {
		t.Fatalf("fractional score = %d, want 80", findings[1].Score)
	}
	if findings[2].Score != 50 {
		t.Fatalf("missing score = %d, want default 50", findings[2].Score)
	}
	// An integer 1 is a real 0-100 score, not a fraction to rescale.
	if findings[3].Score != 1 {
		t.Fatalf("integer score = %d, want 1", findings[3].Score)
	}
	if findings[4].Score != 1 {
		t.Fatalf("integer string score = %d, want 1", findings[4].Score)
	}
}

func TestParseRecommendation(t *testing.T) {
	raw := json.RawMessage(`{
		"overall_recommendation": "Renegotiate before signing.",
		"key_risks": ["Unlimited liability"],
		"negotiation_points": ["Cap liability at fees paid"]
	}`)
	text, risks, points, err := ParseRecommendation(raw)
	if err != nil {
		t.Fatalf("ParseRecommendation: %v", err)
	}
	if text != "Renegotiate before signing." || len(risks) != 1 || len(points) != 1 {
		t.Fatalf("got (%q, %v, %v)", text, risks, points)
	}

	if _, _, _, err := ParseRecommendation(json.RawMessage(`{"key_risks": []}`)); err == nil {
		t.Fatal("missing recommendation text must fail")
	}
	if _, _, _, err := ParseRecommendation(json.RawMessage(`garbage`)); err == nil {
		t.Fatal("non-JSON must fail")
	}
}
