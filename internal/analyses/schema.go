package analyses

import (
	"encoding/json"
	"strings"
)

// Model output schema for a review pass:
// {
//   "findings": [
//     {
//       "category": "legal | business",
//       "clause_text": "string (verbatim quote)",
//       "description": "string",
//       "severity": "low | medium | high",
//       "score": "number (0-100)",
//       "suggestion": "string"
//     }
//   ]
// }
// and for the recommendation pass:
// {
//   "overall_recommendation": "string",
//   "key_risks": ["string"],
//   "negotiation_points": ["string"]
// }

// ParseOutcome reports how much of a model reply survived decoding.
type ParseOutcome int

const (
	// OutcomeParsed means every finding decoded cleanly.
	OutcomeParsed ParseOutcome = iota
	// OutcomePartial means some findings were dropped.
	OutcomePartial
	// OutcomeUnparseable means no finding data could be recovered.
	OutcomeUnparseable
)

type rawFinding struct {
	Category    string          `json:"category"`
	ClauseText  string          `json:"clause_text"`
	Description string          `json:"description"`
	Severity    string          `json:"severity"`
	Score       json.RawMessage `json:"score"`
	Suggestion  string          `json:"suggestion"`
}

type rawFindingEnvelope struct {
	Findings []json.RawMessage `json:"findings"`
	Risks    []json.RawMessage `json:"risks"`
	Items    []json.RawMessage `json:"items"`
}

// ParseFindings decodes a review reply into normalized findings. It
// accepts either a bare array or an object wrapping the array, tolerates
// individually broken items, clamps scores to [0, 100] and maps unknown
// severities to medium.
func ParseFindings(raw json.RawMessage, category Category) ([]RiskFinding, ParseOutcome) {
	items, ok := findingItems(raw)
	if !ok {
		return nil, OutcomeUnparseable
	}

	var findings []RiskFinding
	dropped := 0
	for _, item := range items {
		var rf rawFinding
		if err := json.Unmarshal(item, &rf); err != nil {
			dropped++
			continue
		}
		clause := strings.TrimSpace(rf.ClauseText)
		desc := strings.TrimSpace(rf.Description)
		if clause == "" && desc == "" {
			dropped++
			continue
		}
		findings = append(findings, RiskFinding{
			Category:    normalizeCategory(rf.Category, category),
			Severity:    NormalizeSeverity(strings.ToLower(strings.TrimSpace(rf.Severity))),
			Score:       ClampScore(decodeScore(rf.Score)),
			ClauseText:  clause,
			Description: desc,
			Suggestion:  strings.TrimSpace(rf.Suggestion),
		})
	}

	if len(findings) == 0 && dropped > 0 {
		return nil, OutcomeUnparseable
	}
	if dropped > 0 {
		return findings, OutcomePartial
	}
	return findings, OutcomeParsed
}

type rawRecommendation struct {
	OverallRecommendation string   `json:"overall_recommendation"`
	KeyRisks              []string `json:"key_risks"`
	NegotiationPoints     []string `json:"negotiation_points"`
}

// ParseRecommendation decodes the recommendation reply.
func ParseRecommendation(raw json.RawMessage) (string, []string, []string, error) {
	var rec rawRecommendation
	if err := json.Unmarshal(raw, &rec); err != nil {
		return "", nil, nil, ErrUnparseable
	}
	text := strings.TrimSpace(rec.OverallRecommendation)
	if text == "" {
		return "", nil, nil, ErrUnparseable
	}
	return text, rec.KeyRisks, rec.NegotiationPoints, nil
}

func findingItems(raw json.RawMessage) ([]json.RawMessage, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return nil, false
	}
	if strings.HasPrefix(trimmed, "[") {
		var items []json.RawMessage
		if err := json.Unmarshal([]byte(trimmed), &items); err != nil {
			return nil, false
		}
		return items, true
	}
	var env rawFindingEnvelope
	if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
		return nil, false
	}
	switch {
	case env.Findings != nil:
		return env.Findings, true
	case env.Risks != nil:
		return env.Risks, true
	case env.Items != nil:
		return env.Items, true
	default:
		return nil, false
	}
}

func normalizeCategory(raw string, fallback Category) Category {
	switch Category(strings.ToLower(strings.TrimSpace(raw))) {
	case CategoryLegal:
		return CategoryLegal
	case CategoryBusiness:
		return CategoryBusiness
	default:
		return fallback
	}
}

// decodeScore accepts numbers, numeric strings and fractions on a 0-1
// scale, since providers disagree on the score format.
func decodeScore(raw json.RawMessage) int {
	literal := strings.TrimSpace(string(raw))
	if literal == "" {
		return 50
	}
	var asFloat float64
	if err := json.Unmarshal(raw, &asFloat); err != nil {
		var asString string
		if err := json.Unmarshal(raw, &asString); err != nil {
			return 50
		}
		literal = strings.TrimSpace(asString)
		if err := json.Unmarshal([]byte(literal), &asFloat); err != nil {
			return 50
		}
	}
	// Only fractional literals are on the 0-1 scale. An integer 1 is a
	// genuine score of 1 and stays verbatim.
	if asFloat > 0 && asFloat <= 1 && strings.Contains(literal, ".") {
		asFloat *= 100
	}
	return int(asFloat)
}
