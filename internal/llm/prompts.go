package llm

import _ "embed"

var (
	//go:embed prompts/legal_v1.txt
	promptLegalV1 string
	//go:embed prompts/business_v1.txt
	promptBusinessV1 string
	//go:embed prompts/recommendation_v1.txt
	promptRecommendationV1 string
)

// Prompt kinds for contract review.
const (
	PromptLegal          = "legal"
	PromptBusiness       = "business"
	PromptRecommendation = "recommendation"
)

// PromptTemplate returns the system prompt for the given kind and whether
// the kind was recognized. Unrecognized kinds fall back to the legal prompt.
func PromptTemplate(kind string) (string, bool) {
	switch kind {
	case PromptLegal:
		return promptLegalV1, true
	case PromptBusiness:
		return promptBusinessV1, true
	case PromptRecommendation:
		return promptRecommendationV1, true
	default:
		return promptLegalV1, false
	}
}
