package analyses

import "context"

// Repo defines persistence for versioned analysis results. Versions are
// assigned by the repo on Append and never reused.
type Repo interface {
	Append(ctx context.Context, result AnalysisResult) (AnalysisResult, error)
	Latest(ctx context.Context, fingerprint string) (AnalysisResult, error)
	List(ctx context.Context, fingerprint string) ([]AnalysisResult, error)
}
