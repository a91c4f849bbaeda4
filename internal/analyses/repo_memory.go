package analyses

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo stores analysis results in memory and is safe for
// concurrent use.
type MemoryRepo struct {
	mu            sync.RWMutex
	byFingerprint map[string][]AnalysisResult
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		byFingerprint: make(map[string][]AnalysisResult),
	}
}

// Append stores the result under the next version for its fingerprint.
func (r *MemoryRepo) Append(ctx context.Context, result AnalysisResult) (AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return AnalysisResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	versions := r.byFingerprint[result.Fingerprint]
	result.Version = len(versions) + 1
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}
	r.byFingerprint[result.Fingerprint] = append(versions, result)
	return result, nil
}

// Latest returns the highest version for a fingerprint.
func (r *MemoryRepo) Latest(ctx context.Context, fingerprint string) (AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return AnalysisResult{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions := r.byFingerprint[fingerprint]
	if len(versions) == 0 {
		return AnalysisResult{}, ErrNotFound
	}
	return versions[len(versions)-1], nil
}

// List returns all versions for a fingerprint, newest first.
func (r *MemoryRepo) List(ctx context.Context, fingerprint string) ([]AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	versions := r.byFingerprint[fingerprint]
	out := make([]AnalysisResult, 0, len(versions))
	for i := len(versions) - 1; i >= 0; i-- {
		out = append(out, versions[i])
	}
	return out, nil
}

var _ Repo = (*MemoryRepo)(nil)
