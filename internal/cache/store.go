package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"review-backend/internal/shared/telemetry"
)

// Stage names the pipeline step a cache entry belongs to.
type Stage string

const (
	StageParse   Stage = "parse"
	StageAnalyze Stage = "analyze"
	StageSuggest Stage = "suggest"
	StageRender  Stage = "render"
)

var fingerprintPattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// ErrInvalidFingerprint rejects keys that are not lowercase hex sha256.
var ErrInvalidFingerprint = errors.New("invalid fingerprint")

// Store is a content-addressed, file-backed cache of stage outputs.
// Entries are keyed by (fingerprint, stage). Concurrent computations of
// the same key are collapsed so the work runs at most once; writes go
// through a temp file and rename so readers never observe partial
// entries, and an entry that fails to decode is treated as a miss.
type Store struct {
	root string

	mu       sync.Mutex
	inflight map[string]*call
}

type call struct {
	done chan struct{}
	data []byte
	err  error
}

// NewStore creates the cache root if needed.
func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("cache root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}
	return &Store{
		root:     root,
		inflight: make(map[string]*call),
	}, nil
}

// Get returns the cached bytes for (fingerprint, stage). A missing,
// unreadable or non-JSON entry is a miss, never an error.
func (s *Store) Get(fingerprint string, stage Stage) ([]byte, bool) {
	if !fingerprintPattern.MatchString(fingerprint) {
		return nil, false
	}
	data, err := os.ReadFile(s.entryPath(fingerprint, stage))
	if err != nil {
		return nil, false
	}
	if !json.Valid(data) {
		telemetry.Warn("cache entry corrupt, treating as miss", map[string]any{
			"fingerprint": fingerprint,
			"stage":       string(stage),
		})
		return nil, false
	}
	return data, true
}

// Put stores bytes for (fingerprint, stage) atomically.
func (s *Store) Put(fingerprint string, stage Stage, data []byte) error {
	if !fingerprintPattern.MatchString(fingerprint) {
		return ErrInvalidFingerprint
	}
	dir := filepath.Join(s.root, fingerprint)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+string(stage)+"-*")
	if err != nil {
		return fmt.Errorf("create cache temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write cache temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close cache temp: %w", err)
	}
	if err := os.Rename(tmpName, s.entryPath(fingerprint, stage)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("publish cache entry: %w", err)
	}
	return nil
}

// Invalidate removes the entry for one stage, or every stage of the
// fingerprint when stage is empty. Missing entries are not an error.
func (s *Store) Invalidate(fingerprint string, stage Stage) error {
	if !fingerprintPattern.MatchString(fingerprint) {
		return ErrInvalidFingerprint
	}
	if stage == "" {
		if err := os.RemoveAll(filepath.Join(s.root, fingerprint)); err != nil {
			return fmt.Errorf("invalidate fingerprint: %w", err)
		}
		return nil
	}
	if err := os.Remove(s.entryPath(fingerprint, stage)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("invalidate stage: %w", err)
	}
	return nil
}

// Do returns the cached bytes for the key or computes them exactly once,
// no matter how many goroutines ask concurrently. With bypassRead set the
// stored entry is ignored but concurrent callers still share the single
// computation, and a successful result replaces the stored entry. A failed
// computation caches nothing; the next caller recomputes.
func (s *Store) Do(ctx context.Context, fingerprint string, stage Stage, bypassRead bool, compute func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	if !fingerprintPattern.MatchString(fingerprint) {
		return nil, false, ErrInvalidFingerprint
	}
	key := fingerprint + "/" + string(stage)

	for {
		s.mu.Lock()
		if c, ok := s.inflight[key]; ok {
			s.mu.Unlock()
			select {
			case <-c.done:
				if c.err == nil {
					return c.data, true, nil
				}
				// Leader failed; take another turn at the key.
				continue
			case <-ctx.Done():
				return nil, false, ctx.Err()
			}
		}

		if !bypassRead {
			if data, ok := s.Get(fingerprint, stage); ok {
				s.mu.Unlock()
				return data, true, nil
			}
		}

		c := &call{done: make(chan struct{})}
		s.inflight[key] = c
		s.mu.Unlock()

		data, err := compute(ctx)
		if err == nil {
			if putErr := s.Put(fingerprint, stage, data); putErr != nil {
				telemetry.Warn("cache write failed", map[string]any{
					"fingerprint": fingerprint,
					"stage":       string(stage),
					"error":       putErr.Error(),
				})
			}
		}

		s.mu.Lock()
		c.data, c.err = data, err
		delete(s.inflight, key)
		s.mu.Unlock()
		close(c.done)

		return data, false, err
	}
}

func (s *Store) entryPath(fingerprint string, stage Stage) string {
	return filepath.Join(s.root, fingerprint, string(stage)+".json")
}
