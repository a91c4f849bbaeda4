package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

const testFingerprint = "a3f2b8c1d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0c1d2e3f4a5b6c7d8e9f0a1"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestPutGetRoundTrip(t *testing.T) {
	store := newTestStore(t)

	if _, ok := store.Get(testFingerprint, StageParse); ok {
		t.Fatal("expected miss on empty store")
	}

	payload := []byte(`{"blocks":[]}`)
	if err := store.Put(testFingerprint, StageParse, payload); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := store.Get(testFingerprint, StageParse)
	if !ok {
		t.Fatal("expected hit after Put")
	}
	if string(got) != string(payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestGetRejectsInvalidFingerprint(t *testing.T) {
	store := newTestStore(t)
	if _, ok := store.Get("../escape", StageParse); ok {
		t.Fatal("path-like fingerprint must miss")
	}
	if err := store.Put("not-hex", StageParse, []byte("{}")); !errors.Is(err, ErrInvalidFingerprint) {
		t.Fatalf("Put err = %v, want ErrInvalidFingerprint", err)
	}
}

func TestCorruptEntryIsMiss(t *testing.T) {
	store := newTestStore(t)
	dir := filepath.Join(store.root, testFingerprint)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "analyze.json"), []byte("{truncated"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, ok := store.Get(testFingerprint, StageAnalyze); ok {
		t.Fatal("corrupt entry must be a miss")
	}

	// Do must recompute over the corrupt entry.
	calls := 0
	got, fromCache, err := store.Do(context.Background(), testFingerprint, StageAnalyze, false, func(context.Context) ([]byte, error) {
		calls++
		return []byte(`{"ok":true}`), nil
	})
	if err != nil || fromCache || calls != 1 {
		t.Fatalf("Do = (%q, %v, %v), calls=%d", got, fromCache, err, calls)
	}
}

func TestInvalidate(t *testing.T) {
	store := newTestStore(t)
	for _, stage := range []Stage{StageParse, StageAnalyze} {
		if err := store.Put(testFingerprint, stage, []byte("{}")); err != nil {
			t.Fatal(err)
		}
	}

	if err := store.Invalidate(testFingerprint, StageParse); err != nil {
		t.Fatalf("Invalidate stage: %v", err)
	}
	if _, ok := store.Get(testFingerprint, StageParse); ok {
		t.Fatal("parse entry should be gone")
	}
	if _, ok := store.Get(testFingerprint, StageAnalyze); !ok {
		t.Fatal("analyze entry should survive")
	}

	if err := store.Invalidate(testFingerprint, ""); err != nil {
		t.Fatalf("Invalidate all: %v", err)
	}
	if _, ok := store.Get(testFingerprint, StageAnalyze); ok {
		t.Fatal("all entries should be gone")
	}

	// Invalidating a missing fingerprint is fine.
	if err := store.Invalidate(testFingerprint, StageRender); err != nil {
		t.Fatalf("Invalidate missing: %v", err)
	}
}

func TestDoComputesAtMostOnce(t *testing.T) {
	store := newTestStore(t)

	var calls atomic.Int32
	release := make(chan struct{})
	compute := func(context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte(`{"v":1}`), nil
	}

	const workers = 8
	var wg sync.WaitGroup
	results := make([]string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, _, err := store.Do(context.Background(), testFingerprint, StageAnalyze, false, compute)
			if err != nil {
				t.Errorf("worker %d: %v", i, err)
				return
			}
			results[i] = string(data)
		}(i)
	}

	// Give every worker a chance to join the in-flight call.
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("compute ran %d times, want 1", got)
	}
	for i, res := range results {
		if res != `{"v":1}` {
			t.Fatalf("worker %d got %q", i, res)
		}
	}
}

func TestDoFailureCachesNothing(t *testing.T) {
	store := newTestStore(t)

	boom := errors.New("backend down")
	_, _, err := store.Do(context.Background(), testFingerprint, StageParse, false, func(context.Context) ([]byte, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want backend down", err)
	}
	if _, ok := store.Get(testFingerprint, StageParse); ok {
		t.Fatal("failed computation must not be cached")
	}

	// The in-flight marker must be released so the next caller retries.
	data, _, err := store.Do(context.Background(), testFingerprint, StageParse, false, func(context.Context) ([]byte, error) {
		return []byte(`{"retry":true}`), nil
	})
	if err != nil || !strings.Contains(string(data), "retry") {
		t.Fatalf("retry Do = (%q, %v)", data, err)
	}
}

func TestDoBypassReadRecomputesAndReplaces(t *testing.T) {
	store := newTestStore(t)
	if err := store.Put(testFingerprint, StageAnalyze, []byte(`{"v":1}`)); err != nil {
		t.Fatal(err)
	}

	calls := 0
	data, fromCache, err := store.Do(context.Background(), testFingerprint, StageAnalyze, true, func(context.Context) ([]byte, error) {
		calls++
		return []byte(`{"v":2}`), nil
	})
	if err != nil || fromCache || calls != 1 {
		t.Fatalf("Do = (%q, %v, %v), calls=%d", data, fromCache, err, calls)
	}

	stored, ok := store.Get(testFingerprint, StageAnalyze)
	if !ok || string(stored) != `{"v":2}` {
		t.Fatalf("stored = (%q, %v), want replaced entry", stored, ok)
	}
}

func TestDoHonorsContextWhileWaiting(t *testing.T) {
	store := newTestStore(t)

	started := make(chan struct{})
	release := make(chan struct{})
	go func() {
		store.Do(context.Background(), testFingerprint, StageParse, false, func(context.Context) ([]byte, error) {
			close(started)
			<-release
			return []byte("{}"), nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := store.Do(ctx, testFingerprint, StageParse, false, func(context.Context) ([]byte, error) {
		return []byte("{}"), nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	close(release)
}
