package pipeline

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newTestRouter(env *testEnv) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(env.orch, env.docs, env.cache)
	h.RegisterRoutes(r.Group("/api/v1"))
	return r
}

func doRequest(t *testing.T, r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSubmitAndPollReview(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env)
	doc := env.upload(t, "handler flow agreement")

	w := doRequest(t, router, http.MethodPost, "/api/v1/documents/"+doc.ID+"/reviews")
	if w.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d: %s", w.Code, w.Body.String())
	}
	var view RunView
	if err := json.Unmarshal(w.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.ReviewID == "" || view.DocumentID != doc.ID {
		t.Fatalf("bad submit body: %+v", view)
	}
	if len(view.Stages) != 4 {
		t.Fatalf("stages = %d, want 4", len(view.Stages))
	}

	run, ok := env.orch.Get(view.ReviewID)
	if !ok {
		t.Fatal("submitted run not registered")
	}
	awaitRun(t, run)

	w = doRequest(t, router, http.MethodGet, "/api/v1/reviews/"+view.ReviewID)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var polled RunView
	if err := json.Unmarshal(w.Body.Bytes(), &polled); err != nil {
		t.Fatal(err)
	}
	if polled.State != RunCompleted {
		t.Fatalf("state = %s: %s", polled.State, polled.Error)
	}
}

func TestReportEndpoint(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env)
	doc := env.upload(t, "handler report agreement")

	run, err := env.orch.Submit(doc, SubmitOptions{})
	if err != nil {
		t.Fatal(err)
	}
	awaitRun(t, run)

	w := doRequest(t, router, http.MethodGet, "/api/v1/reviews/"+run.ID+"/report")
	if w.Code != http.StatusOK {
		t.Fatalf("report status = %d: %s", w.Code, w.Body.String())
	}
	var report Report
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatal(err)
	}
	if report.Fingerprint != doc.Fingerprint || len(report.Findings) == 0 {
		t.Fatalf("bad report: %+v", report)
	}

	w = doRequest(t, router, http.MethodGet, "/api/v1/reviews/"+run.ID+"/report?format=markdown")
	if w.Code != http.StatusOK {
		t.Fatalf("markdown status = %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/markdown") {
		t.Fatalf("content type = %s", ct)
	}
	if !strings.HasPrefix(w.Body.String(), "# Contract Review Report") {
		t.Fatalf("markdown body = %q", w.Body.String())
	}
}

func TestReportBeforeCompletionConflicts(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env)
	doc := env.upload(t, "handler pending agreement")

	blocking := &blockingLLM{started: make(chan struct{}), release: make(chan struct{})}
	env.orch.Engine.LLM = blocking
	defer close(blocking.release)

	run, err := env.orch.Submit(doc, SubmitOptions{})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-blocking.started:
	case <-time.After(5 * time.Second):
		t.Fatal("run never reached the model")
	}

	w := doRequest(t, router, http.MethodGet, "/api/v1/reviews/"+run.ID+"/report")
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 while running", w.Code)
	}
	run.Cancel()
	awaitRun(t, run)
}

func TestSubmitValidation(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env)
	doc := env.upload(t, "handler validation agreement")

	if w := doRequest(t, router, http.MethodPost, "/api/v1/documents/missing/reviews"); w.Code != http.StatusNotFound {
		t.Fatalf("unknown document status = %d", w.Code)
	}
	if w := doRequest(t, router, http.MethodPost, "/api/v1/documents/"+doc.ID+"/reviews?force_refresh=maybe"); w.Code != http.StatusBadRequest {
		t.Fatalf("bad force_refresh status = %d", w.Code)
	}
	if w := doRequest(t, router, http.MethodPost, "/api/v1/documents/"+doc.ID+"/reviews?mode=remote"); w.Code != http.StatusBadRequest {
		t.Fatalf("bad mode status = %d", w.Code)
	}
	if w := doRequest(t, router, http.MethodGet, "/api/v1/reviews/missing"); w.Code != http.StatusNotFound {
		t.Fatalf("unknown review status = %d", w.Code)
	}
}

func TestCacheInvalidateEndpoint(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env)
	doc := env.upload(t, "handler invalidate agreement")

	run, err := env.orch.Submit(doc, SubmitOptions{})
	if err != nil {
		t.Fatal(err)
	}
	awaitRun(t, run)

	w := doRequest(t, router, http.MethodDelete, "/api/v1/fingerprints/"+doc.Fingerprint+"/cache?stage=analyze")
	if w.Code != http.StatusNoContent {
		t.Fatalf("invalidate status = %d: %s", w.Code, w.Body.String())
	}

	// The analyze stage recomputes, and the versioned store still
	// short-circuits, so no extra model calls happen either way.
	before := env.parser.calls.Load()
	replay, err := env.orch.Submit(doc, SubmitOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if view := awaitRun(t, replay); view.State != RunCompleted {
		t.Fatalf("replay failed: %+v", view)
	}
	if env.parser.calls.Load() != before {
		t.Fatal("parse cache should have survived the analyze invalidation")
	}

	if w := doRequest(t, router, http.MethodDelete, "/api/v1/fingerprints/"+doc.Fingerprint+"/cache?stage=bogus"); w.Code != http.StatusBadRequest {
		t.Fatalf("bad stage status = %d", w.Code)
	}
	if w := doRequest(t, router, http.MethodDelete, "/api/v1/fingerprints/not-a-fingerprint/cache"); w.Code != http.StatusBadRequest {
		t.Fatalf("bad fingerprint status = %d", w.Code)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	env := newTestEnv(t)
	router := newTestRouter(env)
	doc := env.upload(t, "handler history agreement")

	// No analyses yet: an empty list, not null.
	w := doRequest(t, router, http.MethodGet, "/api/v1/fingerprints/"+doc.Fingerprint+"/analyses")
	if w.Code != http.StatusOK {
		t.Fatalf("history status = %d", w.Code)
	}
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Fatalf("empty history body = %s", body)
	}

	run, err := env.orch.Submit(doc, SubmitOptions{})
	if err != nil {
		t.Fatal(err)
	}
	awaitRun(t, run)

	w = doRequest(t, router, http.MethodGet, "/api/v1/fingerprints/"+doc.Fingerprint+"/analyses")
	var results []json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("history entries = %d, want 1", len(results))
	}
}
