package openai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"review-backend/internal/llm"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient(baseURL, "test-key", "test-model", 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestCompleteReturnsMessageContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "{\"findings\": []}"}}]}`))
	}))
	defer srv.Close()

	raw, err := newTestClient(t, srv.URL).Complete(context.Background(), llm.CompletionInput{System: "s", User: "u"})
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"findings": []}` {
		t.Fatalf("content = %s", raw)
	}
}

func TestCompleteRejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "bad key", "type": "invalid_api_key"}}`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Complete(context.Background(), llm.CompletionInput{User: "u"})
	if !errors.Is(err, llm.ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
}

func TestCompleteServerErrorIsNotRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).Complete(context.Background(), llm.CompletionInput{User: "u"})
	if err == nil || errors.Is(err, llm.ErrRejected) {
		t.Fatalf("err = %v, want transient error", err)
	}
	if !strings.Contains(err.Error(), "http status 502") {
		t.Fatalf("err = %v, want status in message", err)
	}
}

func TestTruncateKeepsRuneBoundaries(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"abcdef", 3, "abc..."},
		// Cutting inside the three-byte CJK rune must back up to its start.
		{"错误信息", 4, "错..."},
		{"错误信息", 6, "错误..."},
		{"é", 1, "..."},
	}
	for _, tc := range cases {
		got := truncate(tc.in, tc.n)
		if got != tc.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("truncate(%q, %d) produced invalid utf-8 %q", tc.in, tc.n, got)
		}
	}
}
