package analyses

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"strings"
	"time"

	"review-backend/internal/llm"
	"review-backend/internal/shared/telemetry"
)

const llmRetryBaseDelay = 300 * time.Millisecond

// retryingLLM retries transient provider failures with exponential
// backoff. Rejections are never retried.
type retryingLLM struct {
	base        llm.Client
	attempts    int
	baseDelay   time.Duration
	fingerprint string
}

func newRetryingLLM(base llm.Client, attempts int, baseDelay time.Duration, fingerprint string) llm.Client {
	if base == nil {
		return nil
	}
	if attempts < 1 {
		attempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = llmRetryBaseDelay
	}
	return retryingLLM{
		base:        base,
		attempts:    attempts,
		baseDelay:   baseDelay,
		fingerprint: fingerprint,
	}
}

func (r retryingLLM) Complete(ctx context.Context, input llm.CompletionInput) (json.RawMessage, error) {
	delay := r.baseDelay
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		resp, err := r.base.Complete(ctx, input)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !shouldRetryLLM(err) || attempt == r.attempts {
			return nil, err
		}

		telemetry.Warn("llm retry", map[string]any{
			"attempt":     attempt,
			"fingerprint": r.fingerprint,
			"error":       err.Error(),
		})
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
	}
	return nil, lastErr
}

func shouldRetryLLM(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, llm.ErrRejected) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "http status 5") || strings.Contains(msg, "server_error") {
		return true
	}
	if strings.Contains(msg, "http status 429") || strings.Contains(msg, "rate limit") {
		return true
	}
	if strings.Contains(msg, "timeout") && (strings.Contains(msg, "llm") || strings.Contains(msg, "client.timeout")) {
		return true
	}
	if strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection closed") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "tls handshake timeout") ||
		strings.Contains(msg, "eof") {
		return true
	}

	return false
}
