package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// Client abstracts chat-completion providers for contract review.
type Client interface {
	Complete(ctx context.Context, input CompletionInput) (json.RawMessage, error)
}

// CompletionInput carries one chat request. The provider is expected to
// answer with a JSON document.
type CompletionInput struct {
	System string
	User   string
}

// ErrRejected means the provider refused the request for a non-transient
// reason (bad credentials, exhausted quota, content policy). Retrying the
// same request will fail again.
var ErrRejected = errors.New("llm request rejected")

// ErrNotImplemented is returned by the placeholder client.
var ErrNotImplemented = errors.New("LLM not implemented")

// PlaceholderClient is a stub implementation until provider wiring is added.
type PlaceholderClient struct{}

// Complete returns ErrNotImplemented.
func (PlaceholderClient) Complete(ctx context.Context, input CompletionInput) (json.RawMessage, error) {
	_ = ctx
	_ = input
	return nil, ErrNotImplemented
}
