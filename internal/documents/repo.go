package documents

import "context"

// DocumentsRepo defines persistence operations for documents.
type DocumentsRepo interface {
	Create(ctx context.Context, doc Document) error
	GetByID(ctx context.Context, documentID string) (Document, error)
	GetByFingerprint(ctx context.Context, fingerprint string) (Document, error)
	List(ctx context.Context, limit, offset int) ([]Document, error)
}
