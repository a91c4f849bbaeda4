package documents

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"review-backend/internal/shared/storage/object"
	"review-backend/internal/shared/util"
)

// Service contains business logic for documents.
type Service struct {
	Store object.ObjectStore
	Repo  DocumentsRepo
}

// Upload fingerprints the payload and records the document. Re-uploading
// identical bytes returns the existing record without writing anything.
func (s *Service) Upload(ctx context.Context, fileName string, r io.Reader) (Document, bool, error) {
	if fileName == "" {
		return Document{}, false, ErrInvalidInput
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return Document{}, false, err
	}
	if len(data) == 0 {
		return Document{}, false, ErrInvalidInput
	}
	fingerprint := util.Fingerprint(data)

	if existing, err := s.Repo.GetByFingerprint(ctx, fingerprint); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return Document{}, false, err
	}

	storageKey, size, mimeType, err := s.Store.Save(ctx, fingerprint, fileName, bytes.NewReader(data))
	if err != nil {
		return Document{}, false, err
	}

	doc := Document{
		ID:          uuid.NewString(),
		Fingerprint: fingerprint,
		FileName:    fileName,
		MimeType:    mimeType,
		SizeBytes:   size,
		StorageKey:  storageKey,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.Repo.Create(ctx, doc); err != nil {
		return Document{}, false, err
	}

	return doc, true, nil
}

// Get returns a document by ID.
func (s *Service) Get(ctx context.Context, documentID string) (Document, error) {
	if documentID == "" {
		return Document{}, ErrInvalidInput
	}
	return s.Repo.GetByID(ctx, documentID)
}

// List returns documents newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Document, error) {
	return s.Repo.List(ctx, limit, offset)
}

// Raw reopens the stored payload for a document.
func (s *Service) Raw(ctx context.Context, doc Document) ([]byte, error) {
	body, err := s.Store.Open(ctx, doc.StorageKey)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}
