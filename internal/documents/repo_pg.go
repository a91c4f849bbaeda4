package documents

import (
	"context"
	"database/sql"
	"errors"
)

// PGRepo implements DocumentsRepo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const docColumns = `id, fingerprint, file_name, mime_type, size_bytes, storage_key, created_at`

// Create inserts a new document. Fingerprint collisions hit the unique
// index; callers dedupe by fingerprint before inserting.
func (r *PGRepo) Create(ctx context.Context, doc Document) error {
	const query = `
INSERT INTO documents (id, fingerprint, file_name, mime_type, size_bytes, storage_key, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.DB.ExecContext(ctx, query,
		doc.ID,
		doc.Fingerprint,
		doc.FileName,
		doc.MimeType,
		doc.SizeBytes,
		doc.StorageKey,
		doc.CreatedAt,
	)
	return err
}

// GetByID returns a document by ID.
func (r *PGRepo) GetByID(ctx context.Context, documentID string) (Document, error) {
	query := `SELECT ` + docColumns + ` FROM documents WHERE id = $1 LIMIT 1`
	return r.scanOne(r.DB.QueryRowContext(ctx, query, documentID))
}

// GetByFingerprint returns the document sharing the given content hash.
func (r *PGRepo) GetByFingerprint(ctx context.Context, fingerprint string) (Document, error) {
	query := `SELECT ` + docColumns + ` FROM documents WHERE fingerprint = $1 LIMIT 1`
	return r.scanOne(r.DB.QueryRowContext(ctx, query, fingerprint))
}

// List returns documents newest first with limit/offset.
func (r *PGRepo) List(ctx context.Context, limit, offset int) ([]Document, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + docColumns + ` FROM documents ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Fingerprint, &doc.FileName, &doc.MimeType, &doc.SizeBytes, &doc.StorageKey, &doc.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (r *PGRepo) scanOne(row *sql.Row) (Document, error) {
	var doc Document
	err := row.Scan(&doc.ID, &doc.Fingerprint, &doc.FileName, &doc.MimeType, &doc.SizeBytes, &doc.StorageKey, &doc.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return doc, nil
}

var _ DocumentsRepo = (*PGRepo)(nil)
