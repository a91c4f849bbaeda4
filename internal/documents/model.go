package documents

import "time"

// Document represents an uploaded contract. Fingerprint is the sha256 of
// the raw bytes; two uploads with identical bytes share one record.
type Document struct {
	ID          string
	Fingerprint string
	FileName    string
	MimeType    string
	SizeBytes   int64
	StorageKey  string
	CreatedAt   time.Time
}
