package layout

import "context"

// Mode selects how a document is turned into a block layout.
type Mode string

const (
	// ModeService calls the visual layout-parsing backend.
	ModeService Mode = "service"
	// ModeLocal extracts text in-process and yields non-visual blocks.
	ModeLocal Mode = "local"
)

// Parser recovers the block layout of a raw document.
type Parser interface {
	Parse(ctx context.Context, data []byte, fileName string, mimeType string) (ParsedLayout, error)
	Health(ctx context.Context) error
}
