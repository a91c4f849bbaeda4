package layout

import "strings"

// BlockType classifies a parsed text unit.
type BlockType string

const (
	BlockParagraph BlockType = "paragraph"
	BlockHeading   BlockType = "heading"
	BlockTableCell BlockType = "table_cell"
)

// BoundingBox locates a block on a page. Coordinates are in the parser's
// pixel space with the origin at the top-left of the page.
type BoundingBox struct {
	Page   int     `json:"page"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Block is one parsed text unit in reading order.
type Block struct {
	Text       string      `json:"text"`
	Box        BoundingBox `json:"boundingBox"`
	Type       BlockType   `json:"blockType"`
	OrderIndex int         `json:"orderIndex"`
	// NonVisual marks blocks without real page coordinates, such as
	// inferred table cells or blocks produced by local text extraction.
	NonVisual bool `json:"nonVisual,omitempty"`
}

// ParsedLayout is the ordered block sequence recovered for one document.
// Once stored for a fingerprint it is treated as immutable.
type ParsedLayout struct {
	Fingerprint string  `json:"fingerprint"`
	Blocks      []Block `json:"blocks"`
}

// Span is a contiguous run of blocks, inclusive on both ends.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Text joins all block text in reading order.
func (p ParsedLayout) Text() string {
	var b strings.Builder
	for i, blk := range p.Blocks {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(blk.Text)
	}
	return b.String()
}

// Valid reports whether the span addresses existing blocks of the layout.
func (s Span) Valid(p ParsedLayout) bool {
	return s.Start >= 0 && s.End >= s.Start && s.End < len(p.Blocks)
}
