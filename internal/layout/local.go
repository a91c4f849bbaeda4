package layout

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"review-backend/internal/extract"
	"review-backend/internal/shared/util"
)

// LocalParser builds a non-visual layout by extracting text in-process.
// It exists so reviews still run when the visual backend is down or
// when a deployment has no backend at all.
type LocalParser struct{}

// Parse splits extracted text into paragraph blocks. All blocks are
// marked non-visual since no page geometry is available.
func (LocalParser) Parse(ctx context.Context, data []byte, fileName string, mimeType string) (ParsedLayout, error) {
	text, err := extract.TextFromBytes(ctx, data, mimeType, fileName)
	if err != nil {
		return ParsedLayout{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	layout := ParsedLayout{Fingerprint: util.Fingerprint(data)}
	order := 0
	for _, para := range splitParagraphs(text) {
		layout.Blocks = append(layout.Blocks, Block{
			Text:       para,
			Type:       classifyParagraph(para),
			OrderIndex: order,
			NonVisual:  true,
		})
		order++
	}
	if len(layout.Blocks) == 0 {
		return ParsedLayout{}, fmt.Errorf("%w: document contains no text", ErrMalformed)
	}
	return layout, nil
}

// Health always succeeds; there is no remote dependency.
func (LocalParser) Health(ctx context.Context) error {
	return ctx.Err()
}

func splitParagraphs(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

func classifyParagraph(para string) BlockType {
	if len([]rune(para)) > 60 {
		return BlockParagraph
	}
	if r := lastRune(para); r != 0 && (unicode.IsPunct(r) && r != ')' && r != '"') {
		return BlockParagraph
	}
	return BlockHeading
}

func lastRune(s string) rune {
	var last rune
	for _, r := range s {
		last = r
	}
	return last
}

var _ Parser = LocalParser{}
