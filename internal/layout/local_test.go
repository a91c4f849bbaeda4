package layout

import (
	"context"
	"errors"
	"testing"
)

func TestLocalParserSplitsParagraphs(t *testing.T) {
	text := "SERVICES AGREEMENT\n\n1. Scope\nThe supplier provides maintenance services for the customer's platform.\n\nPayment is due within thirty days of invoice receipt."
	pl, err := LocalParser{}.Parse(context.Background(), []byte(text), "contract.txt", "text/plain")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(pl.Blocks) != 4 {
		t.Fatalf("got %d blocks, want 4", len(pl.Blocks))
	}
	for i, blk := range pl.Blocks {
		if !blk.NonVisual {
			t.Fatalf("block %d must be non-visual", i)
		}
		if blk.OrderIndex != i {
			t.Fatalf("block %d has order index %d", i, blk.OrderIndex)
		}
	}
	if pl.Blocks[0].Type != BlockHeading {
		t.Fatalf("title type = %s, want heading", pl.Blocks[0].Type)
	}
	if pl.Blocks[2].Type != BlockParagraph {
		t.Fatalf("body type = %s, want paragraph", pl.Blocks[2].Type)
	}
	if pl.Fingerprint == "" {
		t.Fatal("fingerprint must be set")
	}
}

func TestLocalParserEmptyDocument(t *testing.T) {
	_, err := LocalParser{}.Parse(context.Background(), []byte("   \n \n"), "empty.txt", "text/plain")
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestSpanValid(t *testing.T) {
	pl := ParsedLayout{Blocks: make([]Block, 3)}
	cases := []struct {
		span Span
		want bool
	}{
		{Span{0, 0}, true},
		{Span{0, 2}, true},
		{Span{2, 2}, true},
		{Span{-1, 0}, false},
		{Span{1, 0}, false},
		{Span{0, 3}, false},
	}
	for _, tc := range cases {
		if got := tc.span.Valid(pl); got != tc.want {
			t.Fatalf("Valid(%+v) = %v, want %v", tc.span, got, tc.want)
		}
	}
}
