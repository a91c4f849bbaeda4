package reconcile

import (
	"strings"

	"review-backend/internal/layout"
)

const (
	// DefaultThreshold is the minimum similarity an anchor window must
	// reach before a quoted clause is considered located.
	DefaultThreshold = 0.72
	// DefaultMaxWindow caps how many consecutive blocks one clause may
	// span.
	DefaultMaxWindow = 8
)

// Match is a located clause: the block span it occupies and how closely
// the span's text resembles the quoted clause.
type Match struct {
	Span       layout.Span
	Confidence float64
}

// Resolver maps model-quoted clause text back onto layout blocks.
// Resolution is deterministic: equal inputs always yield equal output,
// and among equally similar candidates the earliest span wins.
type Resolver struct {
	Threshold float64
	MaxWindow int
}

// NewResolver returns a Resolver with the given threshold, falling back
// to the defaults for out-of-range values.
func NewResolver(threshold float64) Resolver {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return Resolver{Threshold: threshold, MaxWindow: DefaultMaxWindow}
}

// Resolve scans every window of 1..MaxWindow consecutive blocks and
// returns the most similar one, provided it clears the threshold. The
// second return value reports whether a span was found.
func (r Resolver) Resolve(pl layout.ParsedLayout, clauseText string) (Match, bool) {
	clause := normalize(clauseText)
	if clause == "" || len(pl.Blocks) == 0 {
		return Match{}, false
	}

	threshold := r.Threshold
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	maxWindow := r.MaxWindow
	if maxWindow <= 0 {
		maxWindow = DefaultMaxWindow
	}

	clauseGrams := bigrams(clause)
	normBlocks := make([]string, len(pl.Blocks))
	for i, blk := range pl.Blocks {
		normBlocks[i] = normalize(blk.Text)
	}

	best := Match{Confidence: -1}
	found := false
	for start := 0; start < len(normBlocks); start++ {
		var window strings.Builder
		for width := 1; width <= maxWindow && start+width <= len(normBlocks); width++ {
			segment := normBlocks[start+width-1]
			if segment != "" {
				if window.Len() > 0 {
					window.WriteString(" ")
				}
				window.WriteString(segment)
			}
			text := window.String()
			if text == "" {
				continue
			}
			// Growing the window past twice the clause length only
			// dilutes the overlap.
			if width > 1 && len(text) > 2*len(clause) {
				break
			}
			sim := diceSimilarity(clauseGrams, bigrams(text))
			if sim > best.Confidence {
				best = Match{
					Span:       layout.Span{Start: start, End: start + width - 1},
					Confidence: sim,
				}
				found = true
			}
		}
	}

	if !found || best.Confidence < threshold {
		return Match{}, false
	}
	return best, true
}

// normalize lowercases and collapses all whitespace runs to single spaces.
func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// bigrams returns the multiset of rune bigrams as counts.
func bigrams(s string) map[string]int {
	runes := []rune(s)
	if len(runes) < 2 {
		if len(runes) == 1 {
			return map[string]int{string(runes): 1}
		}
		return nil
	}
	grams := make(map[string]int, len(runes)-1)
	for i := 0; i+1 < len(runes); i++ {
		grams[string(runes[i:i+2])]++
	}
	return grams
}

// diceSimilarity is the Sørensen–Dice coefficient over bigram multisets.
func diceSimilarity(a, b map[string]int) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	total := 0
	overlap := 0
	for gram, count := range a {
		total += count
		if other, ok := b[gram]; ok {
			if other < count {
				overlap += other
			} else {
				overlap += count
			}
		}
	}
	for _, count := range b {
		total += count
	}
	if total == 0 {
		return 0
	}
	return 2 * float64(overlap) / float64(total)
}
