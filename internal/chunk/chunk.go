// Package chunk decides how a unit of text is written to the store.
//
// Text that fits the direct limit goes through the conversational append path
// as a single message. Longer text is split into ordered segments bounded by
// the segment limit and sent through the fact-ingestion path. Lengths are
// counted in characters (runes), never bytes, so a segment never splits a
// multi-byte character.
package chunk

import (
	"fmt"
	"unicode/utf8"
)

// Kind is the routing decision for a unit of text.
type Kind int

const (
	// None means there is nothing to store.
	None Kind = iota
	// Direct means the text fits the conversational append path.
	Direct
	// Segmented means the text must be split and ingested as facts.
	Segmented
)

func (k Kind) String() string {
	switch k {
	case Direct:
		return "direct"
	case Segmented:
		return "segmented"
	default:
		return "none"
	}
}

// Plan is the result of routing one unit of text.
type Plan struct {
	Kind Kind
	// Text is set for Direct plans.
	Text string
	// Segments is set for Segmented plans, in emission order.
	Segments []string
}

// Policy holds the routing limits.
type Policy struct {
	DirectLimit  int
	SegmentLimit int
}

// NewPolicy validates and returns a Policy.
func NewPolicy(directLimit, segmentLimit int) (Policy, error) {
	if directLimit <= 0 {
		return Policy{}, fmt.Errorf("chunk: direct limit must be positive, got %d", directLimit)
	}
	if segmentLimit <= 0 {
		return Policy{}, fmt.Errorf("chunk: segment limit must be positive, got %d", segmentLimit)
	}
	return Policy{DirectLimit: directLimit, SegmentLimit: segmentLimit}, nil
}

// Route classifies text. Empty text yields a None plan.
func (p Policy) Route(text string) Plan {
	n := utf8.RuneCountInString(text)
	switch {
	case n == 0:
		return Plan{Kind: None}
	case n <= p.DirectLimit:
		return Plan{Kind: Direct, Text: text}
	default:
		return Plan{Kind: Segmented, Segments: Split(text, p.SegmentLimit)}
	}
}

// Split cuts text into consecutive, non-overlapping, non-empty segments of at
// most limit runes each. Concatenating the result yields text exactly.
func Split(text string, limit int) []string {
	if text == "" || limit <= 0 {
		return nil
	}
	segments := make([]string, 0, utf8.RuneCountInString(text)/limit+1)
	start, runes := 0, 0
	for i := range text {
		if runes == limit {
			segments = append(segments, text[start:i])
			start, runes = i, 0
		}
		runes++
	}
	return append(segments, text[start:])
}
