package diff

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

type SegmentKind string

const (
	SegmentUnchanged SegmentKind = "unchanged"
	SegmentAdded     SegmentKind = "added"
	SegmentRemoved   SegmentKind = "removed"
)

// Segment is one run of a word-level diff. Texts carry their original
// whitespace, so concatenating the unchanged+removed segments rebuilds
// the before text and unchanged+added rebuilds the after text exactly.
type Segment struct {
	Text string      `json:"text"`
	Kind SegmentKind `json:"kind"`
}

// Options controls unified diff output.
type Options struct {
	FromLabel string
	ToLabel   string
	Context   int
}

const (
	defaultFromLabel = "previous"
	defaultToLabel   = "current"
	defaultContext   = 3
)

// Words computes a deterministic word-level diff between two texts.
func Words(before, after string) []Segment {
	if before == "" && after == "" {
		return nil
	}

	beforeTokens := tokenize(before)
	afterTokens := tokenize(after)

	matcher := difflib.NewMatcherWithJunk(beforeTokens, afterTokens, false, nil)
	opcodes := matcher.GetOpCodes()

	segments := make([]Segment, 0, len(opcodes)+1)
	for _, op := range opcodes {
		switch op.Tag {
		case 'e':
			segments = appendSegment(segments, joinTokens(beforeTokens, op.I1, op.I2), SegmentUnchanged)
		case 'd':
			segments = appendSegment(segments, joinTokens(beforeTokens, op.I1, op.I2), SegmentRemoved)
		case 'i':
			segments = appendSegment(segments, joinTokens(afterTokens, op.J1, op.J2), SegmentAdded)
		case 'r':
			segments = appendSegment(segments, joinTokens(beforeTokens, op.I1, op.I2), SegmentRemoved)
			segments = appendSegment(segments, joinTokens(afterTokens, op.J1, op.J2), SegmentAdded)
		}
	}

	return segments
}

// Unified renders a line-based unified diff (---/+++/@@ hunks). Identical
// inputs and the both-empty case produce an empty string. A diff that
// cannot be rendered also returns empty: diffing never blocks ingestion.
func Unified(before, after string, opts Options) string {
	if before == after {
		return ""
	}

	fromLabel := strings.TrimSpace(opts.FromLabel)
	if fromLabel == "" {
		fromLabel = defaultFromLabel
	}
	toLabel := strings.TrimSpace(opts.ToLabel)
	if toLabel == "" {
		toLabel = defaultToLabel
	}
	contextLines := opts.Context
	if contextLines <= 0 {
		contextLines = defaultContext
	}

	unified := difflib.UnifiedDiff{
		A:        splitLines(before),
		B:        splitLines(after),
		FromFile: fromLabel,
		ToFile:   toLabel,
		Context:  contextLines,
	}

	text, err := difflib.GetUnifiedDiffString(unified)
	if err != nil {
		return ""
	}
	return text
}

// Ratio reports word-token similarity in [0, 1]; identical inputs score 1.
func Ratio(before, after string) float64 {
	if before == after {
		return 1
	}
	matcher := difflib.NewMatcherWithJunk(tokenize(before), tokenize(after), false, nil)
	return matcher.Ratio()
}

// AddedChars sums the size of added segments, a cheap magnitude signal
// for change policies.
func AddedChars(segments []Segment) int {
	total := 0
	for _, seg := range segments {
		if seg.Kind == SegmentAdded {
			total += len(seg.Text)
		}
	}
	return total
}

// tokenize splits text into word tokens that keep their trailing
// whitespace, so token concatenation is lossless.
func tokenize(text string) []string {
	if text == "" {
		return nil
	}

	tokens := make([]string, 0, len(text)/5+1)
	var current strings.Builder
	inSpace := false

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, r := range text {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if inSpace && !isSpace {
			flush()
		}
		current.WriteRune(r)
		inSpace = isSpace
	}
	flush()

	return tokens
}

func joinTokens(tokens []string, from, to int) string {
	return strings.Join(tokens[from:to], "")
}

func appendSegment(segments []Segment, text string, kind SegmentKind) []Segment {
	if text == "" {
		return segments
	}
	return append(segments, Segment{Text: text, Kind: kind})
}

func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return difflib.SplitLines(text)
}
