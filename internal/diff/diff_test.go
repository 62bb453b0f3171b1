package diff

import (
	"strings"
	"testing"
)

func reconstruct(segments []Segment, skip SegmentKind) string {
	var b strings.Builder
	for _, seg := range segments {
		if seg.Kind == skip {
			continue
		}
		b.WriteString(seg.Text)
	}
	return b.String()
}

func TestWordsRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		before string
		after  string
	}{
		{name: "single word swap", before: "A B C", after: "A X C"},
		{name: "appended tail", before: "Articulo 1. Vigente", after: "Articulo 1. Vigente y Articulo 2."},
		{name: "removed head", before: "Aviso: Regla A", after: "Regla A"},
		{name: "multiline", before: "linea uno\nlinea dos\n", after: "linea uno\nlinea tres\n"},
		{name: "whitespace runs", before: "a  b\tc", after: "a b c"},
		{name: "before empty", before: "", after: "texto nuevo"},
		{name: "after empty", before: "texto viejo", after: ""},
		{name: "unicode", before: "Artículo único", after: "Artículo único reformado"},
	}

	for _, tc := range cases {
		segments := Words(tc.before, tc.after)
		if got := reconstruct(segments, SegmentAdded); got != tc.before {
			t.Fatalf("%s: before reconstruction mismatch: got %q want %q", tc.name, got, tc.before)
		}
		if got := reconstruct(segments, SegmentRemoved); got != tc.after {
			t.Fatalf("%s: after reconstruction mismatch: got %q want %q", tc.name, got, tc.after)
		}
	}
}

func TestWordsMarksReplacedWord(t *testing.T) {
	t.Parallel()

	segments := Words("A B C", "A X C")

	var removed, added []string
	for _, seg := range segments {
		switch seg.Kind {
		case SegmentRemoved:
			removed = append(removed, strings.TrimSpace(seg.Text))
		case SegmentAdded:
			added = append(added, strings.TrimSpace(seg.Text))
		}
	}

	if len(removed) != 1 || removed[0] != "B" {
		t.Fatalf("unexpected removed segments: %#v", removed)
	}
	if len(added) != 1 || added[0] != "X" {
		t.Fatalf("unexpected added segments: %#v", added)
	}
}

func TestWordsDeterministic(t *testing.T) {
	t.Parallel()

	first := Words("uno dos tres", "uno tres cuatro")
	second := Words("uno dos tres", "uno tres cuatro")
	if len(first) != len(second) {
		t.Fatalf("segment counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("segment %d differs: %#v vs %#v", i, first[i], second[i])
		}
	}
}

func TestWordsBothEmpty(t *testing.T) {
	t.Parallel()

	if segments := Words("", ""); len(segments) != 0 {
		t.Fatalf("expected no segments for empty inputs, got %#v", segments)
	}
}

func TestUnifiedIdenticalAndEmptyInputs(t *testing.T) {
	t.Parallel()

	if got := Unified("", "", Options{}); got != "" {
		t.Fatalf("expected empty diff for empty inputs, got %q", got)
	}
	if got := Unified("same\n", "same\n", Options{}); got != "" {
		t.Fatalf("expected empty diff for identical inputs, got %q", got)
	}
}

func TestUnifiedFullAdditionAndRemoval(t *testing.T) {
	t.Parallel()

	added := Unified("", "Rule A\n", Options{})
	if !strings.Contains(added, "+++ current") {
		t.Fatalf("missing to-label header: %q", added)
	}
	if !strings.Contains(added, "+Rule A") {
		t.Fatalf("missing addition line: %q", added)
	}
	if strings.Contains(added, "\n-") {
		t.Fatalf("unexpected removal line in pure addition: %q", added)
	}

	removed := Unified("Rule A\n", "", Options{})
	if !strings.Contains(removed, "-Rule A") {
		t.Fatalf("missing removal line: %q", removed)
	}
}

func TestUnifiedHunkShowsChangedLine(t *testing.T) {
	t.Parallel()

	got := Unified("A B C", "A X C", Options{})
	if !strings.Contains(got, "--- previous") || !strings.Contains(got, "+++ current") {
		t.Fatalf("missing default labels: %q", got)
	}
	if !strings.Contains(got, "@@") {
		t.Fatalf("missing hunk header: %q", got)
	}
	if !strings.Contains(got, "-A B C") {
		t.Fatalf("missing removal of previous line: %q", got)
	}
	if !strings.Contains(got, "+A X C") {
		t.Fatalf("missing addition of current line: %q", got)
	}
}

func TestUnifiedCustomLabels(t *testing.T) {
	t.Parallel()

	got := Unified("a\n", "b\n", Options{FromLabel: "antes", ToLabel: "despues"})
	if !strings.Contains(got, "--- antes") || !strings.Contains(got, "+++ despues") {
		t.Fatalf("custom labels not applied: %q", got)
	}
}

func TestRatioBounds(t *testing.T) {
	t.Parallel()

	if got := Ratio("", ""); got != 1 {
		t.Fatalf("expected ratio 1 for empty inputs, got %v", got)
	}
	if got := Ratio("mismo texto", "mismo texto"); got != 1 {
		t.Fatalf("expected ratio 1 for identical inputs, got %v", got)
	}
	if got := Ratio("uno dos tres", "totalmente distinto aqui"); got > 0.5 {
		t.Fatalf("expected low ratio for disjoint texts, got %v", got)
	}

	partial := Ratio("A B C", "A X C")
	if partial <= 0.5 || partial >= 1 {
		t.Fatalf("expected partial similarity, got %v", partial)
	}
}

func TestAddedChars(t *testing.T) {
	t.Parallel()

	segments := Words("A B C", "A X C")
	if got := AddedChars(segments); got != 2 {
		t.Fatalf("unexpected added char count: %d", got)
	}
	if got := AddedChars(nil); got != 0 {
		t.Fatalf("expected zero for no segments, got %d", got)
	}
}
