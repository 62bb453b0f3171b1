package normalize

import (
	"strings"
	"testing"
)

// sha256 of the empty string.
const emptyFingerprint = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

func TestNormalizeCollapsesWhitespaceVariants(t *testing.T) {
	t.Parallel()

	if got := Normalize("Hello  world\n"); got != "Hello world" {
		t.Fatalf("unexpected normalized text: %q", got)
	}
	if got := Normalize("Hello world"); got != "Hello world" {
		t.Fatalf("unexpected normalized text: %q", got)
	}
	if got := Normalize("  Hello\tworld  "); got != "Hello world" {
		t.Fatalf("unexpected normalized text: %q", got)
	}
	if got := Normalize("Hello\u00a0world"); got != "Hello world" {
		t.Fatalf("expected NBSP to collapse like a space, got %q", got)
	}
	if got := Normalize("Hello\u2009world"); got != "Hello world" {
		t.Fatalf("expected thin space to collapse like a space, got %q", got)
	}
}

func TestNormalizePreservesLineStructure(t *testing.T) {
	t.Parallel()

	got := Normalize("Article 1.  \r\n\r\n\r\nArticle 2.\n   \nArticle 3.")
	want := "Article 1.\nArticle 2.\nArticle 3."
	if got != want {
		t.Fatalf("unexpected normalized text: got %q want %q", got, want)
	}
}

func TestNormalizeDropsZeroWidthAndControlRunes(t *testing.T) {
	t.Parallel()

	if got := Normalize("Ru\u200ble \aA"); got != "Rule A" {
		t.Fatalf("unexpected normalized text: %q", got)
	}
	if got := Normalize("\ufeffRule B"); got != "Rule B" {
		t.Fatalf("expected BOM to be dropped, got %q", got)
	}
}

func TestNormalizeStripsMarkup(t *testing.T) {
	t.Parallel()

	raw := `<html><head><style>p {color:red}</style><script>alert(1)</script></head>` +
		`<body><h1>Reglamento</h1><p>Art&iacute;culo 1.</p><!-- nav --><div>Art 2.</div></body></html>`
	got := Normalize(raw)
	want := "Reglamento\nArtículo 1.\nArt 2."
	if got != want {
		t.Fatalf("unexpected normalized text: got %q want %q", got, want)
	}
	if strings.Contains(got, "alert") {
		t.Fatalf("script content leaked into normalized text: %q", got)
	}
}

func TestNormalizeLeavesPlainComparisonsAlone(t *testing.T) {
	t.Parallel()

	if got := Normalize("tasa < 5% y > 3%"); got != "tasa < 5% y > 3%" {
		t.Fatalf("plain text mangled by markup stripping: %q", got)
	}
}

func TestFingerprintDeterminism(t *testing.T) {
	t.Parallel()

	first := Fingerprint(Normalize("Hello  world\n"))
	second := Fingerprint(Normalize("Hello world"))
	if first != second {
		t.Fatalf("whitespace variants diverged: %q vs %q", first, second)
	}
	if len(first) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(first))
	}
	if again := Fingerprint(Normalize("Hello  world\n")); again != first {
		t.Fatalf("fingerprint unstable across calls: %q vs %q", again, first)
	}
}

func TestFingerprintEmptyInputIsWellDefined(t *testing.T) {
	t.Parallel()

	if got := Fingerprint(""); got != emptyFingerprint {
		t.Fatalf("unexpected empty fingerprint: %q", got)
	}
	if got := Fingerprint(Normalize("   \n  \t ")); got != emptyFingerprint {
		t.Fatalf("whitespace-only input should normalize to the empty fingerprint, got %q", got)
	}
}

func TestFingerprintDistinguishesContent(t *testing.T) {
	t.Parallel()

	if Fingerprint("Rule A") == Fingerprint("Rule B") {
		t.Fatalf("distinct content produced identical fingerprints")
	}
}
