package ingest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/javiportal/asertiva-monitoring/internal/db"
	"github.com/javiportal/asertiva-monitoring/internal/globaltime"
	"github.com/javiportal/asertiva-monitoring/internal/normalize"
)

// fakeStore mimics the monitor.changes table including its
// (url, content_hash, utc-day) uniqueness index.
type fakeStore struct {
	records    []*db.ChangeRecord
	nextID     int64
	lookupErr  error
	insertErr  error
	lookups    int
	inserts    int
	racingRows []*db.ChangeRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{nextID: 1}
}

func (s *fakeStore) FindDuplicateChange(_ context.Context, url, contentHash string, dayStart, dayEnd time.Time) (*db.ChangeRecord, error) {
	s.lookups++
	if s.lookupErr != nil {
		return nil, s.lookupErr
	}

	var latest *db.ChangeRecord
	for _, rec := range s.records {
		if rec.URL == nil || rec.ContentHash == nil {
			continue
		}
		if *rec.URL != url || *rec.ContentHash != contentHash {
			continue
		}
		if rec.CreatedAt.Before(dayStart) || !rec.CreatedAt.Before(dayEnd) {
			continue
		}
		if latest == nil || rec.CreatedAt.After(latest.CreatedAt) {
			latest = rec
		}
	}
	if latest == nil {
		return nil, db.ErrNoRows
	}
	copyRec := *latest
	return &copyRec, nil
}

func (s *fakeStore) InsertChange(_ context.Context, change *db.NewChange) (int64, bool, error) {
	s.inserts++
	if s.insertErr != nil {
		return 0, false, s.insertErr
	}

	// Simulate a racing writer that committed between the gate's check
	// and this insert.
	if len(s.racingRows) > 0 {
		s.records = append(s.records, s.racingRows...)
		s.racingRows = nil
	}

	if change.URL != nil && change.ContentHash != nil {
		day := change.CreatedAt.UTC().Format("2006-01-02")
		for _, rec := range s.records {
			if rec.URL == nil || rec.ContentHash == nil {
				continue
			}
			if *rec.URL == *change.URL && *rec.ContentHash == *change.ContentHash &&
				rec.CreatedAt.UTC().Format("2006-01-02") == day {
				return 0, false, nil
			}
		}
	}

	rec := &db.ChangeRecord{
		ChangeID:    s.nextID,
		ExternalID:  change.ExternalID,
		URL:         change.URL,
		Title:       change.Title,
		DiffText:    change.DiffText,
		ContentHash: change.ContentHash,
		Status:      db.StatusNew,
		Source:      change.Source,
		CreatedAt:   change.CreatedAt,
		UpdatedAt:   change.CreatedAt,
	}
	if change.PreviousText != nil {
		prev := *change.PreviousText
		rec.PreviousText = &prev
	}
	if change.CurrentText != nil {
		curr := *change.CurrentText
		rec.CurrentText = &curr
	}
	s.nextID++
	s.records = append(s.records, rec)
	return rec.ChangeID, true, nil
}

func newTestService(store Store) *Service {
	return NewService(store, zerolog.Nop(), 12)
}

func strPtr(s string) *string { return &s }

func TestIngestOneCreatesRecordWithDerivedHashAndExternalID(t *testing.T) {
	globaltime.SetMockTime(time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC))
	defer globaltime.ResetTime()

	store := newFakeStore()
	svc := newTestService(store)

	result, err := svc.IngestOne(context.Background(), Submission{
		Source:      "watchguard",
		URL:         "https://x.gob/a",
		CurrentText: strPtr("Rule A text"),
	})
	if err != nil {
		t.Fatalf("IngestOne failed: %v", err)
	}
	if !result.OK || result.Duplicate {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !strings.HasPrefix(result.ExternalID, "watchguard:") {
		t.Fatalf("external id %q does not start with watchguard:", result.ExternalID)
	}
	if len(store.records) != 1 {
		t.Fatalf("expected 1 stored record, got %d", len(store.records))
	}

	rec := store.records[0]
	if rec.Status != db.StatusNew {
		t.Fatalf("status = %q, want NEW", rec.Status)
	}
	wantHash := normalize.Fingerprint(normalize.Normalize("Rule A text"))
	if rec.ContentHash == nil || *rec.ContentHash != wantHash {
		t.Fatalf("content hash = %v, want %s", rec.ContentHash, wantHash)
	}
	wantExternal := fmt.Sprintf("watchguard:%s:%d", wantHash[:12], globaltime.UTC().Unix())
	if result.ExternalID != wantExternal {
		t.Fatalf("external id = %q, want %q", result.ExternalID, wantExternal)
	}
}

func TestIngestOneSameDayResubmitIsDuplicate(t *testing.T) {
	globaltime.SetMockTime(time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC))
	defer globaltime.ResetTime()

	store := newFakeStore()
	svc := newTestService(store)

	sub := Submission{
		Source:      "watchguard",
		URL:         "https://x.gob/a",
		CurrentText: strPtr("Rule A text"),
	}

	first, err := svc.IngestOne(context.Background(), sub)
	if err != nil {
		t.Fatalf("first IngestOne failed: %v", err)
	}

	globaltime.SetMockTime(time.Date(2026, 8, 25, 16, 30, 0, 0, time.UTC))

	second, err := svc.IngestOne(context.Background(), sub)
	if err != nil {
		t.Fatalf("second IngestOne failed: %v", err)
	}
	if !second.OK || !second.Duplicate {
		t.Fatalf("expected duplicate result, got %+v", second)
	}
	if second.ChangeID != first.ChangeID {
		t.Fatalf("duplicate id = %d, want first id %d", second.ChangeID, first.ChangeID)
	}
	if len(store.records) != 1 {
		t.Fatalf("expected 1 stored record, got %d", len(store.records))
	}
}

func TestIngestOneDifferentDaysProduceDistinctRecords(t *testing.T) {
	globaltime.SetMockTime(time.Date(2026, 8, 25, 23, 50, 0, 0, time.UTC))
	defer globaltime.ResetTime()

	store := newFakeStore()
	svc := newTestService(store)

	sub := Submission{
		Source:      "wachete",
		ExternalID:  "wachete-task-9",
		URL:         "https://x.gob/b",
		CurrentText: strPtr("Reverted text"),
	}

	first, err := svc.IngestOne(context.Background(), sub)
	if err != nil {
		t.Fatalf("first IngestOne failed: %v", err)
	}

	globaltime.SetMockTime(time.Date(2026, 8, 26, 0, 10, 0, 0, time.UTC))

	second, err := svc.IngestOne(context.Background(), sub)
	if err != nil {
		t.Fatalf("second IngestOne failed: %v", err)
	}
	if second.Duplicate {
		t.Fatalf("cross-day resubmission flagged duplicate: %+v", second)
	}
	if second.ChangeID == first.ChangeID {
		t.Fatalf("expected a new id across the day boundary, got %d twice", first.ChangeID)
	}
	if len(store.records) != 2 {
		t.Fatalf("expected 2 stored records, got %d", len(store.records))
	}
}

func TestIngestOneSkipsGateWithoutIdentitySignals(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	sub := Submission{Source: "manual", Title: "no url, no text"}

	for i := 0; i < 3; i++ {
		result, err := svc.IngestOne(context.Background(), sub)
		if err != nil {
			t.Fatalf("IngestOne %d failed: %v", i, err)
		}
		if result.Duplicate {
			t.Fatalf("submission %d without identity signals flagged duplicate", i)
		}
	}
	if store.lookups != 0 {
		t.Fatalf("gate queried the store %d times despite missing signals", store.lookups)
	}
	if len(store.records) != 3 {
		t.Fatalf("expected 3 stored records, got %d", len(store.records))
	}
}

func TestIngestOneComputesUnifiedDiff(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	_, err := svc.IngestOne(context.Background(), Submission{
		Source:       "manual",
		URL:          "https://x.gob/c",
		PreviousText: strPtr("A B C"),
		CurrentText:  strPtr("A X C"),
	})
	if err != nil {
		t.Fatalf("IngestOne failed: %v", err)
	}

	rec := store.records[0]
	if rec.DiffText == nil {
		t.Fatal("diff text was not computed")
	}
	diffText := *rec.DiffText
	if !strings.Contains(diffText, "@@") {
		t.Fatalf("diff text has no hunk header: %q", diffText)
	}
	if !strings.Contains(diffText, "-A B C") || !strings.Contains(diffText, "+A X C") {
		t.Fatalf("diff text does not show the B -> X change: %q", diffText)
	}
}

func TestIngestOneTrustsPrecomputedDiffAndHash(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	precomputed := "--- previous\n+++ current\n@@ -1 +1 @@\n-old\n+new\n"
	suppliedHash := strings.Repeat("ab", 32)

	_, err := svc.IngestOne(context.Background(), Submission{
		Source:          "wachete",
		ExternalID:      "wachete-task-1",
		URL:             "https://x.gob/d",
		CurrentText:     strPtr("new"),
		PrecomputedDiff: strPtr(precomputed),
		ContentHash:     suppliedHash,
	})
	if err != nil {
		t.Fatalf("IngestOne failed: %v", err)
	}

	rec := store.records[0]
	if rec.DiffText == nil || *rec.DiffText != precomputed {
		t.Fatalf("precomputed diff was not stored as-is: %v", rec.DiffText)
	}
	if rec.ContentHash == nil || *rec.ContentHash != suppliedHash {
		t.Fatalf("supplied hash was not trusted: %v", rec.ContentHash)
	}
}

func TestIngestOneRejectsUnknownSource(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	cases := []string{"", "rss", "WATCHDOG"}
	for _, source := range cases {
		result, err := svc.IngestOne(context.Background(), Submission{Source: source})
		if err == nil {
			t.Fatalf("source %q accepted", source)
		}
		if !IsValidationError(err) {
			t.Fatalf("source %q: expected validation error, got %v", source, err)
		}
		if result.OK {
			t.Fatalf("source %q: result reported ok", source)
		}
	}
	if store.inserts != 0 {
		t.Fatalf("invalid submissions reached the store %d times", store.inserts)
	}
}

func TestIngestOneFailsClosedWhenLookupFails(t *testing.T) {
	store := newFakeStore()
	store.lookupErr = fmt.Errorf("connection refused")
	svc := newTestService(store)

	_, err := svc.IngestOne(context.Background(), Submission{
		Source:      "watchguard",
		URL:         "https://x.gob/e",
		CurrentText: strPtr("text"),
	})
	if err == nil {
		t.Fatal("expected ingestion to fail when the dedup lookup fails")
	}
	if store.inserts != 0 {
		t.Fatalf("record was inserted despite a failed dedup lookup (%d inserts)", store.inserts)
	}
}

func TestIngestOneConvertsConstraintHitToDuplicate(t *testing.T) {
	globaltime.SetMockTime(time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC))
	defer globaltime.ResetTime()

	store := newFakeStore()
	svc := newTestService(store)

	url := "https://x.gob/f"
	hash := normalize.Fingerprint(normalize.Normalize("racy text"))
	store.racingRows = []*db.ChangeRecord{{
		ChangeID:    77,
		ExternalID:  "watchguard:racer:1",
		URL:         &url,
		ContentHash: &hash,
		Status:      db.StatusNew,
		Source:      "watchguard",
		CreatedAt:   globaltime.UTC(),
	}}

	result, err := svc.IngestOne(context.Background(), Submission{
		Source:      "watchguard",
		URL:         url,
		CurrentText: strPtr("racy text"),
	})
	if err != nil {
		t.Fatalf("IngestOne failed: %v", err)
	}
	if !result.OK || !result.Duplicate {
		t.Fatalf("constraint hit was not converted to a duplicate: %+v", result)
	}
	if result.ChangeID != 77 {
		t.Fatalf("duplicate id = %d, want the racing row 77", result.ChangeID)
	}
}

func TestIngestOneEmptyTextsHaveNoDiff(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store)

	_, err := svc.IngestOne(context.Background(), Submission{
		Source:       "manual",
		PreviousText: strPtr(""),
		CurrentText:  strPtr(""),
	})
	if err != nil {
		t.Fatalf("IngestOne failed: %v", err)
	}
	if store.records[0].DiffText != nil {
		t.Fatalf("both-empty texts produced a diff: %q", *store.records[0].DiffText)
	}
}
