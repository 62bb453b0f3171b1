package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/javiportal/asertiva-monitoring/internal/db"
	"github.com/javiportal/asertiva-monitoring/internal/diff"
	"github.com/javiportal/asertiva-monitoring/internal/globaltime"
	"github.com/javiportal/asertiva-monitoring/internal/langdetect"
	"github.com/javiportal/asertiva-monitoring/internal/normalize"
)

// Known submission sources.
const (
	SourceWachete    = "wachete"
	SourceWatchguard = "watchguard"
	SourceManual     = "manual"
)

// Known fetch modes. Only http is produced by the bundled watcher; the
// others arrive from external fetchers.
const (
	FetchModeHTTP    = "http"
	FetchModeBrowser = "browser"
	FetchModePDF     = "pdf"
)

const defaultHashPrefixLen = 12

// Store is the persistence surface the coordinator needs. *db.Pool
// implements it.
type Store interface {
	FindDuplicateChange(ctx context.Context, url, contentHash string, dayStart, dayEnd time.Time) (*db.ChangeRecord, error)
	InsertChange(ctx context.Context, change *db.NewChange) (int64, bool, error)
}

// Submission is one fetched snapshot offered for ingestion. Optional
// fields are pointers: absence and empty string mean different things
// for the text fields (a page that became empty still hashes).
type Submission struct {
	Source          string
	ExternalID      string
	URL             string
	Title           string
	PreviousText    *string
	CurrentText     *string
	PrecomputedDiff *string
	ContentHash     string
	FetchMode       string
	FetchedAt       *time.Time
	SnapshotRef     string
	RawPayload      json.RawMessage
	SourceName      string
	SourceCountry   string
}

// Result reports the ingestion outcome. Duplicate=true is a success:
// the change was already recorded today and no new row was written.
type Result struct {
	OK         bool   `json:"ok"`
	Duplicate  bool   `json:"duplicate"`
	ChangeID   int64  `json:"change_id"`
	ExternalID string `json:"external_id,omitempty"`
	Message    string `json:"message,omitempty"`
}

type Service struct {
	store         Store
	logger        zerolog.Logger
	hashPrefixLen int
}

func NewService(store Store, logger zerolog.Logger, hashPrefixLen int) *Service {
	if hashPrefixLen < 4 || hashPrefixLen > 64 {
		hashPrefixLen = defaultHashPrefixLen
	}
	return &Service{
		store:         store,
		logger:        logger,
		hashPrefixLen: hashPrefixLen,
	}
}

// IngestOne runs one submission through validation, the dedup gate and,
// when the change is new, a single insert in NEW status. Exactly one or
// zero rows are written per call.
func (s *Service) IngestOne(ctx context.Context, sub Submission) (Result, error) {
	if s == nil || s.store == nil {
		return Result{}, fmt.Errorf("ingest service is not initialized")
	}

	source := strings.TrimSpace(strings.ToLower(sub.Source))
	if err := validateSource(source); err != nil {
		return Result{Message: err.Error()}, err
	}
	fetchMode := strings.TrimSpace(strings.ToLower(sub.FetchMode))
	if err := validateFetchMode(fetchMode); err != nil {
		return Result{Message: err.Error()}, err
	}

	normalizedCurrent := ""
	if sub.CurrentText != nil {
		normalizedCurrent = normalize.Normalize(*sub.CurrentText)
	}

	// A caller-supplied hash is trusted; otherwise the fingerprint is
	// derived from the normalized current text, never from raw text.
	contentHash := strings.TrimSpace(strings.ToLower(sub.ContentHash))
	if contentHash == "" && sub.CurrentText != nil {
		contentHash = normalize.Fingerprint(normalizedCurrent)
	}

	url := strings.TrimSpace(sub.URL)
	now := globaltime.UTC()

	// Dedup gate. Skipped when either identity signal is missing; a
	// failed lookup fails the whole ingestion rather than risking a
	// duplicate flood downstream.
	if url != "" && contentHash != "" {
		dayStart, dayEnd := globaltime.DayBoundsUTC(now)
		existing, err := s.store.FindDuplicateChange(ctx, url, contentHash, dayStart, dayEnd)
		switch {
		case err == nil:
			s.logger.Info().
				Int64("change_id", existing.ChangeID).
				Str("url", url).
				Str("source", source).
				Msg("duplicate change detected")
			return Result{
				OK:         true,
				Duplicate:  true,
				ChangeID:   existing.ChangeID,
				ExternalID: existing.ExternalID,
				Message:    "change already recorded for this day",
			}, nil
		case db.IsNoRows(err):
			// Not a duplicate; carry on.
		default:
			return Result{}, fmt.Errorf("duplicate lookup: %w", err)
		}
	}

	externalID := strings.TrimSpace(sub.ExternalID)
	if externalID == "" {
		externalID = s.synthesizeExternalID(source, contentHash, sub.FetchedAt, now)
	}

	diffText := resolveDiffText(sub, normalizedCurrent)

	var language *string
	if code := langdetect.DetectISO6391(normalizedCurrent); code != "" {
		language = &code
	}

	change := &db.NewChange{
		ExternalID:    externalID,
		URL:           nullableString(url),
		Title:         nullableString(sub.Title),
		PreviousText:  sub.PreviousText,
		CurrentText:   sub.CurrentText,
		DiffText:      diffText,
		ContentHash:   nullableString(contentHash),
		RawPayload:    nullableJSON(sub.RawPayload),
		Language:      language,
		SourceName:    nullableString(sub.SourceName),
		SourceCountry: nullableString(sub.SourceCountry),
		Source:        source,
		FetchMode:     nullableString(fetchMode),
		FetchedAt:     nullableTime(sub.FetchedAt),
		SnapshotRef:   nullableString(sub.SnapshotRef),
		CreatedAt:     now,
	}

	id, inserted, err := s.store.InsertChange(ctx, change)
	if err != nil {
		return Result{}, fmt.Errorf("insert change: %w", err)
	}

	if !inserted {
		// The uniqueness index caught a race the gate missed; the
		// surviving row wins and the caller sees an ordinary duplicate.
		return s.resolveConstraintWinner(ctx, url, contentHash, now, source)
	}

	s.logger.Info().
		Int64("change_id", id).
		Str("external_id", externalID).
		Str("source", source).
		Str("url", url).
		Msg("change ingested")

	return Result{
		OK:         true,
		ChangeID:   id,
		ExternalID: externalID,
	}, nil
}

func (s *Service) resolveConstraintWinner(ctx context.Context, url, contentHash string, now time.Time, source string) (Result, error) {
	dayStart, dayEnd := globaltime.DayBoundsUTC(now)
	existing, err := s.store.FindDuplicateChange(ctx, url, contentHash, dayStart, dayEnd)
	if err != nil {
		return Result{}, fmt.Errorf("resolve duplicate after constraint hit: %w", err)
	}

	s.logger.Info().
		Int64("change_id", existing.ChangeID).
		Str("url", url).
		Str("source", source).
		Msg("insert raced a concurrent duplicate")

	return Result{
		OK:         true,
		Duplicate:  true,
		ChangeID:   existing.ChangeID,
		ExternalID: existing.ExternalID,
		Message:    "change already recorded for this day",
	}, nil
}

// synthesizeExternalID builds source:hashPrefix:epochSeconds for sources
// that never supply their own ids. The timestamp comes from the
// submission when present, else from the injected clock.
func (s *Service) synthesizeExternalID(source, contentHash string, fetchedAt *time.Time, now time.Time) string {
	hash := contentHash
	if hash == "" {
		hash = normalize.Fingerprint("")
	}
	prefix := hash
	if len(prefix) > s.hashPrefixLen {
		prefix = prefix[:s.hashPrefixLen]
	}

	ts := now
	if fetchedAt != nil {
		ts = fetchedAt.UTC()
	}

	return fmt.Sprintf("%s:%s:%d", source, prefix, ts.Unix())
}

// resolveDiffText prefers a caller-supplied diff; otherwise it diffs the
// normalized texts so incidental formatting never shows up in the audit
// trail. Both texts empty means no diff at all.
func resolveDiffText(sub Submission, normalizedCurrent string) *string {
	if sub.PrecomputedDiff != nil && strings.TrimSpace(*sub.PrecomputedDiff) != "" {
		return sub.PrecomputedDiff
	}

	if sub.PreviousText == nil && sub.CurrentText == nil {
		return nil
	}

	normalizedPrevious := ""
	if sub.PreviousText != nil {
		normalizedPrevious = normalize.Normalize(*sub.PreviousText)
	}

	text := diff.Unified(normalizedPrevious, normalizedCurrent, diff.Options{})
	return nullableString(text)
}

func nullableString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func nullableTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	normalized := t.UTC()
	return &normalized
}

func nullableJSON(value json.RawMessage) *string {
	if len(bytes.TrimSpace(value)) == 0 {
		return nil
	}
	normalized := string(value)
	return &normalized
}
