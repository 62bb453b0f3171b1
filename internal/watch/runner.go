package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/javiportal/asertiva-monitoring/internal/diff"
	"github.com/javiportal/asertiva-monitoring/internal/globaltime"
	"github.com/javiportal/asertiva-monitoring/internal/ingest"
	"github.com/javiportal/asertiva-monitoring/internal/normalize"
)

// Meaningful-change gate: a sweep only submits when the page moved at
// least this much, filtering counter/timestamp churn.
const (
	minSimilarityForSkip = 0.99
	minAddedChars        = 20
)

// SiteResult summarizes one site inside a sweep.
type SiteResult struct {
	Name        string
	URL         string
	Fetched     bool
	HasPrevious bool
	Changed     bool
	Meaningful  bool
	Submitted   bool
	Duplicate   bool
	ChangeID    int64
	Err         error
}

// RunReport summarizes one full sweep.
type RunReport struct {
	RunID            int64
	SitesChecked     int
	ChangesSubmitted int
	Duplicates       int
	Errors           int
	Sites            []SiteResult
}

// Runner performs one monitoring sweep over the configured sites. The
// scheduling of sweeps belongs to the caller.
type Runner struct {
	cfg       *Config
	fetcher   *Fetcher
	store     *SnapshotStore
	submitter Submitter
	logger    zerolog.Logger
}

func NewRunner(cfg *Config, fetcher *Fetcher, store *SnapshotStore, submitter Submitter, logger zerolog.Logger) *Runner {
	return &Runner{
		cfg:       cfg,
		fetcher:   fetcher,
		store:     store,
		submitter: submitter,
		logger:    logger,
	}
}

func (r *Runner) RunOnce(ctx context.Context) (*RunReport, error) {
	if r == nil || r.cfg == nil || r.fetcher == nil || r.store == nil || r.submitter == nil {
		return nil, fmt.Errorf("runner is not initialized")
	}

	startedAt := globaltime.UTC()
	runID, err := r.store.StartRun(ctx, startedAt)
	if err != nil {
		return nil, fmt.Errorf("start watch run: %w", err)
	}

	report := &RunReport{RunID: runID}
	for _, site := range r.cfg.Sites {
		if ctx.Err() != nil {
			break
		}

		result := r.runSite(ctx, site)
		report.Sites = append(report.Sites, result)
		report.SitesChecked++
		if result.Err != nil {
			report.Errors++
		}
		if result.Submitted {
			report.ChangesSubmitted++
		}
		if result.Duplicate {
			report.Duplicates++
		}
	}

	if err := r.store.FinishRun(ctx, runID, report, globaltime.UTC()); err != nil {
		return report, fmt.Errorf("finish watch run: %w", err)
	}

	r.logger.Info().
		Int64("run_id", runID).
		Int("sites_checked", report.SitesChecked).
		Int("changes_submitted", report.ChangesSubmitted).
		Int("duplicates", report.Duplicates).
		Int("errors", report.Errors).
		Msg("watch sweep finished")

	return report, nil
}

func (r *Runner) runSite(ctx context.Context, site SiteConfig) SiteResult {
	result := SiteResult{Name: site.Name, URL: site.URL}
	log := r.logger.With().Str("site", site.Name).Str("url", site.URL).Logger()

	fetched, err := r.fetcher.Fetch(ctx, site)
	if err != nil {
		result.Err = fmt.Errorf("fetch: %w", err)
		log.Error().Err(err).Msg("fetch failed")
		return result
	}
	result.Fetched = true

	text, err := ExtractText(fetched, site)
	if err != nil {
		result.Err = fmt.Errorf("extract: %w", err)
		log.Error().Err(err).Msg("extraction failed")
		return result
	}

	if len(strings.TrimSpace(text)) < site.MinContentChars {
		result.Err = fmt.Errorf("extracted text too short (< %d chars)", site.MinContentChars)
		log.Warn().Int("chars", len(strings.TrimSpace(text))).Msg("extraction too short, skipping site")
		return result
	}

	title := PageTitle(fetched.Body)
	if title == "" {
		title = site.Name
	}

	normalized := normalize.Normalize(text)
	contentHash := normalize.Fingerprint(normalized)

	previous, err := r.store.Latest(ctx, site.URL)
	if err != nil {
		result.Err = fmt.Errorf("load snapshot: %w", err)
		log.Error().Err(err).Msg("snapshot lookup failed")
		return result
	}
	result.HasPrevious = previous != nil

	if previous != nil && previous.ContentHash == contentHash {
		log.Info().Msg("no change detected")
		return result
	}
	result.Changed = true

	snapshotID, err := r.store.Save(ctx, &Snapshot{
		URL:            site.URL,
		ContentHash:    contentHash,
		NormalizedText: normalized,
		Title:          title,
		FetchedAt:      fetched.FetchedAt,
	})
	if err != nil {
		result.Err = fmt.Errorf("save snapshot: %w", err)
		log.Error().Err(err).Msg("snapshot save failed")
		return result
	}
	if _, err := r.store.Prune(ctx, site.URL, r.cfg.Settings.KeepSnapshots); err != nil {
		log.Warn().Err(err).Msg("snapshot prune failed")
	}

	previousText := ""
	if previous != nil {
		previousText = previous.NormalizedText
	}

	if previous != nil && !meaningfulChange(previousText, normalized) {
		log.Info().Msg("change below meaningful thresholds, not submitting")
		return result
	}
	result.Meaningful = true

	rawPayload, _ := json.Marshal(map[string]any{
		"site":    site.Name,
		"country": site.SourceCountry,
	})

	fetchedAt := fetched.FetchedAt
	submission := ingest.Submission{
		Source:        ingest.SourceWatchguard,
		URL:           site.URL,
		Title:         title,
		PreviousText:  &previousText,
		CurrentText:   &normalized,
		ContentHash:   contentHash,
		FetchMode:     ingest.FetchModeHTTP,
		FetchedAt:     &fetchedAt,
		SnapshotRef:   fmt.Sprintf("snapshot-%d", snapshotID),
		RawPayload:    rawPayload,
		SourceName:    site.SourceName,
		SourceCountry: site.SourceCountry,
	}

	outcome, err := r.submitter.Submit(ctx, submission)
	if err != nil {
		result.Err = fmt.Errorf("submit: %w", err)
		log.Error().Err(err).Msg("submit failed")
		return result
	}

	result.ChangeID = outcome.ChangeID
	result.Duplicate = outcome.Duplicate
	result.Submitted = outcome.OK && !outcome.Duplicate
	if outcome.Duplicate {
		log.Info().Int64("change_id", outcome.ChangeID).Msg("change already ingested")
	} else {
		log.Info().Int64("change_id", outcome.ChangeID).Msg("change submitted")
	}

	return result
}

// meaningfulChange reports whether the move from previous to current is
// worth ingesting: similarity dropped below the skip threshold, or
// enough new characters arrived.
func meaningfulChange(previous, current string) bool {
	if diff.Ratio(previous, current) < minSimilarityForSkip {
		return true
	}
	return diff.AddedChars(diff.Words(previous, current)) >= minAddedChars
}
