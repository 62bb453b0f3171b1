package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// NewChange carries the column values for a monitor.changes insert.
// Status is not included: the ingestion path always writes NEW.
type NewChange struct {
	ExternalID    string
	URL           *string
	Title         *string
	PreviousText  *string
	CurrentText   *string
	DiffText      *string
	ContentHash   *string
	RawPayload    *string
	Language      *string
	SourceName    *string
	SourceCountry *string
	Source        string
	FetchMode     *string
	FetchedAt     *time.Time
	SnapshotRef   *string
	CreatedAt     time.Time
}

// ChangeListOptions controls change listing queries.
type ChangeListOptions struct {
	Status string
	Source string
	From   *time.Time
	To     *time.Time
	Limit  int
}

// ChangeListItem is used by the changes CLI command and the list endpoint.
type ChangeListItem struct {
	ChangeID    int64      `json:"change_id"`
	ExternalID  string     `json:"external_id"`
	URL         *string    `json:"url,omitempty"`
	Title       *string    `json:"title,omitempty"`
	ContentHash *string    `json:"content_hash,omitempty"`
	Status      string     `json:"status"`
	Source      string     `json:"source"`
	Importance  *string    `json:"importance,omitempty"`
	Language    *string    `json:"language,omitempty"`
	FetchedAt   *time.Time `json:"fetched_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ChangeDetail is the json-facing shape of one full change record, used
// by the detail endpoint.
type ChangeDetail struct {
	ChangeID      int64           `json:"change_id"`
	ExternalID    string          `json:"external_id"`
	URL           *string         `json:"url,omitempty"`
	Title         *string         `json:"title,omitempty"`
	PreviousText  *string         `json:"previous_text,omitempty"`
	CurrentText   *string         `json:"current_text,omitempty"`
	DiffText      *string         `json:"diff_text,omitempty"`
	ContentHash   *string         `json:"content_hash,omitempty"`
	RawPayload    json.RawMessage `json:"raw_payload,omitempty"`
	Language      *string         `json:"language,omitempty"`
	Importance    *string         `json:"importance,omitempty"`
	Score         *float64        `json:"score,omitempty"`
	Reason        *string         `json:"reason,omitempty"`
	Headline      *string         `json:"headline,omitempty"`
	SourceName    *string         `json:"source_name,omitempty"`
	SourceCountry *string         `json:"source_country,omitempty"`
	Status        string          `json:"status"`
	Source        string          `json:"source"`
	FetchMode     *string         `json:"fetch_mode,omitempty"`
	FetchedAt     *time.Time      `json:"fetched_at,omitempty"`
	SnapshotRef   *string         `json:"snapshot_ref,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Detail converts a stored record into its json-facing shape.
func (r *ChangeRecord) Detail() ChangeDetail {
	return ChangeDetail{
		ChangeID:      r.ChangeID,
		ExternalID:    r.ExternalID,
		URL:           r.URL,
		Title:         r.Title,
		PreviousText:  r.PreviousText,
		CurrentText:   r.CurrentText,
		DiffText:      r.DiffText,
		ContentHash:   r.ContentHash,
		RawPayload:    r.RawPayload,
		Language:      r.Language,
		Importance:    r.Importance,
		Score:         r.Score,
		Reason:        r.Reason,
		Headline:      r.Headline,
		SourceName:    r.SourceName,
		SourceCountry: r.SourceCountry,
		Status:        r.Status,
		Source:        r.Source,
		FetchMode:     r.FetchMode,
		FetchedAt:     r.FetchedAt,
		SnapshotRef:   r.SnapshotRef,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
	}
}

// InsertChange writes one change row in NEW status. When the row collides
// with the (url, content_hash, utc-day) uniqueness index, nothing is
// written and inserted=false is returned; the caller resolves the winner.
func (p *Pool) InsertChange(ctx context.Context, change *NewChange) (int64, bool, error) {
	if change == nil {
		return 0, false, fmt.Errorf("change is nil")
	}

	const q = `
INSERT INTO monitor.changes (
	external_id,
	url,
	title,
	previous_text,
	current_text,
	diff_text,
	content_hash,
	raw_payload,
	language,
	source_name,
	source_country,
	status,
	source,
	fetch_mode,
	fetched_at,
	snapshot_ref,
	created_at,
	updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10, $11, 'NEW', $12, $13, $14, $15, $16, $16)
ON CONFLICT (url, content_hash, ((created_at AT TIME ZONE 'utc')::date)) DO NOTHING
RETURNING change_id
`

	var id int64
	err := p.QueryRow(
		ctx,
		q,
		change.ExternalID,
		change.URL,
		change.Title,
		change.PreviousText,
		change.CurrentText,
		change.DiffText,
		change.ContentHash,
		change.RawPayload,
		change.Language,
		change.SourceName,
		change.SourceCountry,
		change.Source,
		change.FetchMode,
		change.FetchedAt,
		change.SnapshotRef,
		change.CreatedAt.UTC(),
	).Scan(&id)
	if err != nil {
		if IsNoRows(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("insert change: %w", err)
	}

	return id, true, nil
}

// FindDuplicateChange returns the most recent change sharing the same url
// and content hash inside the [dayStart, dayEnd) window, or ErrNoRows.
func (p *Pool) FindDuplicateChange(
	ctx context.Context,
	url string,
	contentHash string,
	dayStart time.Time,
	dayEnd time.Time,
) (*ChangeRecord, error) {
	const q = `
SELECT
	change_id,
	external_id,
	url,
	title,
	previous_text,
	current_text,
	diff_text,
	content_hash,
	raw_payload,
	language,
	importance,
	score,
	reason,
	headline,
	source_name,
	source_country,
	status::text,
	source,
	fetch_mode,
	fetched_at,
	snapshot_ref,
	created_at,
	updated_at
FROM monitor.changes
WHERE url = $1
  AND content_hash = $2
  AND created_at >= $3
  AND created_at < $4
ORDER BY created_at DESC, change_id DESC
LIMIT 1
`

	row := p.QueryRow(ctx, q, url, contentHash, dayStart.UTC(), dayEnd.UTC())
	return scanChangeRecord(row)
}

// GetChange returns one change row by id, or ErrNoRows.
func (p *Pool) GetChange(ctx context.Context, changeID int64) (*ChangeRecord, error) {
	const q = `
SELECT
	change_id,
	external_id,
	url,
	title,
	previous_text,
	current_text,
	diff_text,
	content_hash,
	raw_payload,
	language,
	importance,
	score,
	reason,
	headline,
	source_name,
	source_country,
	status::text,
	source,
	fetch_mode,
	fetched_at,
	snapshot_ref,
	created_at,
	updated_at
FROM monitor.changes
WHERE change_id = $1
`

	row := p.QueryRow(ctx, q, changeID)
	return scanChangeRecord(row)
}

// ListChanges lists changes newest-first with optional status/source/time
// filters.
func (p *Pool) ListChanges(ctx context.Context, opts ChangeListOptions) ([]ChangeListItem, error) {
	if opts.Limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	const q = `
SELECT
	change_id,
	external_id,
	url,
	title,
	content_hash,
	status::text,
	source,
	importance,
	language,
	fetched_at,
	created_at
FROM monitor.changes
WHERE ($1 = '' OR status::text = $1)
  AND ($2 = '' OR source = $2)
  AND ($3::timestamptz IS NULL OR created_at >= $3)
  AND ($4::timestamptz IS NULL OR created_at < $4)
ORDER BY created_at DESC, change_id DESC
LIMIT $5
`

	rows, err := p.Query(ctx, q,
		normalizeFilter(opts.Status),
		normalizeFilter(opts.Source),
		normalizeNullableUTC(opts.From),
		normalizeNullableUTC(opts.To),
		opts.Limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	items := make([]ChangeListItem, 0, opts.Limit)
	for rows.Next() {
		var row ChangeListItem
		if err := rows.Scan(
			&row.ChangeID,
			&row.ExternalID,
			&row.URL,
			&row.Title,
			&row.ContentHash,
			&row.Status,
			&row.Source,
			&row.Importance,
			&row.Language,
			&row.FetchedAt,
			&row.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan change row: %w", err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate change rows: %w", err)
	}

	return items, nil
}

// CountChanges counts changes matching the optional status/source filters.
func (p *Pool) CountChanges(ctx context.Context, status, source string) (int64, error) {
	const q = `
SELECT COUNT(*)::bigint
FROM monitor.changes
WHERE ($1 = '' OR status::text = $1)
  AND ($2 = '' OR source = $2)
`

	var count int64
	if err := p.QueryRow(ctx, q, normalizeFilter(status), normalizeFilter(source)).Scan(&count); err != nil {
		return 0, fmt.Errorf("count changes: %w", err)
	}
	return count, nil
}

func scanChangeRecord(row *Row) (*ChangeRecord, error) {
	var rec ChangeRecord
	err := row.Scan(
		&rec.ChangeID,
		&rec.ExternalID,
		&rec.URL,
		&rec.Title,
		&rec.PreviousText,
		&rec.CurrentText,
		&rec.DiffText,
		&rec.ContentHash,
		&rec.RawPayload,
		&rec.Language,
		&rec.Importance,
		&rec.Score,
		&rec.Reason,
		&rec.Headline,
		&rec.SourceName,
		&rec.SourceCountry,
		&rec.Status,
		&rec.Source,
		&rec.FetchMode,
		&rec.FetchedAt,
		&rec.SnapshotRef,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func normalizeFilter(value string) string {
	return strings.TrimSpace(value)
}

func normalizeNullableUTC(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	normalized := t.UTC()
	return &normalized
}
