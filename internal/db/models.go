package db

import (
	"encoding/json"
	"time"
)

// Change statuses. Only StatusNew is written by the ingestion path; the
// review and classification collaborators own every later transition.
const (
	StatusNew       = "NEW"
	StatusFiltered  = "FILTERED"
	StatusValidated = "VALIDATED"
	StatusDiscarded = "DISCARDED"
	StatusPublished = "PUBLISHED"
	StatusPending   = "PENDING"
)

// ChangeRecord maps monitor.changes.
type ChangeRecord struct {
	ChangeID      int64           `gorm:"column:change_id;primaryKey;autoIncrement"`
	ExternalID    string          `gorm:"column:external_id;type:text;not null"`
	URL           *string         `gorm:"column:url;type:text"`
	Title         *string         `gorm:"column:title;type:text"`
	PreviousText  *string         `gorm:"column:previous_text;type:text"`
	CurrentText   *string         `gorm:"column:current_text;type:text"`
	DiffText      *string         `gorm:"column:diff_text;type:text"`
	ContentHash   *string         `gorm:"column:content_hash;type:text"`
	RawPayload    json.RawMessage `gorm:"column:raw_payload;type:jsonb"`
	Language      *string         `gorm:"column:language;type:text"`
	Importance    *string         `gorm:"column:importance;type:text"`
	Score         *float64        `gorm:"column:score;type:double precision"`
	Reason        *string         `gorm:"column:reason;type:text"`
	Headline      *string         `gorm:"column:headline;type:text"`
	SourceName    *string         `gorm:"column:source_name;type:text"`
	SourceCountry *string         `gorm:"column:source_country;type:text"`
	Status        string          `gorm:"column:status;type:monitor.change_status;not null;default:NEW"`
	Source        string          `gorm:"column:source;type:text;not null"`
	FetchMode     *string         `gorm:"column:fetch_mode;type:text"`
	FetchedAt     *time.Time      `gorm:"column:fetched_at;type:timestamptz"`
	SnapshotRef   *string         `gorm:"column:snapshot_ref;type:text"`
	CreatedAt     time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt     time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (ChangeRecord) TableName() string { return "monitor.changes" }

func autoMigrateModels() []any {
	return []any{
		&ChangeRecord{},
	}
}
