package submissionschema

import (
	"strings"

	"github.com/javiportal/asertiva-monitoring/internal/ingest"
)

// ToSubmission maps a validated wire payload onto the coordinator's
// submission shape.
func (s *ChangeSubmission) ToSubmission() (ingest.Submission, error) {
	fetchedAt, err := s.FetchedAtTime()
	if err != nil {
		return ingest.Submission{}, err
	}
	rawPayload, err := s.RawPayloadJSON()
	if err != nil {
		return ingest.Submission{}, err
	}

	return ingest.Submission{
		Source:          strings.TrimSpace(s.Source),
		ExternalID:      optionalString(s.ExternalID),
		URL:             optionalString(s.URL),
		Title:           optionalString(s.Title),
		PreviousText:    s.PreviousText,
		CurrentText:     s.CurrentText,
		PrecomputedDiff: s.DiffText,
		ContentHash:     optionalString(s.ContentHash),
		FetchMode:       optionalString(s.FetchMode),
		FetchedAt:       fetchedAt,
		SnapshotRef:     optionalString(s.SnapshotRef),
		RawPayload:      rawPayload,
		SourceName:      optionalString(s.SourceName),
		SourceCountry:   optionalString(s.SourceCountry),
	}, nil
}

func optionalString(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}
