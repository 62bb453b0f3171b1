package submissionschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed change_submission.schema.json
var changeSubmissionSchemaJSON string

// ChangeSubmission is the wire shape accepted by the ingestion boundary.
// Optional fields are pointers so presence survives decoding; an empty
// current_text is a legitimately empty page, not a missing one.
type ChangeSubmission struct {
	Source        string         `json:"source"`
	ExternalID    *string        `json:"external_id,omitempty"`
	URL           *string        `json:"url,omitempty"`
	Title         *string        `json:"title,omitempty"`
	PreviousText  *string        `json:"previous_text,omitempty"`
	CurrentText   *string        `json:"current_text,omitempty"`
	DiffText      *string        `json:"diff_text,omitempty"`
	ContentHash   *string        `json:"content_hash,omitempty"`
	FetchMode     *string        `json:"fetch_mode,omitempty"`
	FetchedAt     *string        `json:"fetched_at,omitempty"`
	SnapshotRef   *string        `json:"snapshot_ref,omitempty"`
	RawPayload    map[string]any `json:"raw_payload,omitempty"`
	SourceName    *string        `json:"source_name,omitempty"`
	SourceCountry *string        `json:"source_country,omitempty"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateChangeSubmission decodes and validates one submission payload.
func ValidateChangeSubmission(payload json.RawMessage) (*ChangeSubmission, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var submission ChangeSubmission
	if err := json.Unmarshal(normalized, &submission); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := validateSemantics(&submission); err != nil {
		return nil, err
	}

	return &submission, nil
}

// FetchedAtTime parses the optional fetched_at field as UTC.
func (s *ChangeSubmission) FetchedAtTime() (*time.Time, error) {
	if s == nil || s.FetchedAt == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*s.FetchedAt)
	if trimmed == "" {
		return nil, nil
	}
	ts, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("fetched_at must be RFC3339: %w", err)
	}
	utc := ts.UTC()
	return &utc, nil
}

// RawPayloadJSON re-encodes the opaque payload for storage, or nil when
// absent.
func (s *ChangeSubmission) RawPayloadJSON() (json.RawMessage, error) {
	if s == nil || len(s.RawPayload) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(s.RawPayload)
	if err != nil {
		return nil, fmt.Errorf("marshal raw_payload: %w", err)
	}
	return encoded, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("change_submission.schema.json", strings.NewReader(changeSubmissionSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("change_submission.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

func validateSemantics(submission *ChangeSubmission) error {
	if submission == nil {
		return fmt.Errorf("payload is nil")
	}

	if strings.TrimSpace(submission.Source) == "" {
		return fmt.Errorf("source must not be empty")
	}

	if submission.URL != nil {
		if err := validateAbsoluteURL("url", *submission.URL); err != nil {
			return err
		}
	}

	if _, err := submission.FetchedAtTime(); err != nil {
		return err
	}

	return nil
}

func validateAbsoluteURL(fieldName, value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("%s must not be empty", fieldName)
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", fieldName, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%s must be an absolute http or https URL", fieldName)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", fieldName)
	}
	return nil
}
