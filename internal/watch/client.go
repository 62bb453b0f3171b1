package watch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/javiportal/asertiva-monitoring/internal/ingest"
)

// Submitter hands a detected change to the ingestion boundary, either
// over HTTP or in-process.
type Submitter interface {
	Submit(ctx context.Context, sub ingest.Submission) (ingest.Result, error)
}

// APIClient posts submissions to the monitoring API's ingest endpoint
// and unwraps the JSend envelope.
type APIClient struct {
	endpoint string
	client   *http.Client
}

func NewAPIClient(apiURL string, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &APIClient{
		endpoint: strings.TrimRight(strings.TrimSpace(apiURL), "/") + "/ingest/changes",
		client:   &http.Client{Timeout: timeout},
	}
}

type wireSubmission struct {
	Source        string         `json:"source"`
	ExternalID    string         `json:"external_id,omitempty"`
	URL           string         `json:"url,omitempty"`
	Title         string         `json:"title,omitempty"`
	PreviousText  *string        `json:"previous_text,omitempty"`
	CurrentText   *string        `json:"current_text,omitempty"`
	ContentHash   string         `json:"content_hash,omitempty"`
	FetchMode     string         `json:"fetch_mode,omitempty"`
	FetchedAt     string         `json:"fetched_at,omitempty"`
	SnapshotRef   string         `json:"snapshot_ref,omitempty"`
	RawPayload    map[string]any `json:"raw_payload,omitempty"`
	SourceName    string         `json:"source_name,omitempty"`
	SourceCountry string         `json:"source_country,omitempty"`
}

type jsendEnvelope struct {
	Status  string        `json:"status"`
	Data    ingest.Result `json:"data"`
	Message string        `json:"message"`
}

func (c *APIClient) Submit(ctx context.Context, sub ingest.Submission) (ingest.Result, error) {
	wire := wireSubmission{
		Source:        sub.Source,
		ExternalID:    sub.ExternalID,
		URL:           sub.URL,
		Title:         sub.Title,
		PreviousText:  sub.PreviousText,
		CurrentText:   sub.CurrentText,
		ContentHash:   sub.ContentHash,
		FetchMode:     sub.FetchMode,
		SnapshotRef:   sub.SnapshotRef,
		SourceName:    sub.SourceName,
		SourceCountry: sub.SourceCountry,
	}
	if sub.FetchedAt != nil {
		wire.FetchedAt = sub.FetchedAt.UTC().Format(time.RFC3339)
	}
	if len(sub.RawPayload) > 0 {
		var payload map[string]any
		if err := json.Unmarshal(sub.RawPayload, &payload); err == nil {
			wire.RawPayload = payload
		}
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return ingest.Result{}, fmt.Errorf("marshal submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return ingest.Result{}, fmt.Errorf("build ingest request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return ingest.Result{}, fmt.Errorf("post change: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ingest.Result{}, fmt.Errorf("read ingest response: %w", err)
	}

	var envelope jsendEnvelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return ingest.Result{}, fmt.Errorf("decode ingest response (status %d): %w", resp.StatusCode, err)
	}

	if envelope.Status != "success" {
		return ingest.Result{}, fmt.Errorf("ingest rejected (status %d): %s", resp.StatusCode, envelope.Message)
	}

	return envelope.Data, nil
}

// DirectSubmitter bypasses HTTP and calls the coordinator in-process.
type DirectSubmitter struct {
	Service *ingest.Service
}

func (d *DirectSubmitter) Submit(ctx context.Context, sub ingest.Submission) (ingest.Result, error) {
	if d == nil || d.Service == nil {
		return ingest.Result{}, fmt.Errorf("direct submitter is not initialized")
	}
	return d.Service.IngestOne(ctx, sub)
}
