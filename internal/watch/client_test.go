package watch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/javiportal/asertiva-monitoring/internal/ingest"
)

func TestAPIClientSubmitParsesEnvelope(t *testing.T) {
	t.Parallel()

	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ingest/changes" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"status":"success","data":{"ok":true,"duplicate":false,"change_id":12,"external_id":"watchguard:abc:1"}}`))
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, 5*time.Second)
	current := "Articulo 1. Reformado"
	previous := ""
	fetchedAt := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

	result, err := client.Submit(context.Background(), ingest.Submission{
		Source:       ingest.SourceWatchguard,
		URL:          "https://x.gob/a",
		PreviousText: &previous,
		CurrentText:  &current,
		ContentHash:  "abc",
		FetchMode:    ingest.FetchModeHTTP,
		FetchedAt:    &fetchedAt,
	})
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if !result.OK || result.Duplicate || result.ChangeID != 12 {
		t.Fatalf("unexpected result: %+v", result)
	}

	if received["source"] != "watchguard" {
		t.Fatalf("wire source = %v", received["source"])
	}
	if received["fetched_at"] != "2026-08-25T10:00:00Z" {
		t.Fatalf("wire fetched_at = %v", received["fetched_at"])
	}
	if _, present := received["previous_text"]; !present {
		t.Fatal("empty previous_text was dropped from the wire payload")
	}
}

func TestAPIClientSubmitReportsRejection(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"status":"fail","message":"Validation failed"}`))
	}))
	defer server.Close()

	client := NewAPIClient(server.URL, 5*time.Second)
	_, err := client.Submit(context.Background(), ingest.Submission{Source: "watchguard"})
	if err == nil {
		t.Fatal("expected an error for a rejected submission")
	}
}
