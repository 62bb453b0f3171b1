package watch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/javiportal/asertiva-monitoring/internal/globaltime"
)

const (
	defaultFetchTimeout  = 20 * time.Second
	defaultBodyByteLimit = 4 * 1024 * 1024
)

// FetchResult is one retrieved page body.
type FetchResult struct {
	Body        []byte
	ContentType string
	FetchedAt   time.Time
}

// Fetcher retrieves site content over HTTP with a per-host minimum
// delay between requests.
type Fetcher struct {
	client    *http.Client
	userAgent string
	bodyLimit int64

	mu        sync.Mutex
	lastFetch map[string]time.Time
}

func NewFetcher(userAgent string, timeout time.Duration, bodyLimit int64) *Fetcher {
	if strings.TrimSpace(userAgent) == "" {
		userAgent = defaultUserAgent
	}
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	if bodyLimit <= 0 {
		bodyLimit = defaultBodyByteLimit
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		bodyLimit: bodyLimit,
		lastFetch: map[string]time.Time{},
	}
}

func (f *Fetcher) Fetch(ctx context.Context, site SiteConfig) (*FetchResult, error) {
	if f == nil {
		return nil, fmt.Errorf("fetcher is not initialized")
	}

	if err := f.waitForHost(ctx, site.URL, time.Duration(site.RateLimitSeconds)*time.Second); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, site.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "es-MX,es;q=0.9,en;q=0.6")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch url: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.bodyLimit))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &FetchResult{
		Body:        body,
		ContentType: strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Type"))),
		FetchedAt:   globaltime.UTC(),
	}, nil
}

// waitForHost paces on the wall clock; the injectable clock covers
// record timestamps only.
func (f *Fetcher) waitForHost(ctx context.Context, rawURL string, minDelay time.Duration) error {
	if minDelay <= 0 {
		return nil
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	host := parsed.Hostname()

	f.mu.Lock()
	last, seen := f.lastFetch[host]
	now := time.Now()
	wait := time.Duration(0)
	if seen {
		if elapsed := now.Sub(last); elapsed < minDelay {
			wait = minDelay - elapsed
		}
	}
	f.lastFetch[host] = now.Add(wait)
	f.mu.Unlock()

	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
