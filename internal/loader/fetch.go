package loader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Fetcher opens a locator for reading. Implementations make exactly one
// attempt.
//
//go:generate mockgen -destination=mocks/mock_fetcher.go -package=mocks -source=fetch.go Fetcher
type Fetcher interface {
	Open(ctx context.Context, locator string) (io.ReadCloser, error)
}

type FileFetcher struct{}

func (FileFetcher) Open(_ context.Context, locator string) (io.ReadCloser, error) {
	f, err := os.Open(strings.TrimPrefix(locator, "file://"))
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

type HTTPFetcher struct {
	Client *http.Client
}

func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}}
}

func (h *HTTPFetcher) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", locator, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: unexpected status %s", locator, resp.Status)
	}
	return resp.Body, nil
}

// SchemeFetcher sends http and https locators to Remote and everything else
// to Local.
type SchemeFetcher struct {
	Local  Fetcher
	Remote Fetcher
}

func NewFetcher(timeout time.Duration) *SchemeFetcher {
	return &SchemeFetcher{
		Local:  FileFetcher{},
		Remote: NewHTTPFetcher(timeout),
	}
}

func (s *SchemeFetcher) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	if isRemote(locator) {
		return s.Remote.Open(ctx, locator)
	}
	return s.Local.Open(ctx, locator)
}

func isRemote(locator string) bool {
	l := strings.ToLower(locator)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}
