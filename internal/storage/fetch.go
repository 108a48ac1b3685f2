package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// fetchSource opens sourceURL for streaming. The caller closes the body.
func fetchSource(ctx context.Context, client *http.Client, sourceURL string) (io.ReadCloser, string, int64, error) {
	parsed, err := url.Parse(sourceURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, "", 0, fmt.Errorf("storage: invalid source url %q", sourceURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return nil, "", 0, fmt.Errorf("storage: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", 0, fmt.Errorf("storage: download source: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, "", 0, fmt.Errorf("storage: download source: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, resp.Header.Get("Content-Type"), resp.ContentLength, nil
}
