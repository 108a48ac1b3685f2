// Package falqueue talks to a hosted inference queue with the fal.ai request
// model: submit returns a request id, status is polled, and the result is
// fetched once the request is done.
package falqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"genstudio/internal/domain"
	"genstudio/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("falqueue: api key is required")

// State is the normalized queue state of a request.
type State string

const (
	StateQueued  State = "QUEUED"
	StateRunning State = "RUNNING"
	StateDone    State = "DONE"
)

// QueueStatus is a snapshot of a queued request.
type QueueStatus struct {
	State         State
	QueuePosition *int
	Logs          []string
}

// Artifact is one output file of a finished request.
type Artifact struct {
	URL         string
	Width       int
	Height      int
	ContentType string
}

// QueueResult is the payload of a finished request.
type QueueResult struct {
	Artifacts []Artifact
	Raw       json.RawMessage
}

// Options configures the queue client.
type Options struct {
	APIKey         string
	BaseURL        string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls against the queue API. It never retries.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

type submitResponse struct {
	RequestID string `json:"request_id"`
}

type statusResponse struct {
	Status        string `json:"status"`
	QueuePosition *int   `json:"queue_position"`
	Logs          []struct {
		Message string `json:"message"`
	} `json:"logs"`
}

type fileRef struct {
	URL         string `json:"url"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ContentType string `json:"content_type"`
}

type resultResponse struct {
	Images []fileRef `json:"images"`
	Image  *fileRef  `json:"image"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://queue.fal.run"
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// Submit enqueues body on endpoint and returns the provider request id.
func (c *Client) Submit(ctx context.Context, endpoint string, body any) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("falqueue: encode request: %w", err)
	}
	raw, err := c.do(ctx, http.MethodPost, endpoint, c.baseURL+"/"+strings.Trim(endpoint, "/"), payload)
	if err != nil {
		return "", err
	}
	var decoded submitResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("falqueue: decode submit response: %w", err)
	}
	if decoded.RequestID == "" {
		return "", &domain.ProviderError{Endpoint: endpoint, Message: "submit response carried no request_id"}
	}
	c.logger.Debug().Str("endpoint", endpoint).Str("request_id", decoded.RequestID).Msg("falqueue: submitted")
	return decoded.RequestID, nil
}

// Status reports the queue state of requestID, including logs.
func (c *Client) Status(ctx context.Context, endpoint, requestID string) (*QueueStatus, error) {
	target := c.requestURL(endpoint, requestID) + "/status?logs=1"
	raw, err := c.do(ctx, http.MethodGet, endpoint, target, nil)
	if err != nil {
		return nil, err
	}
	var decoded statusResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("falqueue: decode status response: %w", err)
	}
	status := &QueueStatus{QueuePosition: decoded.QueuePosition}
	switch decoded.Status {
	case "IN_QUEUE":
		status.State = StateQueued
	case "IN_PROGRESS":
		status.State = StateRunning
	case "COMPLETED":
		status.State = StateDone
	default:
		return nil, &domain.ProviderError{Endpoint: endpoint, Message: fmt.Sprintf("unknown queue status %q", decoded.Status)}
	}
	for _, entry := range decoded.Logs {
		status.Logs = append(status.Logs, entry.Message)
	}
	return status, nil
}

// Result fetches the output of a finished request.
func (c *Client) Result(ctx context.Context, endpoint, requestID string) (*QueueResult, error) {
	raw, err := c.do(ctx, http.MethodGet, endpoint, c.requestURL(endpoint, requestID), nil)
	if err != nil {
		return nil, err
	}
	var decoded resultResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("falqueue: decode result: %w", err)
	}
	files := decoded.Images
	if len(files) == 0 && decoded.Image != nil {
		files = []fileRef{*decoded.Image}
	}
	result := &QueueResult{Raw: json.RawMessage(raw)}
	for _, f := range files {
		if strings.TrimSpace(f.URL) == "" {
			continue
		}
		result.Artifacts = append(result.Artifacts, Artifact{
			URL:         strings.TrimSpace(f.URL),
			Width:       f.Width,
			Height:      f.Height,
			ContentType: f.ContentType,
		})
	}
	if len(result.Artifacts) == 0 {
		return nil, &domain.ProviderError{Endpoint: endpoint, Message: "result contained no images", Permanent: true}
	}
	return result, nil
}

// requestURL builds the per-request URL, which lives under the app id (the
// first two endpoint segments) rather than the full endpoint path.
func (c *Client) requestURL(endpoint, requestID string) string {
	return c.baseURL + "/" + AppID(endpoint) + "/requests/" + url.PathEscape(requestID)
}

// AppID returns the owner/app prefix of an endpoint such as "fal-ai/flux-2-pro/edit".
func AppID(endpoint string) string {
	parts := strings.Split(strings.Trim(endpoint, "/"), "/")
	if len(parts) > 2 {
		parts = parts[:2]
	}
	return strings.Join(parts, "/")
}

func (c *Client) do(ctx context.Context, method, endpoint, target string, body []byte) ([]byte, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("falqueue: build request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.ProviderError{Endpoint: endpoint, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("falqueue: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Msg("falqueue: request failed")
		return nil, &domain.ProviderError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(raw, resp.StatusCode),
			Permanent:  isPermanent(resp.StatusCode),
		}
	}
	return raw, nil
}

// isPermanent reports upstream answers that no retry can change: the request
// input was rejected (content policy, invalid parameters). Auth, not-found and
// still-in-progress answers are retryable once the cause clears.
func isPermanent(status int) bool {
	return status == http.StatusUnprocessableEntity
}

// errorMessage extracts the upstream message verbatim, falling back to the body.
func errorMessage(raw []byte, status int) string {
	var detail struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(raw, &detail); err == nil {
		switch {
		case detail.Message != "":
			return detail.Message
		case detail.Error != "":
			return detail.Error
		case len(detail.Detail) > 0:
			var s string
			if json.Unmarshal(detail.Detail, &s) == nil {
				return s
			}
			return string(detail.Detail)
		}
	}
	if text := strings.TrimSpace(string(raw)); text != "" {
		return text
	}
	return http.StatusText(status)
}
