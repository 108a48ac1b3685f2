package falqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"

	"genstudio/internal/domain"
)

func newTestClient(t *testing.T, transport *captureTransport) *Client {
	t.Helper()
	client, err := NewClient(Options{
		APIKey:     "fal-test",
		BaseURL:    "https://queue.example.com/",
		HTTPClient: &http.Client{Transport: transport},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestSubmitPostsBodyToEndpoint(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	transport.setJSONResponse("https://queue.example.com/fal-ai/flux-2-pro/edit", map[string]any{"request_id": "req-42"})
	client := newTestClient(t, transport)

	id, err := client.Submit(context.Background(), "fal-ai/flux-2-pro/edit", map[string]any{"prompt": "a red kite"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if id != "req-42" {
		t.Fatalf("request id = %q", id)
	}
	if transport.lastAuth != "Key fal-test" {
		t.Fatalf("authorization = %q", transport.lastAuth)
	}
	var sent map[string]any
	if err := json.Unmarshal(transport.lastBody, &sent); err != nil || sent["prompt"] != "a red kite" {
		t.Fatalf("body = %s (%v)", transport.lastBody, err)
	}
}

func TestStatusUsesAppIDAndMapsStates(t *testing.T) {
	cases := []struct {
		payload map[string]any
		want    State
	}{
		{map[string]any{"status": "IN_QUEUE", "queue_position": 3}, StateQueued},
		{map[string]any{"status": "IN_PROGRESS", "logs": []any{map[string]any{"message": "step 1/20"}}}, StateRunning},
		{map[string]any{"status": "COMPLETED"}, StateDone},
	}
	for _, tc := range cases {
		transport := &captureTransport{responses: map[string]responseStub{}}
		transport.setJSONResponse("https://queue.example.com/fal-ai/flux-2-pro/requests/req-1/status?logs=1", tc.payload)
		client := newTestClient(t, transport)

		status, err := client.Status(context.Background(), "fal-ai/flux-2-pro/edit", "req-1")
		if err != nil {
			t.Fatalf("Status: %v", err)
		}
		if status.State != tc.want {
			t.Fatalf("state = %s, want %s", status.State, tc.want)
		}
		switch tc.want {
		case StateQueued:
			if status.QueuePosition == nil || *status.QueuePosition != 3 {
				t.Fatalf("queue position = %v", status.QueuePosition)
			}
		case StateRunning:
			if len(status.Logs) != 1 || status.Logs[0] != "step 1/20" {
				t.Fatalf("logs = %#v", status.Logs)
			}
		}
	}
}

func TestResultNormalizesSingleImage(t *testing.T) {
	transport := &captureTransport{responses: map[string]responseStub{}}
	transport.setJSONResponse("https://queue.example.com/fal-ai/clarity-upscaler/requests/req-7", map[string]any{
		"image": map[string]any{"url": "https://cdn.example.com/up.png", "width": 2048, "height": 2048, "content_type": "image/png"},
	})
	client := newTestClient(t, transport)

	result, err := client.Result(context.Background(), "fal-ai/clarity-upscaler", "req-7")
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if len(result.Artifacts) != 1 || result.Artifacts[0].Width != 2048 || result.Artifacts[0].ContentType != "image/png" {
		t.Fatalf("artifacts = %#v", result.Artifacts)
	}
	if !bytes.Contains(result.Raw, []byte("up.png")) {
		t.Fatalf("raw result not retained: %s", result.Raw)
	}
}

func TestErrorsBecomeProviderErrors(t *testing.T) {
	cases := []struct {
		status    int
		body      string
		permanent bool
		message   string
	}{
		{http.StatusUnprocessableEntity, `{"detail":"prompt violates content policy"}`, true, "prompt violates content policy"},
		{http.StatusTooManyRequests, `{"message":"slow down"}`, false, "slow down"},
		{http.StatusUnauthorized, `{"detail":"invalid key"}`, false, "invalid key"},
		{http.StatusForbidden, `{"detail":"key revoked"}`, false, "key revoked"},
		{http.StatusNotFound, `{"detail":"request not found"}`, false, "request not found"},
		{http.StatusBadRequest, `{"detail":"request is still in progress"}`, false, "request is still in progress"},
		{http.StatusBadGateway, `upstream exploded`, false, "upstream exploded"},
	}
	for _, tc := range cases {
		transport := &captureTransport{responses: map[string]responseStub{}}
		transport.responses["https://queue.example.com/fal-ai/flux-2-pro/requests/req-1"] = responseStub{status: tc.status, body: []byte(tc.body)}
		client := newTestClient(t, transport)

		_, err := client.Result(context.Background(), "fal-ai/flux-2-pro", "req-1")
		var pe *domain.ProviderError
		if !errors.As(err, &pe) {
			t.Fatalf("status %d: error %v is not a ProviderError", tc.status, err)
		}
		if pe.Permanent != tc.permanent || pe.Message != tc.message || pe.StatusCode != tc.status {
			t.Fatalf("status %d: provider error = %#v", tc.status, pe)
		}
		if !errors.Is(err, domain.ErrProvider) {
			t.Fatalf("status %d: errors.Is ErrProvider = false", tc.status)
		}
	}
}

func TestMissingAPIKey(t *testing.T) {
	client, _ := NewClient(Options{})
	if _, err := client.Submit(context.Background(), "fal-ai/flux-2-pro", map[string]any{}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("Submit error = %v", err)
	}
}

func TestAppID(t *testing.T) {
	cases := map[string]string{
		"fal-ai/flux-2-pro/edit":         "fal-ai/flux-2-pro",
		"/fal-ai/bytedance/seedream/v4/": "fal-ai/bytedance",
		"fal-ai/clarity-upscaler":        "fal-ai/clarity-upscaler",
	}
	for in, want := range cases {
		if got := AppID(in); got != want {
			t.Fatalf("AppID(%q) = %q, want %q", in, got, want)
		}
	}
}

type captureTransport struct {
	responses map[string]responseStub
	lastBody  []byte
	lastAuth  string
}

type responseStub struct {
	status int
	header http.Header
	body   []byte
}

func (c *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.lastAuth = req.Header.Get("Authorization")
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		c.lastBody = body
	}
	if stub, ok := c.responses[req.URL.String()]; ok {
		return stub.toResponse(), nil
	}
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Header:     http.Header{},
		Body:       io.NopCloser(bytes.NewReader([]byte(`{"detail":"not found"}`))),
	}, nil
}

func (c *captureTransport) setJSONResponse(url string, payload any) {
	body, _ := json.Marshal(payload)
	c.responses[url] = responseStub{
		status: http.StatusOK,
		header: http.Header{"Content-Type": []string{"application/json"}},
		body:   body,
	}
}

func (s responseStub) toResponse() *http.Response {
	header := http.Header{}
	for k, values := range s.header {
		cloned := make([]string, len(values))
		copy(cloned, values)
		header[k] = cloned
	}
	return &http.Response{
		StatusCode: s.status,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(s.body)),
	}
}
