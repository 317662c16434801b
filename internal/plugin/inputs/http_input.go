package inputs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sliink/eventd/internal/model"
	"github.com/sliink/eventd/internal/plugin"
)

// HTTPInput polls a URL and decodes the response as a list of events.
// The body is either a JSON array or an object with an "events" array.
type HTTPInput struct {
	plugin.BasePlugin
	url         string
	headers     map[string]string
	defaultKind string
	httpClient  *http.Client
}

// NewHTTPInput creates a new HTTP poll input plugin
func NewHTTPInput(id string) *HTTPInput {
	return &HTTPInput{
		BasePlugin: plugin.NewBasePlugin(id, "HTTP Input", model.SourcePluginType),
	}
}

// Validate requires an absolute http(s) URL
func (h *HTTPInput) Validate() bool {
	u, err := url.Parse(h.ConfigString("url", ""))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Initialize prepares the HTTP input for operation
func (h *HTTPInput) Initialize() bool {
	h.url = h.ConfigString("url", "")
	h.headers = h.ConfigStringMap("headers")
	h.defaultKind = h.ConfigString("default_kind", "message")
	h.httpClient = &http.Client{
		Timeout: h.ConfigMillis("timeout_ms", 10*time.Second),
	}

	h.SetStatus(model.StatusInitialized)
	return h.url != ""
}

type eventEnvelope struct {
	Events []wireEvent `json:"events"`
}

type wireEvent struct {
	Kind       string    `json:"kind"`
	Payload    string    `json:"payload"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Scan performs one GET. Any transport error, non-2xx status or malformed
// body fails the scan.
func (h *HTTPInput) Scan(ctx context.Context) ([]model.Event, error) {
	if h.GetStatus() != model.StatusRunning {
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read response body (limit to 1KB) for the error message
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	wire, err := decodeWireEvents(body)
	if err != nil {
		return nil, err
	}

	events := make([]model.Event, 0, len(wire))
	for _, w := range wire {
		kind := w.Kind
		if kind == "" {
			kind = h.defaultKind
		}
		events = append(events, model.NewEvent(kind, w.Payload, w.OccurredAt))
	}
	return events, nil
}

func decodeWireEvents(body []byte) ([]wireEvent, error) {
	if len(body) == 0 {
		return nil, nil
	}
	var list []wireEvent
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}
	var envelope eventEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decoding events: %w", err)
	}
	return envelope.Events, nil
}
