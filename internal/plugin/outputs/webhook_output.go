package outputs

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sliink/eventd/internal/model"
	"github.com/sliink/eventd/internal/plugin"
)

// WebhookOutput POSTs each event as JSON. With a secret configured the body
// is signed with HMAC-SHA256 in the X-Eventd-Signature header.
type WebhookOutput struct {
	plugin.BasePlugin
	url        string
	secret     string
	headers    map[string]string
	httpClient *http.Client
}

// NewWebhookOutput creates a new webhook notifier plugin
func NewWebhookOutput(id string) *WebhookOutput {
	return &WebhookOutput{
		BasePlugin: plugin.NewBasePlugin(id, "Webhook Output", model.NotifyPluginType),
	}
}

// Validate requires an absolute http(s) URL
func (w *WebhookOutput) Validate() bool {
	u, err := url.Parse(w.ConfigString("url", ""))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Initialize prepares the webhook client
func (w *WebhookOutput) Initialize() bool {
	w.url = w.ConfigString("url", "")
	w.secret = w.ConfigString("secret", "")
	w.headers = w.ConfigStringMap("headers")
	w.httpClient = &http.Client{
		Timeout: w.ConfigMillis("timeout_ms", 10*time.Second),
	}

	w.SetStatus(model.StatusInitialized)
	return w.url != ""
}

// Notify delivers one event. Any status >= 300 is a failure.
func (w *WebhookOutput) Notify(ctx context.Context, event model.Event) error {
	if w.GetStatus() != model.StatusRunning {
		return fmt.Errorf("webhook output %s is not running", w.ID())
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Eventd-Kind", event.Kind)
	if w.secret != "" {
		req.Header.Set("X-Eventd-Signature", computeHMAC(payload, w.secret))
	}
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	// Read response body (limit to 1KB) for the error message
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, body)
	}
	return nil
}

// computeHMAC generates an HMAC-SHA256 signature for the payload
func computeHMAC(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
