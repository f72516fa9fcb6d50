// Package notify delivers terminal analysis results to caller-supplied
// callback URLs. Delivery is best-effort: failures are logged and never
// mutate the analysis result.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dshield-labs/coordengine/pkg/models"
	"github.com/dshield-labs/coordengine/pkg/version"
)

// CallbackTimeout bounds one delivery attempt, independent of the analysis
// deadline.
const CallbackTimeout = 30 * time.Second

// CallbackNotifier posts Result bodies to callback URLs.
type CallbackNotifier struct {
	httpClient *http.Client
}

// NewCallbackNotifier creates a notifier with the standard 30 s timeout.
func NewCallbackNotifier() *CallbackNotifier {
	return &CallbackNotifier{
		httpClient: &http.Client{Timeout: CallbackTimeout},
	}
}

// Deliver posts the result as JSON to url. A non-2xx response or transport
// failure is returned for the caller to log; the result itself is never
// altered.
func (n *CallbackNotifier) Deliver(ctx context.Context, url string, result *models.Result) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling callback payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, CallbackTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building callback request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.Full())

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting callback: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}

	slog.Info("Callback delivered",
		"analysis_id", result.AnalysisID, "url", url, "status", resp.StatusCode)
	return nil
}
