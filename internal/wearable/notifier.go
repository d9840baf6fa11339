package wearable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Notifier receives normalized events after they are persisted. The coaching
// side of the system listens here; delivery failures never unwind the
// ingestion that already happened.
type Notifier interface {
	NotifyEvent(ctx context.Context, event *WebhookEvent) error
}

type NoopNotifier struct{}

func (NoopNotifier) NotifyEvent(ctx context.Context, event *WebhookEvent) error {
	return nil
}

// HTTPNotifier posts a compact JSON summary of each ingested event to a
// configured endpoint.
type HTTPNotifier struct {
	endpoint   string
	authToken  string
	httpClient *http.Client
	log        zerolog.Logger
}

type HTTPNotifierOptions struct {
	Endpoint   string
	AuthToken  string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

func NewHTTPNotifier(opts HTTPNotifierOptions) *HTTPNotifier {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPNotifier{
		endpoint:   strings.TrimSpace(opts.Endpoint),
		authToken:  strings.TrimSpace(opts.AuthToken),
		httpClient: httpClient,
		log:        opts.Logger,
	}
}

type eventNotification struct {
	Source        string `json:"source"`
	Kind          string `json:"kind"`
	Date          string `json:"date"`
	CorrelationID string `json:"correlationId"`
}

func (n *HTTPNotifier) NotifyEvent(ctx context.Context, event *WebhookEvent) error {
	if n.endpoint == "" || event == nil {
		return nil
	}
	payload, err := json.Marshal(eventNotification{
		Source:        event.Source(),
		Kind:          string(event.Kind),
		Date:          event.Date(),
		CorrelationID: uuid.NewString(),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if n.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+n.authToken)
	}
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("event notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
