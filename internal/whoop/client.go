package whoop

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/peakform/wearsync/internal/observability"
)

const (
	defaultAPIBaseURL = "https://api.prod.whoop.com/developer/v2"
	pageLimit         = 25
)

// apiError is a non-retriable vendor response.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("whoop api: status=%d body=%s", e.Status, strings.TrimSpace(e.Body))
}

// Client issues authenticated calls against the vendor REST API. 429 and
// 5xx responses and transport failures are retried with exponential backoff
// up to a fixed ceiling; a Retry-After hint takes precedence over the
// computed delay. All other non-2xx responses fail immediately.
type Client struct {
	baseURL     string
	accessToken string
	httpClient  *http.Client
	maxRetries  int
	baseDelay   time.Duration
	maxDelay    time.Duration
}

type ClientOptions struct {
	BaseURL     string
	AccessToken string
	HTTPClient  *http.Client
	MaxRetries  int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultAPIBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 20 * time.Second}
	}
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 4
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	maxDelay := opts.MaxDelay
	if maxDelay <= 0 {
		maxDelay = 10 * time.Second
	}
	return &Client{
		baseURL:     baseURL,
		accessToken: opts.AccessToken,
		httpClient:  httpClient,
		maxRetries:  maxRetries,
		baseDelay:   baseDelay,
		maxDelay:    maxDelay,
	}
}

func (c *Client) request(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			if attempt < c.maxRetries {
				observability.RecordAPIRetry(Slug, "network")
				if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, "")); waitErr != nil {
					return nil, waitErr
				}
				continue
			}
			return nil, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, readErr
		}
		if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
			return body, nil
		}

		retriable := resp.StatusCode == http.StatusTooManyRequests ||
			(resp.StatusCode >= 500 && resp.StatusCode <= 599)
		if retriable && attempt < c.maxRetries {
			trigger := "server_error"
			if resp.StatusCode == http.StatusTooManyRequests {
				trigger = "rate_limit"
			}
			observability.RecordAPIRetry(Slug, trigger)
			if waitErr := sleepContext(ctx, c.retryDelay(attempt+1, resp.Header.Get("Retry-After"))); waitErr != nil {
				return nil, waitErr
			}
			continue
		}
		return nil, &apiError{Status: resp.StatusCode, Body: string(body)}
	}
}

func (c *Client) retryDelay(attempt int, retryAfterHeader string) time.Duration {
	if retryAfter := parseRetryAfterSeconds(retryAfterHeader); retryAfter > 0 {
		if retryAfter > c.maxDelay {
			return c.maxDelay
		}
		return retryAfter
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxDelay {
			return c.maxDelay
		}
	}
	if delay > c.maxDelay {
		return c.maxDelay
	}
	return delay
}

func parseRetryAfterSeconds(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	seconds, err := strconv.Atoi(header)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type collectionPage struct {
	Records   []json.RawMessage `json:"records"`
	NextToken *string           `json:"next_token"`
}

// collection follows the continuation token until exhausted, so callers
// always see the full result set for the range.
func (c *Client) collection(ctx context.Context, path string, start, end time.Time) ([]json.RawMessage, error) {
	var all []json.RawMessage
	nextToken := ""
	for {
		query := url.Values{}
		query.Set("start", start.UTC().Format(time.RFC3339))
		query.Set("end", end.UTC().Format(time.RFC3339))
		query.Set("limit", strconv.Itoa(pageLimit))
		if nextToken != "" {
			query.Set("nextToken", nextToken)
		}
		body, err := c.request(ctx, path, query)
		if err != nil {
			return nil, err
		}
		var page collectionPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("whoop api: bad collection page: %w", err)
		}
		all = append(all, page.Records...)
		if page.NextToken == nil || *page.NextToken == "" {
			return all, nil
		}
		nextToken = *page.NextToken
	}
}

func (c *Client) SleepRange(ctx context.Context, start, end time.Time) ([]sleepRecord, error) {
	raw, err := c.collection(ctx, "/activity/sleep", start, end)
	if err != nil {
		return nil, err
	}
	return decodeRecords[sleepRecord](raw)
}

func (c *Client) RecoveryRange(ctx context.Context, start, end time.Time) ([]recoveryRecord, error) {
	raw, err := c.collection(ctx, "/recovery", start, end)
	if err != nil {
		return nil, err
	}
	return decodeRecords[recoveryRecord](raw)
}

func (c *Client) WorkoutRange(ctx context.Context, start, end time.Time) ([]workoutRecord, error) {
	raw, err := c.collection(ctx, "/activity/workout", start, end)
	if err != nil {
		return nil, err
	}
	return decodeRecords[workoutRecord](raw)
}

func (c *Client) CycleRange(ctx context.Context, start, end time.Time) ([]cycleRecord, error) {
	raw, err := c.collection(ctx, "/cycle", start, end)
	if err != nil {
		return nil, err
	}
	return decodeRecords[cycleRecord](raw)
}

func (c *Client) SleepByID(ctx context.Context, id string) (sleepRecord, error) {
	body, err := c.request(ctx, "/activity/sleep/"+url.PathEscape(id), nil)
	if err != nil {
		return sleepRecord{}, err
	}
	var record sleepRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return sleepRecord{}, fmt.Errorf("whoop api: bad sleep record: %w", err)
	}
	record.setRawMessage(body)
	return record, nil
}

func (c *Client) WorkoutByID(ctx context.Context, id string) (workoutRecord, error) {
	body, err := c.request(ctx, "/activity/workout/"+url.PathEscape(id), nil)
	if err != nil {
		return workoutRecord{}, err
	}
	var record workoutRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return workoutRecord{}, fmt.Errorf("whoop api: bad workout record: %w", err)
	}
	record.setRawMessage(body)
	return record, nil
}

func decodeRecords[T any, PT interface {
	*T
	setRawMessage(json.RawMessage)
}](raw []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(raw))
	for _, message := range raw {
		var record T
		if err := json.Unmarshal(message, &record); err != nil {
			return nil, fmt.Errorf("whoop api: bad record: %w", err)
		}
		PT(&record).setRawMessage(message)
		out = append(out, record)
	}
	return out, nil
}
