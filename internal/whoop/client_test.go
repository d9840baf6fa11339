package whoop

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fastClient(baseURL string) *Client {
	return NewClient(ClientOptions{
		BaseURL:     baseURL,
		AccessToken: "test-token",
		MaxRetries:  3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    5 * time.Millisecond,
	})
}

func TestClientSendsBearerToken(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"records": [], "next_token": null}`)
	}))
	defer server.Close()

	if _, err := fastClient(server.URL).SleepRange(context.Background(), time.Now().Add(-time.Hour), time.Now()); err != nil {
		t.Fatalf("range failed: %v", err)
	}
	if gotAuth != "Bearer test-token" {
		t.Fatalf("expected bearer header, got %q", gotAuth)
	}
}

func TestClientRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "3600")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"records": [], "next_token": null}`)
	}))
	defer server.Close()

	start := time.Now()
	if _, err := fastClient(server.URL).SleepRange(context.Background(), time.Now().Add(-time.Hour), time.Now()); err != nil {
		t.Fatalf("range failed after retry: %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected one retry, got %d calls", calls.Load())
	}
	// A huge Retry-After hint is capped at the client's delay ceiling.
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("retry delay not capped, took %v", elapsed)
	}
}

func TestClientRetriesServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"records": [], "next_token": null}`)
	}))
	defer server.Close()

	if _, err := fastClient(server.URL).WorkoutRange(context.Background(), time.Now().Add(-time.Hour), time.Now()); err != nil {
		t.Fatalf("range failed after retries: %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected three calls, got %d", calls.Load())
	}
}

func TestClientGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := fastClient(server.URL).SleepRange(context.Background(), time.Now().Add(-time.Hour), time.Now())
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	// maxRetries=3 means 1 initial attempt + 3 retries.
	if calls.Load() != 4 {
		t.Fatalf("expected four calls, got %d", calls.Load())
	}
}

func TestClientClientErrorFailsImmediately(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error": "invalid_token"}`)
	}))
	defer server.Close()

	_, err := fastClient(server.URL).SleepRange(context.Background(), time.Now().Add(-time.Hour), time.Now())
	if err == nil {
		t.Fatal("expected error for 401")
	}
	if calls.Load() != 1 {
		t.Fatalf("4xx must not retry, got %d calls", calls.Load())
	}
	var apiErr *apiError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("expected apiError with status 401, got %v", err)
	}
}

func TestClientFollowsPagination(t *testing.T) {
	var tokens []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("nextToken")
		tokens = append(tokens, token)
		switch token {
		case "":
			fmt.Fprint(w, `{"records": [{"id": "s1", "score_state": "SCORED"}], "next_token": "page2"}`)
		case "page2":
			fmt.Fprint(w, `{"records": [{"id": "s2", "score_state": "SCORED"}], "next_token": ""}`)
		default:
			t.Errorf("unexpected nextToken %q", token)
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer server.Close()

	records, err := fastClient(server.URL).SleepRange(context.Background(), time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("range failed: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected two records across pages, got %d", len(records))
	}
	if records[0].ID.String() != "s1" || records[1].ID.String() != "s2" {
		t.Fatalf("unexpected record order: %v, %v", records[0].ID, records[1].ID)
	}
	if len(tokens) != 2 || tokens[1] != "page2" {
		t.Fatalf("expected continuation token on second call, got %v", tokens)
	}
}

func TestClientRangeRecordsKeepRawPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"records": [{"id": 12345, "score_state": "SCORED", "vendor_extra": "kept"}], "next_token": null}`)
	}))
	defer server.Close()

	records, err := fastClient(server.URL).SleepRange(context.Background(), time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("range failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected one record, got %d", len(records))
	}
	// Numeric v1 ids decode through the flexible id.
	if records[0].ID.String() != "12345" {
		t.Fatalf("expected numeric id as string, got %q", records[0].ID.String())
	}
	raw := rawPayload(records[0].raw)
	if raw["vendor_extra"] != "kept" {
		t.Fatalf("expected raw payload preserved, got %v", raw)
	}
}

func TestClientSleepByID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/activity/sleep/sleep-uuid-1" {
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{"id": "sleep-uuid-1", "nap": false, "score_state": "SCORED", "timezone_offset": "-05:00"}`)
	}))
	defer server.Close()

	record, err := fastClient(server.URL).SleepByID(context.Background(), "sleep-uuid-1")
	if err != nil {
		t.Fatalf("sleep by id failed: %v", err)
	}
	if record.ID.String() != "sleep-uuid-1" || record.TimezoneOffset != "-05:00" {
		t.Fatalf("unexpected record: %+v", record)
	}
	if len(record.raw) == 0 {
		t.Fatal("expected raw payload on single record fetch")
	}
}

func TestClientCycleRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cycle" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"records": [{"id": 999, "score_state": "SCORED", "start": "2026-03-01T04:00:00Z", "end": null}], "next_token": null}`)
	}))
	defer server.Close()

	records, err := fastClient(server.URL).CycleRange(context.Background(), time.Now().Add(-time.Hour), time.Now())
	if err != nil {
		t.Fatalf("cycle range failed: %v", err)
	}
	if len(records) != 1 || records[0].ID.String() != "999" {
		t.Fatalf("unexpected cycles: %+v", records)
	}
	if records[0].End != nil {
		t.Fatalf("expected open cycle, got end %v", records[0].End)
	}
}

func TestClientContextCancellationStopsRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(ClientOptions{
		BaseURL:     server.URL,
		AccessToken: "t",
		MaxRetries:  5,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := client.SleepRange(ctx, time.Now().Add(-time.Hour), time.Now()); err == nil {
		t.Fatal("expected context error")
	}
}

func TestRetryDelayBackoff(t *testing.T) {
	client := NewClient(ClientOptions{
		AccessToken: "t",
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	})
	if d := client.retryDelay(1, ""); d != 100*time.Millisecond {
		t.Fatalf("attempt 1: got %v", d)
	}
	if d := client.retryDelay(2, ""); d != 200*time.Millisecond {
		t.Fatalf("attempt 2: got %v", d)
	}
	if d := client.retryDelay(10, ""); d != 5*time.Second {
		t.Fatalf("attempt 10 must cap at max delay, got %v", d)
	}
	if d := client.retryDelay(1, "2"); d != 2*time.Second {
		t.Fatalf("retry-after must win when within the cap, got %v", d)
	}
	if d := client.retryDelay(1, "30"); d != 5*time.Second {
		t.Fatalf("retry-after must cap at max delay, got %v", d)
	}
	if d := client.retryDelay(1, "garbage"); d != 100*time.Millisecond {
		t.Fatalf("unparseable retry-after falls back to backoff, got %v", d)
	}
}
