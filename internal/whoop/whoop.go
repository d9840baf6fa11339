// Package whoop integrates the WHOOP platform: OAuth credential custody,
// the rate-limited REST client, and webhook verification/normalization.
package whoop

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/peakform/wearsync/internal/docstore"
	"github.com/peakform/wearsync/internal/wearable"
)

const (
	Name = "WHOOP"
	Slug = "whoop"

	defaultAuthURL  = "https://api.prod.whoop.com/oauth/oauth2/auth"
	defaultTokenURL = "https://api.prod.whoop.com/oauth/oauth2/token"

	oauthScopes = "offline read:sleep read:recovery read:workout read:profile"
)

type Options struct {
	ClientID      string
	ClientSecret  string
	WebhookSecret string
	// AllowedUserID rejects webhook deliveries for any other vendor user
	// when non-zero.
	AllowedUserID int64

	Store      docstore.Store
	HTTPClient *http.Client
	Logger     zerolog.Logger

	// Overridable in tests.
	APIBaseURL string
	AuthURL    string
	TokenURL   string
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Now        func() time.Time
}

type Integration struct {
	opts      Options
	custodian *wearable.TokenCustodian
	log       zerolog.Logger
	nowFn     func() time.Time
}

var _ wearable.DeviceIntegration = (*Integration)(nil)

func New(opts Options) *Integration {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 20 * time.Second}
	}
	if strings.TrimSpace(opts.AuthURL) == "" {
		opts.AuthURL = defaultAuthURL
	}
	if strings.TrimSpace(opts.TokenURL) == "" {
		opts.TokenURL = defaultTokenURL
	}
	nowFn := opts.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	integration := &Integration{opts: opts, log: opts.Logger, nowFn: nowFn}
	integration.custodian = wearable.NewTokenCustodian(wearable.CustodianOptions{
		Slug:    Slug,
		Store:   opts.Store,
		Refresh: integration.refreshExchange,
		Logger:  opts.Logger,
		Now:     nowFn,
	})
	return integration
}

func (i *Integration) Name() string { return Name }
func (i *Integration) Slug() string { return Slug }

func (i *Integration) IsConfigured() bool {
	return strings.TrimSpace(i.opts.ClientID) != "" && strings.TrimSpace(i.opts.ClientSecret) != ""
}

// Custodian exposes the credential custodian for wiring and tests.
func (i *Integration) Custodian() *wearable.TokenCustodian {
	return i.custodian
}

func (i *Integration) AuthURL(redirectURI string) (string, error) {
	if !i.IsConfigured() {
		return "", wearable.ErrNotConfigured
	}
	query := url.Values{}
	query.Set("client_id", i.opts.ClientID)
	query.Set("redirect_uri", redirectURI)
	query.Set("response_type", "code")
	query.Set("scope", oauthScopes)
	return i.opts.AuthURL + "?" + query.Encode(), nil
}

func (i *Integration) ExchangeCode(ctx context.Context, code, redirectURI string) (wearable.TokenSet, error) {
	if !i.IsConfigured() {
		return wearable.TokenSet{}, wearable.ErrNotConfigured
	}
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	tokens, err := i.tokenRequest(ctx, form)
	if err != nil {
		return wearable.TokenSet{}, err
	}
	if err := i.custodian.PersistTokens(ctx, tokens); err != nil {
		return wearable.TokenSet{}, err
	}
	return tokens, nil
}

func (i *Integration) Refresh(ctx context.Context) (wearable.TokenSet, error) {
	return i.custodian.EnsureFresh(ctx)
}

// refreshExchange is the raw vendor call handed to the custodian; the
// rotate-and-reread race handling lives there, not here.
func (i *Integration) refreshExchange(ctx context.Context, refreshToken string) (wearable.TokenSet, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("scope", "offline")
	return i.tokenRequest(ctx, form)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

func (i *Integration) tokenRequest(ctx context.Context, form url.Values) (wearable.TokenSet, error) {
	if !i.IsConfigured() {
		return wearable.TokenSet{}, wearable.ErrNotConfigured
	}
	form.Set("client_id", i.opts.ClientID)
	form.Set("client_secret", i.opts.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.opts.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return wearable.TokenSet{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := i.opts.HTTPClient.Do(req)
	if err != nil {
		return wearable.TokenSet{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return wearable.TokenSet{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return wearable.TokenSet{}, fmt.Errorf("whoop token endpoint: status=%d body=%s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return wearable.TokenSet{}, fmt.Errorf("whoop token endpoint: bad response: %w", err)
	}
	if parsed.AccessToken == "" {
		return wearable.TokenSet{}, fmt.Errorf("whoop token endpoint: empty access token")
	}
	return wearable.TokenSet{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		ExpiresAt:    i.nowFn().Add(time.Duration(parsed.ExpiresIn) * time.Second),
	}, nil
}

// apiClient builds a REST client around a token guaranteed fresh for at
// least the custodian's safety window.
func (i *Integration) apiClient(ctx context.Context) (*Client, error) {
	tokens, err := i.custodian.EnsureFresh(ctx)
	if err != nil {
		return nil, err
	}
	return NewClient(ClientOptions{
		BaseURL:     i.opts.APIBaseURL,
		AccessToken: tokens.AccessToken,
		HTTPClient:  i.opts.HTTPClient,
		MaxRetries:  i.opts.MaxRetries,
		BaseDelay:   i.opts.BaseDelay,
		MaxDelay:    i.opts.MaxDelay,
	}), nil
}

// fetchWindow pads a calendar day by a day on both sides; records are dated
// by the user's local offset, which an instant-based range query cannot
// express directly.
func fetchWindow(date string) (time.Time, time.Time, error) {
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad calendar date %q: %w", date, err)
	}
	return day.AddDate(0, 0, -1), day.AddDate(0, 0, 2), nil
}

func (i *Integration) FetchSleep(ctx context.Context, date string) ([]wearable.SleepData, error) {
	start, end, err := fetchWindow(date)
	if err != nil {
		return nil, err
	}
	client, err := i.apiClient(ctx)
	if err != nil {
		return nil, err
	}
	records, err := client.SleepRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	var out []wearable.SleepData
	for _, record := range records {
		if data, ok := normalizeSleep(record); ok && data.Date == date {
			out = append(out, data)
		}
	}
	return out, nil
}

func (i *Integration) FetchRecovery(ctx context.Context, date string) ([]wearable.RecoveryData, error) {
	start, end, err := fetchWindow(date)
	if err != nil {
		return nil, err
	}
	client, err := i.apiClient(ctx)
	if err != nil {
		return nil, err
	}
	records, err := client.RecoveryRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	sleeps, err := client.SleepRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	sleepsByID := make(map[string]sleepRecord, len(sleeps))
	for _, sleep := range sleeps {
		sleepsByID[sleep.ID.String()] = sleep
	}
	var out []wearable.RecoveryData
	for _, record := range records {
		var associated *sleepRecord
		if sleep, ok := sleepsByID[record.SleepID.String()]; ok {
			associated = &sleep
		}
		if data, ok := normalizeRecovery(record, associated); ok && data.Date == date {
			out = append(out, data)
		}
	}
	return out, nil
}

func (i *Integration) FetchWorkouts(ctx context.Context, date string) ([]wearable.WorkoutData, error) {
	start, end, err := fetchWindow(date)
	if err != nil {
		return nil, err
	}
	client, err := i.apiClient(ctx)
	if err != nil {
		return nil, err
	}
	records, err := client.WorkoutRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	var out []wearable.WorkoutData
	for _, record := range records {
		if data, ok := normalizeWorkout(record); ok && data.Date == date {
			out = append(out, data)
		}
	}
	return out, nil
}
