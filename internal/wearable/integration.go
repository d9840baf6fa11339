package wearable

import (
	"context"
	"errors"
	"net/http"
)

var (
	// ErrIntegrationUnavailable marks an unrecoverable authorization failure:
	// the refresh exchange failed and the shared store held nothing usable.
	ErrIntegrationUnavailable = errors.New("integration unavailable")
	ErrNotConfigured          = errors.New("integration not configured")
)

// DeviceIntegration is the contract every wearable vendor satisfies. Nothing
// outside the registry may depend on a concrete vendor type.
type DeviceIntegration interface {
	// Name is the human-readable vendor name; Slug the stable id used in
	// routes, document namespaces and record sources.
	Name() string
	Slug() string

	// IsConfigured reports whether operator credentials are present.
	IsConfigured() bool

	// AuthURL builds the vendor authorization URL for the given redirect.
	AuthURL(redirectURI string) (string, error)
	// ExchangeCode trades an authorization code for a TokenSet.
	ExchangeCode(ctx context.Context, code, redirectURI string) (TokenSet, error)
	// Refresh rotates credentials through the vendor token endpoint and the
	// shared store, returning the tokens now considered authoritative.
	Refresh(ctx context.Context) (TokenSet, error)

	FetchSleep(ctx context.Context, date string) ([]SleepData, error)
	FetchRecovery(ctx context.Context, date string) ([]RecoveryData, error)
	FetchWorkouts(ctx context.Context, date string) ([]WorkoutData, error)

	// ValidateWebhook checks the structural shape of a raw delivery. It runs
	// before any cryptographic or network work and costs only a JSON parse.
	ValidateWebhook(body []byte) error
	// VerifyWebhook checks the authenticity of a structurally valid delivery
	// (signature, allow-listed user). The body is passed separately because
	// the request stream has already been consumed by the caller.
	VerifyWebhook(r *http.Request, body []byte) bool
	// ParseWebhook resolves and normalizes a delivery. A nil event with a
	// nil error means "structurally valid but nothing to do".
	ParseWebhook(ctx context.Context, body []byte) (*WebhookEvent, error)
}
