// Package config centralises environment-driven configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config captures runtime configuration. Vendor credentials may be absent:
// the integration then reports itself unconfigured and is skipped everywhere
// instead of failing requests at runtime.
type Config struct {
	HTTPAddress string `validate:"required"`
	LogLevel    string
	LogJSON     bool

	// DocStoreDSN selects the shared document store backend by scheme
	// (postgres://... or memory://).
	DocStoreDSN string `validate:"required"`

	WhoopClientID      string
	WhoopClientSecret  string
	WhoopWebhookSecret string
	WhoopUserID        int64
	WhoopRedirectURI   string

	// SyncSecret guards the manual sync endpoint when set.
	SyncSecret string

	NotifyEndpoint  string
	NotifyAuthToken string

	VendorMaxRetries int           `validate:"gte=0,lte=10"`
	VendorBaseDelay  time.Duration `validate:"gte=0"`

	// SyncWebhooks completes the resolve/store/notify chain before the
	// webhook response instead of fast-acking.
	SyncWebhooks bool
}

// Load reads environment variables, applying local-dev defaults.
func Load() Config {
	return Config{
		HTTPAddress: getEnv("WEARSYNC_ADDR", ":8080"),
		LogLevel:    getEnv("WEARSYNC_LOG_LEVEL", "info"),
		LogJSON:     getBoolEnv("WEARSYNC_LOG_JSON", true),

		DocStoreDSN: getEnv("WEARSYNC_DOCSTORE_DSN", "memory://"),

		WhoopClientID:      getEnv("WHOOP_CLIENT_ID", ""),
		WhoopClientSecret:  getEnv("WHOOP_CLIENT_SECRET", ""),
		WhoopWebhookSecret: getEnv("WHOOP_WEBHOOK_SECRET", ""),
		WhoopUserID:        getInt64Env("WHOOP_USER_ID", 0),
		WhoopRedirectURI:   getEnv("WHOOP_REDIRECT_URI", ""),

		SyncSecret: getEnv("WEARSYNC_SYNC_SECRET", ""),

		NotifyEndpoint:  getEnv("WEARSYNC_NOTIFY_ENDPOINT", ""),
		NotifyAuthToken: getEnv("WEARSYNC_NOTIFY_TOKEN", ""),

		VendorMaxRetries: getIntEnv("WEARSYNC_VENDOR_MAX_RETRIES", 4),
		VendorBaseDelay:  getDurationEnv("WEARSYNC_VENDOR_BASE_DELAY", 500*time.Millisecond),

		SyncWebhooks: getBoolEnv("WEARSYNC_SYNC_WEBHOOKS", false),
	}
}

// Validate fails fast on operator mistakes. A client id without its secret
// (or the reverse) is a misconfiguration, not an unconfigured vendor.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if (c.WhoopClientID == "") != (c.WhoopClientSecret == "") {
		return fmt.Errorf("WHOOP_CLIENT_ID and WHOOP_CLIENT_SECRET must be set together")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getInt64Env(key string, fallback int64) int64 {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
