package whoop

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/peakform/wearsync/internal/wearable"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body,
// keyed with the shared webhook secret.
const SignatureHeader = "X-WHOOP-Signature"

// recovery webhooks reference the associated sleep id, not a recovery id;
// matching scans this many days back and forward around today.
const (
	recoverySearchDaysBack    = 2
	recoverySearchDaysForward = 1
)

// ErrBadWebhookPayload marks a delivery that failed structural validation.
var ErrBadWebhookPayload = errors.New("bad webhook payload")

const webhookSchemaText = `{
	"type": "object",
	"required": ["user_id", "id", "type"],
	"properties": {
		"user_id": {"type": "integer"},
		"id": {"type": ["integer", "string"]},
		"type": {"type": "string", "pattern": "^[a-z_]+\\.[a-z_]+$"},
		"trace_id": {"type": "string"}
	}
}`

var webhookSchema = mustCompileWebhookSchema()

func mustCompileWebhookSchema() *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(webhookSchemaText))
	if err != nil {
		panic(err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("webhook.json", doc); err != nil {
		panic(err)
	}
	return compiler.MustCompile("webhook.json")
}

var webhookTypeAllowList = map[string]struct{}{
	"sleep.updated":    {},
	"sleep.deleted":    {},
	"recovery.updated": {},
	"recovery.deleted": {},
	"workout.updated":  {},
	"workout.deleted":  {},
}

type webhookPayload struct {
	UserID  int64      `json:"user_id"`
	ID      flexibleID `json:"id"`
	Type    string     `json:"type"`
	TraceID string     `json:"trace_id"`
}

func (p webhookPayload) resource() string {
	resource, _, _ := strings.Cut(p.Type, ".")
	return resource
}

func (p webhookPayload) action() string {
	_, action, _ := strings.Cut(p.Type, ".")
	return action
}

// parseWebhookPayload runs structural validation: schema shape first, then
// the type allow-list. No network or cryptographic work happens here.
func parseWebhookPayload(body []byte) (webhookPayload, error) {
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return webhookPayload{}, fmt.Errorf("%w: not json: %v", ErrBadWebhookPayload, err)
	}
	if err := webhookSchema.Validate(instance); err != nil {
		return webhookPayload{}, fmt.Errorf("%w: %v", ErrBadWebhookPayload, err)
	}
	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return webhookPayload{}, fmt.Errorf("%w: %v", ErrBadWebhookPayload, err)
	}
	if _, ok := webhookTypeAllowList[payload.Type]; !ok {
		return webhookPayload{}, fmt.Errorf("%w: type %q not allowed", ErrBadWebhookPayload, payload.Type)
	}
	return payload, nil
}

func (i *Integration) ValidateWebhook(body []byte) error {
	_, err := parseWebhookPayload(body)
	return err
}

// VerifyWebhook checks the delivery signature and, when an allow-listed
// user is configured, the payload's user id. Without a configured secret
// the signature step is deliberately skipped.
func (i *Integration) VerifyWebhook(r *http.Request, body []byte) bool {
	if secret := i.opts.WebhookSecret; secret != "" {
		header := strings.TrimSpace(r.Header.Get(SignatureHeader))
		if header == "" {
			return false
		}
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		expected := hex.EncodeToString(mac.Sum(nil))
		if !hmac.Equal([]byte(strings.ToLower(header)), []byte(expected)) {
			return false
		}
	}
	if i.opts.AllowedUserID != 0 {
		payload, err := parseWebhookPayload(body)
		if err != nil || payload.UserID != i.opts.AllowedUserID {
			return false
		}
	}
	return true
}

// SignBody computes the signature a sender attaches. Used by setup tooling
// and tests.
func SignBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseWebhook resolves the authoritative resource referenced by a verified
// delivery and maps it to a normalized event. A nil event with nil error
// means the delivery is valid but carries nothing actionable: deletions,
// naps, unscored records, or a recovery whose sleep cannot be found.
func (i *Integration) ParseWebhook(ctx context.Context, body []byte) (*wearable.WebhookEvent, error) {
	payload, err := parseWebhookPayload(body)
	if err != nil {
		return nil, err
	}
	if payload.action() == "deleted" {
		i.log.Debug().Str("type", payload.Type).Str("trace_id", payload.TraceID).
			Msg("delete notification, nothing to ingest")
		return nil, nil
	}

	client, err := i.apiClient(ctx)
	if err != nil {
		return nil, err
	}
	switch payload.resource() {
	case "sleep":
		record, err := client.SleepByID(ctx, payload.ID.String())
		if err != nil {
			return nil, err
		}
		data, ok := normalizeSleep(record)
		if !ok {
			i.log.Debug().Str("sleep_id", payload.ID.String()).
				Msg("sleep is a nap or not yet scored, skipping")
			return nil, nil
		}
		return wearable.NewSleepEvent(data), nil

	case "recovery":
		return i.resolveRecovery(ctx, client, payload)

	case "workout":
		record, err := client.WorkoutByID(ctx, payload.ID.String())
		if err != nil {
			return nil, err
		}
		data, ok := normalizeWorkout(record)
		if !ok {
			i.log.Debug().Str("workout_id", payload.ID.String()).
				Msg("workout not yet scored, skipping")
			return nil, nil
		}
		return wearable.NewWorkoutEvent(data), nil
	}
	// unreachable behind the allow-list
	return nil, fmt.Errorf("%w: resource %q", ErrBadWebhookPayload, payload.resource())
}

// resolveRecovery finds the recovery associated with the sleep id carried
// by the webhook. The vendor exposes no recovery-by-id endpoint, so the
// search covers a small date window around today.
func (i *Integration) resolveRecovery(ctx context.Context, client *Client, payload webhookPayload) (*wearable.WebhookEvent, error) {
	now := i.nowFn().UTC()
	start := now.AddDate(0, 0, -recoverySearchDaysBack)
	end := now.AddDate(0, 0, recoverySearchDaysForward)
	records, err := client.RecoveryRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	sleepID := payload.ID.String()
	for _, record := range records {
		if record.SleepID.String() != sleepID {
			continue
		}
		var associated *sleepRecord
		if sleep, err := client.SleepByID(ctx, sleepID); err == nil {
			associated = &sleep
		}
		data, ok := normalizeRecovery(record, associated)
		if !ok {
			i.log.Debug().Str("sleep_id", sleepID).Msg("recovery not yet scored, skipping")
			return nil, nil
		}
		return wearable.NewRecoveryEvent(data), nil
	}
	i.log.Debug().Str("sleep_id", sleepID).Msg("no recovery matches sleep in search window")
	return nil, nil
}
