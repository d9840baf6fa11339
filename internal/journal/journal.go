// Package journal performs per-day read-modify-write against the shared
// document store. Each calendar day has one document whose structured header
// holds a namespace per vendor; freeform body text below the header belongs
// to the user and is never touched.
package journal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/peakform/wearsync/internal/docstore"
	"github.com/peakform/wearsync/internal/wearable"
)

// putAttempts bounds the re-read/re-write loop when a concurrent writer bumps
// the day document between our read and our conditional write.
const putAttempts = 3

var ErrTooMuchContention = errors.New("day document write kept conflicting")

type Journal struct {
	store docstore.Store
	log   zerolog.Logger
}

func New(store docstore.Store, log zerolog.Logger) *Journal {
	return &Journal{store: store, log: log}
}

// DayDocumentPath places a calendar day under its ISO week.
func DayDocumentPath(date string) (string, error) {
	parsed, err := time.Parse("2006-01-02", date)
	if err != nil {
		return "", fmt.Errorf("bad calendar date %q: %w", date, err)
	}
	year, week := parsed.ISOWeek()
	return fmt.Sprintf("journal/%d-W%02d/%s.md", year, week, date), nil
}

// StoreEvent merges one normalized webhook event into its day document.
// Re-delivery of the same payload writes the same values, so the operation
// is idempotent against duplicate webhook deliveries.
func (j *Journal) StoreEvent(ctx context.Context, event *wearable.WebhookEvent) error {
	if event == nil {
		return nil
	}
	switch event.Kind {
	case wearable.EventSleep:
		return j.StoreSleep(ctx, *event.Sleep)
	case wearable.EventRecovery:
		return j.StoreRecovery(ctx, *event.Recovery)
	case wearable.EventWorkout:
		return j.StoreWorkout(ctx, *event.Workout)
	default:
		return fmt.Errorf("unknown event kind %q", event.Kind)
	}
}

func (j *Journal) StoreSleep(ctx context.Context, data wearable.SleepData) error {
	return j.mergeDay(ctx, data.Date, data.Source, func(ns map[string]any) {
		ns["sleep"] = sleepHeaderValue(data)
	})
}

func (j *Journal) StoreRecovery(ctx context.Context, data wearable.RecoveryData) error {
	return j.mergeDay(ctx, data.Date, data.Source, func(ns map[string]any) {
		ns["recovery"] = recoveryHeaderValue(data)
	})
}

// StoreWorkout upserts into the day's workout list, keyed by the vendor
// workout id so re-deliveries replace rather than append.
func (j *Journal) StoreWorkout(ctx context.Context, data wearable.WorkoutData) error {
	return j.mergeDay(ctx, data.Date, data.Source, func(ns map[string]any) {
		entry := workoutHeaderValue(data)
		existing, _ := ns["workouts"].([]any)
		for i, item := range existing {
			m, ok := item.(map[string]any)
			if ok && stringValue(m["id"]) == data.ID && data.ID != "" {
				existing[i] = entry
				ns["workouts"] = existing
				return
			}
		}
		ns["workouts"] = append(existing, entry)
	})
}

// mergeDay runs the read-modify-write cycle: load the day document (or start
// an empty one), apply the mutation to the vendor namespace, write back
// conditioned on the revision we read. A conflict means another instance
// wrote the same day in the meantime; re-read and reapply.
func (j *Journal) mergeDay(ctx context.Context, date, source string, mutate func(ns map[string]any)) error {
	path, err := DayDocumentPath(date)
	if err != nil {
		return err
	}
	for attempt := 0; attempt < putAttempts; attempt++ {
		header := map[string]any{}
		body := ""
		ifMatch := ""
		doc, err := j.store.Get(ctx, path)
		switch {
		case err == nil:
			parsed, parsedBody, parseErr := docstore.SplitDocument(doc.Content)
			if parseErr != nil {
				return fmt.Errorf("day document %s unreadable: %w", path, parseErr)
			}
			if parsed != nil {
				header = parsed
				body = parsedBody
			} else {
				body = doc.Content
			}
			ifMatch = doc.Revision
		case errors.Is(err, docstore.ErrNotFound):
			// first write of the day
		default:
			return err
		}

		ns, _ := header[source].(map[string]any)
		if ns == nil {
			ns = map[string]any{}
		}
		mutate(ns)
		header[source] = ns

		result, err := j.store.Put(ctx, path, docstore.ComposeDocument(header, body), ifMatch)
		if err != nil {
			return err
		}
		if result.Status == docstore.PutOK {
			return nil
		}
		j.log.Debug().Str("path", path).Int("attempt", attempt+1).
			Msg("day document revision moved, retrying merge")
	}
	return fmt.Errorf("%w: %s", ErrTooMuchContention, path)
}

func sleepHeaderValue(d wearable.SleepData) map[string]any {
	out := map[string]any{
		"duration_minutes": round1(d.DurationMinutes),
	}
	setIfSet(out, "id", d.ID)
	setIfNonZero(out, "efficiency_pct", d.Efficiency)
	setIfNonZero(out, "performance_pct", d.PerformancePct)
	setIfNonZero(out, "respiratory_rate", d.RespiratoryRate)
	setIfNonZero(out, "deep_sleep_minutes", round1(d.DeepSleepMinutes))
	setIfNonZero(out, "rem_sleep_minutes", round1(d.REMSleepMinutes))
	return out
}

func recoveryHeaderValue(d wearable.RecoveryData) map[string]any {
	out := map[string]any{
		"score": round1(d.Score),
	}
	setIfSet(out, "id", d.ID)
	setIfNonZero(out, "resting_heart_rate", d.RestingHeartRate)
	setIfNonZero(out, "hrv_milli", round1(d.HRVMilli))
	setIfNonZero(out, "spo2_pct", round1(d.SpO2Pct))
	setIfNonZero(out, "skin_temp_celsius", round1(d.SkinTempCelsius))
	return out
}

func workoutHeaderValue(d wearable.WorkoutData) map[string]any {
	out := map[string]any{
		"sport":            d.Sport,
		"duration_minutes": round1(d.DurationMinutes),
	}
	setIfSet(out, "id", d.ID)
	setIfNonZero(out, "strain", round1(d.Strain))
	setIfNonZero(out, "avg_heart_rate", d.AverageHeartRate)
	setIfNonZero(out, "max_heart_rate", d.MaxHeartRate)
	setIfNonZero(out, "energy_kcal", round1(d.EnergyKcal))
	setIfNonZero(out, "distance_meters", round1(d.DistanceMeters))
	return out
}

func setIfNonZero(m map[string]any, key string, value float64) {
	if value != 0 {
		m[key] = value
	}
}

func setIfSet(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}
