// Package backfill pulls historical data for one calendar date across every
// configured vendor, as opposed to webhook-driven push delivery.
package backfill

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/peakform/wearsync/internal/journal"
	"github.com/peakform/wearsync/internal/observability"
	"github.com/peakform/wearsync/internal/wearable"
)

// VendorResult reports one vendor's outcome; a vendor's failure never
// aborts the rest of the run.
type VendorResult struct {
	Vendor   string `json:"vendor"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	Sleep    int    `json:"sleep"`
	Recovery int    `json:"recovery"`
	Workouts int    `json:"workouts"`
}

type Syncer struct {
	registry *wearable.Registry
	journal  *journal.Journal
	log      zerolog.Logger
}

func NewSyncer(registry *wearable.Registry, journal *journal.Journal, log zerolog.Logger) *Syncer {
	return &Syncer{registry: registry, journal: journal, log: log}
}

// SyncDate iterates configured integrations, pulling and storing sleep,
// recovery and workouts for one calendar date. Unconfigured vendors are
// silently skipped by way of the registry's configured view.
func (s *Syncer) SyncDate(ctx context.Context, date string) []VendorResult {
	integrations := s.registry.Configured()
	results := make([]VendorResult, 0, len(integrations))
	for _, integration := range integrations {
		result := s.syncVendor(ctx, integration, date)
		outcome := "ok"
		if !result.Success {
			outcome = "failed"
		}
		observability.RecordVendorSync(result.Vendor, outcome)
		results = append(results, result)
	}
	return results
}

func (s *Syncer) syncVendor(ctx context.Context, integration wearable.DeviceIntegration, date string) VendorResult {
	result := VendorResult{Vendor: integration.Slug()}
	vendorLog := s.log.With().Str("vendor", result.Vendor).Str("date", date).Logger()

	sleep, err := integration.FetchSleep(ctx, date)
	if err != nil {
		vendorLog.Error().Err(err).Msg("sleep backfill failed")
		result.Error = err.Error()
		return result
	}
	for _, data := range sleep {
		if err := s.journal.StoreSleep(ctx, data); err != nil {
			vendorLog.Error().Err(err).Msg("storing sleep failed")
			result.Error = err.Error()
			return result
		}
		result.Sleep++
	}

	recovery, err := integration.FetchRecovery(ctx, date)
	if err != nil {
		vendorLog.Error().Err(err).Msg("recovery backfill failed")
		result.Error = err.Error()
		return result
	}
	for _, data := range recovery {
		if err := s.journal.StoreRecovery(ctx, data); err != nil {
			vendorLog.Error().Err(err).Msg("storing recovery failed")
			result.Error = err.Error()
			return result
		}
		result.Recovery++
	}

	workouts, err := integration.FetchWorkouts(ctx, date)
	if err != nil {
		vendorLog.Error().Err(err).Msg("workout backfill failed")
		result.Error = err.Error()
		return result
	}
	for _, data := range workouts {
		if err := s.journal.StoreWorkout(ctx, data); err != nil {
			vendorLog.Error().Err(err).Msg("storing workout failed")
			result.Error = err.Error()
			return result
		}
		result.Workouts++
	}

	result.Success = true
	vendorLog.Info().Int("sleep", result.Sleep).Int("recovery", result.Recovery).
		Int("workouts", result.Workouts).Msg("vendor backfill complete")
	return result
}
