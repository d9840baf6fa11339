package whoop

import (
	"encoding/json"
	"testing"
	"time"
)

func TestLocalDateUsesVendorOffset(t *testing.T) {
	// 02:00 UTC is 21:00 the previous day in Eastern time.
	instant := time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC)
	if got := localDate(instant, "-05:00"); got != "2026-03-01" {
		t.Fatalf("expected 2026-03-01, got %s", got)
	}
	if got := localDate(instant, "+09:00"); got != "2026-03-02" {
		t.Fatalf("expected 2026-03-02, got %s", got)
	}
	if got := localDate(instant, ""); got != "2026-03-02" {
		t.Fatalf("empty offset must fall back to UTC, got %s", got)
	}
	if got := localDate(instant, "garbage"); got != "2026-03-02" {
		t.Fatalf("bad offset must fall back to UTC, got %s", got)
	}
}

func scoredSleep() sleepRecord {
	return sleepRecord{
		ID:             "sleep-1",
		Start:          time.Date(2026, 3, 2, 4, 10, 0, 0, time.UTC),
		End:            time.Date(2026, 3, 2, 11, 40, 0, 0, time.UTC),
		TimezoneOffset: "-05:00",
		ScoreState:     scoreStateScored,
		Score: &sleepScore{
			StageSummary: sleepStageSummary{
				TotalInBedTimeMilli:         8 * 60 * 60 * 1000,
				TotalAwakeTimeMilli:         30 * 60 * 1000,
				TotalSlowWaveSleepTimeMilli: 90 * 60 * 1000,
				TotalRemSleepTimeMilli:      120 * 60 * 1000,
			},
			RespiratoryRate:            15.2,
			SleepPerformancePercentage: 88,
			SleepEfficiencyPercentage:  93.5,
		},
	}
}

func TestNormalizeSleep(t *testing.T) {
	record := scoredSleep()
	record.setRawMessage(json.RawMessage(`{"id": "sleep-1", "nap": false}`))

	data, ok := normalizeSleep(record)
	if !ok {
		t.Fatal("expected scored sleep to normalize")
	}
	if data.ID != "sleep-1" || data.Source != Slug {
		t.Fatalf("unexpected identity: %+v", data)
	}
	// 04:10 UTC at -05:00 is 23:10 the previous evening.
	if data.Date != "2026-03-01" {
		t.Fatalf("expected local date 2026-03-01, got %s", data.Date)
	}
	// In-bed minus awake: 8h minus 30m.
	if data.DurationMinutes != 450 {
		t.Fatalf("expected 450 minutes, got %v", data.DurationMinutes)
	}
	if data.DeepSleepMinutes != 90 || data.REMSleepMinutes != 120 {
		t.Fatalf("unexpected stage minutes: %+v", data)
	}
	if data.Efficiency != 93.5 || data.PerformancePct != 88 || data.RespiratoryRate != 15.2 {
		t.Fatalf("unexpected score fields: %+v", data)
	}
	if data.Raw["id"] != "sleep-1" {
		t.Fatalf("expected raw payload carried through, got %v", data.Raw)
	}

	// Normalization is pure: the same record yields the same data.
	again, ok := normalizeSleep(record)
	if !ok || again.Date != data.Date || again.DurationMinutes != data.DurationMinutes {
		t.Fatalf("repeat normalization diverged: %+v vs %+v", data, again)
	}
}

func TestNormalizeSleepFiltersNaps(t *testing.T) {
	record := scoredSleep()
	record.Nap = true
	if _, ok := normalizeSleep(record); ok {
		t.Fatal("naps must not normalize")
	}
}

func TestNormalizeSleepFiltersUnscored(t *testing.T) {
	record := scoredSleep()
	record.ScoreState = scoreStatePending
	if _, ok := normalizeSleep(record); ok {
		t.Fatal("pending scores must not normalize")
	}
	record = scoredSleep()
	record.ScoreState = scoreStateUnscored
	if _, ok := normalizeSleep(record); ok {
		t.Fatal("unscorable records must not normalize")
	}
	record = scoredSleep()
	record.Score = nil
	if _, ok := normalizeSleep(record); ok {
		t.Fatal("missing score body must not normalize")
	}
}

func TestNormalizeRecoveryDatedByAssociatedSleep(t *testing.T) {
	sleep := scoredSleep()
	record := recoveryRecord{
		SleepID:    "sleep-1",
		CreatedAt:  time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		ScoreState: scoreStateScored,
		Score: &recoveryScore{
			RecoveryScore:    67,
			RestingHeartRate: 52,
			HrvRmssdMilli:    48.3,
			Spo2Percentage:   96.5,
			SkinTempCelsius:  33.1,
		},
	}

	data, ok := normalizeRecovery(record, &sleep)
	if !ok {
		t.Fatal("expected scored recovery to normalize")
	}
	if data.ID != "sleep-1" {
		t.Fatalf("recovery id must be the sleep id, got %s", data.ID)
	}
	// Dated by the sleep's local start, not the recovery's creation day.
	if data.Date != "2026-03-01" {
		t.Fatalf("expected sleep-derived date 2026-03-01, got %s", data.Date)
	}
	if data.Score != 67 || data.RestingHeartRate != 52 || data.HRVMilli != 48.3 {
		t.Fatalf("unexpected score fields: %+v", data)
	}

	// Without the sleep the creation instant dates the record.
	data, ok = normalizeRecovery(record, nil)
	if !ok {
		t.Fatal("expected scored recovery to normalize")
	}
	if data.Date != "2026-03-02" {
		t.Fatalf("expected creation date 2026-03-02, got %s", data.Date)
	}
}

func TestNormalizeRecoveryFiltersUnscored(t *testing.T) {
	record := recoveryRecord{SleepID: "s", ScoreState: scoreStatePending}
	if _, ok := normalizeRecovery(record, nil); ok {
		t.Fatal("pending recovery must not normalize")
	}
}

func TestNormalizeWorkout(t *testing.T) {
	record := workoutRecord{
		ID:             "workout-1",
		SportID:        0,
		Start:          time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC),
		End:            time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC),
		TimezoneOffset: "-05:00",
		ScoreState:     scoreStateScored,
		Score: &workoutScore{
			Strain:           14.2,
			AverageHeartRate: 152,
			MaxHeartRate:     181,
			Kilojoule:        2092,
			DistanceMeter:    10000,
		},
	}

	data, ok := normalizeWorkout(record)
	if !ok {
		t.Fatal("expected scored workout to normalize")
	}
	if data.Sport != "Running" {
		t.Fatalf("expected Running for sport 0, got %s", data.Sport)
	}
	if data.Date != "2026-03-01" {
		t.Fatalf("expected 2026-03-01, got %s", data.Date)
	}
	if data.DurationMinutes != 60 {
		t.Fatalf("expected 60 minutes, got %v", data.DurationMinutes)
	}
	// 2092 kJ is 500 kcal.
	if data.EnergyKcal != 2092/4.184 {
		t.Fatalf("expected kilojoules converted to kcal, got %v", data.EnergyKcal)
	}
	if data.DistanceMeters != 10000 || data.Strain != 14.2 {
		t.Fatalf("unexpected fields: %+v", data)
	}
}

func TestSportNameFallback(t *testing.T) {
	if got := sportName(1); got != "Cycling" {
		t.Fatalf("expected Cycling, got %s", got)
	}
	if got := sportName(424242); got != "Sport 424242" {
		t.Fatalf("expected generated label for unknown code, got %s", got)
	}
}

func TestFlexibleIDDecoding(t *testing.T) {
	var record sleepRecord
	if err := json.Unmarshal([]byte(`{"id": 98765}`), &record); err != nil {
		t.Fatalf("numeric id failed: %v", err)
	}
	if record.ID.String() != "98765" {
		t.Fatalf("expected 98765, got %q", record.ID.String())
	}
	if err := json.Unmarshal([]byte(`{"id": "uuid-abc"}`), &record); err != nil {
		t.Fatalf("string id failed: %v", err)
	}
	if record.ID.String() != "uuid-abc" {
		t.Fatalf("expected uuid-abc, got %q", record.ID.String())
	}
	if err := json.Unmarshal([]byte(`{"id": true}`), &record); err == nil {
		t.Fatal("expected error for boolean id")
	}
}
