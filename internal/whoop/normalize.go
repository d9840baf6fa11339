package whoop

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/peakform/wearsync/internal/wearable"
)

const kilojoulePerKcal = 4.184

// localDate derives the user's local calendar day from a UTC instant and
// the vendor timezone offset ("-05:00"). A reading taken shortly after
// local midnight belongs to that local day even when its UTC day differs.
func localDate(instant time.Time, offset string) string {
	zone, err := parseTimezoneOffset(offset)
	if err != nil {
		return instant.UTC().Format("2006-01-02")
	}
	return instant.In(zone).Format("2006-01-02")
}

func parseTimezoneOffset(offset string) (*time.Location, error) {
	offset = strings.TrimSpace(offset)
	if offset == "" || offset == "Z" {
		return time.UTC, nil
	}
	sign := 1
	switch offset[0] {
	case '+':
		offset = offset[1:]
	case '-':
		sign = -1
		offset = offset[1:]
	}
	hoursText, minutesText, found := strings.Cut(offset, ":")
	if !found {
		return nil, fmt.Errorf("bad timezone offset %q", offset)
	}
	hours, err := strconv.Atoi(hoursText)
	if err != nil {
		return nil, fmt.Errorf("bad timezone offset %q", offset)
	}
	minutes, err := strconv.Atoi(minutesText)
	if err != nil {
		return nil, fmt.Errorf("bad timezone offset %q", offset)
	}
	seconds := sign * (hours*3600 + minutes*60)
	return time.FixedZone(offset, seconds), nil
}

// normalizeSleep maps a vendor sleep record to the shared shape. Naps and
// records without final scores yield no data.
func normalizeSleep(record sleepRecord) (wearable.SleepData, bool) {
	if record.Nap || record.ScoreState != scoreStateScored || record.Score == nil {
		return wearable.SleepData{}, false
	}
	stages := record.Score.StageSummary
	return wearable.SleepData{
		ID:               record.ID.String(),
		Source:           Slug,
		Date:             localDate(record.Start, record.TimezoneOffset),
		DurationMinutes:  milliToMinutes(stages.TotalInBedTimeMilli - stages.TotalAwakeTimeMilli),
		Efficiency:       record.Score.SleepEfficiencyPercentage,
		PerformancePct:   record.Score.SleepPerformancePercentage,
		RespiratoryRate:  record.Score.RespiratoryRate,
		DeepSleepMinutes: milliToMinutes(stages.TotalSlowWaveSleepTimeMilli),
		REMSleepMinutes:  milliToMinutes(stages.TotalRemSleepTimeMilli),
		Raw:              rawPayload(record.raw),
	}, true
}

// normalizeRecovery dates the recovery by the sleep it scores when that
// sleep is known, falling back to the record's own creation instant.
func normalizeRecovery(record recoveryRecord, sleep *sleepRecord) (wearable.RecoveryData, bool) {
	if record.ScoreState != scoreStateScored || record.Score == nil {
		return wearable.RecoveryData{}, false
	}
	date := localDate(record.CreatedAt, "")
	if sleep != nil {
		date = localDate(sleep.Start, sleep.TimezoneOffset)
	}
	return wearable.RecoveryData{
		ID:               record.SleepID.String(),
		Source:           Slug,
		Date:             date,
		Score:            record.Score.RecoveryScore,
		RestingHeartRate: record.Score.RestingHeartRate,
		HRVMilli:         record.Score.HrvRmssdMilli,
		SpO2Pct:          record.Score.Spo2Percentage,
		SkinTempCelsius:  record.Score.SkinTempCelsius,
		Raw:              rawPayload(record.raw),
	}, true
}

func normalizeWorkout(record workoutRecord) (wearable.WorkoutData, bool) {
	if record.ScoreState != scoreStateScored || record.Score == nil {
		return wearable.WorkoutData{}, false
	}
	return wearable.WorkoutData{
		ID:               record.ID.String(),
		Source:           Slug,
		Date:             localDate(record.Start, record.TimezoneOffset),
		Sport:            sportName(record.SportID),
		Strain:           record.Score.Strain,
		DurationMinutes:  record.End.Sub(record.Start).Minutes(),
		AverageHeartRate: record.Score.AverageHeartRate,
		MaxHeartRate:     record.Score.MaxHeartRate,
		EnergyKcal:       record.Score.Kilojoule / kilojoulePerKcal,
		DistanceMeters:   record.Score.DistanceMeter,
		Raw:              rawPayload(record.raw),
	}, true
}

func milliToMinutes(milli int64) float64 {
	return float64(milli) / 60000
}

func rawPayload(raw json.RawMessage) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
