package whoop

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Scoring states the vendor attaches to biometric records. Only SCORED
// records produce normalized data.
const (
	scoreStateScored   = "SCORED"
	scoreStatePending  = "PENDING_SCORE"
	scoreStateUnscored = "UNSCORABLE"
)

// flexibleID tolerates both API generations: v1 ids are numbers, v2 ids are
// opaque UUID strings.
type flexibleID string

func (id *flexibleID) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*id = ""
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = flexibleID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id is neither string nor number: %s", trimmed)
	}
	*id = flexibleID(n.String())
	return nil
}

func (id flexibleID) String() string {
	return string(id)
}

type sleepStageSummary struct {
	TotalInBedTimeMilli         int64 `json:"total_in_bed_time_milli"`
	TotalAwakeTimeMilli         int64 `json:"total_awake_time_milli"`
	TotalLightSleepTimeMilli    int64 `json:"total_light_sleep_time_milli"`
	TotalSlowWaveSleepTimeMilli int64 `json:"total_slow_wave_sleep_time_milli"`
	TotalRemSleepTimeMilli      int64 `json:"total_rem_sleep_time_milli"`
}

type sleepScore struct {
	StageSummary               sleepStageSummary `json:"stage_summary"`
	RespiratoryRate            float64           `json:"respiratory_rate"`
	SleepPerformancePercentage float64           `json:"sleep_performance_percentage"`
	SleepEfficiencyPercentage  float64           `json:"sleep_efficiency_percentage"`
}

type sleepRecord struct {
	raw json.RawMessage

	ID             flexibleID  `json:"id"`
	UserID         int64       `json:"user_id"`
	Start          time.Time   `json:"start"`
	End            time.Time   `json:"end"`
	TimezoneOffset string      `json:"timezone_offset"`
	Nap            bool        `json:"nap"`
	ScoreState     string      `json:"score_state"`
	Score          *sleepScore `json:"score"`
}

type recoveryScore struct {
	UserCalibrating  bool    `json:"user_calibrating"`
	RecoveryScore    float64 `json:"recovery_score"`
	RestingHeartRate float64 `json:"resting_heart_rate"`
	HrvRmssdMilli    float64 `json:"hrv_rmssd_milli"`
	Spo2Percentage   float64 `json:"spo2_percentage"`
	SkinTempCelsius  float64 `json:"skin_temp_celsius"`
}

type recoveryRecord struct {
	raw json.RawMessage

	CycleID    int64          `json:"cycle_id"`
	SleepID    flexibleID     `json:"sleep_id"`
	UserID     int64          `json:"user_id"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	ScoreState string         `json:"score_state"`
	Score      *recoveryScore `json:"score"`
}

type workoutScore struct {
	Strain           float64 `json:"strain"`
	AverageHeartRate float64 `json:"average_heart_rate"`
	MaxHeartRate     float64 `json:"max_heart_rate"`
	Kilojoule        float64 `json:"kilojoule"`
	DistanceMeter    float64 `json:"distance_meter"`
}

type workoutRecord struct {
	raw json.RawMessage

	ID             flexibleID    `json:"id"`
	UserID         int64         `json:"user_id"`
	SportID        int           `json:"sport_id"`
	Start          time.Time     `json:"start"`
	End            time.Time     `json:"end"`
	TimezoneOffset string        `json:"timezone_offset"`
	ScoreState     string        `json:"score_state"`
	Score          *workoutScore `json:"score"`
}

type cycleRecord struct {
	raw json.RawMessage

	ID             flexibleID `json:"id"`
	UserID         int64      `json:"user_id"`
	Start          time.Time  `json:"start"`
	End            *time.Time `json:"end"`
	TimezoneOffset string     `json:"timezone_offset"`
	ScoreState     string     `json:"score_state"`
}

func (r *sleepRecord) setRawMessage(m json.RawMessage)    { r.raw = m }
func (r *recoveryRecord) setRawMessage(m json.RawMessage) { r.raw = m }
func (r *workoutRecord) setRawMessage(m json.RawMessage)  { r.raw = m }
func (r *cycleRecord) setRawMessage(m json.RawMessage)    { r.raw = m }

// sportNames maps vendor numeric sport codes to display names. Unknown
// codes fall back to a generated label instead of failing.
var sportNames = map[int]string{
	-1:  "Activity",
	0:   "Running",
	1:   "Cycling",
	16:  "Baseball",
	17:  "Basketball",
	18:  "Rowing",
	22:  "Golf",
	24:  "Ice Hockey",
	27:  "Rugby",
	28:  "Sailing",
	29:  "Skiing",
	30:  "Soccer",
	33:  "Swimming",
	34:  "Tennis",
	36:  "Volleyball",
	42:  "Boxing",
	44:  "Weightlifting",
	45:  "Functional Fitness",
	48:  "Yoga",
	52:  "Hiking",
	63:  "Walking",
	66:  "Surfing",
	70:  "Meditation",
	71:  "Other",
	96:  "HIIT",
	97:  "Spin",
	98:  "Jiu Jitsu",
	101: "Pilates",
	123: "Strength Trainer",
	128: "Padel",
}

func sportName(sportID int) string {
	if name, ok := sportNames[sportID]; ok {
		return name
	}
	return "Sport " + strconv.Itoa(sportID)
}
