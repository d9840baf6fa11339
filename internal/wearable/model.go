package wearable

import "time"

// TokenSet holds one vendor's OAuth credentials. Owned exclusively by the
// TokenCustodian; a zero ExpiresAt always reads as already expired.
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

func (t TokenSet) IsZero() bool {
	return t.AccessToken == "" && t.RefreshToken == "" && t.ExpiresAt.IsZero()
}

// SleepData is a vendor-agnostic sleep record. Date is the user's local
// calendar day derived from the vendor's timezone offset, not the UTC day.
type SleepData struct {
	ID               string
	Source           string
	Date             string
	DurationMinutes  float64
	Efficiency       float64
	PerformancePct   float64
	RespiratoryRate  float64
	DeepSleepMinutes float64
	REMSleepMinutes  float64
	Raw              map[string]any
}

// RecoveryData is a vendor-agnostic readiness/recovery record.
type RecoveryData struct {
	ID               string
	Source           string
	Date             string
	Score            float64
	RestingHeartRate float64
	HRVMilli         float64
	SpO2Pct          float64
	SkinTempCelsius  float64
	Raw              map[string]any
}

// WorkoutData is a vendor-agnostic workout record.
type WorkoutData struct {
	ID               string
	Source           string
	Date             string
	Sport            string
	Strain           float64
	DurationMinutes  float64
	AverageHeartRate float64
	MaxHeartRate     float64
	EnergyKcal       float64
	DistanceMeters   float64
	Raw              map[string]any
}

// EventKind discriminates WebhookEvent.
type EventKind string

const (
	EventSleep    EventKind = "sleep"
	EventRecovery EventKind = "recovery"
	EventWorkout  EventKind = "workout"
)

// WebhookEvent is the tagged union crossing from webhook normalization into
// storage: exactly one of the payload fields is set, matching Kind.
type WebhookEvent struct {
	Kind     EventKind
	Sleep    *SleepData
	Recovery *RecoveryData
	Workout  *WorkoutData
}

func NewSleepEvent(data SleepData) *WebhookEvent {
	return &WebhookEvent{Kind: EventSleep, Sleep: &data}
}

func NewRecoveryEvent(data RecoveryData) *WebhookEvent {
	return &WebhookEvent{Kind: EventRecovery, Recovery: &data}
}

func NewWorkoutEvent(data WorkoutData) *WebhookEvent {
	return &WebhookEvent{Kind: EventWorkout, Workout: &data}
}

// Source returns the vendor id carried by the wrapped record.
func (e *WebhookEvent) Source() string {
	switch e.Kind {
	case EventSleep:
		return e.Sleep.Source
	case EventRecovery:
		return e.Recovery.Source
	case EventWorkout:
		return e.Workout.Source
	}
	return ""
}

// Date returns the local calendar day of the wrapped record.
func (e *WebhookEvent) Date() string {
	switch e.Kind {
	case EventSleep:
		return e.Sleep.Date
	case EventRecovery:
		return e.Recovery.Date
	case EventWorkout:
		return e.Workout.Date
	}
	return ""
}
