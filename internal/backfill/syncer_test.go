package backfill

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peakform/wearsync/internal/docstore"
	"github.com/peakform/wearsync/internal/journal"
	"github.com/peakform/wearsync/internal/wearable"
)

// fakeVendor serves canned data or errors for one slug.
type fakeVendor struct {
	slug       string
	configured bool
	sleep      []wearable.SleepData
	recovery   []wearable.RecoveryData
	workouts   []wearable.WorkoutData
	fetchErr   error
}

func (f *fakeVendor) Name() string       { return f.slug }
func (f *fakeVendor) Slug() string       { return f.slug }
func (f *fakeVendor) IsConfigured() bool { return f.configured }

func (f *fakeVendor) AuthURL(string) (string, error) { return "", nil }

func (f *fakeVendor) ExchangeCode(context.Context, string, string) (wearable.TokenSet, error) {
	return wearable.TokenSet{}, nil
}

func (f *fakeVendor) Refresh(context.Context) (wearable.TokenSet, error) {
	return wearable.TokenSet{}, nil
}

func (f *fakeVendor) FetchSleep(ctx context.Context, date string) ([]wearable.SleepData, error) {
	return f.sleep, f.fetchErr
}

func (f *fakeVendor) FetchRecovery(ctx context.Context, date string) ([]wearable.RecoveryData, error) {
	return f.recovery, f.fetchErr
}

func (f *fakeVendor) FetchWorkouts(ctx context.Context, date string) ([]wearable.WorkoutData, error) {
	return f.workouts, f.fetchErr
}

func (f *fakeVendor) ValidateWebhook([]byte) error { return nil }

func (f *fakeVendor) VerifyWebhook(*http.Request, []byte) bool { return true }

func (f *fakeVendor) ParseWebhook(context.Context, []byte) (*wearable.WebhookEvent, error) {
	return nil, nil
}

func TestSyncDateStoresEverything(t *testing.T) {
	store := docstore.NewMemoryStore()
	registry := wearable.NewRegistry()
	registry.Register(&fakeVendor{
		slug:       "whoop",
		configured: true,
		sleep: []wearable.SleepData{
			{ID: "s1", Source: "whoop", Date: "2026-03-01", DurationMinutes: 450},
		},
		recovery: []wearable.RecoveryData{
			{ID: "s1", Source: "whoop", Date: "2026-03-01", Score: 67},
		},
		workouts: []wearable.WorkoutData{
			{ID: "w1", Source: "whoop", Date: "2026-03-01", Sport: "Running", DurationMinutes: 60},
			{ID: "w2", Source: "whoop", Date: "2026-03-01", Sport: "Yoga", DurationMinutes: 30},
		},
	})
	syncer := NewSyncer(registry, journal.New(store, zerolog.Nop()), zerolog.Nop())

	results := syncer.SyncDate(context.Background(), "2026-03-01")
	require.Len(t, results, 1)
	result := results[0]
	assert.True(t, result.Success)
	assert.Equal(t, "whoop", result.Vendor)
	assert.Equal(t, 1, result.Sleep)
	assert.Equal(t, 1, result.Recovery)
	assert.Equal(t, 2, result.Workouts)

	path, err := journal.DayDocumentPath("2026-03-01")
	require.NoError(t, err)
	doc, err := store.Get(context.Background(), path)
	require.NoError(t, err)
	header, _, err := docstore.SplitDocument(doc.Content)
	require.NoError(t, err)
	ns, ok := header["whoop"].(map[string]any)
	require.True(t, ok, "vendor namespace missing: %v", header)
	assert.Contains(t, ns, "sleep")
	assert.Contains(t, ns, "recovery")
	workouts, _ := ns["workouts"].([]any)
	assert.Len(t, workouts, 2)
}

func TestSyncDateSkipsUnconfiguredVendors(t *testing.T) {
	registry := wearable.NewRegistry()
	registry.Register(&fakeVendor{slug: "whoop", configured: false})
	syncer := NewSyncer(registry, journal.New(docstore.NewMemoryStore(), zerolog.Nop()), zerolog.Nop())

	results := syncer.SyncDate(context.Background(), "2026-03-01")
	assert.Empty(t, results)
}

func TestSyncDateIsolatesVendorFailures(t *testing.T) {
	registry := wearable.NewRegistry()
	registry.Register(&fakeVendor{slug: "broken", configured: true, fetchErr: errors.New("api down")})
	registry.Register(&fakeVendor{
		slug:       "whoop",
		configured: true,
		sleep: []wearable.SleepData{
			{ID: "s1", Source: "whoop", Date: "2026-03-01", DurationMinutes: 400},
		},
	})
	store := docstore.NewMemoryStore()
	syncer := NewSyncer(registry, journal.New(store, zerolog.Nop()), zerolog.Nop())

	results := syncer.SyncDate(context.Background(), "2026-03-01")
	require.Len(t, results, 2)

	byVendor := map[string]VendorResult{}
	for _, r := range results {
		byVendor[r.Vendor] = r
	}
	assert.False(t, byVendor["broken"].Success)
	assert.Contains(t, byVendor["broken"].Error, "api down")
	assert.True(t, byVendor["whoop"].Success)
	assert.Equal(t, 1, byVendor["whoop"].Sleep)

	// The healthy vendor's data landed despite the broken one.
	path, err := journal.DayDocumentPath("2026-03-01")
	require.NoError(t, err)
	_, err = store.Get(context.Background(), path)
	assert.NoError(t, err)
}
