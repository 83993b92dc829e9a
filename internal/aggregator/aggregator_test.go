package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalstream/telemetry-pipeline/internal/vitals"
)

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return ts
}

func hrReading(v float64) map[string]vitals.Reading {
	return map[string]vitals.Reading{vitals.HeartRate: {Value: v, Unit: "bpm"}}
}

// TestRollingWindowsEvictOldestOutsideFifteenMinutes covers the scenario of
// 4 events over 16 minutes with heart rate values [70, 72, 74, 76]: the 15m
// window must have evicted the oldest sample (count=3), while the 1h window
// still holds all four (count=4).
func TestRollingWindowsEvictOldestOutsideFifteenMinutes(t *testing.T) {
	store := NewInMemory(0, 0, 0)
	ctx := context.Background()
	base := mustParse(t, "2026-01-01T00:00:00Z")
	values := []float64{70, 72, 74, 76}
	offsets := []time.Duration{0, 5 * time.Minute, 11 * time.Minute, 16 * time.Minute}

	for i, v := range values {
		require.NoError(t, store.RecordScored(ctx, "patient_1", hrReading(v), base.Add(offsets[i])))
	}

	summary, err := store.PatientSummary(ctx, "patient_1")
	require.NoError(t, err)

	hr := summary.RollingAverages[vitals.HeartRate]
	assert.Equal(t, 3, hr["15m"].Count, "the 00:00 sample should have fallen outside the 15m window by 00:16")
	assert.Equal(t, 4, hr["1h"].Count, "all four samples remain inside the 1h window")
}

func TestPatientSummaryReportsLastVitalsSnapshot(t *testing.T) {
	store := NewInMemory(0, 0, 0)
	ctx := context.Background()
	ts := mustParse(t, "2026-01-01T00:05:00Z")

	readings := map[string]vitals.Reading{
		vitals.HeartRate:        {Value: 80, Unit: "bpm"},
		vitals.OxygenSaturation: {Value: 97, Unit: "percent"},
	}
	require.NoError(t, store.RecordScored(ctx, "patient_1", readings, ts))

	summary, err := store.PatientSummary(ctx, "patient_1")
	require.NoError(t, err)
	assert.Equal(t, readings, summary.LastVitals)
	assert.Equal(t, "2026-01-01T00:05:00Z", summary.UpdatedAt)
}

func TestPatientSummaryUnknownPatientReturnsEmptySummary(t *testing.T) {
	store := NewInMemory(0, 0, 0)
	summary, err := store.PatientSummary(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Nil(t, summary.LastVitals)
	assert.Equal(t, 0, summary.RollingAverages[vitals.HeartRate]["15m"].Count)
}

func TestGlobalAlertsFallsBackToPreviousMinuteWhenCurrentIsEmpty(t *testing.T) {
	store := NewInMemory(0, 0, 0)
	ctx := context.Background()
	minuteOne := mustParse(t, "2026-01-01T00:10:00Z")

	require.NoError(t, store.RecordAlert(ctx, "critical", minuteOne))

	result, err := store.GlobalAlerts(ctx, minuteOne.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, result.AlertsPerMinute["critical"])

	result, err = store.GlobalAlerts(ctx, minuteOne.Add(90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, result.AlertsPerMinute["critical"], "falls back to the prior minute bucket")

	result, err = store.GlobalAlerts(ctx, minuteOne.Add(150*time.Second))
	require.NoError(t, err)
	assert.Equal(t, 0, result.AlertsPerMinute["critical"], "two minutes on, neither current nor previous bucket has entries")
}

func TestGlobalAlertsCurrentMinuteTakesPrecedenceOverPrevious(t *testing.T) {
	store := NewInMemory(0, 0, 0)
	ctx := context.Background()
	minuteOne := mustParse(t, "2026-01-01T00:10:00Z")
	minuteTwo := minuteOne.Add(time.Minute)

	require.NoError(t, store.RecordAlert(ctx, "critical", minuteOne))
	require.NoError(t, store.RecordAlert(ctx, "critical", minuteTwo))
	require.NoError(t, store.RecordAlert(ctx, "critical", minuteTwo))

	result, err := store.GlobalAlerts(ctx, minuteTwo)
	require.NoError(t, err)
	assert.Equal(t, 2, result.AlertsPerMinute["critical"])
}

func TestRecentAlertsSumsAcrossWindowMinutes(t *testing.T) {
	store := NewInMemory(0, 0, 0)
	ctx := context.Background()
	base := mustParse(t, "2026-01-01T00:00:00Z")

	require.NoError(t, store.RecordAlert(ctx, "high", base))
	require.NoError(t, store.RecordAlert(ctx, "high", base.Add(time.Minute)))
	require.NoError(t, store.RecordAlert(ctx, "high", base.Add(2*time.Minute)))
	require.NoError(t, store.RecordAlert(ctx, "high", base.Add(10*time.Minute)))

	totals, err := store.RecentAlerts(ctx, base.Add(2*time.Minute), 5)
	require.NoError(t, err)
	assert.Equal(t, 3, totals["high"], "only the three alerts within the trailing 5-minute window count")
}
