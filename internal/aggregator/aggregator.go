// Package aggregator implements C7 (§4.7): rolling 15-minute/1-hour
// per-patient vital statistics, a last-known-vitals snapshot per patient,
// and per-minute alert counters by severity.
package aggregator

import (
	"context"
	"time"

	"github.com/vitalstream/telemetry-pipeline/internal/vitals"
)

// Default window durations (§6 Configuration surface defaults), used when a
// Store constructor is given a zero duration.
const (
	DefaultWindow15Min = 900 * time.Second
	DefaultWindow1Hour = 3600 * time.Second

	// DefaultAlertCounterTTL is the §3 "Alert minute counter" TTL.
	DefaultAlertCounterTTL = 120 * time.Second
)

// TrackedVitals are the three vitals the aggregator maintains rolling
// windows for (§4.7).
var TrackedVitals = [...]string{vitals.HeartRate, vitals.OxygenSaturation, vitals.Temperature}

// Severities are the four alert severities the global counter tracks
// (§4.7); note this excludes "ok", since no alert is ever raised at OK (P5).
var Severities = [...]string{"low", "medium", "high", "critical"}

// Stats is a windowless point-in-time summary of a rolling window's
// current contents (§4.7 "Report {count, average, min, max} on demand").
type Stats struct {
	Count   int      `json:"count"`
	Average *float64 `json:"average"`
	Min     *float64 `json:"min"`
	Max     *float64 `json:"max"`
}

// PatientSummary is the §4.8 patient_summary read-model shape.
type PatientSummary struct {
	LastVitals      map[string]vitals.Reading  `json:"last_vitals"`
	UpdatedAt       string                     `json:"updated_at,omitempty"`
	RollingAverages map[string]map[string]Stats `json:"rolling_averages"`
}

// GlobalAlerts is the §4.8 global_alerts read-model shape.
type GlobalAlerts struct {
	AlertsPerMinute map[string]int `json:"alerts_per_minute"`
	Timestamp       string         `json:"timestamp"`
}

// Store is the aggregate backend C7 writes to and C8 reads from.
type Store interface {
	// RecordScored inserts each of the given core-vital values into both
	// rolling windows for patientID, evicting samples older than each
	// window relative to eventTime, and refreshes the patient's
	// last_vitals snapshot.
	RecordScored(ctx context.Context, patientID string, readings map[string]vitals.Reading, eventTime time.Time) error

	// RecordAlert increments the per-minute counter for severity at
	// eventTime's minute bucket.
	RecordAlert(ctx context.Context, severity string, eventTime time.Time) error

	// PatientSummary reads the current rolling stats and last-known vitals
	// for a patient.
	PatientSummary(ctx context.Context, patientID string) (PatientSummary, error)

	// GlobalAlerts reads the current minute's counter per severity,
	// falling back to the previous minute when the current one has no
	// entries yet (§4.7).
	GlobalAlerts(ctx context.Context, now time.Time) (GlobalAlerts, error)

	// RecentAlerts sums the last windowMinutes of per-minute counters per
	// severity — the supplemented "?window=Nm" query parameter (§4
	// supplemented features), grounded on original_source's
	// get_recent_alerts_by_severity.
	RecentAlerts(ctx context.Context, now time.Time, windowMinutes int) (map[string]int, error)
}

func minuteBucket(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}

func minuteKey(t time.Time) string {
	return minuteBucket(t).Format(time.RFC3339)
}

func computeStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{Count: 0}
	}
	sum, min, max := 0.0, values[0], values[0]
	for _, v := range values {
		sum += v
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	avg := sum / float64(len(values))
	return Stats{Count: len(values), Average: &avg, Min: &min, Max: &max}
}
