package rules

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalstream/telemetry-pipeline/internal/envelope"
	"github.com/vitalstream/telemetry-pipeline/internal/events"
	"github.com/vitalstream/telemetry-pipeline/internal/scorer/scorerpc"
	"github.com/vitalstream/telemetry-pipeline/internal/vitals"
)

type fakeScorer struct {
	resp *scorerpc.ScoreResponse
	err  error
}

func (f fakeScorer) Score(ctx context.Context, req *scorerpc.ScoreRequest) (*scorerpc.ScoreResponse, error) {
	return f.resp, f.err
}

// pingingFakeScorer additionally satisfies Pinger, so the circuit breaker
// can probe it for recovery instead of treating it as never recovering.
type pingingFakeScorer struct {
	fakeScorer
	pingHealthy bool
	pingCalls   int
	scoreCalls  int
}

func (f *pingingFakeScorer) Score(ctx context.Context, req *scorerpc.ScoreRequest) (*scorerpc.ScoreResponse, error) {
	f.scoreCalls++
	return f.fakeScorer.Score(ctx, req)
}

func (f *pingingFakeScorer) Ping(ctx context.Context) (*scorerpc.PingResponse, error) {
	f.pingCalls++
	return &scorerpc.PingResponse{Healthy: f.pingHealthy}, nil
}

func enrichedFixture(vitalsMap map[string]vitals.Reading) *events.Enriched {
	return &events.Enriched{
		Normalized: events.Normalized{
			Envelope:  envelope.New(envelope.Parent{}, envelope.EventTypeEnriched, "2026-01-01T00:00:00Z"),
			DeviceID:  "device_1",
			PatientID: "patient_1",
			Vitals:    vitalsMap,
		},
	}
}

func TestEngineProcessFeverScenarioEmitsWarningAlert(t *testing.T) {
	scorerStub := fakeScorer{resp: &scorerpc.ScoreResponse{
		Status:           scorerpc.StatusSuccess,
		OverallRiskScore: events.OverallRiskScore{Score: 0.3, Severity: "low"},
	}}
	engine := NewEngine(scorerStub, DefaultThresholds(), nil)

	enriched := enrichedFixture(map[string]vitals.Reading{
		vitals.HeartRate:        {Value: 90, Unit: "bpm"},
		vitals.OxygenSaturation: {Value: 96, Unit: "percent"},
		vitals.Temperature:      {Value: 38.9, Unit: "celsius"},
	})

	scored, alert, err := engine.Process(context.Background(), enriched)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, events.SeverityWarning, alert.Severity)
	assert.Equal(t, events.AlertTypeVitalSignAnomaly, alert.AlertType)
	assert.Contains(t, alert.Details.RulesTriggered, RuleTempMaxExceeded)
	assert.Equal(t, events.ScoringEngineDefault, scored.ScoringMetadata.ScoringEngine)
}

func TestEngineProcessHypoxiaTachycardiaScenarioEmitsCriticalMultiVitalAlert(t *testing.T) {
	scorerStub := fakeScorer{resp: &scorerpc.ScoreResponse{
		Status:           scorerpc.StatusSuccess,
		OverallRiskScore: events.OverallRiskScore{Score: 0.8, Severity: "critical"},
	}}
	engine := NewEngine(scorerStub, DefaultThresholds(), nil)

	enriched := enrichedFixture(map[string]vitals.Reading{
		vitals.HeartRate:        {Value: 135, Unit: "bpm"},
		vitals.OxygenSaturation: {Value: 86, Unit: "percent"},
		vitals.Temperature:      {Value: 37.0, Unit: "celsius"},
	})

	_, alert, err := engine.Process(context.Background(), enriched)
	require.NoError(t, err)
	require.NotNil(t, alert)
	assert.Equal(t, events.SeverityCritical, alert.Severity)
	assert.Equal(t, events.AlertTypeMultiVitalAnomaly, alert.AlertType)
}

func TestEngineProcessNormalVitalsNoAlert(t *testing.T) {
	scorerStub := fakeScorer{resp: &scorerpc.ScoreResponse{
		Status:           scorerpc.StatusSuccess,
		OverallRiskScore: events.OverallRiskScore{Score: 0.1, Severity: "normal"},
	}}
	engine := NewEngine(scorerStub, DefaultThresholds(), nil)

	enriched := enrichedFixture(map[string]vitals.Reading{
		vitals.HeartRate:        {Value: 75, Unit: "bpm"},
		vitals.OxygenSaturation: {Value: 98, Unit: "percent"},
		vitals.Temperature:      {Value: 37.0, Unit: "celsius"},
	})

	_, alert, err := engine.Process(context.Background(), enriched)
	require.NoError(t, err)
	assert.Nil(t, alert, "P5: no alert at OK severity")
}

func TestEngineProcessScorerUnavailableEmitsDegradedScoredEventButRulesStillFire(t *testing.T) {
	scorerStub := fakeScorer{err: errors.New("connection refused")}
	engine := NewEngine(scorerStub, DefaultThresholds(), nil)

	enriched := enrichedFixture(map[string]vitals.Reading{
		vitals.HeartRate:        {Value: 135, Unit: "bpm"},
		vitals.OxygenSaturation: {Value: 86, Unit: "percent"},
	})

	scored, alert, err := engine.Process(context.Background(), enriched)
	require.NoError(t, err)
	assert.Equal(t, events.ScoringEngineRulesFallback, scored.ScoringMetadata.ScoringEngine)
	assert.Equal(t, 0.0, scored.OverallRiskScore.Score)
	assert.Equal(t, "normal", scored.OverallRiskScore.Severity)
	require.NotNil(t, alert, "rules-driven alerts fire independently of scorer availability")
	assert.Equal(t, events.SeverityCritical, alert.Severity)
}

func TestEngineCircuitBreakerOpensAfterConsecutiveFailuresAndRecoversViaPing(t *testing.T) {
	scorerStub := &pingingFakeScorer{fakeScorer: fakeScorer{err: errors.New("connection refused")}}
	engine := NewEngine(scorerStub, DefaultThresholds(), nil)
	engine.CircuitBreakerThreshold = 3
	engine.CircuitBreakerProbeInterval = time.Nanosecond // effectively never rate-limit probes in this test

	enriched := enrichedFixture(map[string]vitals.Reading{
		vitals.HeartRate: {Value: 75, Unit: "bpm"},
	})

	for i := 0; i < 3; i++ {
		_, _, err := engine.Process(context.Background(), enriched)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), engine.circuitOpen, "circuit must open after CircuitBreakerThreshold consecutive failures")

	// Circuit is open and Ping still reports unhealthy: score() must not
	// attempt another live Score call.
	scorerStub.scoreCalls = 0
	scorerStub.pingHealthy = false
	scored, _, err := engine.Process(context.Background(), enriched)
	require.NoError(t, err)
	assert.Equal(t, events.ScoringEngineRulesFallback, scored.ScoringMetadata.ScoringEngine)
	assert.Equal(t, 0, scorerStub.scoreCalls, "an open circuit with a failing probe must skip the Score RPC entirely")
	assert.GreaterOrEqual(t, scorerStub.pingCalls, 1)

	// Ping recovers: the next call should attempt (and this time succeed at)
	// a live Score call, closing the circuit.
	scorerStub.pingHealthy = true
	scorerStub.err = nil
	scorerStub.resp = &scorerpc.ScoreResponse{Status: scorerpc.StatusSuccess, OverallRiskScore: events.OverallRiskScore{Score: 0.2}}
	scored, _, err = engine.Process(context.Background(), enriched)
	require.NoError(t, err)
	assert.Equal(t, events.ScoringEngineDefault, scored.ScoringMetadata.ScoringEngine)
	assert.Equal(t, int32(0), engine.circuitOpen, "a successful score() must close the circuit")
}

func TestEngineCircuitBreakerStaysClosedBelowThreshold(t *testing.T) {
	scorerStub := fakeScorer{err: errors.New("connection refused")}
	engine := NewEngine(scorerStub, DefaultThresholds(), nil)
	engine.CircuitBreakerThreshold = 3

	enriched := enrichedFixture(map[string]vitals.Reading{
		vitals.HeartRate: {Value: 75, Unit: "bpm"},
	})

	_, _, err := engine.Process(context.Background(), enriched)
	require.NoError(t, err)
	assert.Equal(t, int32(0), engine.circuitOpen, "a single failure must not trip the breaker")
}

func TestEngineSetThresholdsAppliesToSubsequentCalls(t *testing.T) {
	scorerStub := fakeScorer{resp: &scorerpc.ScoreResponse{Status: scorerpc.StatusSuccess}}
	engine := NewEngine(scorerStub, DefaultThresholds(), nil)

	loosened := DefaultThresholds()
	loosened.HRMax = 200
	engine.SetThresholds(loosened)

	enriched := enrichedFixture(map[string]vitals.Reading{vitals.HeartRate: {Value: 150, Unit: "bpm"}})
	_, alert, err := engine.Process(context.Background(), enriched)
	require.NoError(t, err)
	assert.Nil(t, alert, "raised HR_MAX threshold must suppress the rule that used to trigger")
}
