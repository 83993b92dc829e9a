package rules

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vitalstream/telemetry-pipeline/internal/vitals"
)

// recordingHandler is a minimal slog.Handler that captures record messages,
// for asserting a specific warning was logged without parsing stdout.
type recordingHandler struct {
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.records = append(h.records, r)
	return nil
}
func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(name string) slog.Handler       { return h }

func reading(v float64, unit string) vitals.Reading {
	return vitals.Reading{Value: v, Unit: unit}
}

func TestHRMaxExceededBoundary(t *testing.T) {
	t_ := DefaultThresholds()

	atMax := Evaluate(t_, map[string]vitals.Reading{vitals.HeartRate: reading(t_.HRMax, "bpm")}, nil)
	assert.Empty(t, atMax, "HR == HR_MAX must not trigger (B1)")

	aboveMax := Evaluate(t_, map[string]vitals.Reading{vitals.HeartRate: reading(t_.HRMax+0.01, "bpm")}, nil)
	assert.Len(t, aboveMax, 1)
	assert.Equal(t, RuleHRMaxExceeded, aboveMax[0].RuleID)
}

func TestSpO2MinBelowBoundary(t *testing.T) {
	t_ := DefaultThresholds()

	atMin := Evaluate(t_, map[string]vitals.Reading{vitals.OxygenSaturation: reading(t_.SpO2Min, "percent")}, nil)
	assert.Empty(t, atMin, "SpO2 == SPO2_MIN must not trigger (B2)")

	belowMin := Evaluate(t_, map[string]vitals.Reading{vitals.OxygenSaturation: reading(t_.SpO2Min-0.01, "percent")}, nil)
	assert.Len(t, belowMin, 1)
	assert.Equal(t, RuleSpO2MinBelow, belowMin[0].RuleID)
}

func TestTempMaxExceededConvertsCelsius(t *testing.T) {
	t_ := DefaultThresholds()
	// 38.9C = 102.02F, above the 100.4F default threshold.
	results := Evaluate(t_, map[string]vitals.Reading{vitals.Temperature: reading(38.9, "celsius")}, nil)
	assert.Len(t, results, 1)
	assert.Equal(t, RuleTempMaxExceeded, results[0].RuleID)
}

func TestTempMaxExceededUnknownUnitAssumesFahrenheit(t *testing.T) {
	t_ := DefaultThresholds()
	handler := &recordingHandler{}
	logger := slog.New(handler)

	results := Evaluate(t_, map[string]vitals.Reading{vitals.Temperature: reading(101, "weird")}, logger)
	assert.Len(t, results, 1)

	var warned bool
	for _, r := range handler.records {
		if r.Level == slog.LevelWarn && r.Message == "rules: unknown temperature unit, assuming fahrenheit" {
			warned = true
		}
	}
	assert.True(t, warned, "unrecognized unit must log a warning per §4.5")
}

func TestCombinedRuleRequiresBothConditions(t *testing.T) {
	t_ := DefaultThresholds()
	results := Evaluate(t_, map[string]vitals.Reading{
		vitals.HeartRate:        reading(t_.HRVeryHigh+1, "bpm"),
		vitals.OxygenSaturation: reading(t_.SpO2Low-1, "percent"),
	}, nil)
	var ruleIDs []string
	for _, r := range results {
		ruleIDs = append(ruleIDs, r.RuleID)
	}
	assert.Contains(t, ruleIDs, RuleHRHighSpO2LowCombined)
	assert.Contains(t, ruleIDs, RuleHRMaxExceeded)
	assert.Contains(t, ruleIDs, RuleSpO2MinBelow)
}

func TestCombinedRuleDoesNotFireOnOneCondition(t *testing.T) {
	t_ := DefaultThresholds()
	results := Evaluate(t_, map[string]vitals.Reading{
		vitals.HeartRate:        reading(t_.HRVeryHigh+1, "bpm"),
		vitals.OxygenSaturation: reading(98, "percent"),
	}, nil)
	for _, r := range results {
		assert.NotEqual(t, RuleHRHighSpO2LowCombined, r.RuleID)
	}
}

func TestFuseTakesMaxSeverity(t *testing.T) {
	results := []RuleResult{
		{RuleID: RuleHRMaxExceeded, Severity: SeverityWarning},
		{RuleID: RuleSpO2MinBelow, Severity: SeverityCritical},
	}
	assert.Equal(t, SeverityCritical, Fuse(results))
}

func TestFuseEmptyIsOK(t *testing.T) {
	assert.Equal(t, SeverityOK, Fuse(nil))
}

func TestAlertTypeSingleVsMultiple(t *testing.T) {
	assert.Equal(t, "vital_sign_anomaly", AlertType([]RuleResult{{RuleID: RuleHRMaxExceeded}}))
	assert.Equal(t, "multi_vital_anomaly", AlertType([]RuleResult{{RuleID: RuleHRMaxExceeded}, {RuleID: RuleSpO2MinBelow}}))
}

func TestSeverityWireSeverityNeverOK(t *testing.T) {
	assert.Equal(t, "warning", SeverityWarning.WireSeverity())
	assert.Equal(t, "critical", SeverityCritical.WireSeverity())
}
