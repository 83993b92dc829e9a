// Package rules implements the threshold rules engine (C5, §4.5): a fixed
// set of clinical threshold rules over a normalised vitals map, severity
// fusion across whatever rules trigger, and the glue that invokes the
// anomaly scorer and emits scored/alert events.
package rules

import (
	"log/slog"
	"strings"

	"github.com/vitalstream/telemetry-pipeline/internal/events"
	"github.com/vitalstream/telemetry-pipeline/internal/vitals"
)

// Severity is the rules-engine severity lattice: OK < Warning < Critical.
type Severity int

const (
	SeverityOK Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityWarning:
		return "warning"
	default:
		return "ok"
	}
}

// Thresholds are the configurable rule cutoffs (§4.5 defaults, overridden
// from internal/config's HR_MAX/HR_VERY_HIGH/SPO2_MIN/SPO2_LOW/TEMP_MAX).
type Thresholds struct {
	HRMax       float64
	HRVeryHigh  float64
	SpO2Min     float64
	SpO2Low     float64
	TempMaxF    float64
}

// DefaultThresholds are the §4.5 defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{
		HRMax:      100,
		HRVeryHigh: 120,
		SpO2Min:    95,
		SpO2Low:    90,
		TempMaxF:   100.4,
	}
}

// Rule identifiers (§4.5).
const (
	RuleHRMaxExceeded        = "hr_max_exceeded"
	RuleSpO2MinBelow         = "spo2_min_below"
	RuleTempMaxExceeded      = "temp_max_exceeded"
	RuleHRHighSpO2LowCombined = "hr_high_spo2_low_combined"
)

// RuleResult is one triggered rule (§4.5).
type RuleResult struct {
	RuleID   string
	Severity Severity
	Message  string
}

// Evaluate runs every threshold rule against vitals and returns the
// triggered subset, in rule-definition order. A nil logger falls back to
// slog.Default() for the unknown-temperature-unit warning (§4.5).
func Evaluate(t Thresholds, vitalsMap map[string]vitals.Reading, logger *slog.Logger) []RuleResult {
	if logger == nil {
		logger = slog.Default()
	}
	var results []RuleResult

	hr, hasHR := vitalsMap[vitals.HeartRate]
	spo2, hasSpO2 := vitalsMap[vitals.OxygenSaturation]
	temp, hasTemp := vitalsMap[vitals.Temperature]

	if hasHR && hr.Value > t.HRMax {
		results = append(results, RuleResult{
			RuleID:   RuleHRMaxExceeded,
			Severity: SeverityWarning,
			Message:  "heart rate exceeds configured maximum",
		})
	}

	if hasSpO2 && spo2.Value < t.SpO2Min {
		results = append(results, RuleResult{
			RuleID:   RuleSpO2MinBelow,
			Severity: SeverityCritical,
			Message:  "oxygen saturation below configured minimum",
		})
	}

	if hasTemp && toFahrenheit(temp.Value, temp.Unit, logger) > t.TempMaxF {
		results = append(results, RuleResult{
			RuleID:   RuleTempMaxExceeded,
			Severity: SeverityWarning,
			Message:  "temperature exceeds configured maximum",
		})
	}

	if hasHR && hasSpO2 && hr.Value > t.HRVeryHigh && spo2.Value < t.SpO2Low {
		results = append(results, RuleResult{
			RuleID:   RuleHRHighSpO2LowCombined,
			Severity: SeverityCritical,
			Message:  "combined tachycardia and hypoxia",
		})
	}

	return results
}

// toFahrenheit converts a temperature reading to Fahrenheit per the §4.5
// unit rule: a unit containing "celsius" or equal to "c" converts;
// "fahrenheit", "f" or an empty unit passes through unchanged; anything
// else logs a warning and is assumed Fahrenheit.
func toFahrenheit(value float64, unit string, logger *slog.Logger) float64 {
	u := strings.ToLower(strings.TrimSpace(unit))
	if strings.Contains(u, "celsius") || u == "c" {
		return value*9/5 + 32
	}
	if u != "" && u != "fahrenheit" && u != "f" {
		logger.Warn("rules: unknown temperature unit, assuming fahrenheit", "unit", unit)
	}
	return value
}

// Fuse computes the overall severity: the maximum among triggered rules, OK
// if none triggered.
func Fuse(results []RuleResult) Severity {
	max := SeverityOK
	for _, r := range results {
		if r.Severity > max {
			max = r.Severity
		}
	}
	return max
}

// AlertType derives the §8 scenario 2/3 alert_type: a single triggered rule
// yields vital_sign_anomaly, more than one yields multi_vital_anomaly.
func AlertType(results []RuleResult) string {
	if len(results) > 1 {
		return events.AlertTypeMultiVitalAnomaly
	}
	return events.AlertTypeVitalSignAnomaly
}

// WireSeverity maps the internal lattice to the §3 alert severity enum,
// which has no OK member — callers must not invoke this for SeverityOK
// (P5: no alert is emitted at that severity in the first place).
func (s Severity) WireSeverity() string {
	if s == SeverityCritical {
		return events.SeverityCritical
	}
	return events.SeverityWarning
}
