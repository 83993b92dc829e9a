// Package events defines the tagged-variant wire records exchanged between
// pipeline stages (§3 Data model). Each type parses strictly and emits
// permissively, per §9's design note on the schemaless JSON wire format.
package events

import (
	"encoding/json"

	"github.com/vitalstream/telemetry-pipeline/internal/envelope"
	"github.com/vitalstream/telemetry-pipeline/internal/vitals"
)

// RawMeasurement is a single measurement entry on a raw event.
type RawMeasurement struct {
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
	Unit   string  `json:"unit,omitempty"`
}

// RawMetadata carries optional out-of-band identity hints on a raw event.
type RawMetadata struct {
	PatientID string `json:"patient_id,omitempty"`
}

// Raw is the device-originated telemetry event (§3 Raw event).
type Raw struct {
	envelope.Envelope
	DeviceID     string           `json:"device_id"`
	RawTimestamp json.RawMessage  `json:"timestamp"`
	Measurements []RawMeasurement `json:"measurements"`
	PatientID    string           `json:"patient_id,omitempty"`
	Metadata     *RawMetadata     `json:"metadata,omitempty"`
}

// NormalizationMetadata records provenance of the normalization pass.
type NormalizationMetadata struct {
	NormalizedAt string   `json:"normalized_at"`
	RulesVersion string   `json:"rules_version"`
	Warnings     []string `json:"warnings,omitempty"`
}

// ValidationStatus is the normalized event's validity marker (§3).
type ValidationStatus string

const (
	ValidationValid   ValidationStatus = "valid"
	ValidationWarning ValidationStatus = "warning"
)

// Normalized is the canonical post-normalization event (§3 Normalised event).
type Normalized struct {
	envelope.Envelope
	DeviceID               string                       `json:"device_id"`
	PatientID              string                        `json:"patient_id"`
	Vitals                 map[string]vitals.Reading     `json:"vitals"`
	BloodPressure          *vitals.BloodPressureReading  `json:"blood_pressure,omitempty"`
	ValidationStatus       ValidationStatus              `json:"validation_status"`
	NormalizationMetadata  NormalizationMetadata         `json:"normalization_metadata"`
}

// PatientContext is optional enrichment data attached before scoring
// (populated by the external enricher boundary; the core only forwards it).
type PatientContext map[string]any

// Enriched is the post-enrichment event the core consumes into rules/scorer.
// It is wire-identical to Normalized plus optional context; the enricher is
// an external collaborator (§1) so this repo only defines the shape it
// reads.
type Enriched struct {
	Normalized
	PatientContext    PatientContext `json:"patient_context,omitempty"`
	HistoricalContext map[string]any `json:"historical_context,omitempty"`
}

// AnomalyFactor is one contributing explanation behind a per-vital score.
type AnomalyFactor struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight,omitempty"`
}

// VitalAnomalyScore is the per-vital scoring result (§3 Scored event).
type VitalAnomalyScore struct {
	Score        float64         `json:"score"`
	Severity     string          `json:"severity"`
	IsAnomaly    bool            `json:"is_anomaly"`
	ModelVersion string          `json:"model_version"`
	Factors      []AnomalyFactor `json:"factors,omitempty"`
}

// OverallRiskScore is the fused top-level risk score (§3 Scored event).
type OverallRiskScore struct {
	Score             float64 `json:"score"`
	Severity          string  `json:"severity"`
	AggregationMethod string  `json:"aggregation_method"`
	IsAnomaly         bool    `json:"is_anomaly"`
}

// ScoringMetadata records which scoring path produced the scored event.
type ScoringMetadata struct {
	ScoredAt       string `json:"scored_at"`
	ScoringEngine  string `json:"scoring_engine"`
	BaselineWindow int    `json:"baseline_window,omitempty"`
}

// ScoringEngineRulesFallback marks a degraded scored event produced without a live
// scorer (§4.6 Failure handling).
const ScoringEngineRulesFallback = "rules-engine-fallback"

// ScoringEngineDefault marks a scored event produced with a live scorer.
const ScoringEngineDefault = "anomaly-scorer"

// Scored is the post-scoring event (§3 Scored event).
type Scored struct {
	Normalized
	AnomalyScores    map[string]VitalAnomalyScore `json:"anomaly_scores"`
	OverallRiskScore OverallRiskScore             `json:"overall_risk_score"`
	ScoringMetadata  ScoringMetadata              `json:"scoring_metadata"`
}

// AlertCondition describes the triggering condition of an alert (§3 Alert event).
type AlertCondition struct {
	Description  string  `json:"description"`
	VitalSign    string  `json:"vital_sign,omitempty"`
	AnomalyScore float64 `json:"anomaly_score,omitempty"`
}

// AlertDetails carries supporting data for an alert (§3 Alert event).
type AlertDetails struct {
	Metrics        map[string]float64 `json:"metrics,omitempty"`
	RulesTriggered []string           `json:"rules_triggered,omitempty"`
	AnomalyScore   float64            `json:"anomaly_score,omitempty"`
}

// AlertMetadata records provenance of an alert event.
type AlertMetadata struct {
	RaisedAt   string `json:"raised_at"`
	RulesVersion string `json:"rules_version"`
}

// Severity values for alerts; never "ok" (§3 invariant: no alert at OK).
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Alert is the alert event (§3 Alert event).
type Alert struct {
	envelope.Envelope
	PatientID     string         `json:"patient_id"`
	DeviceID      string         `json:"device_id,omitempty"`
	AlertType     string         `json:"alert_type"`
	Severity      string         `json:"severity"`
	Condition     AlertCondition `json:"condition"`
	Details       AlertDetails   `json:"details"`
	AlertMetadata AlertMetadata  `json:"alert_metadata"`
}

// Alert type labels used by the rules engine (§8 scenarios 2-3).
const (
	AlertTypeVitalSignAnomaly  = "vital_sign_anomaly"
	AlertTypeMultiVitalAnomaly = "multi_vital_anomaly"
)
