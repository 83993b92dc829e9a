package scorerpc

import "github.com/vitalstream/telemetry-pipeline/internal/events"

// Status is the §6 response status enum.
type Status string

const (
	StatusSuccess        Status = "SUCCESS"
	StatusInvalidRequest Status = "INVALID_REQUEST"
	StatusInternalError  Status = "INTERNAL_ERROR"
)

// Severity is the §6 RPC-wire severity enum — upper-cased, distinct from
// the lower-case severity labels used on the internal event wire
// (scorer.Band). Server.Score does not translate: its ScoreResponse
// carries the lower-case scorer.Band labels unchanged, and ToWireSeverity
// is not called anywhere on the RPC path.
type Severity string

const (
	SeverityNormal   Severity = "NORMAL"
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// ToWireSeverity upper-cases an internal scorer.Band label for the RPC wire.
func ToWireSeverity(internal string) Severity {
	switch internal {
	case "normal":
		return SeverityNormal
	case "low":
		return SeverityLow
	case "medium":
		return SeverityMedium
	case "high":
		return SeverityHigh
	case "critical":
		return SeverityCritical
	default:
		return SeverityNormal
	}
}

// VitalsInput is the request's vitals block (§6): the three core vitals
// plus the two optional extras the original device simulator also emits.
type VitalsInput struct {
	HeartRate        *float64        `json:"heart_rate,omitempty"`
	OxygenSaturation *float64        `json:"oxygen_saturation,omitempty"`
	Temperature      *float64        `json:"temperature,omitempty"`
	BloodPressure    *BPInput        `json:"blood_pressure,omitempty"`
	RespiratoryRate  *float64        `json:"respiratory_rate,omitempty"`
}

// BPInput is the optional blood-pressure component of VitalsInput.
type BPInput struct {
	Systolic  float64 `json:"systolic"`
	Diastolic float64 `json:"diastolic"`
}

// ScoreRequest is the §6 scorer request.
//
// HistoricalContext supplements the spec's request shape with the
// historical_context block original_source's anomaly_client.py attaches
// (recent alert counts/trend hints the rules engine has already computed),
// letting the scorer weigh a borderline reading against recent history
// instead of the baseline window alone.
type ScoreRequest struct {
	Version           string         `json:"version"`
	PatientID         string         `json:"patient_id"`
	DeviceID          string         `json:"device_id"`
	Timestamp         string         `json:"timestamp"`
	Vitals            VitalsInput    `json:"vitals"`
	PatientContext    map[string]any `json:"patient_context,omitempty"`
	HistoricalContext map[string]any `json:"historical_context,omitempty"`
}

// ScoreResponse is the §6 scorer response.
type ScoreResponse struct {
	Status           Status                               `json:"status"`
	PatientID        string                               `json:"patient_id"`
	Timestamp        string                               `json:"timestamp"`
	OverallRiskScore events.OverallRiskScore               `json:"overall_risk_score"`
	AnomalyScores    map[string]events.VitalAnomalyScore   `json:"anomaly_scores"`
	Metadata         map[string]any                        `json:"metadata,omitempty"`
	Error            string                                `json:"error,omitempty"`
}

// PingRequest/PingResponse implement the supplemented health-check RPC
// (§4 "supplemented features"): the rules engine's circuit breaker probes
// this to decide when to stop short-circuiting to the degraded path after
// a run of scorer RPC failures.
type PingRequest struct{}

type PingResponse struct {
	Healthy bool   `json:"healthy"`
	Version string `json:"version,omitempty"`
}
