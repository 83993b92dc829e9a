// Package normalizer implements the raw-to-normalized pipeline stage (C2,
// §4.2): strict timestamp parsing, metric canonicalization, range clamping,
// patient-id resolution, and validation-status derivation.
package normalizer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vitalstream/telemetry-pipeline/internal/envelope"
	"github.com/vitalstream/telemetry-pipeline/internal/events"
	"github.com/vitalstream/telemetry-pipeline/internal/vitals"
)

// RulesVersion is stamped into normalization_metadata.rules_version.
const RulesVersion = "2026.1"

// PatientResolver resolves a raw event to a patient id. Production wiring
// consults the external registry (§1); the core treats it as an injected
// interface (§4.2 Patient-id resolution).
type PatientResolver interface {
	ResolvePatientID(ctx context.Context, deviceID string, metadataPatientID string) (string, error)
}

// DeviceFallbackResolver is the default resolver: it only ever returns the
// metadata/top-level hints handed to it, synthesising patient_from_<device>
// when nothing else is available. It never calls out, so it needs no
// context and never errors; suitable when no registry is wired.
type DeviceFallbackResolver struct{}

func (DeviceFallbackResolver) ResolvePatientID(_ context.Context, deviceID string, metadataPatientID string) (string, error) {
	if metadataPatientID != "" {
		return metadataPatientID, nil
	}
	return fmt.Sprintf("patient_from_%s", deviceID), nil
}

// Normalizer converts raw events into normalized events.
type Normalizer struct {
	Resolver PatientResolver
	Now      func() time.Time
	Logger   *slog.Logger
}

// New builds a Normalizer with sane defaults for any nil field.
func New(resolver PatientResolver, logger *slog.Logger) *Normalizer {
	if resolver == nil {
		resolver = DeviceFallbackResolver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Normalizer{Resolver: resolver, Now: time.Now, Logger: logger}
}

// Normalize produces exactly one normalized event for raw, or reports
// ok=false when the event is structurally unparseable (§4.2 Contract):
// callers must log-and-skip in that case rather than emit anything.
func (n *Normalizer) Normalize(ctx context.Context, raw *events.Raw) (*events.Normalized, bool) {
	if raw == nil || raw.DeviceID == "" {
		n.logger().Warn("dropping raw event: missing device_id")
		return nil, false
	}

	now := n.Now
	if now == nil {
		now = time.Now
	}

	ts, tsOK := ParseTimestamp(raw.RawTimestamp, now)
	var warnings []string
	if !tsOK {
		warnings = append(warnings, "unparseable timestamp substituted with current time")
		n.logger().Warn("unparseable raw event timestamp, substituting now", "device_id", raw.DeviceID)
	}
	tsStr := ts.UTC().Format(time.RFC3339)

	metaPatientID := ""
	if raw.Metadata != nil {
		metaPatientID = raw.Metadata.PatientID
	}
	if metaPatientID == "" {
		metaPatientID = raw.PatientID
	}
	patientID, err := n.Resolver.ResolvePatientID(ctx, raw.DeviceID, metaPatientID)
	if err != nil || patientID == "" {
		n.logger().Warn("patient resolution failed, falling back to device-derived id", "device_id", raw.DeviceID, "error", err)
		patientID = fmt.Sprintf("patient_from_%s", raw.DeviceID)
	}

	readings := make(map[string]vitals.Reading, len(raw.Measurements))
	var bp *vitals.BloodPressureReading
	var systolic, diastolic *float64

	for _, m := range raw.Measurements {
		canon := vitals.Canonicalize(m.Metric)
		value := m.Value
		unit := m.Unit

		if canon == vitals.SystolicPressure || canon == vitals.DiastolicPressure {
			v := value
			if canon == vitals.SystolicPressure {
				systolic = &v
			} else {
				diastolic = &v
			}
			if unit == "" {
				unit = "mmHg"
			}
			if bp == nil {
				bp = &vitals.BloodPressureReading{Unit: unit, Timestamp: tsStr}
			}
			continue
		}

		if r, ok := vitals.ClampRanges[canon]; ok {
			clamped, changed := r.Clamp(value)
			if changed {
				warnings = append(warnings, fmt.Sprintf("%s clamped from %.4g to %.4g", canon, value, clamped))
			}
			value = clamped
			if unit == "" {
				unit = r.DefaultUnit
			}
		}

		readings[canon] = vitals.Reading{Value: value, Unit: unit, Timestamp: tsStr}
	}

	if bp != nil {
		bp.Systolic = systolic
		bp.Diastolic = diastolic
	}

	status := events.ValidationValid
	if len(warnings) > 0 {
		status = events.ValidationWarning
	}

	env := envelope.New(envelope.Parent{EventID: raw.EventID, TraceID: raw.TraceID}, envelope.EventTypeNormalized, tsStr)

	return &events.Normalized{
		Envelope:         env,
		DeviceID:         raw.DeviceID,
		PatientID:        patientID,
		Vitals:           readings,
		BloodPressure:    bp,
		ValidationStatus: status,
		NormalizationMetadata: events.NormalizationMetadata{
			NormalizedAt: now().UTC().Format(time.RFC3339),
			RulesVersion: RulesVersion,
			Warnings:     warnings,
		},
	}, true
}

func (n *Normalizer) logger() *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return slog.Default()
}
