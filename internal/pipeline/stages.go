package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vitalstream/telemetry-pipeline/internal/bus"
	"github.com/vitalstream/telemetry-pipeline/internal/envelope"
	"github.com/vitalstream/telemetry-pipeline/internal/events"
	"github.com/vitalstream/telemetry-pipeline/internal/normalizer"
	"github.com/vitalstream/telemetry-pipeline/internal/rules"
)

// NormalizeProcessor wires the C2 normalizer into a pipeline.Processor:
// consumes telemetry.raw, produces telemetry.normalized keyed by device_id.
func NormalizeProcessor(n *normalizer.Normalizer) Processor {
	return func(ctx context.Context, msg bus.Message) ([]Output, bool, error) {
		var raw events.Raw
		if err := json.Unmarshal(msg.Payload, &raw); err != nil {
			return nil, false, nil // malformed message: drop and log (§7), not a processor error
		}

		normalized, ok := n.Normalize(ctx, &raw)
		if !ok {
			return nil, false, nil
		}

		payload, err := json.Marshal(normalized)
		if err != nil {
			return nil, false, fmt.Errorf("pipeline: marshal normalized event: %w", err)
		}
		return []Output{{Topic: bus.TopicTelemetryNormalized, Key: normalized.DeviceID, Payload: payload}}, true, nil
	}
}

// PassthroughEnrichProcessor stands in for the external enricher (§1 "Out
// of scope (external collaborators)"): it wraps a normalised event as an
// enriched one with no additional context. Production deployments are
// expected to run a real enricher against the registry between these two
// topics; this processor only exists so the all-in-one "pipeline run"
// command has something to feed the rules engine without one.
func PassthroughEnrichProcessor() Processor {
	return func(ctx context.Context, msg bus.Message) ([]Output, bool, error) {
		var normalized events.Normalized
		if err := json.Unmarshal(msg.Payload, &normalized); err != nil {
			return nil, false, nil
		}

		enriched := events.Enriched{Normalized: normalized}
		payload, err := json.Marshal(enriched)
		if err != nil {
			return nil, false, fmt.Errorf("pipeline: marshal enriched event: %w", err)
		}
		return []Output{{Topic: bus.TopicTelemetryEnriched, Key: enriched.DeviceID, Payload: payload}}, true, nil
	}
}

// RulesProcessor wires the C5 rules engine (which itself invokes C4) into a
// pipeline.Processor: consumes telemetry.enriched, produces
// telemetry.scored always and alerts.raised when rules trigger (§4.6).
func RulesProcessor(engine *rules.Engine) Processor {
	return func(ctx context.Context, msg bus.Message) ([]Output, bool, error) {
		var enriched events.Enriched
		if err := json.Unmarshal(msg.Payload, &enriched); err != nil {
			return nil, false, nil
		}

		scored, alert, err := engine.Process(ctx, &enriched)
		if err != nil {
			return nil, false, fmt.Errorf("pipeline: rules engine process: %w", err)
		}

		scored.Envelope = envelope.New(
			envelope.Parent{EventID: enriched.EventID, TraceID: enriched.TraceID},
			envelope.EventTypeScored,
			timestampOrNow(enriched.Timestamp),
		)

		outputs := make([]Output, 0, 2)
		scoredPayload, err := json.Marshal(scored)
		if err != nil {
			return nil, false, fmt.Errorf("pipeline: marshal scored event: %w", err)
		}
		outputs = append(outputs, Output{Topic: bus.TopicTelemetryScored, Key: scored.DeviceID, Payload: scoredPayload})

		if alert != nil {
			alert.Envelope = envelope.New(
				envelope.Parent{EventID: scored.EventID, TraceID: scored.TraceID},
				envelope.EventTypeAlert,
				scored.Timestamp,
			)
			alertPayload, err := json.Marshal(alert)
			if err != nil {
				return nil, false, fmt.Errorf("pipeline: marshal alert event: %w", err)
			}
			outputs = append(outputs, Output{Topic: bus.TopicAlertsRaised, Key: alert.PatientID, Payload: alertPayload})
		}

		return outputs, true, nil
	}
}

func timestampOrNow(ts string) string {
	if ts != "" {
		return ts
	}
	return time.Now().UTC().Format(time.RFC3339)
}
