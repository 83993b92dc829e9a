package rules

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/vitalstream/telemetry-pipeline/internal/events"
	"github.com/vitalstream/telemetry-pipeline/internal/scorer/scorerpc"
	"github.com/vitalstream/telemetry-pipeline/internal/vitals"
)

// ScorerInvoker is the boundary the engine calls out to for anomaly
// scoring. *scorerpc.Client satisfies it directly; an in-process adapter
// wrapping a *scorerpc.Server lets the all-in-one deployment skip a network
// hop entirely while still going through the same request/response shapes.
type ScorerInvoker interface {
	Score(ctx context.Context, req *scorerpc.ScoreRequest) (*scorerpc.ScoreResponse, error)
}

// InProcessScorer adapts a *scorerpc.Server to ScorerInvoker without a
// network round trip, for single-process deployments.
type InProcessScorer struct {
	Server *scorerpc.Server
}

func (s InProcessScorer) Score(ctx context.Context, req *scorerpc.ScoreRequest) (*scorerpc.ScoreResponse, error) {
	return s.Server.Score(ctx, req)
}

func (s InProcessScorer) Ping(ctx context.Context) (*scorerpc.PingResponse, error) {
	return s.Server.Ping(ctx, &scorerpc.PingRequest{})
}

// Pinger is the optional health-probe side of ScorerInvoker
// (*scorerpc.Client and InProcessScorer both implement it). The circuit
// breaker uses it to decide when a scorer that tripped open has recovered.
type Pinger interface {
	Ping(ctx context.Context) (*scorerpc.PingResponse, error)
}

// DefaultScorerTimeout is the §5 "fixed per-call deadline (default 5s)".
const DefaultScorerTimeout = 5 * time.Second

// DefaultCircuitBreakerThreshold is the number of consecutive score()
// failures that trips the circuit open (§4 supplemented feature 2).
const DefaultCircuitBreakerThreshold = 3

// DefaultCircuitBreakerProbeInterval bounds how often an open circuit
// re-probes the scorer via Ping rather than spending every call's full
// ScorerTimeout on a scorer that is still down.
const DefaultCircuitBreakerProbeInterval = 10 * time.Second

// Engine fuses C5 (rules) with C4 (scorer) per §4.5/§4.6: it evaluates
// threshold rules directly and delegates anomaly scoring to a
// ScorerInvoker, falling back to a degraded scored event when that call
// fails or times out.
type Engine struct {
	Scorer        ScorerInvoker
	ScorerTimeout time.Duration
	Logger        *slog.Logger

	// CircuitBreakerThreshold/CircuitBreakerProbeInterval default to the
	// Default* constants in NewEngine; exposed so tests can shrink the probe
	// interval instead of sleeping for the production default.
	CircuitBreakerThreshold     int32
	CircuitBreakerProbeInterval time.Duration

	thresholds atomic.Value // Thresholds

	// Circuit-breaker state (§4 supplemented feature 2): consecutiveFailures
	// counts score() failures since the circuit last closed; circuitOpen and
	// lastProbeUnixNano gate when score() stops calling Score directly and
	// instead polls Ping on CircuitBreakerProbeInterval until it recovers.
	consecutiveFailures int32
	circuitOpen         int32
	lastProbeUnixNano   int64
}

// NewEngine constructs an Engine with the given scorer client and starting
// thresholds. A nil logger falls back to slog.Default(), a zero timeout to
// DefaultScorerTimeout.
func NewEngine(scorerClient ScorerInvoker, thresholds Thresholds, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		Scorer:                      scorerClient,
		ScorerTimeout:               DefaultScorerTimeout,
		Logger:                      logger,
		CircuitBreakerThreshold:     DefaultCircuitBreakerThreshold,
		CircuitBreakerProbeInterval: DefaultCircuitBreakerProbeInterval,
	}
	e.thresholds.Store(thresholds)
	return e
}

// SetThresholds atomically replaces the active threshold set, called by the
// config hot-reload watcher (internal/config) when the underlying file
// changes.
func (e *Engine) SetThresholds(t Thresholds) {
	e.thresholds.Store(t)
}

// Thresholds returns the currently active threshold set.
func (e *Engine) Thresholds() Thresholds {
	return e.thresholds.Load().(Thresholds)
}

// Process evaluates rules and scoring for one enriched event, returning the
// resulting scored event and, if triggered, an alert event (nil if rules
// fused to OK — P5: never emit an alert at OK).
func (e *Engine) Process(ctx context.Context, enriched *events.Enriched) (*events.Scored, *events.Alert, error) {
	thresholds := e.Thresholds()
	triggered := Evaluate(thresholds, enriched.Vitals, e.Logger)
	fused := Fuse(triggered)

	scoredEvent := e.score(ctx, enriched)

	var alert *events.Alert
	if fused != SeverityOK {
		alert = e.buildAlert(enriched, triggered, fused, scoredEvent.OverallRiskScore.Score)
	}

	return scoredEvent, alert, nil
}

func (e *Engine) score(ctx context.Context, enriched *events.Enriched) *events.Scored {
	scored := &events.Scored{Normalized: enriched.Normalized}

	if atomic.LoadInt32(&e.circuitOpen) == 1 && !e.probeRecovery(ctx, enriched.PatientID) {
		return e.degrade(scored, enriched.PatientID, "rules: circuit open, skipping scorer call", nil, "")
	}

	callCtx, cancel := context.WithTimeout(ctx, e.ScorerTimeout)
	defer cancel()

	req := buildScoreRequest(enriched)
	resp, err := e.Scorer.Score(callCtx, req)
	if err != nil || resp.Status != scorerpc.StatusSuccess {
		e.recordFailure()
		if err != nil {
			return e.degrade(scored, enriched.PatientID, "rules: scorer rpc unavailable, emitting degraded scored event", err, "")
		}
		return e.degrade(scored, enriched.PatientID, "rules: scorer returned non-success status, emitting degraded scored event", nil, resp.Status)
	}

	e.recordSuccess()
	scored.AnomalyScores = resp.AnomalyScores
	scored.OverallRiskScore = resp.OverallRiskScore
	scored.ScoringMetadata = events.ScoringMetadata{
		ScoredAt:      nowRFC3339(),
		ScoringEngine: events.ScoringEngineDefault,
	}
	return scored
}

func (e *Engine) degrade(scored *events.Scored, patientID, msg string, err error, status string) *events.Scored {
	if err != nil {
		e.Logger.Warn(msg, "patient_id", patientID, "error", err)
	} else if status != "" {
		e.Logger.Warn(msg, "patient_id", patientID, "status", status)
	} else {
		e.Logger.Warn(msg, "patient_id", patientID)
	}
	scored.AnomalyScores = map[string]events.VitalAnomalyScore{}
	scored.OverallRiskScore = events.OverallRiskScore{
		Score:             0,
		Severity:          "normal",
		AggregationMethod: "weighted_mean_core_vitals",
		IsAnomaly:         false,
	}
	scored.ScoringMetadata = events.ScoringMetadata{
		ScoredAt:      nowRFC3339(),
		ScoringEngine: events.ScoringEngineRulesFallback,
	}
	return scored
}

// recordFailure counts a score() failure and trips the circuit open once
// CircuitBreakerThreshold consecutive failures have been seen.
func (e *Engine) recordFailure() {
	threshold := e.CircuitBreakerThreshold
	if threshold <= 0 {
		threshold = DefaultCircuitBreakerThreshold
	}
	if atomic.AddInt32(&e.consecutiveFailures, 1) >= threshold {
		if atomic.CompareAndSwapInt32(&e.circuitOpen, 0, 1) {
			atomic.StoreInt64(&e.lastProbeUnixNano, time.Now().UnixNano())
			e.Logger.Warn("rules: scorer circuit opened after consecutive failures",
				"threshold", threshold)
		}
	}
}

// recordSuccess resets the failure count and closes the circuit if it was
// open, logging the recovery.
func (e *Engine) recordSuccess() {
	atomic.StoreInt32(&e.consecutiveFailures, 0)
	if atomic.CompareAndSwapInt32(&e.circuitOpen, 1, 0) {
		e.Logger.Info("rules: scorer circuit closed, resuming live scoring")
	}
}

// probeRecovery is called only while the circuit is open. It rate-limits
// Ping probes to CircuitBreakerProbeInterval and reports whether the caller
// should go ahead and issue this call's Score RPC as a recovery attempt.
// A scorer that doesn't implement Pinger (e.g. a bare test stub) is treated
// as never recovering on its own — the circuit only closes via a later
// recordSuccess, consistent with deadline-based degradation for that case.
func (e *Engine) probeRecovery(ctx context.Context, patientID string) bool {
	pinger, ok := e.Scorer.(Pinger)
	if !ok {
		return true
	}

	interval := e.CircuitBreakerProbeInterval
	if interval <= 0 {
		interval = DefaultCircuitBreakerProbeInterval
	}

	last := atomic.LoadInt64(&e.lastProbeUnixNano)
	if time.Since(time.Unix(0, last)) < interval {
		return false
	}
	if !atomic.CompareAndSwapInt64(&e.lastProbeUnixNano, last, time.Now().UnixNano()) {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, interval)
	defer cancel()
	resp, err := pinger.Ping(probeCtx)
	if err != nil || !resp.Healthy {
		e.Logger.Warn("rules: scorer recovery probe failed, circuit stays open", "patient_id", patientID, "error", err)
		return false
	}
	e.Logger.Info("rules: scorer recovery probe succeeded, attempting live score")
	return true
}

func buildScoreRequest(enriched *events.Enriched) *scorerpc.ScoreRequest {
	req := &scorerpc.ScoreRequest{
		Version:           "1.0.0",
		PatientID:         enriched.PatientID,
		DeviceID:          enriched.DeviceID,
		Timestamp:         enriched.Timestamp,
		PatientContext:    map[string]any(enriched.PatientContext),
		HistoricalContext: enriched.HistoricalContext,
	}
	if r, ok := enriched.Vitals[vitals.HeartRate]; ok {
		v := r.Value
		req.Vitals.HeartRate = &v
	}
	if r, ok := enriched.Vitals[vitals.OxygenSaturation]; ok {
		v := r.Value
		req.Vitals.OxygenSaturation = &v
	}
	if r, ok := enriched.Vitals[vitals.Temperature]; ok {
		v := r.Value
		req.Vitals.Temperature = &v
	}
	if r, ok := enriched.Vitals[vitals.RespiratoryRate]; ok {
		v := r.Value
		req.Vitals.RespiratoryRate = &v
	}
	if enriched.BloodPressure != nil && enriched.BloodPressure.Systolic != nil && enriched.BloodPressure.Diastolic != nil {
		req.Vitals.BloodPressure = &scorerpc.BPInput{
			Systolic:  *enriched.BloodPressure.Systolic,
			Diastolic: *enriched.BloodPressure.Diastolic,
		}
	}
	return req
}

func (e *Engine) buildAlert(enriched *events.Enriched, triggered []RuleResult, fused Severity, anomalyScore float64) *events.Alert {
	metrics := make(map[string]float64, len(enriched.Vitals))
	ruleIDs := make([]string, 0, len(triggered))
	var description string
	var vitalSign string
	for _, r := range triggered {
		ruleIDs = append(ruleIDs, r.RuleID)
		if description == "" {
			description = r.Message
		}
	}
	for vital, reading := range enriched.Vitals {
		metrics[vital] = reading.Value
	}
	if len(triggered) == 1 {
		vitalSign = ruleVital(triggered[0].RuleID)
	}

	return &events.Alert{
		PatientID: enriched.PatientID,
		DeviceID:  enriched.DeviceID,
		AlertType: AlertType(triggered),
		Severity:  fused.WireSeverity(),
		Condition: events.AlertCondition{
			Description:  description,
			VitalSign:    vitalSign,
			AnomalyScore: anomalyScore,
		},
		Details: events.AlertDetails{
			Metrics:        metrics,
			RulesTriggered: ruleIDs,
			AnomalyScore:   anomalyScore,
		},
		AlertMetadata: events.AlertMetadata{
			RaisedAt:     nowRFC3339(),
			RulesVersion: RulesVersion,
		},
	}
}

// ruleVital names the single vital sign behind a single-rule alert, used
// only when exactly one rule triggered (a combined rule or multiple single
// rules leave VitalSign blank since no single vital is solely responsible).
func ruleVital(ruleID string) string {
	switch ruleID {
	case RuleHRMaxExceeded:
		return vitals.HeartRate
	case RuleSpO2MinBelow:
		return vitals.OxygenSaturation
	case RuleTempMaxExceeded:
		return vitals.Temperature
	default:
		return ""
	}
}

// RulesVersion is stamped into every alert's alert_metadata.rules_version.
const RulesVersion = "2026.1"

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
