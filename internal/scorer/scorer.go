// Package scorer implements the anomaly scorer (C4, §4.4): per-vital
// z-score computation against a rolling per-patient baseline, cold-start
// fallback, severity banding, and the fused overall risk score.
package scorer

import (
	"context"
	"fmt"
	"math"

	"github.com/vitalstream/telemetry-pipeline/internal/baseline"
	"github.com/vitalstream/telemetry-pipeline/internal/events"
	"github.com/vitalstream/telemetry-pipeline/internal/vitals"
)

// ModelVersion is stamped into every per-vital score (§3 Scored event).
const ModelVersion = "zscore-baseline-v1"

// Severity bands (§4.4 Overall risk score table, reused for per-vital bands).
const (
	SeverityNormal   = "normal"
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Scorer computes anomaly scores against a Store of per-(patient,vital)
// baselines.
type Scorer struct {
	Store baseline.Store
}

// New constructs a Scorer backed by store.
func New(store baseline.Store) *Scorer {
	return &Scorer{Store: store}
}

// ScoreVital scores a single (patient, vital, value) sample per §4.4.
//
// Cold start (fewer than MIN_BASELINE_SAMPLES prior values): the sample is
// appended first, then scored against the static clinical-range fallback
// table — the ordering is immaterial here since no z-score is computed
// (§9 open question).
//
// Warm path: the z-score is computed against the existing baseline BEFORE
// the current sample is appended, so a point never influences its own
// baseline (§4.4, R1).
func (s *Scorer) ScoreVital(ctx context.Context, patientID, vital string, value float64) (events.VitalAnomalyScore, error) {
	stats, warm, err := s.Store.Stats(ctx, patientID, vital)
	if err != nil {
		return events.VitalAnomalyScore{}, fmt.Errorf("scorer: stats lookup for %s/%s: %w", patientID, vital, err)
	}

	if !warm {
		count, cerr := s.Store.Count(ctx, patientID, vital)
		if cerr != nil {
			return events.VitalAnomalyScore{}, fmt.Errorf("scorer: count lookup for %s/%s: %w", patientID, vital, cerr)
		}
		if err := s.Store.Append(ctx, patientID, vital, value); err != nil {
			return events.VitalAnomalyScore{}, fmt.Errorf("scorer: cold-start append for %s/%s: %w", patientID, vital, err)
		}
		return coldStartScore(vital, value, count+1), nil
	}

	z := (value - stats.Mean) / stats.StdDev
	score, direction := zScoreToScore(z)
	isAnomaly := score > 0.5

	if err := s.Store.Append(ctx, patientID, vital, value); err != nil {
		return events.VitalAnomalyScore{}, fmt.Errorf("scorer: warm-path append for %s/%s: %w", patientID, vital, err)
	}

	return events.VitalAnomalyScore{
		Score:        score,
		Severity:     Band(score),
		IsAnomaly:    isAnomaly,
		ModelVersion: ModelVersion,
		Factors: []events.AnomalyFactor{{
			Name:        "z_score",
			Description: fmt.Sprintf("value is %.2f standard deviations %s the baseline mean", math.Abs(z), direction),
		}},
	}, nil
}

// coldStartScore implements the §4.4 cold-start fallback table.
func coldStartScore(vital string, value float64, sampleCount int) events.VitalAnomalyScore {
	var score float64
	var explanation string
	inRange, defined := vitals.InClinicalRange(vital, value)
	switch {
	case !defined:
		score = 0.3
		explanation = fmt.Sprintf("no clinical range defined for %s; insufficient baseline (%d samples)", vital, sampleCount)
	case !inRange:
		score = 0.5
		explanation = fmt.Sprintf("value outside static clinical range; insufficient baseline (%d samples)", sampleCount)
	default:
		score = 0.2
		explanation = fmt.Sprintf("value inside static clinical range; insufficient baseline (%d samples)", sampleCount)
	}
	return events.VitalAnomalyScore{
		Score:        score,
		Severity:     Band(score),
		IsAnomaly:    score > 0.5,
		ModelVersion: ModelVersion,
		Factors: []events.AnomalyFactor{{
			Name:        "cold_start",
			Description: explanation,
		}},
	}
}

// zScoreToScore maps |z| to a bounded [0,1] score via the §4.4
// piecewise-linear segments, continuous at the 1/2/3/4 boundaries (P7).
func zScoreToScore(z float64) (score float64, direction string) {
	direction = "above"
	if z < 0 {
		direction = "below"
	}
	absZ := math.Abs(z)

	var s float64
	switch {
	case absZ <= 1:
		s = lerp(absZ, 0, 1, 0.0, 0.2)
	case absZ <= 2:
		s = lerp(absZ, 1, 2, 0.2, 0.4)
	case absZ <= 3:
		s = lerp(absZ, 2, 3, 0.4, 0.6)
	case absZ <= 4:
		s = lerp(absZ, 3, 4, 0.6, 0.8)
	default:
		s = lerp(math.Min(absZ, 8), 4, 8, 0.8, 1.0)
		if s > 1.0 {
			s = 1.0
		}
	}
	return s, direction
}

// lerp linearly interpolates x from [x0,x1] to [y0,y1], clamping x to the
// source range first so callers on an open lower bound still behave.
func lerp(x, x0, x1, y0, y1 float64) float64 {
	if x1 == x0 {
		return y0
	}
	t := (x - x0) / (x1 - x0)
	if t < 0 {
		t = 0
	}
	if t > 1 {
		t = 1
	}
	return y0 + t*(y1-y0)
}

// Band maps a continuous score to its severity label (§4.4 table), used for
// both per-vital and overall severity. Monotonic in score (P6).
func Band(score float64) string {
	switch {
	case score < 0.2:
		return SeverityNormal
	case score < 0.4:
		return SeverityLow
	case score < 0.6:
		return SeverityMedium
	case score < 0.8:
		return SeverityHigh
	default:
		return SeverityCritical
	}
}

// OverallRiskScore fuses per-vital scores into the §4.4 weighted overall
// score: missing vitals drop out of the weighted average, renormalising
// weights; is_anomaly is the OR of per-vital is_anomaly.
func OverallRiskScore(perVital map[string]events.VitalAnomalyScore) events.OverallRiskScore {
	var weightedSum, weightSum float64
	anyAnomaly := false
	for _, vital := range vitals.CoreVitals[:] {
		v, ok := perVital[vital]
		if !ok {
			continue
		}
		w := vitals.CoreWeights[vital]
		weightedSum += w * v.Score
		weightSum += w
		if v.IsAnomaly {
			anyAnomaly = true
		}
	}
	// Any vital outside the three core ones still contributes to is_anomaly
	// even though it has no weight in the fused score.
	for name, v := range perVital {
		if _, core := vitals.CoreWeights[name]; !core && v.IsAnomaly {
			anyAnomaly = true
		}
	}

	var score float64
	if weightSum > 0 {
		score = weightedSum / weightSum
	}

	return events.OverallRiskScore{
		Score:             score,
		Severity:          Band(score),
		AggregationMethod: "weighted_mean_core_vitals",
		IsAnomaly:         anyAnomaly,
	}
}
