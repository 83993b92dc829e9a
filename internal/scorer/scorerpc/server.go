package scorerpc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vitalstream/telemetry-pipeline/internal/events"
	"github.com/vitalstream/telemetry-pipeline/internal/scorer"
	"github.com/vitalstream/telemetry-pipeline/internal/vitals"
)

// Server implements AnomalyServer over an internal/scorer.Scorer, handling
// the §6 request validation and status-enum mapping at the RPC boundary so
// the domain scorer stays free of wire concerns.
type Server struct {
	Scorer *scorer.Scorer
	Logger *slog.Logger
}

// NewServer constructs a Server. A nil logger falls back to slog.Default().
func NewServer(s *scorer.Scorer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{Scorer: s, Logger: logger}
}

func (s *Server) Score(ctx context.Context, req *ScoreRequest) (*ScoreResponse, error) {
	if req.PatientID == "" || req.DeviceID == "" {
		return &ScoreResponse{
			Status:    StatusInvalidRequest,
			PatientID: req.PatientID,
			Timestamp: req.Timestamp,
			Error:     "patient_id and device_id are required",
		}, nil
	}
	if req.Vitals.HeartRate == nil && req.Vitals.OxygenSaturation == nil && req.Vitals.Temperature == nil {
		return &ScoreResponse{
			Status:    StatusInvalidRequest,
			PatientID: req.PatientID,
			Timestamp: req.Timestamp,
			Error:     "at least one of heart_rate, oxygen_saturation, temperature is required",
		}, nil
	}

	samples := map[string]float64{}
	if req.Vitals.HeartRate != nil {
		samples[vitals.HeartRate] = *req.Vitals.HeartRate
	}
	if req.Vitals.OxygenSaturation != nil {
		samples[vitals.OxygenSaturation] = *req.Vitals.OxygenSaturation
	}
	if req.Vitals.Temperature != nil {
		samples[vitals.Temperature] = *req.Vitals.Temperature
	}
	if req.Vitals.RespiratoryRate != nil {
		samples[vitals.RespiratoryRate] = *req.Vitals.RespiratoryRate
	}

	scores := make(map[string]events.VitalAnomalyScore, len(samples))
	for vital, value := range samples {
		score, err := s.Scorer.ScoreVital(ctx, req.PatientID, vital, value)
		if err != nil {
			s.Logger.Error("scorer rpc: scoring failed", "patient_id", req.PatientID, "vital", vital, "error", err)
			return &ScoreResponse{
				Status:    StatusInternalError,
				PatientID: req.PatientID,
				Timestamp: req.Timestamp,
				Error:     fmt.Sprintf("scoring %s: %v", vital, err),
			}, nil
		}
		scores[vital] = score
	}

	overall := scorer.OverallRiskScore(scores)
	return &ScoreResponse{
		Status:           StatusSuccess,
		PatientID:        req.PatientID,
		Timestamp:        req.Timestamp,
		OverallRiskScore: overall,
		AnomalyScores:    scores,
	}, nil
}

func (s *Server) Ping(_ context.Context, _ *PingRequest) (*PingResponse, error) {
	return &PingResponse{Healthy: true, Version: scorer.ModelVersion}, nil
}

var _ AnomalyServer = (*Server)(nil)
