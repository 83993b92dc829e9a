package query

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitalstream/telemetry-pipeline/internal/aggregator"
)

func newTestServer(t *testing.T) (*Server, *aggregator.InMemory) {
	t.Helper()
	store := aggregator.NewInMemory(0, 0, 0)
	return NewServer(store, ":0", nil), store
}

func TestHandlePatientSummaryReturnsReadModel(t *testing.T) {
	srv, _ := newTestServer(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/stats/patients/", srv.handlePatientSummary)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/stats/patients/patient_1/summary")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var summary aggregator.PatientSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
}

func TestHandlePatientSummaryRejectsMalformedPath(t *testing.T) {
	srv, _ := newTestServer(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/stats/patients/", srv.handlePatientSummary)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/stats/patients/patient_1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleGlobalAlertsDefaultsToCurrentMinuteView(t *testing.T) {
	srv, _ := newTestServer(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/stats/global/alerts", srv.handleGlobalAlerts)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/stats/global/alerts")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var alerts aggregator.GlobalAlerts
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&alerts))
}

func TestHandleGlobalAlertsWithWindowParamSumsRecentAlerts(t *testing.T) {
	srv, store := newTestServer(t)

	require.NoError(t, store.RecordAlert(context.Background(), "critical", time.Now()))

	mux := http.NewServeMux()
	mux.HandleFunc("/stats/global/alerts", srv.handleGlobalAlerts)
	ts := httptest.NewServer(mux)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/stats/global/alerts?window=10m")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, float64(10), body["window_minutes"])
	counts, ok := body["alerts_per_minute"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(1), counts["critical"])
}

func TestParseWindowMinutesRejectsGarbage(t *testing.T) {
	_, err := parseWindowMinutes("banana")
	assert.Error(t, err)
}

func TestParseWindowMinutesDefaultsWhenEmpty(t *testing.T) {
	minutes, err := parseWindowMinutes("")
	require.NoError(t, err)
	assert.Equal(t, defaultRecentAlertsWindowMinutes, minutes)
}
