package httpapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stepflow-dev/harness/internal/httpapi"
	"github.com/stepflow-dev/harness/internal/runindex"
	"github.com/stepflow-dev/harness/internal/schema"
	"github.com/stepflow-dev/harness/internal/selftest"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httpapi.Server, *runindex.Index) {
	t.Helper()
	idx, err := runindex.Open(filepath.Join(t.TempDir(), "runindex.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return httpapi.NewServer(idx, t.TempDir(), selftest.DefaultCatalog, nil), idx
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst))
}

func TestListRuns_ReturnsVersionedPage(t *testing.T) {
	srv, idx := newTestServer(t)
	require.NoError(t, idx.UpsertRun(context.Background(), "run-1", time.Now(), "completed"))

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decodeBody(t, rec, &body)
	require.Equal(t, float64(1), body["version"])
	runs, _ := body["runs"].([]any)
	require.Len(t, runs, 1)
}

func TestFlowTiming_ReturnsUpsertedStep(t *testing.T) {
	srv, idx := newTestServer(t)
	require.NoError(t, idx.UpsertStep(context.Background(), schema.Receipt{
		RunID: "run-1", FlowKey: "build", StepID: "implement", AgentKey: "drafter",
		Status: schema.StatusPass, StartedAt: time.Now(), EndedAt: time.Now(), DurationMs: 50,
	}))

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/run-1/flows/build/timing", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decodeBody(t, rec, &body)
	steps, _ := body["steps"].([]any)
	require.Len(t, steps, 1)
}

func TestStepStatus_UnknownStepReturns404(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/run-1/flows/build/steps/missing", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSelftestPlan_ReturnsCatalog(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/selftest/plan", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Version int             `json:"version"`
		Steps   []selftest.Step `json:"steps"`
	}
	decodeBody(t, rec, &body)
	require.Equal(t, len(selftest.DefaultCatalog), len(body.Steps))
}

func TestPlatformStatus_RedOnFailedRun(t *testing.T) {
	srv, idx := newTestServer(t)
	require.NoError(t, idx.UpsertRun(context.Background(), "run-1", time.Now(), "failed"))

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/platform/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decodeBody(t, rec, &body)
	require.Equal(t, "RED", body["status"])
}

func TestPlatformStatus_GreenWithNoRuns(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/platform/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decodeBody(t, rec, &body)
	require.Equal(t, "GREEN", body["status"])
}

func TestDegradations_MissingRunIDIsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/selftest/degradations", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
