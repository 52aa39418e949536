// Package httpapi implements the read-only HTTP surface consumed by the UI
// (spec §6.2): run listing, timelines, flow timing, selftest plan and
// degradations, and the platform status rollup. Every response carries a
// `version` field (spec §6.2: "breaking changes require a major bump").
package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/stepflow-dev/harness/internal/runindex"
	"github.com/stepflow-dev/harness/internal/runstore"
	"github.com/stepflow-dev/harness/internal/selftest"
	"github.com/stepflow-dev/harness/internal/telemetry"
)

const apiVersion = 1

// Server wires the run index, run store, and selftest catalog into a
// chi.Router exposing the spec §6.2 endpoints.
type Server struct {
	Index   *runindex.Index
	RunBase string
	Catalog []selftest.Step
	Log     telemetry.Logger
}

// NewServer constructs the HTTP surface. log may be nil (defaults to a
// no-op logger).
func NewServer(idx *runindex.Index, runBase string, catalog []selftest.Step, log telemetry.Logger) *Server {
	if log == nil {
		log = telemetry.Noop{}
	}
	return &Server{Index: idx, RunBase: runBase, Catalog: catalog, Log: log}
}

// Router builds the chi.Router for this Server.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/api/runs", s.handleListRuns)
	r.Get("/api/runs/{runID}/timeline", s.handleTimeline)
	r.Get("/api/runs/{runID}/flows/{flow}/timing", s.handleFlowTiming)
	r.Get("/api/runs/{runID}/flows/{flow}/steps/{step}", s.handleStepStatus)
	r.Get("/api/selftest/plan", s.handleSelftestPlan)
	r.Get("/api/selftest/degradations", s.handleDegradations)
	r.Get("/platform/status", s.handlePlatformStatus)
	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"version": apiVersion, "error": msg})
}

type runsResponse struct {
	Version int                     `json:"version"`
	Runs    []runindex.RunSummary   `json:"runs"`
	Total   int                     `json:"total"`
	Limit   int                     `json:"limit"`
	Offset  int                     `json:"offset"`
	HasMore bool                    `json:"has_more"`
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	runs, hasMore, err := s.Index.ListRuns(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runsResponse{
		Version: apiVersion, Runs: runs, Total: len(runs), Limit: limit, Offset: offset, HasMore: hasMore,
	})
}

type timelineResponse struct {
	Version int                  `json:"version"`
	RunID   string               `json:"run_id"`
	Events  []runindex.StepTiming `json:"events"`
}

func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	var events []runindex.StepTiming
	for _, flowKey := range orderedFlowKeys {
		timing, err := s.Index.FlowTiming(r.Context(), runID, flowKey)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		events = append(events, timing...)
	}
	writeJSON(w, http.StatusOK, timelineResponse{Version: apiVersion, RunID: runID, Events: events})
}

// orderedFlowKeys fixes the timeline's flow traversal order to the six
// fixed flows (spec §2), so two requests for the same run return events in
// the same order regardless of sqlite's row layout.
var orderedFlowKeys = []string{"signal", "plan", "build", "gate", "deploy", "wisdom"}

type flowTimingResponse struct {
	Version int                     `json:"version"`
	RunID   string                  `json:"run_id"`
	Flow    string                  `json:"flow"`
	Steps   []runindex.StepTiming   `json:"steps"`
}

func (s *Server) handleFlowTiming(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	flowKey := chi.URLParam(r, "flow")

	steps, err := s.Index.FlowTiming(r.Context(), runID, flowKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, flowTimingResponse{Version: apiVersion, RunID: runID, Flow: flowKey, Steps: steps})
}

func (s *Server) handleStepStatus(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	flowKey := chi.URLParam(r, "flow")
	stepID := chi.URLParam(r, "step")

	steps, err := s.Index.FlowTiming(r.Context(), runID, flowKey)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, st := range steps {
		if st.StepID == stepID {
			writeJSON(w, http.StatusOK, map[string]any{"version": apiVersion, "run_id": runID, "flow": flowKey, "step": st})
			return
		}
	}
	writeError(w, http.StatusNotFound, "step not found")
}

type selftestPlanResponse struct {
	Version int              `json:"version"`
	Steps   []selftest.Step  `json:"steps"`
}

func (s *Server) handleSelftestPlan(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, selftestPlanResponse{Version: apiVersion, Steps: s.Catalog})
}

func (s *Server) handleDegradations(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		writeError(w, http.StatusBadRequest, "run_id query parameter is required")
		return
	}
	layout := runstore.NewLayout(s.RunBase, runID)
	raw, err := runstore.Read(layout.DegradationLogPath())
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"version": apiVersion, "run_id": runID, "entries": []any{}})
		return
	}
	entries := []json.RawMessage{}
	for _, line := range bytes.Split(raw, []byte("\n")) {
		if len(bytes.TrimSpace(line)) > 0 && json.Valid(line) {
			entries = append(entries, json.RawMessage(line))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"version": apiVersion, "run_id": runID, "entries": entries})
}

// platformStatusResponse is the governance rollup (spec §6.2: "{GREEN,
// YELLOW, RED}").
type platformStatusResponse struct {
	Version int    `json:"version"`
	Status  string `json:"status"`
}

func (s *Server) handlePlatformStatus(w http.ResponseWriter, r *http.Request) {
	recent, _, err := s.Index.ListRuns(r.Context(), 20, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, platformStatusResponse{Version: apiVersion, Status: rollupStatus(recent)})
}

// rollupStatus derives the platform-wide traffic light from the most
// recent runs: any failure in the window is RED, any run still mid-flight
// is YELLOW, otherwise GREEN. Absent any run history, GREEN (nothing has
// failed because nothing has run).
func rollupStatus(runs []runindex.RunSummary) string {
	sawRunning := false
	for _, run := range runs {
		switch run.Status {
		case "failed":
			return "RED"
		case "running":
			sawRunning = true
		}
	}
	if sawRunning {
		return "YELLOW"
	}
	return "GREEN"
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
