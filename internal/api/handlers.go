package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/signalsfoundry/pod-mover-simulator/internal/logging"
	"github.com/signalsfoundry/pod-mover-simulator/internal/report"
	"github.com/signalsfoundry/pod-mover-simulator/kb"
	"github.com/signalsfoundry/pod-mover-simulator/model"
)

type handler struct {
	status  StatusSource
	runs    RunSource
	healthy func() error
	log     logging.Logger
}

// ErrorResponse is the JSON body of every non-2xx reply.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

type stationsResponse struct {
	Stations []kb.StationStatus `json:"stations"`
	Count    int                `json:"count"`
}

type podsResponse struct {
	Pods  []kb.PodStatus `json:"pods"`
	Count int            `json:"count"`
}

type runsResponse struct {
	Runs  []runJSON `json:"runs"`
	Count int       `json:"count"`
}

type runJSON struct {
	ID               string     `json:"id"`
	StartedAt        time.Time  `json:"startedAt"`
	AdvancedPlanning bool       `json:"advancedPlanning"`
	SpawnRate        float64    `json:"spawnRate"`
	Pods             int        `json:"pods"`
	Seed             uint64     `json:"seed"`
	Totals           kb.Summary `json:"totals"`
	MeanDelaySeconds float64    `json:"meanDelaySeconds"`
	DelayStdDev      float64    `json:"delayStdDev"`
	Halted           string     `json:"halted,omitempty"`
}

type deliveriesResponse struct {
	RunID      string            `json:"runId"`
	Deliveries []report.Delivery `json:"deliveries"`
	Count      int               `json:"count"`
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if h.healthy != nil {
		if err := h.healthy(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "halted",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"simTime": h.status.Summary().SimTime,
	})
}

func (h *handler) summary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.status.Summary())
}

func (h *handler) listStations(w http.ResponseWriter, r *http.Request) {
	stations := h.status.ListStations()
	if r.URL.Query().Get("waiting") == "true" {
		kept := stations[:0]
		for _, s := range stations {
			if s.Waiting > 0 {
				kept = append(kept, s)
			}
		}
		stations = kept
	}
	if stations == nil {
		stations = []kb.StationStatus{}
	}
	writeJSON(w, http.StatusOK, stationsResponse{Stations: stations, Count: len(stations)})
}

func (h *handler) getStation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	st, found := h.status.GetStation(model.StationID(id))
	if !found {
		writeError(w, http.StatusNotFound, "station not found", map[string]any{"id": id})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *handler) listPods(w http.ResponseWriter, r *http.Request) {
	pods := h.status.ListPods()
	if state := r.URL.Query().Get("state"); state != "" {
		kept := pods[:0]
		for _, p := range pods {
			if p.State == state {
				kept = append(kept, p)
			}
		}
		pods = kept
	}
	if pods == nil {
		pods = []kb.PodStatus{}
	}
	writeJSON(w, http.StatusOK, podsResponse{Pods: pods, Count: len(pods)})
}

func (h *handler) getPod(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, found := h.status.GetPod(model.PodID(id))
	if !found {
		writeError(w, http.StatusNotFound, "pod not found", map[string]any{"id": id})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handler) listRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusNotFound, "results store not configured", nil)
		return
	}
	runs, err := h.runs.Runs(r.Context())
	if err != nil {
		h.log.Error(r.Context(), "list runs failed", logging.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs", map[string]any{"internal": err.Error()})
		return
	}
	out := make([]runJSON, 0, len(runs))
	for _, run := range runs {
		out = append(out, runJSON{
			ID:               run.ID,
			StartedAt:        run.StartedAt,
			AdvancedPlanning: run.AdvancedPlanning,
			SpawnRate:        run.SpawnRate,
			Pods:             run.Pods,
			Seed:             run.Seed,
			Totals:           run.Totals,
			MeanDelaySeconds: run.MeanDelaySeconds,
			DelayStdDev:      run.DelayStdDev,
			Halted:           run.Halted,
		})
	}
	writeJSON(w, http.StatusOK, runsResponse{Runs: out, Count: len(out)})
}

func (h *handler) listDeliveries(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, http.StatusNotFound, "results store not configured", nil)
		return
	}
	runID := chi.URLParam(r, "id")
	ds, err := h.runs.Deliveries(r.Context(), runID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list deliveries", map[string]any{"runId": runID, "internal": err.Error()})
		return
	}
	if ds == nil {
		ds = []report.Delivery{}
	}
	writeJSON(w, http.StatusOK, deliveriesResponse{RunID: runID, Deliveries: ds, Count: len(ds)})
}

func pathID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 0 {
		writeError(w, http.StatusBadRequest, "id must be a non-negative integer", map[string]any{"id": raw})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, msg string, details map[string]any) {
	writeJSON(w, code, ErrorResponse{Error: msg, Details: details})
}
