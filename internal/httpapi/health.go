package httpapi

import (
	"encoding/json"
	"net/http"
)

type healthResult struct {
	BusyThreads int `json:"busy_threads"`
	MaxThreads  int `json:"max_threads"`
	QueuedJobs  int `json:"queued_jobs"`
}

type healthResponse struct {
	Status string        `json:"status"`
	Result *healthResult `json:"result,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	if !s.cfg.HealthEnabled {
		writeJSON(w, http.StatusForbidden, healthResponse{Status: "forbidden"})
		return
	}

	counts := s.queue.SnapshotCounts()
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Result: &healthResult{
			BusyThreads: counts.BusyThreads,
			MaxThreads:  int(s.maxThreads.Load()),
			QueuedJobs:  counts.QueuedJobs,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
