package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/smarthome-core/internal/schedule"
)

// createScheduleRequest is the body of POST /schedules.
//
// Schedule is "HH:MM" for a time of day or a relative delay in seconds
// ("90", "2.5") or as a Go duration ("1m30s").
type createScheduleRequest struct {
	Device    string `json:"device"`
	Operation string `json:"operation"`
	Arguments []any  `json:"arguments"`
	Schedule  string `json:"schedule"`
	Recurring bool   `json:"recurring"`
}

// handleListSchedules returns pending scheduled operations in registration
// order, filtered with ?device=.
func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	views := s.scheduler.ListPending(r.URL.Query().Get("device"))
	writeJSON(w, http.StatusOK, map[string]any{"schedules": views, "count": len(views)})
}

// handleCreateSchedule registers a deferred operation.
func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Device == "" || req.Operation == "" {
		writeBadRequest(w, "device and operation are required")
		return
	}

	sched, err := schedule.Parse(req.Schedule)
	if err != nil {
		s.writeDomainError(w, err, "failed to parse schedule")
		return
	}

	h, err := s.scheduler.Schedule(r.Context(), req.Device, req.Operation, req.Arguments, sched, req.Recurring)
	if err != nil {
		s.writeDomainError(w, err, "failed to schedule operation")
		return
	}

	view, ok := s.scheduler.Get(h)
	if !ok {
		// A zero-delay one-shot can fire and be removed before we look.
		writeJSON(w, http.StatusCreated, map[string]any{"id": h.String(), "state": "fired"})
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// handleGetSchedule returns one pending scheduled operation.
func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	view, ok := s.scheduler.Get(schedule.Handle(chi.URLParam(r, "id")))
	if !ok {
		writeNotFound(w, "scheduled operation not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleCancelSchedule cancels a scheduled operation. Cancelling an entry
// that already fired or never existed succeeds.
func (s *Server) handleCancelSchedule(w http.ResponseWriter, r *http.Request) {
	//nolint:errcheck // Cancel is idempotent and always returns nil
	s.scheduler.Cancel(schedule.Handle(chi.URLParam(r, "id")))
	w.WriteHeader(http.StatusNoContent)
}
