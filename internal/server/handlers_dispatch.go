package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"paycycle/internal/eventbus"
	"paycycle/internal/runtime/supervisor"
)

type dispatchRequest struct {
	WindowMinutes int `json:"window_minutes"`
}

func (s *Service) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := readJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		s.writeError(w, r, err)
		return
	}
	report, err := s.deps.Dispatcher.Run(r.Context(), req.WindowMinutes)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type healthResponse struct {
	Status string              `json:"status"`
	Store  string              `json:"store"`
	Tasks  supervisor.Counters `json:"tasks"`
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Store: "ok"}
	if s.deps.Counters != nil {
		resp.Tasks = s.deps.Counters()
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.deps.Store.Ping(ctx); err != nil {
		resp.Status = "degraded"
		resp.Store = err.Error()
		if s.deps.Bus != nil {
			s.deps.Bus.Publish(eventbus.Event{Type: eventbus.TypeStoreFault, Data: err.Error()})
		}
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
