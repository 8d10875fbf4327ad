package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"paycycle/internal/domain"
	"paycycle/internal/lifecycle"
	"paycycle/internal/storage"
)

type payActionRequest struct {
	Amount     *int64     `json:"amount"`
	OccurredAt *time.Time `json:"occurred_at"`
}

type snoozeActionRequest struct {
	NewDate domain.Date `json:"new_date"`
}

type actionResponse struct {
	Occurrence *domain.Occurrence `json:"occurrence"`
	// Transaction is present only when this call wrote the ledger.
	Transaction *domain.Transaction `json:"transaction,omitempty"`
}

func (s *Service) handleOccurrenceList(w http.ResponseWriter, r *http.Request) {
	filter, err := occurrenceFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	list, err := s.deps.Rules.ListOccurrences(r.Context(), ownerID(r), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"occurrences": list})
}

// occurrenceFilter reads ?from=&to=&status=; status accepts a comma list.
func occurrenceFilter(r *http.Request) (storage.OccurrenceFilter, error) {
	var f storage.OccurrenceFilter
	q := r.URL.Query()
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		d, err := domain.ParseDate(raw)
		if err != nil {
			return f, domain.Invalid("from", "invalid date, want YYYY-MM-DD")
		}
		f.From = &d
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		d, err := domain.ParseDate(raw)
		if err != nil {
			return f, domain.Invalid("to", "invalid date, want YYYY-MM-DD")
		}
		f.To = &d
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, err := domain.ParseStatus(strings.TrimSpace(part))
			if err != nil {
				return f, domain.Invalidf("status", "unknown status %q", strings.TrimSpace(part))
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	return f, nil
}

// handleOccurrenceAction drives the lifecycle: confirm, pay, skip, snooze.
// Bodies are optional where every input is optional; snooze validates its
// required new_date in the service.
func (s *Service) handleOccurrenceAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	id, action := vars["id"], vars["action"]
	owner := ownerID(r)

	var (
		res *lifecycle.Result
		err error
	)
	switch action {
	case "confirm":
		res, err = s.deps.Lifecycle.Confirm(r.Context(), owner, id)
	case "pay":
		var req payActionRequest
		if derr := readJSON(r, &req); derr != nil && !errors.Is(derr, errEmptyBody) {
			s.writeError(w, r, derr)
			return
		}
		res, err = s.deps.Lifecycle.Pay(r.Context(), owner, id, lifecycle.PayInput{
			Amount:     req.Amount,
			OccurredAt: req.OccurredAt,
		})
	case "skip":
		res, err = s.deps.Lifecycle.Skip(r.Context(), owner, id)
	case "snooze":
		var req snoozeActionRequest
		if derr := readJSON(r, &req); derr != nil && !errors.Is(derr, errEmptyBody) {
			s.writeError(w, r, derr)
			return
		}
		res, err = s.deps.Lifecycle.Snooze(r.Context(), owner, id, lifecycle.SnoozeInput{NewDate: req.NewDate})
	default:
		s.writeError(w, r, domain.Invalidf("action", "unknown action %q", action))
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, actionResponse{Occurrence: res.Occurrence, Transaction: res.Transaction})
}
