package server

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"paycycle/internal/domain"
	"paycycle/internal/rules"
)

type ruleCreateRequest struct {
	Amount          int64             `json:"amount"`
	CategoryID      *string           `json:"category_id"`
	Payee           string            `json:"payee"`
	Method          string            `json:"method"`
	Notes           string            `json:"notes"`
	Frequency       domain.Frequency  `json:"frequency"`
	Interval        int               `json:"interval"`
	StartDate       domain.Date       `json:"start_date"`
	EndDate         *domain.Date      `json:"end_date"`
	AutoCreate      bool              `json:"auto_create"`
	ReminderEnabled bool              `json:"reminder_enabled"`
	ReminderTime    *domain.TimeOfDay `json:"reminder_time"`
}

// rulePatchRequest is a partial update. Distinguishing absent from empty
// matters for two fields: "end_date": "" removes the end date and
// "category_id": "" clears the category.
type rulePatchRequest struct {
	Amount          *int64            `json:"amount"`
	CategoryID      *string           `json:"category_id"`
	Payee           *string           `json:"payee"`
	Method          *string           `json:"method"`
	Notes           *string           `json:"notes"`
	Frequency       *domain.Frequency `json:"frequency"`
	Interval        *int              `json:"interval"`
	StartDate       *domain.Date      `json:"start_date"`
	EndDate         *string           `json:"end_date"`
	AutoCreate      *bool             `json:"auto_create"`
	ReminderEnabled *bool             `json:"reminder_enabled"`
	ReminderTime    *domain.TimeOfDay `json:"reminder_time"`
}

func (req rulePatchRequest) toInput() (rules.UpdateInput, error) {
	in := rules.UpdateInput{
		Amount:          req.Amount,
		CategoryID:      req.CategoryID,
		Payee:           req.Payee,
		Method:          req.Method,
		Notes:           req.Notes,
		Frequency:       req.Frequency,
		Interval:        req.Interval,
		StartDate:       req.StartDate,
		AutoCreate:      req.AutoCreate,
		ReminderEnabled: req.ReminderEnabled,
		ReminderTime:    req.ReminderTime,
	}
	if req.EndDate != nil {
		if *req.EndDate == "" {
			in.ClearEndDate = true
		} else {
			d, err := domain.ParseDate(*req.EndDate)
			if err != nil {
				return in, domain.Invalid("end_date", "invalid date, want YYYY-MM-DD")
			}
			in.EndDate = &d
		}
	}
	return in, nil
}

type ruleCreateResponse struct {
	Rule                 *domain.Rule `json:"rule"`
	OccurrencesGenerated int          `json:"occurrences_generated"`
}

type reconcileCounts struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

type rulePatchResponse struct {
	Rule       *domain.Rule    `json:"rule"`
	Reconciled reconcileCounts `json:"reconciled"`
}

type ruleDeleteResponse struct {
	Rule                 *domain.Rule `json:"rule"`
	OccurrencesCancelled int          `json:"occurrences_cancelled"`
}

func (s *Service) handleRuleCreate(w http.ResponseWriter, r *http.Request) {
	var req ruleCreateRequest
	if err := readJSON(r, &req); err != nil {
		if errors.Is(err, errEmptyBody) {
			err = domain.Invalid("body", "request body is required")
		}
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Rules.Create(r.Context(), ownerID(r), rules.CreateInput{
		Amount:          req.Amount,
		CategoryID:      req.CategoryID,
		Payee:           req.Payee,
		Method:          req.Method,
		Notes:           req.Notes,
		Frequency:       req.Frequency,
		Interval:        req.Interval,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
		AutoCreate:      req.AutoCreate,
		ReminderEnabled: req.ReminderEnabled,
		ReminderTime:    req.ReminderTime,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ruleCreateResponse{
		Rule:                 res.Rule,
		OccurrencesGenerated: res.OccurrencesGenerated,
	})
}

func (s *Service) handleRuleList(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Rules.List(r.Context(), ownerID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": list})
}

func (s *Service) handleRuleGet(w http.ResponseWriter, r *http.Request) {
	rule, err := s.deps.Rules.Get(r.Context(), ownerID(r), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rule": rule})
}

func (s *Service) handleRulePatch(w http.ResponseWriter, r *http.Request) {
	var req rulePatchRequest
	if err := readJSON(r, &req); err != nil {
		if errors.Is(err, errEmptyBody) {
			err = domain.Invalid("body", "request body is required")
		}
		s.writeError(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.deps.Rules.Update(r.Context(), ownerID(r), mux.Vars(r)["id"], in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rulePatchResponse{
		Rule: res.Rule,
		Reconciled: reconcileCounts{
			Inserted: res.Reconciled.Inserted,
			Skipped:  res.Reconciled.Skipped,
		},
	})
}

func (s *Service) handleRuleDelete(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Rules.Deactivate(r.Context(), ownerID(r), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ruleDeleteResponse{
		Rule:                 res.Rule,
		OccurrencesCancelled: res.OccurrencesCancelled,
	})
}
