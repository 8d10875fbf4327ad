package rules

import "paycycle/internal/domain"

// Config tunes materialization.
type Config struct {
	// LookaheadDays is the generation window measured from today. Default 90.
	LookaheadDays int
}

const defaultLookaheadDays = 90

// CreateInput carries the fields of a new rule. The service mints the id,
// stamps timestamps and sets the rule active.
type CreateInput struct {
	Amount          int64
	CategoryID      *string
	Payee           string
	Method          string
	Notes           string
	Frequency       domain.Frequency
	Interval        int
	StartDate       domain.Date
	EndDate         *domain.Date
	AutoCreate      bool
	ReminderEnabled bool
	// ReminderTime defaults to 09:00:00 when nil.
	ReminderTime *domain.TimeOfDay
}

// UpdateInput is a partial patch; nil fields keep their current value.
// ClearEndDate removes the end date (EndDate is then ignored); an empty
// CategoryID clears the category.
type UpdateInput struct {
	Amount          *int64
	CategoryID      *string
	Payee           *string
	Method          *string
	Notes           *string
	Frequency       *domain.Frequency
	Interval        *int
	StartDate       *domain.Date
	EndDate         *domain.Date
	ClearEndDate    bool
	AutoCreate      *bool
	ReminderEnabled *bool
	ReminderTime    *domain.TimeOfDay
}

func (in UpdateInput) apply(r *domain.Rule) {
	if in.Amount != nil {
		r.Amount = *in.Amount
	}
	if in.CategoryID != nil {
		if *in.CategoryID == "" {
			r.CategoryID = nil
		} else {
			v := *in.CategoryID
			r.CategoryID = &v
		}
	}
	if in.Payee != nil {
		r.Payee = *in.Payee
	}
	if in.Method != nil {
		r.Method = *in.Method
	}
	if in.Notes != nil {
		r.Notes = *in.Notes
	}
	if in.Frequency != nil {
		r.Frequency = *in.Frequency
	}
	if in.Interval != nil {
		r.Interval = *in.Interval
	}
	if in.StartDate != nil {
		r.StartDate = *in.StartDate
	}
	if in.ClearEndDate {
		r.EndDate = nil
	} else if in.EndDate != nil {
		v := *in.EndDate
		r.EndDate = &v
	}
	if in.AutoCreate != nil {
		r.AutoCreate = *in.AutoCreate
	}
	if in.ReminderEnabled != nil {
		r.ReminderEnabled = *in.ReminderEnabled
	}
	if in.ReminderTime != nil {
		r.ReminderTime = *in.ReminderTime
	}
}

// CreateResult reports the new rule and how many occurrences the first
// materialization produced.
type CreateResult struct {
	Rule                 *domain.Rule
	OccurrencesGenerated int
}

// ReconcileResult counts the occurrence writes of one reconciliation.
type ReconcileResult struct {
	Inserted int
	Skipped  int
}

// UpdateResult reports the merged rule; Reconciled is zero when no schedule
// field changed.
type UpdateResult struct {
	Rule       *domain.Rule
	Reconciled ReconcileResult
}

// DeactivateResult reports the rule and how many future occurrences the
// deactivation cancelled.
type DeactivateResult struct {
	Rule                 *domain.Rule
	OccurrencesCancelled int
}
