package domain

import (
	"fmt"
	"time"
)

// Frequency is the recurrence cadence of a rule. Closed set.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(s)
	if !f.Valid() {
		return "", Invalidf("frequency", "unknown frequency %q", s)
	}
	return f, nil
}

// Rule is a recurring payment schedule owned by one user.
//
// Amount, category, payee, method and notes are the template the ledger
// transaction is stamped from when an occurrence is confirmed or paid.
// AutoCreate marks rules whose transactions materialize without a manual
// confirm; such rules reject the confirm action.
type Rule struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"owner_id"`
	Amount          int64     `json:"amount"`
	CategoryID      *string   `json:"category_id,omitempty"`
	Payee           string    `json:"payee"`
	Method          string    `json:"method"`
	Notes           string    `json:"notes"`
	Frequency       Frequency `json:"frequency"`
	Interval        int       `json:"interval"`
	StartDate       Date      `json:"start_date"`
	EndDate         *Date     `json:"end_date,omitempty"`
	Active          bool      `json:"active"`
	AutoCreate      bool      `json:"auto_create"`
	ReminderEnabled bool      `json:"reminder_enabled"`
	ReminderTime    TimeOfDay `json:"reminder_time"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Validate checks field and cross-field constraints. It does not touch ID,
// OwnerID or timestamps; the services own those.
func (r *Rule) Validate() error {
	if r.Amount <= 0 {
		return Invalid("amount", "must be a positive amount in minor units")
	}
	if !r.Frequency.Valid() {
		return Invalidf("frequency", "unknown frequency %q", string(r.Frequency))
	}
	if r.Interval < 1 {
		return Invalid("interval", "must be >= 1")
	}
	if r.StartDate.IsZero() || !r.StartDate.Valid() {
		return Invalid("start_date", "must be a valid date")
	}
	if r.EndDate != nil {
		if !r.EndDate.Valid() {
			return Invalid("end_date", "must be a valid date")
		}
		if r.EndDate.Before(r.StartDate) {
			return Invalidf("end_date", "must not be before start_date %s", r.StartDate)
		}
	}
	if !r.ReminderTime.Valid() {
		return Invalid("reminder_time", "must be a valid time of day")
	}
	return nil
}

// EffectiveReminderTime falls back to 09:00:00 when the rule never set one.
func (r *Rule) EffectiveReminderTime() TimeOfDay {
	if r.ReminderTime.IsZero() {
		return DefaultReminderTime
	}
	return r.ReminderTime
}

func (r *Rule) Clone() *Rule {
	if r == nil {
		return nil
	}
	cp := *r
	if r.CategoryID != nil {
		v := *r.CategoryID
		cp.CategoryID = &v
	}
	if r.EndDate != nil {
		v := *r.EndDate
		cp.EndDate = &v
	}
	return &cp
}

func (r *Rule) Describe() string {
	return fmt.Sprintf("%s every %d %s from %s", r.Payee, r.Interval, r.Frequency, r.StartDate)
}
