package domain

import "time"

// Status of a payment occurrence. Closed set; every decode path validates
// membership so an unknown status never enters the system.
type Status string

const (
	StatusUpcoming  Status = "upcoming"
	StatusConfirmed Status = "confirmed"
	StatusPaid      Status = "paid"
	StatusSkipped   Status = "skipped"
	StatusSnoozed   Status = "snoozed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusUpcoming, StatusConfirmed, StatusPaid, StatusSkipped, StatusSnoozed:
		return true
	}
	return false
}

// Terminal statuses freeze the occurrence: no action and no reconciliation
// ever rewrites a paid or skipped record.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusSkipped
}

func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", Invalidf("status", "unknown status %q", s)
	}
	return st, nil
}

// Occurrence is one dated materialization of a rule.
//
// Owner scoping is derived through RuleID. ReminderSentAt doubles as the
// dispatch dedup marker: once set, no further reminder is sent for this
// occurrence. Snoozing rewrites both OccursOn and SnoozedUntil.
type Occurrence struct {
	ID             string     `json:"id"`
	RuleID         string     `json:"rule_id"`
	OccursOn       Date       `json:"occurs_on"`
	Status         Status     `json:"status"`
	SnoozedUntil   *Date      `json:"snoozed_until,omitempty"`
	TransactionID  *string    `json:"transaction_id,omitempty"`
	ReminderSentAt *time.Time `json:"reminder_sent_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// EffectiveDate is the date reminders key on: the snoozed-until date while
// snoozed, the scheduled date otherwise.
func (o *Occurrence) EffectiveDate() Date {
	if o.Status == StatusSnoozed && o.SnoozedUntil != nil {
		return *o.SnoozedUntil
	}
	return o.OccursOn
}

func (o *Occurrence) Clone() *Occurrence {
	if o == nil {
		return nil
	}
	cp := *o
	if o.SnoozedUntil != nil {
		v := *o.SnoozedUntil
		cp.SnoozedUntil = &v
	}
	if o.TransactionID != nil {
		v := *o.TransactionID
		cp.TransactionID = &v
	}
	if o.ReminderSentAt != nil {
		v := *o.ReminderSentAt
		cp.ReminderSentAt = &v
	}
	return &cp
}
