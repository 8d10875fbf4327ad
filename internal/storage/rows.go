package storage

import (
	"fmt"
	"time"

	"paycycle/internal/domain"
)

// Row structs keep the storage encoding out of the domain types: instants are
// RFC 3339 strings in UTC, dates are "2006-01-02", times of day "15:04:05".
// Every decode validates closed sets (status, frequency) so a bad row
// surfaces as an error instead of an impossible domain value.

func encodeInstant(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func decodeInstant(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse instant %q: %w", s, err)
	}
	return t, nil
}

func encodeDatePtr(d *domain.Date) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func decodeDatePtr(s *string) (*domain.Date, error) {
	if s == nil {
		return nil, nil
	}
	d, err := domain.ParseDate(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func encodeInstantPtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := encodeInstant(*t)
	return &s
}

func decodeInstantPtr(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := decodeInstant(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

type ruleRow struct {
	ID              string  `db:"id"`
	OwnerID         string  `db:"owner_id"`
	Amount          int64   `db:"amount"`
	CategoryID      *string `db:"category_id"`
	Payee           string  `db:"payee"`
	Method          string  `db:"method"`
	Notes           string  `db:"notes"`
	Frequency       string  `db:"frequency"`
	Interval        int     `db:"interval"`
	StartDate       string  `db:"start_date"`
	EndDate         *string `db:"end_date"`
	Active          bool    `db:"active"`
	AutoCreate      bool    `db:"auto_create"`
	ReminderEnabled bool    `db:"reminder_enabled"`
	ReminderTime    string  `db:"reminder_time"`
	CreatedAt       string  `db:"created_at"`
	UpdatedAt       string  `db:"updated_at"`
}

func ruleToRow(r *domain.Rule) ruleRow {
	return ruleRow{
		ID:              r.ID,
		OwnerID:         r.OwnerID,
		Amount:          r.Amount,
		CategoryID:      r.CategoryID,
		Payee:           r.Payee,
		Method:          r.Method,
		Notes:           r.Notes,
		Frequency:       string(r.Frequency),
		Interval:        r.Interval,
		StartDate:       r.StartDate.String(),
		EndDate:         encodeDatePtr(r.EndDate),
		Active:          r.Active,
		AutoCreate:      r.AutoCreate,
		ReminderEnabled: r.ReminderEnabled,
		ReminderTime:    r.ReminderTime.String(),
		CreatedAt:       encodeInstant(r.CreatedAt),
		UpdatedAt:       encodeInstant(r.UpdatedAt),
	}
}

func (row ruleRow) toDomain() (*domain.Rule, error) {
	freq, err := domain.ParseFrequency(row.Frequency)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", row.ID, err)
	}
	start, err := domain.ParseDate(row.StartDate)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", row.ID, err)
	}
	end, err := decodeDatePtr(row.EndDate)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", row.ID, err)
	}
	remindAt, err := domain.ParseTimeOfDay(row.ReminderTime)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", row.ID, err)
	}
	created, err := decodeInstant(row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", row.ID, err)
	}
	updated, err := decodeInstant(row.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("rule %s: %w", row.ID, err)
	}
	return &domain.Rule{
		ID:              row.ID,
		OwnerID:         row.OwnerID,
		Amount:          row.Amount,
		CategoryID:      row.CategoryID,
		Payee:           row.Payee,
		Method:          row.Method,
		Notes:           row.Notes,
		Frequency:       freq,
		Interval:        row.Interval,
		StartDate:       start,
		EndDate:         end,
		Active:          row.Active,
		AutoCreate:      row.AutoCreate,
		ReminderEnabled: row.ReminderEnabled,
		ReminderTime:    remindAt,
		CreatedAt:       created,
		UpdatedAt:       updated,
	}, nil
}

type occurrenceRow struct {
	ID             string  `db:"id"`
	RuleID         string  `db:"rule_id"`
	OccursOn       string  `db:"occurs_on"`
	Status         string  `db:"status"`
	SnoozedUntil   *string `db:"snoozed_until"`
	TransactionID  *string `db:"transaction_id"`
	ReminderSentAt *string `db:"reminder_sent_at"`
	CreatedAt      string  `db:"created_at"`
	UpdatedAt      string  `db:"updated_at"`
}

func occurrenceToRow(o *domain.Occurrence) occurrenceRow {
	return occurrenceRow{
		ID:             o.ID,
		RuleID:         o.RuleID,
		OccursOn:       o.OccursOn.String(),
		Status:         string(o.Status),
		SnoozedUntil:   encodeDatePtr(o.SnoozedUntil),
		TransactionID:  o.TransactionID,
		ReminderSentAt: encodeInstantPtr(o.ReminderSentAt),
		CreatedAt:      encodeInstant(o.CreatedAt),
		UpdatedAt:      encodeInstant(o.UpdatedAt),
	}
}

func (row occurrenceRow) toDomain() (*domain.Occurrence, error) {
	status, err := domain.ParseStatus(row.Status)
	if err != nil {
		return nil, fmt.Errorf("occurrence %s: %w", row.ID, err)
	}
	occursOn, err := domain.ParseDate(row.OccursOn)
	if err != nil {
		return nil, fmt.Errorf("occurrence %s: %w", row.ID, err)
	}
	snoozed, err := decodeDatePtr(row.SnoozedUntil)
	if err != nil {
		return nil, fmt.Errorf("occurrence %s: %w", row.ID, err)
	}
	sentAt, err := decodeInstantPtr(row.ReminderSentAt)
	if err != nil {
		return nil, fmt.Errorf("occurrence %s: %w", row.ID, err)
	}
	created, err := decodeInstant(row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("occurrence %s: %w", row.ID, err)
	}
	updated, err := decodeInstant(row.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("occurrence %s: %w", row.ID, err)
	}
	return &domain.Occurrence{
		ID:             row.ID,
		RuleID:         row.RuleID,
		OccursOn:       occursOn,
		Status:         status,
		SnoozedUntil:   snoozed,
		TransactionID:  row.TransactionID,
		ReminderSentAt: sentAt,
		CreatedAt:      created,
		UpdatedAt:      updated,
	}, nil
}

type transactionRow struct {
	ID         string  `db:"id"`
	OwnerID    string  `db:"owner_id"`
	Amount     int64   `db:"amount"`
	OccurredAt string  `db:"occurred_at"`
	CategoryID *string `db:"category_id"`
	Payee      string  `db:"payee"`
	Method     string  `db:"method"`
	Notes      string  `db:"notes"`
	CreatedAt  string  `db:"created_at"`
	UpdatedAt  string  `db:"updated_at"`
}

func transactionToRow(t *domain.Transaction) transactionRow {
	return transactionRow{
		ID:         t.ID,
		OwnerID:    t.OwnerID,
		Amount:     t.Amount,
		OccurredAt: encodeInstant(t.OccurredAt),
		CategoryID: t.CategoryID,
		Payee:      t.Payee,
		Method:     t.Method,
		Notes:      t.Notes,
		CreatedAt:  encodeInstant(t.CreatedAt),
		UpdatedAt:  encodeInstant(t.UpdatedAt),
	}
}

type subscriptionRow struct {
	ID        string `db:"id"`
	OwnerID   string `db:"owner_id"`
	Endpoint  string `db:"endpoint"`
	P256dhKey string `db:"p256dh_key"`
	AuthKey   string `db:"auth_key"`
	Active    bool   `db:"active"`
	CreatedAt string `db:"created_at"`
}

func subscriptionToRow(s *domain.PushSubscription) subscriptionRow {
	return subscriptionRow{
		ID:        s.ID,
		OwnerID:   s.OwnerID,
		Endpoint:  s.Endpoint,
		P256dhKey: s.P256dhKey,
		AuthKey:   s.AuthKey,
		Active:    s.Active,
		CreatedAt: encodeInstant(s.CreatedAt),
	}
}

func (row subscriptionRow) toDomain() (*domain.PushSubscription, error) {
	created, err := decodeInstant(row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("subscription %s: %w", row.ID, err)
	}
	return &domain.PushSubscription{
		ID:        row.ID,
		OwnerID:   row.OwnerID,
		Endpoint:  row.Endpoint,
		P256dhKey: row.P256dhKey,
		AuthKey:   row.AuthKey,
		Active:    row.Active,
		CreatedAt: created,
	}, nil
}

type settingsRow struct {
	OwnerID   string `db:"owner_id"`
	Enabled   bool   `db:"enabled"`
	TimeZone  string `db:"time_zone"`
	UpdatedAt string `db:"updated_at"`
}

func settingsToRow(s *domain.NotificationSettings) settingsRow {
	return settingsRow{
		OwnerID:   s.OwnerID,
		Enabled:   s.Enabled,
		TimeZone:  s.TimeZone,
		UpdatedAt: encodeInstant(s.UpdatedAt),
	}
}

func (row settingsRow) toDomain() (*domain.NotificationSettings, error) {
	updated, err := decodeInstant(row.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("settings %s: %w", row.OwnerID, err)
	}
	return &domain.NotificationSettings{
		OwnerID:   row.OwnerID,
		Enabled:   row.Enabled,
		TimeZone:  row.TimeZone,
		UpdatedAt: updated,
	}, nil
}
