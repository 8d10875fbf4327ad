package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"paycycle/internal/domain"
)

type sqliteOccurrences struct{ s *sqliteStore }

const insertOccurrenceSQL = `
INSERT INTO occurrences (id, rule_id, occurs_on, status, snoozed_until,
                         transaction_id, reminder_sent_at, created_at, updated_at)
VALUES (:id, :rule_id, :occurs_on, :status, :snoozed_until,
        :transaction_id, :reminder_sent_at, :created_at, :updated_at)`

const updateOccurrenceSQL = `
UPDATE occurrences SET occurs_on = :occurs_on, status = :status,
                       snoozed_until = :snoozed_until,
                       transaction_id = :transaction_id,
                       reminder_sent_at = :reminder_sent_at,
                       updated_at = :updated_at
WHERE id = :id`

func (o sqliteOccurrences) InsertMany(ctx context.Context, occs []*domain.Occurrence) error {
	if len(occs) == 0 {
		return nil
	}
	tx, err := o.s.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Transient("occurrences.insert_many", err)
	}
	for _, occ := range occs {
		if _, err := tx.NamedExecContext(ctx, insertOccurrenceSQL, occurrenceToRow(occ)); err != nil {
			_ = tx.Rollback()
			return domain.Transient("occurrences.insert_many", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Transient("occurrences.insert_many", err)
	}
	return nil
}

func (o sqliteOccurrences) Update(ctx context.Context, occ *domain.Occurrence) error {
	res, err := o.s.db.NamedExecContext(ctx, updateOccurrenceSQL, occurrenceToRow(occ))
	if err != nil {
		return domain.Transient("occurrences.update", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("occurrence", occ.ID)
	}
	return nil
}

func (o sqliteOccurrences) ByID(ctx context.Context, ownerID, id string) (*domain.Occurrence, error) {
	var row occurrenceRow
	err := o.s.db.GetContext(ctx, &row, `
		SELECT o.* FROM occurrences o
		JOIN rules r ON r.id = o.rule_id
		WHERE o.id = ? AND r.owner_id = ?`, id, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("occurrence", id)
	}
	if err != nil {
		return nil, domain.Transient("occurrences.by_id", err)
	}
	occ, err := row.toDomain()
	if err != nil {
		return nil, domain.Transient("occurrences.by_id", err)
	}
	return occ, nil
}

func (o sqliteOccurrences) ListByRule(ctx context.Context, ruleID string, from, to *domain.Date) ([]*domain.Occurrence, error) {
	q := `SELECT * FROM occurrences WHERE rule_id = ?`
	args := []any{ruleID}
	if from != nil {
		q += ` AND occurs_on >= ?`
		args = append(args, from.String())
	}
	if to != nil {
		q += ` AND occurs_on <= ?`
		args = append(args, to.String())
	}
	q += ` ORDER BY occurs_on, id`
	return o.selectMany(ctx, "occurrences.list_by_rule", q, args...)
}

func (o sqliteOccurrences) ListByOwner(ctx context.Context, ownerID string, f OccurrenceFilter) ([]*domain.Occurrence, error) {
	q := `SELECT o.* FROM occurrences o JOIN rules r ON r.id = o.rule_id WHERE r.owner_id = ?`
	args := []any{ownerID}
	if f.From != nil {
		q += ` AND o.occurs_on >= ?`
		args = append(args, f.From.String())
	}
	if f.To != nil {
		q += ` AND o.occurs_on <= ?`
		args = append(args, f.To.String())
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		q += ` AND o.status IN (?)`
		args = append(args, statuses)
		var err error
		q, args, err = sqlx.In(q, args...)
		if err != nil {
			return nil, domain.Transient("occurrences.list_by_owner", err)
		}
		q = o.s.db.Rebind(q)
	}
	q += ` ORDER BY o.occurs_on, o.id`
	return o.selectMany(ctx, "occurrences.list_by_owner", q, args...)
}

func (o sqliteOccurrences) FutureByRule(ctx context.Context, ruleID string, from domain.Date) ([]*domain.Occurrence, error) {
	return o.selectMany(ctx, "occurrences.future_by_rule",
		`SELECT * FROM occurrences WHERE rule_id = ? AND occurs_on >= ? ORDER BY occurs_on, id`,
		ruleID, from.String())
}

func (o sqliteOccurrences) DuePending(ctx context.Context, from, to domain.Date) ([]DueCandidate, error) {
	// The effective date keys the reminder: snoozed_until for snoozed rows,
	// occurs_on otherwise.
	rows, err := o.selectMany(ctx, "occurrences.due_pending", `
		SELECT o.* FROM occurrences o
		JOIN rules r ON r.id = o.rule_id
		WHERE r.active = 1
		  AND o.status IN (?, ?)
		  AND o.reminder_sent_at IS NULL
		  AND (CASE WHEN o.status = ? AND o.snoozed_until IS NOT NULL
		            THEN o.snoozed_until ELSE o.occurs_on END) BETWEEN ? AND ?
		ORDER BY o.occurs_on, o.id`,
		string(domain.StatusUpcoming), string(domain.StatusSnoozed),
		string(domain.StatusSnoozed), from.String(), to.String())
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ruleIDs := make([]string, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, occ := range rows {
		if !seen[occ.RuleID] {
			seen[occ.RuleID] = true
			ruleIDs = append(ruleIDs, occ.RuleID)
		}
	}
	q, args, err := sqlx.In(`SELECT * FROM rules WHERE id IN (?)`, ruleIDs)
	if err != nil {
		return nil, domain.Transient("occurrences.due_pending", err)
	}
	var ruleRows []ruleRow
	if err := o.s.db.SelectContext(ctx, &ruleRows, o.s.db.Rebind(q), args...); err != nil {
		return nil, domain.Transient("occurrences.due_pending", err)
	}
	rules := make(map[string]*domain.Rule, len(ruleRows))
	for _, row := range ruleRows {
		rule, err := row.toDomain()
		if err != nil {
			return nil, domain.Transient("occurrences.due_pending", err)
		}
		rules[rule.ID] = rule
	}

	out := make([]DueCandidate, 0, len(rows))
	for _, occ := range rows {
		rule, ok := rules[occ.RuleID]
		if !ok {
			continue
		}
		out = append(out, DueCandidate{Occurrence: occ, Rule: rule})
	}
	return out, nil
}

func (o sqliteOccurrences) MarkReminderSent(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`
		UPDATE occurrences SET reminder_sent_at = ?, updated_at = ?
		WHERE id IN (?) AND reminder_sent_at IS NULL`,
		encodeInstant(at), encodeInstant(at), ids)
	if err != nil {
		return domain.Transient("occurrences.mark_reminder_sent", err)
	}
	if _, err := o.s.db.ExecContext(ctx, o.s.db.Rebind(q), args...); err != nil {
		return domain.Transient("occurrences.mark_reminder_sent", err)
	}
	return nil
}

func (o sqliteOccurrences) MarkSkipped(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	now := encodeInstant(time.Now())
	q, args, err := sqlx.In(`
		UPDATE occurrences SET status = ?, updated_at = ?
		WHERE id IN (?) AND status NOT IN (?, ?)`,
		string(domain.StatusSkipped), now, ids,
		string(domain.StatusPaid), string(domain.StatusSkipped))
	if err != nil {
		return domain.Transient("occurrences.mark_skipped", err)
	}
	if _, err := o.s.db.ExecContext(ctx, o.s.db.Rebind(q), args...); err != nil {
		return domain.Transient("occurrences.mark_skipped", err)
	}
	return nil
}

func (o sqliteOccurrences) selectMany(ctx context.Context, op, query string, args ...any) ([]*domain.Occurrence, error) {
	var rows []occurrenceRow
	if err := o.s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, domain.Transient(op, err)
	}
	out := make([]*domain.Occurrence, 0, len(rows))
	for _, row := range rows {
		occ, err := row.toDomain()
		if err != nil {
			return nil, domain.Transient(op, err)
		}
		out = append(out, occ)
	}
	return out, nil
}
