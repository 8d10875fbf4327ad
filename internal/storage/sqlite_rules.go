package storage

import (
	"context"
	"database/sql"
	"errors"

	"paycycle/internal/domain"
)

type sqliteRules struct{ s *sqliteStore }

const insertRuleSQL = `
INSERT INTO rules (id, owner_id, amount, category_id, payee, method, notes,
                   frequency, interval, start_date, end_date, active,
                   auto_create, reminder_enabled, reminder_time,
                   created_at, updated_at)
VALUES (:id, :owner_id, :amount, :category_id, :payee, :method, :notes,
        :frequency, :interval, :start_date, :end_date, :active,
        :auto_create, :reminder_enabled, :reminder_time,
        :created_at, :updated_at)`

const updateRuleSQL = `
UPDATE rules SET amount = :amount, category_id = :category_id, payee = :payee,
                 method = :method, notes = :notes, frequency = :frequency,
                 interval = :interval, start_date = :start_date,
                 end_date = :end_date, active = :active,
                 auto_create = :auto_create,
                 reminder_enabled = :reminder_enabled,
                 reminder_time = :reminder_time, updated_at = :updated_at
WHERE id = :id AND owner_id = :owner_id`

func (r sqliteRules) Insert(ctx context.Context, rule *domain.Rule) error {
	row := ruleToRow(rule)
	if _, err := r.s.db.NamedExecContext(ctx, insertRuleSQL, row); err != nil {
		return domain.Transient("rules.insert", err)
	}
	return nil
}

func (r sqliteRules) Update(ctx context.Context, rule *domain.Rule) error {
	row := ruleToRow(rule)
	res, err := r.s.db.NamedExecContext(ctx, updateRuleSQL, row)
	if err != nil {
		return domain.Transient("rules.update", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("rule", rule.ID)
	}
	return nil
}

func (r sqliteRules) ByID(ctx context.Context, ownerID, id string) (*domain.Rule, error) {
	var row ruleRow
	err := r.s.db.GetContext(ctx, &row,
		`SELECT * FROM rules WHERE id = ? AND owner_id = ?`, id, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("rule", id)
	}
	if err != nil {
		return nil, domain.Transient("rules.by_id", err)
	}
	rule, err := row.toDomain()
	if err != nil {
		return nil, domain.Transient("rules.by_id", err)
	}
	return rule, nil
}

func (r sqliteRules) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Rule, error) {
	var rows []ruleRow
	err := r.s.db.SelectContext(ctx, &rows,
		`SELECT * FROM rules WHERE owner_id = ? ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, domain.Transient("rules.list_by_owner", err)
	}
	out := make([]*domain.Rule, 0, len(rows))
	for _, row := range rows {
		rule, err := row.toDomain()
		if err != nil {
			return nil, domain.Transient("rules.list_by_owner", err)
		}
		out = append(out, rule)
	}
	return out, nil
}
