package storage

import (
	"context"

	"github.com/jmoiron/sqlx"

	"paycycle/internal/domain"
)

type sqliteSubscriptions struct{ s *sqliteStore }

// Insert upserts on (owner_id, endpoint): re-registering a known endpoint
// refreshes the keys and revives the row under its original id.
const insertSubscriptionSQL = `
INSERT INTO push_subscriptions (id, owner_id, endpoint, p256dh_key, auth_key,
                                active, created_at)
VALUES (:id, :owner_id, :endpoint, :p256dh_key, :auth_key, :active, :created_at)
ON CONFLICT (owner_id, endpoint) DO UPDATE SET
    p256dh_key = excluded.p256dh_key,
    auth_key   = excluded.auth_key,
    active     = 1`

func (s sqliteSubscriptions) Insert(ctx context.Context, sub *domain.PushSubscription) error {
	if _, err := s.s.db.NamedExecContext(ctx, insertSubscriptionSQL, subscriptionToRow(sub)); err != nil {
		return domain.Transient("subscriptions.insert", err)
	}
	return nil
}

func (s sqliteSubscriptions) ActiveByOwners(ctx context.Context, ownerIDs []string) ([]*domain.PushSubscription, error) {
	if len(ownerIDs) == 0 {
		return nil, nil
	}
	q, args, err := sqlx.In(`
		SELECT * FROM push_subscriptions
		WHERE owner_id IN (?) AND active = 1
		ORDER BY owner_id, created_at, id`, ownerIDs)
	if err != nil {
		return nil, domain.Transient("subscriptions.active_by_owners", err)
	}
	var rows []subscriptionRow
	if err := s.s.db.SelectContext(ctx, &rows, s.s.db.Rebind(q), args...); err != nil {
		return nil, domain.Transient("subscriptions.active_by_owners", err)
	}
	out := make([]*domain.PushSubscription, 0, len(rows))
	for _, row := range rows {
		sub, err := row.toDomain()
		if err != nil {
			return nil, domain.Transient("subscriptions.active_by_owners", err)
		}
		out = append(out, sub)
	}
	return out, nil
}

func (s sqliteSubscriptions) DeactivateByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`UPDATE push_subscriptions SET active = 0 WHERE id IN (?)`, ids)
	if err != nil {
		return domain.Transient("subscriptions.deactivate_by_ids", err)
	}
	if _, err := s.s.db.ExecContext(ctx, s.s.db.Rebind(q), args...); err != nil {
		return domain.Transient("subscriptions.deactivate_by_ids", err)
	}
	return nil
}

func (s sqliteSubscriptions) Deactivate(ctx context.Context, ownerID, id string) error {
	res, err := s.s.db.ExecContext(ctx,
		`UPDATE push_subscriptions SET active = 0 WHERE id = ? AND owner_id = ? AND active = 1`,
		id, ownerID)
	if err != nil {
		return domain.Transient("subscriptions.deactivate", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.NotFound("subscription", id)
	}
	return nil
}
