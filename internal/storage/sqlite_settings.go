package storage

import (
	"context"

	"github.com/jmoiron/sqlx"

	"paycycle/internal/domain"
)

type sqliteSettings struct{ s *sqliteStore }

const upsertSettingsSQL = `
INSERT INTO notification_settings (owner_id, enabled, time_zone, updated_at)
VALUES (:owner_id, :enabled, :time_zone, :updated_at)
ON CONFLICT (owner_id) DO UPDATE SET
    enabled    = excluded.enabled,
    time_zone  = excluded.time_zone,
    updated_at = excluded.updated_at`

func (s sqliteSettings) ByOwners(ctx context.Context, ownerIDs []string) (map[string]*domain.NotificationSettings, error) {
	out := make(map[string]*domain.NotificationSettings, len(ownerIDs))
	if len(ownerIDs) == 0 {
		return out, nil
	}
	q, args, err := sqlx.In(`SELECT * FROM notification_settings WHERE owner_id IN (?)`, ownerIDs)
	if err != nil {
		return nil, domain.Transient("settings.by_owners", err)
	}
	var rows []settingsRow
	if err := s.s.db.SelectContext(ctx, &rows, s.s.db.Rebind(q), args...); err != nil {
		return nil, domain.Transient("settings.by_owners", err)
	}
	for _, row := range rows {
		st, err := row.toDomain()
		if err != nil {
			return nil, domain.Transient("settings.by_owners", err)
		}
		out[st.OwnerID] = st
	}
	return out, nil
}

func (s sqliteSettings) Upsert(ctx context.Context, st *domain.NotificationSettings) error {
	if _, err := s.s.db.NamedExecContext(ctx, upsertSettingsSQL, settingsToRow(st)); err != nil {
		return domain.Transient("settings.upsert", err)
	}
	return nil
}
