package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"paycycle/internal/domain"
	logx "paycycle/pkg/logx"
)

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file (pure Go driver)
//   - "memory": process-local store for tests and throwaway runs
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store aggregates the per-entity stores. Implementations return domain
// errors: NotFoundError for absent rows, TransientStoreError for backend
// faults. Returned values are owned by the caller and safe to mutate.
type Store interface {
	Rules() RuleStore
	Occurrences() OccurrenceStore
	Transactions() TransactionStore
	Subscriptions() SubscriptionStore
	Settings() SettingsStore
	Ping(ctx context.Context) error
	Close() error
}

// RuleStore persists recurrence rules. ByID scopes by owner: a rule owned by
// someone else reads as absent.
type RuleStore interface {
	Insert(ctx context.Context, r *domain.Rule) error
	Update(ctx context.Context, r *domain.Rule) error
	ByID(ctx context.Context, ownerID, id string) (*domain.Rule, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*domain.Rule, error)
}

// OccurrenceFilter narrows ListByOwner. Nil bounds and an empty status set
// mean unfiltered.
type OccurrenceFilter struct {
	From     *domain.Date
	To       *domain.Date
	Statuses []domain.Status
}

// DueCandidate pairs an occurrence with its rule for the reminder selector.
type DueCandidate struct {
	Occurrence *domain.Occurrence
	Rule       *domain.Rule
}

// OccurrenceStore persists payment occurrences. Owner scoping goes through
// the rule; ByID and ListByOwner join on it.
type OccurrenceStore interface {
	InsertMany(ctx context.Context, occs []*domain.Occurrence) error
	Update(ctx context.Context, o *domain.Occurrence) error
	ByID(ctx context.Context, ownerID, id string) (*domain.Occurrence, error)
	ListByRule(ctx context.Context, ruleID string, from, to *domain.Date) ([]*domain.Occurrence, error)
	ListByOwner(ctx context.Context, ownerID string, f OccurrenceFilter) ([]*domain.Occurrence, error)
	// FutureByRule returns occurrences of the rule with occurs_on >= from,
	// any status. Reconciliation needs the statuses to protect terminal rows.
	FutureByRule(ctx context.Context, ruleID string, from domain.Date) ([]*domain.Occurrence, error)
	// DuePending returns unnotified upcoming/snoozed occurrences of active
	// rules whose effective date falls in [from, to]. A generous prefilter;
	// the selector applies the exact zoned bounds.
	DuePending(ctx context.Context, from, to domain.Date) ([]DueCandidate, error)
	// MarkReminderSent stamps reminder_sent_at = at on the given occurrences,
	// skipping any that were stamped in the meantime.
	MarkReminderSent(ctx context.Context, ids []string, at time.Time) error
	// MarkSkipped cancels the given occurrences. The write itself guards
	// terminal statuses: paid and skipped rows are left untouched.
	MarkSkipped(ctx context.Context, ids []string) error
}

// TransactionStore persists ledger transactions.
type TransactionStore interface {
	Insert(ctx context.Context, t *domain.Transaction) error
	Update(ctx context.Context, t *domain.Transaction) error
}

// SubscriptionStore persists push subscriptions. Insert upserts on
// (owner, endpoint): re-registering a known endpoint refreshes its keys and
// revives it.
type SubscriptionStore interface {
	Insert(ctx context.Context, s *domain.PushSubscription) error
	ActiveByOwners(ctx context.Context, ownerIDs []string) ([]*domain.PushSubscription, error)
	DeactivateByIDs(ctx context.Context, ids []string) error
	Deactivate(ctx context.Context, ownerID, id string) error
}

// SettingsStore persists notification settings. ByOwners omits owners with
// no row; callers treat absence as the zero value (disabled, UTC).
type SettingsStore interface {
	ByOwners(ctx context.Context, ownerIDs []string) (map[string]*domain.NotificationSettings, error)
	Upsert(ctx context.Context, s *domain.NotificationSettings) error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory", "mem":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
