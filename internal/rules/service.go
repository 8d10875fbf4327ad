package rules

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"paycycle/internal/domain"
	"paycycle/internal/schedule"
	"paycycle/internal/storage"
	logx "paycycle/pkg/logx"
)

// Service owns rule CRUD plus the occurrence materialization that goes with
// it. All operations are scoped to the calling owner; a foreign rule reads as
// absent.
type Service struct {
	store storage.Store
	log   logx.Logger

	mu  sync.Mutex
	cfg Config

	// now is swapped in tests; "today" derives from it in UTC.
	now func() time.Time
}

func New(store storage.Store, cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{store: store, log: log, now: time.Now}
	s.Apply(cfg)
	return s
}

// Apply swaps the materialization config. Takes effect on the next
// create/update, never retroactively.
func (s *Service) Apply(cfg Config) {
	if cfg.LookaheadDays <= 0 {
		cfg.LookaheadDays = defaultLookaheadDays
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Service) lookahead() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.LookaheadDays
}

// Create validates and persists a new rule, then materializes occurrences
// over the default lookahead window.
func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (*CreateResult, error) {
	now := s.now().UTC()
	rule := &domain.Rule{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		Amount:          in.Amount,
		CategoryID:      in.CategoryID,
		Payee:           in.Payee,
		Method:          in.Method,
		Notes:           in.Notes,
		Frequency:       in.Frequency,
		Interval:        in.Interval,
		StartDate:       in.StartDate,
		EndDate:         in.EndDate,
		Active:          true,
		AutoCreate:      in.AutoCreate,
		ReminderEnabled: in.ReminderEnabled,
		ReminderTime:    domain.DefaultReminderTime,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if in.ReminderTime != nil {
		rule.ReminderTime = *in.ReminderTime
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	if err := s.store.Rules().Insert(ctx, rule); err != nil {
		return nil, err
	}

	window := schedule.DefaultWindow(domain.DateOf(now), s.lookahead())
	occs := newOccurrences(rule.ID, schedule.Generate(rule, window), now)
	if err := s.store.Occurrences().InsertMany(ctx, occs); err != nil {
		return nil, err
	}

	s.log.Info("rule created",
		logx.String("rule_id", rule.ID),
		logx.String("frequency", string(rule.Frequency)),
		logx.Int("occurrences", len(occs)))
	return &CreateResult{Rule: rule, OccurrencesGenerated: len(occs)}, nil
}

// Update merges the patch into the stored rule and persists it. When a
// schedule field (frequency, interval, start or end date) changed, future
// occurrences are reconciled against the new schedule: missing dates are
// inserted as upcoming, no-longer-implied non-terminal ones become skipped.
func (s *Service) Update(ctx context.Context, ownerID, id string, in UpdateInput) (*UpdateResult, error) {
	rule, err := s.store.Rules().ByID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if !rule.Active {
		return nil, domain.Invalid("rule", "rule is deactivated")
	}

	before := rule.Clone()
	in.apply(rule)
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	rule.UpdatedAt = now
	if err := s.store.Rules().Update(ctx, rule); err != nil {
		return nil, err
	}

	res := &UpdateResult{Rule: rule}
	if scheduleChanged(before, rule) {
		rec, err := s.reconcile(ctx, rule, now)
		if err != nil {
			return nil, err
		}
		res.Reconciled = rec
		s.log.Info("rule schedule reconciled",
			logx.String("rule_id", rule.ID),
			logx.Int("inserted", rec.Inserted),
			logx.Int("skipped", rec.Skipped))
	}
	return res, nil
}

// Deactivate soft-deletes the rule and cancels its future non-terminal
// occurrences. Calling it again is harmless; there is nothing left to cancel.
func (s *Service) Deactivate(ctx context.Context, ownerID, id string) (*DeactivateResult, error) {
	rule, err := s.store.Rules().ByID(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if rule.Active {
		rule.Active = false
		rule.UpdatedAt = now
		if err := s.store.Rules().Update(ctx, rule); err != nil {
			return nil, err
		}
	}

	existing, err := s.store.Occurrences().FutureByRule(ctx, id, domain.DateOf(now))
	if err != nil {
		return nil, err
	}
	var cancel []string
	for _, occ := range existing {
		if !occ.Status.Terminal() {
			cancel = append(cancel, occ.ID)
		}
	}
	if len(cancel) > 0 {
		if err := s.store.Occurrences().MarkSkipped(ctx, cancel); err != nil {
			return nil, err
		}
	}

	s.log.Info("rule deactivated",
		logx.String("rule_id", rule.ID),
		logx.Int("cancelled", len(cancel)))
	return &DeactivateResult{Rule: rule, OccurrencesCancelled: len(cancel)}, nil
}

func (s *Service) Get(ctx context.Context, ownerID, id string) (*domain.Rule, error) {
	return s.store.Rules().ByID(ctx, ownerID, id)
}

func (s *Service) List(ctx context.Context, ownerID string) ([]*domain.Rule, error) {
	return s.store.Rules().ListByOwner(ctx, ownerID)
}

// ListOccurrences returns the owner's occurrences, optionally narrowed by
// date range and status.
func (s *Service) ListOccurrences(ctx context.Context, ownerID string, f storage.OccurrenceFilter) ([]*domain.Occurrence, error) {
	return s.store.Occurrences().ListByOwner(ctx, ownerID, f)
}

func (s *Service) reconcile(ctx context.Context, rule *domain.Rule, now time.Time) (ReconcileResult, error) {
	today := domain.DateOf(now)
	window := schedule.DefaultWindow(today, s.lookahead())
	desired := schedule.Generate(rule, window)

	existing, err := s.store.Occurrences().FutureByRule(ctx, rule.ID, today)
	if err != nil {
		return ReconcileResult{}, err
	}

	diff := schedule.Reconcile(desired, existing)
	if len(diff.ToInsert) > 0 {
		if err := s.store.Occurrences().InsertMany(ctx, newOccurrences(rule.ID, diff.ToInsert, now)); err != nil {
			return ReconcileResult{}, err
		}
	}
	if len(diff.ToCancel) > 0 {
		if err := s.store.Occurrences().MarkSkipped(ctx, diff.ToCancel); err != nil {
			return ReconcileResult{}, err
		}
	}
	return ReconcileResult{Inserted: len(diff.ToInsert), Skipped: len(diff.ToCancel)}, nil
}

func newOccurrences(ruleID string, dates []domain.Date, now time.Time) []*domain.Occurrence {
	occs := make([]*domain.Occurrence, 0, len(dates))
	for _, d := range dates {
		occs = append(occs, &domain.Occurrence{
			ID:        uuid.NewString(),
			RuleID:    ruleID,
			OccursOn:  d,
			Status:    domain.StatusUpcoming,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}
	return occs
}

func scheduleChanged(a, b *domain.Rule) bool {
	if a.Frequency != b.Frequency || a.Interval != b.Interval || !a.StartDate.Equal(b.StartDate) {
		return true
	}
	switch {
	case a.EndDate == nil && b.EndDate == nil:
		return false
	case a.EndDate == nil || b.EndDate == nil:
		return true
	default:
		return !a.EndDate.Equal(*b.EndDate)
	}
}
