package lifecycle

import (
	"context"
	"time"

	"github.com/google/uuid"

	"paycycle/internal/domain"
	"paycycle/internal/storage"
	logx "paycycle/pkg/logx"
)

// Service applies occurrence actions. Gates run in a fixed order before any
// write: load by id + owner, terminal-status check, then the action's
// capability check.
type Service struct {
	store storage.Store
	log   logx.Logger

	now func() time.Time
}

func New(store storage.Store, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{store: store, log: log, now: time.Now}
}

// PayInput carries the optional overrides of a pay action. Amount must be
// positive when present; OccurredAt defaults to the action time.
type PayInput struct {
	Amount     *int64
	OccurredAt *time.Time
}

// SnoozeInput carries the replacement date. Both occurs_on and snoozed_until
// are rewritten to it.
type SnoozeInput struct {
	NewDate domain.Date
}

// Result is the outcome of one action. Transaction is set only when this
// call wrote a ledger entry; skip and snooze never set it, a re-confirm
// keeps the existing entry and leaves it nil.
type Result struct {
	Occurrence  *domain.Occurrence
	Transaction *domain.Transaction
}

// Confirm marks an occurrence confirmed and materializes its ledger
// transaction from the rule template, dated at owner-local midnight of the
// occurrence date. Unavailable on auto_create rules. Re-confirming keeps the
// linked transaction untouched.
func (s *Service) Confirm(ctx context.Context, ownerID, id string) (*Result, error) {
	occ, rule, err := s.load(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if rule.AutoCreate {
		return nil, domain.Invalid("action", "confirm is not available on auto-created rules")
	}

	now := s.now().UTC()
	var txn *domain.Transaction
	if occ.TransactionID == nil {
		loc, err := s.ownerLocation(ctx, ownerID)
		if err != nil {
			return nil, err
		}
		txn = transactionFromRule(rule, now)
		txn.OccurredAt = occ.EffectiveDate().Time(loc)
		if err := s.store.Transactions().Insert(ctx, txn); err != nil {
			return nil, err
		}
		if err := s.link(ctx, occ, txn.ID, now); err != nil {
			return nil, err
		}
	}

	occ.Status = domain.StatusConfirmed
	occ.UpdatedAt = now
	if err := s.store.Occurrences().Update(ctx, occ); err != nil {
		return nil, err
	}

	s.log.Info("occurrence confirmed",
		logx.String("occurrence_id", occ.ID),
		logx.String("rule_id", occ.RuleID),
		logx.String("transaction_id", *occ.TransactionID),
		logx.Bool("ledger_written", txn != nil))
	return &Result{Occurrence: occ, Transaction: txn}, nil
}

// Pay marks an occurrence paid. When a transaction is already linked (a
// confirmed occurrence, or the retry of a pay whose status write failed) the
// linked entry is updated in place; otherwise one is created. Either way the
// entry ends up stamped with the pay parameters.
func (s *Service) Pay(ctx context.Context, ownerID, id string, in PayInput) (*Result, error) {
	occ, rule, err := s.load(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if in.Amount != nil && *in.Amount <= 0 {
		return nil, domain.Invalid("amount", "amount override must be positive")
	}

	now := s.now().UTC()
	amount := rule.Amount
	if in.Amount != nil {
		amount = *in.Amount
	}
	occurredAt := now
	if in.OccurredAt != nil {
		occurredAt = in.OccurredAt.UTC()
	}

	txn := transactionFromRule(rule, now)
	txn.Amount = amount
	txn.OccurredAt = occurredAt
	if occ.TransactionID != nil {
		txn.ID = *occ.TransactionID
		if err := s.store.Transactions().Update(ctx, txn); err != nil {
			return nil, err
		}
	} else {
		if err := s.store.Transactions().Insert(ctx, txn); err != nil {
			return nil, err
		}
		if err := s.link(ctx, occ, txn.ID, now); err != nil {
			return nil, err
		}
	}

	occ.Status = domain.StatusPaid
	occ.UpdatedAt = now
	if err := s.store.Occurrences().Update(ctx, occ); err != nil {
		return nil, err
	}

	s.log.Info("occurrence paid",
		logx.String("occurrence_id", occ.ID),
		logx.String("rule_id", occ.RuleID),
		logx.String("transaction_id", txn.ID),
		logx.Int64("amount", txn.Amount))
	return &Result{Occurrence: occ, Transaction: txn}, nil
}

// Skip cancels an occurrence. No ledger effect.
func (s *Service) Skip(ctx context.Context, ownerID, id string) (*Result, error) {
	occ, _, err := s.load(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	occ.Status = domain.StatusSkipped
	occ.UpdatedAt = s.now().UTC()
	if err := s.store.Occurrences().Update(ctx, occ); err != nil {
		return nil, err
	}

	s.log.Info("occurrence skipped",
		logx.String("occurrence_id", occ.ID),
		logx.String("rule_id", occ.RuleID))
	return &Result{Occurrence: occ}, nil
}

// Snooze moves an occurrence to a new date, rewriting both occurs_on and
// snoozed_until. Repeatable: a snoozed occurrence can be snoozed again.
func (s *Service) Snooze(ctx context.Context, ownerID, id string, in SnoozeInput) (*Result, error) {
	occ, _, err := s.load(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if in.NewDate.IsZero() {
		return nil, domain.Invalid("new_date", "new_date is required")
	}
	if !in.NewDate.Valid() {
		return nil, domain.Invalidf("new_date", "%q is not a calendar date", in.NewDate.String())
	}

	until := in.NewDate
	occ.OccursOn = in.NewDate
	occ.SnoozedUntil = &until
	occ.Status = domain.StatusSnoozed
	occ.UpdatedAt = s.now().UTC()
	if err := s.store.Occurrences().Update(ctx, occ); err != nil {
		return nil, err
	}

	s.log.Info("occurrence snoozed",
		logx.String("occurrence_id", occ.ID),
		logx.String("rule_id", occ.RuleID),
		logx.String("until", in.NewDate.String()))
	return &Result{Occurrence: occ}, nil
}

// load fetches the occurrence and its rule, owner-scoped. The terminal gate
// runs here so paid and skipped records reject every action the same way,
// before any capability check.
func (s *Service) load(ctx context.Context, ownerID, id string) (*domain.Occurrence, *domain.Rule, error) {
	occ, err := s.store.Occurrences().ByID(ctx, ownerID, id)
	if err != nil {
		return nil, nil, err
	}
	if occ.Status.Terminal() {
		return nil, nil, domain.Conflict("occurrence", occ.ID, occ.Status)
	}
	rule, err := s.store.Rules().ByID(ctx, ownerID, occ.RuleID)
	if err != nil {
		return nil, nil, err
	}
	return occ, rule, nil
}

// link durably stores the transaction reference before the status change.
// If the subsequent status write fails, a retried action sees the reference
// and reuses the entry instead of inserting a duplicate.
func (s *Service) link(ctx context.Context, occ *domain.Occurrence, txnID string, now time.Time) error {
	occ.TransactionID = &txnID
	occ.UpdatedAt = now
	return s.store.Occurrences().Update(ctx, occ)
}

// ownerLocation resolves the owner's timezone for ledger dating. No settings
// row and unknown zone names both mean UTC; only a store fault is an error.
func (s *Service) ownerLocation(ctx context.Context, ownerID string) (*time.Location, error) {
	settings, err := s.store.Settings().ByOwners(ctx, []string{ownerID})
	if err != nil {
		return nil, err
	}
	st, ok := settings[ownerID]
	if !ok {
		return time.UTC, nil
	}
	loc, err := st.Location()
	if err != nil {
		s.log.Warn("unknown timezone, dating ledger entry in UTC",
			logx.String("owner_id", ownerID),
			logx.String("time_zone", st.TimeZone))
	}
	return loc, nil
}

func transactionFromRule(rule *domain.Rule, now time.Time) *domain.Transaction {
	txn := &domain.Transaction{
		ID:        uuid.NewString(),
		OwnerID:   rule.OwnerID,
		Amount:    rule.Amount,
		Payee:     rule.Payee,
		Method:    rule.Method,
		Notes:     rule.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if rule.CategoryID != nil {
		v := *rule.CategoryID
		txn.CategoryID = &v
	}
	return txn
}
