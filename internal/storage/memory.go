package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"paycycle/internal/domain"
)

// memoryStore is the in-process driver. One mutex covers all entities; the
// dataset is small (tests, throwaway runs) and the simplicity buys correct
// cross-entity reads like DuePending. Every boundary crossing deep-copies so
// callers can never alias internal state.
type memoryStore struct {
	mu            sync.RWMutex
	rules         map[string]*domain.Rule
	occurrences   map[string]*domain.Occurrence
	transactions  map[string]*domain.Transaction
	subscriptions map[string]*domain.PushSubscription
	settings      map[string]*domain.NotificationSettings
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store {
	return &memoryStore{
		rules:         map[string]*domain.Rule{},
		occurrences:   map[string]*domain.Occurrence{},
		transactions:  map[string]*domain.Transaction{},
		subscriptions: map[string]*domain.PushSubscription{},
		settings:      map[string]*domain.NotificationSettings{},
	}
}

func (m *memoryStore) Ping(ctx context.Context) error { return nil }

func (m *memoryStore) Close() error { return nil }

func (m *memoryStore) Rules() RuleStore                 { return memoryRules{m} }
func (m *memoryStore) Occurrences() OccurrenceStore     { return memoryOccurrences{m} }
func (m *memoryStore) Transactions() TransactionStore   { return memoryTransactions{m} }
func (m *memoryStore) Subscriptions() SubscriptionStore { return memorySubscriptions{m} }
func (m *memoryStore) Settings() SettingsStore          { return memorySettings{m} }

// ---- rules ----

type memoryRules struct{ m *memoryStore }

func (r memoryRules) Insert(_ context.Context, rule *domain.Rule) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.rules[rule.ID] = rule.Clone()
	return nil
}

func (r memoryRules) Update(_ context.Context, rule *domain.Rule) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	cur, ok := r.m.rules[rule.ID]
	if !ok || cur.OwnerID != rule.OwnerID {
		return domain.NotFound("rule", rule.ID)
	}
	cp := rule.Clone()
	cp.CreatedAt = cur.CreatedAt
	r.m.rules[rule.ID] = cp
	return nil
}

func (r memoryRules) ByID(_ context.Context, ownerID, id string) (*domain.Rule, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	rule, ok := r.m.rules[id]
	if !ok || rule.OwnerID != ownerID {
		return nil, domain.NotFound("rule", id)
	}
	return rule.Clone(), nil
}

func (r memoryRules) ListByOwner(_ context.Context, ownerID string) ([]*domain.Rule, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	var out []*domain.Rule
	for _, rule := range r.m.rules {
		if rule.OwnerID == ownerID {
			out = append(out, rule.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// ---- occurrences ----

type memoryOccurrences struct{ m *memoryStore }

func (o memoryOccurrences) InsertMany(_ context.Context, occs []*domain.Occurrence) error {
	o.m.mu.Lock()
	defer o.m.mu.Unlock()
	for _, occ := range occs {
		o.m.occurrences[occ.ID] = occ.Clone()
	}
	return nil
}

func (o memoryOccurrences) Update(_ context.Context, occ *domain.Occurrence) error {
	o.m.mu.Lock()
	defer o.m.mu.Unlock()
	cur, ok := o.m.occurrences[occ.ID]
	if !ok {
		return domain.NotFound("occurrence", occ.ID)
	}
	cp := occ.Clone()
	cp.CreatedAt = cur.CreatedAt
	o.m.occurrences[occ.ID] = cp
	return nil
}

func (o memoryOccurrences) ByID(_ context.Context, ownerID, id string) (*domain.Occurrence, error) {
	o.m.mu.RLock()
	defer o.m.mu.RUnlock()
	occ, ok := o.m.occurrences[id]
	if !ok {
		return nil, domain.NotFound("occurrence", id)
	}
	rule, ok := o.m.rules[occ.RuleID]
	if !ok || rule.OwnerID != ownerID {
		return nil, domain.NotFound("occurrence", id)
	}
	return occ.Clone(), nil
}

func (o memoryOccurrences) ListByRule(_ context.Context, ruleID string, from, to *domain.Date) ([]*domain.Occurrence, error) {
	o.m.mu.RLock()
	defer o.m.mu.RUnlock()
	var out []*domain.Occurrence
	for _, occ := range o.m.occurrences {
		if occ.RuleID != ruleID {
			continue
		}
		if from != nil && occ.OccursOn.Before(*from) {
			continue
		}
		if to != nil && occ.OccursOn.After(*to) {
			continue
		}
		out = append(out, occ.Clone())
	}
	sortOccurrences(out)
	return out, nil
}

func (o memoryOccurrences) ListByOwner(_ context.Context, ownerID string, f OccurrenceFilter) ([]*domain.Occurrence, error) {
	o.m.mu.RLock()
	defer o.m.mu.RUnlock()
	statuses := map[domain.Status]bool{}
	for _, s := range f.Statuses {
		statuses[s] = true
	}
	var out []*domain.Occurrence
	for _, occ := range o.m.occurrences {
		rule, ok := o.m.rules[occ.RuleID]
		if !ok || rule.OwnerID != ownerID {
			continue
		}
		if f.From != nil && occ.OccursOn.Before(*f.From) {
			continue
		}
		if f.To != nil && occ.OccursOn.After(*f.To) {
			continue
		}
		if len(statuses) > 0 && !statuses[occ.Status] {
			continue
		}
		out = append(out, occ.Clone())
	}
	sortOccurrences(out)
	return out, nil
}

func (o memoryOccurrences) FutureByRule(_ context.Context, ruleID string, from domain.Date) ([]*domain.Occurrence, error) {
	o.m.mu.RLock()
	defer o.m.mu.RUnlock()
	var out []*domain.Occurrence
	for _, occ := range o.m.occurrences {
		if occ.RuleID == ruleID && !occ.OccursOn.Before(from) {
			out = append(out, occ.Clone())
		}
	}
	sortOccurrences(out)
	return out, nil
}

func (o memoryOccurrences) DuePending(_ context.Context, from, to domain.Date) ([]DueCandidate, error) {
	o.m.mu.RLock()
	defer o.m.mu.RUnlock()
	var occs []*domain.Occurrence
	for _, occ := range o.m.occurrences {
		if occ.Status != domain.StatusUpcoming && occ.Status != domain.StatusSnoozed {
			continue
		}
		if occ.ReminderSentAt != nil {
			continue
		}
		rule, ok := o.m.rules[occ.RuleID]
		if !ok || !rule.Active {
			continue
		}
		eff := occ.EffectiveDate()
		if eff.Before(from) || eff.After(to) {
			continue
		}
		occs = append(occs, occ.Clone())
	}
	sortOccurrences(occs)
	out := make([]DueCandidate, 0, len(occs))
	for _, occ := range occs {
		out = append(out, DueCandidate{Occurrence: occ, Rule: o.m.rules[occ.RuleID].Clone()})
	}
	return out, nil
}

func (o memoryOccurrences) MarkReminderSent(_ context.Context, ids []string, at time.Time) error {
	o.m.mu.Lock()
	defer o.m.mu.Unlock()
	for _, id := range ids {
		occ, ok := o.m.occurrences[id]
		if !ok || occ.ReminderSentAt != nil {
			continue
		}
		stamp := at
		occ.ReminderSentAt = &stamp
		occ.UpdatedAt = at
	}
	return nil
}

func (o memoryOccurrences) MarkSkipped(_ context.Context, ids []string) error {
	o.m.mu.Lock()
	defer o.m.mu.Unlock()
	now := time.Now()
	for _, id := range ids {
		occ, ok := o.m.occurrences[id]
		if !ok || occ.Status.Terminal() {
			continue
		}
		occ.Status = domain.StatusSkipped
		occ.UpdatedAt = now
	}
	return nil
}

func sortOccurrences(occs []*domain.Occurrence) {
	sort.Slice(occs, func(i, j int) bool {
		if !occs[i].OccursOn.Equal(occs[j].OccursOn) {
			return occs[i].OccursOn.Before(occs[j].OccursOn)
		}
		return occs[i].ID < occs[j].ID
	})
}

// ---- transactions ----

type memoryTransactions struct{ m *memoryStore }

func (t memoryTransactions) Insert(_ context.Context, txn *domain.Transaction) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	t.m.transactions[txn.ID] = txn.Clone()
	return nil
}

func (t memoryTransactions) Update(_ context.Context, txn *domain.Transaction) error {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	cur, ok := t.m.transactions[txn.ID]
	if !ok || cur.OwnerID != txn.OwnerID {
		return domain.NotFound("transaction", txn.ID)
	}
	cp := txn.Clone()
	cp.CreatedAt = cur.CreatedAt
	t.m.transactions[txn.ID] = cp
	return nil
}

// ---- subscriptions ----

type memorySubscriptions struct{ m *memoryStore }

func (s memorySubscriptions) Insert(_ context.Context, sub *domain.PushSubscription) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	// Upsert on (owner, endpoint): keep the original id, refresh the keys,
	// revive the row.
	for _, cur := range s.m.subscriptions {
		if cur.OwnerID == sub.OwnerID && cur.Endpoint == sub.Endpoint {
			cur.P256dhKey = sub.P256dhKey
			cur.AuthKey = sub.AuthKey
			cur.Active = true
			return nil
		}
	}
	s.m.subscriptions[sub.ID] = sub.Clone()
	return nil
}

func (s memorySubscriptions) ActiveByOwners(_ context.Context, ownerIDs []string) ([]*domain.PushSubscription, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	owners := make(map[string]bool, len(ownerIDs))
	for _, id := range ownerIDs {
		owners[id] = true
	}
	var out []*domain.PushSubscription
	for _, sub := range s.m.subscriptions {
		if sub.Active && owners[sub.OwnerID] {
			out = append(out, sub.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OwnerID != out[j].OwnerID {
			return out[i].OwnerID < out[j].OwnerID
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s memorySubscriptions) DeactivateByIDs(_ context.Context, ids []string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	for _, id := range ids {
		if sub, ok := s.m.subscriptions[id]; ok {
			sub.Active = false
		}
	}
	return nil
}

func (s memorySubscriptions) Deactivate(_ context.Context, ownerID, id string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	sub, ok := s.m.subscriptions[id]
	if !ok || sub.OwnerID != ownerID || !sub.Active {
		return domain.NotFound("subscription", id)
	}
	sub.Active = false
	return nil
}

// ---- settings ----

type memorySettings struct{ m *memoryStore }

func (s memorySettings) ByOwners(_ context.Context, ownerIDs []string) (map[string]*domain.NotificationSettings, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	out := make(map[string]*domain.NotificationSettings, len(ownerIDs))
	for _, id := range ownerIDs {
		if st, ok := s.m.settings[id]; ok {
			out[id] = st.Clone()
		}
	}
	return out, nil
}

func (s memorySettings) Upsert(_ context.Context, st *domain.NotificationSettings) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.m.settings[st.OwnerID] = st.Clone()
	return nil
}
