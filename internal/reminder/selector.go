package reminder

import (
	"context"
	"time"

	"paycycle/internal/domain"
	"paycycle/internal/storage"
	logx "paycycle/pkg/logx"
)

// Candidate is one occurrence due for a reminder, joined with everything a
// send needs: the rule it came from, the zoned due instant and the owner's
// active devices.
type Candidate struct {
	Occurrence    *domain.Occurrence
	Rule          *domain.Rule
	DueAt         time.Time
	Subscriptions []*domain.PushSubscription
}

// Selector narrows stored occurrences to the ones due inside the reminder
// window. The store prefilters by a generous date band around today; exact
// zoned bounds are applied here.
type Selector struct {
	store storage.Store
	log   logx.Logger
}

func NewSelector(store storage.Store, log logx.Logger) *Selector {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Selector{store: store, log: log}
}

// catchUp is how far back an unnotified occurrence stays eligible. Runs are
// periodic; the floor bounds the resend tail after an outage.
const catchUp = 24 * time.Hour

// SelectDue returns the occurrences whose due instant lies in
// [now - 1 day, now + window], bundled with their delivery targets.
//
// An occurrence qualifies when its rule is active, reminders are switched on
// for it (rule flag or owner-wide setting), the owner has at least one
// active subscription, and no reminder was sent yet. The due instant is the
// effective date at the rule's reminder time in the owner's timezone;
// owners without settings and unknown zone names resolve to UTC.
func (s *Selector) SelectDue(ctx context.Context, now time.Time, window time.Duration) ([]Candidate, error) {
	// Date band wide enough for any UTC offset on either side of today.
	today := domain.DateOf(now.UTC())
	pending, err := s.store.Occurrences().DuePending(ctx, today.AddDays(-2), today.AddDays(2))
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}

	owners := make([]string, 0, len(pending))
	seen := make(map[string]bool, len(pending))
	for _, p := range pending {
		if !seen[p.Rule.OwnerID] {
			seen[p.Rule.OwnerID] = true
			owners = append(owners, p.Rule.OwnerID)
		}
	}

	settings, err := s.store.Settings().ByOwners(ctx, owners)
	if err != nil {
		return nil, err
	}
	subs, err := s.store.Subscriptions().ActiveByOwners(ctx, owners)
	if err != nil {
		return nil, err
	}
	subsByOwner := make(map[string][]*domain.PushSubscription, len(owners))
	for _, sub := range subs {
		subsByOwner[sub.OwnerID] = append(subsByOwner[sub.OwnerID], sub)
	}

	floor := now.Add(-catchUp)
	ceil := now.Add(window)

	var out []Candidate
	for _, p := range pending {
		ownerID := p.Rule.OwnerID
		st := settings[ownerID]

		// Either the rule's own flag or the owner-wide setting arms the
		// reminder.
		enabled := p.Rule.ReminderEnabled
		if st != nil && st.Enabled {
			enabled = true
		}
		if !enabled {
			continue
		}

		devices := subsByOwner[ownerID]
		if len(devices) == 0 {
			continue
		}

		loc := time.UTC
		if st != nil {
			l, err := st.Location()
			if err != nil {
				s.log.Warn("unknown timezone, falling back to UTC",
					logx.String("owner_id", ownerID),
					logx.String("time_zone", st.TimeZone))
			}
			loc = l
		}

		due := p.Occurrence.EffectiveDate().At(p.Rule.EffectiveReminderTime(), loc)
		if due.Before(floor) || due.After(ceil) {
			continue
		}

		out = append(out, Candidate{
			Occurrence:    p.Occurrence,
			Rule:          p.Rule,
			DueAt:         due,
			Subscriptions: devices,
		})
	}
	return out, nil
}
