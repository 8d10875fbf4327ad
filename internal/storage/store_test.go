package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"paycycle/internal/domain"
	logx "paycycle/pkg/logx"
)

// The suite runs against both drivers; behavior must not depend on which one
// is configured.
func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "store.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemory(),
	}
}

func date(y int, m time.Month, d int) domain.Date { return domain.NewDate(y, m, d) }

func testRule(id, owner string) *domain.Rule {
	now := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
	end := date(2024, time.December, 31)
	cat := "cat-rent"
	return &domain.Rule{
		ID:              id,
		OwnerID:         owner,
		Amount:          120000,
		CategoryID:      &cat,
		Payee:           "ACME Housing",
		Method:          "bank_transfer",
		Notes:           "flat 12b",
		Frequency:       domain.FrequencyMonthly,
		Interval:        1,
		StartDate:       date(2024, time.May, 31),
		EndDate:         &end,
		Active:          true,
		AutoCreate:      false,
		ReminderEnabled: true,
		ReminderTime:    domain.TimeOfDay{Hour: 9},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func testOccurrence(id, ruleID string, on domain.Date, status domain.Status) *domain.Occurrence {
	now := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
	return &domain.Occurrence{
		ID:        id,
		RuleID:    ruleID,
		OccursOn:  on,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestRuleRoundTrip(t *testing.T) {
	t.Parallel()
	for name, store := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rule := testRule("rule-1", "owner-1")
			if err := store.Rules().Insert(ctx, rule); err != nil {
				t.Fatalf("Insert: %v", err)
			}

			got, err := store.Rules().ByID(ctx, "owner-1", "rule-1")
			if err != nil {
				t.Fatalf("ByID: %v", err)
			}
			if got.Payee != rule.Payee || got.Amount != rule.Amount ||
				got.Frequency != rule.Frequency || !got.StartDate.Equal(rule.StartDate) {
				t.Fatalf("ByID = %+v, want %+v", got, rule)
			}
			if got.EndDate == nil || !got.EndDate.Equal(*rule.EndDate) {
				t.Fatalf("EndDate = %v, want %v", got.EndDate, rule.EndDate)
			}
			if got.CategoryID == nil || *got.CategoryID != *rule.CategoryID {
				t.Fatalf("CategoryID = %v, want %v", got.CategoryID, rule.CategoryID)
			}
			if got.ReminderTime != rule.ReminderTime {
				t.Fatalf("ReminderTime = %v, want %v", got.ReminderTime, rule.ReminderTime)
			}

			// Owner scoping: someone else's id reads as absent.
			if _, err := store.Rules().ByID(ctx, "owner-2", "rule-1"); !domain.IsNotFound(err) {
				t.Fatalf("foreign owner ByID err = %v, want NotFoundError", err)
			}

			got.Payee = "New Landlord"
			got.EndDate = nil
			got.UpdatedAt = got.UpdatedAt.Add(time.Hour)
			if err := store.Rules().Update(ctx, got); err != nil {
				t.Fatalf("Update: %v", err)
			}
			again, err := store.Rules().ByID(ctx, "owner-1", "rule-1")
			if err != nil {
				t.Fatalf("ByID after update: %v", err)
			}
			if again.Payee != "New Landlord" || again.EndDate != nil {
				t.Fatalf("update not persisted: %+v", again)
			}

			list, err := store.Rules().ListByOwner(ctx, "owner-1")
			if err != nil {
				t.Fatalf("ListByOwner: %v", err)
			}
			if len(list) != 1 {
				t.Fatalf("ListByOwner len = %d, want 1", len(list))
			}
			if other, err := store.Rules().ListByOwner(ctx, "owner-2"); err != nil || len(other) != 0 {
				t.Fatalf("foreign ListByOwner = %v, %v; want empty, nil", other, err)
			}
		})
	}
}

func TestRuleUpdateMissing(t *testing.T) {
	t.Parallel()
	for name, store := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			err := store.Rules().Update(context.Background(), testRule("ghost", "owner-1"))
			if !domain.IsNotFound(err) {
				t.Fatalf("Update missing err = %v, want NotFoundError", err)
			}
		})
	}
}

func TestOccurrenceQueries(t *testing.T) {
	t.Parallel()
	for name, store := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rule := testRule("rule-1", "owner-1")
			if err := store.Rules().Insert(ctx, rule); err != nil {
				t.Fatalf("Insert rule: %v", err)
			}

			occs := []*domain.Occurrence{
				testOccurrence("occ-1", "rule-1", date(2024, time.May, 31), domain.StatusPaid),
				testOccurrence("occ-2", "rule-1", date(2024, time.June, 30), domain.StatusUpcoming),
				testOccurrence("occ-3", "rule-1", date(2024, time.July, 31), domain.StatusUpcoming),
			}
			if err := store.Occurrences().InsertMany(ctx, occs); err != nil {
				t.Fatalf("InsertMany: %v", err)
			}

			all, err := store.Occurrences().ListByRule(ctx, "rule-1", nil, nil)
			if err != nil {
				t.Fatalf("ListByRule: %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("ListByRule len = %d, want 3", len(all))
			}
			for i := 1; i < len(all); i++ {
				if all[i].OccursOn.Before(all[i-1].OccursOn) {
					t.Fatalf("ListByRule not sorted: %v before %v", all[i].OccursOn, all[i-1].OccursOn)
				}
			}

			from := date(2024, time.June, 1)
			future, err := store.Occurrences().FutureByRule(ctx, "rule-1", from)
			if err != nil {
				t.Fatalf("FutureByRule: %v", err)
			}
			if len(future) != 2 {
				t.Fatalf("FutureByRule len = %d, want 2", len(future))
			}

			filtered, err := store.Occurrences().ListByOwner(ctx, "owner-1", OccurrenceFilter{
				From:     &from,
				Statuses: []domain.Status{domain.StatusUpcoming},
			})
			if err != nil {
				t.Fatalf("ListByOwner: %v", err)
			}
			if len(filtered) != 2 {
				t.Fatalf("filtered len = %d, want 2", len(filtered))
			}

			// Owner scoping through the rule join.
			got, err := store.Occurrences().ByID(ctx, "owner-1", "occ-2")
			if err != nil {
				t.Fatalf("ByID: %v", err)
			}
			if got.Status != domain.StatusUpcoming {
				t.Fatalf("Status = %v, want upcoming", got.Status)
			}
			if _, err := store.Occurrences().ByID(ctx, "owner-2", "occ-2"); !domain.IsNotFound(err) {
				t.Fatalf("foreign ByID err = %v, want NotFoundError", err)
			}
		})
	}
}

func TestDuePendingFilters(t *testing.T) {
	t.Parallel()
	for name, store := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			active := testRule("rule-a", "owner-1")
			inactive := testRule("rule-i", "owner-1")
			inactive.Active = false
			for _, r := range []*domain.Rule{active, inactive} {
				if err := store.Rules().Insert(ctx, r); err != nil {
					t.Fatalf("Insert rule: %v", err)
				}
			}

			sent := time.Date(2024, time.June, 1, 9, 0, 0, 0, time.UTC)
			snoozedTo := date(2024, time.June, 3)
			candidate := testOccurrence("occ-due", "rule-a", date(2024, time.June, 2), domain.StatusUpcoming)
			snoozed := testOccurrence("occ-snoozed", "rule-a", date(2024, time.May, 20), domain.StatusSnoozed)
			snoozed.SnoozedUntil = &snoozedTo
			alreadySent := testOccurrence("occ-sent", "rule-a", date(2024, time.June, 2), domain.StatusUpcoming)
			alreadySent.ReminderSentAt = &sent
			paid := testOccurrence("occ-paid", "rule-a", date(2024, time.June, 2), domain.StatusPaid)
			inactiveOcc := testOccurrence("occ-inactive", "rule-i", date(2024, time.June, 2), domain.StatusUpcoming)
			outside := testOccurrence("occ-late", "rule-a", date(2024, time.July, 20), domain.StatusUpcoming)

			err := store.Occurrences().InsertMany(ctx, []*domain.Occurrence{
				candidate, snoozed, alreadySent, paid, inactiveOcc, outside,
			})
			if err != nil {
				t.Fatalf("InsertMany: %v", err)
			}

			due, err := store.Occurrences().DuePending(ctx, date(2024, time.June, 1), date(2024, time.June, 4))
			if err != nil {
				t.Fatalf("DuePending: %v", err)
			}
			ids := map[string]bool{}
			for _, c := range due {
				ids[c.Occurrence.ID] = true
				if c.Rule == nil || c.Rule.ID != c.Occurrence.RuleID {
					t.Fatalf("candidate %s carries wrong rule %+v", c.Occurrence.ID, c.Rule)
				}
			}
			if len(due) != 2 || !ids["occ-due"] || !ids["occ-snoozed"] {
				t.Fatalf("DuePending ids = %v, want {occ-due, occ-snoozed}", ids)
			}
		})
	}
}

func TestMarkReminderSentStampsOnce(t *testing.T) {
	t.Parallel()
	for name, store := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Rules().Insert(ctx, testRule("rule-1", "owner-1")); err != nil {
				t.Fatalf("Insert rule: %v", err)
			}
			occ := testOccurrence("occ-1", "rule-1", date(2024, time.June, 2), domain.StatusUpcoming)
			if err := store.Occurrences().InsertMany(ctx, []*domain.Occurrence{occ}); err != nil {
				t.Fatalf("InsertMany: %v", err)
			}

			first := time.Date(2024, time.June, 2, 9, 0, 0, 0, time.UTC)
			if err := store.Occurrences().MarkReminderSent(ctx, []string{"occ-1"}, first); err != nil {
				t.Fatalf("MarkReminderSent: %v", err)
			}
			// A later run must not restamp.
			if err := store.Occurrences().MarkReminderSent(ctx, []string{"occ-1"}, first.Add(time.Hour)); err != nil {
				t.Fatalf("MarkReminderSent again: %v", err)
			}

			got, err := store.Occurrences().ByID(ctx, "owner-1", "occ-1")
			if err != nil {
				t.Fatalf("ByID: %v", err)
			}
			if got.ReminderSentAt == nil || !got.ReminderSentAt.Equal(first) {
				t.Fatalf("ReminderSentAt = %v, want %v", got.ReminderSentAt, first)
			}
		})
	}
}

func TestMarkSkippedGuardsTerminal(t *testing.T) {
	t.Parallel()
	for name, store := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Rules().Insert(ctx, testRule("rule-1", "owner-1")); err != nil {
				t.Fatalf("Insert rule: %v", err)
			}
			err := store.Occurrences().InsertMany(ctx, []*domain.Occurrence{
				testOccurrence("occ-up", "rule-1", date(2024, time.June, 2), domain.StatusUpcoming),
				testOccurrence("occ-paid", "rule-1", date(2024, time.June, 3), domain.StatusPaid),
			})
			if err != nil {
				t.Fatalf("InsertMany: %v", err)
			}

			if err := store.Occurrences().MarkSkipped(ctx, []string{"occ-up", "occ-paid"}); err != nil {
				t.Fatalf("MarkSkipped: %v", err)
			}

			up, _ := store.Occurrences().ByID(ctx, "owner-1", "occ-up")
			if up.Status != domain.StatusSkipped {
				t.Fatalf("occ-up status = %v, want skipped", up.Status)
			}
			paid, _ := store.Occurrences().ByID(ctx, "owner-1", "occ-paid")
			if paid.Status != domain.StatusPaid {
				t.Fatalf("occ-paid status = %v, want paid (terminal untouched)", paid.Status)
			}
		})
	}
}

func TestSubscriptionUpsertAndDeactivate(t *testing.T) {
	t.Parallel()
	for name, store := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
			sub := &domain.PushSubscription{
				ID: "sub-1", OwnerID: "owner-1",
				Endpoint:  "https://push.example.com/ep1",
				P256dhKey: "p256-old", AuthKey: "auth-old",
				Active: true, CreatedAt: now,
			}
			if err := store.Subscriptions().Insert(ctx, sub); err != nil {
				t.Fatalf("Insert: %v", err)
			}
			if err := store.Subscriptions().DeactivateByIDs(ctx, []string{"sub-1"}); err != nil {
				t.Fatalf("DeactivateByIDs: %v", err)
			}
			if subs, _ := store.Subscriptions().ActiveByOwners(ctx, []string{"owner-1"}); len(subs) != 0 {
				t.Fatalf("active after deactivate = %d, want 0", len(subs))
			}

			// Re-registering the same endpoint revives the original row with
			// fresh keys, under its original id.
			again := &domain.PushSubscription{
				ID: "sub-new", OwnerID: "owner-1",
				Endpoint:  "https://push.example.com/ep1",
				P256dhKey: "p256-new", AuthKey: "auth-new",
				Active: true, CreatedAt: now.Add(time.Hour),
			}
			if err := store.Subscriptions().Insert(ctx, again); err != nil {
				t.Fatalf("Insert upsert: %v", err)
			}
			subs, err := store.Subscriptions().ActiveByOwners(ctx, []string{"owner-1"})
			if err != nil {
				t.Fatalf("ActiveByOwners: %v", err)
			}
			if len(subs) != 1 {
				t.Fatalf("active len = %d, want 1", len(subs))
			}
			if subs[0].ID != "sub-1" || subs[0].P256dhKey != "p256-new" {
				t.Fatalf("upsert = %+v, want original id with new keys", subs[0])
			}

			if err := store.Subscriptions().Deactivate(ctx, "owner-1", "sub-1"); err != nil {
				t.Fatalf("Deactivate: %v", err)
			}
			if err := store.Subscriptions().Deactivate(ctx, "owner-1", "sub-1"); !domain.IsNotFound(err) {
				t.Fatalf("second Deactivate err = %v, want NotFoundError", err)
			}
		})
	}
}

func TestSettingsUpsert(t *testing.T) {
	t.Parallel()
	for name, store := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			st := &domain.NotificationSettings{
				OwnerID: "owner-1", Enabled: true, TimeZone: "Asia/Seoul",
				UpdatedAt: time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC),
			}
			if err := store.Settings().Upsert(ctx, st); err != nil {
				t.Fatalf("Upsert: %v", err)
			}
			st.TimeZone = "Europe/Berlin"
			st.UpdatedAt = st.UpdatedAt.Add(time.Hour)
			if err := store.Settings().Upsert(ctx, st); err != nil {
				t.Fatalf("Upsert again: %v", err)
			}

			got, err := store.Settings().ByOwners(ctx, []string{"owner-1", "owner-missing"})
			if err != nil {
				t.Fatalf("ByOwners: %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("ByOwners len = %d, want 1 (missing owners omitted)", len(got))
			}
			if got["owner-1"].TimeZone != "Europe/Berlin" {
				t.Fatalf("TimeZone = %q, want Europe/Berlin", got["owner-1"].TimeZone)
			}
		})
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "postgres"}, logx.Nop()); err == nil {
		t.Fatal("Open with unknown driver succeeded, want error")
	}
}
