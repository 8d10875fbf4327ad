package lifecycle

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"paycycle/internal/domain"
	"paycycle/internal/storage"
	logx "paycycle/pkg/logx"
)

var testNow = time.Date(2024, time.June, 10, 12, 30, 0, 0, time.UTC)

// countingStore wraps the memory store and counts ledger writes.
type countingStore struct {
	storage.Store
	mu      sync.Mutex
	inserts int
	updates int
}

func (c *countingStore) Transactions() storage.TransactionStore {
	return countingTransactions{c}
}

func (c *countingStore) counts() (inserts, updates int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inserts, c.updates
}

type countingTransactions struct{ c *countingStore }

func (t countingTransactions) Insert(ctx context.Context, txn *domain.Transaction) error {
	t.c.mu.Lock()
	t.c.inserts++
	t.c.mu.Unlock()
	return t.c.Store.Transactions().Insert(ctx, txn)
}

func (t countingTransactions) Update(ctx context.Context, txn *domain.Transaction) error {
	t.c.mu.Lock()
	t.c.updates++
	t.c.mu.Unlock()
	return t.c.Store.Transactions().Update(ctx, txn)
}

func newTestService(t *testing.T) (*Service, *countingStore) {
	t.Helper()
	cs := &countingStore{Store: storage.NewMemory()}
	svc := New(cs, logx.Nop())
	svc.now = func() time.Time { return testNow }
	return svc, cs
}

func seedRule(t *testing.T, store storage.Store, autoCreate bool) *domain.Rule {
	t.Helper()
	cat := "cat-rent"
	r := &domain.Rule{
		ID:           "rule-1",
		OwnerID:      "owner-1",
		Amount:       120000,
		CategoryID:   &cat,
		Payee:        "Landlord",
		Method:       "transfer",
		Notes:        "rent",
		Frequency:    domain.FrequencyMonthly,
		Interval:     1,
		StartDate:    domain.NewDate(2024, time.January, 15),
		Active:       true,
		AutoCreate:   autoCreate,
		ReminderTime: domain.DefaultReminderTime,
		CreatedAt:    testNow,
		UpdatedAt:    testNow,
	}
	if err := store.Rules().Insert(context.Background(), r); err != nil {
		t.Fatalf("seed rule: %v", err)
	}
	return r
}

func seedOccurrence(t *testing.T, store storage.Store, status domain.Status) *domain.Occurrence {
	t.Helper()
	occ := &domain.Occurrence{
		ID:        "occ-1",
		RuleID:    "rule-1",
		OccursOn:  domain.NewDate(2024, time.June, 15),
		Status:    status,
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
	if err := store.Occurrences().InsertMany(context.Background(), []*domain.Occurrence{occ}); err != nil {
		t.Fatalf("seed occurrence: %v", err)
	}
	return occ
}

func TestConfirmCreatesTransaction(t *testing.T) {
	t.Parallel()
	svc, cs := newTestService(t)
	ctx := context.Background()
	rule := seedRule(t, cs, false)
	seedOccurrence(t, cs, domain.StatusUpcoming)
	err := cs.Settings().Upsert(ctx, &domain.NotificationSettings{
		OwnerID: "owner-1", Enabled: true, TimeZone: "Asia/Seoul", UpdatedAt: testNow,
	})
	if err != nil {
		t.Fatalf("seed settings: %v", err)
	}

	res, err := svc.Confirm(ctx, "owner-1", "occ-1")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if res.Occurrence.Status != domain.StatusConfirmed {
		t.Fatalf("status = %v, want confirmed", res.Occurrence.Status)
	}
	if res.Transaction == nil {
		t.Fatal("no transaction in result")
	}
	if res.Occurrence.TransactionID == nil || *res.Occurrence.TransactionID != res.Transaction.ID {
		t.Fatalf("transaction ref = %v, want %q", res.Occurrence.TransactionID, res.Transaction.ID)
	}

	// Midnight of June 15 in Seoul is 15:00Z the previous day.
	want := time.Date(2024, time.June, 14, 15, 0, 0, 0, time.UTC)
	if !res.Transaction.OccurredAt.Equal(want) {
		t.Fatalf("OccurredAt = %v, want %v", res.Transaction.OccurredAt, want)
	}
	if res.Transaction.Amount != rule.Amount || res.Transaction.Payee != "Landlord" || res.Transaction.Method != "transfer" {
		t.Fatalf("transaction template = %+v", res.Transaction)
	}
	if res.Transaction.CategoryID == nil || *res.Transaction.CategoryID != "cat-rent" {
		t.Fatalf("CategoryID = %v, want cat-rent", res.Transaction.CategoryID)
	}
	if ins, upd := cs.counts(); ins != 1 || upd != 0 {
		t.Fatalf("ledger writes = %d inserts, %d updates, want 1, 0", ins, upd)
	}
}

func TestConfirmDefaultsToUTCWithoutSettings(t *testing.T) {
	t.Parallel()
	svc, cs := newTestService(t)
	seedRule(t, cs, false)
	seedOccurrence(t, cs, domain.StatusUpcoming)

	res, err := svc.Confirm(context.Background(), "owner-1", "occ-1")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	want := time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)
	if !res.Transaction.OccurredAt.Equal(want) {
		t.Fatalf("OccurredAt = %v, want %v", res.Transaction.OccurredAt, want)
	}
}

func TestConfirmRepeatKeepsLedgerEntry(t *testing.T) {
	t.Parallel()
	svc, cs := newTestService(t)
	ctx := context.Background()
	seedRule(t, cs, false)
	seedOccurrence(t, cs, domain.StatusUpcoming)

	first, err := svc.Confirm(ctx, "owner-1", "occ-1")
	if err != nil {
		t.Fatalf("first Confirm: %v", err)
	}
	second, err := svc.Confirm(ctx, "owner-1", "occ-1")
	if err != nil {
		t.Fatalf("second Confirm: %v", err)
	}
	if second.Transaction != nil {
		t.Fatalf("second confirm wrote a transaction: %+v", second.Transaction)
	}
	if *second.Occurrence.TransactionID != first.Transaction.ID {
		t.Fatalf("transaction ref changed: %q -> %q", first.Transaction.ID, *second.Occurrence.TransactionID)
	}
	if ins, _ := cs.counts(); ins != 1 {
		t.Fatalf("inserts = %d, want 1", ins)
	}
}

func TestConfirmRejectsAutoCreateRule(t *testing.T) {
	t.Parallel()
	svc, cs := newTestService(t)
	ctx := context.Background()
	seedRule(t, cs, true)
	seedOccurrence(t, cs, domain.StatusUpcoming)

	if _, err := svc.Confirm(ctx, "owner-1", "occ-1"); !domain.IsValidation(err) {
		t.Fatalf("Confirm err = %v, want ValidationError", err)
	}
	occ, err := cs.Occurrences().ByID(ctx, "owner-1", "occ-1")
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if occ.Status != domain.StatusUpcoming || occ.TransactionID != nil {
		t.Fatalf("occurrence modified: %+v", occ)
	}
	if ins, upd := cs.counts(); ins+upd != 0 {
		t.Fatalf("ledger writes = %d, want 0", ins+upd)
	}
}

func TestPayCreatesTransaction(t *testing.T) {
	t.Parallel()
	svc, cs := newTestService(t)
	rule := seedRule(t, cs, false)
	seedOccurrence(t, cs, domain.StatusUpcoming)

	res, err := svc.Pay(context.Background(), "owner-1", "occ-1", PayInput{})
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if res.Occurrence.Status != domain.StatusPaid {
		t.Fatalf("status = %v, want paid", res.Occurrence.Status)
	}
	if res.Transaction.Amount != rule.Amount {
		t.Fatalf("Amount = %d, want rule amount %d", res.Transaction.Amount, rule.Amount)
	}
	// Without an override the entry is dated at the action time.
	if !res.Transaction.OccurredAt.Equal(testNow) {
		t.Fatalf("OccurredAt = %v, want %v", res.Transaction.OccurredAt, testNow)
	}
	if ins, upd := cs.counts(); ins != 1 || upd != 0 {
		t.Fatalf("ledger writes = %d inserts, %d updates, want 1, 0", ins, upd)
	}
}

func TestPayOverrides(t *testing.T) {
	t.Parallel()
	svc, cs := newTestService(t)
	seedRule(t, cs, false)
	seedOccurrence(t, cs, domain.StatusUpcoming)

	amount := int64(99999)
	at := time.Date(2024, time.June, 12, 9, 0, 0, 0, time.UTC)
	res, err := svc.Pay(context.Background(), "owner-1", "occ-1", PayInput{Amount: &amount, OccurredAt: &at})
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if res.Transaction.Amount != amount {
		t.Fatalf("Amount = %d, want %d", res.Transaction.Amount, amount)
	}
	if !res.Transaction.OccurredAt.Equal(at) {
		t.Fatalf("OccurredAt = %v, want %v", res.Transaction.OccurredAt, at)
	}
}

func TestPayRejectsNonPositiveAmount(t *testing.T) {
	t.Parallel()
	svc, cs := newTestService(t)
	ctx := context.Background()
	seedRule(t, cs, false)
	seedOccurrence(t, cs, domain.StatusUpcoming)

	for _, amount := range []int64{0, -500} {
		a := amount
		if _, err := svc.Pay(ctx, "owner-1", "occ-1", PayInput{Amount: &a}); !domain.IsValidation(err) {
			t.Fatalf("Pay(%d) err = %v, want ValidationError", amount, err)
		}
	}
	occ, _ := cs.Occurrences().ByID(ctx, "owner-1", "occ-1")
	if occ.Status != domain.StatusUpcoming {
		t.Fatalf("status = %v, want upcoming", occ.Status)
	}
	if ins, upd := cs.counts(); ins+upd != 0 {
		t.Fatalf("ledger writes = %d, want 0", ins+upd)
	}
}

func TestPayAfterConfirmUpdatesInPlace(t *testing.T) {
	t.Parallel()
	svc, cs := newTestService(t)
	ctx := context.Background()
	seedRule(t, cs, false)
	seedOccurrence(t, cs, domain.StatusUpcoming)

	confirmed, err := svc.Confirm(ctx, "owner-1", "occ-1")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	amount := int64(118000)
	paid, err := svc.Pay(ctx, "owner-1", "occ-1", PayInput{Amount: &amount})
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if paid.Transaction.ID != confirmed.Transaction.ID {
		t.Fatalf("transaction id changed: %q -> %q", confirmed.Transaction.ID, paid.Transaction.ID)
	}
	if paid.Transaction.Amount != amount {
		t.Fatalf("Amount = %d, want %d", paid.Transaction.Amount, amount)
	}
	if ins, upd := cs.counts(); ins != 1 || upd != 1 {
		t.Fatalf("ledger writes = %d inserts, %d updates, want 1, 1", ins, upd)
	}
}

func TestPayReusesLinkedTransactionAfterFailedStatusWrite(t *testing.T) {
	t.Parallel()
	svc, cs := newTestService(t)
	ctx := context.Background()
	rule := seedRule(t, cs, false)
	occ := seedOccurrence(t, cs, domain.StatusUpcoming)

	// The ledger entry exists and the reference is linked, but the status
	// write of the previous attempt never landed.
	txn := &domain.Transaction{
		ID: "txn-1", OwnerID: "owner-1", Amount: rule.Amount,
		OccurredAt: testNow, Payee: rule.Payee, Method: rule.Method,
		CreatedAt: testNow, UpdatedAt: testNow,
	}
	if err := cs.Store.Transactions().Insert(ctx, txn); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	id := txn.ID
	occ.TransactionID = &id
	if err := cs.Occurrences().Update(ctx, occ); err != nil {
		t.Fatalf("link transaction: %v", err)
	}

	res, err := svc.Pay(ctx, "owner-1", "occ-1", PayInput{})
	if err != nil {
		t.Fatalf("Pay: %v", err)
	}
	if res.Transaction.ID != "txn-1" {
		t.Fatalf("transaction id = %q, want txn-1", res.Transaction.ID)
	}
	if res.Occurrence.Status != domain.StatusPaid {
		t.Fatalf("status = %v, want paid", res.Occurrence.Status)
	}
	if ins, upd := cs.counts(); ins != 0 || upd != 1 {
		t.Fatalf("ledger writes = %d inserts, %d updates, want 0, 1", ins, upd)
	}
}

func TestTerminalStatusRejectsEveryAction(t *testing.T) {
	t.Parallel()
	for _, status := range []domain.Status{domain.StatusPaid, domain.StatusSkipped} {
		status := status
		t.Run(string(status), func(t *testing.T) {
			t.Parallel()
			svc, cs := newTestService(t)
			ctx := context.Background()
			seedRule(t, cs, false)
			seedOccurrence(t, cs, status)
			before, err := cs.Occurrences().ByID(ctx, "owner-1", "occ-1")
			if err != nil {
				t.Fatalf("ByID: %v", err)
			}

			actions := []struct {
				name string
				run  func() error
			}{
				{"confirm", func() error { _, err := svc.Confirm(ctx, "owner-1", "occ-1"); return err }},
				{"pay", func() error { _, err := svc.Pay(ctx, "owner-1", "occ-1", PayInput{}); return err }},
				{"skip", func() error { _, err := svc.Skip(ctx, "owner-1", "occ-1"); return err }},
				{"snooze", func() error {
					_, err := svc.Snooze(ctx, "owner-1", "occ-1", SnoozeInput{NewDate: domain.NewDate(2024, time.July, 1)})
					return err
				}},
			}
			for _, action := range actions {
				if err := action.run(); !domain.IsConflict(err) {
					t.Fatalf("%s err = %v, want ConflictError", action.name, err)
				}
			}

			after, err := cs.Occurrences().ByID(ctx, "owner-1", "occ-1")
			if err != nil {
				t.Fatalf("ByID: %v", err)
			}
			if !reflect.DeepEqual(before, after) {
				t.Fatalf("occurrence changed: %+v -> %+v", before, after)
			}
			if ins, upd := cs.counts(); ins+upd != 0 {
				t.Fatalf("ledger writes = %d, want 0", ins+upd)
			}
		})
	}
}

func TestSkipHasNoLedgerEffect(t *testing.T) {
	t.Parallel()
	svc, cs := newTestService(t)
	seedRule(t, cs, false)
	seedOccurrence(t, cs, domain.StatusUpcoming)

	res, err := svc.Skip(context.Background(), "owner-1", "occ-1")
	if err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if res.Occurrence.Status != domain.StatusSkipped {
		t.Fatalf("status = %v, want skipped", res.Occurrence.Status)
	}
	if res.Transaction != nil || res.Occurrence.TransactionID != nil {
		t.Fatalf("skip produced a ledger effect: %+v", res)
	}
	if ins, upd := cs.counts(); ins+upd != 0 {
		t.Fatalf("ledger writes = %d, want 0", ins+upd)
	}
}

func TestSnoozeRewritesBothDates(t *testing.T) {
	t.Parallel()
	svc, cs := newTestService(t)
	ctx := context.Background()
	seedRule(t, cs, false)
	seedOccurrence(t, cs, domain.StatusUpcoming)

	first := domain.NewDate(2024, time.June, 20)
	res, err := svc.Snooze(ctx, "owner-1", "occ-1", SnoozeInput{NewDate: first})
	if err != nil {
		t.Fatalf("Snooze: %v", err)
	}
	if res.Occurrence.Status != domain.StatusSnoozed {
		t.Fatalf("status = %v, want snoozed", res.Occurrence.Status)
	}
	if !res.Occurrence.OccursOn.Equal(first) || res.Occurrence.SnoozedUntil == nil || !res.Occurrence.SnoozedUntil.Equal(first) {
		t.Fatalf("dates = occurs_on %v, snoozed_until %v, want both %v",
			res.Occurrence.OccursOn, res.Occurrence.SnoozedUntil, first)
	}

	// Snoozing again moves it further.
	second := domain.NewDate(2024, time.June, 25)
	res, err = svc.Snooze(ctx, "owner-1", "occ-1", SnoozeInput{NewDate: second})
	if err != nil {
		t.Fatalf("second Snooze: %v", err)
	}
	if !res.Occurrence.EffectiveDate().Equal(second) {
		t.Fatalf("EffectiveDate = %v, want %v", res.Occurrence.EffectiveDate(), second)
	}
}

func TestSnoozeRequiresNewDate(t *testing.T) {
	t.Parallel()
	svc, cs := newTestService(t)
	ctx := context.Background()
	seedRule(t, cs, false)
	seedOccurrence(t, cs, domain.StatusUpcoming)

	if _, err := svc.Snooze(ctx, "owner-1", "occ-1", SnoozeInput{}); !domain.IsValidation(err) {
		t.Fatalf("Snooze err = %v, want ValidationError", err)
	}
	occ, _ := cs.Occurrences().ByID(ctx, "owner-1", "occ-1")
	if occ.Status != domain.StatusUpcoming {
		t.Fatalf("status = %v, want upcoming", occ.Status)
	}
}

func TestActionsAreOwnerScoped(t *testing.T) {
	t.Parallel()
	svc, cs := newTestService(t)
	ctx := context.Background()
	seedRule(t, cs, false)
	seedOccurrence(t, cs, domain.StatusUpcoming)

	if _, err := svc.Confirm(ctx, "owner-2", "occ-1"); !domain.IsNotFound(err) {
		t.Fatalf("foreign Confirm err = %v, want NotFoundError", err)
	}
	if _, err := svc.Pay(ctx, "owner-2", "occ-1", PayInput{}); !domain.IsNotFound(err) {
		t.Fatalf("foreign Pay err = %v, want NotFoundError", err)
	}
}
