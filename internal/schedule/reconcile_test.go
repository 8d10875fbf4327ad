package schedule

import (
	"reflect"
	"testing"
	"time"

	"paycycle/internal/domain"
)

func occ(id string, date domain.Date, status domain.Status) *domain.Occurrence {
	return &domain.Occurrence{ID: id, OccursOn: date, Status: status}
}

func TestReconcileFreshRuleInsertsEverything(t *testing.T) {
	t.Parallel()
	desired := []domain.Date{
		d(2024, time.June, 1),
		d(2024, time.July, 1),
		d(2024, time.August, 1),
	}
	diff := Reconcile(desired, nil)
	if !reflect.DeepEqual(diff.ToInsert, desired) {
		t.Fatalf("ToInsert = %v, want %v", diff.ToInsert, desired)
	}
	if len(diff.ToCancel) != 0 {
		t.Fatalf("ToCancel = %v, want empty", diff.ToCancel)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	t.Parallel()
	desired := []domain.Date{
		d(2024, time.June, 1),
		d(2024, time.July, 1),
	}
	existing := []*domain.Occurrence{
		occ("a", d(2024, time.June, 1), domain.StatusUpcoming),
		occ("b", d(2024, time.July, 1), domain.StatusUpcoming),
	}
	diff := Reconcile(desired, existing)
	if !diff.Empty() {
		t.Fatalf("diff after full materialization = %+v, want empty", diff)
	}
}

func TestReconcileCancelsOnlyNonTerminal(t *testing.T) {
	t.Parallel()
	// Schedule narrowed: only July remains desired.
	desired := []domain.Date{d(2024, time.July, 1)}
	existing := []*domain.Occurrence{
		occ("upcoming", d(2024, time.June, 1), domain.StatusUpcoming),
		occ("paid", d(2024, time.June, 8), domain.StatusPaid),
		occ("skipped", d(2024, time.June, 15), domain.StatusSkipped),
		occ("snoozed", d(2024, time.June, 22), domain.StatusSnoozed),
		occ("confirmed", d(2024, time.June, 29), domain.StatusConfirmed),
		occ("kept", d(2024, time.July, 1), domain.StatusUpcoming),
	}

	diff := Reconcile(desired, existing)
	if len(diff.ToInsert) != 0 {
		t.Fatalf("ToInsert = %v, want empty", diff.ToInsert)
	}
	want := []string{"upcoming", "snoozed", "confirmed"}
	if !reflect.DeepEqual(diff.ToCancel, want) {
		t.Fatalf("ToCancel = %v, want %v", diff.ToCancel, want)
	}
}

func TestReconcileTerminalOnDesiredDateIsNotReinserted(t *testing.T) {
	t.Parallel()
	// A paid record on a desired date satisfies that date; the diff must not
	// schedule a duplicate alongside it.
	desired := []domain.Date{d(2024, time.June, 1), d(2024, time.July, 1)}
	existing := []*domain.Occurrence{
		occ("paid", d(2024, time.June, 1), domain.StatusPaid),
	}

	diff := Reconcile(desired, existing)
	want := []domain.Date{d(2024, time.July, 1)}
	if !reflect.DeepEqual(diff.ToInsert, want) {
		t.Fatalf("ToInsert = %v, want %v", diff.ToInsert, want)
	}
	if len(diff.ToCancel) != 0 {
		t.Fatalf("ToCancel = %v, want empty", diff.ToCancel)
	}
}

func TestReconcileScheduleShift(t *testing.T) {
	t.Parallel()
	// Cadence moved from the 1st to the 5th: old pending records go, new
	// dates come, the paid one stays untouched.
	desired := []domain.Date{
		d(2024, time.June, 5),
		d(2024, time.July, 5),
	}
	existing := []*domain.Occurrence{
		occ("june", d(2024, time.June, 1), domain.StatusUpcoming),
		occ("july", d(2024, time.July, 1), domain.StatusPaid),
	}

	diff := Reconcile(desired, existing)
	wantInsert := []domain.Date{d(2024, time.June, 5), d(2024, time.July, 5)}
	if !reflect.DeepEqual(diff.ToInsert, wantInsert) {
		t.Fatalf("ToInsert = %v, want %v", diff.ToInsert, wantInsert)
	}
	if !reflect.DeepEqual(diff.ToCancel, []string{"june"}) {
		t.Fatalf("ToCancel = %v, want [june]", diff.ToCancel)
	}
}

func TestReconcileAppliedDiffConverges(t *testing.T) {
	t.Parallel()
	desired := []domain.Date{
		d(2024, time.June, 5),
		d(2024, time.July, 5),
	}
	existing := []*domain.Occurrence{
		occ("old", d(2024, time.June, 1), domain.StatusUpcoming),
	}

	first := Reconcile(desired, existing)

	// Apply: cancelled records flip to skipped, inserted dates materialize.
	var applied []*domain.Occurrence
	for _, o := range existing {
		cp := o.Clone()
		for _, id := range first.ToCancel {
			if cp.ID == id {
				cp.Status = domain.StatusSkipped
			}
		}
		applied = append(applied, cp)
	}
	for i, date := range first.ToInsert {
		applied = append(applied, occ(string(rune('A'+i)), date, domain.StatusUpcoming))
	}

	second := Reconcile(desired, applied)
	if !second.Empty() {
		t.Fatalf("diff after applying = %+v, want empty", second)
	}
}
