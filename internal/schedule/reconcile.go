package schedule

import "paycycle/internal/domain"

// Diff is the materialization delta for one rule: dates that need a fresh
// occurrence and ids of occurrences the schedule no longer implies.
type Diff struct {
	ToInsert []domain.Date
	ToCancel []string
}

func (d Diff) Empty() bool {
	return len(d.ToInsert) == 0 && len(d.ToCancel) == 0
}

// Reconcile diffs desired dates against existing occurrences.
//
// A date is satisfied by any existing occurrence on it, whatever its status:
// a paid or skipped record on a desired date is left alone and not
// re-inserted. Cancellation candidates are the existing occurrences whose
// occurs_on the schedule no longer implies, except terminal ones — paid and
// skipped are never touched.
//
// Applying the diff and reconciling again yields an empty diff.
func Reconcile(desired []domain.Date, existing []*domain.Occurrence) Diff {
	have := make(map[domain.Date]bool, len(existing))
	for _, o := range existing {
		have[o.OccursOn] = true
	}

	want := make(map[domain.Date]bool, len(desired))
	var diff Diff
	for _, d := range desired {
		want[d] = true
		if !have[d] {
			diff.ToInsert = append(diff.ToInsert, d)
			have[d] = true
		}
	}

	for _, o := range existing {
		if o.Status.Terminal() {
			continue
		}
		if !want[o.OccursOn] {
			diff.ToCancel = append(diff.ToCancel, o.ID)
		}
	}
	return diff
}
