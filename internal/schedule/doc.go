// Package schedule expands recurrence rules into concrete dates and diffs
// them against already-materialized occurrences.
//
// Both entry points (Generate, Reconcile) are pure: no clock, no store, no
// logging. Create, update and the tests all share the same engine, so a
// cadence can never expand differently depending on who asked.
package schedule
