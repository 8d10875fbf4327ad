// Package rules manages recurrence rules and keeps their materialized
// occurrences aligned with the schedule.
//
// Create materializes the first window of occurrences; Update re-runs
// reconciliation when a schedule field (frequency, interval, start or end
// date) changes; Deactivate soft-deletes the rule and cancels its future
// non-terminal occurrences. One date engine (internal/schedule) backs all
// three paths.
package rules
