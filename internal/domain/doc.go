// Package domain holds the core types of the payment scheduler.
//
// Everything here is storage- and transport-agnostic: calendar dates
// (Date, TimeOfDay), recurrence rules, materialized occurrences with their
// status machine, ledger transactions, push subscriptions, notification
// settings, and the error taxonomy the service layers translate to HTTP.
//
// Amounts are int64 minor units throughout (cents for decimal currencies).
package domain
