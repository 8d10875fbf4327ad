// Package storage persists rules, occurrences, ledger transactions, push
// subscriptions and notification settings.
//
// Two drivers: sqlite (file-backed, schema owned by embedded migrations) and
// memory (process-local, deep-copying). Store methods return domain types and
// domain errors only; row encoding never leaks past this package.
package storage
