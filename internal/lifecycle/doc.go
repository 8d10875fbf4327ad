// Package lifecycle moves payment occurrences through their state machine:
// confirm, pay, skip and snooze. Confirm and pay materialize a ledger
// transaction as a side effect; the ledger write always lands before the
// occurrence write so a retried action converges on the already-linked
// transaction instead of minting a second one.
package lifecycle
