// Package reminder wakes owners up about due payments. The selector picks
// occurrences whose zoned due instant falls inside the run window; the
// dispatcher fans them out to the owners' devices through a push sender,
// stamps sent markers and retires dead subscriptions.
package reminder
