// Package scheduler owns the state cells of a component tree and applies
// mutations to them by priority. High-priority requests are applied on the
// caller's goroutine before Submit returns; low-priority requests wait in a
// pending batch, where a newer request for the same cell replaces the older
// one, until the host reaches an idle point and flushes the batch as a unit.
//
// Observers hear about every high-priority write individually and about each
// flush exactly once, no matter how many cells it touched. Hosts that run
// their own event loop drive flushes through Checkpoint and FlushIdle; hosts
// that do not can run the built-in idle loop with Run.
package scheduler
