// Package schedule is the durable delayed-action scheduler.
//
// A ScheduledAction ("lift the restriction on subject S in scope C at time T") is
// written to a local durable record before it is armed, so it survives restarts.
// Components, leaf-first:
//   - FileStore: single JSON record, write-temp-then-rename
//   - Registry: in-memory set keyed by (scope, subject); each mutation is saved
//   - Engine: one timer per action, fires the Executor and removes the entry
//   - Reconcile: startup catch-up (fire overdue, arm future, save once)
//
// Service ties them together and is what the command layer talks to.
package schedule
