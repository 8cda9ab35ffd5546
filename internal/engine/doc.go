// Package engine runs the scheduling loop over file-defined events.
//
// # Overview
//
// An Engine owns the loaded event definitions and their runtime state
// (last-fired timestamps, cron minute markers). Load scans the events
// root once, Run starts the polling loop, and the administrative surface
// (Activate, Deactivate, Create, Delete, FireNow, ListEvents, Reload)
// mutates or inspects the running engine.
//
// # Ownership
//
// All mutable state belongs to the Run goroutine exclusively. Callers
// never touch it directly: administrative operations are submitted as
// commands over a channel and fulfilled synchronously by the loop between
// ticks, so there are no locks around the registry and no partially
// mutated state to observe. When the loop is not running, commands fail
// with ErrUnavailable after a bounded wait.
//
// # Dispatch
//
// A due event records its firing timestamp before dispatch, so a slow or
// failing handler cannot cause a re-fire on the next tick. Dispatch
// errors are non-fatal: they are audited, logged (rate limited per
// event) and the loop moves on.
package engine
