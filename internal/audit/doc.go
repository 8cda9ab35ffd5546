// Package audit records administrative and dispatch activity.
//
// Every action lands in an in-memory ring that admin surfaces read back.
// An optional persistent sink ("file" or "sqlite") keeps the same entries
// across restarts.
package audit
