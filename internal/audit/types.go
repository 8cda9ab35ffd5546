package audit

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("audit sink disabled")

// Config configures the persistent sink.
//
// Driver values:
//   - "file": append-only JSON Lines file
//   - "sqlite": SQLite database file (optional build tag)
//
// If Driver is empty or "none", only the in-memory ring is kept.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
	RingSize    int           // in-memory entries kept; 0 means default
}

// Actions recorded in the trail.
const (
	ActionFired       = "fired"
	ActionFireNow     = "fire_now"
	ActionCreated     = "created"
	ActionDeleted     = "deleted"
	ActionActivated   = "activated"
	ActionDeactivated = "deactivated"
	ActionReloaded    = "reloaded"
)

// Entry statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Entry is one audit record. Keep it compact and schema-stable.
type Entry struct {
	ID     string    `json:"id"`
	At     time.Time `json:"at"`
	Event  string    `json:"event"`
	Action string    `json:"action"`
	Status string    `json:"status"`
	Detail string    `json:"detail,omitempty"`
	TookMS int64     `json:"took_ms,omitempty"`
}
