package engine

import (
	"errors"
	"time"

	"aep/internal/audit"
	"aep/internal/event"
	"aep/internal/eventbus"
	"aep/internal/script"
	"aep/internal/tool"
	"aep/pkg/logx"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	defaultTick           = time.Second
	defaultCommandTimeout = 5 * time.Second
)

var (
	// ErrUnavailable is returned by administrative operations when the
	// loop is not running or does not answer within the command timeout.
	ErrUnavailable = errors.New("engine not running")

	// ErrNotFound is wrapped with the event name by operations targeting
	// an unknown event.
	ErrNotFound = errors.New("event not found")

	// ErrExists is wrapped with the event name when Create collides with
	// a loaded event.
	ErrExists = errors.New("event already exists")
)

// Config configures an Engine.
type Config struct {
	// Root is the events directory scanned by Load and Reload.
	Root string

	// Tick is the polling period. Zero means one second.
	Tick time.Duration

	// DispatchTimeout bounds a single dispatch. Zero disables the bound;
	// a hung handler then stalls the current tick.
	DispatchTimeout time.Duration

	// CommandTimeout bounds how long an administrative caller waits for
	// the loop. Zero means five seconds.
	CommandTimeout time.Duration

	// Watch reloads the registry when manifests under Root change.
	Watch bool
}

// Deps are the collaborators an Engine dispatches through.
type Deps struct {
	Tools   *tool.Registry
	Scripts *script.Registry
	Trail   *audit.Trail
	Bus     eventbus.Bus
	Log     logx.Logger
}

// Summary is one row of ListEvents output.
type Summary struct {
	Name      string
	Type      event.Type
	Schedule  string // canonical compiled form, empty when none
	Action    string // "tool:<name>" or "script:<path>"
	Active    bool
	LastFired time.Time   // zero when never fired
	NextRuns  []time.Time // upcoming fire times for scheduled events
}

type cmdKind int

const (
	cmdList cmdKind = iota
	cmdActivate
	cmdDeactivate
	cmdCreate
	cmdDelete
	cmdFireNow
	cmdReload
)

type command struct {
	kind cmdKind
	name string
	def  *event.Definition
	resp chan cmdResult
}

type cmdResult struct {
	summaries []Summary
	err       error
}
