package event

import (
	"aep/internal/schedule"
)

// Type classifies how an event is triggered. Only scheduled events interact
// with the polling loop; the other two fire through administrative calls.
type Type string

const (
	TypeScheduled      Type = "scheduled"
	TypeEventTriggered Type = "event-triggered"
	TypeManual         Type = "manual"
)

func (t Type) Valid() bool {
	switch t {
	case TypeScheduled, TypeEventTriggered, TypeManual:
		return true
	}
	return false
}

// ActionKind discriminates the action variant. Deciding this once at load
// time keeps dispatch free of "which key is present" checks.
type ActionKind int

const (
	ActionTool ActionKind = iota
	ActionScript
)

func (k ActionKind) String() string {
	if k == ActionScript {
		return "script"
	}
	return "tool"
}

// Action is the tagged action variant of a loaded event: a tool call
// dispatched through the registry, or a script resolved inside the event
// folder. Exactly one of Tool/Script is meaningful, selected by Kind.
type Action struct {
	Kind   ActionKind
	Tool   string
	Script string
	Params map[string]any
}

// Target returns the tool name or script path, whichever applies.
func (a Action) Target() string {
	if a.Kind == ActionScript {
		return a.Script
	}
	return a.Tool
}

// Definition is one loaded job folder. Fields are immutable after load
// except Active, which administrative operations toggle.
type Definition struct {
	Name        string
	Description string
	Type        Type

	// ScheduleRaw keeps the original text for display; Schedule is the
	// compiled rule, non-nil only for scheduled events that declared one.
	ScheduleRaw string
	Schedule    *schedule.Rule

	Action Action

	// ResolvedParams has file references replaced by file contents. It is
	// produced once at load time; editing a referenced file afterwards has
	// no effect until the event is reloaded.
	ResolvedParams map[string]any

	Active bool

	// Dir is the owning folder, used to locate scripts at dispatch time.
	// The definition only references the folder, it does not own it.
	Dir string
}
