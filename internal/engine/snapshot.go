package engine

import (
	"aep/internal/schedule"
)

const nextRunPreview = 3

// snapshot copies the registry into ListEvents rows. Called on the loop
// goroutine (or before Run), so it reads loop-owned state safely.
func (e *Engine) snapshot() []Summary {
	now := e.now()
	out := make([]Summary, 0, len(e.events))
	for _, def := range e.events {
		s := Summary{
			Name:      def.Name,
			Type:      def.Type,
			Action:    def.Action.Kind.String() + ":" + def.Action.Target(),
			Active:    def.Active,
			LastFired: e.lastFired[def.Name],
		}
		if def.Schedule != nil {
			s.Schedule = def.Schedule.Canonical()
			s.NextRuns = schedule.NextRuns(*def.Schedule, now, nextRunPreview)
		}
		out = append(out, s)
	}
	return out
}
