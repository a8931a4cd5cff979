package game

// EventType enum for tick outcome classification
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeJoin
	EventTypeLeave
	EventTypeDeath
	EventTypeGrind // a cycle started grinding this tick
	EventTypeRespawn
	EventTypeBoostStart
	EventTypeBoostEnd
	EventTypeRoundStart
	EventTypeRoundEnd
	EventTypeTransitionRejected
)

// EventVersion for backwards compatibility in the event log
const EventVersion uint8 = 1

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypeJoin:
		return "join"
	case EventTypeLeave:
		return "leave"
	case EventTypeDeath:
		return "death"
	case EventTypeGrind:
		return "grind"
	case EventTypeRespawn:
		return "respawn"
	case EventTypeBoostStart:
		return "boost_start"
	case EventTypeBoostEnd:
		return "boost_end"
	case EventTypeRoundStart:
		return "round_start"
	case EventTypeRoundEnd:
		return "round_end"
	case EventTypeTransitionRejected:
		return "transition_rejected"
	default:
		return "unknown"
	}
}

// MarshalText encodes the type by name.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// DeathCause says what killed a cycle.
type DeathCause uint8

const (
	CauseNone  DeathCause = iota
	CauseWall             // static obstacle or arena border
	CauseTrail            // another cycle's trail
	CauseSelf             // own trail past the grace distance
	CauseCycle            // cycle-to-cycle contact
	CauseArena            // left the arena
)

// String returns the cause name, also used as a metrics label.
func (c DeathCause) String() string {
	switch c {
	case CauseWall:
		return "wall"
	case CauseTrail:
		return "trail"
	case CauseSelf:
		return "self"
	case CauseCycle:
		return "cycle"
	case CauseArena:
		return "arena"
	default:
		return "none"
	}
}

// MarshalText encodes the cause by name.
func (c DeathCause) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Event is one typed record of something that happened during a tick.
type Event struct {
	Type    EventType  `json:"type"`
	Tick    uint64     `json:"tick"`
	CycleID string     `json:"cycleId,omitempty"`
	OtherID string     `json:"otherId,omitempty"` // killer or collision partner
	Cause   DeathCause `json:"cause,omitempty"`
	X       float64    `json:"x"`
	Z       float64    `json:"z"`
	Rubber  float64    `json:"rubber,omitempty"`
	Round   int        `json:"round,omitempty"`
	Winner  string     `json:"winner,omitempty"`
	Detail  string     `json:"detail,omitempty"`
}

// TickOutcome lists every event produced by one simulation step, in the
// order they happened. Observers read it instead of registering callbacks.
type TickOutcome struct {
	Tick   uint64  `json:"tick"`
	Events []Event `json:"events"`
}

// Of returns the events of the given type.
func (o TickOutcome) Of(t EventType) []Event {
	var out []Event
	for _, ev := range o.Events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// Has reports whether an event of type t occurred.
func (o TickOutcome) Has(t EventType) bool {
	for _, ev := range o.Events {
		if ev.Type == t {
			return true
		}
	}
	return false
}

// DiedThisTick reports whether the cycle died during the tick.
func (o TickOutcome) DiedThisTick(cycleID string) bool {
	for _, ev := range o.Events {
		if ev.Type == EventTypeDeath && ev.CycleID == cycleID {
			return true
		}
	}
	return false
}
