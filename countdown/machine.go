package countdown

import "time"

// State of one countdown instance.
type State int

const (
	Counting State = iota
	Refreshing
	Exhausted
	Errored
)

func (s State) String() string {
	switch s {
	case Counting:
		return "counting"
	case Refreshing:
		return "refreshing"
	case Exhausted:
		return "exhausted"
	case Errored:
		return "error"
	default:
		return "unknown"
	}
}

// Action tells the driver what to do after a transition.
type Action int

const (
	None Action = iota
	// Lookup asks for the next event after the current target.
	Lookup
	// ScheduleRetry asks for a single Retry call after RetryDelay.
	ScheduleRetry
)

const (
	TickInterval = time.Second
	RetryDelay   = 5 * time.Second

	NoUpcomingMessage = "No upcoming events"
	LoadErrorMessage  = "Error loading event"
)

// Target is the event a countdown is counting toward, plus the token for the
// lookup that follows it.
type Target struct {
	ID    int64
	Title string
	At    time.Time
	Nonce string
}

// Result is the outcome of one lookup.
type Result struct {
	Target Target
	Found  bool
	Err    error
}

// Machine holds the countdown state. It is not safe for concurrent use; the
// Runner drives it from a single goroutine.
type Machine struct {
	state   State
	target  Target
	display string
}

// NewMachine starts in Counting toward seed.
func NewMachine(seed Target) *Machine {
	return &Machine{state: Counting, target: seed}
}

func (m *Machine) State() State    { return m.state }
func (m *Machine) Target() Target  { return m.target }
func (m *Machine) Display() string { return m.display }

// Tick recomputes the display. Once the target has passed the machine moves to
// Refreshing and asks for exactly one lookup; ticks in other states do nothing.
func (m *Machine) Tick(now time.Time) Action {
	if m.state != Counting {
		return None
	}
	remaining := m.target.At.Sub(now)
	if remaining < 0 {
		m.state = Refreshing
		return Lookup
	}
	m.display = FormatRemaining(remaining)
	return None
}

// Resolve applies a lookup result received while Refreshing.
func (m *Machine) Resolve(res Result, now time.Time) Action {
	if m.state != Refreshing {
		return None
	}
	switch {
	case res.Err != nil:
		m.state = Errored
		m.display = LoadErrorMessage
		return ScheduleRetry
	case !res.Found:
		m.state = Exhausted
		m.display = NoUpcomingMessage
		return None
	default:
		if res.Target.Nonce == "" {
			res.Target.Nonce = m.target.Nonce
		}
		m.target = res.Target
		m.state = Counting
		return m.Tick(now)
	}
}

// Retry re-enters Refreshing after an error.
func (m *Machine) Retry() Action {
	if m.state != Errored {
		return None
	}
	m.state = Refreshing
	return Lookup
}
