package generation

import "time"

// State is a step of one Generate call.
type State int

const (
	Idle State = iota
	Requesting
	Retrying
	TimedOut
	Failed
	Verifying
	Regenerating
	Accepted
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requesting:
		return "requesting"
	case Retrying:
		return "retrying"
	case TimedOut:
		return "timed_out"
	case Failed:
		return "failed"
	case Verifying:
		return "verifying"
	case Regenerating:
		return "regenerating"
	case Accepted:
		return "accepted"
	case Done:
		return "done"
	}
	return "unknown"
}

// Attempt describes the call a state change belongs to.
type Attempt struct {
	// Round is 0 for the first generation and n for the n-th regeneration.
	Round int
	// Call counts external generate calls within the round, from 1.
	Call  int
	Delay time.Duration
	Score float64
	Err   error
}

// Observer receives every state change. It runs on the calling goroutine and
// must not block.
type Observer func(State, Attempt)
