package tasks

import (
	"fmt"
	"sync"

	"github.com/desertthunder/tunesync/internal/shared"
)

// State is the lifecycle position of a sync job.
type State int

const (
	StatePending State = iota
	StateEnumerating
	StateProcessing
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateEnumerating:
		return "enumerating"
	case StateProcessing:
		return "processing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the job can no longer change state.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

var stateTransitions = map[State][]State{
	StatePending:     {StateEnumerating, StateFailed, StateCancelled},
	StateEnumerating: {StateProcessing, StateFailed, StateCancelled},
	StateProcessing:  {StateCompleted, StateFailed, StateCancelled},
}

// Selection names the source playlists a job covers. All wins over
// explicit IDs.
type Selection struct {
	All         bool
	PlaylistIDs []string
}

// Job tracks a single sync run. State moves strictly forward through
// pending, enumerating, processing, and one of the three terminals.
type Job struct {
	ID        string
	Selection Selection

	mu    sync.Mutex
	state State
}

// NewJob returns a pending job with a fresh identifier.
func NewJob(sel Selection) *Job {
	return &Job{ID: shared.GenerateID(), Selection: sel, state: StatePending}
}

// State returns the job's current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// transition advances the job or reports the illegal move. Terminal
// states reject every transition.
func (j *Job) transition(to State) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	for _, allowed := range stateTransitions[j.state] {
		if allowed == to {
			j.state = to
			return nil
		}
	}
	return fmt.Errorf("invalid job transition %s -> %s", j.state, to)
}
