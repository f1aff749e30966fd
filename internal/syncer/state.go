package syncer

import "errors"

// ErrSyncRunning is returned when a pass is requested while another pass for
// the same project is still running.
var ErrSyncRunning = errors.New("a synchronization pass is already running")

// State is the lifecycle stage of the synchronizer. Exactly one pass runs at
// a time; terminal states persist until the next pass starts.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
