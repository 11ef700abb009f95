package transfer

// Progress is emitted after every acknowledged chunk. BytesAcknowledged is
// strictly increasing for a given transfer, including across resume.
type Progress struct {
	Digest            string
	FileName          string
	BytesAcknowledged int64
	TotalBytes        int64
}

// State is a transfer's position in its lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateTransferring
	StatePaused
	StateCompleted
	StateAborted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateTransferring:
		return "transferring"
	case StatePaused:
		return "paused"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted || s == StateFailed
}

// Status is a point-in-time snapshot of a transfer.
type Status struct {
	State             State
	BytesAcknowledged int64
	TotalBytes        int64
}
