package types

// Status is the normalized state of a job on the processing engine.
type Status string

const (
	StatusAccepted Status = "accepted"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusError    Status = "error"
	StatusUnknown  Status = "unknown"
)

// ParseStatus maps an engine status string onto the closed Status set.
// The engine reports killed jobs as "terminated", which is an error outcome here.
func ParseStatus(s string) Status {
	switch s {
	case "accepted":
		return StatusAccepted
	case "running":
		return StatusRunning
	case "finished":
		return StatusFinished
	case "error", "terminated":
		return StatusError
	default:
		return StatusUnknown
	}
}

// Terminal reports whether no further status change is expected.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusError
}

// MessageKind tags an emitted status event for the receiving client.
type MessageKind string

const (
	KindResourceMessage MessageKind = "resource_message"
	KindModelSetup      MessageKind = "model_setup"
)

func (k MessageKind) Valid() bool {
	return k == KindResourceMessage || k == KindModelSetup
}

// JobHandle identifies one asynchronous job on the engine. Both ids are
// assigned by the engine at submission time.
type JobHandle struct {
	UserID     string `json:"user_id"`
	ResourceID string `json:"resource_id"`
}

// ProcessLogEntry is one executed module as reported by the engine.
type ProcessLogEntry struct {
	ID         string   `json:"id,omitempty"`
	Executable string   `json:"executable"`
	Parameter  []string `json:"parameter,omitempty"`
	ReturnCode int      `json:"return_code"`
	RunTime    float64  `json:"run_time"`
	MapsetSize float64  `json:"mapset_size,omitempty"`
	Stdout     string   `json:"stdout,omitempty"`
	Stderr     []string `json:"stderr,omitempty"`
}

// StatusEvent is the result of one classified status poll. A nil Resources
// slice means the engine response carried no resource list at all; an empty
// non-nil slice means the list was present but empty. Nil pointers mark
// optional values the engine has not reported yet.
type StatusEvent struct {
	Handle     JobHandle
	Kind       MessageKind
	ModelID    string
	Status     Status
	RawStatus  string
	Resources  []string
	ProcessLog []ProcessLogEntry
	Progress   *float64
	TimeDelta  *float64
	Message    *string
}

// HasResources distinguishes an absent resource list from an empty one.
func (e *StatusEvent) HasResources() bool {
	return e.Resources != nil
}
