package models

import "time"

type RunStatus string

const (
	RunStatusQueued  RunStatus = "queued"
	RunStatusRunning RunStatus = "running"
	RunStatusPaused  RunStatus = "paused"
	RunStatusBlocked RunStatus = "blocked"
	RunStatusFailed  RunStatus = "failed"
	RunStatusDone    RunStatus = "done"
)

// Terminal reports whether no further transitions are possible.
func (s RunStatus) Terminal() bool {
	return s == RunStatusDone || s == RunStatusFailed
}

type StepStatus string

const (
	StepStatusPending StepStatus = "pending"
	StepStatusRunning StepStatus = "running"
	StepStatusDone    StepStatus = "done"
	StepStatusBlocked StepStatus = "blocked"
)

type Mode string

const (
	ModeFull Mode = "full"
	ModeDry  Mode = "dry"
)

type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Step      string    `json:"step,omitempty"`
	Message   string    `json:"message"`
}

type Evidence struct {
	Timestamp time.Time `json:"timestamp"`
	Step      string    `json:"step,omitempty"`
	Text      string    `json:"text"`
	Manual    bool      `json:"manual,omitempty"`
}

type Exception struct {
	Step      string    `json:"step"`
	Reason    string    `json:"reason"`
	Action    string    `json:"action,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Insight struct {
	Title     string    `json:"title"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type StepState struct {
	Name     string     `json:"name"`
	Status   StepStatus `json:"status"`
	Logs     []string   `json:"logs,omitempty"`
	Evidence []string   `json:"evidence,omitempty"`
}

// RunSnapshot is a deep copy of a run. Nothing in it aliases engine state.
type RunSnapshot struct {
	ID          string      `json:"id"`
	RunType     string      `json:"run_type"`
	Mode        Mode        `json:"mode"`
	Status      RunStatus   `json:"status"`
	Progress    int         `json:"progress"`
	Steps       []StepState `json:"steps"`
	Logs        []LogEntry  `json:"logs,omitempty"`
	Evidence    []Evidence  `json:"evidence,omitempty"`
	Exceptions  []Exception `json:"exceptions,omitempty"`
	Insights    []Insight   `json:"insights,omitempty"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	StartedAt   *time.Time  `json:"started_at,omitempty"`
	FinishedAt  *time.Time  `json:"finished_at,omitempty"`
}

// Step returns the state of the named step.
func (s *RunSnapshot) Step(name string) (StepState, bool) {
	for _, st := range s.Steps {
		if st.Name == name {
			return st, true
		}
	}
	return StepState{}, false
}
