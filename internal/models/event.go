package models

import "time"

type EventType string

const (
	EventQueued    EventType = "queued"
	EventStarted   EventType = "started"
	EventStep      EventType = "step"
	EventBlocked   EventType = "blocked"
	EventPaused    EventType = "paused"
	EventResumed   EventType = "resumed"
	EventFinished  EventType = "finished"
	EventAnnotated EventType = "annotated"
)

// Event describes one state change of a run. Finished events carry the
// final snapshot, which is also what history archivers store. Annotated
// events carry a snapshot only for terminal runs.
type Event struct {
	Type      EventType
	RunID     string
	RunType   string
	Status    RunStatus
	Step      string
	Timestamp time.Time
	Snapshot  *RunSnapshot
}
