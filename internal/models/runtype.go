package models

// StepKind selects what happens when a StepSpec threshold is crossed.
type StepKind string

const (
	StepKindStart   StepKind = "start"
	StepKindSucceed StepKind = "succeed"
	StepKindBlock   StepKind = "block"
	StepKindLog     StepKind = "log"
)

type RunType struct {
	ID          string         `yaml:"id"`
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Steps       []*StepSpec    `yaml:"steps"`
	Insights    []*InsightRule `yaml:"insights,omitempty"`
}

type StepSpec struct {
	Threshold int      `yaml:"at"`
	Step      string   `yaml:"step,omitempty"`
	Kind      StepKind `yaml:"kind"`
	Outcome   Outcome  `yaml:"outcome,omitempty"`
	// Fatal only applies to block steps: the owning run stops advancing.
	Fatal bool `yaml:"fatal,omitempty"`
}

type Outcome struct {
	Logs     []string `yaml:"logs,omitempty"`
	Evidence []string `yaml:"evidence,omitempty"`
	Reason   string   `yaml:"reason,omitempty"`
	Action   string   `yaml:"action,omitempty"`
}

// InsightRule emits an insight at finalization when every step in
// WhenDone finished done. An empty WhenDone always fires.
type InsightRule struct {
	WhenDone []string `yaml:"when_done,omitempty"`
	Title    string   `yaml:"title"`
	Detail   string   `yaml:"detail,omitempty"`
}

// StepNames returns the distinct step names in order of first appearance.
func (rt *RunType) StepNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, s := range rt.Steps {
		if s.Step == "" || seen[s.Step] {
			continue
		}
		seen[s.Step] = true
		names = append(names, s.Step)
	}
	return names
}
