package orchestrator

import (
	"cmp"
	"slices"
	"time"

	"github.com/mpataki/cadence/internal/models"
)

// BlockPolicy decides what happens to a run after a fatal block.
type BlockPolicy string

const (
	// BlockPolicyWait leaves the run blocked until the caller stops it.
	BlockPolicyWait BlockPolicy = "wait"
	// BlockPolicyFail fails the run in the same tick it blocked.
	BlockPolicyFail BlockPolicy = "fail"
)

// run is the engine-side state of one execution. All fields are guarded by
// Orchestrator.mu.
type run struct {
	id     string
	seq    uint64
	rt     *models.RunType
	mode   models.Mode
	policy BlockPolicy

	status   models.RunStatus
	progress int
	// next indexes the first StepSpec in rt.Steps that has not fired.
	next int

	steps      []models.StepState
	stepIdx    map[string]int
	logs       []models.LogEntry
	evidence   []models.Evidence
	exceptions []models.Exception
	insights   []models.Insight
	err        string

	createdAt  time.Time
	activateAt time.Time
	startedAt  *time.Time
	finishedAt *time.Time
}

func newRun(id string, seq uint64, rt *models.RunType, mode models.Mode, policy BlockPolicy, now time.Time, delay time.Duration) *run {
	r := &run{
		id:         id,
		seq:        seq,
		rt:         sortedSteps(rt),
		mode:       mode,
		policy:     policy,
		status:     models.RunStatusQueued,
		stepIdx:    make(map[string]int),
		createdAt:  now,
		activateAt: now.Add(delay),
	}
	for _, name := range r.rt.StepNames() {
		r.stepIdx[name] = len(r.steps)
		r.steps = append(r.steps, models.StepState{Name: name, Status: models.StepStatusPending})
	}
	r.log(now, "", "Queued")
	return r
}

// sortedSteps returns a shallow copy of rt whose Steps are ordered by
// threshold, ties in declaration order. The StepSpecs themselves are shared.
func sortedSteps(rt *models.RunType) *models.RunType {
	cp := *rt
	cp.Steps = slices.Clone(rt.Steps)
	slices.SortStableFunc(cp.Steps, func(a, b *models.StepSpec) int {
		return cmp.Compare(a.Threshold, b.Threshold)
	})
	return &cp
}

func (r *run) log(now time.Time, step, message string) {
	r.logs = append(r.logs, models.LogEntry{Timestamp: now, Step: step, Message: message})
}

func (r *run) step(name string) *models.StepState {
	i, ok := r.stepIdx[name]
	if !ok {
		return nil
	}
	return &r.steps[i]
}

// apply fires one StepSpec. It reports whether the run must stop advancing.
func (r *run) apply(spec *models.StepSpec, now time.Time) (halt bool) {
	st := r.step(spec.Step)
	out := spec.Outcome

	switch spec.Kind {
	case models.StepKindStart:
		st.Status = models.StepStatusRunning
		st.Logs = append(st.Logs, "Started")
		st.Logs = append(st.Logs, out.Logs...)
		r.log(now, spec.Step, "Started")
		for _, l := range out.Logs {
			r.log(now, spec.Step, l)
		}

	case models.StepKindSucceed:
		st.Status = models.StepStatusDone
		st.Logs = append(st.Logs, out.Logs...)
		st.Evidence = append(st.Evidence, out.Evidence...)
		st.Logs = append(st.Logs, "Completed")
		for _, l := range out.Logs {
			r.log(now, spec.Step, l)
		}
		for _, e := range out.Evidence {
			r.evidence = append(r.evidence, models.Evidence{Timestamp: now, Step: spec.Step, Text: e})
		}
		r.log(now, spec.Step, "Completed")

	case models.StepKindBlock:
		st.Status = models.StepStatusBlocked
		st.Logs = append(st.Logs, "Blocked: "+out.Reason)
		r.log(now, spec.Step, "Blocked: "+out.Reason)
		r.exceptions = append(r.exceptions, models.Exception{
			Step:      spec.Step,
			Reason:    out.Reason,
			Action:    out.Action,
			Timestamp: now,
		})
		if spec.Fatal {
			r.status = models.RunStatusBlocked
			r.progress = spec.Threshold
			return true
		}

	case models.StepKindLog:
		for _, l := range out.Logs {
			r.log(now, spec.Step, l)
		}
	}
	return false
}

// finalize marks the run done and derives insights from the steps that
// finished done.
func (r *run) finalize(now time.Time) {
	r.status = models.RunStatusDone
	r.finishedAt = &now
	r.log(now, "", "Run completed")

	for _, rule := range r.rt.Insights {
		if r.allDone(rule.WhenDone) {
			r.insights = append(r.insights, models.Insight{
				Title:     rule.Title,
				Detail:    rule.Detail,
				Timestamp: now,
			})
		}
	}
}

func (r *run) allDone(names []string) bool {
	for _, name := range names {
		st := r.step(name)
		if st == nil || st.Status != models.StepStatusDone {
			return false
		}
	}
	return true
}

func (r *run) fail(now time.Time, reason string) {
	r.status = models.RunStatusFailed
	r.finishedAt = &now
	r.err = reason
	r.log(now, "", "Run failed: "+reason)
}

// snapshot returns a deep copy of the run (must hold lock).
func (r *run) snapshot() *models.RunSnapshot {
	steps := make([]models.StepState, len(r.steps))
	for i, st := range r.steps {
		steps[i] = models.StepState{
			Name:     st.Name,
			Status:   st.Status,
			Logs:     append([]string(nil), st.Logs...),
			Evidence: append([]string(nil), st.Evidence...),
		}
	}

	return &models.RunSnapshot{
		ID:         r.id,
		RunType:    r.rt.ID,
		Mode:       r.mode,
		Status:     r.status,
		Progress:   r.progress,
		Steps:      steps,
		Logs:       append([]models.LogEntry(nil), r.logs...),
		Evidence:   append([]models.Evidence(nil), r.evidence...),
		Exceptions: append([]models.Exception(nil), r.exceptions...),
		Insights:   append([]models.Insight(nil), r.insights...),
		Error:      r.err,
		CreatedAt:  r.createdAt,
		StartedAt:  copyTime(r.startedAt),
		FinishedAt: copyTime(r.finishedAt),
	}
}

func (r *run) event(typ models.EventType, step string, now time.Time) models.Event {
	ev := models.Event{
		Type:      typ,
		RunID:     r.id,
		RunType:   r.rt.ID,
		Status:    r.status,
		Step:      step,
		Timestamp: now,
	}
	if typ == models.EventFinished || (typ == models.EventAnnotated && r.status.Terminal()) {
		ev.Snapshot = r.snapshot()
	}
	return ev
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
