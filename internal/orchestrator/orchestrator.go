// Package orchestrator runs queued runs through their step tables under a
// single shared clock.
//
// Every mutation of run state happens under one mutex: the tick handler and
// the control operations (Pause, Resume, Stop, Annotate, Discard) are each
// applied all-or-nothing. Reads return deep-copied snapshots.
package orchestrator

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	cadencelog "github.com/mpataki/cadence/internal/log"
	"github.com/mpataki/cadence/internal/models"
)

// Catalog resolves run type ids. *catalog.Registry satisfies it. Step order
// does not matter; each run keeps its own copy sorted by threshold.
type Catalog interface {
	Lookup(id string) (*models.RunType, bool)
}

// Config contains orchestrator configuration.
type Config struct {
	// TickInterval is the clock period. Default: 600ms.
	TickInterval time.Duration

	// ActivationDelay is how long a run stays queued before the first tick
	// may promote it.
	ActivationDelay time.Duration

	// HistoryLimit caps how many terminal runs stay retrievable. Zero or
	// negative keeps all of them.
	HistoryLimit int

	// BlockPolicy is the default for runs started without WithBlockPolicy.
	BlockPolicy BlockPolicy

	// ManualClock disables the background ticker. Callers drive Tick.
	ManualClock bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithIncrement sets the progress strategy. Default: Fixed(5).
func WithIncrement(inc Increment) Option {
	return func(o *Orchestrator) { o.increment = inc }
}

// WithLogger sets the logger. Default: discard.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithObserver registers an observer for run events.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observers = append(o.observers, obs) }
}

// WithNow overrides the time source.
func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator overrides run id generation. Generated ids must be unique.
func WithIDGenerator(gen func() string) Option {
	return func(o *Orchestrator) { o.newID = gen }
}

// RunOption configures a single run at enqueue time.
type RunOption func(*run)

// WithBlockPolicy overrides the orchestrator's default block policy.
func WithBlockPolicy(p BlockPolicy) RunOption {
	return func(r *run) { r.policy = p }
}

// ListFilter contains filtering options for listing runs.
type ListFilter struct {
	// Statuses keeps runs in any of the listed statuses. Empty keeps all.
	Statuses []models.RunStatus
	RunType  string
	Limit    int
}

// Orchestrator owns all runs and the clock that advances them.
type Orchestrator struct {
	cfg       Config
	catalog   Catalog
	increment Increment
	observers []Observer
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string

	mu      sync.RWMutex
	seq     uint64
	active  []*run
	history []*run
	byID    map[string]*run
	closed  bool
	// clockStop is non-nil while the clock goroutine is running.
	clockStop chan struct{}

	ticking atomic.Bool
	wg      sync.WaitGroup
}

// New creates an orchestrator. The clock does not start until the first run
// is enqueued.
func New(cfg Config, cat Catalog, opts ...Option) *Orchestrator {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 600 * time.Millisecond
	}
	if cfg.ActivationDelay < 0 {
		cfg.ActivationDelay = 0
	}
	if cfg.BlockPolicy == "" {
		cfg.BlockPolicy = BlockPolicyWait
	}

	o := &Orchestrator{
		cfg:       cfg,
		catalog:   cat,
		increment: Fixed(5),
		now:       time.Now,
		newID:     newRunID,
		byID:      make(map[string]*run),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = cadencelog.Discard()
	}
	o.logger = cadencelog.WithComponent(o.logger, "orchestrator")

	return o
}

func newRunID() string {
	return "RUN-" + strings.ToUpper(uuid.NewString())
}

// Enqueue creates a queued run of the given type and returns its snapshot.
func (o *Orchestrator) Enqueue(typeID string, mode models.Mode, opts ...RunOption) (*models.RunSnapshot, error) {
	if mode == "" {
		mode = models.ModeFull
	}
	if mode != models.ModeFull && mode != models.ModeDry {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}

	rt, ok := o.catalog.Lookup(typeID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRunType, typeID)
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}

	id := o.newID()
	if _, exists := o.byID[id]; exists {
		o.mu.Unlock()
		return nil, fmt.Errorf("run id %s already in use", id)
	}

	now := o.now()
	o.seq++
	r := newRun(id, o.seq, rt, mode, o.cfg.BlockPolicy, now, o.cfg.ActivationDelay)
	for _, opt := range opts {
		opt(r)
	}
	o.active = append(o.active, r)
	o.byID[id] = r
	o.ensureClockLocked()

	snap := r.snapshot()
	ev := r.event(models.EventQueued, "", now)
	o.mu.Unlock()

	o.runLogger(r).Info("run queued", slog.String("mode", string(mode)), slog.String("block_policy", string(r.policy)))
	o.emit([]models.Event{ev})

	return snap, nil
}

// Tick advances every active run by one clock period. It returns false
// without doing anything when another tick is still in flight.
func (o *Orchestrator) Tick() bool {
	return o.runTick(nil)
}

func (o *Orchestrator) runTick(owner chan struct{}) bool {
	if !o.ticking.CompareAndSwap(false, true) {
		o.logger.Debug("tick skipped, previous tick still running")
		return false
	}
	defer o.ticking.Store(false)

	o.emit(o.tick(owner))
	return true
}

// tick applies one period to all active runs. A non-nil owner is the stop
// channel of the clock goroutine calling it; ticks from a clock that has
// since been stopped are dropped.
func (o *Orchestrator) tick(owner chan struct{}) []models.Event {
	o.mu.Lock()
	defer o.mu.Unlock()

	if owner != nil && o.clockStop != owner {
		return nil
	}

	now := o.now()
	var events []models.Event
	for _, r := range o.active {
		events = o.advance(r, now, events)
	}

	o.retireLocked()
	if !o.liveLocked() {
		o.stopClockLocked()
	}
	return events
}

// advance applies one tick to r (must hold lock). A panic while processing
// r fails r alone.
func (o *Orchestrator) advance(r *run, now time.Time, events []models.Event) (out []models.Event) {
	out = events
	defer func() {
		if p := recover(); p != nil {
			o.runLogger(r).Error("run processing panicked", slog.Any("panic", p))
			r.fail(now, fmt.Sprintf("internal error: %v", p))
			out = append(out, r.event(models.EventFinished, "", now))
		}
	}()

	if r.status == models.RunStatusQueued {
		if now.Before(r.activateAt) {
			return out
		}
		r.status = models.RunStatusRunning
		started := now
		r.startedAt = &started
		r.log(now, "", "Run started")
		out = append(out, r.event(models.EventStarted, "", now))
		o.runLogger(r).Info("run started")
	}

	if r.status != models.RunStatusRunning {
		return out
	}

	delta := min(max(o.increment.Next(r.progress), 0), 100-r.progress)
	r.progress += delta

	for r.next < len(r.rt.Steps) && r.rt.Steps[r.next].Threshold <= r.progress {
		spec := r.rt.Steps[r.next]
		r.next++

		halt := r.apply(spec, now)
		if spec.Kind == models.StepKindBlock {
			out = append(out, r.event(models.EventBlocked, spec.Step, now))
			o.runLogger(r).Warn("step blocked",
				slog.String(cadencelog.StepKey, spec.Step),
				slog.String("reason", spec.Outcome.Reason),
				slog.Bool("fatal", spec.Fatal))
		} else if spec.Step != "" {
			out = append(out, r.event(models.EventStep, spec.Step, now))
		}
		if halt {
			break
		}
	}

	o.runLogger(r).Debug("run advanced", slog.Int(cadencelog.ProgressKey, r.progress))

	switch {
	case r.status == models.RunStatusRunning && r.progress == 100:
		r.finalize(now)
		out = append(out, r.event(models.EventFinished, "", now))
		o.runLogger(r).Info("run completed", slog.Int("insights", len(r.insights)))

	case r.status == models.RunStatusBlocked && r.policy == BlockPolicyFail:
		r.fail(now, "blocked: "+r.exceptions[len(r.exceptions)-1].Reason)
		out = append(out, r.event(models.EventFinished, "", now))
		o.runLogger(r).Info("blocked run failed by policy")
	}

	return out
}

// Pause stops a running run from advancing.
func (o *Orchestrator) Pause(id string) error {
	return o.transition(id, "pause", func(r *run, now time.Time) (models.Event, error) {
		if r.status != models.RunStatusRunning {
			return models.Event{}, invalidTransition("pause", r)
		}
		r.status = models.RunStatusPaused
		r.log(now, "", "Paused")
		return r.event(models.EventPaused, "", now), nil
	})
}

// Resume continues a paused run from the progress it was paused at.
func (o *Orchestrator) Resume(id string) error {
	return o.transition(id, "resume", func(r *run, now time.Time) (models.Event, error) {
		if r.status != models.RunStatusPaused || r.progress >= 100 {
			return models.Event{}, invalidTransition("resume", r)
		}
		r.status = models.RunStatusRunning
		r.log(now, "", "Resumed")
		o.ensureClockLocked()
		return r.event(models.EventResumed, "", now), nil
	})
}

// Stop fails any non-terminal run. No further ticks apply to it.
func (o *Orchestrator) Stop(id string) error {
	return o.transition(id, "stop", func(r *run, now time.Time) (models.Event, error) {
		if r.status.Terminal() {
			return models.Event{}, invalidTransition("stop", r)
		}
		r.fail(now, "stopped by caller")
		o.retireLocked()
		return r.event(models.EventFinished, "", now), nil
	})
}

func (o *Orchestrator) transition(id, op string, fn func(r *run, now time.Time) (models.Event, error)) error {
	o.mu.Lock()
	r, ok := o.byID[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	ev, err := fn(r, o.now())
	o.mu.Unlock()

	if err != nil {
		return err
	}
	o.runLogger(r).Info("run transition", slog.String("op", op), slog.String(cadencelog.StatusKey, string(ev.Status)))
	o.emit([]models.Event{ev})
	return nil
}

func invalidTransition(op string, r *run) error {
	return fmt.Errorf("%w: cannot %s run %s in status %s", ErrInvalidTransition, op, r.id, r.status)
}

// Annotate appends caller-supplied evidence to a run. For terminal runs the
// annotated event carries a fresh snapshot.
func (o *Orchestrator) Annotate(id, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("evidence text is empty")
	}

	o.mu.Lock()
	r, ok := o.byID[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	now := o.now()
	r.evidence = append(r.evidence, models.Evidence{Timestamp: now, Text: text, Manual: true})
	ev := r.event(models.EventAnnotated, "", now)
	o.mu.Unlock()

	o.emit([]models.Event{ev})
	return nil
}

// Discard forgets a terminal run.
func (o *Orchestrator) Discard(id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	r, ok := o.byID[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if !r.status.Terminal() {
		return invalidTransition("discard", r)
	}

	delete(o.byID, id)
	for i, h := range o.history {
		if h == r {
			o.history = append(o.history[:i], o.history[i+1:]...)
			break
		}
	}
	return nil
}

// Get returns an immutable snapshot of a run by ID.
func (o *Orchestrator) Get(id string) (*models.RunSnapshot, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	r, ok := o.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r.snapshot(), nil
}

// List returns snapshots of active and retained runs, newest first.
func (o *Orchestrator) List(filter ListFilter) []*models.RunSnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()

	runs := make([]*run, 0, len(o.byID))
	for _, r := range o.byID {
		if filter.RunType != "" && r.rt.ID != filter.RunType {
			continue
		}
		if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, r.status) {
			continue
		}
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].seq > runs[j].seq })

	if filter.Limit > 0 && len(runs) > filter.Limit {
		runs = runs[:filter.Limit]
	}

	out := make([]*models.RunSnapshot, len(runs))
	for i, r := range runs {
		out[i] = r.snapshot()
	}
	return out
}

func hasStatus(statuses []models.RunStatus, s models.RunStatus) bool {
	for _, want := range statuses {
		if want == s {
			return true
		}
	}
	return false
}

// ActiveCount returns the number of runs that are not yet terminal.
func (o *Orchestrator) ActiveCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.active)
}

// Close stops the clock and rejects further enqueues. Existing runs stay
// readable.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.stopClockLocked()
	o.mu.Unlock()

	o.wg.Wait()
}

// retireLocked moves terminal runs from the active set into history and
// trims history to the configured limit (must hold lock).
func (o *Orchestrator) retireLocked() {
	kept := o.active[:0]
	for _, r := range o.active {
		if r.status.Terminal() {
			o.history = append(o.history, r)
			continue
		}
		kept = append(kept, r)
	}
	clear(o.active[len(kept):])
	o.active = kept

	if limit := o.cfg.HistoryLimit; limit > 0 && len(o.history) > limit {
		evict := len(o.history) - limit
		for _, r := range o.history[:evict] {
			delete(o.byID, r.id)
		}
		o.history = append([]*run(nil), o.history[evict:]...)
	}
}

// liveLocked reports whether any run still needs the clock (must hold lock).
func (o *Orchestrator) liveLocked() bool {
	for _, r := range o.active {
		if r.status == models.RunStatusQueued || r.status == models.RunStatusRunning {
			return true
		}
	}
	return false
}

func (o *Orchestrator) emit(events []models.Event) {
	for _, ev := range events {
		for _, obs := range o.observers {
			o.notify(obs, ev)
		}
	}
}

func (o *Orchestrator) notify(obs Observer, ev models.Event) {
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("observer panicked",
				slog.String(cadencelog.RunIDKey, ev.RunID),
				slog.String("event", string(ev.Type)),
				slog.Any("panic", p))
		}
	}()
	obs.Observe(ev)
}

func (o *Orchestrator) runLogger(r *run) *slog.Logger {
	return cadencelog.WithRun(o.logger, r.id, r.rt.ID)
}
