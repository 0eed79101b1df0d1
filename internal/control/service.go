// Package control is the caller-facing surface over the orchestrator: it
// validates starts against an optional approval gate and exposes the run
// type catalog alongside run control.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	cadencelog "github.com/mpataki/cadence/internal/log"
	"github.com/mpataki/cadence/internal/models"
	"github.com/mpataki/cadence/internal/orchestrator"
)

// ErrGateDenied is returned by Start when the gate rejects a run.
var ErrGateDenied = errors.New("start denied")

// Gate approves or rejects a start before any run state is created.
type Gate interface {
	Allow(ctx context.Context, runType string, mode models.Mode) error
}

// GateFunc adapts a function to Gate.
type GateFunc func(ctx context.Context, runType string, mode models.Mode) error

func (f GateFunc) Allow(ctx context.Context, runType string, mode models.Mode) error {
	return f(ctx, runType, mode)
}

// TypeLister lists registered run types. Callers may modify the results.
// *catalog.Registry satisfies it.
type TypeLister interface {
	List() []*models.RunType
}

// StartOptions tune a single start.
type StartOptions struct {
	// BlockPolicy overrides the engine default when set.
	BlockPolicy orchestrator.BlockPolicy
}

// Option configures a Service.
type Option func(*Service)

func WithGate(g Gate) Option {
	return func(s *Service) { s.gate = g }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// Service wraps an orchestrator and the catalog it resolves types from.
type Service struct {
	orch   *orchestrator.Orchestrator
	types  TypeLister
	gate   Gate
	logger *slog.Logger
}

func New(orch *orchestrator.Orchestrator, types TypeLister, opts ...Option) *Service {
	s := &Service{orch: orch, types: types}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = cadencelog.Discard()
	}
	s.logger = cadencelog.WithComponent(s.logger, "control")
	return s
}

// Start enqueues a run of typeID after the gate, if any, approves it.
func (s *Service) Start(ctx context.Context, typeID string, mode models.Mode, opts StartOptions) (*models.RunSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if mode == "" {
		mode = models.ModeFull
	}

	if s.gate != nil {
		if err := s.gate.Allow(ctx, typeID, mode); err != nil {
			s.logger.Warn("start rejected by gate",
				slog.String(cadencelog.RunTypeKey, typeID),
				cadencelog.Error(err))
			if errors.Is(err, ErrGateDenied) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %w", ErrGateDenied, err)
		}
	}

	var runOpts []orchestrator.RunOption
	if opts.BlockPolicy != "" {
		runOpts = append(runOpts, orchestrator.WithBlockPolicy(opts.BlockPolicy))
	}

	snap, err := s.orch.Enqueue(typeID, mode, runOpts...)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", typeID, err)
	}
	return snap, nil
}

func (s *Service) Pause(id string) error  { return s.orch.Pause(id) }
func (s *Service) Resume(id string) error { return s.orch.Resume(id) }
func (s *Service) Stop(id string) error   { return s.orch.Stop(id) }

func (s *Service) Get(id string) (*models.RunSnapshot, error) {
	return s.orch.Get(id)
}

func (s *Service) List(filter orchestrator.ListFilter) []*models.RunSnapshot {
	return s.orch.List(filter)
}

// Annotate attaches manual evidence to a run.
func (s *Service) Annotate(id, text string) error {
	return s.orch.Annotate(id, text)
}

// Discard forgets a finished run.
func (s *Service) Discard(id string) error {
	return s.orch.Discard(id)
}

// Types returns copies of the registered run types sorted by id.
func (s *Service) Types() []*models.RunType {
	return s.types.List()
}

// Wait polls every interval until the run settles: it is terminal, or
// blocked with nothing left to fire. It returns the last snapshot seen.
func (s *Service) Wait(ctx context.Context, id string, interval time.Duration) (*models.RunSnapshot, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		snap, err := s.orch.Get(id)
		if err != nil {
			return nil, err
		}
		if snap.Status.Terminal() || snap.Status == models.RunStatusBlocked {
			return snap, nil
		}

		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-ticker.C:
		}
	}
}
