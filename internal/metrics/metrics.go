// Package metrics exports run events as Prometheus series.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	cadencelog "github.com/mpataki/cadence/internal/log"
	"github.com/mpataki/cadence/internal/models"
)

// Collector counts run lifecycle events. It satisfies orchestrator.Observer.
type Collector struct {
	reg prometheus.Gatherer

	// runsQueued tracks runs accepted by the engine
	runsQueued *prometheus.CounterVec
	// runsStarted tracks runs promoted from queued to running
	runsStarted *prometheus.CounterVec
	// runsFinished tracks runs reaching done or failed
	runsFinished *prometheus.CounterVec
	// stepBlocks tracks block thresholds fired, fatal or not
	stepBlocks *prometheus.CounterVec
	// runsActive tracks runs that are not yet terminal
	runsActive prometheus.Gauge
	// runDuration tracks time from start to finish
	runDuration *prometheus.HistogramVec
}

// New registers the cadence series on reg.
func New(reg *prometheus.Registry) *Collector {
	f := promauto.With(reg)
	return &Collector{
		reg: reg,
		runsQueued: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cadence_runs_queued_total",
				Help: "Total runs enqueued by run type",
			},
			[]string{"run_type"},
		),
		runsStarted: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cadence_runs_started_total",
				Help: "Total runs started by run type",
			},
			[]string{"run_type"},
		),
		runsFinished: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cadence_runs_finished_total",
				Help: "Total runs finished by run type and final status",
			},
			[]string{"run_type", "status"},
		),
		stepBlocks: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cadence_step_blocks_total",
				Help: "Total step blocks by run type and step",
			},
			[]string{"run_type", "step"},
		),
		runsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "cadence_runs_active",
				Help: "Number of runs not yet done or failed",
			},
		),
		runDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cadence_run_duration_seconds",
				Help:    "Time from run start to finish by run type",
				Buckets: prometheus.ExponentialBuckets(1, 2, 10),
			},
			[]string{"run_type"},
		),
	}
}

func (c *Collector) Observe(ev models.Event) {
	switch ev.Type {
	case models.EventQueued:
		c.runsQueued.WithLabelValues(ev.RunType).Inc()
		c.runsActive.Inc()
	case models.EventStarted:
		c.runsStarted.WithLabelValues(ev.RunType).Inc()
	case models.EventBlocked:
		c.stepBlocks.WithLabelValues(ev.RunType, ev.Step).Inc()
	case models.EventFinished:
		c.runsFinished.WithLabelValues(ev.RunType, string(ev.Status)).Inc()
		c.runsActive.Dec()
		if s := ev.Snapshot; s != nil && s.StartedAt != nil && s.FinishedAt != nil {
			c.runDuration.WithLabelValues(ev.RunType).Observe(s.FinishedAt.Sub(*s.StartedAt).Seconds())
		}
	}
}

// Handler serves the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics endpoint listening", slog.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics shutdown", cadencelog.Error(err))
		}
		return nil
	}
}
