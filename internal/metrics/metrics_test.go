package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpataki/cadence/internal/models"
)

func TestCollector_Lifecycle(t *testing.T) {
	c := New(prometheus.NewRegistry())

	started := time.Date(2025, 8, 27, 10, 0, 0, 0, time.UTC)
	finished := started.Add(4 * time.Second)

	c.Observe(models.Event{Type: models.EventQueued, RunType: "build"})
	c.Observe(models.Event{Type: models.EventQueued, RunType: "build"})
	assert.Equal(t, float64(2), testutil.ToFloat64(c.runsActive))
	assert.Equal(t, float64(2), testutil.ToFloat64(c.runsQueued.WithLabelValues("build")))

	c.Observe(models.Event{Type: models.EventStarted, RunType: "build"})
	c.Observe(models.Event{Type: models.EventStep, RunType: "build", Step: "eu-vat"})
	c.Observe(models.Event{Type: models.EventBlocked, RunType: "build", Step: "je-approval"})
	c.Observe(models.Event{
		Type:    models.EventFinished,
		RunType: "build",
		Status:  models.RunStatusDone,
		Snapshot: &models.RunSnapshot{
			StartedAt:  &started,
			FinishedAt: &finished,
		},
	})
	c.Observe(models.Event{Type: models.EventFinished, RunType: "build", Status: models.RunStatusFailed})

	assert.Equal(t, float64(1), testutil.ToFloat64(c.runsStarted.WithLabelValues("build")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.stepBlocks.WithLabelValues("build", "je-approval")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.runsFinished.WithLabelValues("build", "done")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.runsFinished.WithLabelValues("build", "failed")))
	assert.Equal(t, float64(0), testutil.ToFloat64(c.runsActive))
	assert.Equal(t, 1, testutil.CollectAndCount(c.runDuration))
}

func TestCollector_SeparateRegistries(t *testing.T) {
	a := New(prometheus.NewRegistry())
	b := New(prometheus.NewRegistry())

	a.Observe(models.Event{Type: models.EventQueued, RunType: "test"})

	assert.Equal(t, float64(1), testutil.ToFloat64(a.runsActive))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.runsActive))
}

func TestHandler(t *testing.T) {
	c := New(prometheus.NewRegistry())
	c.Observe(models.Event{Type: models.EventQueued, RunType: "discovery"})

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `cadence_runs_queued_total{run_type="discovery"} 1`), body)
	assert.Contains(t, body, "cadence_runs_active 1")
}
