package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpataki/cadence/internal/config"
	"github.com/mpataki/cadence/internal/control"
	cadencelog "github.com/mpataki/cadence/internal/log"
	"github.com/mpataki/cadence/internal/models"
)

func testConfig(t *testing.T) *config.Config {
	dir := t.TempDir()
	return &config.Config{
		DataDir:         dir,
		DBPath:          filepath.Join(dir, "cadence.db"),
		UserTypeDir:     filepath.Join(dir, "runtypes"),
		ProjectTypeDir:  filepath.Join(dir, "project"),
		TickInterval:    5 * time.Millisecond,
		ActivationDelay: 0,
		HistoryLimit:    10,
		Increment:       50,
		BlockPolicy:     "wait",
	}
}

func TestEngine_RunIsArchived(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e, err := openEngine(ctx, testConfig(t), engineOptions{logger: cadencelog.Discard()})
	require.NoError(t, err)
	defer e.Close()

	snap, err := e.svc.Start(ctx, "test", models.ModeFull, control.StartOptions{})
	require.NoError(t, err)

	final, err := e.svc.Wait(ctx, snap.ID, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusDone, final.Status)

	require.Eventually(t, func() bool {
		stored, err := e.store.GetRun(snap.ID)
		return err == nil && stored.Status == models.RunStatusDone
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, e.svc.Annotate(snap.ID, "signed off"))
	stored, err := e.store.GetRun(snap.ID)
	require.NoError(t, err)
	require.Len(t, stored.Evidence, 1)
	assert.Equal(t, "signed off", stored.Evidence[0].Text)
}

func TestEngine_UnknownType(t *testing.T) {
	ctx := context.Background()
	e, err := openEngine(ctx, testConfig(t), engineOptions{logger: cadencelog.Discard()})
	require.NoError(t, err)
	defer e.Close()

	_, err = e.svc.Start(ctx, "nope", models.ModeFull, control.StartOptions{})
	assert.Error(t, err)
}

func TestPrintSummary(t *testing.T) {
	started := time.Date(2025, 1, 2, 18, 0, 0, 0, time.UTC)
	finished := started.Add(1500 * time.Millisecond)

	var buf bytes.Buffer
	printSummary(&buf, &models.RunSnapshot{
		ID:         "RUN-1",
		RunType:    "build",
		Mode:       models.ModeDry,
		Status:     models.RunStatusFailed,
		Progress:   65,
		Error:      "blocked: change freeze",
		StartedAt:  &started,
		FinishedAt: &finished,
		Steps: []models.StepState{
			{Name: "company-codes", Status: models.StepStatusDone},
			{Name: "je-approval", Status: models.StepStatusBlocked},
		},
		Exceptions: []models.Exception{{Step: "je-approval", Reason: "change freeze", Action: "wait for window"}},
		Evidence:   []models.Evidence{{Text: "Transport TR12345 exported"}},
	})

	out := buf.String()
	assert.Contains(t, out, "Run RUN-1: build")
	assert.Contains(t, out, "Status: failed (65%)")
	assert.Contains(t, out, "Duration: 1.5s")
	assert.Contains(t, out, "Error: blocked: change freeze")
	assert.Contains(t, out, "je-approval: change freeze")
	assert.Contains(t, out, "action: wait for window")
	assert.Contains(t, out, "Transport TR12345 exported")
	assert.NotContains(t, out, "Insights:")
}
