package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpataki/cadence/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func finishedSnapshot(id string, created time.Time) *models.RunSnapshot {
	started := created.Add(250 * time.Millisecond)
	finished := created.Add(10 * time.Second)
	return &models.RunSnapshot{
		ID:       id,
		RunType:  "build",
		Mode:     models.ModeDry,
		Status:   models.RunStatusDone,
		Progress: 100,
		Steps: []models.StepState{
			{Name: "company-codes", Status: models.StepStatusDone, Logs: []string{"Started", "Completed"}, Evidence: []string{"codes.csv"}},
			{Name: "je-approval", Status: models.StepStatusBlocked, Logs: []string{"Blocked: change freeze"}},
		},
		Logs:       []models.LogEntry{{Timestamp: started, Message: "Run started"}},
		Evidence:   []models.Evidence{{Timestamp: finished, Step: "company-codes", Text: "codes.csv"}},
		Exceptions: []models.Exception{{Step: "je-approval", Reason: "change freeze", Action: "override", Timestamp: finished}},
		Insights:   []models.Insight{{Title: "Enable gzip", Timestamp: finished}},
		CreatedAt:  created,
		StartedAt:  &started,
		FinishedAt: &finished,
	}
}

func TestSaveAndGetRun(t *testing.T) {
	s := newTestStorage(t)
	created := time.Date(2025, 8, 27, 10, 0, 0, 0, time.UTC)
	want := finishedSnapshot("RUN-A", created)

	require.NoError(t, s.SaveRun(want))

	got, err := s.GetRun("RUN-A")
	require.NoError(t, err)

	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, want.RunType, got.RunType)
	assert.Equal(t, want.Mode, got.Mode)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.Progress, got.Progress)
	assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	require.NotNil(t, got.StartedAt)
	assert.True(t, want.StartedAt.Equal(*got.StartedAt))
	require.NotNil(t, got.FinishedAt)
	assert.True(t, want.FinishedAt.Equal(*got.FinishedAt))

	assert.Equal(t, want.Steps, got.Steps)
	require.Len(t, got.Exceptions, 1)
	assert.Equal(t, "change freeze", got.Exceptions[0].Reason)
	require.Len(t, got.Insights, 1)
	assert.Equal(t, "Enable gzip", got.Insights[0].Title)
	require.Len(t, got.Evidence, 1)
	assert.Equal(t, "codes.csv", got.Evidence[0].Text)
}

func TestSaveRun_NeverStarted(t *testing.T) {
	s := newTestStorage(t)
	snap := finishedSnapshot("RUN-Q", time.Now())
	snap.Status = models.RunStatusFailed
	snap.Error = "stopped by caller"
	snap.StartedAt = nil

	require.NoError(t, s.SaveRun(snap))

	got, err := s.GetRun("RUN-Q")
	require.NoError(t, err)
	assert.Nil(t, got.StartedAt)
	assert.Equal(t, "stopped by caller", got.Error)
}

func TestSaveRun_Replaces(t *testing.T) {
	s := newTestStorage(t)
	snap := finishedSnapshot("RUN-A", time.Now())
	require.NoError(t, s.SaveRun(snap))

	snap.Status = models.RunStatusFailed
	require.NoError(t, s.SaveRun(snap))

	runs, err := s.ListRuns(0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, models.RunStatusFailed, runs[0].Status)
}

func TestListRuns_NewestFirst(t *testing.T) {
	s := newTestStorage(t)
	base := time.Date(2025, 8, 27, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"RUN-1", "RUN-2", "RUN-3"} {
		require.NoError(t, s.SaveRun(finishedSnapshot(id, base.Add(time.Duration(i)*time.Minute))))
	}

	runs, err := s.ListRuns(0)
	require.NoError(t, err)
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"RUN-3", "RUN-2", "RUN-1"}, ids)

	runs, err = s.ListRuns(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestDeleteRun(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.SaveRun(finishedSnapshot("RUN-A", time.Now())))

	require.NoError(t, s.DeleteRun("RUN-A"))

	_, err := s.GetRun("RUN-A")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteRun("RUN-A"), ErrNotFound)
}

func TestArchiver(t *testing.T) {
	s := newTestStorage(t)
	a := NewArchiver(s, nil)

	snap := finishedSnapshot("RUN-A", time.Now())
	a.Observe(models.Event{Type: models.EventStep, RunID: "RUN-A", Step: "company-codes"})
	a.Observe(models.Event{Type: models.EventFinished, RunID: "RUN-B"})

	runs, err := s.ListRuns(0)
	require.NoError(t, err)
	assert.Empty(t, runs, "only finished events with a snapshot are archived")

	a.Observe(models.Event{Type: models.EventFinished, RunID: "RUN-A", Status: models.RunStatusDone, Snapshot: snap})

	got, err := s.GetRun("RUN-A")
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusDone, got.Status)
}

func TestArchiver_ResavesAnnotatedRun(t *testing.T) {
	s := newTestStorage(t)
	a := NewArchiver(s, nil)

	snap := finishedSnapshot("RUN-A", time.Now())
	a.Observe(models.Event{Type: models.EventFinished, RunID: "RUN-A", Snapshot: snap})

	a.Observe(models.Event{Type: models.EventAnnotated, RunID: "RUN-B"})
	_, err := s.GetRun("RUN-B")
	assert.ErrorIs(t, err, ErrNotFound, "live runs are not archived")

	annotated := finishedSnapshot("RUN-A", snap.CreatedAt)
	annotated.Evidence = append(annotated.Evidence, models.Evidence{Timestamp: time.Now(), Text: "screenshot-1", Manual: true})
	a.Observe(models.Event{Type: models.EventAnnotated, RunID: "RUN-A", Snapshot: annotated})

	got, err := s.GetRun("RUN-A")
	require.NoError(t, err)
	require.Len(t, got.Evidence, 2)
	assert.Equal(t, "screenshot-1", got.Evidence[1].Text)
	assert.True(t, got.Evidence[1].Manual)
}

func TestArchiver_ClosedStoreDoesNotPanic(t *testing.T) {
	s := newTestStorage(t)
	a := NewArchiver(s, nil)
	require.NoError(t, s.Close())

	assert.NotPanics(t, func() {
		a.Observe(models.Event{Type: models.EventFinished, RunID: "RUN-A", Snapshot: finishedSnapshot("RUN-A", time.Now())})
	})
}

func TestFormatTimeAgo(t *testing.T) {
	now := time.Date(2025, 8, 27, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{5 * time.Minute, "5m ago"},
		{3 * time.Hour, "3h ago"},
		{72 * time.Hour, "Aug 24"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatTimeAgo(now.Add(-tt.ago), now))
	}
}
