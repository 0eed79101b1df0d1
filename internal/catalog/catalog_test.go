package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpataki/cadence/internal/models"
)

func TestBuiltin_Valid(t *testing.T) {
	for _, rt := range Builtin() {
		t.Run(rt.ID, func(t *testing.T) {
			assert.NoError(t, Validate(rt))
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *models.RunType {
		return &models.RunType{
			ID: "x",
			Steps: []*models.StepSpec{
				{Threshold: 50, Step: "a", Kind: models.StepKindSucceed},
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(rt *models.RunType)
	}{
		{"missing id", func(rt *models.RunType) { rt.ID = "" }},
		{"no steps", func(rt *models.RunType) { rt.Steps = nil }},
		{"zero threshold", func(rt *models.RunType) { rt.Steps[0].Threshold = 0 }},
		{"threshold over 100", func(rt *models.RunType) { rt.Steps[0].Threshold = 101 }},
		{"unknown kind", func(rt *models.RunType) { rt.Steps[0].Kind = "skip" }},
		{"succeed without step", func(rt *models.RunType) { rt.Steps[0].Step = "" }},
		{"block without reason", func(rt *models.RunType) { rt.Steps[0].Kind = models.StepKindBlock }},
		{"fatal succeed", func(rt *models.RunType) { rt.Steps[0].Fatal = true }},
		{"log without lines", func(rt *models.RunType) { rt.Steps[0].Kind = models.StepKindLog }},
		{"insight without title", func(rt *models.RunType) {
			rt.Insights = []*models.InsightRule{{WhenDone: []string{"a"}}}
		}},
		{"insight on unknown step", func(rt *models.RunType) {
			rt.Insights = []*models.InsightRule{{WhenDone: []string{"b"}, Title: "t"}}
		}},
	}

	require.NoError(t, Validate(valid()))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := valid()
			tt.mutate(rt)
			assert.Error(t, Validate(rt))
		})
	}
}

func TestRegistry_RegisterSortsAndCopies(t *testing.T) {
	rt := &models.RunType{
		ID: "finance",
		Steps: []*models.StepSpec{
			{Threshold: 65, Step: "t2", Kind: models.StepKindBlock, Outcome: models.Outcome{Reason: "change freeze"}},
			{Threshold: 25, Step: "t1", Kind: models.StepKindSucceed, Outcome: models.Outcome{Logs: []string{"ok"}}},
			{Threshold: 50, Step: "t2", Kind: models.StepKindStart},
			{Threshold: 50, Step: "t2", Kind: models.StepKindSucceed},
		},
	}

	r := NewRegistry()
	require.NoError(t, r.Register(rt))

	// Mutating the caller's value must not leak into the registry.
	rt.Steps[1].Outcome.Logs[0] = "changed"
	rt.ID = "other"

	got, ok := r.Lookup("finance")
	require.True(t, ok)
	assert.Equal(t, "finance", got.Name)

	var order []int
	for _, s := range got.Steps {
		order = append(order, s.Threshold)
	}
	assert.Equal(t, []int{25, 50, 50, 65}, order)
	assert.Equal(t, models.StepKindStart, got.Steps[1].Kind, "ties keep declaration order")
	assert.Equal(t, models.StepKindSucceed, got.Steps[2].Kind)
	assert.Equal(t, []string{"ok"}, got.Steps[0].Outcome.Logs)

	_, ok = r.Lookup("other")
	assert.False(t, ok)
}

func TestRegistry_ListReturnsCopies(t *testing.T) {
	r := NewRegistry()
	for _, rt := range Builtin() {
		require.NoError(t, r.Register(rt))
	}

	listed := r.List()
	require.NotEmpty(t, listed)
	listed[0].Steps[0].Threshold = 99
	listed[0].Steps = nil
	listed[0].Insights = nil

	got, ok := r.Lookup(listed[0].ID)
	require.True(t, ok)
	require.NotEmpty(t, got.Steps)
	assert.NotEqual(t, 99, got.Steps[0].Threshold)
	assert.Equal(t, r.List()[0], got)
}

func TestRegistry_RejectsInvalid(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(&models.RunType{ID: "x"}))
	assert.Empty(t, r.List())
}

func TestLoad_FilesOverrideBuiltins(t *testing.T) {
	project := t.TempDir()
	user := t.TempDir()

	writeFile(t, project, "build.yaml", `
id: build
name: Project build
steps:
  - at: 50
    step: only
    kind: succeed
`)
	writeFile(t, user, "build.yml", `
id: build
name: User build
steps:
  - at: 10
    step: ignored
    kind: succeed
`)
	writeFile(t, user, "audit.yaml", `
steps:
  - at: 40
    step: scan
    kind: block
    fatal: true
    outcome:
      reason: auditor unavailable
      action: reschedule
insights:
  - when_done: [scan]
    title: clean
`)
	writeFile(t, user, "nightly.lua", `runtype { id = "nightly", steps = { { at = 100, step = "sync", kind = "succeed" } } }`)
	writeFile(t, user, "README.md", "ignored")

	r, err := Load([]string{project, user, filepath.Join(t.TempDir(), "missing")})
	require.NoError(t, err)

	build, ok := r.Lookup("build")
	require.True(t, ok)
	assert.Equal(t, "Project build", build.Name)
	require.Len(t, build.Steps, 1)

	audit, ok := r.Lookup("audit")
	require.True(t, ok, "id falls back to the file name")
	assert.True(t, audit.Steps[0].Fatal)
	assert.Equal(t, "auditor unavailable", audit.Steps[0].Outcome.Reason)

	_, ok = r.Lookup("nightly")
	assert.True(t, ok)

	var ids []string
	for _, rt := range r.List() {
		ids = append(ids, rt.ID)
	}
	assert.Equal(t, []string{"audit", "build", "discovery", "nightly", "test", "transform"}, ids)
}

func TestLoad_InvalidFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.yaml", "steps: [")

	_, err := Load([]string{dir})
	assert.Error(t, err)

	dir = t.TempDir()
	writeFile(t, dir, "bad.yaml", "id: bad\nsteps:\n  - at: 0\n    step: a\n    kind: succeed\n")
	_, err = Load([]string{dir})
	assert.Error(t, err)
}

func TestStepNames(t *testing.T) {
	names := buildRunType().StepNames()
	assert.Equal(t, []string{"company-codes", "eu-vat", "je-approval", "sac-feed"}, names)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}
