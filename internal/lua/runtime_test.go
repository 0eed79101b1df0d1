package lua

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mpataki/cadence/internal/models"
)

const nightlyScript = `
log("declaring nightly")

local function done(at, step, ...)
  return { at = at, step = step, kind = "succeed", evidence = { ... } }
end

runtype {
  id = "nightly",
  name = "Nightly sync",
  steps = {
    { at = 10, step = "sync", kind = "start", logs = { "connecting" } },
    done(40, "sync", "rows copied"),
    { at = 80, step = "verify", kind = "block", reason = "source offline", action = "retry later", fatal = true },
  },
  insights = {
    { when_done = { "sync" }, title = "Sync healthy", detail = "no drift" },
  },
}

runtype { id = "empty-check", steps = { { at = 100, kind = "log", logs = { "checked" } } } }
`

func TestRuntime_Execute(t *testing.T) {
	r := NewRuntime()
	require.NoError(t, r.Execute(nightlyScript))

	types := r.RunTypes()
	require.Len(t, types, 2)
	assert.Equal(t, []string{"declaring nightly"}, r.GetLogs())

	nightly := types[0]
	assert.Equal(t, "nightly", nightly.ID)
	assert.Equal(t, "Nightly sync", nightly.Name)
	require.Len(t, nightly.Steps, 3)

	assert.Equal(t, &models.StepSpec{
		Threshold: 10,
		Step:      "sync",
		Kind:      models.StepKindStart,
		Outcome:   models.Outcome{Logs: []string{"connecting"}},
	}, nightly.Steps[0])
	assert.Equal(t, []string{"rows copied"}, nightly.Steps[1].Outcome.Evidence)

	block := nightly.Steps[2]
	assert.Equal(t, models.StepKindBlock, block.Kind)
	assert.True(t, block.Fatal)
	assert.Equal(t, "source offline", block.Outcome.Reason)
	assert.Equal(t, "retry later", block.Outcome.Action)

	require.Len(t, nightly.Insights, 1)
	assert.Equal(t, []string{"sync"}, nightly.Insights[0].WhenDone)
	assert.Equal(t, "Sync healthy", nightly.Insights[0].Title)

	assert.Equal(t, "empty-check", types[1].ID)
}

func TestRuntime_Sandbox(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"no dofile", `dofile("/etc/passwd")`},
		{"no os library", `os.exit(1)`},
		{"no io library", `io.open("x")`},
		{"no random", `math.random()`},
		{"no print", `print("hi")`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, NewRuntime().Execute(tt.script))
		})
	}
}

func TestRuntime_Errors(t *testing.T) {
	assert.Error(t, NewRuntime().Execute(`runtype { name = "no id" }`))
	assert.Error(t, NewRuntime().Execute(`runtype { id = "x", steps = { "not a table" } }`))
	assert.Error(t, NewRuntime().Execute(`runtype("x")`))
}

func TestLoadRunTypes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nightly.lua")
	require.NoError(t, os.WriteFile(path, []byte(nightlyScript), 0644))

	types, err := LoadRunTypes(path)
	require.NoError(t, err)
	assert.Len(t, types, 2)

	_, err = LoadRunTypes(filepath.Join(t.TempDir(), "missing.lua"))
	assert.Error(t, err)
}

func TestIsLuaFile(t *testing.T) {
	assert.True(t, IsLuaFile("a/b.lua"))
	assert.False(t, IsLuaFile("a/b.yaml"))
}
