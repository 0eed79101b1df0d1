package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv(t *testing.T) {
	tests := []struct {
		name       string
		env        map[string]string
		wantLevel  string
		wantFormat Format
		wantSource bool
	}{
		{
			name:       "defaults",
			wantLevel:  "info",
			wantFormat: FormatText,
		},
		{
			name:       "debug flag wins over level",
			env:        map[string]string{"CADENCE_DEBUG": "1", "CADENCE_LOG_LEVEL": "error"},
			wantLevel:  "debug",
			wantFormat: FormatText,
			wantSource: true,
		},
		{
			name:       "cadence level wins over LOG_LEVEL",
			env:        map[string]string{"CADENCE_LOG_LEVEL": "WARN", "LOG_LEVEL": "error"},
			wantLevel:  "warn",
			wantFormat: FormatText,
		},
		{
			name:       "json format",
			env:        map[string]string{"LOG_FORMAT": "JSON"},
			wantLevel:  "info",
			wantFormat: FormatJSON,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"CADENCE_DEBUG", "CADENCE_LOG_LEVEL", "LOG_LEVEL", "LOG_FORMAT"} {
				t.Setenv(k, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg := FromEnv()
			assert.Equal(t, tt.wantLevel, cfg.Level)
			assert.Equal(t, tt.wantFormat, cfg.Format)
			assert.Equal(t, tt.wantSource, cfg.AddSource)
		})
	}
}

func TestNew_JSONWithRunFields(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "debug", Format: FormatJSON, Output: &buf})

	WithRun(WithComponent(logger, "orchestrator"), "RUN-1", "build").
		Info("step fired", slog.String(StepKey, "t1"), Error(errors.New("boom")))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "step fired", entry["msg"])
	assert.Equal(t, "orchestrator", entry[ComponentKey])
	assert.Equal(t, "RUN-1", entry[RunIDKey])
	assert.Equal(t, "build", entry[RunTypeKey])
	assert.Equal(t, "t1", entry[StepKey])
	assert.Equal(t, "boom", entry["error"])
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "warn", Output: &buf})

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}
