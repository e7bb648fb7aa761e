package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "info", "json").With("component", "cache")

	log.Info("Cache populated", "pairs", 2, "entries", 7)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "Cache populated", line["message"])
	assert.Equal(t, "cache", line["component"])
	assert.Equal(t, 2.0, line["pairs"])
	assert.Equal(t, 7.0, line["entries"])
	assert.Contains(t, line, "time")
}

func TestLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "warn", "json")

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")
	log.Error("shown too")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)
}

func TestLogger_UnknownLevelDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "verbose", "json")

	log.Debug("hidden")
	log.Info("shown")

	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestLogger_Console(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "debug", "console").Debug("Loading currencies", "count", 3)

	out := buf.String()
	assert.Contains(t, out, "Loading currencies")
	assert.Contains(t, out, "count=")
	assert.False(t, json.Valid(bytes.TrimSpace(buf.Bytes())))
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().With("k", "v").Error("dropped")
	})
}
