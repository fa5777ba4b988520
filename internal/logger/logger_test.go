package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLevel(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())

	assert.Equal(t, zerolog.DebugLevel, SetLevel("DEBUG"))
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	assert.Equal(t, zerolog.InfoLevel, SetLevel("loud"))
	assert.Equal(t, zerolog.InfoLevel, SetLevel(""))
}

func TestLogEvent(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.GlobalLevel())
	SetLevel("debug")

	var buf bytes.Buffer
	l := New(zerolog.New(&buf)).WithField("component", "hub")

	l.LogEvent("warn", "send_failed", "p1", "broken pipe")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "send_failed", entry["event"])
	assert.Equal(t, "p1", entry["player"])
	assert.Equal(t, "broken pipe", entry["detail"])
	assert.Equal(t, "hub", entry["component"])
	assert.Contains(t, entry["message"], "p1")
}
