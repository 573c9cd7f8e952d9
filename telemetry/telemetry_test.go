package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLoggerWritesOneLinePerEntry(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, LevelDebug)

	log.Info(context.Background(), "cache miss", String("key", "abc"), Int("attempt", 2))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "cache miss", entry["message"])
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "abc", entry["key"])
	assert.Equal(t, float64(2), entry["attempt"])
}

func TestJSONLoggerFiltersBelowMinLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, LevelWarn)

	log.Debug(context.Background(), "too quiet")
	log.Info(context.Background(), "also too quiet")
	assert.Equal(t, 0, buf.Len())

	log.Warn(context.Background(), "loud enough")
	assert.Greater(t, buf.Len(), 0)
}

func TestErrorFieldHandlesNil(t *testing.T) {
	f := Error(nil)
	assert.Nil(t, f.Value)

	f = Error(errors.New("boom"))
	assert.Equal(t, "boom", f.Value)
}

func TestNoopLoggerDiscardsEverything(t *testing.T) {
	log := NewNoop()
	assert.NotPanics(t, func() {
		log.Debug(context.Background(), "x")
		log.Info(context.Background(), "x")
		log.Warn(context.Background(), "x")
		log.Error(context.Background(), "x")
	})
}
