package sinks

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/herocrab/HeroCrabPlugin-sub000/logging"
)

func sampleEvent() logging.Event {
	return logging.Event{
		Type:     "session.created",
		Tick:     42,
		Time:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Actor:    logging.SessionRef(3),
		Targets:  []logging.EntityRef{logging.ElementRef(7)},
		Severity: logging.SeverityWarn,
		Category: logging.CategoryLifecycle,
		Payload:  map[string]int{"count": 2},
		Extra:    map[string]any{"b": 2, "a": 1},
	}
}

func TestConsoleLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsole(&buf)
	require.NoError(t, sink.Write(sampleEvent()))
	require.NoError(t, sink.Close(context.Background()))

	line := buf.String()
	assert.Contains(t, line, "warn  [session.created] tick=42 session:3")
	assert.Contains(t, line, "targets=element:7")
	assert.Contains(t, line, `payload={"count":2}`)
	assert.Contains(t, line, "a=1 b=2")
}

type closeRecorder struct {
	bytes.Buffer
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestJSONRecord(t *testing.T) {
	out := &closeRecorder{}
	sink := NewJSON(out, 0)
	require.NoError(t, sink.Write(sampleEvent()))

	var record map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &record))
	assert.Equal(t, "session.created", record["type"])
	assert.Equal(t, "warn", record["severity"])
	assert.Equal(t, "2024-05-01T12:00:00Z", record["time"])
	assert.Equal(t, map[string]any{"id": "3", "kind": "session"}, record["actor"])

	require.NoError(t, sink.Close(context.Background()))
	require.NoError(t, sink.Close(context.Background()))
	assert.True(t, out.closed)
}

func TestMemoryOfTypeAndReset(t *testing.T) {
	mem := NewMemory()
	require.NoError(t, mem.Write(logging.Event{Type: "a"}))
	require.NoError(t, mem.Write(logging.Event{Type: "b"}))
	require.NoError(t, mem.Write(logging.Event{Type: "a"}))

	assert.Len(t, mem.OfType("a"), 2)
	assert.Len(t, mem.Events(), 3)
	mem.Reset()
	assert.Empty(t, mem.Events())
}
