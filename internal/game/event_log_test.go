package game

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PropertySightlines/cyber-cycles-sub001/internal/config"
	"github.com/PropertySightlines/cyber-cycles-sub001/internal/game/physics"
)

func TestEventLogWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	el := NewEventLog()
	require.NoError(t, el.Start(path))

	assert.True(t, el.Emit(Event{Type: EventTypeJoin, Tick: 1, CycleID: "a"}))
	el.EmitOutcome(TickOutcome{Tick: 2, Events: []Event{
		{Type: EventTypeDeath, Tick: 2, CycleID: "a", OtherID: "b", Cause: CauseTrail},
		{Type: EventTypeRoundEnd, Tick: 2, Round: 1, Winner: "b"},
	}})
	el.Stop()
	el.Stop()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		lines = append(lines, rec)
	}
	require.Len(t, lines, 3)
	assert.Equal(t, "join", lines[0]["type"])
	assert.Equal(t, "death", lines[1]["type"])
	assert.Equal(t, "trail", lines[1]["cause"])
	assert.Equal(t, "b", lines[2]["winner"])
	assert.EqualValues(t, 1, lines[0]["sequence"])
	assert.EqualValues(t, EventVersion, lines[0]["version"])

	stats := el.Stats()
	assert.Equal(t, uint64(3), stats.Total)
	assert.Equal(t, uint64(3), stats.Written)
	assert.False(t, stats.Running)
}

func TestEventLogRestartsAfterStop(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.jsonl")
	second := filepath.Join(dir, "second.jsonl")

	el := NewEventLog()
	require.NoError(t, el.Start(first))
	assert.True(t, el.Emit(Event{Type: EventTypeJoin, CycleID: "a"}))
	el.Stop()
	assert.False(t, el.Emit(Event{Type: EventTypeJoin, CycleID: "b"}))

	require.NoError(t, el.Start(second))
	assert.True(t, el.Stats().Running)
	assert.True(t, el.Emit(Event{Type: EventTypeLeave, CycleID: "a"}))
	el.Stop()

	data, err := os.ReadFile(second)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &rec))
	assert.Equal(t, "leave", rec["type"])
	assert.EqualValues(t, 2, rec["sequence"])
	assert.Equal(t, uint64(2), el.Stats().Written)
}

func TestEventLogDropsWhenStopped(t *testing.T) {
	el := NewEventLog()
	assert.False(t, el.Emit(Event{Type: EventTypeJoin}))
	assert.Equal(t, uint64(0), el.Stats().Total)
}

func TestEventLogPerCycleLimit(t *testing.T) {
	el := NewEventLog()
	require.NoError(t, el.Start(""))
	defer el.Stop()

	accepted := 0
	for i := 0; i < MaxEventsPerCycle; i++ {
		if el.Emit(Event{Type: EventTypeGrind, CycleID: "spammer"}) {
			accepted++
		}
	}
	assert.Less(t, accepted, MaxEventsPerCycle)
	assert.Greater(t, el.Stats().Dropped, uint64(0))

	// Other cycles are unaffected.
	assert.True(t, el.Emit(Event{Type: EventTypeGrind, CycleID: "quiet"}))
}

func TestEngineFeedsEventLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.jsonl")
	e := testEngine(t, config.Classic())
	require.NoError(t, e.StartEventLog(path))

	require.NoError(t, e.AddObstacle("wall", physics.Seg(-10, 0, 10, 0)))
	c := addAt(t, e, "a", 0, 0.5, 1, 0)
	c.Rubber.Rubber = 0
	e.Step(1.0 / 60)
	e.StopEventLog()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"join"`)
	assert.Contains(t, string(data), `"type":"grind"`)
	assert.Contains(t, string(data), `"type":"death"`)
	assert.Equal(t, uint64(3), e.Stats().EventLog.Written)
}
