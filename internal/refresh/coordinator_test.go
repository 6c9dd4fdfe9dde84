package refresh

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type alarmCall struct {
	op  string
	key string
	at  time.Time
}

type recordingAlarms struct {
	calls   []alarmCall
	handler func(string)
}

func (r *recordingAlarms) ScheduleWake(key string, at time.Time) {
	r.calls = append(r.calls, alarmCall{op: "schedule", key: key, at: at})
}

func (r *recordingAlarms) CancelWake(key string) {
	r.calls = append(r.calls, alarmCall{op: "cancel", key: key})
}

func (r *recordingAlarms) SetHandler(fn func(string)) { r.handler = fn }

func TestSchedule_ReplacesExisting(t *testing.T) {
	alarms := &recordingAlarms{}
	c := New(alarms, nil)
	t0 := time.Unix(1000, 0)

	c.Schedule("s:1", t0)
	c.Schedule("s:1", t0.Add(time.Minute))

	require.Len(t, alarms.calls, 3)
	assert.Equal(t, "schedule", alarms.calls[0].op)
	assert.Equal(t, "cancel", alarms.calls[1].op)
	assert.Equal(t, "schedule", alarms.calls[2].op)

	at, ok := c.Scheduled("s:1")
	assert.True(t, ok)
	assert.Equal(t, t0.Add(time.Minute), at)
	assert.Equal(t, 1, c.Pending())
}

func TestCancel_AbsentIsNoop(t *testing.T) {
	alarms := &recordingAlarms{}
	c := New(alarms, nil)

	c.Cancel("s:9")
	assert.Empty(t, alarms.calls)

	c.Schedule("s:9", time.Unix(5, 0))
	c.Cancel("s:9")
	c.Cancel("s:9")

	require.Len(t, alarms.calls, 2)
	assert.Equal(t, alarmCall{op: "cancel", key: "s:9"}, alarms.calls[1])
	_, ok := c.Scheduled("s:9")
	assert.False(t, ok)
}

func TestRekey(t *testing.T) {
	alarms := &recordingAlarms{}
	c := New(alarms, nil)
	at := time.Unix(50, 0)

	c.Schedule("e:abc", at)
	c.Rekey("e:abc", "s:4")

	_, ok := c.Scheduled("e:abc")
	assert.False(t, ok)
	got, ok := c.Scheduled("s:4")
	assert.True(t, ok)
	assert.Equal(t, at, got)
	assert.Equal(t, alarmCall{op: "schedule", key: "s:4", at: at}, alarms.calls[len(alarms.calls)-1])
}

func TestRekey_NothingScheduled(t *testing.T) {
	alarms := &recordingAlarms{}
	c := New(alarms, nil)
	c.Rekey("e:abc", "s:4")
	assert.Empty(t, alarms.calls)
}

func TestFired(t *testing.T) {
	c := New(&recordingAlarms{}, nil)
	c.Schedule("s:2", time.Unix(1, 0))

	assert.True(t, c.Fired("s:2"))
	assert.False(t, c.Fired("s:2"), "second delivery is stale")
	assert.Zero(t, c.Pending())
}
