package simulator

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type mockCallback struct {
	mu     sync.Mutex
	states []State
}

func (m *mockCallback) OnState(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, s)
}

func (m *mockCallback) lastState() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.states) == 0 {
		return State{}
	}
	return m.states[len(m.states)-1]
}

func newTestEngine(t *testing.T) (*Engine, *mockCallback) {
	t.Helper()
	cb := &mockCallback{}
	return New(zaptest.NewLogger(t), cb), cb
}

func TestEngine_RunsInTimeOrder(t *testing.T) {
	e, _ := newTestEngine(t)

	var order []string
	var times []time.Duration
	record := func(name string) func() {
		return func() {
			order = append(order, name)
			times = append(times, e.Now())
		}
	}

	e.ScheduleAfter(3*time.Second, record("c"))
	e.ScheduleAfter(time.Second, record("a"))
	e.ScheduleAfter(2*time.Second, record("b1"))
	e.ScheduleAfter(2*time.Second, record("b2"))
	e.Run()

	assert.Equal(t, []string{"a", "b1", "b2", "c"}, order)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 2 * time.Second, 3 * time.Second}, times)
	assert.True(t, e.IsFinished())
}

func TestEngine_CallbacksMaySchedule(t *testing.T) {
	e, _ := newTestEngine(t)

	count := 0
	var tick func()
	tick = func() {
		count++
		e.ScheduleAfter(time.Second, tick)
	}
	e.ScheduleNow(tick)
	e.Stop(10 * time.Second)
	e.Run()

	assert.Equal(t, 11, count, "ticks at 0..10 inclusive")
	assert.Equal(t, 10*time.Second, e.Now())
	assert.Equal(t, 1, e.State().Pending)
}

func TestEngine_Cancel(t *testing.T) {
	e, _ := newTestEngine(t)

	fired := false
	id := e.ScheduleAfter(time.Second, func() { fired = true })
	require.True(t, e.IsPending(id))

	e.Cancel(id)
	e.Cancel(id)
	e.Cancel(EventID(999))
	assert.False(t, e.IsPending(id))

	e.Run()
	assert.False(t, fired)
}

func TestEngine_CancelFromInsideEvent(t *testing.T) {
	e, _ := newTestEngine(t)

	var later EventID
	laterFired := false
	e.ScheduleAfter(time.Second, func() { e.Cancel(later) })
	later = e.ScheduleAfter(2*time.Second, func() { laterFired = true })
	e.Run()

	assert.False(t, laterFired)
}

func TestEngine_StopAdvancesClock(t *testing.T) {
	e, _ := newTestEngine(t)

	e.ScheduleAfter(16*time.Second, func() { t.Fatal("event past stop time ran") })
	e.Stop(15 * time.Second)
	e.Run()

	assert.Equal(t, 15*time.Second, e.Now())
	assert.True(t, e.IsFinished())
}

func TestEngine_Step(t *testing.T) {
	e, cb := newTestEngine(t)

	var fired []time.Duration
	for _, d := range []time.Duration{500 * time.Millisecond, time.Second, 1500 * time.Millisecond} {
		e.ScheduleAfter(d, func() { fired = append(fired, e.Now()) })
	}

	e.Step(time.Second)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, fired)
	assert.Equal(t, time.Second, e.Now())
	assert.Equal(t, time.Second, cb.lastState().Now)
	assert.False(t, e.IsFinished())

	e.Stop(1200 * time.Millisecond)
	e.Step(time.Second)
	assert.Len(t, fired, 2)
	assert.Equal(t, 1200*time.Millisecond, e.Now())
	assert.True(t, e.IsFinished())
}

func TestEngine_NegativeDelay(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Step(time.Second)

	var at time.Duration
	e.ScheduleAfter(-time.Hour, func() { at = e.Now() })
	e.Run()
	assert.Equal(t, time.Second, at)
}

func TestEngine_Destroy(t *testing.T) {
	e, _ := newTestEngine(t)

	disposed := 0
	e.ScheduleDestroy(func() { disposed++ })
	id := e.ScheduleAfter(time.Second, func() {})

	e.Destroy()
	assert.Equal(t, 1, disposed)
	assert.False(t, e.IsPending(id))
	assert.True(t, e.IsFinished())

	e.Destroy()
	assert.Equal(t, 1, disposed)
}

func TestEngine_SetSpeed(t *testing.T) {
	e, cb := newTestEngine(t)

	e.SetSpeed(0.01)
	assert.Equal(t, 0.1, e.State().Speed)

	e.SetSpeed(1e9)
	assert.Equal(t, 604800.0, e.State().Speed)

	e.SetSpeed(60)
	assert.Equal(t, 60.0, cb.lastState().Speed)
}

func TestEngine_StartPause(t *testing.T) {
	e, cb := newTestEngine(t)
	e.SetSpeed(100)

	var mu sync.Mutex
	ticks := 0
	var tick func()
	tick = func() {
		mu.Lock()
		ticks++
		mu.Unlock()
		e.ScheduleAfter(time.Second, tick)
	}
	e.ScheduleNow(tick)

	e.Start()
	assert.True(t, e.State().Running)
	e.Start()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return ticks >= 20
	}, 5*time.Second, 10*time.Millisecond)

	e.Pause()
	assert.False(t, e.State().Running)
	assert.False(t, cb.lastState().Running)
	e.Pause()
}

func TestEngine_PacedLoopEndsAtStop(t *testing.T) {
	e, _ := newTestEngine(t)
	e.SetSpeed(600)
	e.Stop(2 * time.Minute)

	e.Start()
	require.Eventually(t, e.IsFinished, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return !e.State().Running }, time.Second, 10*time.Millisecond)
	assert.Equal(t, 2*time.Minute, e.Now())
}
