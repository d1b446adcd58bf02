package simulator

import (
	"container/heap"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventID identifies a scheduled event. The zero value never names an event.
type EventID uint64

// State represents the current simulation state.
type State struct {
	Now      time.Duration `json:"now"`
	Speed    float64       `json:"speed"`
	Running  bool          `json:"running"`
	Finished bool          `json:"finished"`
	Pending  int           `json:"pending"`
}

// Callback receives simulation events.
type Callback interface {
	OnState(state State)
}

type event struct {
	id    EventID
	at    time.Duration
	seq   uint64
	fn    func()
	index int
}

// eventQueue orders events by time, then by scheduling order.
type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x any) {
	e := x.(*event)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*q = old[:n-1]
	return e
}

// Engine is a discrete-event scheduler. Events run one at a time in
// non-decreasing time order; the engine lock is never held while an event
// runs, so events may schedule and cancel others.
type Engine struct {
	mu       sync.Mutex
	callback Callback
	logger   *zap.Logger

	now     time.Duration
	queue   eventQueue
	byID    map[EventID]*event
	nextID  EventID
	nextSeq uint64

	stopAt   time.Duration
	hasStop  bool
	finished bool
	destroy  []func()

	running bool
	speed   float64
	stopCh  chan struct{}
}

// New returns an engine at time zero. cb may be nil.
func New(logger *zap.Logger, cb Callback) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		callback: cb,
		logger:   logger.Named("engine"),
		byID:     make(map[EventID]*event),
		speed:    3600,
	}
}

// Now returns the current simulation time.
func (e *Engine) Now() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

// ScheduleAfter arranges for fn to run delay after the current time.
// A negative delay is treated as zero.
func (e *Engine) ScheduleAfter(delay time.Duration, fn func()) EventID {
	if delay < 0 {
		delay = 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	e.nextSeq++
	ev := &event{id: e.nextID, at: e.now + delay, seq: e.nextSeq, fn: fn}
	heap.Push(&e.queue, ev)
	e.byID[ev.id] = ev
	return ev.id
}

// ScheduleNow runs fn at the current time, after events already due now.
func (e *Engine) ScheduleNow(fn func()) EventID {
	return e.ScheduleAfter(0, fn)
}

// ScheduleDestroy registers fn to run from Destroy.
func (e *Engine) ScheduleDestroy(fn func()) {
	e.mu.Lock()
	e.destroy = append(e.destroy, fn)
	e.mu.Unlock()
}

// Cancel removes a pending event. Unknown, fired and already cancelled
// events are ignored.
func (e *Engine) Cancel(id EventID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ev, ok := e.byID[id]
	if !ok {
		return
	}
	delete(e.byID, id)
	heap.Remove(&e.queue, ev.index)
}

// IsPending reports whether id is still waiting to run.
func (e *Engine) IsPending(id EventID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.byID[id]
	return ok
}

// IsFinished reports whether the run reached its stop time or ran out of events.
func (e *Engine) IsFinished() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finished
}

// Stop ends the run once simulation time passes at. Events due exactly at
// the stop time still run.
func (e *Engine) Stop(at time.Duration) {
	e.mu.Lock()
	e.stopAt = at
	e.hasStop = true
	e.mu.Unlock()
}

// Run executes events until the queue empties or the stop time is passed.
func (e *Engine) Run() {
	for e.runNext(-1) {
	}

	e.mu.Lock()
	e.finished = true
	if e.hasStop && e.now < e.stopAt {
		e.now = e.stopAt
	}
	pending := len(e.queue)
	now := e.now
	e.mu.Unlock()

	e.logger.Debug("run finished", zap.Duration("now", now), zap.Int("pending", pending))
	e.broadcastState()
}

// Step runs every event due within delta of the current time and then
// advances the clock by delta. Useful for deterministic testing. Does not
// require Start().
func (e *Engine) Step(delta time.Duration) {
	e.mu.Lock()
	target := e.now + delta
	e.mu.Unlock()

	for e.runNext(target) {
	}

	e.mu.Lock()
	ended := false
	if e.hasStop && target >= e.stopAt {
		target = e.stopAt
		ended = true
	}
	if target > e.now {
		e.now = target
	}
	if ended {
		e.finished = true
	}
	e.mu.Unlock()

	e.broadcastState()
	if ended {
		e.halt()
	}
}

// runNext pops and runs the next event due at or before limit (no limit
// when negative). It reports whether an event ran.
func (e *Engine) runNext(limit time.Duration) bool {
	e.mu.Lock()
	if len(e.queue) == 0 {
		e.mu.Unlock()
		return false
	}
	next := e.queue[0]
	if (limit >= 0 && next.at > limit) || (e.hasStop && next.at > e.stopAt) {
		e.mu.Unlock()
		return false
	}
	heap.Pop(&e.queue)
	delete(e.byID, next.id)
	e.now = next.at
	e.mu.Unlock()

	next.fn()
	return true
}

// Destroy runs the registered destroy hooks and drops every pending event.
func (e *Engine) Destroy() {
	e.halt()

	e.mu.Lock()
	hooks := e.destroy
	e.destroy = nil
	e.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}

	e.mu.Lock()
	e.queue = nil
	e.byID = make(map[EventID]*event)
	e.finished = true
	e.mu.Unlock()
}

// State returns the current simulation state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

func (e *Engine) stateLocked() State {
	return State{
		Now:      e.now,
		Speed:    e.speed,
		Running:  e.running,
		Finished: e.finished,
		Pending:  len(e.queue),
	}
}

// Start begins pacing the simulation against the wall clock.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running || e.finished {
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	stopCh := e.stopCh
	e.mu.Unlock()

	e.broadcastState()
	go e.loop(stopCh)
}

// Pause stops the paced loop.
func (e *Engine) Pause() {
	if e.halt() {
		e.broadcastState()
	}
}

func (e *Engine) halt() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return false
	}
	e.running = false
	close(e.stopCh)
	return true
}

// SetSpeed sets how many simulated seconds pass per wall-clock second.
func (e *Engine) SetSpeed(speed float64) {
	if speed < 0.1 {
		speed = 0.1
	}
	if speed > 604800 {
		speed = 604800
	}

	e.mu.Lock()
	e.speed = speed
	e.mu.Unlock()

	e.broadcastState()
}

const tickInterval = 100 * time.Millisecond

func (e *Engine) loop(stopCh chan struct{}) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			e.mu.Lock()
			simDelta := time.Duration(float64(tickInterval) * e.speed)
			e.mu.Unlock()

			e.Step(simDelta)
			if e.IsFinished() {
				return
			}
		}
	}
}

func (e *Engine) broadcastState() {
	if e.callback == nil {
		return
	}
	e.mu.Lock()
	s := e.stateLocked()
	e.mu.Unlock()
	e.callback.OnState(s)
}
