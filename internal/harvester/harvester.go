package harvester

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sun_harvester/internal/energy"
	"sun_harvester/internal/model"
	"sun_harvester/internal/simulator"
	"sun_harvester/internal/solar"
	"sun_harvester/internal/trace"
)

// Scheduler is the part of the discrete-event engine a harvester needs.
type Scheduler interface {
	Now() time.Duration
	ScheduleAfter(delay time.Duration, fn func()) simulator.EventID
	Cancel(id simulator.EventID)
	IsFinished() bool
}

// EnergySource is notified after every power update.
type EnergySource interface {
	NotifyHarvesterUpdated()
}

// disconnecter is implemented by sources that can drop a harvester.
type disconnecter interface {
	DisconnectHarvester(h energy.Harvester)
}

type State int

const (
	StateUninitialized State = iota
	StateActive
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateDisposed:
		return "disposed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var ErrAlreadyInitialized = errors.New("harvester already initialized")

// Harvester converts sun position into panel power on a fixed simulated
// cadence and accumulates the harvested energy.
type Harvester struct {
	mu     sync.Mutex
	id     string
	cfg    Config
	sched  Scheduler
	sun    solar.Source
	logger *zap.Logger

	source EnergySource
	state  State

	date       model.DateTime
	dateCarry  time.Duration
	lastUpdate time.Duration
	lastSample solar.Sample
	event      simulator.EventID
	ticks      uint64

	harvestedPower trace.Value
	totalEnergy    trace.Value
}

// New validates cfg and builds an uninitialized harvester.
func New(cfg Config, sched Scheduler, logger *zap.Logger) (*Harvester, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("harvester config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var sun solar.Source
	switch cfg.Variant {
	case VariantSharedBody:
		sun = solar.BodySource{Body: cfg.SunBody.Acquire()}
	case VariantSuncalc:
		sun = solar.SuncalcSource{Location: cfg.Location, AvgInsolation: cfg.AvgInsolation}
	default:
		sun = solar.AlgorithmSource{Location: cfg.Location, AvgInsolation: cfg.AvgInsolation}
	}

	id := uuid.NewString()
	return &Harvester{
		id:     id,
		cfg:    cfg,
		sched:  sched,
		sun:    sun,
		logger: logger.Named("harvester").With(zap.String("harvester_id", id)),
		date:   cfg.StartDate,
	}, nil
}

func (h *Harvester) ID() string {
	return h.id
}

func (h *Harvester) Config() Config {
	return h.cfg
}

// SetEnergySource sets the source notified after each tick.
func (h *Harvester) SetEnergySource(src EnergySource) {
	h.mu.Lock()
	h.source = src
	h.mu.Unlock()
}

// OnHarvestedPower registers a sink for harvested power (W).
func (h *Harvester) OnHarvestedPower(sink trace.Sink) {
	h.harvestedPower.Connect(sink)
}

// OnTotalEnergyHarvested registers a sink for the cumulative energy (J).
func (h *Harvester) OnTotalEnergyHarvested(sink trace.Sink) {
	h.totalEnergy.Connect(sink)
}

// Initialize starts the tick loop. The first tick runs immediately over a
// zero-length interval and arms the recurring timer.
func (h *Harvester) Initialize() error {
	h.mu.Lock()
	if h.state != StateUninitialized {
		state := h.state
		h.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrAlreadyInitialized, state)
	}
	h.state = StateActive
	h.lastUpdate = h.sched.Now()
	h.mu.Unlock()

	h.logger.Debug("harvester initialized",
		zap.Stringer("start_date", h.cfg.StartDate),
		zap.Duration("update_interval", h.cfg.UpdateInterval),
		zap.String("variant", string(h.cfg.Variant)),
	)
	h.tick()
	return nil
}

// tick recomputes power, integrates energy over the elapsed interval,
// notifies the source and re-arms the timer.
func (h *Harvester) tick() {
	h.mu.Lock()
	if h.state != StateActive {
		h.mu.Unlock()
		return
	}
	if h.sched.IsFinished() {
		h.mu.Unlock()
		h.logger.Debug("run finished, tick skipped")
		return
	}

	h.sched.Cancel(h.event)

	now := h.sched.Now()
	elapsed := now - h.lastUpdate
	if elapsed < 0 {
		h.mu.Unlock()
		panic(fmt.Sprintf("harvester %s: time went backwards: now %s, last update %s", h.id, now, h.lastUpdate))
	}

	sample := h.sun.Sample(h.date)
	power := solar.HarvestedPower(h.cfg.Panel, sample.Coordinates, sample.IncidentInsolation)
	total := h.totalEnergy.Get() + elapsed.Seconds()*power
	h.lastSample = sample
	h.lastUpdate = now
	h.ticks++
	src := h.source
	h.mu.Unlock()

	// Sinks and the source see the date the power was computed for.
	h.harvestedPower.Set(power)
	h.totalEnergy.Set(total)
	if src != nil {
		src.NotifyHarvesterUpdated()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != StateActive {
		return
	}
	h.advanceDate(h.cfg.UpdateInterval)
	h.event = h.sched.ScheduleAfter(h.cfg.UpdateInterval, h.tick)
}

// advanceDate moves the simulated date by whole seconds and keeps the
// fractional rest for the next tick. Must be called with mu held.
func (h *Harvester) advanceDate(d time.Duration) {
	h.dateCarry += d
	whole := h.dateCarry / time.Second
	h.dateCarry -= whole * time.Second
	h.date = h.date.AddSeconds(int(whole))
}

// Dispose cancels the pending tick and detaches the harvester from its
// source, so neither its energy nor the source's level grows afterwards.
// Further ticks are no-ops. Safe to call more than once.
func (h *Harvester) Dispose() {
	h.mu.Lock()
	if h.state == StateDisposed {
		h.mu.Unlock()
		return
	}
	wasActive := h.state == StateActive
	h.state = StateDisposed
	h.sched.Cancel(h.event)
	h.event = 0
	src := h.source
	h.source = nil
	h.mu.Unlock()

	if d, ok := src.(disconnecter); ok {
		d.DisconnectHarvester(h)
	}
	if bs, ok := h.sun.(solar.BodySource); ok {
		bs.Body.Release()
	}
	if wasActive {
		h.logger.Debug("harvester disposed", zap.Float64("total_energy_j", h.totalEnergy.Get()))
	}
}

// Power returns the most recently computed harvested power in watts.
func (h *Harvester) Power() float64 {
	return h.harvestedPower.Get()
}

// TotalEnergy returns the energy harvested so far in joules.
func (h *Harvester) TotalEnergy() float64 {
	return h.totalEnergy.Get()
}

// Date returns the simulated date. Inside trace sinks it is the date the
// reported power was computed for; between ticks it is the next one.
func (h *Harvester) Date() model.DateTime {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.date
}

func (h *Harvester) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// LastSample returns the sun state used by the latest tick.
func (h *Harvester) LastSample() solar.Sample {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastSample
}

// Snapshot is a point-in-time view of a harvester for reporting.
type Snapshot struct {
	ID             string         `json:"id"`
	State          string         `json:"state"`
	Variant        Variant        `json:"variant"`
	Date           model.DateTime `json:"date"`
	PowerW         float64        `json:"power_w"`
	TotalEnergyJ   float64        `json:"total_energy_j"`
	Sample         solar.Sample   `json:"sample"`
	Ticks          uint64         `json:"ticks"`
	LastUpdate     time.Duration  `json:"last_update"`
	UpdateInterval time.Duration  `json:"update_interval"`
}

func (h *Harvester) Snapshot() Snapshot {
	power := h.harvestedPower.Get()
	total := h.totalEnergy.Get()

	h.mu.Lock()
	defer h.mu.Unlock()
	return Snapshot{
		ID:             h.id,
		State:          h.state.String(),
		Variant:        h.cfg.Variant,
		Date:           h.date,
		PowerW:         power,
		TotalEnergyJ:   total,
		Sample:         h.lastSample,
		Ticks:          h.ticks,
		LastUpdate:     h.lastUpdate,
		UpdateInterval: h.cfg.UpdateInterval,
	}
}

func (h *Harvester) String() string {
	s := h.Snapshot()
	return fmt.Sprintf("harvester %s [%s] date=%s power=%gW energy=%gJ elevation=%.3f azimuth=%.3f",
		s.ID, s.State, s.Date, s.PowerW, s.TotalEnergyJ,
		s.Sample.Coordinates.ElevationDeg, s.Sample.Coordinates.AzimuthDeg)
}
