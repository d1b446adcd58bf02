package energy

import (
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"sun_harvester/internal/trace"
)

// Harvester is anything that feeds power into a source.
type Harvester interface {
	Power() float64
}

// Clock reports the current simulation time.
type Clock interface {
	Now() time.Duration
}

// Config holds the user-configurable parameters of a basic energy source.
type Config struct {
	InitialEnergyJ float64 `json:"initial_energy_j"`
	// CapacityJ caps the stored energy. Zero means unbounded.
	CapacityJ float64 `json:"capacity_j"`
	// LoadW is a constant draw by the attached device.
	LoadW          float64 `json:"load_w"`
	SupplyVoltageV float64 `json:"supply_voltage_v"`
}

// DefaultConfig returns a 10 J, 3 V source without load or capacity limit.
func DefaultConfig() Config {
	return Config{InitialEnergyJ: 10, SupplyVoltageV: 3}
}

func (c Config) Validate() error {
	switch {
	case c.InitialEnergyJ < 0:
		return fmt.Errorf("initial energy %g J must not be negative", c.InitialEnergyJ)
	case c.CapacityJ < 0:
		return fmt.Errorf("capacity %g J must not be negative", c.CapacityJ)
	case c.CapacityJ > 0 && c.InitialEnergyJ > c.CapacityJ:
		return fmt.Errorf("initial energy %g J exceeds capacity %g J", c.InitialEnergyJ, c.CapacityJ)
	case c.LoadW < 0:
		return fmt.Errorf("load %g W must not be negative", c.LoadW)
	case c.SupplyVoltageV < 0:
		return fmt.Errorf("supply voltage %g V must not be negative", c.SupplyVoltageV)
	}
	return nil
}

// Summary holds source stats for broadcasting.
type Summary struct {
	RemainingJ   float64 `json:"remaining_j"`
	InitialJ     float64 `json:"initial_j"`
	HarvestedJ   float64 `json:"harvested_j"`
	ConsumedJ    float64 `json:"consumed_j"`
	LevelPercent float64 `json:"level_percent"`
	Depleted     bool    `json:"depleted"`
	// TimeAtLevelPctSec counts seconds spent per 10% level bucket. Empty
	// for unbounded sources.
	TimeAtLevelPctSec map[int]float64 `json:"time_at_level_pct_sec"`
}

// BasicSource is a battery whose level is recomputed whenever a connected
// harvester reports new power.
type BasicSource struct {
	mu     sync.Mutex
	cfg    Config
	clock  Clock
	logger *zap.Logger

	harvesters []Harvester
	remaining  trace.Value
	lastUpdate time.Duration

	harvestedJ      float64
	consumedJ       float64
	timeAtLevelSec  map[int]float64
	depletedWarning bool
}

func NewBasicSource(cfg Config, clock Clock, logger *zap.Logger) (*BasicSource, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("energy source: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &BasicSource{
		cfg:            cfg,
		clock:          clock,
		logger:         logger.Named("energy"),
		lastUpdate:     clock.Now(),
		timeAtLevelSec: make(map[int]float64),
	}
	s.remaining.Set(cfg.InitialEnergyJ)
	return s, nil
}

// ConnectHarvester adds h to the harvesters pulled on every update.
func (s *BasicSource) ConnectHarvester(h Harvester) {
	s.mu.Lock()
	s.harvesters = append(s.harvesters, h)
	s.mu.Unlock()
}

// DisconnectHarvester stops pulling power from h. Power h delivered since
// the previous update is settled first.
func (s *BasicSource) DisconnectHarvester(h Harvester) {
	s.mu.Lock()
	pending := s.clock.Now() > s.lastUpdate
	s.mu.Unlock()
	if pending {
		s.UpdateEnergySource()
	}

	s.mu.Lock()
	// Updates iterate the old slice without the lock.
	s.harvesters = slices.DeleteFunc(slices.Clone(s.harvesters), func(c Harvester) bool { return c == h })
	s.mu.Unlock()
}

// NotifyHarvesterUpdated is called by a harvester after its power changed.
func (s *BasicSource) NotifyHarvesterUpdated() {
	s.UpdateEnergySource()
}

// OnRemainingEnergy registers a sink for remaining energy changes.
func (s *BasicSource) OnRemainingEnergy(sink trace.Sink) {
	s.remaining.Connect(sink)
}

// UpdateEnergySource integrates harvested power minus load over the time
// since the previous update, using the harvesters' current power.
func (s *BasicSource) UpdateEnergySource() {
	s.mu.Lock()
	now := s.clock.Now()
	dt := (now - s.lastUpdate).Seconds()
	harvesters := s.harvesters
	s.mu.Unlock()

	// Harvesters guard their own state; never call them with mu held.
	var power float64
	for _, h := range harvesters {
		power += h.Power()
	}

	s.mu.Lock()
	if dt < 0 {
		s.logger.Warn("energy source updated out of order",
			zap.Duration("now", now), zap.Duration("last_update", s.lastUpdate))
		dt = 0
	}
	prev := s.remaining.Get()
	s.recordLevel(prev, dt)

	harvested := power * dt
	consumed := s.cfg.LoadW * dt
	next := prev + harvested - consumed
	if next < 0 {
		consumed += next
		next = 0
	}
	if s.cfg.CapacityJ > 0 && next > s.cfg.CapacityJ {
		harvested -= next - s.cfg.CapacityJ
		next = s.cfg.CapacityJ
	}
	s.harvestedJ += harvested
	s.consumedJ += consumed
	if now > s.lastUpdate {
		s.lastUpdate = now
	}

	depleted := next == 0 && s.cfg.LoadW > 0
	warn := depleted && !s.depletedWarning
	s.depletedWarning = depleted
	s.mu.Unlock()

	if warn {
		s.logger.Info("energy source depleted", zap.Duration("at", now))
	}
	s.remaining.Set(next)
}

// recordLevel accumulates time spent in 10% level buckets. Must be called with mu held.
func (s *BasicSource) recordLevel(levelJ, dtSec float64) {
	if s.cfg.CapacityJ <= 0 || dtSec <= 0 {
		return
	}
	bucket := int(math.Floor(levelJ/s.cfg.CapacityJ*10)) * 10
	if bucket < 0 {
		bucket = 0
	}
	if bucket > 100 {
		bucket = 100
	}
	s.timeAtLevelSec[bucket] += dtSec
}

// RemainingEnergy returns the stored energy in joules.
func (s *BasicSource) RemainingEnergy() float64 {
	return s.remaining.Get()
}

func (s *BasicSource) InitialEnergy() float64 {
	return s.cfg.InitialEnergyJ
}

func (s *BasicSource) SupplyVoltage() float64 {
	return s.cfg.SupplyVoltageV
}

// Level returns remaining energy as a fraction of capacity, or of the initial
// energy for unbounded sources.
func (s *BasicSource) Level() float64 {
	ref := s.cfg.CapacityJ
	if ref <= 0 {
		ref = s.cfg.InitialEnergyJ
	}
	if ref <= 0 {
		return 0
	}
	return s.remaining.Get() / ref
}

// Summary returns the current source summary for broadcasting.
func (s *BasicSource) Summary() Summary {
	level := s.Level() * 100

	s.mu.Lock()
	defer s.mu.Unlock()
	hist := make(map[int]float64, len(s.timeAtLevelSec))
	for k, v := range s.timeAtLevelSec {
		hist[k] = v
	}
	return Summary{
		RemainingJ:        s.remaining.Get(),
		InitialJ:          s.cfg.InitialEnergyJ,
		HarvestedJ:        s.harvestedJ,
		ConsumedJ:         s.consumedJ,
		LevelPercent:      level,
		Depleted:          s.depletedWarning,
		TimeAtLevelPctSec: hist,
	}
}

// Reset restores the initial energy and clears stats.
func (s *BasicSource) Reset() {
	s.mu.Lock()
	s.lastUpdate = s.clock.Now()
	s.harvestedJ = 0
	s.consumedJ = 0
	s.depletedWarning = false
	s.timeAtLevelSec = make(map[int]float64)
	s.mu.Unlock()

	s.remaining.Set(s.cfg.InitialEnergyJ)
}
