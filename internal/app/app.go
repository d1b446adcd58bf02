// Package app assembles a simulation from a loaded configuration: the event
// engine, the shared sun table, one energy source per harvester and the
// trace plumbing into the store and metrics.
package app

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"sun_harvester/internal/config"
	"sun_harvester/internal/energy"
	"sun_harvester/internal/harvester"
	"sun_harvester/internal/metrics"
	"sun_harvester/internal/model"
	"sun_harvester/internal/simulator"
	"sun_harvester/internal/solar"
	"sun_harvester/internal/store"
	"sun_harvester/internal/trace"
)

// Member is one installed harvester and the source it feeds.
type Member struct {
	Group     string
	Harvester *harvester.Harvester
	Source    *energy.BasicSource
	// Clock is the engine both run on.
	Clock trace.Clock
}

// Sensors returns the series recorded for m.
func (m Member) Sensors() []model.Sensor {
	id := m.Harvester.ID()
	return []model.Sensor{
		model.SensorFor(id, model.TraceHarvestedPower),
		model.SensorFor(id, model.TraceTotalEnergy),
		model.SensorFor(id, model.TraceRemainingEnergy),
		model.SensorFor(id, model.TraceSunElevation),
		model.SensorFor(id, model.TraceSunAzimuth),
	}
}

// Options customise New.
type Options struct {
	// Callback receives engine state changes.
	Callback simulator.Callback
	// Metrics, when set, follows every trace.
	Metrics *metrics.Metrics
	// Attach runs for each harvester before its first tick and may connect
	// further sinks.
	Attach func(m Member)
}

type Simulation struct {
	Config  *config.Config
	Engine  *simulator.Engine
	Store   *store.Store
	Body    *solar.Body
	Members []Member

	metrics *metrics.Metrics
	logger  *zap.Logger
}

// StartDate returns the earliest start date over all groups.
func StartDate(cfg *config.Config) model.DateTime {
	var start model.DateTime
	for i, g := range cfg.Harvesters {
		d := g.Config.StartDate
		if i == 0 || d.Time().Before(start.Time()) {
			start = d
		}
	}
	return start
}

// New builds and initializes every harvester of cfg. The first tick of each
// runs at simulation time zero.
func New(cfg *config.Config, opts Options, logger *zap.Logger) (*Simulation, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Simulation{
		Config:  cfg,
		Engine:  simulator.New(logger, opts.Callback),
		Store:   store.New(cfg.StoreLimit),
		metrics: opts.Metrics,
		logger:  logger,
	}

	if cfg.SharedBody() {
		body, err := solar.NewBody(cfg.Body, logger)
		if err != nil {
			return nil, err
		}
		body.Start(StartDate(cfg))
		cfg.AttachBody(body)
		s.Body = body
	}

	rec := trace.NewRecorder(s.Store, s.Engine)
	for _, g := range cfg.Harvesters {
		inst := harvester.NewInstaller(g.Config, s.Engine, logger)
		var pending *energy.BasicSource
		inst.OnInstall(func(h *harvester.Harvester, _ harvester.Source) {
			m := Member{Group: g.Name, Harvester: h, Source: pending, Clock: s.Engine}
			s.wire(m, rec)
			if opts.Attach != nil {
				opts.Attach(m)
			}
			s.Members = append(s.Members, m)
		})

		for n := 0; n < g.Count; n++ {
			src, err := energy.NewBasicSource(cfg.Source, s.Engine, logger)
			if err != nil {
				s.Dispose()
				return nil, fmt.Errorf("group %s: %w", g.Name, err)
			}
			pending = src
			h, err := inst.Install(src)
			if err != nil {
				s.Dispose()
				return nil, fmt.Errorf("group %s harvester %d: %w", g.Name, n, err)
			}
			s.Engine.ScheduleDestroy(h.Dispose)
		}
	}

	logger.Info("simulation assembled",
		zap.Int("harvesters", len(s.Members)),
		zap.Bool("shared_body", s.Body != nil),
		zap.Stringer("start_date", StartDate(cfg)),
	)
	return s, nil
}

// wire connects the recorder and metrics to every trace of m.
func (s *Simulation) wire(m Member, rec *trace.Recorder) {
	h := m.Harvester
	id := h.ID()
	sensors := m.Sensors()

	power := []trace.Sink{rec.Sink(sensors[0], h.Date)}
	energySinks := []trace.Sink{rec.Sink(sensors[1], h.Date)}
	remaining := []trace.Sink{rec.Sink(sensors[2], h.Date)}
	elevation := rec.Sink(sensors[3], h.Date)
	azimuth := rec.Sink(sensors[4], h.Date)

	if s.metrics != nil {
		power = append(power, s.metrics.PowerSink(id))
		energySinks = append(energySinks, s.metrics.EnergySink(id))
		remaining = append(remaining, s.metrics.RemainingSink(id))
	}

	var prevEl, prevAz float64
	power = append(power, func(_, _ float64) {
		c := h.LastSample().Coordinates
		elevation(prevEl, c.ElevationDeg)
		azimuth(prevAz, c.AzimuthDeg)
		prevEl, prevAz = c.ElevationDeg, c.AzimuthDeg
		if s.metrics != nil {
			s.metrics.SetSun(c.ElevationDeg, c.AzimuthDeg)
			s.metrics.SetSimulationTime(s.Engine.Now())
		}
	})

	h.OnHarvestedPower(trace.Fanout(power...))
	h.OnTotalEnergyHarvested(trace.Fanout(energySinks...))
	m.Source.OnRemainingEnergy(trace.Fanout(remaining...))
}

// Member returns the member with the given harvester ID.
func (s *Simulation) Member(id string) (Member, bool) {
	for _, m := range s.Members {
		if m.Harvester.ID() == id {
			return m, true
		}
	}
	return Member{}, false
}

// Every runs fn each interval of simulation time until the run ends.
func (s *Simulation) Every(interval time.Duration, fn func()) {
	var tick func()
	tick = func() {
		fn()
		if !s.Engine.IsFinished() {
			s.Engine.ScheduleAfter(interval, tick)
		}
	}
	s.Engine.ScheduleAfter(interval, tick)
}

// Run executes the configured duration as fast as possible and brings every
// source up to date at the end.
func (s *Simulation) Run() {
	s.Engine.Stop(s.Config.Duration)
	s.Engine.Run()
	for _, m := range s.Members {
		m.Source.UpdateEnergySource()
	}
	s.logger.Info("simulation finished", zap.Duration("simulated", s.Engine.Now()))
}

// Prepare sets the stop time and the configured speed without starting the
// paced loop. Clients start it later.
func (s *Simulation) Prepare() {
	s.Engine.Stop(s.Config.Duration)
	s.Engine.SetSpeed(s.Config.Speed)
}

// StartPaced runs the configured duration against the wall clock at the
// configured speed.
func (s *Simulation) StartPaced() {
	s.Prepare()
	s.Engine.Start()
}

// End returns the simulated date the run stops at.
func (s *Simulation) End() model.DateTime {
	return StartDate(s.Config).AddSeconds(int(s.Config.Duration / time.Second))
}

// Dispose stops the engine and disposes every harvester.
func (s *Simulation) Dispose() {
	s.Engine.Destroy()
	for _, m := range s.Members {
		m.Harvester.Dispose()
		if s.metrics != nil {
			s.metrics.Forget(m.Harvester.ID())
		}
	}
}
