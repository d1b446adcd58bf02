package harvester

import (
	"fmt"

	"go.uber.org/zap"

	"sun_harvester/internal/energy"
)

// Source is an energy source a harvester can be attached to.
type Source interface {
	EnergySource
	ConnectHarvester(h energy.Harvester)
}

// Installer creates harvesters from one configuration and binds each to an
// energy source.
type Installer struct {
	cfg    Config
	sched  Scheduler
	logger *zap.Logger
	hooks  []func(h *Harvester, src Source)
}

func NewInstaller(cfg Config, sched Scheduler, logger *zap.Logger) *Installer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Installer{cfg: cfg, sched: sched, logger: logger}
}

// OnInstall registers fn to run for every new harvester once it is bound to
// its source and before its first tick, e.g. to connect trace sinks.
func (i *Installer) OnInstall(fn func(h *Harvester, src Source)) {
	i.hooks = append(i.hooks, fn)
}

// Install creates a harvester, connects it to src in both directions and
// initializes it.
func (i *Installer) Install(src Source) (*Harvester, error) {
	h, err := New(i.cfg, i.sched, i.logger)
	if err != nil {
		return nil, err
	}
	src.ConnectHarvester(h)
	h.SetEnergySource(src)
	for _, fn := range i.hooks {
		fn(h, src)
	}
	if err := h.Initialize(); err != nil {
		return nil, err
	}
	return h, nil
}

// InstallAll installs one harvester per source. On error the harvesters
// installed so far are disposed.
func (i *Installer) InstallAll(sources []Source) ([]*Harvester, error) {
	out := make([]*Harvester, 0, len(sources))
	for n, src := range sources {
		h, err := i.Install(src)
		if err != nil {
			for _, done := range out {
				done.Dispose()
			}
			return nil, fmt.Errorf("installing harvester %d: %w", n, err)
		}
		out = append(out, h)
	}
	return out, nil
}
