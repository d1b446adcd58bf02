package energy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeClock struct{ now time.Duration }

func (c *fakeClock) Now() time.Duration { return c.now }

type fakeHarvester struct{ power float64 }

func (h *fakeHarvester) Power() float64 { return h.power }

func newTestSource(t *testing.T, cfg Config) (*BasicSource, *fakeClock) {
	t.Helper()
	clock := &fakeClock{}
	s, err := NewBasicSource(cfg, clock, zaptest.NewLogger(t))
	require.NoError(t, err)
	return s, clock
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"default", DefaultConfig(), true},
		{"negative initial", Config{InitialEnergyJ: -1}, false},
		{"negative capacity", Config{CapacityJ: -1}, false},
		{"initial above capacity", Config{InitialEnergyJ: 20, CapacityJ: 10}, false},
		{"negative load", Config{LoadW: -0.1}, false},
		{"bounded", Config{InitialEnergyJ: 5, CapacityJ: 10, LoadW: 0.01}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestBasicSource_StartsAtInitialEnergy(t *testing.T) {
	s, _ := newTestSource(t, DefaultConfig())
	assert.Equal(t, 10.0, s.RemainingEnergy())
	assert.Equal(t, 10.0, s.InitialEnergy())
	assert.Equal(t, 3.0, s.SupplyVoltage())
	assert.InDelta(t, 1.0, s.Level(), 1e-12)
}

func TestBasicSource_IntegratesHarvestedPower(t *testing.T) {
	s, clock := newTestSource(t, DefaultConfig())
	h := &fakeHarvester{power: 0.02}
	s.ConnectHarvester(h)

	s.NotifyHarvesterUpdated()
	assert.Equal(t, 10.0, s.RemainingEnergy(), "zero elapsed time adds nothing")

	clock.now = 15 * time.Second
	s.NotifyHarvesterUpdated()
	assert.InDelta(t, 10+0.02*15, s.RemainingEnergy(), 1e-13)

	h.power = 0.04
	clock.now = 20 * time.Second
	s.UpdateEnergySource()
	assert.InDelta(t, 10+0.02*15+0.04*5, s.RemainingEnergy(), 1e-13)

	sum := s.Summary()
	assert.InDelta(t, 0.5, sum.HarvestedJ, 1e-13)
	assert.Equal(t, 0.0, sum.ConsumedJ)
}

func TestBasicSource_SumsHarvesters(t *testing.T) {
	s, clock := newTestSource(t, DefaultConfig())
	s.ConnectHarvester(&fakeHarvester{power: 1})
	s.ConnectHarvester(&fakeHarvester{power: 2})

	clock.now = 2 * time.Second
	s.UpdateEnergySource()
	assert.InDelta(t, 16.0, s.RemainingEnergy(), 1e-12)
}

func TestBasicSource_CapacityClamp(t *testing.T) {
	s, clock := newTestSource(t, Config{InitialEnergyJ: 9, CapacityJ: 10})
	s.ConnectHarvester(&fakeHarvester{power: 1})

	clock.now = 5 * time.Second
	s.UpdateEnergySource()
	assert.Equal(t, 10.0, s.RemainingEnergy())
	assert.InDelta(t, 1.0, s.Summary().HarvestedJ, 1e-12)
	assert.InDelta(t, 1.0, s.Level(), 1e-12)
}

func TestBasicSource_LoadDepletes(t *testing.T) {
	s, clock := newTestSource(t, Config{InitialEnergyJ: 1, CapacityJ: 10, LoadW: 0.5})

	clock.now = 10 * time.Second
	s.UpdateEnergySource()
	assert.Equal(t, 0.0, s.RemainingEnergy())

	sum := s.Summary()
	assert.True(t, sum.Depleted)
	assert.InDelta(t, 1.0, sum.ConsumedJ, 1e-12)
	assert.InDelta(t, 10.0, sum.TimeAtLevelPctSec[10], 1e-12, "level was 10% during the interval")
}

func TestBasicSource_TracesEveryUpdate(t *testing.T) {
	s, clock := newTestSource(t, DefaultConfig())
	s.ConnectHarvester(&fakeHarvester{power: 1})

	var prevs, curs []float64
	s.OnRemainingEnergy(func(p, c float64) {
		prevs = append(prevs, p)
		curs = append(curs, c)
	})

	clock.now = time.Second
	s.UpdateEnergySource()
	clock.now = 2 * time.Second
	s.UpdateEnergySource()

	assert.Equal(t, []float64{10, 11}, prevs)
	assert.Equal(t, []float64{11, 12}, curs)
}

func TestBasicSource_OutOfOrderUpdateIgnored(t *testing.T) {
	s, clock := newTestSource(t, DefaultConfig())
	s.ConnectHarvester(&fakeHarvester{power: 1})

	clock.now = 5 * time.Second
	s.UpdateEnergySource()
	clock.now = 3 * time.Second
	s.UpdateEnergySource()
	assert.InDelta(t, 15.0, s.RemainingEnergy(), 1e-12)
}

func TestBasicSource_Reset(t *testing.T) {
	s, clock := newTestSource(t, Config{InitialEnergyJ: 5, CapacityJ: 10})
	s.ConnectHarvester(&fakeHarvester{power: 1})

	clock.now = 3 * time.Second
	s.UpdateEnergySource()
	require.InDelta(t, 8.0, s.RemainingEnergy(), 1e-12)
	require.NotEmpty(t, s.Summary().TimeAtLevelPctSec)

	s.Reset()
	assert.Equal(t, 5.0, s.RemainingEnergy())
	sum := s.Summary()
	assert.Equal(t, 0.0, sum.HarvestedJ)
	assert.Empty(t, sum.TimeAtLevelPctSec)

	clock.now = 4 * time.Second
	s.UpdateEnergySource()
	assert.InDelta(t, 6.0, s.RemainingEnergy(), 1e-12, "integration restarts at reset time")
}

func TestNewBasicSource_Invalid(t *testing.T) {
	_, err := NewBasicSource(Config{InitialEnergyJ: -1}, &fakeClock{}, nil)
	assert.Error(t, err)
}

func TestBasicSource_DisconnectHarvester(t *testing.T) {
	s, clock := newTestSource(t, DefaultConfig())
	gone := &fakeHarvester{power: 1}
	kept := &fakeHarvester{power: 2}
	s.ConnectHarvester(gone)
	s.ConnectHarvester(kept)

	clock.now = 2 * time.Second
	s.DisconnectHarvester(gone)
	assert.InDelta(t, 16.0, s.RemainingEnergy(), 1e-12, "power up to the disconnect is settled")

	clock.now = 4 * time.Second
	s.UpdateEnergySource()
	assert.InDelta(t, 20.0, s.RemainingEnergy(), 1e-12)

	s.DisconnectHarvester(kept)
	clock.now = 10 * time.Second
	s.UpdateEnergySource()
	assert.InDelta(t, 20.0, s.RemainingEnergy(), 1e-12)

	s.DisconnectHarvester(&fakeHarvester{power: 5})
	assert.InDelta(t, 20.0, s.RemainingEnergy(), 1e-12, "unknown harvester is ignored")
}

func TestBasicSource_DisconnectWithoutElapsedTimeDoesNotTrace(t *testing.T) {
	s, clock := newTestSource(t, DefaultConfig())
	h := &fakeHarvester{power: 1}
	s.ConnectHarvester(h)
	clock.now = time.Second
	s.UpdateEnergySource()

	var writes int
	s.OnRemainingEnergy(func(_, _ float64) { writes++ })
	s.DisconnectHarvester(h)
	assert.Equal(t, 0, writes)
}
