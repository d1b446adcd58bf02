package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTraceType(t *testing.T) {
	assert.Equal(t, TraceType("harvested_power"), TraceHarvestedPower)
}

func TestTraceCatalogComplete(t *testing.T) {
	for tt, name := range TraceSourceName {
		info, ok := TraceCatalog[tt]
		assert.True(t, ok, "missing catalog entry for %s", tt)
		assert.NotEmpty(t, info.Unit)
		assert.Equal(t, tt, SourceNameToTraceType[name])
	}
}

func TestSensorFor(t *testing.T) {
	s := SensorFor("node-0", TraceHarvestedPower)

	assert.Equal(t, "node-0/HarvestedPower", s.ID)
	assert.Equal(t, "Harvested Power", s.Name)
	assert.Equal(t, TraceHarvestedPower, s.Type)
	assert.Equal(t, "W", s.Unit)

	s = SensorFor("node-0", TraceTotalEnergy)
	assert.Equal(t, "node-0/TotalEnergyHarvested", s.ID)
	assert.Equal(t, "J", s.Unit)
}

func TestReading(t *testing.T) {
	ts := time.Date(2015, 1, 1, 9, 0, 0, 0, time.UTC)
	r := Reading{
		Timestamp: ts,
		SimTime:   15 * time.Second,
		SensorID:  "node-0/HarvestedPower",
		Type:      TraceHarvestedPower,
		Value:     0.0123,
		Unit:      "W",
	}

	assert.Equal(t, ts, r.Timestamp)
	assert.Equal(t, 15*time.Second, r.SimTime)
	assert.Equal(t, TraceHarvestedPower, r.Type)
	assert.InDelta(t, 0.0123, r.Value, 1e-9)
}
