package ws

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"sun_harvester/internal/model"
	"sun_harvester/internal/simulator"
	"sun_harvester/internal/trace"
)

// Bridge implements simulator.Callback and forwards engine state and trace
// writes to the WebSocket hub.
type Bridge struct {
	hub    *Hub
	start  time.Time
	minGap time.Duration
	logger *zap.Logger

	mu   sync.Mutex
	last map[string]time.Duration
}

// NewBridge returns a bridge stamping simulation time relative to start.
// Trace samples of one series closer than minGap in simulation time are
// dropped.
func NewBridge(hub *Hub, start model.DateTime, minGap time.Duration, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		hub:    hub,
		start:  start.Time(),
		minGap: minGap,
		logger: logger.Named("bridge"),
		last:   make(map[string]time.Duration),
	}
}

func (b *Bridge) OnState(s simulator.State) {
	msg, err := NewEnvelope(TypeSimState, SimStateFromEngine(s, b.start))
	if err != nil {
		b.logger.Error("marshaling sim state", zap.Error(err))
		return
	}
	b.hub.Broadcast(msg)
}

// OnReading broadcasts one trace sample unless it follows the previous
// sample of the same series too closely.
func (b *Bridge) OnReading(r model.Reading) {
	b.mu.Lock()
	prev, seen := b.last[r.SensorID]
	if seen && r.SimTime-prev < b.minGap {
		b.mu.Unlock()
		return
	}
	b.last[r.SensorID] = r.SimTime
	b.mu.Unlock()

	msg, err := NewEnvelope(TypeTraceSample, TraceSampleFromReading(r))
	if err != nil {
		b.logger.Error("marshaling trace sample", zap.Error(err))
		return
	}
	b.hub.Broadcast(msg)
}

// TraceSink adapts OnReading to a trace sink for sensor.
func (b *Bridge) TraceSink(sensor model.Sensor, date trace.DateFunc, clock trace.Clock) trace.Sink {
	return func(_, current float64) {
		b.OnReading(model.Reading{
			Timestamp: date().Time(),
			SimTime:   clock.Now(),
			SensorID:  sensor.ID,
			Type:      sensor.Type,
			Value:     current,
			Unit:      sensor.Unit,
		})
	}
}

func (b *Bridge) OnSummary(p HarvesterSummaryPayload) {
	msg, err := NewEnvelope(TypeHarvesterSummary, p)
	if err != nil {
		b.logger.Error("marshaling harvester summary", zap.Error(err))
		return
	}
	b.hub.Broadcast(msg)
}
