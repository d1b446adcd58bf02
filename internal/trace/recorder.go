package trace

import (
	"sun_harvester/internal/model"
	"sun_harvester/internal/store"
)

// Recorder keeps traced writes as readings in a store.
type Recorder struct {
	store *store.Store
	clock Clock
}

func NewRecorder(s *store.Store, clock Clock) *Recorder {
	return &Recorder{store: s, clock: clock}
}

// Sink registers sensor with the store and returns a sink appending one
// reading per write, stamped with the simulated date and scheduler time.
func (r *Recorder) Sink(sensor model.Sensor, date DateFunc) Sink {
	r.store.AddSensor(sensor)
	return func(_, current float64) {
		r.store.Append(model.Reading{
			Timestamp: date().Time(),
			SimTime:   r.clock.Now(),
			SensorID:  sensor.ID,
			Type:      sensor.Type,
			Value:     current,
			Unit:      sensor.Unit,
		})
	}
}

// Fanout combines sinks into one.
func Fanout(sinks ...Sink) Sink {
	return func(previous, current float64) {
		for _, s := range sinks {
			if s != nil {
				s(previous, current)
			}
		}
	}
}
