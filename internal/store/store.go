package store

import (
	"sort"
	"sync"
	"time"

	"sun_harvester/internal/model"
)

// Store holds traced readings in memory, indexed by series ID and kept
// sorted by simulated date.
type Store struct {
	mu       sync.RWMutex
	limit    int
	sensors  map[string]model.Sensor
	readings map[string][]model.Reading
}

// New returns a store keeping at most limit readings per series; the oldest
// readings are dropped first. A limit <= 0 keeps everything.
func New(limit int) *Store {
	return &Store{
		limit:    limit,
		sensors:  make(map[string]model.Sensor),
		readings: make(map[string][]model.Reading),
	}
}

// AddSensor registers a series.
func (s *Store) AddSensor(sensor model.Sensor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sensors[sensor.ID] = sensor
}

// Sensor returns a registered series.
func (s *Store) Sensor(id string) (model.Sensor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sensor, ok := s.sensors[id]
	return sensor, ok
}

// Append adds one reading. Readings normally arrive in simulated order, so
// this is an append; late readings are inserted in place.
func (s *Store) Append(r model.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.readings[r.SensorID]
	n := len(all)
	if n == 0 || !r.Timestamp.Before(all[n-1].Timestamp) {
		all = append(all, r)
	} else {
		idx := sort.Search(n, func(i int) bool {
			return all[i].Timestamp.After(r.Timestamp)
		})
		all = append(all, model.Reading{})
		copy(all[idx+1:], all[idx:])
		all[idx] = r
	}
	s.readings[r.SensorID] = s.trim(all)
}

// AddReadings adds a batch of readings, then sorts each affected series.
func (s *Store) AddReadings(readings []model.Reading) {
	if len(readings) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range readings {
		s.readings[r.SensorID] = append(s.readings[r.SensorID], r)
	}

	seen := make(map[string]bool)
	for _, r := range readings {
		if seen[r.SensorID] {
			continue
		}
		seen[r.SensorID] = true
		all := s.readings[r.SensorID]
		sort.SliceStable(all, func(i, j int) bool {
			return all[i].Timestamp.Before(all[j].Timestamp)
		})
		s.readings[r.SensorID] = s.trim(all)
	}
}

func (s *Store) trim(all []model.Reading) []model.Reading {
	if s.limit > 0 && len(all) > s.limit {
		return append(all[:0:0], all[len(all)-s.limit:]...)
	}
	return all
}

// Sensors returns all registered series sorted by ID.
func (s *Store) Sensors() []model.Sensor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sensors := make([]model.Sensor, 0, len(s.sensors))
	for _, sensor := range s.sensors {
		sensors = append(sensors, sensor)
	}
	sort.Slice(sensors, func(i, j int) bool { return sensors[i].ID < sensors[j].ID })
	return sensors
}

// ReadingCount returns the number of readings kept for a series.
func (s *Store) ReadingCount(sensorID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.readings[sensorID])
}

// Readings returns a copy of every reading of a series.
func (s *Store) Readings(sensorID string) []model.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.readings[sensorID]
	if len(all) == 0 {
		return nil
	}
	out := make([]model.Reading, len(all))
	copy(out, all)
	return out
}

// Latest returns the last reading of a series.
func (s *Store) Latest(sensorID string) (model.Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.readings[sensorID]
	if len(all) == 0 {
		return model.Reading{}, false
	}
	return all[len(all)-1], true
}

// TimeRange returns the simulated dates covered by a series.
func (s *Store) TimeRange(sensorID string) (model.TimeRange, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	readings := s.readings[sensorID]
	if len(readings) == 0 {
		return model.TimeRange{}, false
	}

	return model.TimeRange{
		Start: readings[0].Timestamp,
		End:   readings[len(readings)-1].Timestamp,
	}, true
}

// ReadingsInRange returns readings for a series between start (inclusive) and end (exclusive).
func (s *Store) ReadingsInRange(sensorID string, start, end time.Time) []model.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.readings[sensorID]
	if len(all) == 0 {
		return nil
	}

	startIdx := sort.Search(len(all), func(i int) bool {
		return !all[i].Timestamp.Before(start)
	})
	endIdx := sort.Search(len(all), func(i int) bool {
		return !all[i].Timestamp.Before(end)
	})

	if startIdx >= endIdx {
		return nil
	}

	result := make([]model.Reading, endIdx-startIdx)
	copy(result, all[startIdx:endIdx])
	return result
}

// ReadingAt returns the most recent reading at or before the given date.
func (s *Store) ReadingAt(sensorID string, t time.Time) (model.Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.readings[sensorID]
	if len(all) == 0 {
		return model.Reading{}, false
	}

	idx := sort.Search(len(all), func(i int) bool {
		return all[i].Timestamp.After(t)
	})

	if idx == 0 {
		return model.Reading{}, false
	}

	return all[idx-1], true
}

// Reset drops all readings but keeps the registered series.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings = make(map[string][]model.Reading)
}
