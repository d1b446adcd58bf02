package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sun_harvester/internal/model"
)

func makeReadings(sensorID string, values []float64, startTime time.Time, interval time.Duration) []model.Reading {
	readings := make([]model.Reading, len(values))
	for i, v := range values {
		readings[i] = model.Reading{
			Timestamp: startTime.Add(time.Duration(i) * interval),
			SimTime:   time.Duration(i) * interval,
			SensorID:  sensorID,
			Type:      model.TraceHarvestedPower,
			Value:     v,
			Unit:      "W",
		}
	}
	return readings
}

var (
	sensorID  = "node-0/HarvestedPower"
	startTime = time.Date(2015, 1, 1, 9, 0, 0, 0, time.UTC)
	hour      = time.Hour
)

func TestStore_AddAndQuery(t *testing.T) {
	s := New(0)
	s.AddReadings(makeReadings(sensorID, []float64{1, 2, 3, 4, 5}, startTime, hour))

	assert.Equal(t, 5, s.ReadingCount(sensorID))
	assert.Equal(t, 0, s.ReadingCount("nonexistent"))
	assert.Len(t, s.Readings(sensorID), 5)
	assert.Nil(t, s.Readings("nonexistent"))
}

func TestStore_AppendInOrderAndLate(t *testing.T) {
	s := New(0)
	for _, r := range makeReadings(sensorID, []float64{1, 2, 3}, startTime, hour) {
		s.Append(r)
	}
	s.Append(model.Reading{Timestamp: startTime.Add(90 * time.Minute), SensorID: sensorID, Value: 2.5})

	all := s.Readings(sensorID)
	require.Len(t, all, 4)
	assert.Equal(t, []float64{1, 2, 2.5, 3}, []float64{all[0].Value, all[1].Value, all[2].Value, all[3].Value})

	latest, ok := s.Latest(sensorID)
	require.True(t, ok)
	assert.Equal(t, 3.0, latest.Value)

	_, ok = s.Latest("nonexistent")
	assert.False(t, ok)
}

func TestStore_Limit(t *testing.T) {
	s := New(3)
	for _, r := range makeReadings(sensorID, []float64{1, 2, 3, 4, 5}, startTime, hour) {
		s.Append(r)
	}

	all := s.Readings(sensorID)
	require.Len(t, all, 3)
	assert.Equal(t, 3.0, all[0].Value)
	assert.Equal(t, 5.0, all[2].Value)

	s.AddReadings(makeReadings(sensorID, []float64{6, 7}, startTime.Add(10*hour), hour))
	assert.Equal(t, 3, s.ReadingCount(sensorID))
}

func TestStore_TimeRange(t *testing.T) {
	s := New(0)
	s.AddReadings(makeReadings(sensorID, []float64{1, 2, 3}, startTime, hour))

	tr, ok := s.TimeRange(sensorID)
	require.True(t, ok)
	assert.Equal(t, startTime, tr.Start)
	assert.Equal(t, startTime.Add(2*hour), tr.End)

	_, ok = s.TimeRange("nonexistent")
	assert.False(t, ok)
}

func TestStore_ReadingsInRange(t *testing.T) {
	s := New(0)
	s.AddReadings(makeReadings(sensorID, []float64{1, 2, 3, 4, 5}, startTime, hour))

	result := s.ReadingsInRange(sensorID, startTime.Add(hour), startTime.Add(3*hour))
	require.Len(t, result, 2)
	assert.InDelta(t, 2.0, result[0].Value, 0.001)
	assert.InDelta(t, 3.0, result[1].Value, 0.001)

	result = s.ReadingsInRange(sensorID, startTime.Add(10*hour), startTime.Add(11*hour))
	assert.Empty(t, result)

	result = s.ReadingsInRange("nonexistent", startTime, startTime.Add(hour))
	assert.Empty(t, result)
}

func TestStore_ReadingAt(t *testing.T) {
	s := New(0)
	s.AddReadings(makeReadings(sensorID, []float64{1, 2, 3}, startTime, hour))

	r, ok := s.ReadingAt(sensorID, startTime.Add(hour))
	require.True(t, ok)
	assert.InDelta(t, 2.0, r.Value, 0.001)

	// Between readings returns the most recent before
	r, ok = s.ReadingAt(sensorID, startTime.Add(90*time.Minute))
	require.True(t, ok)
	assert.InDelta(t, 2.0, r.Value, 0.001)

	_, ok = s.ReadingAt(sensorID, startTime.Add(-time.Hour))
	assert.False(t, ok)
}

func TestStore_Sensors(t *testing.T) {
	s := New(0)
	s.AddSensor(model.SensorFor("node-1", model.TraceTotalEnergy))
	s.AddSensor(model.SensorFor("node-0", model.TraceHarvestedPower))

	sensors := s.Sensors()
	require.Len(t, sensors, 2)
	assert.Equal(t, "node-0/HarvestedPower", sensors[0].ID)
	assert.Equal(t, "node-1/TotalEnergyHarvested", sensors[1].ID)

	got, ok := s.Sensor("node-0/HarvestedPower")
	require.True(t, ok)
	assert.Equal(t, "W", got.Unit)
}

func TestStore_AddReadingsUnsorted(t *testing.T) {
	s := New(0)

	readings := []model.Reading{
		{Timestamp: startTime.Add(2 * hour), SensorID: sensorID, Value: 3},
		{Timestamp: startTime, SensorID: sensorID, Value: 1},
		{Timestamp: startTime.Add(hour), SensorID: sensorID, Value: 2},
	}
	s.AddReadings(readings)

	result := s.ReadingsInRange(sensorID, startTime, startTime.Add(3*hour))
	require.Len(t, result, 3)
	assert.InDelta(t, 1.0, result[0].Value, 0.001)
	assert.InDelta(t, 2.0, result[1].Value, 0.001)
	assert.InDelta(t, 3.0, result[2].Value, 0.001)
}

func TestStore_Reset(t *testing.T) {
	s := New(0)
	s.AddSensor(model.SensorFor("node-0", model.TraceHarvestedPower))
	s.AddReadings(makeReadings(sensorID, []float64{1, 2}, startTime, hour))

	s.Reset()
	assert.Equal(t, 0, s.ReadingCount(sensorID))
	assert.Len(t, s.Sensors(), 1)
}
