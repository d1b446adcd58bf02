package model

import "time"

type TraceType string

const (
	TraceHarvestedPower  TraceType = "harvested_power"
	TraceTotalEnergy     TraceType = "total_energy_harvested"
	TraceRemainingEnergy TraceType = "remaining_energy"
	TraceSunElevation    TraceType = "sun_elevation"
	TraceSunAzimuth      TraceType = "sun_azimuth"
)

// TraceSourceName maps trace types to the attribute names used in trace files
// and websocket messages.
var TraceSourceName = map[TraceType]string{
	TraceHarvestedPower:  "HarvestedPower",
	TraceTotalEnergy:     "TotalEnergyHarvested",
	TraceRemainingEnergy: "RemainingEnergy",
	TraceSunElevation:    "SunElevation",
	TraceSunAzimuth:      "SunAzimuth",
}

// SourceNameToTraceType is the reverse of TraceSourceName.
var SourceNameToTraceType map[string]TraceType

func init() {
	SourceNameToTraceType = make(map[string]TraceType, len(TraceSourceName))
	for tt, name := range TraceSourceName {
		SourceNameToTraceType[name] = tt
	}
}

// TraceInfo holds display name and unit for a trace type.
type TraceInfo struct {
	Name string
	Unit string
}

// TraceCatalog maps every known TraceType to its display name and unit.
var TraceCatalog = map[TraceType]TraceInfo{
	TraceHarvestedPower:  {Name: "Harvested Power", Unit: "W"},
	TraceTotalEnergy:     {Name: "Total Energy Harvested", Unit: "J"},
	TraceRemainingEnergy: {Name: "Remaining Energy", Unit: "J"},
	TraceSunElevation:    {Name: "Sun Elevation", Unit: "deg"},
	TraceSunAzimuth:      {Name: "Sun Azimuth", Unit: "deg"},
}

// Reading is one traced value. Timestamp is the simulated wall-clock date of
// the write, SimTime the scheduler time it happened at.
type Reading struct {
	Timestamp time.Time
	SimTime   time.Duration
	SensorID  string
	Type      TraceType
	Value     float64
	Unit      string
}

// Sensor identifies one traced series, e.g. the harvested power of one harvester.
type Sensor struct {
	ID   string
	Name string
	Type TraceType
	Unit string
}

// SensorFor builds the series descriptor for a trace type of one component.
func SensorFor(owner string, tt TraceType) Sensor {
	info := TraceCatalog[tt]
	return Sensor{
		ID:   owner + "/" + TraceSourceName[tt],
		Name: info.Name,
		Type: tt,
		Unit: info.Unit,
	}
}

type TimeRange struct {
	Start time.Time
	End   time.Time
}
