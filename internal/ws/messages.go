package ws

import (
	"encoding/json"
	"time"

	"sun_harvester/internal/energy"
	"sun_harvester/internal/harvester"
	"sun_harvester/internal/model"
	"sun_harvester/internal/simulator"
)

// Envelope wraps all WebSocket messages with a type discriminator.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Client -> Server messages

type SetSpeedPayload struct {
	Speed float64 `json:"speed"`
}

// Server -> Client messages

type SimStatePayload struct {
	Time       string  `json:"time"`
	SimSeconds float64 `json:"sim_seconds"`
	Speed      float64 `json:"speed"`
	Running    bool    `json:"running"`
	Finished   bool    `json:"finished"`
}

type TraceSamplePayload struct {
	SensorID   string  `json:"sensor_id"`
	Type       string  `json:"type"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	Timestamp  string  `json:"timestamp"`
	SimSeconds float64 `json:"sim_seconds"`
}

type HarvesterSummaryPayload struct {
	ID           string  `json:"id"`
	State        string  `json:"state"`
	Variant      string  `json:"variant"`
	Date         string  `json:"date"`
	PowerW       float64 `json:"power_w"`
	TotalEnergyJ float64 `json:"total_energy_j"`
	ElevationDeg float64 `json:"elevation_deg"`
	AzimuthDeg   float64 `json:"azimuth_deg"`
	Ticks        uint64  `json:"ticks"`

	RemainingJ   float64 `json:"remaining_j"`
	LevelPercent float64 `json:"level_percent"`
	Depleted     bool    `json:"depleted"`
}

type SensorInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	Unit string `json:"unit"`
}

type TimeRangeInfo struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type DataLoadedPayload struct {
	Sensors    []SensorInfo  `json:"sensors"`
	Harvesters []string      `json:"harvesters"`
	TimeRange  TimeRangeInfo `json:"time_range"`
}

// Message type constants
const (
	// Client -> Server
	TypeSimStart    = "sim:start"
	TypeSimPause    = "sim:pause"
	TypeSimSetSpeed = "sim:set_speed"

	// Server -> Client
	TypeSimState         = "sim:state"
	TypeTraceSample      = "trace:sample"
	TypeHarvesterSummary = "harvester:summary"
	TypeDataLoaded       = "data:loaded"
)

func NewEnvelope(msgType string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}

// SimStateFromEngine stamps the engine state with the calendar time reached
// from start.
func SimStateFromEngine(s simulator.State, start time.Time) SimStatePayload {
	return SimStatePayload{
		Time:       start.Add(s.Now).Format(time.RFC3339),
		SimSeconds: s.Now.Seconds(),
		Speed:      s.Speed,
		Running:    s.Running,
		Finished:   s.Finished,
	}
}

func TraceSampleFromReading(r model.Reading) TraceSamplePayload {
	return TraceSamplePayload{
		SensorID:   r.SensorID,
		Type:       string(r.Type),
		Value:      r.Value,
		Unit:       r.Unit,
		Timestamp:  r.Timestamp.Format(time.RFC3339),
		SimSeconds: r.SimTime.Seconds(),
	}
}

func SummaryFromHarvester(s harvester.Snapshot, src energy.Summary) HarvesterSummaryPayload {
	return HarvesterSummaryPayload{
		ID:           s.ID,
		State:        s.State,
		Variant:      string(s.Variant),
		Date:         s.Date.String(),
		PowerW:       s.PowerW,
		TotalEnergyJ: s.TotalEnergyJ,
		ElevationDeg: s.Sample.Coordinates.ElevationDeg,
		AzimuthDeg:   s.Sample.Coordinates.AzimuthDeg,
		Ticks:        s.Ticks,
		RemainingJ:   src.RemainingJ,
		LevelPercent: src.LevelPercent,
		Depleted:     src.Depleted,
	}
}

func SensorInfoFromModel(sensors []model.Sensor) []SensorInfo {
	out := make([]SensorInfo, 0, len(sensors))
	for _, s := range sensors {
		out = append(out, SensorInfo{
			ID:   s.ID,
			Name: s.Name,
			Type: string(s.Type),
			Unit: s.Unit,
		})
	}
	return out
}
