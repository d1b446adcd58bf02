package model

import "fmt"

// GeoLocation is a point on the Earth's surface. Altitude is in metres.
type GeoLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
}

func (g GeoLocation) Validate() error {
	if g.Latitude < -90 || g.Latitude > 90 {
		return fmt.Errorf("latitude %g outside [-90, 90]", g.Latitude)
	}
	if g.Longitude < -180 || g.Longitude > 180 {
		return fmt.Errorf("longitude %g outside [-180, 180]", g.Longitude)
	}
	return nil
}

// PanelConfig describes the geometry and efficiencies of one solar panel.
// Efficiencies and the diffuse share are percentages, area is in square metres.
type PanelConfig struct {
	TiltDeg                float64 `json:"tilt_deg"`
	AzimuthDeg             float64 `json:"azimuth_deg"`
	AreaM2                 float64 `json:"area_m2"`
	CellEfficiencyPct      float64 `json:"cell_efficiency_pct"`
	ConverterEfficiencyPct float64 `json:"converter_efficiency_pct"`
	DiffusePct             float64 `json:"diffuse_pct"`
}

// SunCoordinates is the apparent sun position. ElevationDeg is never negative.
type SunCoordinates struct {
	ZenithDeg    float64 `json:"zenith_deg"`
	AzimuthDeg   float64 `json:"azimuth_deg"`
	ElevationDeg float64 `json:"elevation_deg"`
}

// AboveHorizon reports whether the sun is up.
func (c SunCoordinates) AboveHorizon() bool {
	return c.ElevationDeg > 0
}
