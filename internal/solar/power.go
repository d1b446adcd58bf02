package solar

import (
	"math"

	"sun_harvester/internal/model"
)

// CosIncidence returns the cosine of the angle between the sun direction and
// the panel normal. Angles are in degrees, azimuths measured from north.
func CosIncidence(elevationDeg, sunAzimuthDeg, tiltDeg, panelAzimuthDeg float64) float64 {
	el := elevationDeg * rad
	tilt := tiltDeg * rad
	return math.Cos(el)*math.Sin(tilt)*math.Cos((panelAzimuthDeg-sunAzimuthDeg)*rad) +
		math.Sin(el)*math.Cos(tilt)
}

// PanelInsolation returns the insolation reaching the panel surface in W/m².
// The diffuse share reaches the panel regardless of orientation; the rest is
// direct light scaled by the incidence angle and never negative.
func PanelInsolation(panel model.PanelConfig, sun model.SunCoordinates, incident float64) float64 {
	if sun.ElevationDeg <= 0 {
		return 0
	}
	direct := incident * CosIncidence(sun.ElevationDeg, sun.AzimuthDeg, panel.TiltDeg, panel.AzimuthDeg)
	if direct < 0 {
		direct = 0
	}
	d := panel.DiffusePct / 100
	return d*incident + (1-d)*direct
}

// HarvestedPower returns the electrical output of the panel in watts.
func HarvestedPower(panel model.PanelConfig, sun model.SunCoordinates, incident float64) float64 {
	p := PanelInsolation(panel, sun, incident) *
		(panel.CellEfficiencyPct / 100) *
		(panel.ConverterEfficiencyPct / 100) *
		panel.AreaM2
	if p < 0 || math.IsNaN(p) {
		return 0
	}
	return p
}
