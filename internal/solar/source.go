package solar

import (
	"math"

	"github.com/sixdouglas/suncalc"

	"sun_harvester/internal/model"
)

// Sample is the sun state seen by a panel at one instant. IncidentInsolation
// is in W/m².
type Sample struct {
	Coordinates        model.SunCoordinates `json:"coordinates"`
	IncidentInsolation float64              `json:"incident_insolation"`
}

// Source yields the sun position and insolation for a simulated date.
type Source interface {
	Sample(dt model.DateTime) Sample
}

// AlgorithmSource evaluates the PSA algorithm at every call.
type AlgorithmSource struct {
	Location      model.GeoLocation
	AvgInsolation float64
}

func (s AlgorithmSource) Sample(dt model.DateTime) Sample {
	c := Position(dt, s.Location.Latitude, s.Location.Longitude)
	return Sample{
		Coordinates:        c,
		IncidentInsolation: insolationAtElevation(c.ElevationDeg, s.AvgInsolation),
	}
}

// kWhPerDayToW converts the body's kWh-based insolation to W/m².
const kWhPerDayToW = 1000.0 / 3600.0

// BodySource reads positions from a shared per-day table.
type BodySource struct {
	Body *Body
}

func (s BodySource) Sample(dt model.DateTime) Sample {
	c, ins := s.Body.sample(dt)
	return Sample{
		Coordinates:        c,
		IncidentInsolation: ins * kWhPerDayToW,
	}
}

// SuncalcSource uses the suncalc library for the sun position and the same
// elevation scaling as AlgorithmSource for insolation.
type SuncalcSource struct {
	Location      model.GeoLocation
	AvgInsolation float64
}

func (s SuncalcSource) Sample(dt model.DateTime) Sample {
	pos := suncalc.GetPosition(dt.Time(), s.Location.Latitude, s.Location.Longitude)

	elevation := pos.Altitude / rad
	zenith := 90 - elevation
	if elevation < 0 {
		elevation = 0
	}
	// suncalc measures azimuth from south, westward positive.
	azimuth := math.Mod(pos.Azimuth/rad+180, 360)
	if azimuth < 0 {
		azimuth += 360
	}

	c := model.SunCoordinates{ZenithDeg: zenith, AzimuthDeg: azimuth, ElevationDeg: elevation}
	return Sample{
		Coordinates:        c,
		IncidentInsolation: insolationAtElevation(elevation, s.AvgInsolation),
	}
}
