package solar

import (
	"math"

	"sun_harvester/internal/model"
)

const (
	rad   = math.Pi / 180
	twoPi = 2 * math.Pi

	earthMeanRadiusKm  = 6371.01
	astronomicalUnitKm = 149597890

	// j2000 is the Julian Date of 2000-01-01 12:00 UT.
	j2000 = 2451545.0
)

// JulianDate returns the Julian Date of dt, computed with the integer day
// count used by the PSA algorithm.
func JulianDate(dt model.DateTime) float64 {
	aux1 := (dt.Month - 14) / 12
	aux2 := (1461*(dt.Year+4800+aux1))/4 +
		(367*(dt.Month-2-12*aux1))/12 -
		(3*((dt.Year+4900+aux1)/100))/4 +
		dt.Day - 32075
	return float64(aux2) - 0.5 + dt.DecimalHours()/24.0
}

// Position computes the apparent sun position seen from (latitude, longitude)
// at dt (UT) with the low precision PSA algorithm. The result is a pure
// function of its inputs. Elevation is clamped to zero below the horizon.
func Position(dt model.DateTime, latitude, longitude float64) model.SunCoordinates {
	hours := dt.DecimalHours()
	elapsed := JulianDate(dt) - j2000

	// Ecliptic coordinates.
	omega := 2.1429 - 0.0010394594*elapsed
	meanLongitude := 4.8950630 + 0.017202791698*elapsed
	meanAnomaly := 6.2400600 + 0.0172019699*elapsed
	eclipticLongitude := meanLongitude +
		0.03341607*math.Sin(meanAnomaly) +
		0.00034894*math.Sin(2*meanAnomaly) -
		0.0001134 -
		0.0000203*math.Sin(omega)
	eclipticObliquity := 0.4090928 - 6.2140e-9*elapsed + 0.0000396*math.Cos(omega)

	// Celestial coordinates.
	sinEclipticLongitude := math.Sin(eclipticLongitude)
	rightAscension := math.Atan2(math.Cos(eclipticObliquity)*sinEclipticLongitude, math.Cos(eclipticLongitude))
	if rightAscension < 0 {
		rightAscension += twoPi
	}
	declination := math.Asin(math.Sin(eclipticObliquity) * sinEclipticLongitude)

	// Local coordinates.
	gmst := 6.6974243242 + 0.0657098283*elapsed + hours
	lmst := (gmst*15 + longitude) * rad
	hourAngle := lmst - rightAscension
	latRad := latitude * rad
	cosLat := math.Cos(latRad)
	sinLat := math.Sin(latRad)
	cosHourAngle := math.Cos(hourAngle)

	zenith := math.Acos(clampUnit(cosLat*cosHourAngle*math.Cos(declination) + math.Sin(declination)*sinLat))
	azimuth := math.Atan2(-math.Sin(hourAngle), math.Tan(declination)*cosLat-sinLat*cosHourAngle)
	if azimuth < 0 {
		azimuth += twoPi
	}

	// Parallax correction.
	parallax := (earthMeanRadiusKm / astronomicalUnitKm) * math.Sin(zenith)
	zenithDeg := (zenith + parallax) / rad

	elevation := 90 - zenithDeg
	if elevation < 0 {
		elevation = 0
	}
	return model.SunCoordinates{
		ZenithDeg:    zenithDeg,
		AzimuthDeg:   azimuth / rad,
		ElevationDeg: elevation,
	}
}

// IncidentInsolation estimates the instantaneous insolation from a known
// daily average by scaling it with the sine of the sun elevation. It is zero
// when the sun is below the horizon.
func IncidentInsolation(dt model.DateTime, latitude, longitude, avgInsolation float64) float64 {
	return insolationAtElevation(Position(dt, latitude, longitude).ElevationDeg, avgInsolation)
}

func insolationAtElevation(elevationDeg, avgInsolation float64) float64 {
	if elevationDeg <= 0 {
		return 0
	}
	return avgInsolation * (math.Sin(elevationDeg*rad) / rad)
}

func clampUnit(x float64) float64 {
	return math.Max(-1, math.Min(1, x))
}
