package solar

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"sun_harvester/internal/model"
)

// DailyProfile holds the hourly shape of a traced power series.
type DailyProfile struct {
	// HourlyMean is the average value per hour of day [0-23].
	HourlyMean [24]float64 `json:"hourly_mean"`
	// HourlyFactor is HourlyMean normalised so the peak hour is 1.0.
	HourlyFactor [24]float64 `json:"hourly_factor"`
	PeakHour     int         `json:"peak_hour"`
	PeakW        float64     `json:"peak_w"`
	// Peaks is the number of separate local maxima in the shape.
	Peaks int `json:"peaks"`
}

// BuildDailyProfile averages readings per hour of their simulated date.
// Readings from several days fold onto the same 24 hours.
func BuildDailyProfile(readings []model.Reading) DailyProfile {
	var p DailyProfile
	if len(readings) == 0 {
		return p
	}

	var hourSum [24]float64
	var hourCount [24]int
	for _, r := range readings {
		h := r.Timestamp.Hour()
		hourSum[h] += r.Value
		hourCount[h]++
	}

	for h := 0; h < 24; h++ {
		if hourCount[h] > 0 {
			p.HourlyMean[h] = hourSum[h] / float64(hourCount[h])
		}
	}

	p.PeakHour = floats.MaxIdx(p.HourlyMean[:])
	p.PeakW = p.HourlyMean[p.PeakHour]
	if p.PeakW > 0 {
		p.HourlyFactor = p.HourlyMean
		floats.Scale(1/p.PeakW, p.HourlyFactor[:])
	}
	p.Peaks = countPeaks(p.HourlyMean)
	return p
}

// PowerAt returns the interpolated mean value for the given fractional hour.
func (p *DailyProfile) PowerAt(hour float64) float64 {
	v := interpolateProfile(p.HourlyMean, hour)
	if v < 0 {
		return 0
	}
	return v
}

// interpolateProfile returns linearly interpolated factor for a fractional hour.
func interpolateProfile(factors [24]float64, hour float64) float64 {
	// Wrap to [0, 24)
	hour = math.Mod(hour, 24)
	if hour < 0 {
		hour += 24
	}

	lo := int(math.Floor(hour)) % 24
	hi := (lo + 1) % 24
	frac := hour - math.Floor(hour)

	return factors[lo]*(1-frac) + factors[hi]*frac
}

// countPeaks counts positive local maxima. Plateaus count once and the
// series is padded with zeros at both ends.
func countPeaks(v [24]float64) int {
	peaks := 0
	rising := false
	prev := 0.0
	for _, x := range append(v[:], 0) {
		switch {
		case x > prev:
			rising = true
		case x < prev:
			if rising && prev > 0 {
				peaks++
			}
			rising = false
		}
		prev = x
	}
	return peaks
}
