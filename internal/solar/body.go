package solar

import (
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"sun_harvester/internal/model"
)

// BodyConfig configures a shared sun body.
type BodyConfig struct {
	Location model.GeoLocation
	// AvgInsolation is the average daily insolation in kWh/m²/day.
	AvgInsolation float64
}

// DefaultBodyConfig returns the reference site used by the examples and tests.
func DefaultBodyConfig() BodyConfig {
	return BodyConfig{
		Location:      model.GeoLocation{Latitude: 38.11, Longitude: 15.661, Altitude: 31},
		AvgInsolation: 8.63,
	}
}

// DayStats holds the values derived from one day's elevation table. Seconds
// are counted from midnight UT; they are -1 on a day without daylight.
type DayStats struct {
	Day             model.DateTime `json:"day"`
	Sunrise         int            `json:"sunrise"`
	Sunset          int            `json:"sunset"`
	SolarNoon       int            `json:"solar_noon"`
	MidpointNoon    int            `json:"midpoint_noon"`
	PeakSecond      int            `json:"peak_second"`
	DaylightSeconds int            `json:"daylight_seconds"`
	AvgSinElevation float64        `json:"avg_sin_elevation"`
	// IncidentInsolation is the daily average insolation normalised by the
	// average sine of the elevation over the daylight seconds.
	IncidentInsolation float64 `json:"incident_insolation"`
}

// HasDaylight reports whether the sun rose at all on the day.
func (s DayStats) HasDaylight() bool {
	return s.Sunrise >= 0
}

type dayTable struct {
	elevation [model.SecondsPerDay]float64
	azimuth   [model.SecondsPerDay]float64
	zenith    [model.SecondsPerDay]float64
}

// MaxCachedDays bounds the number of day tables a body keeps.
const MaxCachedDays = 8

type cachedDay struct {
	table *dayTable
	stats DayStats
	used  atomic.Uint64
}

// Body is a cache of sun elevation, azimuth and zenith at one-second
// resolution, keyed by calendar day and shared by every harvester at the
// same site. Harvesters on different days each hit their own table; the
// least recently used day is dropped beyond MaxCachedDays.
type Body struct {
	mu      sync.RWMutex
	cfg     BodyConfig
	days    map[model.DateTime]*cachedDay
	current *cachedDay
	clock   atomic.Uint64
	builds  atomic.Uint64
	refs    int
	logger  *zap.Logger
}

func NewBody(cfg BodyConfig, logger *zap.Logger) (*Body, error) {
	if err := cfg.Location.Validate(); err != nil {
		return nil, fmt.Errorf("sun body: %w", err)
	}
	if cfg.AvgInsolation < 0 || math.IsNaN(cfg.AvgInsolation) {
		return nil, fmt.Errorf("sun body: average insolation %g must not be negative", cfg.AvgInsolation)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Body{
		cfg:    cfg,
		days:   make(map[model.DateTime]*cachedDay),
		logger: logger.Named("sunbody"),
	}, nil
}

func (b *Body) Config() BodyConfig {
	return b.cfg
}

// Acquire registers one more user of the body.
func (b *Body) Acquire() *Body {
	b.mu.Lock()
	b.refs++
	b.mu.Unlock()
	return b
}

// Release drops one user. The tables are freed with the last one.
// It returns the remaining number of users.
func (b *Body) Release() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.refs > 0 {
		b.refs--
	}
	if b.refs == 0 {
		clear(b.days)
		b.current = nil
	}
	return b.refs
}

// Start builds the table for the day of date unconditionally and makes it
// the current day.
func (b *Body) Start(date model.DateTime) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.current = b.computeLocked(date)
}

// Recompute makes the day of date the current one, building its table when
// it is not cached. It reports whether a build happened.
func (b *Body) Recompute(date model.DateTime) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d, ok := b.days[date.StartOfDay()]; ok {
		b.current = d
		b.touch(d)
		return false
	}
	b.current = b.computeLocked(date)
	return true
}

// Builds returns how many day tables have been computed so far.
func (b *Body) Builds() uint64 {
	return b.builds.Load()
}

// CachedDays returns the number of day tables held.
func (b *Body) CachedDays() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.days)
}

// Coordinates returns the tabulated sun position at dt, building the table
// of dt's day first if it is not cached.
func (b *Body) Coordinates(dt model.DateTime) model.SunCoordinates {
	c, _ := b.sample(dt)
	return c
}

// IncidentInsolation returns the day's incident insolation for dt, or 0 on a
// day without daylight.
func (b *Body) IncidentInsolation(dt model.DateTime) float64 {
	_, ins := b.sample(dt)
	return ins
}

// Stats returns the derived values of the current day, which is the one
// last started, recomputed or built by a lookup.
func (b *Body) Stats() (DayStats, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.current == nil {
		return DayStats{}, false
	}
	return b.current.stats, true
}

// StatsFor returns the derived values of dt's day, building its table if
// needed. The current day is left unchanged unless a build happens.
func (b *Body) StatsFor(dt model.DateTime) DayStats {
	return b.day(dt).stats
}

// ElevationAt returns the tabulated elevation at second sec of the current day.
func (b *Body) ElevationAt(sec int) (float64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkIndex(sec); err != nil {
		return 0, err
	}
	return b.current.table.elevation[sec], nil
}

// AzimuthAt returns the tabulated azimuth at second sec of the current day.
func (b *Body) AzimuthAt(sec int) (float64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkIndex(sec); err != nil {
		return 0, err
	}
	return b.current.table.azimuth[sec], nil
}

func (b *Body) checkIndex(sec int) error {
	if b.current == nil {
		return fmt.Errorf("sun body: no day loaded")
	}
	if sec < 0 || sec >= model.SecondsPerDay {
		return fmt.Errorf("sun body: second %d outside [0, %d)", sec, model.SecondsPerDay)
	}
	return nil
}

// day returns the cached entry for dt's day, building it when missing.
// Entries are never mutated after insertion, so the result may be read
// without the lock.
func (b *Body) day(dt model.DateTime) *cachedDay {
	key := dt.StartOfDay()
	b.mu.RLock()
	d, ok := b.days[key]
	b.mu.RUnlock()
	if ok {
		b.touch(d)
		return d
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if d, ok := b.days[key]; ok {
		b.touch(d)
		return d
	}
	d = b.computeLocked(dt)
	b.current = d
	return d
}

func (b *Body) touch(d *cachedDay) {
	d.used.Store(b.clock.Add(1))
}

func (b *Body) sample(dt model.DateTime) (model.SunCoordinates, float64) {
	d := b.day(dt)
	sec := dt.SecondOfDay()
	return model.SunCoordinates{
		ZenithDeg:    d.table.zenith[sec],
		AzimuthDeg:   d.table.azimuth[sec],
		ElevationDeg: d.table.elevation[sec],
	}, d.stats.IncidentInsolation
}

// computeLocked builds and caches the table for the day of date, evicting
// the least recently used day when full. Must be called with mu held.
func (b *Body) computeLocked(date model.DateTime) *cachedDay {
	day := date.StartOfDay()
	lat, lon := b.cfg.Location.Latitude, b.cfg.Location.Longitude

	t := new(dayTable)
	sines := make([]float64, 0, model.SecondsPerDay/2)
	for i := 0; i < model.SecondsPerDay; i++ {
		at := model.DateTime{
			Year: day.Year, Month: day.Month, Day: day.Day,
			Hour: i / 3600, Minute: (i % 3600) / 60, Second: i % 60,
		}
		c := Position(at, lat, lon)
		t.elevation[i] = c.ElevationDeg
		t.azimuth[i] = c.AzimuthDeg
		t.zenith[i] = c.ZenithDeg
		if c.ElevationDeg > 0 {
			sines = append(sines, math.Sin(c.ElevationDeg*rad))
		}
	}

	if _, ok := b.days[day]; !ok && len(b.days) >= MaxCachedDays {
		b.evictLocked()
	}
	d := &cachedDay{table: t, stats: deriveStats(day, t, sines, b.cfg.AvgInsolation)}
	b.touch(d)
	b.days[day] = d
	b.builds.Add(1)

	b.logger.Debug("sun table computed",
		zap.Stringer("day", day),
		zap.Int("sunrise", d.stats.Sunrise),
		zap.Int("sunset", d.stats.Sunset),
		zap.Int("solar_noon", d.stats.SolarNoon),
		zap.Float64("incident_insolation", d.stats.IncidentInsolation),
		zap.Int("cached_days", len(b.days)),
	)
	return d
}

func (b *Body) evictLocked() {
	var (
		oldest model.DateTime
		lowest uint64
		found  bool
	)
	for k, d := range b.days {
		if d == b.current {
			continue
		}
		if u := d.used.Load(); !found || u < lowest {
			oldest, lowest, found = k, u, true
		}
	}
	if found {
		delete(b.days, oldest)
	}
}

func deriveStats(day model.DateTime, t *dayTable, sines []float64, avgInsolation float64) DayStats {
	s := DayStats{
		Day:          day,
		Sunrise:      -1,
		Sunset:       -1,
		SolarNoon:    -1,
		MidpointNoon: -1,
		PeakSecond:   -1,
	}
	if len(sines) == 0 {
		return s
	}

	for i := 0; i < model.SecondsPerDay; i++ {
		if t.elevation[i] > 0 {
			s.Sunrise = i
			break
		}
	}
	for i := model.SecondsPerDay - 1; i >= 0; i-- {
		if t.elevation[i] > 0 {
			s.Sunset = i
			break
		}
	}

	// Noon is sunrise plus the number of seconds the sun kept rising,
	// the sunrise second included.
	s.SolarNoon = s.Sunrise
	for i := max(s.Sunrise, 1); i <= s.Sunset; i++ {
		if t.elevation[i] > t.elevation[i-1] {
			s.SolarNoon++
		}
	}
	s.MidpointNoon = (s.Sunrise + s.Sunset) / 2
	s.PeakSecond = floats.MaxIdx(t.elevation[:])
	s.DaylightSeconds = s.Sunset - s.Sunrise

	s.AvgSinElevation = stat.Mean(sines, nil)
	if s.AvgSinElevation > 0 {
		s.IncidentInsolation = avgInsolation * 360 / s.AvgSinElevation
	}
	return s
}
