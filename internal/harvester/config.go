package harvester

import (
	"errors"
	"fmt"
	"math"
	"time"

	"sun_harvester/internal/model"
	"sun_harvester/internal/solar"
)

// Variant selects where a harvester gets the sun position from.
type Variant string

const (
	// VariantAlgorithm evaluates the solar position algorithm on every tick.
	VariantAlgorithm Variant = "algorithm"
	// VariantSharedBody reads a per-day table shared between harvesters.
	VariantSharedBody Variant = "shared_body"
	// VariantSuncalc uses the suncalc library.
	VariantSuncalc Variant = "suncalc"
)

// ParseVariant maps a configuration string to a Variant.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(s); v {
	case VariantAlgorithm, VariantSharedBody, VariantSuncalc:
		return v, nil
	case "":
		return VariantAlgorithm, nil
	default:
		return "", fmt.Errorf("unknown variant %q", s)
	}
}

// Option names one configurable field of a harvester.
type Option string

const (
	OptUpdateInterval      Option = "UpdateInterval"
	OptLatitude            Option = "Latitude"
	OptLongitude           Option = "Longitude"
	OptAltitude            Option = "Altitude"
	OptPanelTilt           Option = "PanelTilt"
	OptPanelAzimuth        Option = "PanelAzimuth"
	OptPanelArea           Option = "PanelArea"
	OptCellEfficiency      Option = "CellEfficiency"
	OptConverterEfficiency Option = "ConverterEfficiency"
	OptDiffusePercentage   Option = "DiffusePercentage"
	OptStartDate           Option = "StartDate"
	OptAvgInsolation       Option = "AvgInsolation"
	OptVariant             Option = "Variant"
	OptSunBody             Option = "SunBody"
)

// ErrMissingSunBody is returned when the shared body variant has no body.
var ErrMissingSunBody = errors.New("shared_body variant requires a sun body")

// FieldError reports an invalid value for one option.
type FieldError struct {
	Option Option
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("option %s: %v", e.Option, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

func fieldErr(opt Option, format string, args ...any) error {
	return &FieldError{Option: opt, Err: fmt.Errorf(format, args...)}
}

// Config is the validated construction-time configuration of a harvester.
type Config struct {
	UpdateInterval time.Duration     `json:"update_interval"`
	Location       model.GeoLocation `json:"location"`
	Panel          model.PanelConfig `json:"panel"`
	// AvgInsolation is the average daily insolation used by the algorithm
	// and suncalc variants; the shared body carries its own.
	AvgInsolation float64        `json:"avg_insolation"`
	StartDate     model.DateTime `json:"start_date"`
	Variant       Variant        `json:"variant"`
	SunBody       *solar.Body    `json:"-"`
}

// DefaultConfig returns the reference configuration: one-second ticks, a
// 1 cm² flat panel at 38.11N 15.661E and a start on 2015-01-01 09:00:00.
func DefaultConfig() Config {
	return Config{
		UpdateInterval: time.Second,
		Location:       model.GeoLocation{Latitude: 38.11, Longitude: 15.661, Altitude: 31},
		Panel: model.PanelConfig{
			TiltDeg:                0,
			AzimuthDeg:             0,
			AreaM2:                 1e-4,
			CellEfficiencyPct:      8,
			ConverterEfficiencyPct: 90,
			DiffusePct:             10,
		},
		AvgInsolation: 8.63,
		StartDate:     model.DateTime{Year: 2015, Month: 1, Day: 1, Hour: 9},
		Variant:       VariantAlgorithm,
	}
}

// Validate checks every option and returns all violations joined.
func (c Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if c.UpdateInterval <= 0 {
		add(fieldErr(OptUpdateInterval, "must be positive, got %s", c.UpdateInterval))
	}
	if !inRange(c.Location.Latitude, -90, 90) {
		add(fieldErr(OptLatitude, "%g outside [-90, 90]", c.Location.Latitude))
	}
	if !inRange(c.Location.Longitude, -180, 180) {
		add(fieldErr(OptLongitude, "%g outside [-180, 180]", c.Location.Longitude))
	}
	if math.IsNaN(c.Location.Altitude) {
		add(fieldErr(OptAltitude, "not a number"))
	}
	if !inRange(c.Panel.TiltDeg, 0, 180) {
		add(fieldErr(OptPanelTilt, "%g outside [0, 180]", c.Panel.TiltDeg))
	}
	if !inRange(c.Panel.AzimuthDeg, -360, 360) {
		add(fieldErr(OptPanelAzimuth, "%g outside [-360, 360]", c.Panel.AzimuthDeg))
	}
	if !(c.Panel.AreaM2 > 0) {
		add(fieldErr(OptPanelArea, "must be positive, got %g", c.Panel.AreaM2))
	}
	add(checkPercent(OptCellEfficiency, c.Panel.CellEfficiencyPct))
	add(checkPercent(OptConverterEfficiency, c.Panel.ConverterEfficiencyPct))
	add(checkPercent(OptDiffusePercentage, c.Panel.DiffusePct))
	if c.AvgInsolation < 0 || math.IsNaN(c.AvgInsolation) {
		add(fieldErr(OptAvgInsolation, "must not be negative, got %g", c.AvgInsolation))
	}
	if c.StartDate.IsZero() {
		add(fieldErr(OptStartDate, "not set"))
	} else if c.StartDate.Normalize() != c.StartDate {
		add(fieldErr(OptStartDate, "%v is not a calendar date", c.StartDate))
	}

	switch c.Variant {
	case VariantAlgorithm, VariantSuncalc:
	case VariantSharedBody:
		if c.SunBody == nil {
			add(&FieldError{Option: OptSunBody, Err: ErrMissingSunBody})
		}
	default:
		add(fieldErr(OptVariant, "unknown variant %q", c.Variant))
	}

	return errors.Join(errs...)
}

func checkPercent(opt Option, v float64) error {
	if !inRange(v, 0, 100) {
		return fieldErr(opt, "%g%% outside [0, 100]", v)
	}
	return nil
}

func inRange(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}

// Builder assembles a Config starting from DefaultConfig. Errors are
// collected and reported by Build.
type Builder struct {
	cfg  Config
	errs []error
}

func NewBuilder() *Builder {
	return &Builder{cfg: DefaultConfig()}
}

func (b *Builder) UpdateInterval(d time.Duration) *Builder {
	b.cfg.UpdateInterval = d
	return b
}

func (b *Builder) Location(latitude, longitude, altitude float64) *Builder {
	b.cfg.Location = model.GeoLocation{Latitude: latitude, Longitude: longitude, Altitude: altitude}
	return b
}

func (b *Builder) PanelTilt(deg float64) *Builder {
	b.cfg.Panel.TiltDeg = deg
	return b
}

func (b *Builder) PanelAzimuth(deg float64) *Builder {
	b.cfg.Panel.AzimuthDeg = deg
	return b
}

// PanelArea sets the panel area in square metres.
func (b *Builder) PanelArea(m2 float64) *Builder {
	b.cfg.Panel.AreaM2 = m2
	return b
}

func (b *Builder) CellEfficiency(pct float64) *Builder {
	b.cfg.Panel.CellEfficiencyPct = pct
	return b
}

func (b *Builder) ConverterEfficiency(pct float64) *Builder {
	b.cfg.Panel.ConverterEfficiencyPct = pct
	return b
}

func (b *Builder) DiffusePercentage(pct float64) *Builder {
	b.cfg.Panel.DiffusePct = pct
	return b
}

func (b *Builder) AvgInsolation(v float64) *Builder {
	b.cfg.AvgInsolation = v
	return b
}

// StartDate parses s as "YYYY-MM-DD HH:MM:SS".
func (b *Builder) StartDate(s string) *Builder {
	d, err := model.ParseDateTime(s)
	if err != nil {
		b.errs = append(b.errs, &FieldError{Option: OptStartDate, Err: err})
		return b
	}
	b.cfg.StartDate = d
	return b
}

func (b *Builder) StartDateTime(d model.DateTime) *Builder {
	b.cfg.StartDate = d
	return b
}

func (b *Builder) Variant(v Variant) *Builder {
	b.cfg.Variant = v
	return b
}

// SunBody selects the shared body variant backed by body.
func (b *Builder) SunBody(body *solar.Body) *Builder {
	b.cfg.SunBody = body
	b.cfg.Variant = VariantSharedBody
	return b
}

// Build validates and returns the assembled configuration.
func (b *Builder) Build() (Config, error) {
	errs := append([]error(nil), b.errs...)
	if err := b.cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return b.cfg, nil
}
