// Package config loads a simulation setup from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"sun_harvester/internal/energy"
	"sun_harvester/internal/harvester"
	"sun_harvester/internal/model"
	"sun_harvester/internal/solar"
)

// Config is a validated simulation setup.
type Config struct {
	Duration   time.Duration
	Speed      float64
	StoreLimit int
	Listen     string

	Site       model.GeoLocation
	Body       solar.BodyConfig
	Source     energy.Config
	Harvesters []HarvesterGroup
}

// HarvesterGroup is Count harvesters sharing one configuration. Each gets
// its own energy source.
type HarvesterGroup struct {
	Name   string
	Count  int
	Config harvester.Config
}

// SharedBody reports whether any group reads the shared sun table.
func (c *Config) SharedBody() bool {
	for _, g := range c.Harvesters {
		if g.Config.Variant == harvester.VariantSharedBody {
			return true
		}
	}
	return false
}

// AttachBody sets body on every shared-body group.
func (c *Config) AttachBody(body *solar.Body) {
	for i := range c.Harvesters {
		if c.Harvesters[i].Config.Variant == harvester.VariantSharedBody {
			c.Harvesters[i].Config.SunBody = body
		}
	}
}

// FieldError names the offending key in the YAML document.
type FieldError struct {
	Path string
	Err  error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

type fileYAML struct {
	Simulation simulationYAML  `yaml:"simulation"`
	Site       siteYAML        `yaml:"site"`
	Source     sourceYAML      `yaml:"source"`
	Harvesters []harvesterYAML `yaml:"harvesters"`
	Server     serverYAML      `yaml:"server"`
}

type simulationYAML struct {
	Duration   time.Duration `yaml:"duration"`
	Speed      float64       `yaml:"speed"`
	StoreLimit int           `yaml:"store_limit"`
}

type siteYAML struct {
	Latitude      float64 `yaml:"latitude"`
	Longitude     float64 `yaml:"longitude"`
	Altitude      float64 `yaml:"altitude"`
	AvgInsolation float64 `yaml:"avg_insolation"`
}

type sourceYAML struct {
	InitialEnergyJ float64 `yaml:"initial_energy_j"`
	CapacityJ      float64 `yaml:"capacity_j"`
	LoadW          float64 `yaml:"load_w"`
	SupplyVoltageV float64 `yaml:"supply_voltage_v"`
}

type serverYAML struct {
	Listen string `yaml:"listen"`
}

type panelYAML struct {
	Tilt                float64 `yaml:"tilt"`
	Azimuth             float64 `yaml:"azimuth"`
	AreaM2              float64 `yaml:"area_m2"`
	CellEfficiency      float64 `yaml:"cell_efficiency"`
	ConverterEfficiency float64 `yaml:"converter_efficiency"`
	Diffuse             float64 `yaml:"diffuse"`
}

type harvesterYAML struct {
	Name           string        `yaml:"name"`
	Count          int           `yaml:"count"`
	Variant        string        `yaml:"variant"`
	UpdateInterval time.Duration `yaml:"update_interval"`
	StartAt        string        `yaml:"start_at"`
	Panel          panelYAML     `yaml:"panel"`
}

// UnmarshalYAML fills unset keys from the harvester defaults.
func (h *harvesterYAML) UnmarshalYAML(value *yaml.Node) error {
	d := harvester.DefaultConfig()
	*h = harvesterYAML{
		Count:          1,
		Variant:        string(d.Variant),
		UpdateInterval: d.UpdateInterval,
		StartAt:        d.StartDate.String(),
		Panel: panelYAML{
			Tilt:                d.Panel.TiltDeg,
			Azimuth:             d.Panel.AzimuthDeg,
			AreaM2:              d.Panel.AreaM2,
			CellEfficiency:      d.Panel.CellEfficiencyPct,
			ConverterEfficiency: d.Panel.ConverterEfficiencyPct,
			Diffuse:             d.Panel.DiffusePct,
		},
	}
	type plain harvesterYAML
	return value.Decode((*plain)(h))
}

func defaultFile() fileYAML {
	h := harvester.DefaultConfig()
	s := energy.DefaultConfig()
	return fileYAML{
		Simulation: simulationYAML{Duration: 24 * time.Hour, Speed: 3600},
		Site: siteYAML{
			Latitude:      h.Location.Latitude,
			Longitude:     h.Location.Longitude,
			Altitude:      h.Location.Altitude,
			AvgInsolation: h.AvgInsolation,
		},
		Source: sourceYAML{
			InitialEnergyJ: s.InitialEnergyJ,
			CapacityJ:      s.CapacityJ,
			LoadW:          s.LoadW,
			SupplyVoltageV: s.SupplyVoltageV,
		},
		Server: serverYAML{Listen: ":8080"},
	}
}

// Default returns the setup used when no file is given: one algorithm
// harvester with the reference configuration running for one day.
func Default() *Config {
	c, err := decode(defaultFile())
	if err != nil {
		panic(err)
	}
	c.Harvesters = []HarvesterGroup{{Name: "default", Count: 1, Config: harvester.DefaultConfig()}}
	return c
}

// Load reads and validates the YAML file at path.
func Load(path string, logger *zap.Logger) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config: %w", err)
	}
	defer f.Close()

	c, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if logger != nil {
		logger.Info("config loaded",
			zap.String("path", path),
			zap.Int("groups", len(c.Harvesters)),
			zap.Duration("duration", c.Duration),
		)
	}
	return c, nil
}

// Parse decodes a YAML document. Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	raw := defaultFile()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding yaml: %w", err)
	}

	c, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if len(c.Harvesters) == 0 {
		return nil, &FieldError{Path: "harvesters", Err: errors.New("at least one harvester is required")}
	}
	return c, nil
}

func decode(raw fileYAML) (*Config, error) {
	var errs []error

	if raw.Simulation.Duration <= 0 {
		errs = append(errs, &FieldError{Path: "simulation.duration", Err: fmt.Errorf("must be positive, got %s", raw.Simulation.Duration)})
	}
	if raw.Simulation.Speed <= 0 {
		errs = append(errs, &FieldError{Path: "simulation.speed", Err: fmt.Errorf("must be positive, got %g", raw.Simulation.Speed)})
	}

	site := model.GeoLocation{
		Latitude:  raw.Site.Latitude,
		Longitude: raw.Site.Longitude,
		Altitude:  raw.Site.Altitude,
	}
	if raw.Site.Latitude < -90 || raw.Site.Latitude > 90 {
		errs = append(errs, &FieldError{Path: "site.latitude", Err: fmt.Errorf("%g outside [-90, 90]", raw.Site.Latitude)})
	}
	if raw.Site.Longitude < -180 || raw.Site.Longitude > 180 {
		errs = append(errs, &FieldError{Path: "site.longitude", Err: fmt.Errorf("%g outside [-180, 180]", raw.Site.Longitude)})
	}
	if raw.Site.AvgInsolation < 0 {
		errs = append(errs, &FieldError{Path: "site.avg_insolation", Err: fmt.Errorf("must not be negative, got %g", raw.Site.AvgInsolation)})
	}
	body := solar.BodyConfig{Location: site, AvgInsolation: raw.Site.AvgInsolation}

	source := energy.Config{
		InitialEnergyJ: raw.Source.InitialEnergyJ,
		CapacityJ:      raw.Source.CapacityJ,
		LoadW:          raw.Source.LoadW,
		SupplyVoltageV: raw.Source.SupplyVoltageV,
	}
	if err := source.Validate(); err != nil {
		errs = append(errs, &FieldError{Path: "source", Err: err})
	}

	c := &Config{
		Duration:   raw.Simulation.Duration,
		Speed:      raw.Simulation.Speed,
		StoreLimit: raw.Simulation.StoreLimit,
		Listen:     raw.Server.Listen,
		Site:       site,
		Body:       body,
		Source:     source,
	}

	for i, h := range raw.Harvesters {
		prefix := fmt.Sprintf("harvesters[%d]", i)
		g, err := h.group(raw.Site)
		if err != nil {
			errs = append(errs, withPaths(prefix, err)...)
			continue
		}
		if g.Name == "" {
			g.Name = fmt.Sprintf("group%d", i)
		}
		c.Harvesters = append(c.Harvesters, g)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

func (h harvesterYAML) group(site siteYAML) (HarvesterGroup, error) {
	if h.Count < 1 {
		return HarvesterGroup{}, &FieldError{Path: "count", Err: fmt.Errorf("must be at least 1, got %d", h.Count)}
	}
	variant, err := harvester.ParseVariant(h.Variant)
	if err != nil {
		return HarvesterGroup{}, &FieldError{Path: "variant", Err: err}
	}

	b := harvester.NewBuilder().
		UpdateInterval(h.UpdateInterval).
		Location(site.Latitude, site.Longitude, site.Altitude).
		PanelTilt(h.Panel.Tilt).
		PanelAzimuth(h.Panel.Azimuth).
		PanelArea(h.Panel.AreaM2).
		CellEfficiency(h.Panel.CellEfficiency).
		ConverterEfficiency(h.Panel.ConverterEfficiency).
		DiffusePercentage(h.Panel.Diffuse).
		AvgInsolation(site.AvgInsolation).
		StartDate(h.StartAt)

	if variant == harvester.VariantSharedBody {
		// The body is created by the caller and attached after loading.
		cfg, err := b.Variant(harvester.VariantAlgorithm).Build()
		if err != nil {
			return HarvesterGroup{}, err
		}
		cfg.Variant = harvester.VariantSharedBody
		return HarvesterGroup{Name: h.Name, Count: h.Count, Config: cfg}, nil
	}

	cfg, err := b.Variant(variant).Build()
	if err != nil {
		return HarvesterGroup{}, err
	}
	return HarvesterGroup{Name: h.Name, Count: h.Count, Config: cfg}, nil
}

var optionPaths = map[harvester.Option]string{
	harvester.OptUpdateInterval:      "update_interval",
	harvester.OptLatitude:            "site.latitude",
	harvester.OptLongitude:           "site.longitude",
	harvester.OptAltitude:            "site.altitude",
	harvester.OptPanelTilt:           "panel.tilt",
	harvester.OptPanelAzimuth:        "panel.azimuth",
	harvester.OptPanelArea:           "panel.area_m2",
	harvester.OptCellEfficiency:      "panel.cell_efficiency",
	harvester.OptConverterEfficiency: "panel.converter_efficiency",
	harvester.OptDiffusePercentage:   "panel.diffuse",
	harvester.OptStartDate:           "start_at",
	harvester.OptAvgInsolation:       "site.avg_insolation",
	harvester.OptVariant:             "variant",
	harvester.OptSunBody:             "variant",
}

// withPaths flattens joined errors and rewrites harvester option errors into
// YAML key paths below prefix. Site errors are dropped here since decode
// reports them once for the whole file.
func withPaths(prefix string, err error) []error {
	if multi, ok := err.(interface{ Unwrap() []error }); ok {
		var out []error
		for _, e := range multi.Unwrap() {
			out = append(out, withPaths(prefix, e)...)
		}
		return out
	}

	var fe *FieldError
	if errors.As(err, &fe) {
		return []error{&FieldError{Path: prefix + "." + fe.Path, Err: fe.Err}}
	}
	var hfe *harvester.FieldError
	if errors.As(err, &hfe) {
		path, ok := optionPaths[hfe.Option]
		if !ok {
			path = strings.ToLower(string(hfe.Option))
		}
		if strings.HasPrefix(path, "site.") {
			return nil
		}
		return []error{&FieldError{Path: prefix + "." + path, Err: hfe.Err}}
	}
	return []error{fmt.Errorf("%s: %w", prefix, err)}
}
