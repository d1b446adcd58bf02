package harvester

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sun_harvester/internal/model"
	"sun_harvester/internal/solar"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, time.Second, cfg.UpdateInterval)
	assert.Equal(t, 31.0, cfg.Location.Altitude)
	assert.Equal(t, 8.0, cfg.Panel.CellEfficiencyPct)
	assert.Equal(t, 90.0, cfg.Panel.ConverterEfficiencyPct)
	assert.Equal(t, 10.0, cfg.Panel.DiffusePct)
	assert.Equal(t, 1e-4, cfg.Panel.AreaM2)
	assert.Equal(t, "2015-01-01 09:00:00", cfg.StartDate.String())
	assert.Equal(t, VariantAlgorithm, cfg.Variant)
}

func TestBuilder(t *testing.T) {
	cfg, err := NewBuilder().
		UpdateInterval(16*time.Second).
		Location(45, 9, 120).
		PanelTilt(30).
		PanelAzimuth(180).
		PanelArea(0.5).
		CellEfficiency(18).
		ConverterEfficiency(95).
		DiffusePercentage(15).
		AvgInsolation(5).
		StartDate("2004-06-21 00:00:00").
		Variant(VariantSuncalc).
		Build()
	require.NoError(t, err)

	assert.Equal(t, 16*time.Second, cfg.UpdateInterval)
	assert.Equal(t, model.GeoLocation{Latitude: 45, Longitude: 9, Altitude: 120}, cfg.Location)
	assert.Equal(t, model.PanelConfig{
		TiltDeg: 30, AzimuthDeg: 180, AreaM2: 0.5,
		CellEfficiencyPct: 18, ConverterEfficiencyPct: 95, DiffusePct: 15,
	}, cfg.Panel)
	assert.Equal(t, 5.0, cfg.AvgInsolation)
	assert.Equal(t, "2004-06-21 00:00:00", cfg.StartDate.String())
	assert.Equal(t, VariantSuncalc, cfg.Variant)
}

func TestBuilder_FieldErrors(t *testing.T) {
	tests := []struct {
		name  string
		build func(b *Builder) *Builder
		opt   Option
	}{
		{"zero interval", func(b *Builder) *Builder { return b.UpdateInterval(0) }, OptUpdateInterval},
		{"latitude", func(b *Builder) *Builder { return b.Location(91, 0, 0) }, OptLatitude},
		{"longitude", func(b *Builder) *Builder { return b.Location(0, 200, 0) }, OptLongitude},
		{"tilt", func(b *Builder) *Builder { return b.PanelTilt(-5) }, OptPanelTilt},
		{"area", func(b *Builder) *Builder { return b.PanelArea(0) }, OptPanelArea},
		{"cell efficiency", func(b *Builder) *Builder { return b.CellEfficiency(101) }, OptCellEfficiency},
		{"converter efficiency", func(b *Builder) *Builder { return b.ConverterEfficiency(-1) }, OptConverterEfficiency},
		{"diffuse", func(b *Builder) *Builder { return b.DiffusePercentage(150) }, OptDiffusePercentage},
		{"insolation", func(b *Builder) *Builder { return b.AvgInsolation(-2) }, OptAvgInsolation},
		{"malformed date", func(b *Builder) *Builder { return b.StartDate("21/06/2004") }, OptStartDate},
		{"unnormalised date", func(b *Builder) *Builder {
			return b.StartDateTime(model.DateTime{Year: 2015, Month: 2, Day: 30})
		}, OptStartDate},
		{"variant", func(b *Builder) *Builder { return b.Variant("moon") }, OptVariant},
		{"missing body", func(b *Builder) *Builder { return b.Variant(VariantSharedBody) }, OptSunBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build(NewBuilder()).Build()
			require.Error(t, err)

			var fe *FieldError
			require.True(t, errors.As(err, &fe), "error %v is not a FieldError", err)
			assert.Equal(t, tt.opt, fe.Option)
			assert.Contains(t, err.Error(), string(tt.opt))
		})
	}
}

func TestBuilder_CollectsAllErrors(t *testing.T) {
	_, err := NewBuilder().PanelArea(-1).CellEfficiency(200).StartDate("nope").Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), string(OptPanelArea))
	assert.Contains(t, err.Error(), string(OptCellEfficiency))
	assert.Contains(t, err.Error(), string(OptStartDate))
}

func TestBuilder_SunBodySelectsVariant(t *testing.T) {
	body, err := solar.NewBody(solar.DefaultBodyConfig(), nil)
	require.NoError(t, err)

	cfg, err := NewBuilder().SunBody(body).Build()
	require.NoError(t, err)
	assert.Equal(t, VariantSharedBody, cfg.Variant)
	assert.Same(t, body, cfg.SunBody)
}

func TestMissingSunBodyIsSentinel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Variant = VariantSharedBody
	_, err := New(cfg, nil, nil)
	assert.ErrorIs(t, err, ErrMissingSunBody)
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("shared_body")
	require.NoError(t, err)
	assert.Equal(t, VariantSharedBody, v)

	v, err = ParseVariant("")
	require.NoError(t, err)
	assert.Equal(t, VariantAlgorithm, v)

	_, err = ParseVariant("psa")
	assert.Error(t, err)
}
