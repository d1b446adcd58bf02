package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"sun_harvester/internal/app"
	"sun_harvester/internal/archive"
	"sun_harvester/internal/config"
	"sun_harvester/internal/energy"
	"sun_harvester/internal/harvester"
	"sun_harvester/internal/model"
	"sun_harvester/internal/store"
	"sun_harvester/internal/trace"
)

type format int

const (
	formatCSV format = 1 << iota
	formatASCII
)

func parseFormat(s string) (format, error) {
	switch s {
	case "csv":
		return formatCSV, nil
	case "ascii":
		return formatASCII, nil
	case "both":
		return formatCSV | formatASCII, nil
	}
	return 0, fmt.Errorf("unknown trace format %q", s)
}

// exporter opens the trace files of every harvester as it is installed.
type exporter struct {
	dir    string
	format format

	ascii   *trace.ASCIIWriter
	csvs    []*trace.CSVWriter
	files   []io.Closer
	counter map[string]int
	err     error
}

func newExporter(dir string, f format) (*exporter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &exporter{dir: dir, format: f, counter: make(map[string]int)}, nil
}

func (e *exporter) create(name string) (*os.File, error) {
	f, err := os.Create(filepath.Join(e.dir, name))
	if err != nil {
		return nil, err
	}
	e.files = append(e.files, f)
	return f, nil
}

// attach is an app.Options.Attach hook. Errors are kept and reported by
// close since Attach cannot fail.
func (e *exporter) attach(m app.Member) {
	if e.err != nil {
		return
	}
	n := e.counter[m.Group]
	e.counter[m.Group]++

	h := m.Harvester
	traced := []struct {
		sensor model.Sensor
		attach func(trace.Sink)
	}{
		{model.SensorFor(h.ID(), model.TraceHarvestedPower), h.OnHarvestedPower},
		{model.SensorFor(h.ID(), model.TraceTotalEnergy), h.OnTotalEnergyHarvested},
		{model.SensorFor(h.ID(), model.TraceRemainingEnergy), m.Source.OnRemainingEnergy},
	}

	if e.format&formatASCII != 0 && e.ascii == nil {
		f, err := e.create("trace.log")
		if err != nil {
			e.err = err
			return
		}
		e.ascii = trace.NewASCIIWriter(f, m.Clock)
	}

	for _, tr := range traced {
		name := model.TraceSourceName[tr.sensor.Type]
		if e.format&formatCSV != 0 {
			f, err := e.create(fmt.Sprintf("%s-%d-%s.csv", m.Group, n, name))
			if err != nil {
				e.err = err
				return
			}
			w, err := trace.NewCSVWriter(f, name, h.Date)
			if err != nil {
				e.err = err
				return
			}
			e.csvs = append(e.csvs, w)
			tr.attach(w.Sink())
		}
		if e.ascii != nil {
			tr.attach(e.ascii.Sink(fmt.Sprintf("%s-%d/%s", m.Group, n, name), tr.sensor.Unit))
		}
	}
}

// close flushes and closes every file and returns the first error seen.
func (e *exporter) close() error {
	errs := []error{e.err}
	for _, w := range e.csvs {
		errs = append(errs, w.Flush())
	}
	if e.ascii != nil {
		errs = append(errs, e.ascii.Err())
	}
	for _, f := range e.files {
		errs = append(errs, f.Close())
	}
	return errors.Join(errs...)
}

type summaryRow struct {
	Group     string             `json:"group"`
	Harvester harvester.Snapshot `json:"harvester"`
	Source    energy.Summary     `json:"source"`
}

func writeSummary(path string, sim *app.Simulation) error {
	rows := make([]summaryRow, 0, len(sim.Members))
	for _, m := range sim.Members {
		rows = append(rows, summaryRow{Group: m.Group, Harvester: m.Harvester.Snapshot(), Source: m.Source.Summary()})
	}
	b, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// run simulates cfg to the end and leaves the traces and a summary.json in
// dir. When sqlitePath is set, every recorded reading is archived there too.
func run(cfg *config.Config, dir string, f format, sqlitePath string, logger *zap.Logger) error {
	exp, err := newExporter(dir, f)
	if err != nil {
		return err
	}

	sim, err := app.New(cfg, app.Options{Attach: exp.attach}, logger)
	if err != nil {
		return errors.Join(err, exp.close())
	}
	defer sim.Dispose()

	sim.Run()
	if err := exp.close(); err != nil {
		return fmt.Errorf("writing traces: %w", err)
	}

	for _, m := range sim.Members {
		logger.Info("harvester finished",
			zap.String("group", m.Group),
			zap.String("id", m.Harvester.ID()),
			zap.Float64("energy_j", m.Harvester.TotalEnergy()),
			zap.Float64("remaining_j", m.Source.RemainingEnergy()),
		)
	}
	if sqlitePath != "" {
		if err := archiveStore(sqlitePath, sim.Store, logger); err != nil {
			return err
		}
	}
	return writeSummary(filepath.Join(dir, "summary.json"), sim)
}

func archiveStore(path string, s *store.Store, logger *zap.Logger) error {
	a, err := archive.Open(path, logger)
	if err != nil {
		return err
	}
	_, err = a.SaveStore(s)
	return errors.Join(err, a.Close())
}
