package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"sun_harvester/internal/app"
	"sun_harvester/internal/archive"
	"sun_harvester/internal/energy"
	"sun_harvester/internal/harvester"
	"sun_harvester/internal/metrics"
	"sun_harvester/internal/model"
	"sun_harvester/internal/solar"
	"sun_harvester/internal/ws"
)

type server struct {
	sim     *app.Simulation
	hub     *ws.Hub
	bridge  *ws.Bridge
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func newServer(sim *app.Simulation, hub *ws.Hub, bridge *ws.Bridge, m *metrics.Metrics, logger *zap.Logger) *server {
	return &server{
		sim:     sim,
		hub:     hub,
		bridge:  bridge,
		metrics: m,
		logger:  logger.Named("http"),
	}
}

// attachBridge streams the power, energy and remaining energy traces of
// every harvester to WebSocket clients.
func attachBridge(bridge *ws.Bridge) func(app.Member) {
	return func(m app.Member) {
		h := m.Harvester
		sensors := m.Sensors()
		h.OnHarvestedPower(bridge.TraceSink(sensors[0], h.Date, m.Clock))
		h.OnTotalEnergyHarvested(bridge.TraceSink(sensors[1], h.Date, m.Clock))
		m.Source.OnRemainingEnergy(bridge.TraceSink(sensors[2], h.Date, m.Clock))
	}
}

// scheduleSummaries broadcasts a summary of every harvester each interval of
// simulation time.
func (s *server) scheduleSummaries(interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.sim.Every(interval, func() {
		for _, m := range s.sim.Members {
			s.bridge.OnSummary(ws.SummaryFromHarvester(m.Harvester.Snapshot(), m.Source.Summary()))
		}
	})
}

func (s *server) dataLoaded() ws.DataLoadedPayload {
	ids := make([]string, 0, len(s.sim.Members))
	for _, m := range s.sim.Members {
		ids = append(ids, m.Harvester.ID())
	}
	return ws.DataLoadedPayload{
		Sensors:    ws.SensorInfoFromModel(s.sim.Store.Sensors()),
		Harvesters: ids,
		TimeRange: ws.TimeRangeInfo{
			Start: app.StartDate(s.sim.Config).Time().Format(time.RFC3339),
			End:   s.sim.End().Time().Format(time.RFC3339),
		},
	}
}

func (s *server) setupHandler() http.Handler {
	api := mux.NewRouter()
	api.Handle("/api/state", s.instrument("state", s.handleState)).Methods(http.MethodGet)
	api.Handle("/api/harvesters", s.instrument("harvesters", s.handleHarvesters)).Methods(http.MethodGet)
	api.Handle("/api/harvesters/{id}", s.instrument("harvester", s.handleHarvester)).Methods(http.MethodGet)
	api.Handle("/api/sun", s.instrument("sun", s.handleSun)).Methods(http.MethodGet)
	api.Handle("/api/traces/{owner}/{trace}", s.instrument("traces", s.handleTraces)).Methods(http.MethodGet)
	api.Handle("/api/profile/{owner}/{trace}", s.instrument("profile", s.handleProfile)).Methods(http.MethodGet)

	r := mux.NewRouter()
	r.Handle("/health", s.instrument("health", s.handleHealth)).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler())
	// The upgrade needs the raw connection, so /ws skips gzip and metrics.
	r.Handle("/ws", ws.NewHandler(s.hub, s.sim.Engine, s.bridge, s.dataLoaded, s.logger))
	r.PathPrefix("/api/").Handler(gziphandler.GzipHandler(api))

	return handlers.LoggingHandler(os.Stdout, r)
}

func (s *server) instrument(route string, fn http.HandlerFunc) http.Handler {
	return s.metrics.WrapHandler(route, fn)
}

// Run serves HTTP on addr until ctx is canceled, then shuts down gracefully.
func (s *server) Run(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     s.setupHandler(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		s.logger.Info("starting server", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		s.sim.Engine.Pause()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// archive saves everything recorded so far into the SQLite file at path.
func (s *server) archive(path string) error {
	a, err := archive.Open(path, s.logger)
	if err != nil {
		return err
	}
	_, err = a.SaveStore(s.sim.Store)
	return errors.Join(err, a.Close())
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func (s *server) handleState(w http.ResponseWriter, r *http.Request) {
	start := app.StartDate(s.sim.Config).Time()
	s.writeResponse(w, r, ws.SimStateFromEngine(s.sim.Engine.State(), start))
}

func (s *server) handleHarvesters(w http.ResponseWriter, r *http.Request) {
	out := make([]ws.HarvesterSummaryPayload, 0, len(s.sim.Members))
	for _, m := range s.sim.Members {
		out = append(out, ws.SummaryFromHarvester(m.Harvester.Snapshot(), m.Source.Summary()))
	}
	s.writeResponse(w, r, out)
}

type harvesterDetail struct {
	Group     string             `json:"group"`
	Harvester harvester.Snapshot `json:"harvester"`
	Source    energy.Summary     `json:"source"`
	Sensors   []ws.SensorInfo    `json:"sensors"`
}

func (s *server) handleHarvester(w http.ResponseWriter, r *http.Request) {
	m, ok := s.sim.Member(mux.Vars(r)["id"])
	if !ok {
		writeJSONError(w, "unknown harvester", http.StatusNotFound)
		return
	}
	s.writeResponse(w, r, harvesterDetail{
		Group:     m.Group,
		Harvester: m.Harvester.Snapshot(),
		Source:    m.Source.Summary(),
		Sensors:   ws.SensorInfoFromModel(m.Sensors()),
	})
}

type sunResponse struct {
	Date           string               `json:"date"`
	Location       model.GeoLocation    `json:"location"`
	Coordinates    model.SunCoordinates `json:"coordinates"`
	InsolationWm2  float64              `json:"insolation_w_m2"`
	Day            *solar.DayStats      `json:"day,omitempty"`
	SharedSunTable bool                 `json:"shared_sun_table"`
}

// handleSun reports the sun position at the site for ?date=, defaulting to
// the simulated date of the first harvester.
func (s *server) handleSun(w http.ResponseWriter, r *http.Request) {
	var date model.DateTime
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := model.ParseDateTime(v)
		if err != nil {
			writeJSONError(w, fmt.Sprintf("invalid date: %v", err), http.StatusBadRequest)
			return
		}
		date = d
	} else if len(s.sim.Members) > 0 {
		date = s.sim.Members[0].Harvester.Date()
	} else {
		date = app.StartDate(s.sim.Config)
	}

	site := s.sim.Config.Site
	resp := sunResponse{
		Date:     date.String(),
		Location: site,
	}
	// With a shared table, report what the shared-body harvesters see.
	if s.sim.Body != nil {
		sample := solar.BodySource{Body: s.sim.Body}.Sample(date)
		stats := s.sim.Body.StatsFor(date)
		resp.Coordinates = sample.Coordinates
		resp.InsolationWm2 = sample.IncidentInsolation
		resp.Day = &stats
		resp.SharedSunTable = true
	} else {
		resp.Coordinates = solar.Position(date, site.Latitude, site.Longitude)
		resp.InsolationWm2 = solar.IncidentInsolation(date, site.Latitude, site.Longitude, s.sim.Config.Body.AvgInsolation)
	}
	s.writeResponse(w, r, resp)
}

func (s *server) sensorFromVars(r *http.Request) (model.Sensor, bool) {
	vars := mux.Vars(r)
	return s.sim.Store.Sensor(vars["owner"] + "/" + vars["trace"])
}

// handleTraces returns the readings of one series. Optional start and end
// (RFC3339) bound the simulated date, end exclusive; at returns the reading
// in effect at that date.
func (s *server) handleTraces(w http.ResponseWriter, r *http.Request) {
	sensor, ok := s.sensorFromVars(r)
	if !ok {
		writeJSONError(w, "unknown series", http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	if v := q.Get("at"); v != "" {
		at, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeJSONError(w, "invalid at: "+err.Error(), http.StatusBadRequest)
			return
		}
		reading, ok := s.sim.Store.ReadingAt(sensor.ID, at)
		if !ok {
			writeJSONError(w, "no reading before "+v, http.StatusNotFound)
			return
		}
		s.writeResponse(w, r, ws.TraceSampleFromReading(reading))
		return
	}

	var readings []model.Reading
	if q.Get("start") != "" || q.Get("end") != "" {
		tr, ok := s.sim.Store.TimeRange(sensor.ID)
		if !ok {
			s.writeResponse(w, r, []ws.TraceSamplePayload{})
			return
		}
		start, end := tr.Start, tr.End.Add(time.Second)
		for name, dst := range map[string]*time.Time{"start": &start, "end": &end} {
			if v := q.Get(name); v != "" {
				t, err := time.Parse(time.RFC3339, v)
				if err != nil {
					writeJSONError(w, fmt.Sprintf("invalid %s: %v", name, err), http.StatusBadRequest)
					return
				}
				*dst = t
			}
		}
		readings = s.sim.Store.ReadingsInRange(sensor.ID, start, end)
	} else {
		readings = s.sim.Store.Readings(sensor.ID)
	}

	out := make([]ws.TraceSamplePayload, 0, len(readings))
	for _, reading := range readings {
		out = append(out, ws.TraceSampleFromReading(reading))
	}
	s.writeResponse(w, r, out)
}

func (s *server) handleProfile(w http.ResponseWriter, r *http.Request) {
	sensor, ok := s.sensorFromVars(r)
	if !ok {
		writeJSONError(w, "unknown series", http.StatusNotFound)
		return
	}
	s.writeResponse(w, r, solar.BuildDailyProfile(s.sim.Store.Readings(sensor.ID)))
}

// writeResponse encodes v as JSON, or as MessagePack with ?format=msgpack.
// Both use the json field names.
func (s *server) writeResponse(w http.ResponseWriter, r *http.Request, v any) {
	var err error
	if r.URL.Query().Get("format") == "msgpack" {
		w.Header().Set("Content-Type", "application/x-msgpack")
		enc := msgpack.NewEncoder(w)
		enc.SetCustomStructTag("json")
		err = enc.Encode(v)
	} else {
		w.Header().Set("Content-Type", "application/json")
		err = json.NewEncoder(w).Encode(v)
	}
	if err != nil {
		s.logger.Warn("failed to write response", zap.Error(err))
	}
}

func writeJSONError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg})
}
