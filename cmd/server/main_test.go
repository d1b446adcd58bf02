package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap/zaptest"

	"sun_harvester/internal/app"
	"sun_harvester/internal/archive"
	"sun_harvester/internal/config"
	"sun_harvester/internal/metrics"
	"sun_harvester/internal/solar"
	"sun_harvester/internal/ws"
)

const testConfig = `
simulation:
  duration: 2h
  speed: 60
harvesters:
  - name: roof
    start_at: "2015-06-21 09:00:00"
`

func newTestServer(t *testing.T) (*server, http.Handler) {
	return newTestServerWith(t, testConfig)
}

func newTestServerWith(t *testing.T, yml string) (*server, http.Handler) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	cfg, err := config.Parse(strings.NewReader(yml))
	require.NoError(t, err)

	hub := ws.NewHub(logger)
	bridge := ws.NewBridge(hub, app.StartDate(cfg), time.Minute, logger)
	m := metrics.New()
	sim, err := app.New(cfg, app.Options{Callback: bridge, Metrics: m, Attach: attachBridge(bridge)}, logger)
	require.NoError(t, err)
	t.Cleanup(sim.Dispose)
	sim.Prepare()

	srv := newServer(sim, hub, bridge, m, logger)
	return srv, srv.setupHandler()
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	_, h := newTestServer(t)
	rec := get(t, h, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())
}

func TestHarvesters(t *testing.T) {
	srv, h := newTestServer(t)
	srv.sim.Engine.Step(time.Minute)

	rec := get(t, h, "/api/harvesters")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]ws.HarvesterSummaryPayload](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, "active", list[0].State)
	assert.Equal(t, "2015-06-21 09:01:01", list[0].Date)
	assert.Greater(t, list[0].PowerW, 0.0)

	id := srv.sim.Members[0].Harvester.ID()
	rec = get(t, h, "/api/harvesters/"+id)
	require.Equal(t, http.StatusOK, rec.Code)
	detail := decode[harvesterDetail](t, rec)
	assert.Equal(t, "roof", detail.Group)
	assert.Equal(t, id, detail.Harvester.ID)
	assert.Len(t, detail.Sensors, 5)
	assert.InDelta(t, detail.Source.InitialJ+detail.Harvester.TotalEnergyJ, detail.Source.RemainingJ, 1e-12)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/harvesters/nope").Code)
}

func TestHarvesters_Msgpack(t *testing.T) {
	srv, h := newTestServer(t)
	srv.sim.Engine.Step(time.Minute)

	rec := get(t, h, "/api/harvesters?format=msgpack")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-msgpack", rec.Header().Get("Content-Type"))

	var list []ws.HarvesterSummaryPayload
	dec := msgpack.NewDecoder(rec.Body)
	dec.SetCustomStructTag("json")
	require.NoError(t, dec.Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, srv.sim.Members[0].Harvester.ID(), list[0].ID)
	assert.Equal(t, uint64(61), list[0].Ticks)
}

func TestSun(t *testing.T) {
	_, h := newTestServer(t)

	rec := get(t, h, "/api/sun?date="+url.QueryEscape("2015-06-21 11:00:00"))
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[sunResponse](t, rec)
	assert.Equal(t, "2015-06-21 11:00:00", resp.Date)
	assert.InDelta(t, 75, resp.Coordinates.ElevationDeg, 1)
	assert.Greater(t, resp.InsolationWm2, 0.0)
	assert.False(t, resp.SharedSunTable)
	assert.Nil(t, resp.Day)

	rec = get(t, h, "/api/sun?date="+url.QueryEscape("2015-06-21 23:00:00"))
	resp = decode[sunResponse](t, rec)
	assert.Zero(t, resp.Coordinates.ElevationDeg)
	assert.Zero(t, resp.InsolationWm2)

	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/sun?date=tomorrow").Code)

	// Without a date, the harvester's simulated date is used.
	resp = decode[sunResponse](t, get(t, h, "/api/sun"))
	assert.Equal(t, "2015-06-21 09:00:01", resp.Date)
}

func TestSun_SharedTable(t *testing.T) {
	srv, h := newTestServerWith(t, `
simulation:
  duration: 2h
harvesters:
  - name: roof
    variant: shared_body
    start_at: "2015-06-21 09:00:00"
`)
	srv.sim.Engine.Step(2 * time.Hour)
	m := srv.sim.Members[0]

	rec := get(t, h, "/api/sun?date="+url.QueryEscape("2015-06-21 11:00:00"))
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[sunResponse](t, rec)
	assert.True(t, resp.SharedSunTable)
	require.NotNil(t, resp.Day)
	assert.Equal(t, "2015-06-21 00:00:00", resp.Day.Day.String())

	// The last tick sampled 11:00:00, then the date moved on.
	require.Equal(t, "2015-06-21 11:00:01", m.Harvester.Date().String())
	assert.InDelta(t, m.Harvester.LastSample().IncidentInsolation, resp.InsolationWm2, 1e-9)
	assert.Equal(t, m.Harvester.LastSample().Coordinates, resp.Coordinates)

	// Another day is reported from its own table.
	resp = decode[sunResponse](t, get(t, h, "/api/sun?date="+url.QueryEscape("2015-12-21 11:00:00")))
	assert.Equal(t, 12, resp.Day.Day.Month)
	assert.Greater(t, resp.Coordinates.ZenithDeg, 0.0)
}

func TestTraces(t *testing.T) {
	srv, h := newTestServer(t)
	srv.sim.Engine.Step(10 * time.Minute)
	id := srv.sim.Members[0].Harvester.ID()

	rec := get(t, h, "/api/traces/"+id+"/HarvestedPower")
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[[]ws.TraceSamplePayload](t, rec)
	require.Len(t, all, 601)
	assert.Equal(t, "2015-06-21T09:00:00Z", all[0].Timestamp)
	assert.Equal(t, "W", all[0].Unit)

	rec = get(t, h, "/api/traces/"+id+"/HarvestedPower?start=2015-06-21T09:01:00Z&end=2015-06-21T09:02:00Z")
	require.Equal(t, http.StatusOK, rec.Code)
	window := decode[[]ws.TraceSamplePayload](t, rec)
	require.Len(t, window, 60)
	assert.Equal(t, "2015-06-21T09:01:00Z", window[0].Timestamp)
	assert.Equal(t, "2015-06-21T09:01:59Z", window[59].Timestamp)

	rec = get(t, h, "/api/traces/"+id+"/TotalEnergyHarvested?at=2015-06-21T09:05:30Z")
	require.Equal(t, http.StatusOK, rec.Code)
	at := decode[ws.TraceSamplePayload](t, rec)
	assert.Equal(t, "2015-06-21T09:05:30Z", at.Timestamp)
	assert.Greater(t, at.Value, 0.0)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/traces/"+id+"/TotalEnergyHarvested?at=2015-06-20T00:00:00Z").Code)
	assert.Equal(t, http.StatusBadRequest, get(t, h, "/api/traces/"+id+"/HarvestedPower?start=yesterday").Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/traces/"+id+"/Voltage").Code)
}

func TestTraces_Gzip(t *testing.T) {
	srv, h := newTestServer(t)
	srv.sim.Engine.Step(10 * time.Minute)
	id := srv.sim.Members[0].Harvester.ID()

	req := httptest.NewRequest(http.MethodGet, "/api/traces/"+id+"/HarvestedPower", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
}

func TestProfile(t *testing.T) {
	srv, h := newTestServer(t)
	srv.sim.Engine.Step(2*time.Hour - time.Second)
	id := srv.sim.Members[0].Harvester.ID()

	rec := get(t, h, "/api/profile/"+id+"/HarvestedPower")
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[solar.DailyProfile](t, rec)
	assert.Equal(t, 10, p.PeakHour)
	assert.Greater(t, p.PeakW, 0.0)
	assert.Zero(t, p.HourlyMean[3])

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/profile/nope/HarvestedPower").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, h := newTestServer(t)
	srv.sim.Engine.Step(time.Minute)
	get(t, h, "/health")

	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "sun_harvester_harvested_power_watts")
	assert.Contains(t, body, "sun_harvester_harvester_ticks_total")
	assert.Contains(t, body, `http_requests_total{route="health",status="200"} 1`)
}

func TestState(t *testing.T) {
	srv, h := newTestServer(t)
	srv.sim.Engine.Step(30 * time.Second)

	st := decode[ws.SimStatePayload](t, get(t, h, "/api/state"))
	assert.Equal(t, 30.0, st.SimSeconds)
	assert.Equal(t, 60.0, st.Speed)
	assert.Equal(t, "2015-06-21T09:00:30Z", st.Time)
	assert.False(t, st.Running)
}

func readEnvelope(t *testing.T, conn *websocket.Conn) ws.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var env ws.Envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	return env
}

func TestWebSocket(t *testing.T) {
	srv, h := newTestServer(t)
	srv.scheduleSummaries(time.Minute)
	ts := httptest.NewServer(h)
	defer ts.Close()

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	env := readEnvelope(t, conn)
	require.Equal(t, ws.TypeDataLoaded, env.Type)
	var loaded ws.DataLoadedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &loaded))
	assert.Equal(t, []string{srv.sim.Members[0].Harvester.ID()}, loaded.Harvesters)
	assert.Len(t, loaded.Sensors, 5)
	assert.Equal(t, "2015-06-21T09:00:00Z", loaded.TimeRange.Start)
	assert.Equal(t, "2015-06-21T11:00:00Z", loaded.TimeRange.End)

	assert.Equal(t, ws.TypeSimState, readEnvelope(t, conn).Type)

	// Wait for the hub to register the client before stepping.
	require.Eventually(t, func() bool { return srv.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	srv.sim.Engine.Step(time.Minute)

	seen := map[string]bool{}
	for !seen[ws.TypeHarvesterSummary] || !seen[ws.TypeTraceSample] {
		seen[readEnvelope(t, conn).Type] = true
	}
}

func TestRun_Shutdown(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, "127.0.0.1:0") }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestArchiveOnShutdown(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.sim.Engine.Step(time.Minute)
	path := filepath.Join(t.TempDir(), "traces.db")

	require.NoError(t, srv.archive(path))

	a, err := archive.Open(path, nil)
	require.NoError(t, err)
	defer a.Close()
	sensors, err := a.Sensors()
	require.NoError(t, err)
	assert.Len(t, sensors, 5)
}
