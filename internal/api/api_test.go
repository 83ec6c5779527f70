package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/flightlog/internal/airports"
	"github.com/yegors/flightlog/internal/crew"
	"github.com/yegors/flightlog/internal/flight"
	"github.com/yegors/flightlog/internal/flighttime"
	"github.com/yegors/flightlog/internal/importer"
	"github.com/yegors/flightlog/internal/roster"
	"github.com/yegors/flightlog/internal/storage/sqlite"
	"github.com/yegors/flightlog/pkg/logger"
)

const rosterDoc = `KLM Cityhopper B.V.
Crew Roster
Period: 01MAR21 - 31MAR21 (all times UTC)

MON 01MAR21
  KL1234 AMS 0655 BLL 0820 E75 PH-EXA
`

type testAPI struct {
	flights *sqlite.FlightStorage
	handler http.Handler
}

func newTestAPI(t *testing.T, origins ...string) testAPI {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "logbook.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	flights, err := sqlite.NewFlightStorage(db, logger.NewNop())
	require.NoError(t, err)
	aircraft, err := sqlite.NewAircraftStorage(db, logger.NewNop())
	require.NoError(t, err)

	reg := airports.Builtin()
	calc := flighttime.NewCalculator(reg, aircraft, flighttime.Options{})
	imp := importer.New(flights, aircraft, calc, importer.Options{Parse: roster.Options{Airports: reg}}, logger.NewNop())

	router := NewRouter(flights, imp, reg, origins, logger.NewNop())
	return testAPI{flights: flights, handler: router.Routes()}
}

func (a testAPI) do(t *testing.T, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func (a testAPI) addFlight(t *testing.T, day int) int64 {
	t.Helper()
	out := time.Date(2021, 3, day, 7, 0, 0, 0, time.UTC)
	id, err := a.flights.SaveFlight(context.Background(), flight.Flight{
		Orig: "EHAM", Dest: "EGGD", TimeOut: out, TimeIn: out.Add(75 * time.Minute),
		FlightNumber: "KL1053", Registration: "PH-EXB", LandingDay: 1,
	})
	require.NoError(t, err)
	return id
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	rec := newTestAPI(t).do(t, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "ok", decode[map[string]any](t, rec)["status"])
}

func TestFlights(t *testing.T) {
	a := newTestAPI(t)
	a.addFlight(t, 1)
	id := a.addFlight(t, 5)

	rec := a.do(t, http.MethodGet, "/api/v1/flights?from=2021-03-03&to=2021-03-31", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]flight.Flight](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	rec = a.do(t, http.MethodGet, "/api/v1/flights?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/v1/flights/2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "KL1053", decode[flight.Flight](t, rec).FlightNumber)

	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/api/v1/flights/99", nil).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodGet, "/api/v1/flights/abc", nil).Code)

	assert.Equal(t, http.StatusNoContent, a.do(t, http.MethodDelete, "/api/v1/flights/2", nil).Code)
	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodDelete, "/api/v1/flights/2", nil).Code)

	rec = a.do(t, http.MethodGet, "/api/v1/totals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	totals := decode[sqlite.Totals](t, rec)
	assert.Equal(t, 1, totals.Flights)
	assert.Equal(t, 75, totals.TotalTime)
}

func TestImport(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/v1/imports?name=march.txt&dry_run=true", []byte(rosterDoc))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	outcome := decode[importer.Outcome](t, rec)
	assert.Equal(t, "march.txt", outcome.Name)
	assert.Equal(t, 1, outcome.Plan.Summary().New)
	assert.Nil(t, outcome.Applied)

	rec = a.do(t, http.MethodPost, "/api/v1/imports", []byte(rosterDoc))
	require.Equal(t, http.StatusOK, rec.Code)
	outcome = decode[importer.Outcome](t, rec)
	require.NotNil(t, outcome.Applied)
	assert.Len(t, outcome.Applied.InsertedIDs, 1)

	rec = a.do(t, http.MethodPost, "/api/v1/imports", []byte("not a roster"))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, decode[importer.Outcome](t, rec).Error, "unsupported document")

	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/api/v1/imports", nil).Code)
}

func TestCrewTime(t *testing.T) {
	a := newTestAPI(t)

	body, err := json.Marshal(map[string]any{
		"crew":  crew.Augmented(3, true, true),
		"total": 600,
	})
	require.NoError(t, err)
	rec := a.do(t, http.MethodPost, "/api/v1/crew-time", body)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[crewTimeResponse](t, rec)
	assert.Equal(t, 420, resp.Minutes)
	assert.Equal(t, crew.Augmented(3, true, true).Encode(), resp.Encoded)

	// encoded descriptors work too, and PIC logs everything
	rec = a.do(t, http.MethodPost, "/api/v1/crew-time",
		[]byte(`{"encoded":`+jsonInt(resp.Encoded)+`,"total":600,"pic":true}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 600, decode[crewTimeResponse](t, rec).Minutes)

	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/api/v1/crew-time", []byte(`{"crew":{"size":40},"total":60}`)).Code)
	assert.Equal(t, http.StatusBadRequest, a.do(t, http.MethodPost, "/api/v1/crew-time", []byte(`{`)).Code)
}

func jsonInt(v int) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestAirport(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodGet, "/api/v1/airports/AMS", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "EHAM", decode[airports.Airport](t, rec).ICAO)

	assert.Equal(t, http.StatusNotFound, a.do(t, http.MethodGet, "/api/v1/airports/ZZZZ", nil).Code)
}

func TestCORS(t *testing.T) {
	a := newTestAPI(t, "http://localhost:3000")

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/flights", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json"))
}
