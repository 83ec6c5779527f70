package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yegors/flightlog/internal/airports"
	"github.com/yegors/flightlog/internal/flighttime"
	"github.com/yegors/flightlog/internal/reconcile"
	"github.com/yegors/flightlog/internal/roster"
	"github.com/yegors/flightlog/internal/storage/sqlite"
	"github.com/yegors/flightlog/pkg/logger"
)

const rosterDoc = `KLM Cityhopper B.V.
Crew Roster
Period: 01MAR21 - 31MAR21 (all times UTC)

MON 01MAR21
  KL1234 AMS 0655 BLL 0820 E75 PH-EXA
  KL1235 BLL 0900 AMS 1025 E75 PH-EXA
`

const monthlyDoc = `KLM CITYHOPPER     MONTHLY OVERVIEW
Crew member: DOE J 12345
Period: 01-03-2021 - 31-03-2021
DATE       FLIGHT  FROM TO   OFF   ON    REG     TYPE BLOCK
01-03-2021 KL1234  AMS  BLL  06:58 08:17 PH-EXA  E75  01:19
`

type fixture struct {
	flights  *sqlite.FlightStorage
	aircraft *sqlite.AircraftStorage
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "logbook.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	flights, err := sqlite.NewFlightStorage(db, logger.NewNop())
	require.NoError(t, err)
	aircraft, err := sqlite.NewAircraftStorage(db, logger.NewNop())
	require.NoError(t, err)
	require.NoError(t, aircraft.SaveType(context.Background(), sqlite.AircraftType{Name: "E75", MultiPilot: true, MultiEngine: true}))
	return fixture{flights: flights, aircraft: aircraft}
}

func (fx fixture) importer(opts Options) *Importer {
	reg := airports.Builtin()
	opts.Parse.Airports = reg
	opts.Reconcile.Now = func() time.Time { return time.Date(2021, 4, 1, 0, 0, 0, 0, time.UTC) }
	calc := flighttime.NewCalculator(reg, fx.aircraft, flighttime.Options{IFRByDefault: true})
	return New(fx.flights, fx.aircraft, calc, opts, logger.NewNop())
}

func TestImport_RosterThenMonthly(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	im := fx.importer(Options{})

	outcomes, err := im.Import(ctx, []Document{{Name: "roster.txt", Data: []byte(rosterDoc)}})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, roster.Planned, outcomes[0].Type.Kind)
	require.NotNil(t, outcomes[0].Applied)
	assert.Len(t, outcomes[0].Applied.InsertedIDs, 2)

	all, err := fx.flights.ListFlights(ctx, sqlite.Filter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	first := all[0]
	assert.Equal(t, "KL1234", first.FlightNumber)
	assert.True(t, first.IsPlanned)
	assert.True(t, first.UnknownToServer)
	assert.Equal(t, 85, first.MultiPilotTime)
	assert.Equal(t, 85, first.IFRTime)

	typ, err := fx.aircraft.TypeOf(ctx, "PH-EXA")
	require.NoError(t, err)
	assert.Equal(t, "E75", typ)

	// importing the same roster again changes nothing
	outcomes, err = im.Import(ctx, []Document{{Name: "roster.txt", Data: []byte(rosterDoc)}})
	require.NoError(t, err)
	assert.Equal(t, reconcile.Summary{Unchanged: 2}, outcomes[0].Plan.Summary())
	assert.Nil(t, outcomes[0].Applied)

	outcomes, err = im.Import(ctx, []Document{{Name: "monthly.txt", Data: []byte(monthlyDoc)}})
	require.NoError(t, err)
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, 1, outcomes[0].Plan.Summary().Updated)

	flown, err := fx.flights.GetFlight(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, flown.IsPlanned)
	assert.Equal(t, time.Date(2021, 3, 1, 6, 58, 0, 0, time.UTC), flown.TimeOut)
	assert.Equal(t, 79, flown.MultiPilotTime)
}

func TestImport_DryRun(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	im := fx.importer(Options{DryRun: true})

	outcomes, err := im.Import(ctx, []Document{{Name: "roster.txt", Data: []byte(rosterDoc)}})
	require.NoError(t, err)
	assert.Equal(t, 2, outcomes[0].Plan.Summary().New)
	assert.Nil(t, outcomes[0].Applied)

	all, err := fx.flights.ListFlights(ctx, sqlite.Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestImport_BadDocumentDoesNotStopOthers(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	im := fx.importer(Options{Workers: 2})

	outcomes, err := im.Import(ctx, []Document{
		{Name: "notes.txt", Data: []byte("shopping list\nmilk\n")},
		{Name: "binary.bin", Data: []byte{0xff, 0xfe, 0x00}},
		{Name: "roster.txt", Data: []byte(rosterDoc)},
	})
	require.NoError(t, err)
	require.Len(t, outcomes, 3)

	assert.ErrorIs(t, outcomes[0].Err, roster.ErrUnsupportedDocument)
	assert.Contains(t, outcomes[0].Error, "notes.txt")
	assert.ErrorIs(t, outcomes[1].Err, roster.ErrUnsupportedDocument)
	require.NoError(t, outcomes[2].Err)
	assert.Len(t, outcomes[2].Applied.InsertedIDs, 2)
}

func TestImport_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fx := newFixture(t)
	_, err := fx.importer(Options{}).Import(ctx, []Document{{Name: "roster.txt", Data: []byte(rosterDoc)}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestImportFiles(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	im := fx.importer(Options{})

	dir := t.TempDir()
	path := filepath.Join(dir, "march.txt")
	require.NoError(t, os.WriteFile(path, []byte(rosterDoc), 0o600))

	outcomes, err := im.ImportFiles(ctx, []string{path})
	require.NoError(t, err)
	assert.Equal(t, "march.txt", outcomes[0].Name)
	assert.Equal(t, 2, outcomes[0].Plan.Summary().New)

}

func TestImportFiles_UnreadableFileDoesNotStopOthers(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	im := fx.importer(Options{})

	dir := t.TempDir()
	path := filepath.Join(dir, "march.txt")
	require.NoError(t, os.WriteFile(path, []byte(rosterDoc), 0o600))

	outcomes, err := im.ImportFiles(ctx, []string{filepath.Join(dir, "missing.txt"), path})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Equal(t, "missing.txt", outcomes[0].Name)
	assert.ErrorIs(t, outcomes[0].Err, os.ErrNotExist)
	assert.NotEmpty(t, outcomes[0].Error)
	assert.Nil(t, outcomes[0].Plan)

	assert.Equal(t, "march.txt", outcomes[1].Name)
	assert.NoError(t, outcomes[1].Err)
	require.NotNil(t, outcomes[1].Applied)
	assert.Len(t, outcomes[1].Applied.InsertedIDs, 2)
}
