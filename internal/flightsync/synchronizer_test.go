package flightsync

import (
	"context"
	"net"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/crypto/bcrypt"

	"github.com/yegors/flightlog/internal/comms"
	"github.com/yegors/flightlog/internal/flight"
	"github.com/yegors/flightlog/internal/server"
	"github.com/yegors/flightlog/internal/storage/sqlite"
	"github.com/yegors/flightlog/pkg/logger"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// startServer runs a sync server whose clock advances a minute per reading
func startServer(t *testing.T) string {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "server.db"), logger.NewNop())
	require.NoError(t, err)
	store, err := sqlite.NewServerStorage(db, logger.NewNop())
	require.NoError(t, err)

	var clock atomic.Int64
	clock.Store(1700000000)
	srv := server.New(server.Config{
		AllowRegistration: true,
		BcryptCost:        bcrypt.MinCost,
		Clock:             func() time.Time { return time.Unix(clock.Add(60), 0) },
	}, store, logger.NewNop())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ln) }()

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, srv.Shutdown(ctx))
		assert.NoError(t, <-served)
		db.Close()
	})
	return ln.Addr().String()
}

type device struct {
	flights *sqlite.FlightStorage
	state   *sqlite.StateStorage
	sync    *Synchronizer
}

func newDevice(t *testing.T, addr, password string) *device {
	t.Helper()
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "logbook.db"), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	flights, err := sqlite.NewFlightStorage(db, logger.NewNop())
	require.NoError(t, err)
	state, err := sqlite.NewStateStorage(db, logger.NewNop())
	require.NoError(t, err)

	cfg := comms.ClientConfig{Address: addr, MaxRetries: 1, RequestTimeout: 5 * time.Second}
	return &device{
		flights: flights,
		state:   state,
		sync:    New(cfg, Credentials{Username: "pilot", Password: password}, flights, state, logger.NewNop()),
	}
}

func (d *device) add(t *testing.T, number string, day int) int64 {
	t.Helper()
	out := time.Date(2021, 3, day, 7, 0, 0, 0, time.UTC)
	id, err := d.flights.SaveFlight(context.Background(), flight.Flight{
		Orig: "EHAM", Dest: "EKBI", TimeOut: out, TimeIn: out.Add(80 * time.Minute),
		FlightNumber: number, UnknownToServer: true, Timestamp: time.Now().Unix(),
	})
	require.NoError(t, err)
	return id
}

func (d *device) numbers(t *testing.T) map[int64]string {
	t.Helper()
	all, err := d.flights.ListFlights(context.Background(), sqlite.Filter{})
	require.NoError(t, err)
	out := make(map[int64]string, len(all))
	for _, f := range all {
		out[f.ID] = f.FlightNumber
	}
	return out
}

func TestSync_TwoDevices(t *testing.T) {
	ctx := context.Background()
	addr := startServer(t)

	a := newDevice(t, addr, "secret")
	require.NoError(t, a.sync.CreateAccount(ctx))
	a.add(t, "KL1001", 1)
	a.add(t, "KL1002", 2)

	report, err := a.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sent)
	assert.Zero(t, report.Received)
	assert.Zero(t, report.Renumbered)

	unsent, err := a.flights.UnknownToServer(ctx)
	require.NoError(t, err)
	assert.Empty(t, unsent)

	// the second device's first flight collides with ID 1 on the server
	b := newDevice(t, addr, "secret")
	b.add(t, "KL2001", 3)

	report, err = b.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Received)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Renumbered)
	assert.Equal(t, map[int64]string{1: "KL1001", 2: "KL1002", 3: "KL2001"}, b.numbers(t))

	report, err = a.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Received)
	assert.Zero(t, report.Sent)
	assert.Equal(t, b.numbers(t), a.numbers(t))

	// deletions travel as tombstones and are purged once sent
	require.NoError(t, a.flights.DeleteFlight(ctx, 2, time.Now()))
	report, err = a.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	_, err = a.flights.GetFlight(ctx, 2)
	assert.ErrorIs(t, err, sqlite.ErrNotFound)

	_, err = b.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int64]string{1: "KL1001", 3: "KL2001"}, b.numbers(t))
}

func (d *device) edit(t *testing.T, id int64, number string, timestamp int64) {
	t.Helper()
	ctx := context.Background()
	f, err := d.flights.GetFlight(ctx, id)
	require.NoError(t, err)
	f.FlightNumber = number
	f.Timestamp = timestamp
	_, err = d.flights.SaveFlight(ctx, f)
	require.NoError(t, err)
}

func (d *device) lastSync(t *testing.T) int64 {
	t.Helper()
	ts, err := d.state.LastSync(context.Background())
	require.NoError(t, err)
	return ts
}

func TestSync_OverlappingSessions(t *testing.T) {
	ctx := context.Background()
	addr := startServer(t)

	b := newDevice(t, addr, "secret")
	require.NoError(t, b.sync.CreateAccount(ctx))

	// a slow device reads the server time and uploads only after another
	// device has finished a whole sync
	slow, err := comms.Dial(ctx, comms.ClientConfig{Address: addr, MaxRetries: 1}, logger.NewNop())
	require.NoError(t, err)
	defer slow.Close()
	_, err = slow.Call(ctx, comms.KeywordHello, comms.EncodeHello(comms.ProtocolVersion), comms.KeywordOK)
	require.NoError(t, err)
	creds := comms.EncodeCredentials("pilot", comms.LoginKey("pilot", "secret"))
	_, err = slow.Call(ctx, comms.KeywordLogin, creds, comms.KeywordOK)
	require.NoError(t, err)
	reply, err := slow.Call(ctx, comms.KeywordRequestTimestamp, nil, comms.KeywordTimestamp)
	require.NoError(t, err)
	readAt, err := comms.DecodeInt64(reply.Data)
	require.NoError(t, err)

	_, err = b.sync.Sync(ctx)
	require.NoError(t, err)
	require.Greater(t, b.lastSync(t), readAt)

	out := time.Date(2021, 3, 5, 7, 0, 0, 0, time.UTC)
	late := flight.Flight{
		ID: 100, Orig: "EHAM", Dest: "EKBI", TimeOut: out, TimeIn: out.Add(80 * time.Minute),
		FlightNumber: "KL1100", Timestamp: readAt,
	}
	_, err = slow.Call(ctx, comms.KeywordSendingFlights, flight.MarshalList([]flight.Flight{late}), comms.KeywordOK)
	require.NoError(t, err)
	reply, err = slow.Call(ctx, comms.KeywordSaveChanges, nil, comms.KeywordTimestamp)
	require.NoError(t, err)
	savedAt, err := comms.DecodeInt64(reply.Data)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, savedAt, b.lastSync(t))

	report, err := b.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Received)
	assert.Equal(t, map[int64]string{100: "KL1100"}, b.numbers(t))

	got, err := b.flights.GetFlight(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, savedAt, got.Timestamp)
}

func TestSync_SameFlightEditedOnBothDevices(t *testing.T) {
	ctx := context.Background()
	addr := startServer(t)

	a := newDevice(t, addr, "secret")
	require.NoError(t, a.sync.CreateAccount(ctx))
	a.add(t, "KL1001", 1)
	a.add(t, "KL1002", 2)
	_, err := a.sync.Sync(ctx)
	require.NoError(t, err)

	b := newDevice(t, addr, "secret")
	_, err = b.sync.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, a.numbers(t), b.numbers(t))

	// b edits flight 1 after everything the server has, and flight 2 before
	// a's upload reaches the server
	b.edit(t, 1, "KL1001B", time.Now().Unix())
	b.edit(t, 2, "KL1002B", b.lastSync(t)+1)

	now := time.Now().Unix()
	a.edit(t, 1, "KL1001A", now)
	a.edit(t, 2, "KL1002A", now)
	report, err := a.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Sent)

	report, err = b.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Received)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, map[int64]string{1: "KL1001B", 2: "KL1002A"}, b.numbers(t))

	report, err = a.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Received)
	assert.Zero(t, report.Sent)
	assert.Equal(t, b.numbers(t), a.numbers(t))

	// nothing left to exchange
	report, err = b.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Received)
	assert.Zero(t, report.Sent)
}

func TestSync_BadLoginAndDuplicateAccount(t *testing.T) {
	ctx := context.Background()
	addr := startServer(t)

	a := newDevice(t, addr, "secret")
	require.NoError(t, a.sync.CreateAccount(ctx))
	assert.ErrorIs(t, a.sync.CreateAccount(ctx), ErrUserExists)

	intruder := newDevice(t, addr, "guess")
	_, err := intruder.sync.Sync(ctx)
	assert.ErrorIs(t, err, ErrBadLogin)
}

func TestServer_RequiresLogin(t *testing.T) {
	ctx := context.Background()
	addr := startServer(t)

	client, err := comms.Dial(ctx, comms.ClientConfig{Address: addr, MaxRetries: 1}, logger.NewNop())
	require.NoError(t, err)
	defer client.Close()

	reply, err := client.Call(ctx, comms.KeywordRequestHighestID, nil, comms.KeywordID)
	assert.ErrorIs(t, err, comms.ErrNotLoggedIn)
	assert.Equal(t, comms.KeywordNotLoggedIn, reply.Keyword)

	reply, err = client.Call(ctx, comms.KeywordHello, comms.EncodeHello(99), comms.KeywordOK)
	assert.Error(t, err)
	assert.Equal(t, comms.KeywordError, reply.Keyword)
}
