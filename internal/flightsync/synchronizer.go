// Package flightsync brings the local logbook and the sync server's copy of
// it up to date with each other.
package flightsync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yegors/flightlog/internal/comms"
	"github.com/yegors/flightlog/internal/flight"
	"github.com/yegors/flightlog/internal/storage/sqlite"
	"github.com/yegors/flightlog/pkg/logger"
)

// ErrUserExists is returned by CreateAccount for a taken user name
var ErrUserExists = errors.New("user already exists")

// ErrBadLogin is returned when the server rejects the credentials
var ErrBadLogin = errors.New("bad username or password")

// sendBatch is the number of flights per SENDING_FLIGHTS message
const sendBatch = 500

// FlightStore is the part of the local logbook the synchronizer touches
type FlightStore interface {
	GetFlight(ctx context.Context, id int64) (flight.Flight, error)
	SaveFlights(ctx context.Context, flights []flight.Flight) error
	HighestID(ctx context.Context) (int64, error)
	UnknownToServer(ctx context.Context) ([]flight.Flight, error)
	ChangedSince(ctx context.Context, timestamp int64) ([]flight.Flight, error)
	Renumber(ctx context.Context, moves map[int64]int64) error
	MarkSent(ctx context.Context, ids []int64, timestamp int64) error
}

// StateStore keeps the time of the last successful sync
type StateStore interface {
	LastSync(ctx context.Context) (int64, error)
	SetLastSync(ctx context.Context, ts int64) error
}

// Credentials identify the account on the server
type Credentials struct {
	Username string
	Password string
}

// Report summarises a sync
type Report struct {
	Received   int       `json:"received"`
	Sent       int       `json:"sent"`
	Renumbered int       `json:"renumbered"`
	ServerTime time.Time `json:"server_time"`
}

// Synchronizer runs sync sessions against one server and account
type Synchronizer struct {
	client  comms.ClientConfig
	creds   Credentials
	flights FlightStore
	state   StateStore
	logger  *logger.Logger
}

// New creates a synchronizer
func New(client comms.ClientConfig, creds Credentials, flights FlightStore, state StateStore, log *logger.Logger) *Synchronizer {
	return &Synchronizer{
		client:  client,
		creds:   creds,
		flights: flights,
		state:   state,
		logger:  log.Named("sync"),
	}
}

func (s *Synchronizer) connect(ctx context.Context) (*comms.Client, error) {
	client, err := comms.Dial(ctx, s.client, s.logger)
	if err != nil {
		return nil, err
	}
	if _, err := client.Call(ctx, comms.KeywordHello, comms.EncodeHello(comms.ProtocolVersion), comms.KeywordOK); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}

// CreateAccount registers the credentials with the server
func (s *Synchronizer) CreateAccount(ctx context.Context) error {
	client, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	key := comms.LoginKey(s.creds.Username, s.creds.Password)
	reply, err := client.Call(ctx, comms.KeywordCreateAccount, comms.EncodeCredentials(s.creds.Username, key), comms.KeywordOK)
	if reply.Keyword == comms.KeywordUserExists {
		return fmt.Errorf("%s: %w", s.creds.Username, ErrUserExists)
	}
	if err != nil {
		return err
	}
	s.logger.Info("Account created", logger.String("user", s.creds.Username))
	return nil
}

// Sync runs one complete session
func (s *Synchronizer) Sync(ctx context.Context) (Report, error) {
	var report Report

	client, err := s.connect(ctx)
	if err != nil {
		return report, err
	}
	defer client.Close()

	key := comms.LoginKey(s.creds.Username, s.creds.Password)
	reply, err := client.Call(ctx, comms.KeywordLogin, comms.EncodeCredentials(s.creds.Username, key), comms.KeywordOK)
	if reply.Keyword == comms.KeywordBadLogin {
		return report, ErrBadLogin
	}
	if err != nil {
		return report, err
	}

	serverTime, err := s.requestInt64(ctx, client, comms.KeywordRequestTimestamp, nil, comms.KeywordTimestamp)
	if err != nil {
		return report, err
	}
	report.ServerTime = time.Unix(serverTime, 0).UTC()
	s.logger.Debug("Server time", logger.Duration("offset", time.Until(report.ServerTime).Round(time.Second)))

	if report.Renumbered, err = s.renumber(ctx, client); err != nil {
		return report, err
	}

	lastSync, err := s.state.LastSync(ctx)
	if err != nil {
		return report, err
	}

	current, received, err := s.receive(ctx, client, lastSync)
	if err != nil {
		return report, err
	}
	report.Received = received

	sentIDs, savedAt, err := s.send(ctx, client, lastSync, current)
	if err != nil {
		return report, err
	}
	report.Sent = len(sentIDs)

	if err := s.flights.MarkSent(ctx, sentIDs, savedAt); err != nil {
		return report, err
	}
	// serverTime was read before the flights were requested, so anything
	// another device saves from then on is fetched by the next sync
	if err := s.state.SetLastSync(ctx, serverTime); err != nil {
		return report, err
	}

	s.logger.Info("Sync complete",
		logger.Int("received", report.Received),
		logger.Int("sent", report.Sent),
		logger.Int("renumbered", report.Renumbered))
	return report, nil
}

func (s *Synchronizer) requestInt64(ctx context.Context, client *comms.Client, keyword string, data []byte, want string) (int64, error) {
	reply, err := client.Call(ctx, keyword, data, want)
	if err != nil {
		return 0, err
	}
	v, err := comms.DecodeInt64(reply.Data)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", keyword, err)
	}
	return v, nil
}

// renumber moves flights the server has never seen above every ID in use on
// either side, so they cannot overwrite flights from another device.
func (s *Synchronizer) renumber(ctx context.Context, client *comms.Client) (int, error) {
	serverHighest, err := s.requestInt64(ctx, client, comms.KeywordRequestHighestID, nil, comms.KeywordID)
	if err != nil {
		return 0, err
	}
	localHighest, err := s.flights.HighestID(ctx)
	if err != nil {
		return 0, err
	}
	unknown, err := s.flights.UnknownToServer(ctx)
	if err != nil {
		return 0, err
	}

	next := max(serverHighest, localHighest) + 1
	moves := make(map[int64]int64)
	for _, f := range unknown {
		if f.ID > serverHighest {
			continue
		}
		moves[f.ID] = next
		next++
	}
	if err := s.flights.Renumber(ctx, moves); err != nil {
		return 0, err
	}
	if len(moves) > 0 {
		s.logger.Info("Renumbered new flights", logger.Int("count", len(moves)), logger.Int64("server_highest", serverHighest))
	}
	return len(moves), nil
}

// receive stores the server's changes since lastSync. A local flight edited
// after lastSync wins over an older server version. It returns the IDs whose
// local copy now matches the server, and how many flights were stored.
func (s *Synchronizer) receive(ctx context.Context, client *comms.Client, lastSync int64) (map[int64]bool, int, error) {
	reply, err := client.Call(ctx, comms.KeywordRequestFlightsSince, comms.EncodeInt64(lastSync), comms.KeywordFlights)
	if err != nil {
		return nil, 0, err
	}
	incoming, err := flight.UnmarshalList(reply.Data)
	if err != nil {
		return nil, 0, fmt.Errorf("decode server flights: %w", err)
	}

	current := make(map[int64]bool, len(incoming))
	var toSave []flight.Flight
	for _, remote := range incoming {
		local, err := s.flights.GetFlight(ctx, remote.ID)
		switch {
		case errors.Is(err, sqlite.ErrNotFound):
		case err != nil:
			return nil, 0, err
		case !local.UnknownToServer && bytes.Equal(flight.Marshal(local), flight.Marshal(remote)):
			// already up to date, usually our own upload coming back
			current[remote.ID] = true
			continue
		case local.Timestamp > lastSync && local.Timestamp > remote.Timestamp:
			s.logger.Debug("Keeping newer local flight", logger.Int64("id", local.ID))
			continue
		}

		remote.UnknownToServer = false
		toSave = append(toSave, remote)
		current[remote.ID] = true
	}

	if err := s.flights.SaveFlights(ctx, toSave); err != nil {
		return nil, 0, err
	}
	return current, len(toSave), nil
}

// send uploads local changes and commits them on the server. It returns the
// sent IDs and the server time they were stored at.
func (s *Synchronizer) send(ctx context.Context, client *comms.Client, lastSync int64, current map[int64]bool) ([]int64, int64, error) {
	changed, err := s.flights.ChangedSince(ctx, lastSync)
	if err != nil {
		return nil, 0, err
	}

	var outgoing []flight.Flight
	var ids []int64
	for _, f := range changed {
		if current[f.ID] {
			continue
		}
		f.UnknownToServer = false
		outgoing = append(outgoing, f)
		ids = append(ids, f.ID)
	}
	if len(outgoing) == 0 {
		return nil, 0, nil
	}

	for start := 0; start < len(outgoing); start += sendBatch {
		end := min(start+sendBatch, len(outgoing))
		if _, err := client.Call(ctx, comms.KeywordSendingFlights, flight.MarshalList(outgoing[start:end]), comms.KeywordOK); err != nil {
			return nil, 0, err
		}
	}
	savedAt, err := s.requestInt64(ctx, client, comms.KeywordSaveChanges, nil, comms.KeywordTimestamp)
	if err != nil {
		return nil, 0, err
	}
	return ids, savedAt, nil
}
