package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/yegors/flightlog/internal/airports"
	"github.com/yegors/flightlog/pkg/logger"
)

const keyLastSync = "last_sync"

// StateStorage keeps small client settings: the last sync time and the
// airports the pilot added to the built-in list.
type StateStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewStateStorage creates the state tables
func NewStateStorage(db *sql.DB, log *logger.Logger) (*StateStorage, error) {
	storage := &StateStorage{
		db:     db,
		logger: log.Named("sqlite-state"),
	}
	if err := createTables(db, "state",
		`CREATE TABLE IF NOT EXISTS state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS airports (
			icao TEXT PRIMARY KEY,
			iata TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			lat REAL NOT NULL,
			lon REAL NOT NULL
		)`,
	); err != nil {
		return nil, err
	}
	return storage, nil
}

// LastSync returns the server time of the last successful sync, 0 if never synced
func (s *StateStorage) LastSync(ctx context.Context) (int64, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, keyLastSync).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read last sync: %w", err)
	}
	ts, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid last sync %q: %w", value, err)
	}
	return ts, nil
}

// SetLastSync stores the server time of a successful sync
func (s *StateStorage) SetLastSync(ctx context.Context, ts int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO state (key, value) VALUES (?, ?)`, keyLastSync, strconv.FormatInt(ts, 10))
	if err != nil {
		return fmt.Errorf("failed to store last sync: %w", err)
	}
	s.logger.Debug("Stored last sync", logger.Int64("timestamp", ts))
	return nil
}

// SaveAirport stores a user-defined airport
func (s *StateStorage) SaveAirport(ctx context.Context, a airports.Airport) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO airports (icao, iata, name, lat, lon) VALUES (?, ?, ?, ?, ?)`,
		a.ICAO, a.IATA, a.Name, a.Lat, a.Lon)
	if err != nil {
		return fmt.Errorf("failed to save airport %s: %w", a.ICAO, err)
	}
	return nil
}

// LoadAirports adds the stored airports to reg and returns how many were added
func (s *StateStorage) LoadAirports(ctx context.Context, reg *airports.Registry) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT icao, iata, name, lat, lon FROM airports ORDER BY icao`)
	if err != nil {
		return 0, fmt.Errorf("failed to query airports: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var a airports.Airport
		if err := rows.Scan(&a.ICAO, &a.IATA, &a.Name, &a.Lat, &a.Lon); err != nil {
			return n, fmt.Errorf("failed to scan airport: %w", err)
		}
		reg.Add(a)
		n++
	}
	return n, rows.Err()
}
