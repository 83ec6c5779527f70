package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yegors/flightlog/internal/flight"
	"github.com/yegors/flightlog/pkg/logger"
)

// ErrUserExists is returned when creating an account that already exists
var ErrUserExists = errors.New("user exists")

// ServerStorage holds the sync server's accounts and their flights. Flights
// are kept in their wire encoding; the server never interprets them beyond
// ID and timestamp.
type ServerStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewServerStorage creates the server tables
func NewServerStorage(db *sql.DB, log *logger.Logger) (*ServerStorage, error) {
	storage := &ServerStorage{
		db:     db,
		logger: log.Named("sqlite-server"),
	}
	if err := createTables(db, "server",
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			key_hash BLOB NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_flights (
			username TEXT NOT NULL REFERENCES users(username) ON DELETE CASCADE,
			id INTEGER NOT NULL,
			timestamp INTEGER NOT NULL,
			data BLOB NOT NULL,
			PRIMARY KEY (username, id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_user_flights_timestamp ON user_flights(username, timestamp)`,
	); err != nil {
		return nil, err
	}
	return storage, nil
}

// NormalizeUsername makes user names case-insensitive
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// CreateUser stores a new account
func (s *ServerStorage) CreateUser(ctx context.Context, username string, keyHash []byte, now time.Time) error {
	username = NormalizeUsername(username)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, key_hash, created_at) VALUES (?, ?, ?)`,
		username, keyHash, formatTime(now))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%s: %w", username, ErrUserExists)
		}
		return fmt.Errorf("failed to create user %s: %w", username, err)
	}
	s.logger.Info("Created user", logger.String("username", username))
	return nil
}

// KeyHash returns the stored hash of a user's login key
func (s *ServerStorage) KeyHash(ctx context.Context, username string) ([]byte, error) {
	var hash []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT key_hash FROM users WHERE username = ?`, NormalizeUsername(username)).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", username, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user %s: %w", username, err)
	}
	return hash, nil
}

// HighestFlightID returns the largest flight ID stored for a user
func (s *ServerStorage) HighestFlightID(ctx context.Context, username string) (int64, error) {
	var id sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(id) FROM user_flights WHERE username = ?`, NormalizeUsername(username)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to query highest flight ID: %w", err)
	}
	return id.Int64, nil
}

// FlightsSince returns a user's flights stored at or after timestamp,
// tombstones included. The bound is inclusive because timestamps have one
// second resolution.
func (s *ServerStorage) FlightsSince(ctx context.Context, username string, timestamp int64) ([]flight.Flight, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM user_flights WHERE username = ? AND timestamp >= ? ORDER BY id`,
		NormalizeUsername(username), timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to query flights: %w", err)
	}
	defer rows.Close()

	var flights []flight.Flight
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan flight: %w", err)
		}
		f, err := flight.Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode stored flight: %w", err)
		}
		flights = append(flights, f)
	}
	return flights, rows.Err()
}

// SaveFlights stores a batch of flights for a user in one transaction,
// replacing flights with the same ID.
func (s *ServerStorage) SaveFlights(ctx context.Context, username string, flights []flight.Flight) error {
	username = NormalizeUsername(username)
	return inTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, f := range flights {
			data := flight.Marshal(f)
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO user_flights (username, id, timestamp, data) VALUES (?, ?, ?, ?)`,
				username, f.ID, f.Timestamp, data); err != nil {
				return fmt.Errorf("failed to store flight %d: %w", f.ID, err)
			}
		}
		return nil
	})
}
