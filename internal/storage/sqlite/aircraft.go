package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/yegors/flightlog/pkg/logger"
)

// AircraftType describes a type as logged (E75, B772)
type AircraftType struct {
	Name        string `json:"name"`
	MultiPilot  bool   `json:"multi_pilot"`
	MultiEngine bool   `json:"multi_engine"`
}

// Aircraft links a registration to its type
type Aircraft struct {
	Registration string `json:"registration"`
	Type         string `json:"type"`
}

// AircraftStorage handles aircraft types and registrations
type AircraftStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewAircraftStorage creates an aircraft storage and its tables
func NewAircraftStorage(db *sql.DB, log *logger.Logger) (*AircraftStorage, error) {
	storage := &AircraftStorage{
		db:     db,
		logger: log.Named("sqlite-aircraft"),
	}
	if err := storage.initDB(); err != nil {
		return nil, err
	}
	return storage, nil
}

func (s *AircraftStorage) initDB() error {
	return createTables(s.db, "aircraft",
		`CREATE TABLE IF NOT EXISTS aircraft_types (
			name TEXT PRIMARY KEY,
			multi_pilot INTEGER NOT NULL DEFAULT 0,
			multi_engine INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS aircraft (
			registration TEXT PRIMARY KEY,
			type TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_aircraft_type ON aircraft(type)`,
	)
}

// SaveType creates or replaces an aircraft type
func (s *AircraftStorage) SaveType(ctx context.Context, t AircraftType) error {
	name := strings.ToUpper(strings.TrimSpace(t.Name))
	if name == "" {
		return errors.New("aircraft type needs a name")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO aircraft_types (name, multi_pilot, multi_engine) VALUES (?, ?, ?)`,
		name, t.MultiPilot, t.MultiEngine)
	if err != nil {
		return fmt.Errorf("failed to save aircraft type %s: %w", name, err)
	}
	return nil
}

// GetType returns a type by name
func (s *AircraftStorage) GetType(ctx context.Context, name string) (AircraftType, error) {
	var t AircraftType
	err := s.db.QueryRowContext(ctx,
		`SELECT name, multi_pilot, multi_engine FROM aircraft_types WHERE name = ?`,
		strings.ToUpper(name)).Scan(&t.Name, &t.MultiPilot, &t.MultiEngine)
	if errors.Is(err, sql.ErrNoRows) {
		return t, fmt.Errorf("aircraft type %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return t, fmt.Errorf("failed to get aircraft type %s: %w", name, err)
	}
	return t, nil
}

// ListTypes returns all known types by name
func (s *AircraftStorage) ListTypes(ctx context.Context) ([]AircraftType, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, multi_pilot, multi_engine FROM aircraft_types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query aircraft types: %w", err)
	}
	defer rows.Close()

	var types []AircraftType
	for rows.Next() {
		var t AircraftType
		if err := rows.Scan(&t.Name, &t.MultiPilot, &t.MultiEngine); err != nil {
			return nil, fmt.Errorf("failed to scan aircraft type: %w", err)
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// IsMultiPilot reports whether a type is multi-pilot, and whether the type is known at all
func (s *AircraftStorage) IsMultiPilot(name string) (multi, known bool) {
	t, err := s.GetType(context.Background(), name)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("Failed to look up aircraft type", logger.String("type", name), logger.Error(err))
		}
		return false, false
	}
	return t.MultiPilot, true
}

// SaveAircraft links a registration to a type
func (s *AircraftStorage) SaveAircraft(ctx context.Context, a Aircraft) error {
	reg := strings.ToUpper(strings.TrimSpace(a.Registration))
	if reg == "" || a.Type == "" {
		return errors.New("aircraft needs a registration and a type")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO aircraft (registration, type) VALUES (?, ?)`,
		reg, strings.ToUpper(a.Type))
	if err != nil {
		return fmt.Errorf("failed to save aircraft %s: %w", reg, err)
	}
	return nil
}

// TypeOf returns the type registered for a registration
func (s *AircraftStorage) TypeOf(ctx context.Context, registration string) (string, error) {
	var typ string
	err := s.db.QueryRowContext(ctx,
		`SELECT type FROM aircraft WHERE registration = ?`, strings.ToUpper(registration)).Scan(&typ)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("aircraft %s: %w", registration, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get aircraft %s: %w", registration, err)
	}
	return typ, nil
}
