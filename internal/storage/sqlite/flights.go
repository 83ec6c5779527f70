package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yegors/flightlog/internal/flight"
	"github.com/yegors/flightlog/internal/reconcile"
	"github.com/yegors/flightlog/pkg/logger"
)

// FlightStorage handles storage of logbook flights
type FlightStorage struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewFlightStorage creates a flight storage and its tables
func NewFlightStorage(db *sql.DB, log *logger.Logger) (*FlightStorage, error) {
	storage := &FlightStorage{
		db:     db,
		logger: log.Named("sqlite-flights"),
	}
	if err := storage.initDB(); err != nil {
		return nil, err
	}
	return storage, nil
}

func (s *FlightStorage) initDB() error {
	return createTables(s.db, "flights",
		`CREATE TABLE IF NOT EXISTS flights (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			orig TEXT NOT NULL,
			dest TEXT NOT NULL,
			time_out TEXT NOT NULL,
			time_in TEXT NOT NULL,
			corrected_total_time INTEGER NOT NULL DEFAULT 0,
			multi_pilot_time INTEGER NOT NULL DEFAULT 0,
			night_time INTEGER NOT NULL DEFAULT 0,
			ifr_time INTEGER NOT NULL DEFAULT 0,
			sim_time INTEGER NOT NULL DEFAULT 0,
			aircraft_type TEXT NOT NULL DEFAULT '',
			registration TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL DEFAULT '',
			name2 TEXT NOT NULL DEFAULT '',
			takeoff_day INTEGER NOT NULL DEFAULT 0,
			takeoff_night INTEGER NOT NULL DEFAULT 0,
			landing_day INTEGER NOT NULL DEFAULT 0,
			landing_night INTEGER NOT NULL DEFAULT 0,
			auto_land INTEGER NOT NULL DEFAULT 0,
			flight_number TEXT NOT NULL DEFAULT '',
			remarks TEXT NOT NULL DEFAULT '',
			is_pic INTEGER NOT NULL DEFAULT 0,
			is_picus INTEGER NOT NULL DEFAULT 0,
			is_copilot INTEGER NOT NULL DEFAULT 0,
			is_dual INTEGER NOT NULL DEFAULT 0,
			is_instructor INTEGER NOT NULL DEFAULT 0,
			is_sim INTEGER NOT NULL DEFAULT 0,
			is_pf INTEGER NOT NULL DEFAULT 0,
			is_planned INTEGER NOT NULL DEFAULT 0,
			is_deadhead INTEGER NOT NULL DEFAULT 0,
			unknown_to_server INTEGER NOT NULL DEFAULT 1,
			auto_fill INTEGER NOT NULL DEFAULT 0,
			augmented_crew INTEGER NOT NULL DEFAULT 0,
			is_deleted INTEGER NOT NULL DEFAULT 0,
			signature TEXT NOT NULL DEFAULT '',
			timestamp INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_flights_time_out ON flights(time_out)`,
		`CREATE INDEX IF NOT EXISTS idx_flights_timestamp ON flights(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_flights_registration ON flights(registration)`,
	)
}

const flightColumns = `id, orig, dest, time_out, time_in, corrected_total_time, multi_pilot_time,
	night_time, ifr_time, sim_time, aircraft_type, registration, name, name2,
	takeoff_day, takeoff_night, landing_day, landing_night, auto_land, flight_number, remarks,
	is_pic, is_picus, is_copilot, is_dual, is_instructor, is_sim, is_pf, is_planned, is_deadhead,
	unknown_to_server, auto_fill, augmented_crew, is_deleted, signature, timestamp`

// flightColumnCount must match flightColumns
const flightColumnCount = 36

func flightArgs(f *flight.Flight) []any {
	var id any
	if f.ID != 0 {
		id = f.ID
	}
	return []any{
		id, f.Orig, f.Dest, formatTime(f.TimeOut), formatTime(f.TimeIn), f.CorrectedTotalTime, f.MultiPilotTime,
		f.NightTime, f.IFRTime, f.SimTime, f.AircraftType, f.Registration, f.Name, f.Name2,
		f.TakeoffDay, f.TakeoffNight, f.LandingDay, f.LandingNight, f.AutoLand, f.FlightNumber, f.Remarks,
		f.IsPIC, f.IsPICUS, f.IsCoPilot, f.IsDual, f.IsInstructor, f.IsSim, f.IsPF, f.IsPlanned, f.IsDeadhead,
		f.UnknownToServer, f.AutoFill, f.AugmentedCrew, f.IsDeleted, f.Signature, f.Timestamp,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlight(row rowScanner) (flight.Flight, error) {
	var f flight.Flight
	var timeOut, timeIn string
	if err := row.Scan(
		&f.ID, &f.Orig, &f.Dest, &timeOut, &timeIn, &f.CorrectedTotalTime, &f.MultiPilotTime,
		&f.NightTime, &f.IFRTime, &f.SimTime, &f.AircraftType, &f.Registration, &f.Name, &f.Name2,
		&f.TakeoffDay, &f.TakeoffNight, &f.LandingDay, &f.LandingNight, &f.AutoLand, &f.FlightNumber, &f.Remarks,
		&f.IsPIC, &f.IsPICUS, &f.IsCoPilot, &f.IsDual, &f.IsInstructor, &f.IsSim, &f.IsPF, &f.IsPlanned, &f.IsDeadhead,
		&f.UnknownToServer, &f.AutoFill, &f.AugmentedCrew, &f.IsDeleted, &f.Signature, &f.Timestamp,
	); err != nil {
		return f, err
	}

	var err error
	if f.TimeOut, err = parseTime(timeOut); err != nil {
		return f, fmt.Errorf("failed to parse time_out: %w", err)
	}
	if f.TimeIn, err = parseTime(timeIn); err != nil {
		return f, fmt.Errorf("failed to parse time_in: %w", err)
	}
	return f, nil
}

func scanFlightRows(rows *sql.Rows) ([]flight.Flight, error) {
	defer rows.Close()
	var flights []flight.Flight
	for rows.Next() {
		f, err := scanFlight(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flight: %w", err)
		}
		flights = append(flights, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read flights: %w", err)
	}
	return flights, nil
}

// saveFlight inserts a flight, or replaces it when its ID is set
func saveFlight(ctx context.Context, q querier, f *flight.Flight) (int64, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", flightColumnCount), ", ")
	result, err := q.ExecContext(ctx,
		`INSERT OR REPLACE INTO flights (`+flightColumns+`) VALUES (`+placeholders+`)`,
		flightArgs(f)...)
	if err != nil {
		return 0, fmt.Errorf("failed to save flight %s: %w", f, err)
	}
	if f.ID != 0 {
		return f.ID, nil
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}
	return id, nil
}

// SaveFlight stores a flight and returns its ID. A flight with ID 0 gets a new one.
func (s *FlightStorage) SaveFlight(ctx context.Context, f flight.Flight) (int64, error) {
	if err := f.Validate(); err != nil {
		return 0, err
	}
	return saveFlight(ctx, s.db, &f)
}

// SaveFlights stores flights in one transaction
func (s *FlightStorage) SaveFlights(ctx context.Context, flights []flight.Flight) error {
	return inTx(ctx, s.db, func(tx *sql.Tx) error {
		for i := range flights {
			if _, err := saveFlight(ctx, tx, &flights[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetFlight returns a single flight, deleted or not
func (s *FlightStorage) GetFlight(ctx context.Context, id int64) (flight.Flight, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+flightColumns+` FROM flights WHERE id = ?`, id)
	f, err := scanFlight(row)
	if errors.Is(err, sql.ErrNoRows) {
		return flight.Flight{}, fmt.Errorf("flight %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return flight.Flight{}, fmt.Errorf("failed to get flight %d: %w", id, err)
	}
	return f, nil
}

// Filter selects flights for ListFlights. Zero values do not filter.
type Filter struct {
	From           time.Time
	To             time.Time
	Registration   string
	IncludeDeleted bool
	Limit          int
}

// ListFlights returns flights ordered by block-off time
func (s *FlightStorage) ListFlights(ctx context.Context, filter Filter) ([]flight.Flight, error) {
	var where []string
	var args []any
	if !filter.IncludeDeleted {
		where = append(where, "is_deleted = 0")
	}
	if !filter.From.IsZero() {
		where = append(where, "time_out >= ?")
		args = append(args, formatTime(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "time_out < ?")
		args = append(args, formatTime(filter.To))
	}
	if filter.Registration != "" {
		where = append(where, "registration = ?")
		args = append(args, filter.Registration)
	}

	query := `SELECT ` + flightColumns + ` FROM flights`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY time_out, id`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query flights: %w", err)
	}
	return scanFlightRows(rows)
}

// DeleteFlight removes a flight. Flights the server knows are kept as a
// deleted tombstone so the deletion syncs; others are removed outright.
func (s *FlightStorage) DeleteFlight(ctx context.Context, id int64, now time.Time) error {
	return inTx(ctx, s.db, func(tx *sql.Tx) error {
		return deleteFlight(ctx, tx, id, now)
	})
}

func deleteFlight(ctx context.Context, q querier, id int64, now time.Time) error {
	result, err := q.ExecContext(ctx, `DELETE FROM flights WHERE id = ? AND unknown_to_server = 1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete flight %d: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		return nil
	}

	result, err = q.ExecContext(ctx,
		`UPDATE flights SET is_deleted = 1, timestamp = ? WHERE id = ? AND is_deleted = 0`, now.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to mark flight %d deleted: %w", id, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("flight %d: %w", id, ErrNotFound)
	}
	return nil
}

// HighestID returns the largest flight ID in use, 0 for an empty logbook
func (s *FlightStorage) HighestID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(id) FROM flights`).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to query highest ID: %w", err)
	}
	return id.Int64, nil
}

// ChangedSince returns flights modified after timestamp or never sent to the server,
// tombstones included.
func (s *FlightStorage) ChangedSince(ctx context.Context, timestamp int64) ([]flight.Flight, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+flightColumns+` FROM flights WHERE timestamp > ? OR unknown_to_server = 1 ORDER BY id`,
		timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to query changed flights: %w", err)
	}
	return scanFlightRows(rows)
}

// UnknownToServer returns flights never sent to the server
func (s *FlightStorage) UnknownToServer(ctx context.Context) ([]flight.Flight, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+flightColumns+` FROM flights WHERE unknown_to_server = 1 ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsent flights: %w", err)
	}
	return scanFlightRows(rows)
}

// Renumber moves flights to new IDs. Pairs are applied in order inside one
// transaction; a target ID that is already taken fails the whole batch.
func (s *FlightStorage) Renumber(ctx context.Context, moves map[int64]int64) error {
	if len(moves) == 0 {
		return nil
	}
	return inTx(ctx, s.db, func(tx *sql.Tx) error {
		for from, to := range moves {
			var taken int
			if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM flights WHERE id = ?`, to).Scan(&taken); err != nil {
				return fmt.Errorf("failed to check flight %d: %w", to, err)
			}
			if taken > 0 {
				return fmt.Errorf("cannot renumber flight %d: id %d in use", from, to)
			}
			if _, err := tx.ExecContext(ctx, `UPDATE flights SET id = ? WHERE id = ?`, to, from); err != nil {
				return fmt.Errorf("failed to renumber flight %d: %w", from, err)
			}
		}
		return nil
	})
}

// MarkSent records that the server has the given flights as of timestamp.
// Sent tombstones are no longer needed and are purged.
func (s *FlightStorage) MarkSent(ctx context.Context, ids []int64, timestamp int64) error {
	return inTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `DELETE FROM flights WHERE id = ? AND is_deleted = 1`, id); err != nil {
				return fmt.Errorf("failed to purge flight %d: %w", id, err)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE flights SET unknown_to_server = 0, timestamp = ? WHERE id = ?`, timestamp, id); err != nil {
				return fmt.Errorf("failed to mark flight %d sent: %w", id, err)
			}
		}
		return nil
	})
}

// PlanResult reports what ApplyPlan wrote
type PlanResult struct {
	InsertedIDs []int64 `json:"inserted_ids"`
	Updated     int     `json:"updated"`
	Removed     int     `json:"removed"`
}

// ApplyPlan writes a reconcile plan in one transaction. Conflicts and
// unchanged flights are left alone.
func (s *FlightStorage) ApplyPlan(ctx context.Context, plan *reconcile.Plan, now time.Time) (PlanResult, error) {
	var result PlanResult
	err := inTx(ctx, s.db, func(tx *sql.Tx) error {
		for i := range plan.New {
			f := plan.New[i]
			f.ID = 0
			f.UnknownToServer = true
			f.Timestamp = now.Unix()
			id, err := saveFlight(ctx, tx, &f)
			if err != nil {
				return err
			}
			result.InsertedIDs = append(result.InsertedIDs, id)
		}
		for _, change := range plan.Updated {
			merged := change.Merged
			if _, err := saveFlight(ctx, tx, &merged); err != nil {
				return err
			}
			result.Updated++
		}
		for _, f := range plan.Remove {
			if err := deleteFlight(ctx, tx, f.ID, now); err != nil {
				return err
			}
			result.Removed++
		}
		return nil
	})
	if err != nil {
		return PlanResult{}, err
	}

	s.logger.Info("Applied plan",
		logger.Int("inserted", len(result.InsertedIDs)),
		logger.Int("updated", result.Updated),
		logger.Int("removed", result.Removed))
	return result, nil
}

// Totals sums the logged time of all flights
type Totals struct {
	Flights    int `json:"flights"`
	TotalTime  int `json:"total_time"`
	NightTime  int `json:"night_time"`
	IFRTime    int `json:"ifr_time"`
	SimTime    int `json:"sim_time"`
	MultiPilot int `json:"multi_pilot_time"`
	Landings   int `json:"landings"`
}

// Totals returns the sums over completed, non-deleted flights
func (s *FlightStorage) Totals(ctx context.Context) (Totals, error) {
	flights, err := s.ListFlights(ctx, Filter{})
	if err != nil {
		return Totals{}, err
	}
	var t Totals
	for _, f := range flights {
		if f.IsPlanned {
			continue
		}
		t.Flights++
		t.SimTime += f.SimTime
		if !f.IsSim {
			t.TotalTime += f.TotalTime()
		}
		t.NightTime += f.NightTime
		t.IFRTime += f.IFRTime
		t.MultiPilot += f.MultiPilotTime
		t.Landings += f.LandingDay + f.LandingNight
	}
	return t, nil
}
