// Command flightlog is the pilot logbook: it imports rosters and monthly
// overviews, keeps the logbook in SQLite and syncs it with a server.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yegors/flightlog/internal/airports"
	"github.com/yegors/flightlog/internal/config"
	"github.com/yegors/flightlog/internal/flighttime"
	"github.com/yegors/flightlog/internal/importer"
	"github.com/yegors/flightlog/internal/roster"
	"github.com/yegors/flightlog/internal/storage/sqlite"
	"github.com/yegors/flightlog/pkg/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "flightlog: %v\n", err)
		os.Exit(1)
	}
}

// app carries what the persistent flags produce to the subcommands
type app struct {
	configPath string
	verbose    bool

	cfg *config.Config
	log *logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "flightlog",
		Short: "Pilot logbook with roster import and sync",
		Long: `flightlog keeps a pilot logbook in a local SQLite database.

Rosters, monthly overviews and logbook exports are imported and reconciled
with the flights already logged. Night time, IFR time and augmented crew
time are computed on import. The logbook syncs with a flightlog sync-server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default "+config.DefaultPath+")")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newImportCmd(a),
		newFlightsCmd(a),
		newExportCmd(a),
		newTotalsCmd(a),
		newCrewTimeCmd(a),
		newSyncCmd(a),
		newAccountCmd(a),
		newServeCmd(a),
		newSyncServerCmd(a),
		newAircraftCmd(a),
		newAirportCmd(a),
		newConfigCmd(a),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Logger(a.verbose))
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	a.cfg = cfg
	a.log = log
	return nil
}

// logbook is the opened local database
type logbook struct {
	db       *sql.DB
	flights  *sqlite.FlightStorage
	aircraft *sqlite.AircraftStorage
	state    *sqlite.StateStorage
	airports *airports.Registry
}

func (a *app) openLogbook(ctx context.Context) (*logbook, error) {
	db, err := sqlite.Open(a.cfg.Database.Path, a.log)
	if err != nil {
		return nil, err
	}

	lb := &logbook{db: db}
	if err := lb.init(ctx, a); err != nil {
		db.Close()
		return nil, err
	}
	return lb, nil
}

func (lb *logbook) init(ctx context.Context, a *app) error {
	var err error
	if lb.flights, err = sqlite.NewFlightStorage(lb.db, a.log); err != nil {
		return err
	}
	if lb.aircraft, err = sqlite.NewAircraftStorage(lb.db, a.log); err != nil {
		return err
	}
	if lb.state, err = sqlite.NewStateStorage(lb.db, a.log); err != nil {
		return err
	}

	lb.airports = airports.Builtin()
	if path := a.cfg.FlightTime.AirportsFile; path != "" {
		n, err := lb.airports.LoadFile(path)
		if err != nil {
			return err
		}
		a.log.Debug("Loaded airports file", logger.String("path", path), logger.Int("airports", n))
	}
	if _, err := lb.state.LoadAirports(ctx, lb.airports); err != nil {
		return err
	}
	return nil
}

func (lb *logbook) Close() error {
	return lb.db.Close()
}

func (a *app) newImporter(lb *logbook) *importer.Importer {
	calc := flighttime.NewCalculator(lb.airports, lb.aircraft, flighttime.Options{
		IFRByDefault: a.cfg.FlightTime.IFRByDefault,
	})
	return importer.New(lb.flights, lb.aircraft, calc, importer.Options{
		Parse: roster.Options{
			Airports:            lb.airports,
			TakeoffLandingTimes: a.cfg.Import.TakeoffLandingTimes,
		},
		Reconcile: a.cfg.ReconcileOptions(),
		Workers:   a.cfg.Import.Workers,
	}, a.log)
}

// withLogbook opens the logbook around fn
func (a *app) withLogbook(ctx context.Context, fn func(lb *logbook) error) error {
	lb, err := a.openLogbook(ctx)
	if err != nil {
		return err
	}
	return errors.Join(fn(lb), lb.Close())
}
