package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yegors/flightlog/internal/airports"
	"github.com/yegors/flightlog/internal/flight"
	"github.com/yegors/flightlog/internal/roster"
	"github.com/yegors/flightlog/internal/storage/sqlite"
)

const dateLayout = "2006-01-02"

// hhmm formats minutes as h:mm
func hhmm(minutes int) string {
	return fmt.Sprintf("%d:%02d", minutes/60, minutes%60)
}

// filterFlags are the flags shared by flights and export
type filterFlags struct {
	from, to     string
	registration string
	limit        int
	deleted      bool
}

func (ff *filterFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&ff.from, "from", "", "first day, YYYY-MM-DD")
	cmd.Flags().StringVar(&ff.to, "to", "", "last day, YYYY-MM-DD")
	cmd.Flags().StringVar(&ff.registration, "registration", "", "only flights in this aircraft")
	cmd.Flags().IntVar(&ff.limit, "limit", 0, "at most this many flights")
	cmd.Flags().BoolVar(&ff.deleted, "deleted", false, "include deleted flights")
}

func (ff *filterFlags) filter() (sqlite.Filter, error) {
	filter := sqlite.Filter{
		Registration:   strings.ToUpper(ff.registration),
		Limit:          ff.limit,
		IncludeDeleted: ff.deleted,
	}
	if ff.from != "" {
		t, err := time.Parse(dateLayout, ff.from)
		if err != nil {
			return filter, fmt.Errorf("invalid --from: %w", err)
		}
		filter.From = t
	}
	if ff.to != "" {
		t, err := time.Parse(dateLayout, ff.to)
		if err != nil {
			return filter, fmt.Errorf("invalid --to: %w", err)
		}
		// the whole last day
		filter.To = t.AddDate(0, 0, 1)
	}
	return filter, nil
}

func newFlightsCmd(a *app) *cobra.Command {
	var ff filterFlags
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "flights",
		Short: "List logged flights",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := ff.filter()
			if err != nil {
				return err
			}
			return a.withLogbook(cmd.Context(), func(lb *logbook) error {
				flights, err := lb.flights.ListFlights(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(flights)
				}
				return printFlights(cmd.OutOrStdout(), flights)
			})
		},
	}

	ff.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printFlights(w io.Writer, flights []flight.Flight) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDATE\tFLIGHT\tROUTE\tOUT\tIN\tTOTAL\tNIGHT\tIFR\tTYPE\tREG\tFLAGS")
	for _, f := range flights {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s-%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			f.ID, f.TimeOut.Format(dateLayout), f.FlightNumber, f.Orig, f.Dest,
			f.TimeOut.Format("15:04"), f.TimeIn.Format("15:04"),
			hhmm(f.TotalTime()), hhmm(f.NightTime), hhmm(f.IFRTime),
			f.AircraftType, f.Registration, flightFlags(f))
	}
	return tw.Flush()
}

func flightFlags(f flight.Flight) string {
	var flags []string
	for _, flag := range []struct {
		set  bool
		name string
	}{
		{f.IsPlanned, "planned"},
		{f.IsSim, "sim"},
		{f.IsDeadhead, "dh"},
		{f.IsPF, "pf"},
		{f.AugmentedCrew != 0, "aug"},
		{f.IsDeleted, "deleted"},
		{f.UnknownToServer, "unsynced"},
	} {
		if flag.set {
			flags = append(flags, flag.name)
		}
	}
	return strings.Join(flags, ",")
}

func newExportCmd(a *app) *cobra.Command {
	var ff filterFlags
	var format string

	cmd := &cobra.Command{
		Use:   "export FILE",
		Short: "Export the logbook as CSV or iCalendar",
		Long: `Export flights to FILE, or to stdout when FILE is "-". The format
follows the file extension (.csv or .ics) unless --format is given. CSV
exports can be imported again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := ff.filter()
			if err != nil {
				return err
			}
			path := args[0]
			if format == "" {
				format = formatFromPath(path)
			}
			write, err := exportWriter(format)
			if err != nil {
				return err
			}

			return a.withLogbook(cmd.Context(), func(lb *logbook) error {
				flights, err := lb.flights.ListFlights(cmd.Context(), filter)
				if err != nil {
					return err
				}
				if path == "-" {
					return write(cmd.OutOrStdout(), flights)
				}

				file, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", path, err)
				}
				if err := write(file, flights); err != nil {
					file.Close()
					return err
				}
				if err := file.Close(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "exported %d flights to %s\n", len(flights), path)
				return nil
			})
		},
	}

	ff.register(cmd)
	cmd.Flags().StringVar(&format, "format", "", "csv or ical")
	return cmd
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ics", ".ical":
		return "ical"
	default:
		return "csv"
	}
}

func exportWriter(format string) (func(io.Writer, []flight.Flight) error, error) {
	switch format {
	case "csv":
		return roster.WriteLogbookCSV, nil
	case "ical", "ics":
		return roster.WriteICal, nil
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

func newTotalsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "totals",
		Short: "Show logbook totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLogbook(cmd.Context(), func(lb *logbook) error {
				totals, err := lb.flights.Totals(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(tw, "Flights\t%d\n", totals.Flights)
				fmt.Fprintf(tw, "Total time\t%s\n", hhmm(totals.TotalTime))
				fmt.Fprintf(tw, "Multi pilot\t%s\n", hhmm(totals.MultiPilot))
				fmt.Fprintf(tw, "Night\t%s\n", hhmm(totals.NightTime))
				fmt.Fprintf(tw, "IFR\t%s\n", hhmm(totals.IFRTime))
				fmt.Fprintf(tw, "Simulator\t%s\n", hhmm(totals.SimTime))
				fmt.Fprintf(tw, "Landings\t%d\n", totals.Landings)

				nm, unknown, err := distanceFlown(cmd.Context(), lb)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "Distance\t%.0f NM\n", nm)
				if unknown > 0 {
					fmt.Fprintf(tw, "Unknown route\t%d flights\n", unknown)
				}
				return tw.Flush()
			})
		},
	}
}

// distanceFlown sums the great circle distance of completed flights; flights
// with an airport missing from the registry are counted separately
func distanceFlown(ctx context.Context, lb *logbook) (float64, int, error) {
	flights, err := lb.flights.ListFlights(ctx, sqlite.Filter{})
	if err != nil {
		return 0, 0, err
	}
	var nm float64
	var unknown int
	for _, f := range flights {
		if f.IsPlanned || f.IsSim {
			continue
		}
		d, err := lb.airports.Distance(f.Orig, f.Dest)
		if errors.Is(err, airports.ErrUnknownAirport) {
			unknown++
			continue
		}
		if err != nil {
			return 0, 0, err
		}
		nm += d
	}
	return nm, unknown, nil
}
