package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yegors/flightlog/internal/airports"
	"github.com/yegors/flightlog/internal/roster"
	"github.com/yegors/flightlog/internal/storage/sqlite"
)

func newAircraftCmd(a *app) *cobra.Command {
	aircraft := &cobra.Command{
		Use:   "aircraft",
		Short: "Manage aircraft types and registrations",
		Long: `Aircraft types decide whether imported flights count as multi pilot
time. Registrations map to a type so documents that only print the
registration still get one; imports learn them automatically.`,
	}

	var multiPilot, multiEngine bool
	addType := &cobra.Command{
		Use:   "add-type NAME",
		Short: "Add or update an aircraft type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLogbook(cmd.Context(), func(lb *logbook) error {
				return lb.aircraft.SaveType(cmd.Context(), sqlite.AircraftType{
					Name: args[0], MultiPilot: multiPilot, MultiEngine: multiEngine,
				})
			})
		},
	}
	addType.Flags().BoolVar(&multiPilot, "multi-pilot", false, "certified for two pilots")
	addType.Flags().BoolVar(&multiEngine, "multi-engine", false, "more than one engine")

	types := &cobra.Command{
		Use:   "types",
		Short: "List aircraft types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLogbook(cmd.Context(), func(lb *logbook) error {
				list, err := lb.aircraft.ListTypes(cmd.Context())
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TYPE\tMULTI PILOT\tMULTI ENGINE")
				for _, t := range list {
					fmt.Fprintf(tw, "%s\t%t\t%t\n", t.Name, t.MultiPilot, t.MultiEngine)
				}
				return tw.Flush()
			})
		},
	}

	add := &cobra.Command{
		Use:   "add REGISTRATION TYPE",
		Short: "Record the type of a registration",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := strings.ToUpper(args[0])
			if !roster.IsRegistration(reg) {
				return fmt.Errorf("%q does not look like a registration (e.g. PH-EXA)", args[0])
			}
			return a.withLogbook(cmd.Context(), func(lb *logbook) error {
				return lb.aircraft.SaveAircraft(cmd.Context(), sqlite.Aircraft{
					Registration: reg, Type: strings.ToUpper(args[1]),
				})
			})
		},
	}

	aircraft.AddCommand(addType, types, add)
	return aircraft
}

func newAirportCmd(a *app) *cobra.Command {
	airport := &cobra.Command{
		Use:   "airport",
		Short: "Look up or add airports",
	}

	airport.AddCommand(&cobra.Command{
		Use:   "show CODE",
		Short: "Show an airport by ICAO or IATA code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLogbook(cmd.Context(), func(lb *logbook) error {
				ap, err := lb.airports.Lookup(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s (%.4f, %.4f)\n", ap.ICAO, ap.IATA, ap.Name, ap.Lat, ap.Lon)
				return nil
			})
		},
	})

	airport.AddCommand(&cobra.Command{
		Use:   "add ICAO IATA NAME LAT LON",
		Short: "Add an airport missing from the built-in list",
		Long:  `Add an airport so night time can be computed for it. Use "-" for a missing IATA code.`,
		Args:  cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			lat, err := strconv.ParseFloat(args[3], 64)
			if err != nil || lat < -90 || lat > 90 {
				return fmt.Errorf("invalid latitude %q", args[3])
			}
			lon, err := strconv.ParseFloat(args[4], 64)
			if err != nil || lon < -180 || lon > 180 {
				return fmt.Errorf("invalid longitude %q", args[4])
			}
			iata := strings.ToUpper(args[1])
			if iata == "-" {
				iata = ""
			}
			ap := airports.Airport{ICAO: strings.ToUpper(args[0]), IATA: iata, Name: args[2], Lat: lat, Lon: lon}

			return a.withLogbook(cmd.Context(), func(lb *logbook) error {
				return lb.state.SaveAirport(cmd.Context(), ap)
			})
		},
	})
	return airport
}
