package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yegors/flightlog/internal/crew"
)

func newCrewTimeCmd(a *app) *cobra.Command {
	var (
		total   int
		size    int
		takeoff bool
		landing bool
		times   int
		fixed   int
		pic     bool
	)

	cmd := &cobra.Command{
		Use:   "crew-time",
		Short: "Compute the loggable time of an augmented crew member",
		Long: `Compute how many minutes of a flight an augmented crew member may log.

The pilots doing the takeoff and the landing are credited --times minutes
for that phase; the rest is shared between the crew two seats at a time.
A PIC logs the whole flight. --fixed logs a fixed number of minutes.`,
		Example: `  flightlog crew-time --total 600 --size 3 --takeoff --landing
  flightlog crew-time --total 720 --size 4 --takeoff`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if total < 0 {
				return fmt.Errorf("--total must not be negative")
			}
			if times == 0 {
				times = a.cfg.Import.TakeoffLandingTimes
			}

			c := crew.AugmentedCrew{Size: size, DidTakeoff: takeoff, DidLanding: landing, Times: times}
			if fixed > 0 {
				c = crew.Fixed(fixed)
			}
			if err := c.Validate(); err != nil {
				return err
			}

			minutes := c.LogTime(total, pic)
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s of %s (encoded %d)\n", c, hhmm(minutes), hhmm(total), c.Encode())
			return nil
		},
	}

	cmd.Flags().IntVar(&total, "total", 0, "block time in minutes")
	cmd.Flags().IntVar(&size, "size", 2, "number of pilots")
	cmd.Flags().BoolVar(&takeoff, "takeoff", false, "did the takeoff")
	cmd.Flags().BoolVar(&landing, "landing", false, "did the landing")
	cmd.Flags().IntVar(&times, "times", 0, "minutes per takeoff or landing period (default from config)")
	cmd.Flags().IntVar(&fixed, "fixed", 0, "log a fixed number of minutes")
	cmd.Flags().BoolVar(&pic, "pic", false, "logging as PIC")
	_ = cmd.MarkFlagRequired("total")
	return cmd
}
