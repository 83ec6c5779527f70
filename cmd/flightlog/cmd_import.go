package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/yegors/flightlog/internal/importer"
)

func newImportCmd(a *app) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Import rosters, monthly overviews or logbook exports",
		Long: `Import one or more documents. The document type is detected from its
content: KLC rosters and monthly overviews, KLM ICA monthly files, KLM
iCalendar rosters and flightlog CSV exports are supported, as text or PDF.

Each document is reconciled with the flights already in the logbook.
Conflicts with flights that were actually flown are reported, not written.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withLogbook(cmd.Context(), func(lb *logbook) error {
				imp := a.newImporter(lb)
				if dryRun {
					imp = imp.DryRun()
				}
				outcomes, err := imp.ImportFiles(cmd.Context(), args)
				if err != nil {
					return err
				}

				failed := 0
				for _, outcome := range outcomes {
					printOutcome(cmd.OutOrStdout(), outcome, dryRun)
					if outcome.Err != nil {
						failed++
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d documents failed", failed, len(outcomes))
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "show what would change without writing")
	return cmd
}

func printOutcome(w io.Writer, outcome importer.Outcome, dryRun bool) {
	if outcome.Err != nil {
		fmt.Fprintf(w, "%s: %v\n", outcome.Name, outcome.Err)
		return
	}

	period := "no period"
	if !outcome.Period.IsZero() {
		period = fmt.Sprintf("%s to %s", outcome.Period.Start.Format(dateLayout),
			outcome.Period.End.AddDate(0, 0, -1).Format(dateLayout))
	}
	verb := "applied"
	if dryRun {
		verb = "would apply"
	}
	fmt.Fprintf(w, "%s: %s, %s: %s %s\n", outcome.Name, outcome.Type, period, verb, outcome.Plan.Summary())

	for _, f := range outcome.Plan.New {
		fmt.Fprintf(w, "  + %s\n", f)
	}
	for _, change := range outcome.Plan.Updated {
		fmt.Fprintf(w, "  ~ %s\n", change.Merged)
	}
	for _, f := range outcome.Plan.Remove {
		fmt.Fprintf(w, "  - %s\n", f)
	}
	for _, conflict := range outcome.Plan.Conflicts {
		fmt.Fprintf(w, "  ! logged %s, document says %s\n", conflict.Existing, conflict.Incoming)
	}
	for _, skipped := range outcome.Skipped {
		fmt.Fprintf(w, "  ? line %d skipped (%s): %s\n", skipped.Line, skipped.Reason, skipped.Text)
	}
}
