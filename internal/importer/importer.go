// Package importer runs documents through detection, parsing, reconciliation
// and time calculation and writes the result to the logbook.
package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yegors/flightlog/internal/flight"
	"github.com/yegors/flightlog/internal/flighttime"
	"github.com/yegors/flightlog/internal/reconcile"
	"github.com/yegors/flightlog/internal/roster"
	"github.com/yegors/flightlog/internal/storage/sqlite"
	"github.com/yegors/flightlog/pkg/logger"
)

// Document is a file to import
type Document struct {
	Name string
	Data []byte

	// readErr is set when the file behind the document could not be read
	readErr error
}

// Options control an import
type Options struct {
	Parse     roster.Options
	Reconcile reconcile.Options
	// DryRun computes plans without writing them
	DryRun bool
	// Workers bounds concurrent parsing. Defaults to the number of CPUs.
	Workers int
}

// Outcome is what happened to one document
type Outcome struct {
	Name    string               `json:"name"`
	Type    roster.DocumentType  `json:"type"`
	Period  roster.Period        `json:"period"`
	Skipped []roster.SkippedLine `json:"skipped,omitempty"`
	Plan    *reconcile.Plan      `json:"plan,omitempty"`
	Applied *sqlite.PlanResult   `json:"applied,omitempty"`
	Err     error                `json:"-"`
	Error   string               `json:"error,omitempty"`
}

// Importer imports documents into the logbook
type Importer struct {
	flights  *sqlite.FlightStorage
	aircraft *sqlite.AircraftStorage
	calc     *flighttime.Calculator
	opts     Options
	logger   *logger.Logger
	now      func() time.Time
}

// New creates an importer
func New(flights *sqlite.FlightStorage, aircraft *sqlite.AircraftStorage, calc *flighttime.Calculator, opts Options, log *logger.Logger) *Importer {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	now := opts.Reconcile.Now
	if now == nil {
		now = time.Now
	}
	return &Importer{
		flights:  flights,
		aircraft: aircraft,
		calc:     calc,
		opts:     opts,
		logger:   log.Named("importer"),
		now:      now,
	}
}

// DryRun returns a copy of the importer that only computes plans
func (im *Importer) DryRun() *Importer {
	c := *im
	c.opts.DryRun = true
	return &c
}

// Import parses all documents concurrently, then reconciles and applies them
// one by one in the given order. A document that fails does not stop the
// others; its error is in its Outcome.
func (im *Importer) Import(ctx context.Context, docs []Document) ([]Outcome, error) {
	results, parseErrs := im.parseAll(ctx, docs)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outcomes := make([]Outcome, len(docs))
	for i, doc := range docs {
		out := &outcomes[i]
		out.Name = doc.Name
		if parseErrs[i] != nil {
			out.fail(parseErrs[i])
			im.logger.Warn("Failed to parse document", logger.String("name", doc.Name), logger.Error(parseErrs[i]))
			continue
		}

		result := results[i]
		out.Type = result.Type
		out.Period = result.Period
		out.Skipped = result.Skipped

		plan, err := im.Check(ctx, result)
		if err != nil {
			out.fail(err)
			continue
		}
		out.Plan = plan

		if im.opts.DryRun || plan.IsEmpty() {
			continue
		}
		applied, err := im.flights.ApplyPlan(ctx, plan, im.now())
		if err != nil {
			out.fail(err)
			continue
		}
		out.Applied = &applied
	}
	return outcomes, nil
}

// ImportFiles reads the files at paths and imports them. A file that cannot
// be read is reported in its Outcome like any other failed document.
func (im *Importer) ImportFiles(ctx context.Context, paths []string) ([]Outcome, error) {
	docs := make([]Document, 0, len(paths))
	for _, path := range paths {
		doc := Document{Name: filepath.Base(path)}
		data, err := os.ReadFile(path)
		if err != nil {
			doc.readErr = fmt.Errorf("failed to read %s: %w", path, err)
		}
		doc.Data = data
		docs = append(docs, doc)
	}
	return im.Import(ctx, docs)
}

func (o *Outcome) fail(err error) {
	o.Err = err
	o.Error = err.Error()
}

// parseAll parses documents with a bounded number of workers. Results and
// errors are indexed like docs.
func (im *Importer) parseAll(ctx context.Context, docs []Document) ([]*roster.Result, []error) {
	results := make([]*roster.Result, len(docs))
	errs := make([]error, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.opts.Workers)
	for i, doc := range docs {
		g.Go(func() error {
			if doc.readErr != nil {
				errs[i] = doc.readErr
				return nil
			}
			if err := gctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			result, err := roster.ParseDocument(doc.Data, im.opts.Parse)
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", doc.Name, err)
				return nil
			}
			im.logger.Debug("Parsed document",
				logger.String("name", doc.Name),
				logger.String("type", result.Type.String()),
				logger.Int("flights", len(result.Flights)),
				logger.Int("skipped", len(result.Skipped)))
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()
	return results, errs
}

// Check reconciles a parsed document against the logbook and completes the
// flights the plan would write.
func (im *Importer) Check(ctx context.Context, result *roster.Result) (*reconcile.Plan, error) {
	checker, err := reconcile.CheckerFor(result.Type.Kind, im.opts.Reconcile, im.logger)
	if err != nil {
		return nil, err
	}

	existing, err := im.existingFor(ctx, result)
	if err != nil {
		return nil, err
	}

	plan := checker.Check(result, existing)
	for i := range plan.New {
		plan.New[i] = im.complete(ctx, plan.New[i])
	}
	for i := range plan.Updated {
		plan.Updated[i].Merged = im.complete(ctx, plan.Updated[i].Merged)
	}
	return plan, nil
}

// existingFor loads the flights a document could touch: the whole logbook for
// logbook imports, else the document period padded by a day on each side.
func (im *Importer) existingFor(ctx context.Context, result *roster.Result) ([]flight.Flight, error) {
	if result.Type.Kind == roster.CompleteLogbook {
		return im.flights.ListFlights(ctx, sqlite.Filter{})
	}
	if result.Period.IsZero() {
		return nil, nil
	}
	return im.flights.ListFlights(ctx, sqlite.Filter{
		From: result.Period.Start.AddDate(0, 0, -1),
		To:   result.Period.End.AddDate(0, 0, 1),
	})
}

// complete fills the aircraft type from the registration and recomputes the
// time columns of auto-filled flights.
func (im *Importer) complete(ctx context.Context, f flight.Flight) flight.Flight {
	im.learnAircraft(ctx, &f)
	if !f.AutoFill {
		return f
	}

	f.CorrectedTotalTime = 0
	completed, err := im.calc.Apply(f)
	if err != nil {
		if errors.Is(err, flighttime.ErrUnknownAirport) {
			im.logger.Warn("Night time not computed", logger.String("flight", f.String()), logger.Error(err))
		} else {
			im.logger.Error("Failed to compute flight times", logger.String("flight", f.String()), logger.Error(err))
		}
	}
	return completed
}

func (im *Importer) learnAircraft(ctx context.Context, f *flight.Flight) {
	if im.aircraft == nil || f.Registration == "" {
		return
	}
	if f.AircraftType == "" {
		typ, err := im.aircraft.TypeOf(ctx, f.Registration)
		if err == nil {
			f.AircraftType = typ
		} else if !errors.Is(err, sqlite.ErrNotFound) {
			im.logger.Warn("Failed to look up aircraft", logger.String("registration", f.Registration), logger.Error(err))
		}
		return
	}
	if im.opts.DryRun {
		return
	}
	if err := im.aircraft.SaveAircraft(ctx, sqlite.Aircraft{Registration: f.Registration, Type: f.AircraftType}); err != nil {
		im.logger.Warn("Failed to record aircraft", logger.String("registration", f.Registration), logger.Error(err))
	}
}
