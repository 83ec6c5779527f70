package reconcile

import (
	"fmt"
	"time"

	"github.com/yegors/flightlog/internal/flight"
	"github.com/yegors/flightlog/internal/roster"
	"github.com/yegors/flightlog/pkg/logger"
)

// ConflictPolicy decides what happens to completed flights a document disagrees with
type ConflictPolicy string

const (
	// PolicyReport leaves both versions and lists the conflict
	PolicyReport ConflictPolicy = "report"
	// PolicyPreferIncoming overwrites the logbook with the document
	PolicyPreferIncoming ConflictPolicy = "prefer-incoming"
	// PolicyKeepExisting ignores the document
	PolicyKeepExisting ConflictPolicy = "keep-existing"
)

// ParsePolicy validates a policy name. Empty means PolicyReport.
func ParsePolicy(s string) (ConflictPolicy, error) {
	switch ConflictPolicy(s) {
	case "", PolicyReport:
		return PolicyReport, nil
	case PolicyPreferIncoming, PolicyKeepExisting:
		return ConflictPolicy(s), nil
	default:
		return "", fmt.Errorf("unknown conflict policy %q", s)
	}
}

// Options tune the checkers
type Options struct {
	Window             time.Duration
	ConflictPolicy     ConflictPolicy
	RemoveStalePlanned bool
	IncludeDeadhead    bool
	// Now stamps merged flights. Defaults to time.Now.
	Now func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Checker turns a parsed document into a plan against the existing flights.
// existing should hold at least the flights around the document's period.
type Checker interface {
	Check(result *roster.Result, existing []flight.Flight) *Plan
}

// CheckerFor picks the checker for a kind of document
func CheckerFor(kind roster.Kind, opts Options, log *logger.Logger) (Checker, error) {
	switch kind {
	case roster.Planned:
		return NewRosterChecker(opts, log), nil
	case roster.Completed:
		return NewMonthlyChecker(opts, log), nil
	case roster.CompleteLogbook:
		return NewLogbookChecker(opts, log), nil
	default:
		return nil, fmt.Errorf("%w: %s", roster.ErrUnsupportedDocument, kind)
	}
}

type outcome int

const (
	outcomeNew outcome = iota
	outcomeUnchanged
	outcomeUpdated
	outcomeConflict
)

func (o outcome) String() string {
	switch o {
	case outcomeUnchanged:
		return "unchanged"
	case outcomeUpdated:
		return "updated"
	case outcomeConflict:
		return "conflict"
	default:
		return "new"
	}
}

// classify compares an incoming flight with its matched existing flight
func classify(existing, incoming flight.Flight) outcome {
	// a roster never overrides what was actually flown
	if incoming.IsPlanned && !existing.IsPlanned {
		return outcomeUnchanged
	}

	sameTimes := existing.TimeOut.Equal(incoming.TimeOut) && existing.TimeIn.Equal(incoming.TimeIn)
	fills, differs := compareDetails(existing, incoming)

	if existing.IsPlanned {
		if sameTimes && !fills && !differs && existing.IsPlanned == incoming.IsPlanned &&
			existing.IsDeadhead == incoming.IsDeadhead {
			return outcomeUnchanged
		}
		return outcomeUpdated
	}

	switch {
	case !sameTimes || differs:
		return outcomeConflict
	case fills:
		return outcomeUpdated
	default:
		return outcomeUnchanged
	}
}

// compareDetails reports whether incoming fills fields that are blank in
// existing, and whether it disagrees with fields that are set in both.
func compareDetails(existing, incoming flight.Flight) (fills, differs bool) {
	check := func(have, got string) {
		switch {
		case got == "" || got == have:
		case have == "":
			fills = true
		default:
			differs = true
		}
	}
	check(existing.FlightNumber, incoming.FlightNumber)
	check(existing.Registration, incoming.Registration)
	check(existing.AircraftType, incoming.AircraftType)

	switch {
	case incoming.AugmentedCrew == 0 || incoming.AugmentedCrew == existing.AugmentedCrew:
	case existing.AugmentedCrew == 0:
		fills = true
	default:
		differs = true
	}
	return fills, differs
}

// matcher hands out existing flights, each at most once
type matcher struct {
	existing []flight.Flight
	claimed  []bool
	window   time.Duration
}

func newMatcher(existing []flight.Flight, window time.Duration) *matcher {
	return &matcher{existing: existing, claimed: make([]bool, len(existing)), window: window}
}

// claim returns the best unclaimed match for f
func (m *matcher) claim(f flight.Flight) (flight.Flight, bool) {
	for _, i := range matchIndexes(f, m.existing, m.window) {
		if !m.claimed[i] {
			m.claimed[i] = true
			return m.existing[i], true
		}
	}
	return flight.Flight{}, false
}

// unclaimedPlanned returns planned flights inside period that matched nothing
func (m *matcher) unclaimedPlanned(period roster.Period) []flight.Flight {
	if period.IsZero() {
		return nil
	}
	var stale []flight.Flight
	for i, f := range m.existing {
		if m.claimed[i] || f.IsDeleted || !f.IsPlanned || !period.Contains(f.TimeOut) {
			continue
		}
		stale = append(stale, f)
	}
	return stale
}

// classifyAll runs the shared matching and returns the plan plus the matcher
// so callers can look at what stayed unclaimed.
func classifyAll(result *roster.Result, existing []flight.Flight, opts Options, log *logger.Logger) (*Plan, *matcher) {
	plan := &Plan{}
	m := newMatcher(existing, opts.Window)
	now := opts.now()

	for _, incoming := range result.Flights {
		if incoming.IsDeadhead && !opts.IncludeDeadhead {
			log.Debug("Skipping deadhead", logger.String("flight", incoming.String()))
			continue
		}

		match, ok := m.claim(incoming)
		if !ok {
			plan.New = append(plan.New, incoming)
			continue
		}

		verdict := classify(match, incoming)
		log.Debug("Matched flight",
			logger.String("incoming", incoming.String()),
			logger.Int64("existing_id", match.ID),
			logger.String("outcome", verdict.String()))

		switch verdict {
		case outcomeUnchanged:
			plan.Unchanged = append(plan.Unchanged, match)
		case outcomeUpdated:
			plan.Updated = append(plan.Updated, Change{
				Existing: match,
				Incoming: incoming,
				Merged:   MergeFlights(match, incoming, now),
			})
		case outcomeConflict:
			plan.Conflicts = append(plan.Conflicts, Conflict{Existing: match, Incoming: incoming})
		}
	}
	return plan, m
}

// RosterChecker handles planned documents. Planned flights follow the roster,
// completed flights are left alone and planned flights that disappeared from
// the roster are removed.
type RosterChecker struct {
	opts   Options
	logger *logger.Logger
}

// NewRosterChecker creates a checker for planned documents
func NewRosterChecker(opts Options, log *logger.Logger) *RosterChecker {
	return &RosterChecker{opts: opts, logger: log.Named("roster-check")}
}

// Check implements Checker
func (c *RosterChecker) Check(result *roster.Result, existing []flight.Flight) *Plan {
	plan, m := classifyAll(result, existing, c.opts, c.logger)

	// a planned flight can only conflict with a completed one, which the
	// roster never touches
	for _, conflict := range plan.Conflicts {
		plan.Unchanged = append(plan.Unchanged, conflict.Existing)
	}
	plan.Conflicts = nil

	plan.Remove = m.unclaimedPlanned(result.Period)

	c.logger.Info("Checked roster",
		logger.String("period_start", result.Period.Start.Format(time.DateOnly)),
		logger.String("summary", plan.Summary().String()))
	return plan
}

// MonthlyChecker handles documents listing the flights actually flown
type MonthlyChecker struct {
	opts   Options
	logger *logger.Logger
}

// NewMonthlyChecker creates a checker for completed documents
func NewMonthlyChecker(opts Options, log *logger.Logger) *MonthlyChecker {
	return &MonthlyChecker{opts: opts, logger: log.Named("monthly-check")}
}

// Check implements Checker
func (c *MonthlyChecker) Check(result *roster.Result, existing []flight.Flight) *Plan {
	plan, m := classifyAll(result, existing, c.opts, c.logger)

	switch c.opts.ConflictPolicy {
	case PolicyPreferIncoming:
		now := c.opts.now()
		for _, conflict := range plan.Conflicts {
			plan.Updated = append(plan.Updated, Change{
				Existing: conflict.Existing,
				Incoming: conflict.Incoming,
				Merged:   MergeFlights(conflict.Existing, conflict.Incoming, now),
			})
		}
		plan.Conflicts = nil
	case PolicyKeepExisting:
		for _, conflict := range plan.Conflicts {
			plan.Unchanged = append(plan.Unchanged, conflict.Existing)
		}
		plan.Conflicts = nil
	}

	if c.opts.RemoveStalePlanned {
		plan.Remove = m.unclaimedPlanned(result.Period)
	}

	c.logger.Info("Checked monthly overview",
		logger.String("period_start", result.Period.Start.Format(time.DateOnly)),
		logger.String("policy", string(c.opts.ConflictPolicy)),
		logger.String("summary", plan.Summary().String()))
	return plan
}

// LogbookChecker handles complete logbook imports. Flights already present
// with the same route and block times are skipped, everything else is added.
type LogbookChecker struct {
	opts   Options
	logger *logger.Logger
}

// NewLogbookChecker creates a checker for complete logbooks
func NewLogbookChecker(opts Options, log *logger.Logger) *LogbookChecker {
	return &LogbookChecker{opts: opts, logger: log.Named("logbook-check")}
}

type flightKey struct {
	orig, dest string
	out, in    int64
}

func keyOf(f flight.Flight) flightKey {
	return flightKey{orig: f.Orig, dest: f.Dest, out: f.TimeOut.Unix(), in: f.TimeIn.Unix()}
}

// Check implements Checker
func (c *LogbookChecker) Check(result *roster.Result, existing []flight.Flight) *Plan {
	known := make(map[flightKey]flight.Flight, len(existing))
	for _, f := range existing {
		if !f.IsDeleted {
			known[keyOf(f)] = f
		}
	}

	plan := &Plan{}
	for _, incoming := range result.Flights {
		key := keyOf(incoming)
		if f, ok := known[key]; ok {
			plan.Unchanged = append(plan.Unchanged, f)
			continue
		}
		plan.New = append(plan.New, incoming)
		// duplicates inside the file itself are added once
		known[key] = incoming
	}

	c.logger.Info("Checked logbook", logger.String("summary", plan.Summary().String()))
	return plan
}
