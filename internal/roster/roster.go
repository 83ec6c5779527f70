// Package roster turns airline roster and logbook documents into flights.
//
// A document is first reduced to text lines (Extract), then recognised by its
// fingerprint (Detect) and handed to the parser for that layout. Parsers are
// stateless and never touch the logbook; reconciling the result is left to the
// reconcile package.
package roster

import (
	"errors"
	"fmt"
	"time"

	"github.com/yegors/flightlog/internal/airports"
	"github.com/yegors/flightlog/internal/crew"
	"github.com/yegors/flightlog/internal/flight"
)

// ErrUnsupportedDocument is returned for documents no parser recognises
var ErrUnsupportedDocument = errors.New("unsupported document")

// Kind tells what a document says about the logbook
type Kind int

const (
	Unsupported Kind = iota
	// Planned documents list flights that are scheduled (rosters)
	Planned
	// Completed documents list flights actually flown in a period
	Completed
	// CompleteLogbook documents hold a whole logbook
	CompleteLogbook
)

func (k Kind) String() string {
	switch k {
	case Planned:
		return "planned"
	case Completed:
		return "completed"
	case CompleteLogbook:
		return "complete-logbook"
	default:
		return "unsupported"
	}
}

// Known document formats
const (
	FormatKlcRoster     = "klc-roster"
	FormatKlcMonthly    = "klc-monthly"
	FormatKlmIcaMonthly = "klm-ica-monthly"
	FormatKlmIcal       = "klm-ical"
	FormatLogbookCSV    = "logbook-csv"
)

// DocumentType is the result of Detect
type DocumentType struct {
	Kind   Kind   `json:"kind"`
	Format string `json:"format,omitempty"`
}

func (d DocumentType) String() string {
	if d.Format == "" {
		return d.Kind.String()
	}
	return fmt.Sprintf("%s (%s)", d.Format, d.Kind)
}

// Period is the half-open time range a document covers
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t lies inside the period
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// IsZero reports whether the period was never set
func (p Period) IsZero() bool {
	return p.Start.IsZero() && p.End.IsZero()
}

// SkippedLine is a line that looked like a flight but could not be used
type SkippedLine struct {
	Line   int    `json:"line"`
	Text   string `json:"text"`
	Reason string `json:"reason"`
}

// Result is what a parser extracted from a document
type Result struct {
	Type    DocumentType    `json:"type"`
	Period  Period          `json:"period"`
	Flights []flight.Flight `json:"flights"`
	Skipped []SkippedLine   `json:"skipped,omitempty"`
}

func (r *Result) skip(line int, text, reason string) {
	r.Skipped = append(r.Skipped, SkippedLine{Line: line, Text: text, Reason: reason})
}

// add validates a flight and either keeps it or records the line as skipped
func (r *Result) add(line int, text string, f flight.Flight) {
	if err := f.Validate(); err != nil {
		r.skip(line, text, err.Error())
		return
	}
	r.Flights = append(r.Flights, f)
}

// periodFromFlights spans whole UTC days around the parsed flights
func (r *Result) periodFromFlights() {
	if len(r.Flights) == 0 {
		return
	}
	start, end := r.Flights[0].TimeOut, r.Flights[0].TimeIn
	for _, f := range r.Flights[1:] {
		if f.TimeOut.Before(start) {
			start = f.TimeOut
		}
		if f.TimeIn.After(end) {
			end = f.TimeIn
		}
	}
	r.Period = Period{Start: startOfDay(start), End: startOfDay(end).AddDate(0, 0, 1)}
}

// Options are shared by all parsers
type Options struct {
	// Airports normalises printed codes to ICAO. May be nil.
	Airports *airports.Registry
	// TakeoffLandingTimes is used for augmented crews found in documents
	TakeoffLandingTimes int
}

func (o Options) airport(code string) string {
	if o.Airports == nil {
		return code
	}
	return o.Airports.Normalize(code)
}

func (o Options) crewTimes() int {
	if o.TakeoffLandingTimes > 0 {
		return o.TakeoffLandingTimes
	}
	return crew.DefaultTakeoffLandingTimes
}

// Parser extracts flights from the lines of one document layout
type Parser interface {
	Format() string
	Parse(lines []string) (*Result, error)
}

// ParserFor returns the parser for a detected document type
func ParserFor(docType DocumentType, opts Options) (Parser, error) {
	switch docType.Format {
	case FormatKlcRoster:
		return NewKlcRosterParser(opts), nil
	case FormatKlcMonthly:
		return NewKlcMonthlyParser(opts), nil
	case FormatKlmIcaMonthly:
		return NewKlmIcaMonthlyParser(opts), nil
	case FormatKlmIcal:
		return NewKlmIcalParser(opts), nil
	case FormatLogbookCSV:
		return NewLogbookCSVParser(opts), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDocument, docType)
	}
}

// Parse detects the document type of lines and runs the matching parser
func Parse(lines []string, opts Options) (*Result, error) {
	docType := Detect(lines)
	parser, err := ParserFor(docType, opts)
	if err != nil {
		return nil, err
	}
	result, err := parser.Parse(lines)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", docType.Format, err)
	}
	return result, nil
}

// ParseDocument extracts text from raw document bytes and parses it
func ParseDocument(data []byte, opts Options) (*Result, error) {
	lines, err := Extract(data)
	if err != nil {
		return nil, err
	}
	return Parse(lines, opts)
}
