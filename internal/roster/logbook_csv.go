package roster

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/yegors/flightlog/internal/flight"
)

// column binds a CSV header to a flight field
type column struct {
	name string
	get  func(f *flight.Flight) string
	set  func(f *flight.Flight, v string) error
}

func stringColumn(name string, field func(f *flight.Flight) *string) column {
	return column{
		name: name,
		get:  func(f *flight.Flight) string { return *field(f) },
		set: func(f *flight.Flight, v string) error {
			*field(f) = v
			return nil
		},
	}
}

func intColumn(name string, field func(f *flight.Flight) *int) column {
	return column{
		name: name,
		get:  func(f *flight.Flight) string { return strconv.Itoa(*field(f)) },
		set: func(f *flight.Flight, v string) error {
			if v == "" {
				*field(f) = 0
				return nil
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*field(f) = n
			return nil
		},
	}
}

func boolColumn(name string, field func(f *flight.Flight) *bool) column {
	return column{
		name: name,
		get:  func(f *flight.Flight) string { return strconv.FormatBool(*field(f)) },
		set: func(f *flight.Flight, v string) error {
			if v == "" {
				*field(f) = false
				return nil
			}
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*field(f) = b
			return nil
		},
	}
}

func timeColumn(name string, field func(f *flight.Flight) *time.Time) column {
	return column{
		name: name,
		get:  func(f *flight.Flight) string { return field(f).UTC().Format(time.RFC3339) },
		set: func(f *flight.Flight, v string) error {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*field(f) = t.UTC()
			return nil
		},
	}
}

// logbookColumns is the export layout. The ID is written for reference but
// never read back: imported flights are new to the logbook.
var logbookColumns = []column{
	{
		name: "flightID",
		get:  func(f *flight.Flight) string { return strconv.FormatInt(f.ID, 10) },
		set:  func(*flight.Flight, string) error { return nil },
	},
	stringColumn("orig", func(f *flight.Flight) *string { return &f.Orig }),
	stringColumn("dest", func(f *flight.Flight) *string { return &f.Dest }),
	timeColumn("timeOut", func(f *flight.Flight) *time.Time { return &f.TimeOut }),
	timeColumn("timeIn", func(f *flight.Flight) *time.Time { return &f.TimeIn }),
	intColumn("correctedTotalTime", func(f *flight.Flight) *int { return &f.CorrectedTotalTime }),
	intColumn("multiPilotTime", func(f *flight.Flight) *int { return &f.MultiPilotTime }),
	intColumn("nightTime", func(f *flight.Flight) *int { return &f.NightTime }),
	intColumn("ifrTime", func(f *flight.Flight) *int { return &f.IFRTime }),
	intColumn("simTime", func(f *flight.Flight) *int { return &f.SimTime }),
	stringColumn("aircraftType", func(f *flight.Flight) *string { return &f.AircraftType }),
	stringColumn("registration", func(f *flight.Flight) *string { return &f.Registration }),
	stringColumn("name", func(f *flight.Flight) *string { return &f.Name }),
	stringColumn("name2", func(f *flight.Flight) *string { return &f.Name2 }),
	intColumn("takeoffDay", func(f *flight.Flight) *int { return &f.TakeoffDay }),
	intColumn("takeoffNight", func(f *flight.Flight) *int { return &f.TakeoffNight }),
	intColumn("landingDay", func(f *flight.Flight) *int { return &f.LandingDay }),
	intColumn("landingNight", func(f *flight.Flight) *int { return &f.LandingNight }),
	intColumn("autoLand", func(f *flight.Flight) *int { return &f.AutoLand }),
	stringColumn("flightNumber", func(f *flight.Flight) *string { return &f.FlightNumber }),
	stringColumn("remarks", func(f *flight.Flight) *string { return &f.Remarks }),
	boolColumn("isPIC", func(f *flight.Flight) *bool { return &f.IsPIC }),
	boolColumn("isPICUS", func(f *flight.Flight) *bool { return &f.IsPICUS }),
	boolColumn("isCoPilot", func(f *flight.Flight) *bool { return &f.IsCoPilot }),
	boolColumn("isDual", func(f *flight.Flight) *bool { return &f.IsDual }),
	boolColumn("isInstructor", func(f *flight.Flight) *bool { return &f.IsInstructor }),
	boolColumn("isSim", func(f *flight.Flight) *bool { return &f.IsSim }),
	boolColumn("isPF", func(f *flight.Flight) *bool { return &f.IsPF }),
	boolColumn("isPlanned", func(f *flight.Flight) *bool { return &f.IsPlanned }),
	boolColumn("isDeadhead", func(f *flight.Flight) *bool { return &f.IsDeadhead }),
	boolColumn("autoFill", func(f *flight.Flight) *bool { return &f.AutoFill }),
	intColumn("augmentedCrew", func(f *flight.Flight) *int { return &f.AugmentedCrew }),
	stringColumn("signature", func(f *flight.Flight) *string { return &f.Signature }),
}

func newLogbookCSVReader(in io.Reader) *csv.Reader {
	reader := csv.NewReader(in)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	return reader
}

// WriteLogbookCSV exports flights in the layout LogbookCSVParser reads.
// Deleted flights are left out.
func WriteLogbookCSV(out io.Writer, flights []flight.Flight) error {
	writer := csv.NewWriter(out)
	writer.Comma = ';'

	header := make([]string, len(logbookColumns))
	for i, col := range logbookColumns {
		header[i] = col.name
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(logbookColumns))
	for i := range flights {
		f := &flights[i]
		if f.IsDeleted {
			continue
		}
		for j, col := range logbookColumns {
			record[j] = col.get(f)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("write flight %d: %w", f.ID, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// LogbookCSVParser reads complete logbook exports
type LogbookCSVParser struct {
	opts Options
}

// NewLogbookCSVParser creates a logbook CSV parser
func NewLogbookCSVParser(opts Options) *LogbookCSVParser {
	return &LogbookCSVParser{opts: opts}
}

// Format implements Parser
func (p *LogbookCSVParser) Format() string { return FormatLogbookCSV }

// Parse implements Parser. Columns are matched by header name so older exports
// with fewer columns still import.
func (p *LogbookCSVParser) Parse(lines []string) (*Result, error) {
	reader := newLogbookCSVReader(strings.NewReader(strings.Join(lines, "\n")))
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	byName := make(map[string]column, len(logbookColumns))
	for _, col := range logbookColumns {
		byName[col.name] = col
	}
	columns := make([]*column, len(header))
	for i, name := range header {
		if col, ok := byName[strings.TrimSpace(name)]; ok {
			columns[i] = &col
		}
	}

	result := &Result{Type: DocumentType{Kind: CompleteLogbook, Format: FormatLogbookCSV}}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				result.skip(parseErr.Line, "", parseErr.Err.Error())
				continue
			}
			return nil, fmt.Errorf("read record: %w", err)
		}
		line, _ := reader.FieldPos(0)

		f := flight.Flight{UnknownToServer: true}
		var fieldErr error
		for i, value := range record {
			if i >= len(columns) || columns[i] == nil {
				continue
			}
			if err := columns[i].set(&f, strings.TrimSpace(value)); err != nil {
				fieldErr = err
				break
			}
		}
		if fieldErr != nil {
			result.skip(line, strings.Join(record, ";"), fieldErr.Error())
			continue
		}

		f.Orig = p.opts.airport(f.Orig)
		f.Dest = p.opts.airport(f.Dest)
		result.add(line, strings.Join(record, ";"), f)
	}

	result.periodFromFlights()
	return result, nil
}
