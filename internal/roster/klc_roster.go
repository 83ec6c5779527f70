package roster

import (
	"regexp"
	"strings"
	"time"

	"github.com/yegors/flightlog/internal/flight"
)

// KLC roster layout:
//
//	KLM Cityhopper Crew Roster
//	Period: 01MAR21 - 31MAR21
//	MON 01MAR21
//	  C/I AMS 0610
//	  KL1234 AMS 0655 BLL 0820 E75 PH-EXA
//	  DH KL1235 BLL 0900 AMS 1025
//	TUE 02MAR21
//	  SIM AMS 1000 1400 E75
var (
	klcPeriodRe = regexp.MustCompile(`(?i)Period:\s*(\d{2}[A-Z]{3}\d{2})\s*-\s*(\d{2}[A-Z]{3}\d{2})`)
	klcDayRe    = regexp.MustCompile(`^(?:MON|TUE|WED|THU|FRI|SAT|SUN)\s+(\d{2}[A-Z]{3}\d{2})\b`)
	klcFlightRe = regexp.MustCompile(`^(?:(?P<dh>DH)\s+)?(?P<flight>` + flightNumberPattern + `)\s+` +
		`(?P<orig>` + airportPattern + `)\s+(?P<out>\d{4})\s+(?P<dest>` + airportPattern + `)\s+(?P<in>\d{4})` +
		`(?:\s+(?P<type>` + typePattern + `))?(?:\s+(?P<reg>` + registrationPattern + `))?\s*$`)
	klcSimRe = regexp.MustCompile(`^SIM\s+(?P<loc>` + airportPattern + `)\s+(?P<start>\d{4})\s+(?P<end>\d{4})` +
		`(?:\s+(?P<type>` + typePattern + `))?\s*$`)
	klcLookalikeRe = regexp.MustCompile(`^(?:DH\s+)?` + flightNumberPattern + `\s`)
)

// KlcRosterParser reads KLM Cityhopper planned rosters
type KlcRosterParser struct {
	opts Options
}

// NewKlcRosterParser creates a roster parser
func NewKlcRosterParser(opts Options) *KlcRosterParser {
	return &KlcRosterParser{opts: opts}
}

// Format implements Parser
func (p *KlcRosterParser) Format() string { return FormatKlcRoster }

// Parse implements Parser
func (p *KlcRosterParser) Parse(lines []string) (*Result, error) {
	result := &Result{Type: DocumentType{Kind: Planned, Format: FormatKlcRoster}}

	var day time.Time
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		lineNo := i + 1
		if line == "" {
			continue
		}

		if m := klcPeriodRe.FindStringSubmatch(line); m != nil {
			start, errStart := parseRosterDate(strings.ToUpper(m[1]))
			end, errEnd := parseRosterDate(strings.ToUpper(m[2]))
			if errStart != nil || errEnd != nil || end.Before(start) {
				result.skip(lineNo, line, "invalid period")
				continue
			}
			result.Period = Period{Start: start, End: end.AddDate(0, 0, 1)}
			continue
		}

		if m := klcDayRe.FindStringSubmatch(line); m != nil {
			d, err := parseRosterDate(m[1])
			if err != nil {
				result.skip(lineNo, line, "invalid day header")
				day = time.Time{}
				continue
			}
			day = d
			continue
		}

		if m := klcSimRe.FindStringSubmatch(line); m != nil {
			if day.IsZero() {
				result.skip(lineNo, line, "duty before first day header")
				continue
			}
			g := namedGroups(klcSimRe, m)
			start, end, err := blockTimes(day, g["start"], g["end"])
			if err != nil {
				result.skip(lineNo, line, err.Error())
				continue
			}
			loc := p.opts.airport(g["loc"])
			sim := flight.Flight{
				Orig:            loc,
				Dest:            loc,
				TimeOut:         start,
				TimeIn:          end,
				AircraftType:    g["type"],
				IsSim:           true,
				IsPlanned:       true,
				AutoFill:        true,
				UnknownToServer: true,
			}
			sim.SimTime = sim.Duration()
			result.add(lineNo, line, sim)
			continue
		}

		if m := klcFlightRe.FindStringSubmatch(line); m != nil {
			if day.IsZero() {
				result.skip(lineNo, line, "flight before first day header")
				continue
			}
			g := namedGroups(klcFlightRe, m)
			out, in, err := blockTimes(day, g["out"], g["in"])
			if err != nil {
				result.skip(lineNo, line, err.Error())
				continue
			}
			result.add(lineNo, line, flight.Flight{
				Orig:            p.opts.airport(g["orig"]),
				Dest:            p.opts.airport(g["dest"]),
				TimeOut:         out,
				TimeIn:          in,
				FlightNumber:    g["flight"],
				AircraftType:    g["type"],
				Registration:    g["reg"],
				IsDeadhead:      g["dh"] != "",
				IsPlanned:       true,
				AutoFill:        true,
				UnknownToServer: true,
			})
			continue
		}

		if klcLookalikeRe.MatchString(line) {
			result.skip(lineNo, line, "unrecognised flight line")
		}
	}

	if result.Period.IsZero() {
		result.periodFromFlights()
	}
	return result, nil
}
