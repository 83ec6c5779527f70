package roster

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/yegors/flightlog/internal/crew"
	"github.com/yegors/flightlog/internal/flight"
)

// KLM ICA monthly file layout:
//
//	KLM ICA FLIGHT CREW MONTHLY FILE
//	Month: MAR 2021
//	DATE  FLIGHT DEP ARR BLOCK-OFF BLOCK-ON A/C  REG    CREW
//	01MAR KL0641 AMS JFK 1012      1803     B772 PH-BQA 3 L
//
// The crew column holds the number of pilots; T and L mark that the logbook
// owner did the takeoff and/or the landing.
var (
	icaMonthRe = regexp.MustCompile(`(?i)Month:\s*([A-Z]{3})\s+(\d{4})`)
	icaRowRe   = regexp.MustCompile(`^(?P<day>\d{2})(?P<month>[A-Z]{3})\s+(?P<flight>` + flightNumberPattern + `)\s+` +
		`(?P<orig>` + airportPattern + `)\s+(?P<dest>` + airportPattern + `)\s+(?P<out>\d{4})\s+(?P<in>\d{4})\s+` +
		`(?P<type>` + typePattern + `)\s+(?P<reg>` + registrationPattern + `)\s+(?P<crew>\d{1,2})(?:\s+(?P<marks>[TL]{1,2}))?\s*$`)
	icaLookalikeRe = regexp.MustCompile(`^\d{2}[A-Z]{3}\s+` + flightNumberPattern + `\s`)
)

// KlmIcaMonthlyParser reads KLM intercontinental monthly files of flown flights
type KlmIcaMonthlyParser struct {
	opts Options
}

// NewKlmIcaMonthlyParser creates an ICA monthly file parser
func NewKlmIcaMonthlyParser(opts Options) *KlmIcaMonthlyParser {
	return &KlmIcaMonthlyParser{opts: opts}
}

// Format implements Parser
func (p *KlmIcaMonthlyParser) Format() string { return FormatKlmIcaMonthly }

// Parse implements Parser
func (p *KlmIcaMonthlyParser) Parse(lines []string) (*Result, error) {
	result := &Result{Type: DocumentType{Kind: Completed, Format: FormatKlmIcaMonthly}}

	var month time.Time
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		lineNo := i + 1
		if line == "" {
			continue
		}

		if m := icaMonthRe.FindStringSubmatch(line); m != nil && month.IsZero() {
			parsed, err := time.ParseInLocation("Jan 2006", m[1]+" "+m[2], time.UTC)
			if err != nil {
				result.skip(lineNo, line, "invalid month")
				continue
			}
			month = parsed
			result.Period = Period{Start: month, End: month.AddDate(0, 1, 0)}
			continue
		}

		m := icaRowRe.FindStringSubmatch(line)
		if m == nil {
			if icaLookalikeRe.MatchString(line) {
				result.skip(lineNo, line, "unrecognised flight line")
			}
			continue
		}
		if month.IsZero() {
			return nil, errors.New("flight rows before the Month line")
		}

		g := namedGroups(icaRowRe, m)
		day, err := p.rowDate(month, g["day"], g["month"])
		if err != nil {
			result.skip(lineNo, line, err.Error())
			continue
		}
		out, in, err := blockTimes(day, g["out"], g["in"])
		if err != nil {
			result.skip(lineNo, line, err.Error())
			continue
		}

		size, _ := strconv.Atoi(g["crew"])
		augmented := crew.AugmentedCrew{
			Size:       size,
			DidTakeoff: strings.Contains(g["marks"], "T"),
			DidLanding: strings.Contains(g["marks"], "L"),
			Times:      p.opts.crewTimes(),
		}
		if err := augmented.Validate(); err != nil {
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
			AugmentedCrew:   augmented.Encode(),
			IsPF:            augmented.IsAugmented() && (augmented.DidTakeoff || augmented.DidLanding),
			AutoFill:        true,
			UnknownToServer: true,
		})
	}

	if month.IsZero() {
		return nil, errors.New("missing Month line")
	}
	return result, nil
}

// rowDate places a DDMMM row date in the document's year. A January row in a
// December file belongs to the next year, a December row in a January file to
// the previous one.
func (p *KlmIcaMonthlyParser) rowDate(month time.Time, day, mon string) (time.Time, error) {
	parsed, err := time.ParseInLocation("02Jan2006", day+mon+strconv.Itoa(month.Year()), time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	switch {
	case month.Month() == time.December && parsed.Month() == time.January:
		parsed = parsed.AddDate(1, 0, 0)
	case month.Month() == time.January && parsed.Month() == time.December:
		parsed = parsed.AddDate(-1, 0, 0)
	}
	return parsed, nil
}
