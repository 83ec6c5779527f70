package roster

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/yegors/flightlog/internal/flight"
)

// KLC monthly overview layout:
//
//	KLM CITYHOPPER MONTHLY OVERVIEW
//	Period: 01-03-2021 - 31-03-2021
//	DATE       FLIGHT FROM TO  OFF   ON    REG    TYPE BLOCK
//	01-03-2021 KL1234 AMS  BLL 06:58 08:17 PH-EXA E75  01:19
var (
	klcMonthlyPeriodRe = regexp.MustCompile(`(?i)Period:\s*(\d{2}-\d{2}-\d{4})\s*-\s*(\d{2}-\d{2}-\d{4})`)
	klcMonthlyRowRe    = regexp.MustCompile(`^(?P<date>\d{2}-\d{2}-\d{4})\s+(?P<flight>` + flightNumberPattern + `)\s+` +
		`(?P<orig>` + airportPattern + `)\s+(?P<dest>` + airportPattern + `)\s+` +
		`(?P<out>\d{2}:\d{2})\s+(?P<in>\d{2}:\d{2})\s+(?P<reg>\S+)\s+(?P<type>\S+)\s+(?P<block>\d{1,2}:\d{2})\s*$`)
	klcMonthlyLookalikeRe = regexp.MustCompile(`^\d{2}-\d{2}-\d{4}\s`)
)

const klcMonthlyDate = "02-01-2006"

// KlcMonthlyParser reads KLM Cityhopper monthly overviews of flown flights
type KlcMonthlyParser struct {
	opts Options
}

// NewKlcMonthlyParser creates a monthly overview parser
func NewKlcMonthlyParser(opts Options) *KlcMonthlyParser {
	return &KlcMonthlyParser{opts: opts}
}

// Format implements Parser
func (p *KlcMonthlyParser) Format() string { return FormatKlcMonthly }

// Parse implements Parser
func (p *KlcMonthlyParser) Parse(lines []string) (*Result, error) {
	result := &Result{Type: DocumentType{Kind: Completed, Format: FormatKlcMonthly}}

	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		lineNo := i + 1
		if line == "" {
			continue
		}

		if m := klcMonthlyPeriodRe.FindStringSubmatch(line); m != nil {
			start, errStart := time.ParseInLocation(klcMonthlyDate, m[1], time.UTC)
			end, errEnd := time.ParseInLocation(klcMonthlyDate, m[2], time.UTC)
			if errStart != nil || errEnd != nil || end.Before(start) {
				result.skip(lineNo, line, "invalid period")
				continue
			}
			result.Period = Period{Start: start, End: end.AddDate(0, 0, 1)}
			continue
		}

		m := klcMonthlyRowRe.FindStringSubmatch(line)
		if m == nil {
			if klcMonthlyLookalikeRe.MatchString(line) {
				result.skip(lineNo, line, "unrecognised flight line")
			}
			continue
		}

		g := namedGroups(klcMonthlyRowRe, m)
		day, err := time.ParseInLocation(klcMonthlyDate, g["date"], time.UTC)
		if err != nil {
			result.skip(lineNo, line, "invalid date")
			continue
		}
		out, in, err := blockTimes(day, g["out"], g["in"])
		if err != nil {
			result.skip(lineNo, line, err.Error())
			continue
		}

		f := flight.Flight{
			Orig:            p.opts.airport(g["orig"]),
			Dest:            p.opts.airport(g["dest"]),
			TimeOut:         out,
			TimeIn:          in,
			FlightNumber:    g["flight"],
			AircraftType:    dashAsEmpty(g["type"]),
			Registration:    dashAsEmpty(g["reg"]),
			AutoFill:        true,
			UnknownToServer: true,
		}

		block, err := parseClock(g["block"])
		if err != nil {
			result.skip(lineNo, line, err.Error())
			continue
		}
		if block != f.Duration() {
			result.skip(lineNo, line, fmt.Sprintf("block time %s does not match %d minutes between off and on", g["block"], f.Duration()))
			continue
		}

		result.add(lineNo, line, f)
	}

	if result.Period.IsZero() {
		result.periodFromFlights()
	}
	return result, nil
}

func dashAsEmpty(s string) string {
	if strings.Trim(s, "-") == "" {
		return ""
	}
	return s
}
