package roster

import (
	"fmt"
	"regexp"
	"strings"

	ics "github.com/arran4/golang-ical"

	"github.com/yegors/flightlog/internal/flight"
)

// KLM publishes planned flights as an iCalendar feed. Flight events carry a
// summary like "KL 1234 AMS-JFK" (optionally prefixed by DH for deadheading);
// all other events (standby, leave, training) are ignored.
var klmIcalSummaryRe = regexp.MustCompile(`^(?:(?P<dh>DH)\s+)?(?P<carrier>[A-Z0-9]{2})\s?(?P<number>\d{1,4}[A-Z]?)\s+` +
	`(?P<orig>` + airportPattern + `)\s*-\s*(?P<dest>` + airportPattern + `)\b`)

// KlmIcalParser reads KLM iCalendar rosters
type KlmIcalParser struct {
	opts Options
}

// NewKlmIcalParser creates an iCalendar roster parser
func NewKlmIcalParser(opts Options) *KlmIcalParser {
	return &KlmIcalParser{opts: opts}
}

// Format implements Parser
func (p *KlmIcalParser) Format() string { return FormatKlmIcal }

// Parse implements Parser
func (p *KlmIcalParser) Parse(lines []string) (*Result, error) {
	cal, err := ics.ParseCalendar(strings.NewReader(strings.Join(lines, "\r\n") + "\r\n"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse calendar: %w", err)
	}

	result := &Result{Type: DocumentType{Kind: Planned, Format: FormatKlmIcal}}
	for i, event := range cal.Events() {
		summaryProp := event.GetProperty(ics.ComponentPropertySummary)
		if summaryProp == nil {
			continue
		}
		summary := strings.TrimSpace(summaryProp.Value)

		m := klmIcalSummaryRe.FindStringSubmatch(strings.ToUpper(summary))
		if m == nil {
			continue
		}
		g := namedGroups(klmIcalSummaryRe, m)

		// events have no line numbers of their own, report the event index
		eventNo := i + 1
		start, err := event.GetStartAt()
		if err != nil {
			result.skip(eventNo, summary, "invalid DTSTART")
			continue
		}
		end, err := event.GetEndAt()
		if err != nil {
			result.skip(eventNo, summary, "invalid DTEND")
			continue
		}

		result.add(eventNo, summary, flight.Flight{
			Orig:            p.opts.airport(g["orig"]),
			Dest:            p.opts.airport(g["dest"]),
			TimeOut:         start.UTC(),
			TimeIn:          end.UTC(),
			FlightNumber:    normaliseFlightNumber(g["carrier"], g["number"]),
			IsDeadhead:      g["dh"] != "",
			IsPlanned:       true,
			AutoFill:        true,
			UnknownToServer: true,
		})
	}

	result.periodFromFlights()
	return result, nil
}
