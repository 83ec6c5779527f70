package roster

import (
	"fmt"
	"io"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/yegors/flightlog/internal/flight"
)

// WriteICal exports flights as calendar events, one per flight, with the
// same summary layout the KLM feed uses. Deleted flights are left out.
func WriteICal(out io.Writer, flights []flight.Flight) error {
	cal := ics.NewCalendarFor("flightlog")
	cal.SetMethod(ics.MethodPublish)
	cal.SetXWRCalName("Logbook")

	for i := range flights {
		f := &flights[i]
		if f.IsDeleted {
			continue
		}

		uid := fmt.Sprintf("flight-%d@flightlog", f.ID)
		if f.ID == 0 {
			uid = fmt.Sprintf("flight-new-%d-%d@flightlog", f.TimeOut.Unix(), i)
		}
		stamp := f.TimeOut
		if f.Timestamp > 0 {
			stamp = time.Unix(f.Timestamp, 0)
		}

		event := cal.AddEvent(uid)
		event.SetDtStampTime(stamp.UTC())
		event.SetStartAt(f.TimeOut.UTC())
		event.SetEndAt(f.TimeIn.UTC())
		event.SetSummary(icalSummary(f))
		if details := icalDetails(f); details != "" {
			event.SetDescription(details)
		}
	}

	return cal.SerializeTo(out)
}

func icalSummary(f *flight.Flight) string {
	if f.IsSim {
		return strings.TrimSpace("SIM " + f.AircraftType)
	}
	var b strings.Builder
	if f.IsDeadhead {
		b.WriteString("DH ")
	}
	if f.FlightNumber != "" {
		b.WriteString(f.FlightNumber)
		b.WriteByte(' ')
	}
	b.WriteString(f.Orig)
	b.WriteByte('-')
	b.WriteString(f.Dest)
	return b.String()
}

func icalDetails(f *flight.Flight) string {
	var parts []string
	if f.AircraftType != "" {
		parts = append(parts, f.AircraftType)
	}
	if f.Registration != "" {
		parts = append(parts, f.Registration)
	}
	if f.IsPlanned {
		parts = append(parts, "planned")
	}
	return strings.Join(parts, " ")
}
