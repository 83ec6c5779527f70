package roster

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Building blocks shared by the line patterns of the different layouts
const (
	flightNumberPattern = `[A-Z0-9]{2}\d{1,4}[A-Z]?`
	airportPattern      = `[A-Z]{3,4}`
	typePattern         = `[A-Z0-9]{3,4}`
	registrationPattern = `[A-Z0-9]{1,2}-[A-Z0-9]{3,5}`
)

var registrationRe = regexp.MustCompile(`^` + registrationPattern + `$`)

// IsRegistration checks if a string is likely an aircraft registration (PH-EXA, N-12345)
func IsRegistration(s string) bool {
	return registrationRe.MatchString(s)
}

// namedGroups maps the named groups of a match to their values
func namedGroups(re *regexp.Regexp, match []string) map[string]string {
	groups := make(map[string]string, len(match))
	for i, name := range re.SubexpNames() {
		if name != "" && i < len(match) {
			groups[name] = match[i]
		}
	}
	return groups
}

// parseClock parses "0655" or "06:55" into minutes after midnight
func parseClock(s string) (int, error) {
	s = strings.ReplaceAll(s, ":", "")
	if len(s) < 3 || len(s) > 4 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	value, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	hours, minutes := value/100, value%100
	if hours > 23 || minutes > 59 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return hours*60 + minutes, nil
}

// blockTimes combines a day with out/in clock times. An in time earlier than
// the out time belongs to the next day.
func blockTimes(day time.Time, out, in string) (time.Time, time.Time, error) {
	outMin, err := parseClock(out)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	inMin, err := parseClock(in)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	timeOut := day.Add(time.Duration(outMin) * time.Minute)
	timeIn := day.Add(time.Duration(inMin) * time.Minute)
	if !timeIn.After(timeOut) {
		timeIn = timeIn.Add(24 * time.Hour)
	}
	return timeOut, timeIn, nil
}

// parseRosterDate parses 01MAR21
func parseRosterDate(s string) (time.Time, error) {
	return time.ParseInLocation("02Jan06", s, time.UTC)
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// normaliseFlightNumber removes the space some documents print after the carrier code
func normaliseFlightNumber(carrier, number string) string {
	return strings.ToUpper(strings.TrimSpace(carrier) + strings.TrimSpace(number))
}
