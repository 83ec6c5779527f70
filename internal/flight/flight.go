package flight

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Flight is a single logbook entry. Times are UTC block off/on.
type Flight struct {
	ID                 int64     `json:"id"`
	Orig               string    `json:"orig"`
	Dest               string    `json:"dest"`
	TimeOut            time.Time `json:"time_out"`
	TimeIn             time.Time `json:"time_in"`
	CorrectedTotalTime int       `json:"corrected_total_time"` // minutes, 0 = not corrected
	MultiPilotTime     int       `json:"multi_pilot_time"`
	NightTime          int       `json:"night_time"`
	IFRTime            int       `json:"ifr_time"`
	SimTime            int       `json:"sim_time"`
	AircraftType       string    `json:"aircraft_type,omitempty"`
	Registration       string    `json:"registration,omitempty"`
	Name               string    `json:"name,omitempty"`
	Name2              string    `json:"name2,omitempty"`
	TakeoffDay         int       `json:"takeoff_day"`
	TakeoffNight       int       `json:"takeoff_night"`
	LandingDay         int       `json:"landing_day"`
	LandingNight       int       `json:"landing_night"`
	AutoLand           int       `json:"auto_land"`
	FlightNumber       string    `json:"flight_number,omitempty"`
	Remarks            string    `json:"remarks,omitempty"`
	IsPIC              bool      `json:"is_pic"`
	IsPICUS            bool      `json:"is_picus"`
	IsCoPilot          bool      `json:"is_copilot"`
	IsDual             bool      `json:"is_dual"`
	IsInstructor       bool      `json:"is_instructor"`
	IsSim              bool      `json:"is_sim"`
	IsPF               bool      `json:"is_pf"`
	IsPlanned          bool      `json:"is_planned"`
	IsDeadhead         bool      `json:"is_deadhead"`
	UnknownToServer    bool      `json:"unknown_to_server"`
	AutoFill           bool      `json:"auto_fill"`
	AugmentedCrew      int       `json:"augmented_crew"`
	IsDeleted          bool      `json:"is_deleted"`
	Signature          string    `json:"signature,omitempty"`
	Timestamp          int64     `json:"timestamp"` // last modification, server clock seconds
}

// ErrInvalidFlight is wrapped by Validate failures
var ErrInvalidFlight = errors.New("invalid flight")

// Duration returns block time in whole minutes. Never negative.
func (f Flight) Duration() int {
	d := f.TimeIn.Sub(f.TimeOut)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}

// TotalTime returns the corrected total time when set, else the block time
func (f Flight) TotalTime() int {
	if f.CorrectedTotalTime > 0 {
		return f.CorrectedTotalTime
	}
	return f.Duration()
}

// Overlaps reports whether the block times of both flights intersect
func (f Flight) Overlaps(other Flight) bool {
	return f.TimeOut.Before(other.TimeIn) && other.TimeOut.Before(f.TimeIn)
}

// SameRoute compares origin and destination case-insensitively
func (f Flight) SameRoute(other Flight) bool {
	return strings.EqualFold(f.Orig, other.Orig) && strings.EqualFold(f.Dest, other.Dest)
}

// Validate checks the minimum a flight needs before it can be stored
func (f Flight) Validate() error {
	if strings.TrimSpace(f.Orig) == "" || strings.TrimSpace(f.Dest) == "" {
		return fmt.Errorf("%w: missing origin or destination", ErrInvalidFlight)
	}
	if f.TimeOut.IsZero() || f.TimeIn.IsZero() {
		return fmt.Errorf("%w: missing block times", ErrInvalidFlight)
	}
	if !f.IsSim && !f.TimeIn.After(f.TimeOut) {
		return fmt.Errorf("%w: time in %s not after time out %s", ErrInvalidFlight,
			f.TimeIn.Format(time.RFC3339), f.TimeOut.Format(time.RFC3339))
	}
	return nil
}

// String is used in log lines and CLI output
func (f Flight) String() string {
	number := f.FlightNumber
	if number == "" {
		number = "-"
	}
	return fmt.Sprintf("%s %s %s-%s %s", f.TimeOut.UTC().Format("2006-01-02"), number,
		f.Orig, f.Dest, f.TimeOut.UTC().Format("1504"))
}
