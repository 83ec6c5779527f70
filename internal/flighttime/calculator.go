// Package flighttime fills in the regulatory time columns of a flight: logged
// time under augmented crew rules, night time, IFR time, multi-pilot time and
// day/night takeoffs and landings.
package flighttime

import (
	"errors"
	"fmt"
	"time"

	"github.com/yegors/flightlog/internal/airports"
	"github.com/yegors/flightlog/internal/crew"
	"github.com/yegors/flightlog/internal/flight"
)

// ErrUnknownAirport is returned when night time cannot be computed
var ErrUnknownAirport = airports.ErrUnknownAirport

// AircraftTypes tells whether an aircraft type needs a multi-pilot crew.
// known is false when the type has never been seen.
type AircraftTypes interface {
	IsMultiPilot(aircraftType string) (multiPilot bool, known bool)
}

// Options tune the calculator
type Options struct {
	// IFRByDefault logs all flight time as IFR (airline flying)
	IFRByDefault bool
}

// Calculator computes derived flight times
type Calculator struct {
	airports *airports.Registry
	types    AircraftTypes
	opts     Options
}

// NewCalculator creates a calculator. types may be nil.
func NewCalculator(registry *airports.Registry, types AircraftTypes, opts Options) *Calculator {
	return &Calculator{airports: registry, types: types, opts: opts}
}

// NightMinutes counts the minutes of a great circle flight from orig to dest
// spent with the sun below civil twilight.
func NightMinutes(orig, dest airports.Airport, out, in time.Time) int {
	duration := int(in.Sub(out) / time.Minute)
	if duration <= 0 {
		return 0
	}

	night := 0
	for i := 0; i < duration; i++ {
		fraction := (float64(i) + 0.5) / float64(duration)
		lat, lon := airports.Intermediate(orig.Lat, orig.Lon, dest.Lat, dest.Lon, fraction)
		at := out.Add(time.Duration(i)*time.Minute + 30*time.Second)
		if IsNight(lat, lon, at) {
			night++
		}
	}
	return night
}

// Apply returns a copy of f with its time columns computed. When an airport is
// unknown all other columns are still filled and an ErrUnknownAirport error is
// returned alongside the flight.
func (c *Calculator) Apply(f flight.Flight) (flight.Flight, error) {
	if f.IsSim {
		if f.SimTime == 0 {
			f.SimTime = f.Duration()
		}
		return f, nil
	}

	duration := f.Duration()
	logged := f.TotalTime()
	if f.CorrectedTotalTime == 0 {
		logged = crew.Decode(f.AugmentedCrew).LogTime(duration, f.IsPIC)
		if logged != duration {
			f.CorrectedTotalTime = logged
		}
	}

	if c.opts.IFRByDefault {
		f.IFRTime = logged
	}

	if c.types != nil && f.AircraftType != "" {
		if multi, known := c.types.IsMultiPilot(f.AircraftType); known {
			if multi {
				f.MultiPilotTime = logged
			} else {
				f.MultiPilotTime = 0
			}
		}
	}

	orig, errOrig := c.airports.Lookup(f.Orig)
	dest, errDest := c.airports.Lookup(f.Dest)
	if err := errors.Join(errOrig, errDest); err != nil {
		return f, fmt.Errorf("night time for %s: %w", f, err)
	}

	night := NightMinutes(orig, dest, f.TimeOut, f.TimeIn)
	if duration > 0 && logged < duration {
		night = night * logged / duration
	}
	f.NightTime = night

	// an augmented crew member only gets the takeoff or landing they actually did
	augmented := crew.Decode(f.AugmentedCrew)
	takeoff := f.IsPF && (!augmented.IsAugmented() || augmented.DidTakeoff)
	landing := f.IsPF && (!augmented.IsAugmented() || augmented.DidLanding)

	f.TakeoffDay, f.TakeoffNight, f.LandingDay, f.LandingNight = 0, 0, 0, 0
	if takeoff {
		if IsNight(orig.Lat, orig.Lon, f.TimeOut) {
			f.TakeoffNight = 1
		} else {
			f.TakeoffDay = 1
		}
	}
	if landing {
		if IsNight(dest.Lat, dest.Lon, f.TimeIn) {
			f.LandingNight = 1
		} else {
			f.LandingDay = 1
		}
	}

	return f, nil
}
