// Package reconcile compares flights found in a document with the flights
// already in the logbook and produces a Plan of what to insert, update,
// remove or show to the user as a conflict.
package reconcile

import (
	"sort"
	"time"

	"github.com/yegors/flightlog/internal/flight"
)

// DefaultWindow is how far apart two block-off times may be for the flights to match
const DefaultWindow = 60 * time.Minute

// GetMatchingFlights returns the existing flights that could be the same
// flight as candidate, best match first. A match is not deleted, is a sim
// exactly when the candidate is, flies the same route and either overlaps the
// candidate or leaves within window of it.
func GetMatchingFlights(candidate flight.Flight, existing []flight.Flight, window time.Duration) []flight.Flight {
	idx := matchIndexes(candidate, existing, window)
	matches := make([]flight.Flight, len(idx))
	for i, j := range idx {
		matches[i] = existing[j]
	}
	return matches
}

func matchIndexes(candidate flight.Flight, existing []flight.Flight, window time.Duration) []int {
	if window <= 0 {
		window = DefaultWindow
	}

	var idx []int
	for i, f := range existing {
		if f.IsDeleted || f.IsSim != candidate.IsSim || !f.SameRoute(candidate) {
			continue
		}
		if f.Overlaps(candidate) || absDuration(f.TimeOut.Sub(candidate.TimeOut)) <= window {
			idx = append(idx, i)
		}
	}

	sort.SliceStable(idx, func(a, b int) bool {
		fa, fb := existing[idx[a]], existing[idx[b]]
		sameA := sameFlightNumber(fa, candidate)
		sameB := sameFlightNumber(fb, candidate)
		if sameA != sameB {
			return sameA
		}
		return absDuration(fa.TimeOut.Sub(candidate.TimeOut)) < absDuration(fb.TimeOut.Sub(candidate.TimeOut))
	})
	return idx
}

func sameFlightNumber(a, b flight.Flight) bool {
	return a.FlightNumber != "" && a.FlightNumber == b.FlightNumber
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// MergeFlights folds an incoming version of a flight into the stored one.
// What the pilot entered by hand (names, remarks, roles, signature) stays;
// times and identification come from the incoming flight. Takeoffs and
// landings are only taken over while the stored flight is still planned.
func MergeFlights(existing, incoming flight.Flight, now time.Time) flight.Flight {
	merged := existing

	merged.TimeOut = incoming.TimeOut
	merged.TimeIn = incoming.TimeIn
	if incoming.FlightNumber != "" {
		merged.FlightNumber = incoming.FlightNumber
	}
	if incoming.Registration != "" {
		merged.Registration = incoming.Registration
	}
	if incoming.AircraftType != "" {
		merged.AircraftType = incoming.AircraftType
	}
	if incoming.AugmentedCrew != 0 {
		merged.AugmentedCrew = incoming.AugmentedCrew
	}
	if incoming.IsSim {
		merged.SimTime = incoming.SimTime
	}
	merged.IsDeadhead = incoming.IsDeadhead

	if existing.IsPlanned {
		merged.IsPF = existing.IsPF || incoming.IsPF
		merged.TakeoffDay = incoming.TakeoffDay
		merged.TakeoffNight = incoming.TakeoffNight
		merged.LandingDay = incoming.LandingDay
		merged.LandingNight = incoming.LandingNight
	}

	merged.IsPlanned = incoming.IsPlanned
	merged.IsDeleted = false
	merged.Timestamp = now.Unix()
	return merged
}
