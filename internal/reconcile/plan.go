package reconcile

import (
	"fmt"

	"github.com/yegors/flightlog/internal/flight"
)

// Change is an existing flight that an incoming flight updates
type Change struct {
	Existing flight.Flight `json:"existing"`
	Incoming flight.Flight `json:"incoming"`
	Merged   flight.Flight `json:"merged"`
}

// Conflict is a completed flight the document disagrees with. Nothing is
// written for it; the user decides.
type Conflict struct {
	Existing flight.Flight `json:"existing"`
	Incoming flight.Flight `json:"incoming"`
}

// Plan is the outcome of checking a document against the logbook
type Plan struct {
	New       []flight.Flight `json:"new"`
	Updated   []Change        `json:"updated"`
	Conflicts []Conflict      `json:"conflicts"`
	Unchanged []flight.Flight `json:"unchanged"`
	Remove    []flight.Flight `json:"remove"`
}

// Summary counts the entries of a plan
type Summary struct {
	New       int `json:"new"`
	Updated   int `json:"updated"`
	Conflicts int `json:"conflicts"`
	Unchanged int `json:"unchanged"`
	Removed   int `json:"removed"`
}

// Summary returns the counts of the plan
func (p *Plan) Summary() Summary {
	return Summary{
		New:       len(p.New),
		Updated:   len(p.Updated),
		Conflicts: len(p.Conflicts),
		Unchanged: len(p.Unchanged),
		Removed:   len(p.Remove),
	}
}

// IsEmpty reports whether applying the plan would change nothing
func (p *Plan) IsEmpty() bool {
	return len(p.New) == 0 && len(p.Updated) == 0 && len(p.Remove) == 0
}

func (s Summary) String() string {
	return fmt.Sprintf("%d new, %d updated, %d conflicts, %d unchanged, %d removed",
		s.New, s.Updated, s.Conflicts, s.Unchanged, s.Removed)
}
