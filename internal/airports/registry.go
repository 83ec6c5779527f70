// Package airports holds the airport database used to normalise roster codes
// and to position flights for night time calculation.
package airports

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

//go:embed data/airports.csv
var builtinCSV []byte

// ErrUnknownAirport is returned when a code is not in the registry
var ErrUnknownAirport = errors.New("unknown airport")

// Airport is a single airport with its position
type Airport struct {
	ICAO string  `json:"icao"`
	IATA string  `json:"iata,omitempty"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Registry indexes airports by ICAO and IATA code. Safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byICAO map[string]Airport
	byIATA map[string]string // IATA -> ICAO
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		byICAO: make(map[string]Airport),
		byIATA: make(map[string]string),
	}
}

// Builtin returns a registry loaded with the embedded airport list
func Builtin() *Registry {
	r := NewRegistry()
	if _, err := r.LoadCSV(bytes.NewReader(builtinCSV)); err != nil {
		panic(fmt.Sprintf("embedded airport list is invalid: %v", err))
	}
	return r
}

// Add inserts or replaces an airport
func (r *Registry) Add(a Airport) {
	a.ICAO = strings.ToUpper(strings.TrimSpace(a.ICAO))
	a.IATA = strings.ToUpper(strings.TrimSpace(a.IATA))

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byICAO[a.ICAO] = a
	if a.IATA != "" {
		r.byIATA[a.IATA] = a.ICAO
	}
}

// Lookup finds an airport by ICAO or IATA code
func (r *Registry) Lookup(code string) (Airport, error) {
	code = strings.ToUpper(strings.TrimSpace(code))

	r.mu.RLock()
	defer r.mu.RUnlock()

	if a, ok := r.byICAO[code]; ok {
		return a, nil
	}
	if icao, ok := r.byIATA[code]; ok {
		return r.byICAO[icao], nil
	}
	return Airport{}, fmt.Errorf("%w: %q", ErrUnknownAirport, code)
}

// Normalize returns the ICAO code for a known code, otherwise the code as given (upper case)
func (r *Registry) Normalize(code string) string {
	if a, err := r.Lookup(code); err == nil {
		return a.ICAO
	}
	return strings.ToUpper(strings.TrimSpace(code))
}

// Distance is the great circle distance in nautical miles between two codes
func (r *Registry) Distance(orig, dest string) (float64, error) {
	a, err := r.Lookup(orig)
	if err != nil {
		return 0, err
	}
	b, err := r.Lookup(dest)
	if err != nil {
		return 0, err
	}
	return DistanceNM(a, b), nil
}

// All returns every airport ordered by ICAO code
func (r *Registry) All() []Airport {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]Airport, 0, len(r.byICAO))
	for _, a := range r.byICAO {
		all = append(all, a)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ICAO < all[j].ICAO })
	return all
}

// Len returns the number of airports
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byICAO)
}

// LoadFile merges airports from a CSV file in the icao;iata;name;lat;lon layout
func (r *Registry) LoadFile(path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open airports file: %w", err)
	}
	defer file.Close()
	return r.LoadCSV(file)
}

// LoadCSV merges airports from a semicolon separated reader with a header row
func (r *Registry) LoadCSV(in io.Reader) (int, error) {
	reader := csv.NewReader(in)
	reader.Comma = ';'
	reader.FieldsPerRecord = 5
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		return 0, fmt.Errorf("read airports csv: %w", err)
	}

	loaded := 0
	for i, rec := range records {
		if i == 0 && strings.EqualFold(rec[0], "icao") {
			continue
		}
		lat, err := strconv.ParseFloat(rec[3], 64)
		if err != nil {
			return loaded, fmt.Errorf("line %d: invalid latitude: %w", i+1, err)
		}
		lon, err := strconv.ParseFloat(rec[4], 64)
		if err != nil {
			return loaded, fmt.Errorf("line %d: invalid longitude: %w", i+1, err)
		}
		r.Add(Airport{ICAO: rec[0], IATA: rec[1], Name: rec[2], Lat: lat, Lon: lon})
		loaded++
	}
	return loaded, nil
}
