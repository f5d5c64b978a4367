// Package property holds the single mutable description of the property under
// valuation and the controlled ways of changing it.
package property

import (
	"math"
	"slices"
	"sync"
)

// Description is the full property description sent to the valuation
// service. JSON names match the service's wire format, including the
// historical "Lattitude" and "Longtitude" spellings.
type Description struct {
	Rooms        int     `json:"Rooms"`
	Distance     float64 `json:"Distance"`
	Bathroom     int     `json:"Bathroom"`
	Car          int     `json:"Car"`
	Landsize     float64 `json:"Landsize"`
	BuildingArea float64 `json:"BuildingArea"`
	YearBuilt    int     `json:"YearBuilt"`
	Lattitude    float64 `json:"Lattitude"`
	Longtitude   float64 `json:"Longtitude"`
	Regionname   Region  `json:"Regionname"`
}

// Seed returns the plausible starting property every session begins with.
func Seed() Description {
	return Description{
		Rooms:        3,
		Distance:     5.0,
		Bathroom:     1,
		Car:          1,
		Landsize:     400,
		BuildingArea: 150,
		YearBuilt:    1990,
		Lattitude:    -37.81,
		Longtitude:   144.96,
		Regionname:   "Region_0",
	}
}

// CoordinatePrecision is the number of decimal digits kept for map-picked
// coordinates (about 11m).
const CoordinatePrecision = 4

// Change describes a completed mutation. Observers receive it only after the
// model has been fully updated.
type Change struct {
	Fields   []Field
	Previous Description
	Current  Description
}

// LocationChanged reports whether the coordinate pair moved.
func (c Change) LocationChanged() bool {
	return c.Previous.Lattitude != c.Current.Lattitude ||
		c.Previous.Longtitude != c.Current.Longtitude
}

// Model is the canonical, mutable property description for one session.
// It is safe for concurrent use.
type Model struct {
	// writeMu orders each mutation together with its notification, so
	// observers see changes in the order they were applied.
	writeMu sync.Mutex
	mu      sync.RWMutex
	desc    Description
	regions *RegionSet

	obsMu     sync.Mutex
	observers map[int]func(Change)
	nextObsID int
}

// New creates a model seeded with Seed(). A nil region set means
// DefaultRegions().
func New(regions *RegionSet) *Model {
	if regions == nil {
		regions = DefaultRegions()
	}
	return &Model{
		desc:      Seed(),
		regions:   regions,
		observers: make(map[int]func(Change)),
	}
}

// Regions returns the closed set of regions the model accepts.
func (m *Model) Regions() *RegionSet {
	return m.regions
}

// Snapshot returns an independent copy of the current description.
func (m *Model) Snapshot() Description {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.desc
}

// SetField parses raw for the named field and stores it. A value that does
// not parse is rejected and the previous value is kept; the returned error
// wraps ErrInvalidValue. Coordinates are read-only here and only change
// through SetLocation.
func (m *Model) SetField(name, raw string) error {
	f, err := LookupField(name)
	if err != nil {
		return err
	}
	if f.ReadOnly() {
		return readOnlyError(f)
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	prev := m.desc
	if err := f.apply(&m.desc, raw, m.regions); err != nil {
		m.mu.Unlock()
		return err
	}
	cur := m.desc
	m.mu.Unlock()

	m.notify(Change{Fields: []Field{f}, Previous: prev, Current: cur})
	return nil
}

// SetLocation overwrites both coordinates in one step, rounded to
// CoordinatePrecision decimal digits.
func (m *Model) SetLocation(lat, lon float64) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	prev := m.desc
	m.desc.Lattitude = Round(lat, CoordinatePrecision)
	m.desc.Longtitude = Round(lon, CoordinatePrecision)
	cur := m.desc
	m.mu.Unlock()

	m.notify(Change{Fields: []Field{FieldLatitude, FieldLongitude}, Previous: prev, Current: cur})
}

// Reset restores the seed description in place.
func (m *Model) Reset() {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	prev := m.desc
	m.desc = Seed()
	cur := m.desc
	m.mu.Unlock()

	m.notify(Change{Fields: Fields(), Previous: prev, Current: cur})
}

// Subscribe registers fn to be called after every mutation, in subscription
// order. Observers may read the model but must not mutate it. The returned
// func removes the observer.
func (m *Model) Subscribe(fn func(Change)) func() {
	m.obsMu.Lock()
	id := m.nextObsID
	m.nextObsID++
	m.observers[id] = fn
	m.obsMu.Unlock()

	return func() {
		m.obsMu.Lock()
		delete(m.observers, id)
		m.obsMu.Unlock()
	}
}

func (m *Model) notify(c Change) {
	m.obsMu.Lock()
	ids := make([]int, 0, len(m.observers))
	for id := range m.observers {
		ids = append(ids, id)
	}
	fns := make([]func(Change), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, m.observers[id])
	}
	m.obsMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// Round rounds v to the given number of decimal digits, half away from zero.
func Round(v float64, digits int) float64 {
	p := math.Pow(10, float64(digits))
	return math.Round(v*p) / p
}
