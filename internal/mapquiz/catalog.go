package mapquiz

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
)

//go:embed locations.json
var seedLocations []byte

var ErrInvalidCatalog = errors.New("invalid catalog")

// Catalog is a read-only table of locations keyed by id.
type Catalog struct {
	locations []Location
	byID      map[string]int
}

func NewCatalog(locations []Location) (*Catalog, error) {
	c := &Catalog{
		locations: make([]Location, len(locations)),
		byID:      make(map[string]int, len(locations)),
	}
	copy(c.locations, locations)

	for i, loc := range c.locations {
		if err := validateLocation(loc); err != nil {
			return nil, err
		}
		if _, dup := c.byID[loc.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate location id %q", ErrInvalidCatalog, loc.ID)
		}
		c.byID[loc.ID] = i
	}
	return c, nil
}

func validateLocation(loc Location) error {
	switch {
	case loc.ID == "":
		return fmt.Errorf("%w: empty location id", ErrInvalidCatalog)
	case loc.Riddle.ID != RiddleID(loc.ID):
		return fmt.Errorf("%w: location %q has riddle id %q, want %q",
			ErrInvalidCatalog, loc.ID, loc.Riddle.ID, RiddleID(loc.ID))
	case loc.Riddle.Answer == "":
		return fmt.Errorf("%w: location %q has an empty answer", ErrInvalidCatalog, loc.ID)
	case Normalize(loc.Riddle.Answer) != loc.Riddle.Answer:
		return fmt.Errorf("%w: answer of %q is not canonical (%q)",
			ErrInvalidCatalog, loc.ID, Normalize(loc.Riddle.Answer))
	case !inPercentRange(loc.Position.X) || !inPercentRange(loc.Position.Y):
		return fmt.Errorf("%w: location %q is positioned off the map", ErrInvalidCatalog, loc.ID)
	}
	return nil
}

func inPercentRange(v float64) bool { return v >= 0 && v <= 100 }

// DefaultCatalog returns the catalog compiled into the binary.
func DefaultCatalog() *Catalog {
	var locations []Location
	if err := json.Unmarshal(seedLocations, &locations); err != nil {
		panic(fmt.Sprintf("mapquiz: decoding embedded locations: %v", err))
	}
	c, err := NewCatalog(locations)
	if err != nil {
		panic(fmt.Sprintf("mapquiz: %v", err))
	}
	return c
}

// Find looks up a location. A miss is an expected outcome (stale or
// mistyped id) and callers render it as "not found".
func (c *Catalog) Find(id string) (Location, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Location{}, false
	}
	return c.locations[i], true
}

// All returns the locations in seed order.
func (c *Catalog) All() []Location {
	out := make([]Location, len(c.locations))
	copy(out, c.locations)
	return out
}
