package detection

import (
	"fmt"
	"image/color"

	"github.com/lucasb-eyer/go-colorful"
)

// Archetype is one simulated part type: a name, a display colour and the
// plausible box width as a fraction of the image width.
type Archetype struct {
	Name    string
	Color   string // "#RRGGBB"
	MinSize float64
	MaxSize float64

	rgba color.RGBA
}

// RGBA returns the parsed display colour.
func (a Archetype) RGBA() color.RGBA {
	return a.rgba
}

// Catalog is an immutable table of archetypes.
type Catalog struct {
	archetypes []Archetype
	byName     map[string]int
}

// NewCatalog validates archetypes and builds a Catalog.
//
// Every archetype needs a non-empty unique name, a parseable hex colour and
// 0 < MinSize <= MaxSize <= 1.
func NewCatalog(archetypes ...Archetype) (*Catalog, error) {
	if len(archetypes) == 0 {
		return nil, fmt.Errorf("%w: catalog must contain at least one archetype", ErrInvalidInput)
	}

	c := &Catalog{
		archetypes: make([]Archetype, 0, len(archetypes)),
		byName:     make(map[string]int, len(archetypes)),
	}
	for _, a := range archetypes {
		if a.Name == "" {
			return nil, fmt.Errorf("%w: archetype name is empty", ErrInvalidInput)
		}
		if _, dup := c.byName[a.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate archetype %q", ErrInvalidInput, a.Name)
		}
		if a.MinSize <= 0 || a.MinSize > a.MaxSize || a.MaxSize > 1 {
			return nil, fmt.Errorf("%w: archetype %q size range [%g,%g] must satisfy 0 < min <= max <= 1",
				ErrInvalidInput, a.Name, a.MinSize, a.MaxSize)
		}
		rgba, err := ParseColor(a.Color)
		if err != nil {
			return nil, fmt.Errorf("archetype %q: %w", a.Name, err)
		}
		a.rgba = rgba
		c.byName[a.Name] = len(c.archetypes)
		c.archetypes = append(c.archetypes, a)
	}
	return c, nil
}

// DefaultCatalog returns the eight car-part archetypes.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(
		Archetype{Name: "Headlight", Color: "#3B82F6", MinSize: 0.02, MaxSize: 0.08},
		Archetype{Name: "Bumper", Color: "#EF4444", MinSize: 0.15, MaxSize: 0.25},
		Archetype{Name: "Wheel", Color: "#10B981", MinSize: 0.08, MaxSize: 0.15},
		Archetype{Name: "Mirror", Color: "#F59E0B", MinSize: 0.01, MaxSize: 0.03},
		Archetype{Name: "Door Handle", Color: "#8B5CF6", MinSize: 0.005, MaxSize: 0.02},
		Archetype{Name: "License Plate", Color: "#06B6D4", MinSize: 0.01, MaxSize: 0.04},
		Archetype{Name: "Grille", Color: "#EC4899", MinSize: 0.03, MaxSize: 0.08},
		Archetype{Name: "Hood", Color: "#84CC16", MinSize: 0.12, MaxSize: 0.20},
	)
	if err != nil {
		panic(err)
	}
	return c
}

// Len returns the number of archetypes.
func (c *Catalog) Len() int {
	return len(c.archetypes)
}

// At returns the i-th archetype.
func (c *Catalog) At(i int) Archetype {
	return c.archetypes[i]
}

// Lookup finds an archetype by name.
func (c *Catalog) Lookup(name string) (Archetype, bool) {
	i, ok := c.byName[name]
	if !ok {
		return Archetype{}, false
	}
	return c.archetypes[i], true
}

// Archetypes returns a copy of the table.
func (c *Catalog) Archetypes() []Archetype {
	out := make([]Archetype, len(c.archetypes))
	copy(out, c.archetypes)
	return out
}

// ParseColor parses "#RRGGBB" into an opaque colour.
func ParseColor(hex string) (color.RGBA, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("%w: colour %q: %v", ErrInvalidInput, hex, err)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}
