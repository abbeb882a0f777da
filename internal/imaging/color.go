package imaging

import (
	"fmt"
	"image"
	"math"
	"sort"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/carvision-mcp/internal/detection"
)

// RGBColor represents an RGB color with 8-bit components.
type RGBColor struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// HSLColor represents a color in HSL space.
type HSLColor struct {
	H int `json:"h"` // Hue: 0-360 degrees
	S int `json:"s"` // Saturation: 0-100 percent
	L int `json:"l"` // Lightness: 0-100 percent
}

// ColorFrequency represents a quantized color and its share of a region.
type ColorFrequency struct {
	Hex        string   `json:"hex"`
	Percentage float64  `json:"percentage"`
	RGB        RGBColor `json:"rgb"`
	HSL        HSLColor `json:"hsl"`
}

// PartColorsResult holds the dominant colors found inside a part's box,
// plus how far the most common one sits from the part's overlay color.
type PartColorsResult struct {
	PartName    string           `json:"part_name"`
	OverlayHex  string           `json:"overlay_hex"`
	Colors      []ColorFrequency `json:"colors"`
	PixelCount  int              `json:"pixel_count"`
	DistanceLab float64          `json:"distance_lab"`
}

// PartColors extracts the count most common colors inside a detected part's
// bounding box.
//
// Colors are quantized by dropping the low four bits of each component, so
// shades within 16 units of each other group together. Results are sorted
// by frequency, most common first, with hex as the tiebreaker.
func PartColors(img image.Image, part detection.DetectedPart, count int) (*PartColorsResult, error) {
	if count < 1 {
		return nil, fmt.Errorf("count must be at least 1, got %d", count)
	}

	bounds := img.Bounds()
	box := part.BBox
	rect := image.Rect(
		int(math.Floor(box.X)),
		int(math.Floor(box.Y)),
		int(math.Ceil(box.X+box.Width)),
		int(math.Ceil(box.Y+box.Height)),
	).Add(bounds.Min).Intersect(bounds)
	if rect.Empty() {
		return nil, fmt.Errorf("part %q has no pixels inside image bounds %v", part.Name, bounds)
	}

	counts := make(map[RGBColor]int)
	total := 0
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			key := RGBColor{
				R: uint8(r>>8) &^ 0x0F,
				G: uint8(g>>8) &^ 0x0F,
				B: uint8(b>>8) &^ 0x0F,
			}
			counts[key]++
			total++
		}
	}

	colors := make([]ColorFrequency, 0, len(counts))
	for rgb, n := range counts {
		c := colorful.Color{R: float64(rgb.R) / 255, G: float64(rgb.G) / 255, B: float64(rgb.B) / 255}
		colors = append(colors, ColorFrequency{
			Hex:        c.Hex(),
			Percentage: math.Round(float64(n)/float64(total)*10000) / 100,
			RGB:        rgb,
			HSL:        toHSL(c),
		})
	}
	sort.Slice(colors, func(i, j int) bool {
		if colors[i].Percentage != colors[j].Percentage {
			return colors[i].Percentage > colors[j].Percentage
		}
		return colors[i].Hex < colors[j].Hex
	})
	if len(colors) > count {
		colors = colors[:count]
	}

	result := &PartColorsResult{
		PartName:   part.Name,
		OverlayHex: part.Color,
		Colors:     colors,
		PixelCount: total,
	}
	if overlay, err := colorful.Hex(part.Color); err == nil {
		top := colors[0].RGB
		dominant := colorful.Color{R: float64(top.R) / 255, G: float64(top.G) / 255, B: float64(top.B) / 255}
		result.DistanceLab = math.Round(dominant.DistanceLab(overlay)*1000) / 1000
	}
	return result, nil
}

func toHSL(c colorful.Color) HSLColor {
	h, s, l := c.Hsl()
	if math.IsNaN(h) {
		h = 0
	}
	return HSLColor{
		H: int(math.Round(h)) % 360,
		S: int(math.Round(s * 100)),
		L: int(math.Round(l * 100)),
	}
}
