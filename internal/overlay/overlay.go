// Package overlay draws detection results onto raster images.
//
// Each part gets a 3-pixel stroked bounding box centred on the box edge, a
// filled 8x8 corner marker at its top-left, and optionally a label tab above
// the box reading "Name (NN%)" in white bold text on the part colour.
//
// Labels are never repositioned. A tab above a box at the top of the image,
// or left of the image edge, is simply clipped by the surface bounds.
package overlay

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/ironsheep/carvision-mcp/internal/detection"
)

// ErrUnavailableSurface is returned when there is nothing to draw on.
var ErrUnavailableSurface = errors.New("drawing surface unavailable")

const (
	StrokeWidth  = 3
	MarkerSize   = 8
	LabelHeight  = 24
	LabelPadding = 8  // inset of the text from the tab's left edge
	LabelGap     = 4  // gap between the tab and the box
	LabelBase    = 16 // baseline offset from the tab's top edge
	LabelSize    = 14 // font size in points at 72 DPI
)

var (
	// LabelTextColor is the label foreground.
	LabelTextColor = color.RGBA{R: 255, G: 255, B: 255, A: 255}

	// FallbackColor is used for parts whose colour is neither valid hex nor
	// a known archetype name.
	FallbackColor = color.RGBA{R: 255, G: 0, B: 0, A: 255}
)

// Renderer draws parts onto surfaces. It is safe for concurrent use on
// distinct surfaces.
type Renderer struct {
	catalog *detection.Catalog

	// font.Face implementations keep glyph caches and are not goroutine-safe.
	mu   sync.Mutex
	face font.Face
}

// NewRenderer creates a Renderer using Go Bold at 14pt for labels. catalog
// may be nil; it is only consulted when a part carries an unparseable colour.
func NewRenderer(catalog *detection.Catalog) (*Renderer, error) {
	f, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse label font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    LabelSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create label face: %w", err)
	}
	return NewRendererWithFace(catalog, face), nil
}

// NewRendererWithFace creates a Renderer with a caller-supplied label face.
func NewRendererWithFace(catalog *detection.Catalog, face font.Face) *Renderer {
	return &Renderer{catalog: catalog, face: face}
}

// Acquire returns a drawable copy of img.
//
// # Errors
//
//   - ErrUnavailableSurface if img is nil or has an empty bounds rectangle
func Acquire(img image.Image) (*image.NRGBA, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: no image", ErrUnavailableSurface)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("%w: image has empty bounds %v", ErrUnavailableSurface, img.Bounds())
	}
	return imaging.Clone(img), nil
}

// Render draws every part onto dst in slice order.
//
// Drawing is a plain overwrite per part, so rendering the same parts onto
// two identical surfaces yields identical pixels. Where labels or boxes
// overlap, later parts cover earlier ones.
//
// # Errors
//
//   - ErrUnavailableSurface if dst is nil, a nil *image.NRGBA or *image.RGBA,
//     or has empty bounds; nothing is drawn
func (r *Renderer) Render(dst draw.Image, parts []detection.DetectedPart, showLabels bool) error {
	if !usable(dst) {
		return ErrUnavailableSurface
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range parts {
		c := r.partColor(p)
		box := pixelRect(p.BBox)

		strokeRect(dst, box, c)
		fillRect(dst, image.Rect(box.Min.X, box.Min.Y, box.Min.X+MarkerSize, box.Min.Y+MarkerSize), c)

		if showLabels {
			r.drawLabel(dst, box.Min, LabelText(p), c)
		}
	}
	return nil
}

// usable reports whether dst can be drawn on. Typed nil pointers of the
// standard image types count as missing surfaces.
func usable(dst draw.Image) bool {
	switch d := dst.(type) {
	case nil:
		return false
	case *image.NRGBA:
		if d == nil {
			return false
		}
	case *image.RGBA:
		if d == nil {
			return false
		}
	}
	return !dst.Bounds().Empty()
}

// LabelText returns "Name (NN%)" with the confidence rounded to a percent.
func LabelText(p detection.DetectedPart) string {
	return fmt.Sprintf("%s (%d%%)", p.Name, int(math.Round(p.Confidence*100)))
}

// LabelRect returns the tab rectangle Render would fill for part p.
func (r *Renderer) LabelRect(p detection.DetectedPart) image.Rectangle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.labelRect(pixelRect(p.BBox).Min, LabelText(p))
}

func (r *Renderer) labelRect(at image.Point, text string) image.Rectangle {
	w := font.MeasureString(r.face, text).Ceil() + 2*LabelPadding
	y := at.Y - LabelHeight - LabelGap
	return image.Rect(at.X, y, at.X+w, y+LabelHeight)
}

func (r *Renderer) drawLabel(dst draw.Image, at image.Point, text string, bg color.Color) {
	tab := r.labelRect(at, text)
	fillRect(dst, tab, bg)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(LabelTextColor),
		Face: r.face,
		Dot:  fixed.P(tab.Min.X+LabelPadding, tab.Min.Y+LabelBase),
	}
	d.DrawString(text)
}

func (r *Renderer) partColor(p detection.DetectedPart) color.RGBA {
	if c, err := detection.ParseColor(p.Color); err == nil {
		return c
	}
	if r.catalog != nil {
		if a, ok := r.catalog.Lookup(p.Name); ok {
			return a.RGBA()
		}
	}
	return FallbackColor
}

// pixelRect floors the box corners to whole pixels.
func pixelRect(b detection.BBox) image.Rectangle {
	x0 := int(math.Floor(b.X))
	y0 := int(math.Floor(b.Y))
	x1 := int(math.Floor(b.X + b.Width))
	y1 := int(math.Floor(b.Y + b.Height))
	return image.Rect(x0, y0, x1, y1)
}

// strokeRect draws a StrokeWidth outline centred on r's edges, one pixel
// outside and one inside each edge line.
func strokeRect(dst draw.Image, r image.Rectangle, c color.Color) {
	half := StrokeWidth / 2
	outer := image.Rect(r.Min.X-half, r.Min.Y-half, r.Max.X+half+1, r.Max.Y+half+1)
	inner := image.Rect(r.Min.X+half+1, r.Min.Y+half+1, r.Max.X-half, r.Max.Y-half)

	if inner.Empty() {
		fillRect(dst, outer, c)
		return
	}
	fillRect(dst, image.Rect(outer.Min.X, outer.Min.Y, outer.Max.X, inner.Min.Y), c) // top
	fillRect(dst, image.Rect(outer.Min.X, inner.Max.Y, outer.Max.X, outer.Max.Y), c) // bottom
	fillRect(dst, image.Rect(outer.Min.X, inner.Min.Y, inner.Min.X, inner.Max.Y), c) // left
	fillRect(dst, image.Rect(inner.Max.X, inner.Min.Y, outer.Max.X, inner.Max.Y), c) // right
}

// fillRect fills r clipped to dst's bounds.
func fillRect(dst draw.Image, r image.Rectangle, c color.Color) {
	draw.Draw(dst, r, image.NewUniform(c), image.Point{}, draw.Src)
}
