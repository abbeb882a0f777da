package detection

import (
	"errors"
	"time"
)

// ErrInvalidInput is returned when synthesis is asked for an image with a
// non-positive or non-finite dimension.
var ErrInvalidInput = errors.New("invalid input")

// BBox is an axis-aligned bounding box in pixel coordinates.
//
// (X, Y) is the top-left corner. Values are fractional because boxes are
// drawn from continuous distributions; renderers floor them to pixels.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Area returns Width * Height.
func (b BBox) Area() float64 {
	return b.Width * b.Height
}

// Within reports whether the box lies entirely inside a width x height image.
func (b BBox) Within(width, height float64) bool {
	return b.X >= 0 && b.Y >= 0 && b.X+b.Width <= width && b.Y+b.Height <= height
}

// DetectedPart is one simulated detection.
type DetectedPart struct {
	// ID is unique per detection, "part_<uuid>".
	ID string `json:"id"`

	// Name is the archetype name from the catalog, e.g. "Headlight".
	Name string `json:"name"`

	// Confidence is in [0, 1], rounded to 2 decimals.
	Confidence float64 `json:"confidence"`

	// BBox is the box in image pixel coordinates.
	BBox BBox `json:"bbox"`

	// Area is BBox.Width * BBox.Height.
	Area float64 `json:"area"`

	// Color is the archetype's display colour as "#RRGGBB".
	Color string `json:"color"`
}

// DetectionResult is the output of one Synthesize call.
//
// Results are created fresh per call and never mutated afterwards, except
// that callers may attach a captured frame in ImageData.
type DetectionResult struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// Parts are in generation order.
	Parts []DetectedPart `json:"parts"`

	// TotalParts is len(Parts).
	TotalParts int `json:"totalParts"`

	// Candidates is the pre-filter candidate count drawn for this call (3-8).
	Candidates int `json:"candidates"`

	// TotalCoverage is sum(area)/(w*h)*100 rounded to 2 decimals. Overlapping
	// boxes are counted twice, so the value is not clamped to 100.
	TotalCoverage float64 `json:"totalCoverage"`

	// Accuracy is a random figure in [85, 95] with no ground truth behind it.
	Accuracy float64 `json:"accuracy"`

	// ProcessingTime is the wall-clock milliseconds spent in Synthesize.
	ProcessingTime int64 `json:"processingTime"`

	ImageWidth  float64 `json:"imageWidth"`
	ImageHeight float64 `json:"imageHeight"`

	// ImageData is an optional base64 PNG snapshot attached by the caller.
	ImageData string `json:"imageData,omitempty"`
}

// WithImageData returns a copy of r carrying the given snapshot.
func (r DetectionResult) WithImageData(data string) DetectionResult {
	r.ImageData = data
	return r
}
