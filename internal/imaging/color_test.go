package imaging

import (
	"image"
	"image/color"
	"testing"

	"github.com/ironsheep/carvision-mcp/internal/detection"
)

func TestPartColors(t *testing.T) {
	// 80% red, 20% green inside the box
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 100; x++ {
			if x < 80 {
				img.Set(x, y, color.RGBA{255, 0, 0, 255})
			} else {
				img.Set(x, y, color.RGBA{0, 255, 0, 255})
			}
		}
	}
	part := detection.DetectedPart{
		Name:  "Bumper",
		Color: "#FF6B6B",
		BBox:  detection.BBox{X: 0, Y: 0, Width: 100, Height: 100},
	}

	result, err := PartColors(img, part, 5)
	if err != nil {
		t.Fatalf("PartColors failed: %v", err)
	}
	if len(result.Colors) != 2 {
		t.Fatalf("expected 2 colors, got %d", len(result.Colors))
	}
	if result.PixelCount != 10000 {
		t.Errorf("PixelCount: got %d, want 10000", result.PixelCount)
	}

	top := result.Colors[0]
	if top.Hex != "#f00000" {
		t.Errorf("dominant hex: got %s, want #f00000", top.Hex)
	}
	if top.Percentage != 80 {
		t.Errorf("dominant percentage: got %f, want 80", top.Percentage)
	}
	if top.HSL.H != 0 || top.HSL.S != 100 {
		t.Errorf("dominant HSL: got %+v", top.HSL)
	}
	if result.Colors[1].Percentage != 20 {
		t.Errorf("second percentage: got %f, want 20", result.Colors[1].Percentage)
	}
	if result.OverlayHex != "#FF6B6B" || result.DistanceLab <= 0 {
		t.Errorf("overlay comparison: hex=%s distance=%f", result.OverlayHex, result.DistanceLab)
	}
}

func TestPartColors_BoxLimitsRegion(t *testing.T) {
	img := createPatternImage(100, 100)

	// Top-left quadrant only (red)
	part := detection.DetectedPart{Name: "Hood", BBox: detection.BBox{X: 0, Y: 0, Width: 50, Height: 50}}
	result, err := PartColors(img, part, 3)
	if err != nil {
		t.Fatalf("PartColors failed: %v", err)
	}
	if len(result.Colors) != 1 || result.Colors[0].Percentage != 100 {
		t.Errorf("expected a single red color, got %+v", result.Colors)
	}
	// Unparseable overlay color leaves the distance unset.
	if result.DistanceLab != 0 {
		t.Errorf("DistanceLab: got %f, want 0", result.DistanceLab)
	}
}

func TestPartColors_CountLimit(t *testing.T) {
	img := createPatternImage(100, 100)
	part := detection.DetectedPart{Name: "Hood", BBox: detection.BBox{X: 0, Y: 0, Width: 100, Height: 100}}

	result, err := PartColors(img, part, 2)
	if err != nil {
		t.Fatalf("PartColors failed: %v", err)
	}
	if len(result.Colors) != 2 {
		t.Errorf("expected 2 colors, got %d", len(result.Colors))
	}
	// Four equal quadrants sort by hex.
	if result.Colors[0].Hex != "#0000f0" {
		t.Errorf("first hex: got %s, want #0000f0", result.Colors[0].Hex)
	}
}

func TestPartColors_Invalid(t *testing.T) {
	img := createInMemoryImage(50, 50, color.Gray{Y: 128})

	outside := detection.DetectedPart{Name: "Wheel", BBox: detection.BBox{X: 60, Y: 60, Width: 10, Height: 10}}
	if _, err := PartColors(img, outside, 3); err == nil {
		t.Error("PartColors should fail for a box outside the image")
	}

	inside := detection.DetectedPart{Name: "Wheel", BBox: detection.BBox{X: 0, Y: 0, Width: 10, Height: 10}}
	if _, err := PartColors(img, inside, 0); err == nil {
		t.Error("PartColors should fail for count 0")
	}
}
