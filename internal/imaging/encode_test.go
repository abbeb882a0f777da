package imaging

import (
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestAnnotate(t *testing.T) {
	img := createInMemoryImage(64, 48, color.RGBA{10, 20, 30, 255})

	result, err := Annotate(img)
	if err != nil {
		t.Fatalf("Annotate failed: %v", err)
	}
	if result.Width != 64 || result.Height != 48 {
		t.Errorf("dimensions: got %dx%d, want 64x48", result.Width, result.Height)
	}
	if result.MimeType != "image/png" {
		t.Errorf("MimeType: got %s, want image/png", result.MimeType)
	}

	decoded := decodeResult(t, result.ImageBase64)
	r, g, b, _ := decoded.At(5, 5).RGBA()
	if uint8(r>>8) != 10 || uint8(g>>8) != 20 || uint8(b>>8) != 30 {
		t.Errorf("round trip color: got (%d,%d,%d), want (10,20,30)", r>>8, g>>8, b>>8)
	}
}

func TestSavePNG_Directory(t *testing.T) {
	dir := t.TempDir()
	img := createInMemoryImage(10, 10, color.White)
	now := time.Date(2024, 3, 9, 14, 5, 6, 700_000_000, time.UTC)

	path, err := SavePNG(dir, img, now)
	if err != nil {
		t.Fatalf("SavePNG failed: %v", err)
	}

	want := filepath.Join(dir, "detection_2024-03-09T14-05-06.700Z.png")
	if path != want {
		t.Errorf("path: got %s, want %s", path, want)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("saved file missing: %v", err)
	}

	cache := NewImageCache()
	dims, err := GetDimensions(cache, path)
	if err != nil {
		t.Fatalf("reloading saved file failed: %v", err)
	}
	if dims.Width != 10 || dims.Height != 10 {
		t.Errorf("saved dimensions: got %dx%d, want 10x10", dims.Width, dims.Height)
	}
}

func TestSavePNG_ExplicitFileCreatesParents(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "out", "annotated.png")
	img := createInMemoryImage(4, 4, color.Black)

	path, err := SavePNG(target, img, time.Now())
	if err != nil {
		t.Fatalf("SavePNG failed: %v", err)
	}
	if path != target {
		t.Errorf("path: got %s, want %s", path, target)
	}
	if !strings.HasSuffix(path, ".png") {
		t.Errorf("expected .png suffix, got %s", path)
	}
	if _, err := os.Stat(target); err != nil {
		t.Errorf("saved file missing: %v", err)
	}
}
