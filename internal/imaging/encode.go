package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anthonynsimon/bild/imgio"
)

// AnnotatedImage is an overlay-rendered image ready to return to a client.
type AnnotatedImage struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`

	// SavedPath is set when the image was also written to disk.
	SavedPath string `json:"saved_path,omitempty"`
}

// EncodeBase64PNG encodes img as PNG and returns it base64 encoded.
func EncodeBase64PNG(img image.Image) (string, error) {
	var buf bytes.Buffer
	encode := imgio.PNGEncoder()
	if err := encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// Annotate wraps an already rendered image into an AnnotatedImage.
func Annotate(img image.Image) (*AnnotatedImage, error) {
	encoded, err := EncodeBase64PNG(img)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	return &AnnotatedImage{
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		ImageBase64: encoded,
		MimeType:    "image/png",
	}, nil
}

// SavePNG writes img as PNG and returns the path written.
//
// If target is an existing directory (or ends in a path separator) the file
// is named detection_<timestamp>.png inside it, matching the download name
// the web UI used. Missing parent directories are created.
func SavePNG(target string, img image.Image, now time.Time) (string, error) {
	path := target
	if isDirTarget(target) {
		name := "detection_" + now.UTC().Format("2006-01-02T15-04-05.000Z") + ".png"
		path = filepath.Join(target, name)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := imgio.Save(path, img, imgio.PNGEncoder()); err != nil {
		return "", fmt.Errorf("failed to save image: %w", err)
	}
	return path, nil
}

func isDirTarget(target string) bool {
	if strings.HasSuffix(target, string(os.PathSeparator)) || strings.HasSuffix(target, "/") {
		return true
	}
	info, err := os.Stat(target)
	return err == nil && info.IsDir()
}
