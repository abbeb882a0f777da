package live

import (
	"context"
	"image"

	"github.com/ironsheep/carvision-mcp/internal/imaging"
)

// FrameSource supplies the image a tick analyzes.
type FrameSource interface {
	Frame(ctx context.Context) (image.Image, error)
}

// FrameSourceFunc adapts a function to FrameSource.
type FrameSourceFunc func(ctx context.Context) (image.Image, error)

// Frame implements FrameSource.
func (f FrameSourceFunc) Frame(ctx context.Context) (image.Image, error) {
	return f(ctx)
}

// FileSource reads frames from an image file through a cache.
//
// The file is decoded once; later ticks reuse the cached image, matching a
// camera that keeps showing the same scene.
type FileSource struct {
	cache *imaging.ImageCache
	path  string
}

// NewFileSource creates a FileSource for path.
func NewFileSource(cache *imaging.ImageCache, path string) *FileSource {
	return &FileSource{cache: cache, path: path}
}

// Path returns the file the source reads.
func (s *FileSource) Path() string {
	return s.path
}

// Frame implements FrameSource.
func (s *FileSource) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.cache.Load(s.path)
}
