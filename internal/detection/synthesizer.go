package detection

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// MinCandidates and MaxCandidates bound the pre-filter part count.
	MinCandidates = 3
	MaxCandidates = 8

	// MinConfidence is the floor of generated confidences. A threshold at or
	// below it accepts every candidate.
	MinConfidence = 0.7

	MinAccuracy = 85.0
	MaxAccuracy = 95.0

	DefaultMinDelay = 500 * time.Millisecond
	DefaultMaxDelay = 1500 * time.Millisecond
)

// Rand is the subset of *rand.Rand (math/rand/v2) the synthesizer draws from.
type Rand interface {
	Float64() float64
	IntN(n int) int
}

// Synthesizer generates mock detection results.
type Synthesizer struct {
	catalog  *Catalog
	delay    DelayFunc
	minDelay time.Duration
	maxDelay time.Duration
	now      func() time.Time
	newID    func(prefix string) string

	mu  sync.Mutex
	rng Rand
}

// NewSynthesizer creates a Synthesizer with the default catalog, a randomly
// seeded source and the real [500ms, 1500ms] delay.
func NewSynthesizer(opts ...Option) (*Synthesizer, error) {
	s := &Synthesizer{
		catalog:  DefaultCatalog(),
		delay:    SleepContext,
		minDelay: DefaultMinDelay,
		maxDelay: DefaultMaxDelay,
		now:      time.Now,
		newID:    uuidID,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Catalog returns the archetype table used by s.
func (s *Synthesizer) Catalog() *Catalog {
	return s.catalog
}

// Synthesize produces a randomized DetectionResult for an image of the given
// size, keeping only candidates whose confidence is >= threshold.
//
// The call blocks for the artificial delay. If ctx is cancelled first the
// context error is returned and no result is produced. Thresholds outside
// [0, 1] are accepted: <= 0.7 keeps every candidate, > 1 keeps none.
//
// # Errors
//
//   - ErrInvalidInput if imageWidth or imageHeight is <= 0, NaN or infinite
//   - ctx.Err() if the context ends during the delay
func (s *Synthesizer) Synthesize(ctx context.Context, imageWidth, imageHeight, threshold float64) (*DetectionResult, error) {
	if !validDimension(imageWidth) || !validDimension(imageHeight) {
		return nil, fmt.Errorf("%w: image dimensions %gx%g must be positive", ErrInvalidInput, imageWidth, imageHeight)
	}

	start := s.now()

	s.mu.Lock()
	wait := s.drawDelay()
	s.mu.Unlock()

	if err := s.delay(ctx, wait); err != nil {
		return nil, err
	}

	s.mu.Lock()
	parts, candidates := s.drawParts(imageWidth, imageHeight, threshold)
	accuracy := round2(MinAccuracy + s.rng.Float64()*(MaxAccuracy-MinAccuracy))
	s.mu.Unlock()

	end := s.now()
	return &DetectionResult{
		ID:             s.newID("detection"),
		Timestamp:      end,
		Parts:          parts,
		TotalParts:     len(parts),
		Candidates:     candidates,
		TotalCoverage:  Coverage(parts, imageWidth*imageHeight),
		Accuracy:       accuracy,
		ProcessingTime: end.Sub(start).Milliseconds(),
		ImageWidth:     imageWidth,
		ImageHeight:    imageHeight,
	}, nil
}

// drawDelay must be called with s.mu held.
func (s *Synthesizer) drawDelay() time.Duration {
	span := float64(s.maxDelay - s.minDelay)
	return s.minDelay + time.Duration(s.rng.Float64()*span)
}

// drawParts must be called with s.mu held.
func (s *Synthesizer) drawParts(w, h, threshold float64) ([]DetectedPart, int) {
	count := MinCandidates + s.rng.IntN(MaxCandidates-MinCandidates+1)
	parts := make([]DetectedPart, 0, count)

	for i := 0; i < count; i++ {
		arch := s.catalog.At(s.rng.IntN(s.catalog.Len()))
		// Filter on the rounded value so reported confidences never fall
		// below the threshold.
		confidence := round2(MinConfidence + s.rng.Float64()*(1-MinConfidence))
		if confidence < threshold {
			continue
		}

		ratio := arch.MinSize + s.rng.Float64()*(arch.MaxSize-arch.MinSize)
		width := math.Min(w*ratio, w)
		height := math.Min(width*(0.5+s.rng.Float64()*0.5), h)

		box := BBox{
			X:      s.rng.Float64() * (w - width),
			Y:      s.rng.Float64() * (h - height),
			Width:  width,
			Height: height,
		}
		box.X, box.Width = fitSpan(box.X, box.Width, w)
		box.Y, box.Height = fitSpan(box.Y, box.Height, h)

		parts = append(parts, DetectedPart{
			ID:         s.newID("part"),
			Name:       arch.Name,
			Confidence: confidence,
			BBox:       box,
			Area:       box.Area(),
			Color:      arch.Color,
		})
	}
	return parts, count
}

// fitSpan pulls [pos, pos+size] back inside [0, limit] when float rounding
// pushes the far edge a hair past the image.
func fitSpan(pos, size, limit float64) (float64, float64) {
	if pos+size <= limit {
		return pos, size
	}
	pos = math.Max(0, limit-size)
	if pos+size > limit {
		size = limit - pos
	}
	return pos, size
}

func validDimension(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}

func uuidID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
