package live

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ironsheep/carvision-mcp/internal/detection"
	"github.com/ironsheep/carvision-mcp/internal/history"
	"github.com/ironsheep/carvision-mcp/internal/imaging"
	"github.com/ironsheep/carvision-mcp/internal/metrics"
	"github.com/ironsheep/carvision-mcp/internal/overlay"
)

var (
	// ErrNotRunning is returned by Stop when no loop is running.
	ErrNotRunning = errors.New("live detection not running")

	// ErrAlreadyRunning is returned by Start when a loop is running.
	ErrAlreadyRunning = errors.New("live detection already running")

	// ErrNoFrame is returned when no frame has been delivered yet.
	ErrNoFrame = errors.New("no live frame available")
)

// Tick outcomes reported to the metrics recorder.
const (
	outcomeDelivered = "delivered"
	outcomeStale     = "stale"
	outcomeError     = "error"
)

// Frame is one delivered tick: the detection result and the frame it was
// drawn onto.
type Frame struct {
	Seq    uint64                    `json:"seq"`
	Result detection.DetectionResult `json:"result"`

	// Image is the frame with the overlay drawn on it. It is owned by the
	// Frame and must not be modified.
	Image *image.NRGBA `json:"-"`
}

// Sink receives delivered frames. It is called from tick goroutines and
// must not block for long.
type Sink func(Frame)

// Status is a snapshot of the poller.
type Status struct {
	Running     bool          `json:"running"`
	Interval    time.Duration `json:"interval"`
	Ticks       uint64        `json:"ticks"`
	Delivered   uint64        `json:"delivered"`
	Stale       uint64        `json:"stale"`
	Errors      uint64        `json:"errors"`
	LastSeq     uint64        `json:"lastSeq"`
	LastError   string        `json:"lastError,omitempty"`
	StartedAt   time.Time     `json:"startedAt,omitzero"`
	HasFrame    bool          `json:"hasFrame"`
	ShowLabels  bool          `json:"showLabels"`
	InFlight    int           `json:"inFlight"`
	SourceLabel string        `json:"source,omitempty"`
}

// Poller runs the live detection loop. The zero value is not usable; create
// one with NewPoller.
type Poller struct {
	synth    *detection.Synthesizer
	renderer *overlay.Renderer
	store    *history.Store
	source   FrameSource

	sink        Sink
	logger      *zap.Logger
	recorder    *metrics.Recorder
	interval    time.Duration
	showLabels  bool
	sourceLabel string

	mu        sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
	startedAt time.Time
	active    time.Duration
	nextSeq   uint64
	lastSeq   uint64
	latest    *Frame
	ticks     uint64
	delivered uint64
	stale     uint64
	errCount  uint64
	lastErr   string
	inFlight  int
}

// Option configures a Poller.
type Option func(*Poller) error

// WithSink sets the function that receives delivered frames.
func WithSink(sink Sink) Option {
	return func(p *Poller) error {
		p.sink = sink
		return nil
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Poller) error {
		if logger == nil {
			return fmt.Errorf("%w: nil logger", detection.ErrInvalidInput)
		}
		p.logger = logger
		return nil
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r *metrics.Recorder) Option {
	return func(p *Poller) error {
		p.recorder = r
		return nil
	}
}

// WithInterval fixes the tick interval instead of deriving it from the
// history settings.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) error {
		if d <= 0 {
			return fmt.Errorf("%w: interval must be positive, got %v", detection.ErrInvalidInput, d)
		}
		p.interval = d
		return nil
	}
}

// WithLabels controls whether label tabs are drawn. Defaults to true.
func WithLabels(show bool) Option {
	return func(p *Poller) error {
		p.showLabels = show
		return nil
	}
}

// WithSourceLabel names the frame source in Status.
func WithSourceLabel(label string) Option {
	return func(p *Poller) error {
		p.sourceLabel = label
		return nil
	}
}

// NewPoller creates a stopped Poller.
func NewPoller(synth *detection.Synthesizer, renderer *overlay.Renderer, store *history.Store, source FrameSource, opts ...Option) (*Poller, error) {
	if synth == nil || renderer == nil || store == nil || source == nil {
		return nil, fmt.Errorf("%w: poller needs a synthesizer, renderer, store and source", detection.ErrInvalidInput)
	}
	p := &Poller{
		synth:      synth,
		renderer:   renderer,
		store:      store,
		source:     source,
		logger:     zap.NewNop(),
		showLabels: true,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Start begins polling. The loop runs until Stop is called or ctx is done.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrAlreadyRunning
	}

	interval := p.interval
	if interval == 0 {
		interval = p.store.Settings().Interval()
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.active = interval
	p.startedAt = time.Now()
	p.recorder.LiveSessionStarted()

	p.wg.Add(1)
	go p.loop(loopCtx, interval)

	p.logger.Info("live detection started",
		zap.Duration("interval", interval),
		zap.String("source", p.sourceLabel))
	return nil
}

// Stop cancels the loop and any in-flight ticks and waits for them to
// finish. The latest frame stays available for Capture.
func (p *Poller) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return ErrNotRunning
	}
	p.running = false
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	cancel()
	p.wg.Wait()
	p.recorder.LiveSessionStopped()

	p.logger.Info("live detection stopped")
	return nil
}

// Running reports whether the loop is running.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Latest returns the most recently delivered frame.
func (p *Poller) Latest() (Frame, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.latest == nil {
		return Frame{}, ErrNoFrame
	}
	return *p.latest, nil
}

// Capture attaches a PNG snapshot of the latest frame to its result and
// records the result in history.
func (p *Poller) Capture() (Frame, error) {
	frame, err := p.Latest()
	if err != nil {
		return Frame{}, err
	}
	encoded, err := imaging.EncodeBase64PNG(frame.Image)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to snapshot frame: %w", err)
	}
	frame.Result = frame.Result.WithImageData("data:image/png;base64," + encoded)
	p.store.Add(frame.Result)
	p.recorder.SetHistorySize(p.store.Len())

	p.logger.Info("live frame captured",
		zap.Uint64("seq", frame.Seq),
		zap.String("result_id", frame.Result.ID))
	return frame, nil
}

// Status returns a snapshot of the poller's counters.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		Running:     p.running,
		Interval:    p.active,
		Ticks:       p.ticks,
		Delivered:   p.delivered,
		Stale:       p.stale,
		Errors:      p.errCount,
		LastSeq:     p.lastSeq,
		LastError:   p.lastErr,
		StartedAt:   p.startedAt,
		HasFrame:    p.latest != nil,
		ShowLabels:  p.showLabels,
		InFlight:    p.inFlight,
		SourceLabel: p.sourceLabel,
	}
}

func (p *Poller) loop(ctx context.Context, interval time.Duration) {
	defer p.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.mu.Lock()
			p.nextSeq++
			seq := p.nextSeq
			p.ticks++
			p.inFlight++
			p.mu.Unlock()

			p.wg.Add(1)
			go p.tick(ctx, seq)
		}
	}
}

func (p *Poller) tick(ctx context.Context, seq uint64) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		p.inFlight--
		p.mu.Unlock()
		p.store.EndProcessing()
	}()

	p.store.BeginProcessing()
	frame, err := p.process(ctx, seq)
	if err != nil {
		if ctx.Err() != nil {
			p.recorder.RecordDetection("live", metrics.StatusCancelled, 0, nil, 0)
			return
		}
		p.mu.Lock()
		p.errCount++
		p.lastErr = err.Error()
		p.mu.Unlock()
		p.recorder.RecordLiveFrame(outcomeError)
		p.logger.Warn("live tick failed", zap.Uint64("seq", seq), zap.Error(err))
		return
	}

	p.mu.Lock()
	if ctx.Err() != nil {
		p.mu.Unlock()
		return
	}
	if last := p.lastSeq; seq < last {
		p.stale++
		p.mu.Unlock()
		p.recorder.RecordLiveFrame(outcomeStale)
		p.logger.Debug("dropping stale live result",
			zap.Uint64("seq", seq),
			zap.Uint64("last_seq", last))
		return
	}
	p.lastSeq = seq
	p.latest = &frame
	p.delivered++
	p.mu.Unlock()
	p.recorder.RecordLiveFrame(outcomeDelivered)

	if p.store.Settings().AutoSave {
		p.store.Add(frame.Result)
		p.recorder.SetHistorySize(p.store.Len())
	}
	if p.sink != nil {
		p.sink(frame)
	}
}

func (p *Poller) process(ctx context.Context, seq uint64) (Frame, error) {
	src, err := p.source.Frame(ctx)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to grab frame: %w", err)
	}
	surface, err := overlay.Acquire(src)
	if err != nil {
		return Frame{}, err
	}

	bounds := surface.Bounds()
	threshold := p.store.Settings().ConfidenceThreshold
	result, err := p.synth.Synthesize(ctx, float64(bounds.Dx()), float64(bounds.Dy()), threshold)
	if err != nil {
		return Frame{}, err
	}
	p.recorder.RecordDetection("live", metrics.StatusOK,
		time.Duration(result.ProcessingTime)*time.Millisecond,
		partNames(result.Parts), result.Candidates-result.TotalParts)

	start := time.Now()
	if err := p.renderer.Render(surface, result.Parts, p.showLabels); err != nil {
		p.recorder.RecordRender(metrics.StatusError, time.Since(start))
		return Frame{}, err
	}
	p.recorder.RecordRender(metrics.StatusOK, time.Since(start))

	return Frame{Seq: seq, Result: *result, Image: surface}, nil
}

func partNames(parts []detection.DetectedPart) []string {
	names := make([]string, len(parts))
	for i, p := range parts {
		names[i] = p.Name
	}
	return names
}
