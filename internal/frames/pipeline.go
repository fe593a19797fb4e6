package frames

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/MeKo-Tech/wordscan/internal/metrics"
	"github.com/MeKo-Tech/wordscan/internal/mempool"
)

// Config describes the region of interest. Crop is given in viewport
// coordinates, i.e. relative to the preview the user sees; a zero Crop or
// Viewport disables cropping.
type Config struct {
	Crop     image.Rectangle `mapstructure:"crop" yaml:"crop" json:"crop"`
	Viewport image.Point     `mapstructure:"viewport" yaml:"viewport" json:"viewport"`
}

func (c Config) cropEnabled() bool {
	return !c.Crop.Empty() && c.Viewport.X > 0 && c.Viewport.Y > 0
}

// Stats counts what the pipeline did with incoming frames.
type Stats struct {
	Submitted     int64 `json:"submitted"`
	Dropped       int64 `json:"dropped"`
	Failed        int64 `json:"failed"`
	Released      int64 `json:"released"`
	CropFallbacks int64 `json:"crop_fallbacks"`
}

// Pipeline bridges a frame source to a single-flight Submitter.
type Pipeline struct {
	sub     Submitter
	onError func(error)
	logger  *slog.Logger

	mu      sync.Mutex
	cfg     Config
	pending bool
	stats   Stats
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithOnError sets the callback for frames that could not be prepared.
func WithOnError(fn func(error)) Option {
	return func(p *Pipeline) { p.onError = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// New returns a pipeline submitting to sub.
func New(sub Submitter, cfg Config, opts ...Option) *Pipeline {
	p := &Pipeline{sub: sub, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SetConfig replaces the region of interest for subsequent frames.
func (p *Pipeline) SetConfig(cfg Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
}

// Busy reports whether a submitted frame is still unresolved.
func (p *Pipeline) Busy() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// Stats returns a copy of the counters.
func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Analyze handles one frame from the source. It never blocks on recognition:
// a frame arriving while another is in flight is released and dropped.
func (p *Pipeline) Analyze(frame Frame) {
	if frame == nil {
		return
	}

	p.mu.Lock()
	if p.pending {
		p.stats.Dropped++
		p.mu.Unlock()
		metrics.FramesTotal.WithLabelValues("dropped").Inc()
		frame.Release()
		return
	}
	p.pending = true
	cfg := p.cfg
	p.mu.Unlock()

	img, derived, err := p.prepare(frame, cfg)
	if err != nil {
		p.fail(err)
		frame.Release()
		p.resolve(false)
		return
	}

	ticket := NewTicket(func() {
		mempool.PutRGBA(derived)
		frame.Release()
		p.resolve(true)
	})

	p.mu.Lock()
	p.stats.Submitted++
	p.mu.Unlock()
	metrics.FramesTotal.WithLabelValues("submitted").Inc()

	p.submit(img, ticket)
}

// prepare uprights and crops the frame. derived is the pooled crop, if any,
// and must be released separately from the frame.
func (p *Pipeline) prepare(frame Frame, cfg Config) (img image.Image, derived *image.RGBA, err error) {
	defer func() {
		if r := recover(); r != nil {
			mempool.PutRGBA(derived)
			img, derived, err = nil, nil, fmt.Errorf("frames: preparing frame: %v", r)
		}
	}()

	src := frame.Image()
	if src == nil {
		return nil, nil, fmt.Errorf("frames: frame has no image")
	}
	img = Upright(src, frame.Rotation())
	if !cfg.cropEnabled() {
		return img, nil, nil
	}

	region, cropErr := ScaleCrop(img.Bounds(), cfg.Crop, cfg.Viewport)
	if cropErr != nil {
		p.mu.Lock()
		p.stats.CropFallbacks++
		p.mu.Unlock()
		p.logger.Debug("crop failed, using full frame", "error", cropErr, "bounds", img.Bounds())
		return img, nil, nil
	}
	derived = cropPooled(img, region)
	return derived, derived, nil
}

func (p *Pipeline) submit(img image.Image, ticket *Ticket) {
	defer func() {
		if r := recover(); r != nil {
			p.fail(fmt.Errorf("frames: submitter panic: %v", r))
			ticket.Done()
		}
	}()
	p.sub.SubmitFrame(img, ticket)
}

func (p *Pipeline) resolve(released bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending = false
	if released {
		p.stats.Released++
	}
}

func (p *Pipeline) fail(err error) {
	p.mu.Lock()
	p.stats.Failed++
	p.mu.Unlock()
	metrics.FramesTotal.WithLabelValues("failed").Inc()
	p.logger.Warn("frame dropped", "error", err)
	if p.onError != nil {
		p.onError(err)
	}
}
