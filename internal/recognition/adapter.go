package recognition

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/MeKo-Tech/wordscan/internal/common"
	"github.com/MeKo-Tech/wordscan/internal/dispatch"
	"github.com/MeKo-Tech/wordscan/internal/extract"
	"github.com/MeKo-Tech/wordscan/internal/metrics"
)

// DefaultThrottle is the minimum time between a scan's submission and its
// OnCompleted callback.
const DefaultThrottle = 250 * time.Millisecond

// Adapter implements Recognizer on top of an Engine.
type Adapter struct {
	engine    Engine
	extractor *extract.Extractor
	exec      dispatch.Executor
	clock     dispatch.Clock
	throttle  time.Duration
	hint      Hint
	logger    *slog.Logger

	// engineMu is held for reading while the engine recognizes and for
	// writing while it is closed.
	engineMu sync.RWMutex

	mu      sync.Mutex
	state   State
	ctx     context.Context
	cancel  context.CancelFunc
	waiters []startWaiter
}

type startWaiter struct {
	onReady func()
	onError func(error)
}

// Option configures an Adapter.
type Option func(*Adapter)

// WithExtractor sets the extractor applied to recognized text.
func WithExtractor(e *extract.Extractor) Option {
	return func(a *Adapter) {
		if e != nil {
			a.extractor = e
		}
	}
}

// WithExecutor sets the executor recognition and preparation run on.
func WithExecutor(exec dispatch.Executor) Option {
	return func(a *Adapter) {
		if exec != nil {
			a.exec = exec
		}
	}
}

// WithClock sets the clock used for the completion throttle.
func WithClock(c dispatch.Clock) Option {
	return func(a *Adapter) {
		if c != nil {
			a.clock = c
		}
	}
}

// WithThrottle sets the minimum submission-to-completion delay.
func WithThrottle(d time.Duration) Option {
	return func(a *Adapter) {
		if d >= 0 {
			a.throttle = d
		}
	}
}

// WithHint sets the hint passed to the engine on every scan.
func WithHint(h Hint) Option {
	return func(a *Adapter) { a.hint = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewAdapter wraps engine.
func NewAdapter(engine Engine, opts ...Option) *Adapter {
	a := &Adapter{
		engine:    engine,
		extractor: extract.New(extract.Options{}),
		clock:     dispatch.RealClock{},
		throttle:  DefaultThrottle,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.exec == nil {
		a.exec = &dispatch.Goroutines{Logger: a.logger}
	}
	return a
}

// State returns the current lifecycle state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Start implements Recognizer.
func (a *Adapter) Start(onReady func(), onError func(error)) {
	w := startWaiter{onReady: onReady, onError: onError}

	a.mu.Lock()
	switch a.state {
	case StateReady:
		a.mu.Unlock()
		w.ready()
		return
	case StateStarting:
		a.waiters = append(a.waiters, w)
		a.mu.Unlock()
		return
	case StateUninitialized, StateStopped:
	}
	a.state = StateStarting
	a.ctx, a.cancel = context.WithCancel(context.Background())
	ctx := a.ctx
	a.waiters = append(a.waiters[:0], w)
	a.mu.Unlock()

	a.exec.Submit(func() {
		err := a.prepare(ctx)

		a.mu.Lock()
		if a.state != StateStarting || ctx.Err() != nil {
			// Stop won the race; the engine must not be left open.
			if err == nil {
				a.closeEngine()
				err = ErrStopped
			}
		} else if err != nil {
			a.state = StateUninitialized
			a.cancel()
		} else {
			a.state = StateReady
		}
		waiters := a.waiters
		a.waiters = nil
		a.mu.Unlock()

		if err != nil {
			a.logger.Error("recognizer start failed", "engine", a.engine.Name(), "error", err)
		} else {
			a.logger.Info("recognizer ready", "engine", a.engine.Name())
		}
		for _, w := range waiters {
			if err != nil {
				w.fail(err)
			} else {
				w.ready()
			}
		}
	})
}

func (w startWaiter) ready() {
	if w.onReady != nil {
		w.onReady()
	}
}

func (w startWaiter) fail(err error) {
	if w.onError != nil {
		w.onError(err)
	}
}

// prepare installs the language pack when needed and opens the engine.
func (a *Adapter) prepare(ctx context.Context) (err error) {
	name := a.engine.Name()
	defer func() {
		if r := recover(); r != nil {
			err = &StartError{Engine: name, Op: "open", Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if inst, ok := a.engine.(Installer); ok {
		installed, err := inst.Installed(ctx)
		if err != nil {
			return &StartError{Engine: name, Op: "check install", Err: err}
		}
		if !installed {
			a.logger.Info("installing recognition language pack", "engine", name)
			if err := inst.Install(ctx); err != nil {
				return &StartError{Engine: name, Op: "install", Err: err}
			}
		}
	}
	if err := a.engine.Open(ctx); err != nil {
		return &StartError{Engine: name, Op: "open", Err: err}
	}
	return nil
}

// Scan implements Recognizer.
func (a *Adapter) Scan(img image.Image, cb Callbacks) {
	a.mu.Lock()
	ready := a.state == StateReady
	ctx := a.ctx
	a.mu.Unlock()

	if !ready {
		cb.failed(ErrNotStarted)
		cb.completed()
		return
	}
	if !validImage(img) {
		cb.failed(&ScanError{Op: "validate", Err: ErrInvalidImage})
		cb.completed()
		return
	}

	cb.scanning()
	submitted := a.clock.Now()

	a.exec.Submit(func() {
		defer func() {
			if wait := a.throttle - a.clock.Now().Sub(submitted); wait > 0 {
				a.clock.Sleep(ctx, wait)
			}
			cb.completed()
		}()

		timer := common.NewNamedTimer("recognize")
		text, err := a.recognize(ctx, img)
		elapsed := timer.ObserveStop(metrics.RecognitionDuration)

		if err != nil {
			metrics.RecognitionsTotal.WithLabelValues("error").Inc()
			a.logger.Debug("recognition failed", "engine", a.engine.Name(), "error", err, "elapsed", elapsed)
			cb.failed(&ScanError{Op: "recognize", Err: err})
			return
		}
		candidates := a.extractor.Candidates(text)
		metrics.RecognitionsTotal.WithLabelValues("ok").Inc()
		metrics.CandidatesExtracted.Observe(float64(len(candidates)))
		a.logger.Debug("recognition finished",
			"engine", a.engine.Name(), "chars", len(text), "candidates", len(candidates), "elapsed", elapsed)
		cb.detected(candidates)
	})
}

func (a *Adapter) recognize(ctx context.Context, img image.Image) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()

	a.engineMu.RLock()
	defer a.engineMu.RUnlock()
	if ctx.Err() != nil {
		return "", ErrNotStarted
	}
	return a.engine.Recognize(ctx, img, a.hint)
}

// Stop implements Recognizer.
func (a *Adapter) Stop() {
	a.mu.Lock()
	prev := a.state
	if prev == StateUninitialized || prev == StateStopped {
		a.mu.Unlock()
		return
	}
	a.state = StateStopped
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()

	if prev == StateReady {
		a.closeEngine()
	}
	a.logger.Info("recognizer stopped", "engine", a.engine.Name())
}

func (a *Adapter) closeEngine() {
	a.engineMu.Lock()
	defer a.engineMu.Unlock()
	if err := a.engine.Close(); err != nil {
		a.logger.Warn("closing recognition engine", "engine", a.engine.Name(), "error", err)
	}
}
