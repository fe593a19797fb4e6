// Package scanner drives recognition and validation for a scanning session
// and publishes the resulting State. The Orchestrator is the single writer of
// that state; consumers read snapshots through State or Subscribe.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"slices"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/MeKo-Tech/wordscan/internal/address"
	"github.com/MeKo-Tech/wordscan/internal/dispatch"
	"github.com/MeKo-Tech/wordscan/internal/extract"
	"github.com/MeKo-Tech/wordscan/internal/frames"
	"github.com/MeKo-Tech/wordscan/internal/metrics"
	"github.com/MeKo-Tech/wordscan/internal/recognition"
	"github.com/MeKo-Tech/wordscan/internal/validation"
)

var (
	// ErrNotReady is returned by scan requests before Start or after Stop.
	ErrNotReady = errors.New("scanner: not started")

	// ErrBusy is returned when a single-frame scan is already in flight.
	ErrBusy = errors.New("scanner: single-frame scan already in progress")

	// ErrNotSingleFrame is returned by CaptureNextFrame in live mode.
	ErrNotSingleFrame = errors.New("scanner: capture requires single-frame mode")
)

// DefaultMaxConcurrency bounds parallel validation calls per cycle.
const DefaultMaxConcurrency = 4

// Orchestrator coordinates a Recognizer and a validation Client.
type Orchestrator struct {
	rec     recognition.Recognizer
	val     validation.Client
	valOpts validation.Options
	exec    dispatch.Executor
	logger  *slog.Logger
	limit   int
	pub     *Publisher

	mu      sync.Mutex
	state   State
	found   address.List
	gen     uint64
	ready   bool
	capture bool
	// still is the single-frame cycle in flight, if any.
	still  *cycle
	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithValidationOptions sets the options sent with every validation call.
func WithValidationOptions(opts validation.Options) Option {
	return func(o *Orchestrator) { o.valOpts = opts }
}

// WithExecutor sets the executor validation batches run on.
func WithExecutor(exec dispatch.Executor) Option {
	return func(o *Orchestrator) {
		if exec != nil {
			o.exec = exec
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxConcurrency bounds parallel validation calls per cycle.
func WithMaxConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.limit = n
		}
	}
}

// WithMode sets the initial scanning mode.
func WithMode(m Mode) Option {
	return func(o *Orchestrator) { o.state.Mode = m }
}

// New returns an idle orchestrator.
func New(rec recognition.Recognizer, val validation.Client, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		rec:    rec,
		val:    val,
		logger: slog.Default(),
		limit:  DefaultMaxConcurrency,
		ctx:    context.Background(),
		cancel: func() {},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.exec == nil {
		o.exec = &dispatch.Goroutines{Logger: o.logger}
	}
	o.pub = NewPublisher(o.snapshotLocked())
	return o
}

// Start prepares the recognizer and blocks until it is ready, fails, or ctx
// is done. On failure the state is unchanged and Start may be retried.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.ready {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	result := make(chan error, 1)
	report := func(err error) {
		select {
		case result <- err:
		default:
		}
	}
	o.rec.Start(func() { report(nil) }, report)

	var err error
	select {
	case err = <-result:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		o.logger.Error("scanner start failed", "error", err)
		return fmt.Errorf("start recognizer: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.ready = true
	o.gen++
	o.ctx, o.cancel = context.WithCancel(context.Background())
	o.found = address.List{}
	o.state = State{Phase: PhaseIdle, Mode: o.state.Mode}
	o.publishLocked()
	o.logger.Info("scanner ready", "mode", o.state.Mode.String())
	return nil
}

// Stop releases the recognizer, discards results and returns to Idle.
// Callbacks of cycles that were in flight are ignored when they arrive.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	wasReady := o.ready
	o.ready = false
	o.clearLocked()
	o.mu.Unlock()

	if wasReady {
		o.rec.Stop()
		o.logger.Info("scanner stopped")
	}
}

// Reset clears found addresses and returns to Idle without stopping the
// recognizer.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clearLocked()
	if o.ready {
		o.ctx, o.cancel = context.WithCancel(context.Background())
	}
}

func (o *Orchestrator) clearLocked() {
	o.gen++
	o.cancel()
	o.capture = false
	o.still = nil
	o.found = address.List{}
	prev := o.state.Phase
	o.state = State{Phase: PhaseIdle, Mode: o.state.Mode}
	if prev != PhaseIdle {
		o.recordPhase(PhaseIdle)
	}
	o.publishLocked()
}

// ToggleLiveMode switches between live and single-frame scanning and returns
// the new mode. Found addresses are kept.
func (o *Orchestrator) ToggleLiveMode() Mode {
	o.mu.Lock()
	defer o.mu.Unlock()
	next := ModeLive
	if o.state.Mode == ModeLive {
		next = ModeSingleFrame
	}
	o.setModeLocked(next)
	return next
}

// SetMode switches to m. Found addresses are kept.
func (o *Orchestrator) SetMode(m Mode) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setModeLocked(m)
}

func (o *Orchestrator) setModeLocked(m Mode) {
	if o.state.Mode == m {
		return
	}
	o.state.Mode = m
	if m == ModeLive {
		o.capture = false
		o.state.CapturedImage = nil
		o.state.FromImport = false
	}
	o.publishLocked()
}

// CaptureNextFrame marks the next submitted frame as the still to scan.
func (o *Orchestrator) CaptureNextFrame() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch {
	case !o.ready:
		return ErrNotReady
	case o.state.Mode != ModeSingleFrame:
		return ErrNotSingleFrame
	case o.still != nil:
		return ErrBusy
	}
	o.capture = true
	return nil
}

// OnBackPressed discards the still under review. Found addresses are kept;
// results of a cycle still running for the discarded still are ignored.
func (o *Orchestrator) OnBackPressed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.CapturedImage == nil && o.still == nil && !o.capture {
		return
	}
	if o.still != nil {
		o.gen++
		o.still = nil
	}
	o.capture = false
	o.state.CapturedImage = nil
	o.state.FromImport = false
	if o.state.Phase != PhaseFound {
		next := PhaseIdle
		if o.ready {
			next = PhaseScanning
		}
		o.setPhaseLocked(next)
	}
	o.publishLocked()
}

// State returns the latest snapshot.
func (o *Orchestrator) State() State { return o.pub.Current() }

// Subscribe returns a channel receiving the latest snapshot on every change,
// and a function to unsubscribe.
func (o *Orchestrator) Subscribe() (<-chan State, func()) { return o.pub.Subscribe() }

// Ready reports whether Start succeeded and Stop has not been called since.
func (o *Orchestrator) Ready() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.ready
}

// SubmitFrame implements frames.Submitter. In live mode every frame is
// scanned; in single-frame mode only the frame following CaptureNextFrame is,
// and the rest are released right away.
func (o *Orchestrator) SubmitFrame(img image.Image, ticket *frames.Ticket) {
	o.mu.Lock()
	if !o.ready {
		o.mu.Unlock()
		ticket.Done()
		return
	}

	var c *cycle
	switch {
	case o.state.Mode == ModeLive:
		c = newCycle(o.gen, false, ticket, o.settled)
	case o.capture:
		o.capture = false
		still := imaging.Clone(img)
		img = still
		c = newCycle(o.gen, true, ticket, o.settled)
		o.still = c
		o.state.CapturedImage = still
		o.state.FromImport = false
		o.publishLocked()
	default:
		o.mu.Unlock()
		ticket.Done()
		return
	}
	o.mu.Unlock()

	o.scan(img, c)
}

// ScanImage scans a single still, such as an imported photo or a PDF page,
// in single-frame mode. The returned channel receives the state once the
// cycle has settled and is then closed.
func (o *Orchestrator) ScanImage(img image.Image, fromImport bool) (<-chan State, error) {
	o.mu.Lock()
	if !o.ready {
		o.mu.Unlock()
		return nil, ErrNotReady
	}
	if o.still != nil {
		o.mu.Unlock()
		return nil, ErrBusy
	}

	c := newCycle(o.gen, true, nil, o.settled)
	c.result = make(chan State, 1)
	o.still = c
	o.capture = false
	o.state.Mode = ModeSingleFrame
	o.state.CapturedImage = nil
	if img != nil && !img.Bounds().Empty() {
		img = imaging.Clone(img)
		o.state.CapturedImage = img
	}
	o.state.FromImport = fromImport
	o.publishLocked()
	o.mu.Unlock()

	o.scan(img, c)
	return c.result, nil
}

func (o *Orchestrator) scan(img image.Image, c *cycle) {
	log := o.logger.With("cycle", c.id)
	log.Debug("scan submitted", "single", c.single)

	o.rec.Scan(img, recognition.Callbacks{
		OnScanning:  func() { o.onScanning(c) },
		OnDetected:  func(cands []string) { o.onDetected(c, cands, log) },
		OnError:     func(err error) { o.onError(c, err, log) },
		OnCompleted: func() { o.onCompleted(c) },
	})
}

func (o *Orchestrator) onScanning(c *cycle) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stale(c) {
		return
	}
	o.state.Cycle = c.id
	o.state.Error = ""
	if o.state.Phase != PhaseFound {
		o.setPhaseLocked(PhaseScanning)
	}
	o.publishLocked()
}

func (o *Orchestrator) onDetected(c *cycle, cands []string, log *slog.Logger) {
	c.reported.Store(true)

	o.mu.Lock()
	if o.stale(c) {
		o.mu.Unlock()
		c.validationDone()
		return
	}

	if len(cands) == 0 {
		if c.single && o.state.Phase != PhaseFound {
			o.setPhaseLocked(PhaseNotFound)
			o.publishLocked()
		}
		o.mu.Unlock()
		log.Debug("no candidates detected")
		c.validationDone()
		return
	}

	if o.state.Phase != PhaseFound {
		o.setPhaseLocked(PhaseDetected)
		o.publishLocked()
		o.setPhaseLocked(PhaseValidating)
		o.publishLocked()
	}
	batch := o.pendingCandidatesLocked(cands)
	ctx := o.ctx
	o.mu.Unlock()

	log.Debug("candidates detected", "count", len(cands), "to_validate", len(batch))
	if len(batch) == 0 {
		o.finishValidation(c, nil)
		return
	}
	o.exec.Submit(func() {
		confirmed := validation.ValidateAll(ctx, o.val, batch, o.valOpts, o.limit, log)
		o.finishValidation(c, confirmed)
	})
}

// pendingCandidatesLocked normalizes cands and drops those already found
// and repeats within the batch.
func (o *Orchestrator) pendingCandidatesLocked(cands []string) []string {
	return slices.DeleteFunc(extract.Dedupe(cands), o.found.Contains)
}

func (o *Orchestrator) finishValidation(c *cycle, confirmed []address.Confirmed) {
	defer c.validationDone()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stale(c) {
		return
	}

	before := o.found.Len()
	o.found = o.found.Merge(confirmed...)
	if added := o.found.Len() - before; added > 0 {
		metrics.AddressesFound.Add(float64(added))
		o.logger.Info("addresses found", "cycle", c.id, "new", added, "total", o.found.Len())
	}

	switch {
	case !o.found.Empty():
		o.setPhaseLocked(PhaseFound)
	case c.single:
		o.setPhaseLocked(PhaseNotFound)
	default:
		o.setPhaseLocked(PhaseScanning)
	}
	o.publishLocked()
}

func (o *Orchestrator) onError(c *cycle, err error, log *slog.Logger) {
	c.reported.Store(true)
	defer c.validationDone()

	log.Warn("scan failed", "error", err)
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stale(c) {
		return
	}
	o.state.Error = err.Error()
	if c.single && o.state.Phase != PhaseFound {
		o.setPhaseLocked(PhaseNotFound)
	}
	o.publishLocked()
}

func (o *Orchestrator) onCompleted(c *cycle) {
	if !c.reported.Load() {
		c.validationDone()
	}
	c.recognitionDone()
}

// settled runs once per cycle after recognition and validation finished.
func (o *Orchestrator) settled(c *cycle) {
	o.mu.Lock()
	if o.still == c {
		o.still = nil
	}
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.logger.Debug("scan cycle settled", "cycle", c.id, "timing", c.timer.String())
	if c.result != nil {
		c.result <- snap
		close(c.result)
	}
}

// stale reports whether c belongs to a session that was stopped or reset.
func (o *Orchestrator) stale(c *cycle) bool { return c.gen != o.gen }

func (o *Orchestrator) setPhaseLocked(p Phase) {
	if o.state.Phase == p {
		return
	}
	o.state.Phase = p
	o.recordPhase(p)
}

func (o *Orchestrator) recordPhase(p Phase) {
	metrics.PhaseTransitions.WithLabelValues(p.String()).Inc()
}

func (o *Orchestrator) snapshotLocked() State {
	s := o.state
	s.Found = o.found.Items()
	return s
}

// publishLocked publishes under o.mu so snapshots reach subscribers in
// mutation order.
func (o *Orchestrator) publishLocked() {
	o.pub.Publish(o.snapshotLocked())
}
