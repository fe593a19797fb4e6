// Package testutil holds helpers shared by tests across packages: synthetic
// images and scriptable fakes for the recognition engine and validation
// client.
package testutil

import (
	"context"
	"errors"
	"image"
	"sync"

	"github.com/MeKo-Tech/wordscan/internal/address"
	"github.com/MeKo-Tech/wordscan/internal/recognition"
	"github.com/MeKo-Tech/wordscan/internal/validation"
)

// FakeEngine is a recognition.Engine returning scripted text.
type FakeEngine struct {
	// Text returns the recognized text for img. Nil yields "".
	Text func(img image.Image) (string, error)
	// OpenErr is returned by Open.
	OpenErr error

	mu         sync.Mutex
	opens      int
	closes     int
	recognized int
}

// StaticText returns a FakeEngine that always recognizes text.
func StaticText(text string) *FakeEngine {
	return &FakeEngine{Text: func(image.Image) (string, error) { return text, nil }}
}

// BySize returns a FakeEngine recognizing texts[w] for images of width w.
// Tests use the width of a blank image to select what is "printed" on it.
func BySize(texts map[int]string) *FakeEngine {
	return &FakeEngine{Text: func(img image.Image) (string, error) {
		return texts[img.Bounds().Dx()], nil
	}}
}

func (e *FakeEngine) Name() string { return "fake" }

func (e *FakeEngine) Open(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.opens++
	return e.OpenErr
}

func (e *FakeEngine) Recognize(_ context.Context, img image.Image, _ recognition.Hint) (string, error) {
	e.mu.Lock()
	e.recognized++
	fn := e.Text
	e.mu.Unlock()
	if fn == nil {
		return "", nil
	}
	return fn(img)
}

func (e *FakeEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closes++
	return nil
}

// Counts returns how often Open, Recognize and Close were called.
func (e *FakeEngine) Counts() (opens, recognized, closes int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.opens, e.recognized, e.closes
}

// FakeValidator is a validation.Client answering from a script.
type FakeValidator struct {
	// Before, when set, runs at the start of every call. Tests block in it to
	// hold a validation in flight.
	Before func(ctx context.Context, candidate string)

	mu      sync.Mutex
	results map[string][]address.Confirmed
	errs    map[string]error
	calls   []string
}

// NewFakeValidator returns a validator that confirms nothing.
func NewFakeValidator() *FakeValidator {
	return &FakeValidator{
		results: make(map[string][]address.Confirmed),
		errs:    make(map[string]error),
	}
}

// Confirm makes candidate validate to itself in the given language.
func (v *FakeValidator) Confirm(candidate, language string) *FakeValidator {
	return v.Answer(candidate, address.Confirmed{Words: candidate, Language: language, Country: "GB"})
}

// Answer scripts the suggestions returned for candidate.
func (v *FakeValidator) Answer(candidate string, suggestions ...address.Confirmed) *FakeValidator {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.results[candidate] = suggestions
	return v
}

// Fail makes validation of candidate return err.
func (v *FakeValidator) Fail(candidate string, err error) *FakeValidator {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.errs[candidate] = err
	return v
}

// Validate implements validation.Client.
func (v *FakeValidator) Validate(ctx context.Context, candidate string, _ validation.Options) ([]address.Confirmed, error) {
	v.mu.Lock()
	v.calls = append(v.calls, candidate)
	before := v.Before
	v.mu.Unlock()

	if before != nil {
		before(ctx, candidate)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.errs[candidate]; err != nil {
		return nil, err
	}
	return append([]address.Confirmed(nil), v.results[candidate]...), nil
}

// Calls returns the candidates validated so far, in call order.
func (v *FakeValidator) Calls() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.calls...)
}

// ErrFakeStart is the start failure reported when FailStart is set without
// a StartErr.
var ErrFakeStart = errors.New("fake recognizer failed to start")

// PendingScan is a Scan call held by FakeRecognizer until the test answers it.
type PendingScan struct {
	Image     image.Image
	Callbacks recognition.Callbacks
}

// Detect delivers candidates followed by completion.
func (p PendingScan) Detect(candidates ...string) {
	if p.Callbacks.OnDetected != nil {
		p.Callbacks.OnDetected(candidates)
	}
	p.Complete()
}

// Fail delivers err followed by completion.
func (p PendingScan) Fail(err error) {
	if p.Callbacks.OnError != nil {
		p.Callbacks.OnError(err)
	}
	p.Complete()
}

// Complete delivers only the completion.
func (p PendingScan) Complete() {
	if p.Callbacks.OnCompleted != nil {
		p.Callbacks.OnCompleted()
	}
}

// FakeRecognizer implements recognition.Recognizer. With Auto set every scan
// is answered synchronously; otherwise scans queue up until the test takes
// them with Next.
type FakeRecognizer struct {
	Auto      func(img image.Image) ([]string, error)
	FailStart bool
	StartErr  error

	mu      sync.Mutex
	started bool
	stops   int
	pending []PendingScan
	scans   int
}

// Start implements recognition.Recognizer.
func (r *FakeRecognizer) Start(onReady func(), onError func(error)) {
	if r.FailStart || r.StartErr != nil {
		err := r.StartErr
		if err == nil {
			err = ErrFakeStart
		}
		if onError != nil {
			onError(err)
		}
		return
	}
	r.mu.Lock()
	r.started = true
	r.mu.Unlock()
	if onReady != nil {
		onReady()
	}
}

// Scan implements recognition.Recognizer.
func (r *FakeRecognizer) Scan(img image.Image, cb recognition.Callbacks) {
	r.mu.Lock()
	started := r.started
	r.scans++
	auto := r.Auto
	r.mu.Unlock()

	if !started {
		p := PendingScan{Image: img, Callbacks: cb}
		p.Fail(recognition.ErrNotStarted)
		return
	}
	if cb.OnScanning != nil {
		cb.OnScanning()
	}
	p := PendingScan{Image: img, Callbacks: cb}
	if auto != nil {
		cands, err := auto(img)
		if err != nil {
			p.Fail(err)
		} else {
			p.Detect(cands...)
		}
		return
	}
	r.mu.Lock()
	r.pending = append(r.pending, p)
	r.mu.Unlock()
}

// Stop implements recognition.Recognizer.
func (r *FakeRecognizer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = false
	r.stops++
}

// Next removes and returns the oldest pending scan.
func (r *FakeRecognizer) Next() (PendingScan, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.pending) == 0 {
		return PendingScan{}, false
	}
	p := r.pending[0]
	r.pending = r.pending[1:]
	return p, true
}

// Pending returns the number of unanswered scans.
func (r *FakeRecognizer) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Scans returns how many times Scan was called.
func (r *FakeRecognizer) Scans() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scans
}

// Stops returns how many times Stop was called.
func (r *FakeRecognizer) Stops() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stops
}
