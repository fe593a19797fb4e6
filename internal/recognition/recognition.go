// Package recognition adapts an on-device text recognition engine into the
// start/scan/stop capability the scan orchestrator drives.
//
// An Adapter owns the engine lifecycle (optional language pack install,
// open, close), runs recognition on an injected executor, turns recognized
// text into address candidates and reports progress through callbacks. Engine
// failures never escape as panics; they arrive through OnError.
package recognition

import (
	"errors"
	"fmt"
	"image"
)

var (
	// ErrNotStarted is reported by Scan before a successful Start or after Stop.
	ErrNotStarted = errors.New("recognition: recognizer not started")

	// ErrInvalidImage is reported by Scan for nil or empty images.
	ErrInvalidImage = errors.New("recognition: image must have positive width and height")

	// ErrStopped is reported to Start callers when Stop interrupts preparation.
	ErrStopped = errors.New("recognition: recognizer stopped during start")

	// ErrNoBackend is returned when the requested engine is not linked into the binary.
	ErrNoBackend = errors.New("recognition: tesseract engine not linked; build with -tags=tesseract")
)

// Recognizer is the capability the orchestrator depends on.
type Recognizer interface {
	// Start prepares the engine asynchronously. Exactly one of onReady or
	// onError is invoked. Calling Start when already ready re-invokes onReady.
	Start(onReady func(), onError func(error))

	// Scan recognizes img and reports through cb. OnCompleted is always
	// invoked exactly once per call.
	Scan(img image.Image, cb Callbacks)

	// Stop releases the engine. Later scans fail with ErrNotStarted.
	Stop()
}

// Callbacks receives the progress of a single Scan call. Within one call
// OnScanning precedes OnDetected or OnError, which precede OnCompleted.
// Nil callbacks are skipped.
type Callbacks struct {
	OnScanning  func()
	OnDetected  func(candidates []string)
	OnError     func(err error)
	OnCompleted func()
}

func (cb Callbacks) scanning() {
	if cb.OnScanning != nil {
		cb.OnScanning()
	}
}

func (cb Callbacks) detected(c []string) {
	if cb.OnDetected != nil {
		cb.OnDetected(c)
	}
}

func (cb Callbacks) failed(err error) {
	if cb.OnError != nil {
		cb.OnError(err)
	}
}

func (cb Callbacks) completed() {
	if cb.OnCompleted != nil {
		cb.OnCompleted()
	}
}

// State is the lifecycle state of an Adapter.
type State int

const (
	StateUninitialized State = iota
	StateStarting
	StateReady
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ScanError wraps a failure of a single scan.
type ScanError struct {
	Op  string
	Err error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("recognition %s: %v", e.Op, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// StartError wraps a failure while preparing the engine.
type StartError struct {
	Engine string
	Op     string
	Err    error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("recognition: starting %s: %s: %v", e.Engine, e.Op, e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }

func validImage(img image.Image) bool {
	if img == nil {
		return false
	}
	b := img.Bounds()
	return b.Dx() > 0 && b.Dy() > 0
}
