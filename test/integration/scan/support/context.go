// Package support holds the step definitions of the scanner feature suite.
package support

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"

	"github.com/MeKo-Tech/wordscan/internal/dispatch"
	"github.com/MeKo-Tech/wordscan/internal/frames"
	"github.com/MeKo-Tech/wordscan/internal/imports"
	"github.com/MeKo-Tech/wordscan/internal/recognition"
	"github.com/MeKo-Tech/wordscan/internal/scanner"
	"github.com/MeKo-Tech/wordscan/internal/session"
	"github.com/MeKo-Tech/wordscan/internal/testutil"
)

// ScanContext holds the state of one scenario.
type ScanContext struct {
	Recognizer *testutil.FakeRecognizer
	Validator  *testutil.FakeValidator

	Orchestrator *scanner.Orchestrator
	Pipeline     *frames.Pipeline
	Frames       []*frames.PooledFrame

	// Session-backed import state.
	EngineText  string
	Session     *session.Session
	LastResults []imports.Result
	LastError   error

	// recognized is what the recognizer reports when answering scans
	// automatically; nil leaves scans pending.
	recognized []string
	automatic  bool
}

// NewScanContext returns an empty context with a validator that confirms
// nothing.
func NewScanContext() *ScanContext {
	return &ScanContext{Validator: testutil.NewFakeValidator()}
}

// start builds an orchestrator around the fake recognizer in mode. Work is
// dispatched inline so every step observes settled state.
func (sc *ScanContext) start(mode scanner.Mode) error {
	sc.Recognizer = &testutil.FakeRecognizer{}
	if sc.automatic {
		sc.Recognizer.Auto = func(image.Image) ([]string, error) { return sc.recognized, nil }
	}
	sc.Orchestrator = scanner.New(sc.Recognizer, sc.Validator,
		scanner.WithExecutor(dispatch.Inline{}),
		scanner.WithMode(mode),
		scanner.WithLogger(slog.New(slog.DiscardHandler)),
	)
	sc.Pipeline = frames.New(sc.Orchestrator, frames.Config{})
	return sc.Orchestrator.Start(context.Background())
}

func (sc *ScanContext) requireStarted() error {
	if sc.Orchestrator == nil {
		return errors.New("scanner has not been started")
	}
	return nil
}

// frame returns a new pooled camera frame and remembers it.
func (sc *ScanContext) frame() *frames.PooledFrame {
	f := frames.NewPooledFrame(testutil.CreateTestImage(64, 32, color.White), 0)
	sc.Frames = append(sc.Frames, f)
	return f
}

// openSession starts a real single-frame session whose engine reads
// EngineText from every image.
func (sc *ScanContext) openSession() error {
	if sc.Session != nil {
		return nil
	}
	text := sc.EngineText
	factory, err := session.NewFactory(session.Config{
		NewEngine: func() (recognition.Engine, error) { return testutil.StaticText(text), nil },
		Validator: sc.Validator,
		Logger:    slog.New(slog.DiscardHandler),
	})
	if err != nil {
		return err
	}
	s, err := factory.New(context.Background(), scanner.ModeSingleFrame)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	sc.Session = s
	return nil
}

// Cleanup stops everything the scenario started.
func (sc *ScanContext) Cleanup() error {
	if sc.Orchestrator != nil {
		sc.Orchestrator.Stop()
	}
	if sc.Session != nil {
		sc.Session.Close()
	}
	return nil
}
