// Package session assembles the scanning components for one client: a
// recognition adapter over a fresh engine, a scan orchestrator and, for live
// scanning, a frame pipeline feeding it.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MeKo-Tech/wordscan/internal/dispatch"
	"github.com/MeKo-Tech/wordscan/internal/extract"
	"github.com/MeKo-Tech/wordscan/internal/frames"
	"github.com/MeKo-Tech/wordscan/internal/recognition"
	"github.com/MeKo-Tech/wordscan/internal/scanner"
	"github.com/MeKo-Tech/wordscan/internal/validation"
)

// EngineFunc creates a recognition engine. Every session owns its engine.
type EngineFunc func() (recognition.Engine, error)

// Config describes how sessions are built.
type Config struct {
	NewEngine         EngineFunc
	Validator         validation.Client
	ValidationOptions validation.Options
	Bypass            bool
	Throttle          time.Duration
	MaxConcurrency    int
	Mode              scanner.Mode
	Frames            frames.Config
	// Executor runs recognition for every session the factory builds. When
	// nil each session recognizes on its own goroutines.
	Executor dispatch.Executor
	Logger   *slog.Logger
}

// Factory builds sessions from a shared configuration.
type Factory struct {
	cfg Config
}

// NewFactory validates cfg and returns a Factory.
func NewFactory(cfg Config) (*Factory, error) {
	if cfg.NewEngine == nil {
		return nil, errors.New("session: engine constructor is required")
	}
	if cfg.Validator == nil {
		return nil, errors.New("session: validation client is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = scanner.DefaultMaxConcurrency
	}
	return &Factory{cfg: cfg}, nil
}

// Session is one started scanner.
type Session struct {
	ID           string
	Recognizer   *recognition.Adapter
	Orchestrator *scanner.Orchestrator
	Pipeline     *frames.Pipeline
	Logger       *slog.Logger
}

// New builds a session in mode and starts its recognizer. The recognizer is
// stopped again if Start fails.
func (f *Factory) New(ctx context.Context, mode scanner.Mode) (*Session, error) {
	engine, err := f.cfg.NewEngine()
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	id := uuid.NewString()
	logger := f.cfg.Logger.With("session", id)

	rec := recognition.NewAdapter(engine,
		recognition.WithExtractor(extract.New(extract.Options{Bypass: f.cfg.Bypass})),
		recognition.WithThrottle(f.cfg.Throttle),
		recognition.WithExecutor(f.cfg.Executor),
		recognition.WithLogger(logger),
	)
	orch := scanner.New(rec, f.cfg.Validator,
		scanner.WithValidationOptions(f.cfg.ValidationOptions),
		scanner.WithMaxConcurrency(f.cfg.MaxConcurrency),
		scanner.WithMode(mode),
		scanner.WithLogger(logger),
	)
	pipe := frames.New(orch, f.cfg.Frames,
		frames.WithLogger(logger),
		frames.WithOnError(func(err error) { logger.Warn("frame dropped", "error", err) }),
	)

	if err := orch.Start(ctx); err != nil {
		rec.Stop()
		return nil, err
	}
	return &Session{ID: id, Recognizer: rec, Orchestrator: orch, Pipeline: pipe, Logger: logger}, nil
}

// Close stops the orchestrator and releases the engine.
func (s *Session) Close() {
	s.Orchestrator.Stop()
	s.Recognizer.Stop()
}

// ScanStill clears earlier results and scans a single image in single-frame
// mode, waiting until validation settled or ctx is done.
func (s *Session) ScanStill(ctx context.Context, img image.Image, fromImport bool) (scanner.State, error) {
	s.Orchestrator.Reset()
	result, err := s.Orchestrator.ScanImage(img, fromImport)
	if err != nil {
		return scanner.State{}, err
	}
	select {
	case st := <-result:
		return st, nil
	case <-ctx.Done():
		// Discard the cycle so a late result does not leak into the next scan.
		s.Orchestrator.Reset()
		return scanner.State{}, ctx.Err()
	}
}
