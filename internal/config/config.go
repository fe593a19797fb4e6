package config

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/MeKo-Tech/wordscan/internal/address"
	"github.com/MeKo-Tech/wordscan/internal/dispatch"
	"github.com/MeKo-Tech/wordscan/internal/extract"
	"github.com/MeKo-Tech/wordscan/internal/frames"
	"github.com/MeKo-Tech/wordscan/internal/imports"
	"github.com/MeKo-Tech/wordscan/internal/recognition"
	"github.com/MeKo-Tech/wordscan/internal/scanner"
	"github.com/MeKo-Tech/wordscan/internal/session"
	"github.com/MeKo-Tech/wordscan/internal/utils"
	"github.com/MeKo-Tech/wordscan/internal/validation"
)

// ErrNoValidator is returned when neither an API key nor an address book is
// configured.
var ErrNoValidator = errors.New("validation.api_key or validation.dictionary must be set")

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() Config {
	engine := recognition.DefaultEngineConfig()
	return Config{
		LogLevel: "info",
		Verbose:  false,
		Recognition: RecognitionConfig{
			Engine:      engine.Kind,
			Language:    engine.Language,
			TessdataURL: engine.TessdataURL,
			ThrottleMS:  int(recognition.DefaultThrottle / time.Millisecond),
			TimeoutSec:  int(engine.Timeout / time.Second),
		},
		Validation: ValidationConfig{
			BaseURL:        validation.DefaultBaseURL,
			NResults:       3,
			TimeoutSec:     10,
			CacheSize:      validation.DefaultCacheSize,
			MaxConcurrency: scanner.DefaultMaxConcurrency,
		},
		Scan: ScanConfig{
			Mode: scanner.ModeLive.String(),
		},
		Output: OutputConfig{
			Format: "text",
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8080,
			CORSOrigin:      "*",
			MaxUploadMB:     20,
			TimeoutSec:      30,
			ShutdownTimeout: 10,
			Sessions:        2,
		},
	}
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, c.LogLevel) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	validFormats := []string{"text", "json", "yaml"}
	if c.Output.Format != "" && !slices.Contains(validFormats, c.Output.Format) {
		return fmt.Errorf("invalid output format: %s (must be one of: %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}

	validEngines := []string{recognition.EngineTesseract, recognition.EngineRemote}
	if !slices.Contains(validEngines, strings.ToLower(c.Recognition.Engine)) {
		return fmt.Errorf("invalid recognition engine: %s (must be one of: %s)", c.Recognition.Engine, strings.Join(validEngines, ", "))
	}
	if strings.EqualFold(c.Recognition.Engine, recognition.EngineRemote) && c.Recognition.RemoteURL == "" {
		return errors.New("recognition.remote_url is required for the remote engine")
	}
	if c.Recognition.ThrottleMS < 0 {
		return fmt.Errorf("invalid recognition throttle: %d (must not be negative)", c.Recognition.ThrottleMS)
	}
	if c.Recognition.Workers < 0 {
		return fmt.Errorf("invalid recognition workers: %d (must not be negative)", c.Recognition.Workers)
	}
	if c.Recognition.TimeoutSec <= 0 {
		return fmt.Errorf("invalid recognition timeout: %d (must be positive)", c.Recognition.TimeoutSec)
	}

	if err := c.validateValidation(); err != nil {
		return err
	}

	if _, err := scanner.ParseMode(c.Scan.Mode); err != nil {
		return fmt.Errorf("invalid scan mode: %s (must be live or single_frame)", c.Scan.Mode)
	}

	f := c.Frames
	if f.CropWidth < 0 || f.CropHeight < 0 || f.ViewportWidth < 0 || f.ViewportHeight < 0 {
		return errors.New("invalid frames config: sizes must not be negative")
	}
	if (f.CropWidth > 0 || f.CropHeight > 0) && (f.ViewportWidth == 0 || f.ViewportHeight == 0) {
		return errors.New("invalid frames config: a crop requires viewport_width and viewport_height")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be between 1 and 65535)", c.Server.Port)
	}
	if c.Server.Sessions <= 0 {
		return fmt.Errorf("invalid server sessions: %d (must be positive)", c.Server.Sessions)
	}
	rl := c.Server.RateLimit
	if rl.RequestsPerMinute < 0 || rl.RequestsPerHour < 0 || rl.MaxRequestsPerDay < 0 || rl.MaxDataPerDayMB < 0 {
		return errors.New("invalid rate limit: limits must not be negative")
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("invalid max upload size: %d (must be positive)", c.Server.MaxUploadMB)
	}
	if c.Server.TimeoutSec <= 0 {
		return fmt.Errorf("invalid timeout: %d (must be positive)", c.Server.TimeoutSec)
	}

	return nil
}

func (c *Config) validateValidation() error {
	v := c.Validation
	if v.Language != "" {
		if _, err := language.Parse(v.Language); err != nil {
			return fmt.Errorf("invalid validation language %q: %w", v.Language, err)
		}
	}
	for _, country := range v.ClipToCountries {
		if len(country) != 2 {
			return fmt.Errorf("invalid country %q (must be a two-letter ISO 3166-1 code)", country)
		}
		if _, err := language.ParseRegion(country); err != nil {
			return fmt.Errorf("invalid country %q: %w", country, err)
		}
	}
	if (v.FocusLat == nil) != (v.FocusLng == nil) {
		return errors.New("validation.focus_lat and validation.focus_lng must be set together")
	}
	if v.FocusLat != nil && (*v.FocusLat < -90 || *v.FocusLat > 90) {
		return fmt.Errorf("invalid focus latitude: %.6f", *v.FocusLat)
	}
	if v.FocusLng != nil && (*v.FocusLng < -180 || *v.FocusLng > 180) {
		return fmt.Errorf("invalid focus longitude: %.6f", *v.FocusLng)
	}
	if v.NResults < 0 {
		return fmt.Errorf("invalid n_results: %d (must not be negative)", v.NResults)
	}
	if v.TimeoutSec <= 0 {
		return fmt.Errorf("invalid validation timeout: %d (must be positive)", v.TimeoutSec)
	}
	if v.CacheSize < 0 {
		return fmt.Errorf("invalid cache size: %d (must not be negative)", v.CacheSize)
	}
	if v.MaxConcurrency <= 0 {
		return fmt.Errorf("invalid max concurrency: %d (must be positive)", v.MaxConcurrency)
	}
	return nil
}

// ToEngineConfig converts the recognition section to an engine configuration.
func (c *Config) ToEngineConfig() recognition.EngineConfig {
	return recognition.EngineConfig{
		Kind:        c.Recognition.Engine,
		Language:    c.Recognition.Language,
		TessdataDir: c.Recognition.TessdataDir,
		TessdataURL: c.Recognition.TessdataURL,
		RemoteURL:   c.Recognition.RemoteURL,
		Timeout:     time.Duration(c.Recognition.TimeoutSec) * time.Second,
	}
}

// Throttle returns the minimum duration of one recognition pass.
func (c *Config) Throttle() time.Duration {
	return time.Duration(c.Recognition.ThrottleMS) * time.Millisecond
}

// ToValidationOptions converts the validation section to per-request options.
func (c *Config) ToValidationOptions() validation.Options {
	opts := validation.Options{
		Language:        c.Validation.Language,
		NResults:        c.Validation.NResults,
		WithCoordinates: c.Validation.WithCoordinates,
	}
	for _, country := range c.Validation.ClipToCountries {
		opts.ClipToCountries = append(opts.ClipToCountries, strings.ToUpper(country))
	}
	if c.Validation.FocusLat != nil && c.Validation.FocusLng != nil {
		opts.Focus = &address.Coordinates{Lat: *c.Validation.FocusLat, Lng: *c.Validation.FocusLng}
	}
	return opts
}

// ToFramesConfig converts the frames section to a pipeline configuration.
func (c *Config) ToFramesConfig() frames.Config {
	f := c.Frames
	return frames.Config{
		Crop:     image.Rect(f.CropX, f.CropY, f.CropX+f.CropWidth, f.CropY+f.CropHeight),
		Viewport: image.Pt(f.ViewportWidth, f.ViewportHeight),
	}
}

// ScanMode returns the parsed scan mode, defaulting to live.
func (c *Config) ScanMode() scanner.Mode {
	m, _ := scanner.ParseMode(c.Scan.Mode)
	return m
}

// NewValidationClient builds the validation client described by the config:
// a static address book when a dictionary is configured, otherwise the HTTP
// client, wrapped in an LRU cache unless cache_size is zero.
func (c *Config) NewValidationClient() (validation.Client, error) {
	var client validation.Client
	switch {
	case c.Validation.Dictionary != "":
		static, err := validation.LoadStatic(c.Validation.Dictionary)
		if err != nil {
			return nil, err
		}
		client = static
	case c.Validation.APIKey != "":
		client = validation.NewHTTPClient(c.Validation.BaseURL, c.Validation.APIKey,
			time.Duration(c.Validation.TimeoutSec)*time.Second)
	default:
		return nil, ErrNoValidator
	}
	if c.Validation.CacheSize == 0 {
		return client, nil
	}
	return validation.NewCached(client, c.Validation.CacheSize)
}

// SessionConfig describes scanner sessions built from this config around the
// shared validation client.
func (c *Config) SessionConfig(client validation.Client, logger *slog.Logger) session.Config {
	engineCfg := c.ToEngineConfig()
	return session.Config{
		NewEngine:         func() (recognition.Engine, error) { return recognition.NewEngine(engineCfg) },
		Validator:         client,
		ValidationOptions: c.ToValidationOptions(),
		Bypass:            c.Recognition.Bypass,
		Throttle:          c.Throttle(),
		MaxConcurrency:    c.Validation.MaxConcurrency,
		Mode:              c.ScanMode(),
		Frames:            c.ToFramesConfig(),
		Logger:            logger,
	}
}

// NewRecognitionPool returns the worker pool shared by every session's
// recognizer, or nil when recognition.workers is 0. The caller closes it
// after the sessions.
func (c *Config) NewRecognitionPool(logger *slog.Logger) *dispatch.Pool {
	if c.Recognition.Workers <= 0 {
		return nil
	}
	return dispatch.NewPool(c.Recognition.Workers, c.Recognition.Workers*4, logger)
}

// NewImporter returns an importer for still images and PDFs.
func (c *Config) NewImporter(client validation.Client, logger *slog.Logger) *imports.Importer {
	return &imports.Importer{
		Validator:      client,
		Options:        c.ToValidationOptions(),
		Extractor:      extract.New(extract.Options{Bypass: c.Recognition.Bypass}),
		Constraints:    utils.DefaultImageConstraints(),
		MaxConcurrency: c.Validation.MaxConcurrency,
		Logger:         logger,
	}
}
