package config

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/wordscan/internal/address"
	"github.com/MeKo-Tech/wordscan/internal/recognition"
	"github.com/MeKo-Tech/wordscan/internal/scanner"
	"github.com/MeKo-Tech/wordscan/internal/validation"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, recognition.EngineTesseract, cfg.Recognition.Engine)
	assert.Equal(t, "eng", cfg.Recognition.Language)
	assert.Equal(t, 250, cfg.Recognition.ThrottleMS)
	assert.Equal(t, validation.DefaultBaseURL, cfg.Validation.BaseURL)
	assert.Equal(t, scanner.DefaultMaxConcurrency, cfg.Validation.MaxConcurrency)
	assert.Equal(t, "live", cfg.Scan.Mode)
	assert.Equal(t, 8080, cfg.Server.Port)

	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	lat, lng, bad := 51.5, -0.19, 123.0

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"log level", func(c *Config) { c.LogLevel = "trace" }, "invalid log level"},
		{"output format", func(c *Config) { c.Output.Format = "csv" }, "invalid output format"},
		{"engine", func(c *Config) { c.Recognition.Engine = "onnx" }, "invalid recognition engine"},
		{"remote without url", func(c *Config) { c.Recognition.Engine = "remote" }, "remote_url"},
		{"remote with url", func(c *Config) {
			c.Recognition.Engine = "Remote"
			c.Recognition.RemoteURL = "http://ocr:8080"
		}, ""},
		{"negative throttle", func(c *Config) { c.Recognition.ThrottleMS = -1 }, "throttle"},
		{"zero throttle", func(c *Config) { c.Recognition.ThrottleMS = 0 }, ""},
		{"language", func(c *Config) { c.Validation.Language = "not a tag!" }, "validation language"},
		{"language ok", func(c *Config) { c.Validation.Language = "ja" }, ""},
		{"country length", func(c *Config) { c.Validation.ClipToCountries = []string{"GBR"} }, "two-letter"},
		{"country unknown", func(c *Config) { c.Validation.ClipToCountries = []string{"AB"} }, "invalid country"},
		{"countries ok", func(c *Config) { c.Validation.ClipToCountries = []string{"gb", "FR"} }, ""},
		{"focus half set", func(c *Config) { c.Validation.FocusLat = &lat }, "set together"},
		{"focus out of range", func(c *Config) {
			c.Validation.FocusLat = &bad
			c.Validation.FocusLng = &lng
		}, "latitude"},
		{"focus ok", func(c *Config) {
			c.Validation.FocusLat = &lat
			c.Validation.FocusLng = &lng
		}, ""},
		{"n results", func(c *Config) { c.Validation.NResults = -2 }, "n_results"},
		{"cache size", func(c *Config) { c.Validation.CacheSize = -1 }, "cache size"},
		{"concurrency", func(c *Config) { c.Validation.MaxConcurrency = 0 }, "max concurrency"},
		{"mode", func(c *Config) { c.Scan.Mode = "burst" }, "invalid scan mode"},
		{"crop without viewport", func(c *Config) { c.Frames.CropWidth = 10 }, "viewport"},
		{"negative crop", func(c *Config) { c.Frames.CropHeight = -5 }, "negative"},
		{"port", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"sessions", func(c *Config) { c.Server.Sessions = 0 }, "invalid server sessions"},
		{"rate limit", func(c *Config) { c.Server.RateLimit.RequestsPerHour = -1 }, "invalid rate limit"},
		{"upload", func(c *Config) { c.Server.MaxUploadMB = 0 }, "max upload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Conversions(t *testing.T) {
	lat, lng := 35.68, 139.76
	cfg := DefaultConfig()
	cfg.Recognition.Engine = "remote"
	cfg.Recognition.RemoteURL = "http://ocr:8080"
	cfg.Recognition.TimeoutSec = 5
	cfg.Recognition.ThrottleMS = 100
	cfg.Validation.Language = "ja"
	cfg.Validation.ClipToCountries = []string{"jp"}
	cfg.Validation.FocusLat = &lat
	cfg.Validation.FocusLng = &lng
	cfg.Frames = FramesConfig{CropX: 10, CropY: 20, CropWidth: 100, CropHeight: 50, ViewportWidth: 400, ViewportHeight: 300}
	cfg.Scan.Mode = "single"

	ec := cfg.ToEngineConfig()
	assert.Equal(t, "remote", ec.Kind)
	assert.Equal(t, "http://ocr:8080", ec.RemoteURL)
	assert.Equal(t, 5*time.Second, ec.Timeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Throttle())

	vo := cfg.ToValidationOptions()
	assert.Equal(t, "ja", vo.Language)
	assert.Equal(t, []string{"JP"}, vo.ClipToCountries)
	require.NotNil(t, vo.Focus)
	assert.InDelta(t, 139.76, vo.Focus.Lng, 1e-9)
	assert.Equal(t, 3, vo.NResults)

	fc := cfg.ToFramesConfig()
	assert.Equal(t, image.Rect(10, 20, 110, 70), fc.Crop)
	assert.Equal(t, image.Pt(400, 300), fc.Viewport)

	assert.Equal(t, scanner.ModeSingleFrame, cfg.ScanMode())
}

func TestConfig_NewRecognitionPool(t *testing.T) {
	cfg := DefaultConfig()
	assert.Nil(t, cfg.NewRecognitionPool(nil))

	cfg.Recognition.Workers = 2
	pool := cfg.NewRecognitionPool(nil)
	require.NotNil(t, pool)
	done := make(chan struct{})
	pool.Submit(func() { close(done) })
	<-done
	pool.Close()

	cfg.Recognition.Workers = -1
	assert.ErrorContains(t, cfg.Validate(), "recognition workers")
}

func TestConfig_NewValidationClient(t *testing.T) {
	cfg := DefaultConfig()
	_, err := cfg.NewValidationClient()
	require.ErrorIs(t, err, ErrNoValidator)

	cfg.Validation.APIKey = "key"
	client, err := cfg.NewValidationClient()
	require.NoError(t, err)
	assert.IsType(t, &validation.Cached{}, client)

	cfg.Validation.CacheSize = 0
	client, err = cfg.NewValidationClient()
	require.NoError(t, err)
	assert.IsType(t, &validation.HTTPClient{}, client)

	cfg.Validation.Dictionary = "/does/not/exist.yaml"
	_, err = cfg.NewValidationClient()
	assert.Error(t, err)
}

func TestConfig_SessionConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scan.Mode = "single"
	cfg.Recognition.Bypass = true
	cfg.Validation.MaxConcurrency = 2
	client := validation.ClientFunc(func(context.Context, string, validation.Options) ([]address.Confirmed, error) {
		return nil, nil
	})

	sc := cfg.SessionConfig(client, nil)
	assert.Equal(t, scanner.ModeSingleFrame, sc.Mode)
	assert.True(t, sc.Bypass)
	assert.Equal(t, 2, sc.MaxConcurrency)
	assert.Equal(t, 250*time.Millisecond, sc.Throttle)
	require.NotNil(t, sc.NewEngine)

	im := cfg.NewImporter(client, nil)
	assert.Equal(t, 2, im.MaxConcurrency)
	assert.True(t, im.Extractor.Bypass())
	assert.Equal(t, 2560, im.Constraints.MaxWidth)
}
