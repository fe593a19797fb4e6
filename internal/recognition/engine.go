package recognition

import (
	"context"
	"fmt"
	"image"
	"net/http"
	"strings"
	"time"
)

// Hint carries optional recognition hints to an engine.
type Hint struct {
	// Languages lists engine language codes to recognize, in priority order.
	Languages []string
	// Region restricts recognition to a sub-rectangle; empty means the whole image.
	Region image.Rectangle
}

// Engine is a stateful text recognition engine.
type Engine interface {
	Name() string
	// Open constructs the underlying engine. It is called once per lifecycle.
	Open(ctx context.Context) error
	// Recognize returns the text found in img.
	Recognize(ctx context.Context, img image.Image, hint Hint) (string, error)
	Close() error
}

// Installer is implemented by engines that need a downloadable language pack.
type Installer interface {
	Installed(ctx context.Context) (bool, error)
	Install(ctx context.Context) error
}

// Engine kinds accepted by NewEngine.
const (
	EngineTesseract = "tesseract"
	EngineRemote    = "remote"
)

// EngineConfig selects and configures an engine.
type EngineConfig struct {
	Kind string

	// Language is the tesseract language code ("eng", "deu", "jpn", ...).
	Language string

	// TessdataDir holds <lang>.traineddata files; empty uses the engine default.
	TessdataDir string
	// TessdataURL is the base URL language packs are downloaded from.
	TessdataURL string

	// RemoteURL is the base URL of an OCR server speaking the Remote protocol.
	RemoteURL string

	Timeout time.Duration
}

// DefaultEngineConfig returns the default engine configuration.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Kind:        EngineTesseract,
		Language:    "eng",
		TessdataURL: DefaultTessdataURL,
		Timeout:     30 * time.Second,
	}
}

// NewEngine builds the engine selected by cfg.Kind.
func NewEngine(cfg EngineConfig) (Engine, error) {
	client := &http.Client{Timeout: cfg.Timeout}
	switch strings.ToLower(strings.TrimSpace(cfg.Kind)) {
	case "", EngineTesseract:
		var pack *LanguagePack
		if cfg.TessdataDir != "" {
			pack = &LanguagePack{
				Dir:      cfg.TessdataDir,
				Language: cfg.Language,
				BaseURL:  cfg.TessdataURL,
				Client:   client,
			}
		}
		return NewTesseract(cfg.Language, pack)
	case EngineRemote:
		if cfg.RemoteURL == "" {
			return nil, fmt.Errorf("recognition: remote engine requires a URL")
		}
		return &Remote{BaseURL: cfg.RemoteURL, Client: client}, nil
	default:
		return nil, fmt.Errorf("recognition: unknown engine %q", cfg.Kind)
	}
}
