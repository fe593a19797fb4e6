//go:build tesseract

package recognition

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// Tesseract recognizes text with libtesseract through gosseract. A single
// client is reused across scans and guarded by a mutex, as the underlying
// API is not safe for concurrent use.
type Tesseract struct {
	languages []string
	pack      *LanguagePack

	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseract returns a tesseract engine for the given language. When pack
// is non-nil the engine reads traineddata from pack.Dir and installs it on
// demand.
func NewTesseract(language string, pack *LanguagePack) (Engine, error) {
	langs := splitLanguages(language)
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	return &Tesseract{languages: langs, pack: pack}, nil
}

func (t *Tesseract) Name() string { return EngineTesseract }

// Installed reports whether the language pack is present. Engines without a
// managed pack rely on the system tessdata and are always installed.
func (t *Tesseract) Installed(ctx context.Context) (bool, error) {
	if t.pack == nil {
		return true, nil
	}
	return t.pack.Installed(ctx)
}

// Install downloads the language pack.
func (t *Tesseract) Install(ctx context.Context) error {
	if t.pack == nil {
		return nil
	}
	return t.pack.Install(ctx)
}

func (t *Tesseract) Open(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	client := gosseract.NewClient()
	if t.pack != nil {
		if err := client.SetTessdataPrefix(t.pack.Dir); err != nil {
			_ = client.Close()
			return fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := client.SetLanguage(t.languages...); err != nil {
		_ = client.Close()
		return fmt.Errorf("set languages: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		_ = client.Close()
		return fmt.Errorf("set page segmentation mode: %w", err)
	}
	t.client = client
	return nil
}

func (t *Tesseract) Recognize(ctx context.Context, img image.Image, hint Hint) (string, error) {
	if !hint.Region.Empty() {
		img = imaging.Crop(img, hint.Region)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return "", errors.New("tesseract client not open")
	}
	if len(hint.Languages) > 0 {
		if err := t.client.SetLanguage(hint.Languages...); err != nil {
			return "", fmt.Errorf("set languages: %w", err)
		}
	}
	if err := t.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	text, err := t.client.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return text, nil
}

func (t *Tesseract) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil
	}
	err := t.client.Close()
	t.client = nil
	return err
}

func splitLanguages(s string) []string {
	var out []string
	for _, l := range strings.FieldsFunc(s, func(r rune) bool { return r == '+' || r == ',' }) {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}
