package recognition

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// DefaultTessdataURL serves the fast tesseract language models.
const DefaultTessdataURL = "https://github.com/tesseract-ocr/tessdata_fast/raw/main"

// LanguagePack manages a downloadable tesseract language model on disk.
type LanguagePack struct {
	Dir      string
	Language string
	BaseURL  string
	Client   *http.Client
	Logger   *slog.Logger
}

// Paths returns the traineddata file for every language in the pack.
func (p *LanguagePack) Paths() []string {
	langs := strings.FieldsFunc(p.Language, func(r rune) bool { return r == '+' || r == ',' })
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	out := make([]string, 0, len(langs))
	for _, l := range langs {
		out = append(out, filepath.Join(p.Dir, strings.TrimSpace(l)+".traineddata"))
	}
	return out
}

// Installed reports whether every traineddata file exists and is non-empty.
func (p *LanguagePack) Installed(_ context.Context) (bool, error) {
	for _, path := range p.Paths() {
		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if info.IsDir() || info.Size() == 0 {
			return false, nil
		}
	}
	return true, nil
}

// Install downloads the missing traineddata files. Each file is written to a
// temporary name and renamed into place so a failed download never leaves a
// truncated model behind.
func (p *LanguagePack) Install(ctx context.Context) error {
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return fmt.Errorf("create tessdata dir: %w", err)
	}
	for _, path := range p.Paths() {
		if info, err := os.Stat(path); err == nil && info.Size() > 0 {
			continue
		}
		if err := p.download(ctx, path); err != nil {
			return err
		}
	}
	return nil
}

func (p *LanguagePack) download(ctx context.Context, dest string) error {
	base := p.BaseURL
	if base == "" {
		base = DefaultTessdataURL
	}
	url := strings.TrimRight(base, "/") + "/" + filepath.Base(dest)

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build download request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: unexpected status %s", url, resp.Status)
	}

	tmp, err := os.CreateTemp(p.Dir, filepath.Base(dest)+".*.part")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	n, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	if n == 0 {
		return fmt.Errorf("download %s: empty body", url)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return fmt.Errorf("install %s: %w", dest, err)
	}
	logger.Info("installed language pack", "path", dest, "bytes", n)
	return nil
}
