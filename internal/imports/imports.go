// Package imports scans documents that do not come from a camera: photos,
// screenshots and PDF files. Images go through a single-frame scan; the text
// layer of PDF pages is searched for addresses directly.
package imports

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"strings"

	"github.com/MeKo-Tech/wordscan/internal/address"
	"github.com/MeKo-Tech/wordscan/internal/extract"
	"github.com/MeKo-Tech/wordscan/internal/pdf"
	"github.com/MeKo-Tech/wordscan/internal/scanner"
	"github.com/MeKo-Tech/wordscan/internal/utils"
	"github.com/MeKo-Tech/wordscan/internal/validation"
)

// Methods reported in Result.Method.
const (
	MethodRecognition = "recognition"
	MethodTextLayer   = "text_layer"
)

// StillScanner scans one still image and waits for the settled state.
type StillScanner interface {
	ScanStill(ctx context.Context, img image.Image, fromImport bool) (scanner.State, error)
}

// Result is the outcome for one imported image or PDF page.
type Result struct {
	Source string              `json:"source" yaml:"source"`
	Page   int                 `json:"page,omitempty" yaml:"page,omitempty"`
	Image  int                 `json:"image,omitempty" yaml:"image,omitempty"`
	Method string              `json:"method" yaml:"method"`
	Phase  scanner.Phase       `json:"phase" yaml:"phase"`
	Found  []address.Confirmed `json:"found" yaml:"found"`
	Error  string              `json:"error,omitempty" yaml:"error,omitempty"`
}

// PDFOptions selects pages and credentials for PDF imports.
type PDFOptions struct {
	Pages       string
	Credentials pdf.PasswordCredentials
	// SkipTextLayer disables direct extraction from the PDF text layer.
	SkipTextLayer bool
}

// Importer holds what imports need besides the scanning session.
type Importer struct {
	Validator      validation.Client
	Options        validation.Options
	Extractor      *extract.Extractor
	Constraints    utils.ImageConstraints
	MaxConcurrency int
	Logger         *slog.Logger
}

func (im *Importer) logger() *slog.Logger {
	if im.Logger != nil {
		return im.Logger
	}
	return slog.Default()
}

// File imports path, dispatching on its extension.
func (im *Importer) File(ctx context.Context, s StillScanner, path string, opts PDFOptions) ([]Result, error) {
	if utils.IsPDF(path) {
		return im.PDF(ctx, s, path, opts)
	}
	img, _, err := utils.LoadImage(path)
	if err != nil {
		return nil, err
	}
	res, err := im.Image(ctx, s, path, img)
	if err != nil {
		return nil, err
	}
	return []Result{res}, nil
}

// Image scans a decoded still. Scan-level failures such as an unreadable image
// are reported in Result.Error; only cancellation and session errors are
// returned.
func (im *Importer) Image(ctx context.Context, s StillScanner, source string, img image.Image) (Result, error) {
	res := Result{Source: source, Method: MethodRecognition}

	prepared, err := im.Prepare(img)
	if err != nil {
		res.Phase = scanner.PhaseNotFound
		res.Error = err.Error()
		return res, nil
	}

	st, err := s.ScanStill(ctx, prepared, true)
	if err != nil {
		return res, err
	}
	res.Phase = st.Phase
	res.Found = st.Found
	res.Error = st.Error
	im.logger().Info("image imported", "source", source, "phase", st.Phase.String(), "found", len(st.Found))
	return res, nil
}

// Prepare scales and flattens an imported still for recognition.
func (im *Importer) Prepare(img image.Image) (image.Image, error) {
	c := im.Constraints
	if c == (utils.ImageConstraints{}) {
		c = utils.DefaultImageConstraints()
	}
	return utils.PrepareImport(img, c)
}

// PDF imports the selected pages of a PDF: first the text layer of every page
// that has one, then every embedded image.
func (im *Importer) PDF(ctx context.Context, s StillScanner, path string, opts PDFOptions) ([]Result, error) {
	plain, cleanup, err := pdf.Decrypt(path, opts.Credentials)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	var results []Result
	if !opts.SkipTextLayer {
		pages, err := pdf.ExtractText(plain, opts.Pages)
		if err != nil {
			im.logger().Warn("pdf text layer unavailable", "source", path, "error", err)
		}
		for _, p := range pages {
			if strings.TrimSpace(p.Text) == "" {
				continue
			}
			res := im.Text(ctx, path, p.Text)
			res.Page = p.Page
			results = append(results, res)
		}
	}

	images, err := pdf.ExtractImages(plain, opts.Pages)
	if err != nil {
		if len(results) > 0 {
			im.logger().Warn("pdf images unavailable", "source", path, "error", err)
			return results, nil
		}
		return nil, err
	}
	for _, pi := range pdf.OrderedImages(images) {
		res, err := im.Image(ctx, s, path, pi.Image)
		if err != nil {
			return results, err
		}
		res.Page = pi.Page
		res.Image = pi.Index
		results = append(results, res)
	}

	if len(results) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNothingToScan)
	}
	return results, nil
}

// ErrNothingToScan is returned for PDFs with neither text nor images.
var ErrNothingToScan = errors.New("document has no text layer and no images")

// Text searches already-digital text for addresses and validates them.
func (im *Importer) Text(ctx context.Context, source, text string) Result {
	res := Result{Source: source, Method: MethodTextLayer, Phase: scanner.PhaseNotFound}

	ex := im.Extractor
	if ex == nil {
		ex = extract.New(extract.Options{})
	}
	cands := extract.Dedupe(ex.Candidates(text))
	if len(cands) == 0 {
		return res
	}

	confirmed := validation.ValidateAll(ctx, im.Validator, cands, im.Options, im.MaxConcurrency, im.logger())
	list := address.NewList(confirmed...)
	if !list.Empty() {
		res.Phase = scanner.PhaseFound
		res.Found = list.Items()
	}
	if err := ctx.Err(); err != nil {
		res.Error = err.Error()
	}
	return res
}

// FormatText renders results as one line per confirmed address, grouped by
// page for PDFs.
func FormatText(results []Result) string {
	var b strings.Builder
	for _, res := range results {
		label := res.Source
		if res.Page > 0 {
			label = fmt.Sprintf("%s page %d", label, res.Page)
		}
		if res.Image > 0 {
			label = fmt.Sprintf("%s image %d", label, res.Image)
		}
		fmt.Fprintf(&b, "%s [%s]: %s\n", label, res.Method, res.Phase)
		for _, addr := range res.Found {
			fmt.Fprintf(&b, "  %s", addr)
			if addr.NearestPlace != "" {
				fmt.Fprintf(&b, " near %s", addr.NearestPlace)
			}
			if addr.Country != "" {
				fmt.Fprintf(&b, " (%s)", addr.Country)
			}
			b.WriteString("\n")
		}
		if res.Error != "" {
			fmt.Fprintf(&b, "  error: %s\n", res.Error)
		}
	}
	return b.String()
}
