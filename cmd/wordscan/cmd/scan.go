package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/wordscan/internal/imports"
	"github.com/MeKo-Tech/wordscan/internal/pdf"
	"github.com/MeKo-Tech/wordscan/internal/scanner"
	"github.com/MeKo-Tech/wordscan/internal/session"
	"github.com/MeKo-Tech/wordscan/internal/utils"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// scanCmd scans imported images and PDFs.
var scanCmd = &cobra.Command{
	Use:   "scan <file>...",
	Short: "Scan images and PDFs for three-word addresses",
	Long: `Scan photos, screenshots and PDF files for three-word addresses.

Images are recognized as a single still. PDFs are searched through their
text layer first, then every embedded image of the selected pages is
recognized. Every candidate is confirmed by the validation service, or by
the address book given with --dictionary.

Directories are searched for supported files. Supported image formats:
` + strings.Join(utils.SupportedImageExtensions, ", ") + `

Examples:
  wordscan scan door.jpg
  wordscan scan letter.pdf --pdf-pages 1,3-4
  wordscan scan photos/ --recursive --workers 4
  wordscan scan *.png --format json --output found.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := GetConfig()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	var discover imports.DiscoverOptions
	discover.Recursive, _ = flags.GetBool("recursive")
	discover.Include, _ = flags.GetStringSlice("include")
	discover.Exclude, _ = flags.GetStringSlice("exclude")
	paths, err := imports.Discover(args, discover)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return errors.New("no supported files found")
	}

	pages, _ := flags.GetString("pdf-pages")
	password, _ := flags.GetString("pdf-password")
	noText, _ := flags.GetBool("no-text-layer")
	if _, err := pdf.ParsePageRange(pages); err != nil {
		return fmt.Errorf("invalid --pdf-pages: %w", err)
	}
	workers, _ := flags.GetInt("workers")
	if workers < 1 {
		return fmt.Errorf("invalid --workers: %d (must be positive)", workers)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := cfg.NewValidationClient()
	if err != nil {
		return err
	}
	logger := slog.Default()
	sessCfg := cfg.SessionConfig(client, logger)
	if pool := cfg.NewRecognitionPool(logger); pool != nil {
		defer pool.Close()
		sessCfg.Executor = pool
	}
	factory, err := session.NewFactory(sessCfg)
	if err != nil {
		return err
	}
	scanners := make([]imports.StillScanner, 0, min(workers, len(paths)))
	for range cap(scanners) {
		sess, err := factory.New(ctx, scanner.ModeSingleFrame)
		if err != nil {
			return fmt.Errorf("failed to start scanner: %w", err)
		}
		defer sess.Close()
		scanners = append(scanners, sess)
	}

	opts := imports.PDFOptions{
		Pages:         pages,
		Credentials:   pdf.PasswordCredentials{UserPassword: password, OwnerPassword: password},
		SkipTextLayer: noText,
	}
	results, failed, err := scanFiles(ctx, cfg.NewImporter(client, logger), scanners, paths, opts)
	if err != nil {
		return err
	}

	out, closeOut, err := outputWriter(cmd, cfg.Output.File)
	if err != nil {
		return err
	}
	defer closeOut()
	if err := writeResults(out, cfg.Output.Format, results); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be scanned", failed, len(paths))
	}
	return nil
}

// scanFiles imports paths on one worker per scanner and returns the results
// in path order. A file that fails is reported as a result with an error and
// does not stop the others; only cancellation aborts the run.
func scanFiles(ctx context.Context, im *imports.Importer, scanners []imports.StillScanner, paths []string, opts imports.PDFOptions) ([]imports.Result, int, error) {
	perFile := make([][]imports.Result, len(paths))
	var failed atomic.Int64
	logger := im.Logger
	if logger == nil {
		logger = slog.Default()
	}

	jobs := make(chan int)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for i := range paths {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for _, s := range scanners {
		g.Go(func() error {
			for i := range jobs {
				res, err := im.File(gctx, s, paths[i], opts)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					failed.Add(1)
					logger.Error("scan failed", "file", paths[i], "error", err)
					res = []imports.Result{{Source: paths[i], Phase: scanner.PhaseNotFound, Error: err.Error()}}
				}
				perFile[i] = res
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return slices.Concat(perFile...), int(failed.Load()), nil
}

// outputWriter returns the file named by path, or stdout when path is empty.
func outputWriter(cmd *cobra.Command, path string) (io.Writer, func(), error) {
	if path == "" {
		return cmd.OutOrStdout(), func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// writeResults renders results as text, JSON or YAML.
func writeResults(w io.Writer, format string, results []imports.Result) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(results); err != nil {
			return err
		}
		return enc.Close()
	case formatText, "":
		_, err := io.WriteString(w, imports.FormatText(results))
		return err
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringP("format", "f", formatText, "output format (text, json, yaml)")
	scanCmd.Flags().StringP("output", "o", "", "write results to file instead of stdout")
	scanCmd.Flags().String("pdf-pages", "", "PDF page range, e.g. 1,3-5 (default all pages)")
	scanCmd.Flags().String("pdf-password", "", "password for encrypted PDFs")
	scanCmd.Flags().Bool("no-text-layer", false, "recognize PDF images only, ignoring embedded text")
	scanCmd.Flags().BoolP("recursive", "r", false, "search directories recursively")
	scanCmd.Flags().StringSlice("include", nil, "file name patterns to include from directories, e.g. *.png")
	scanCmd.Flags().StringSlice("exclude", nil, "file name patterns to exclude")
	scanCmd.Flags().IntP("workers", "w", 1, "number of files scanned in parallel")
	addRecognitionFlags(scanCmd)

	_ = viper.BindPFlag("output.format", scanCmd.Flags().Lookup("format"))
	_ = viper.BindPFlag("output.file", scanCmd.Flags().Lookup("output"))
}

// addRecognitionFlags registers the recognition and validation flags shared
// by scan and serve.
func addRecognitionFlags(c *cobra.Command) {
	c.Flags().String("engine", "", "recognition engine (tesseract, remote)")
	c.Flags().String("ocr-language", "", "recognition language, e.g. eng or deu")
	c.Flags().String("remote-url", "", "URL of the remote OCR server")
	c.Flags().Bool("bypass", false, "validate every recognized line instead of extracting addresses")
	c.Flags().String("language", "", "address language passed to validation, e.g. en")
	c.Flags().StringSlice("country", nil, "restrict validation to these ISO 3166-1 alpha-2 countries")
	c.Flags().String("dictionary", "", "YAML address book used instead of the validation service")
	c.Flags().Int("recognition-workers", 0, "bound concurrent recognitions across sessions (0 = unbounded)")

	c.PreRun = func(cmd *cobra.Command, _ []string) {
		bind := map[string]string{
			"recognition.engine":           "engine",
			"recognition.language":         "ocr-language",
			"recognition.remote_url":       "remote-url",
			"recognition.bypass":           "bypass",
			"validation.language":          "language",
			"validation.clip_to_countries": "country",
			"validation.dictionary":        "dictionary",
			"recognition.workers":          "recognition-workers",
		}
		for key, name := range bind {
			_ = viper.BindPFlag(key, cmd.Flags().Lookup(name))
		}
	}
}
