package support

import (
	"context"
	"fmt"
	"image/color"
	"slices"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/wordscan/internal/imports"
	"github.com/MeKo-Tech/wordscan/internal/testutil"
)

const importTimeout = 5 * time.Second

func (sc *ScanContext) importer() *imports.Importer {
	return &imports.Importer{Validator: sc.Validator}
}

func (sc *ScanContext) theRecognitionEngineReads(text string) error {
	sc.EngineText = strings.ReplaceAll(text, `\n`, "\n")
	return nil
}

func (sc *ScanContext) aPhotoIsImported(width, height int) error {
	if err := sc.openSession(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), importTimeout)
	defer cancel()

	img := testutil.CreateTestImage(width, height, color.White)
	res, err := sc.importer().Image(ctx, sc.Session, "photo.png", img)
	sc.LastError = err
	sc.LastResults = []imports.Result{res}
	return nil
}

func (sc *ScanContext) theTextIsImported(text string) error {
	ctx, cancel := context.WithTimeout(context.Background(), importTimeout)
	defer cancel()
	sc.LastResults = []imports.Result{sc.importer().Text(ctx, "notes.txt", text)}
	sc.LastError = nil
	return nil
}

func (sc *ScanContext) lastResult() (imports.Result, error) {
	if sc.LastError != nil {
		return imports.Result{}, fmt.Errorf("import failed: %w", sc.LastError)
	}
	if len(sc.LastResults) == 0 {
		return imports.Result{}, fmt.Errorf("nothing was imported")
	}
	return sc.LastResults[len(sc.LastResults)-1], nil
}

func (sc *ScanContext) theImportShouldReport(phase string) error {
	res, err := sc.lastResult()
	if err != nil {
		return err
	}
	if got := res.Phase.String(); got != phase {
		return fmt.Errorf("expected import phase %q, got %q (error %q)", phase, got, res.Error)
	}
	return nil
}

func (sc *ScanContext) theImportShouldFind(list string) error {
	res, err := sc.lastResult()
	if err != nil {
		return err
	}
	got := words(res.Found)
	if want := splitList(list); !slices.Equal(got, want) {
		return fmt.Errorf("expected imported addresses %v, got %v", want, got)
	}
	return nil
}

func (sc *ScanContext) theImportErrorShouldMention(text string) error {
	res, err := sc.lastResult()
	if err != nil {
		return err
	}
	if !strings.Contains(res.Error, text) {
		return fmt.Errorf("expected import error to mention %q, got %q", text, res.Error)
	}
	return nil
}

func (sc *ScanContext) theImportMethodShouldBe(method string) error {
	res, err := sc.lastResult()
	if err != nil {
		return err
	}
	if res.Method != method {
		return fmt.Errorf("expected method %q, got %q", method, res.Method)
	}
	return nil
}

// RegisterImportSteps registers steps importing stills and text.
func (sc *ScanContext) RegisterImportSteps(ctx *godog.ScenarioContext) {
	ctx.Step(`^the recognition engine reads "([^"]*)"$`, sc.theRecognitionEngineReads)
	ctx.Step(`^a (\d+)x(\d+) photo is imported$`, sc.aPhotoIsImported)
	ctx.Step(`^the text "([^"]*)" is imported$`, sc.theTextIsImported)

	ctx.Step(`^the import should report "([^"]*)"$`, sc.theImportShouldReport)
	ctx.Step(`^the import should find "([^"]*)"$`, sc.theImportShouldFind)
	ctx.Step(`^the import error should mention "([^"]*)"$`, sc.theImportErrorShouldMention)
	ctx.Step(`^the import method should be "([^"]*)"$`, sc.theImportMethodShouldBe)
}
