package support

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/cucumber/godog"

	"github.com/MeKo-Tech/wordscan/internal/address"
	"github.com/MeKo-Tech/wordscan/internal/scanner"
)

// splitList parses a comma-separated step argument.
func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func words(list []address.Confirmed) []string {
	out := make([]string, 0, len(list))
	for _, c := range list {
		out = append(out, c.Words)
	}
	return out
}

func (sc *ScanContext) theValidationServiceConfirms(list string) error {
	for _, cand := range splitList(list) {
		sc.Validator.Confirm(cand, "en")
	}
	return nil
}

func (sc *ScanContext) theValidationServiceOnlySuggests(suggestion, cand string) error {
	sc.Validator.Answer(cand, address.Confirmed{Words: suggestion, Language: "en"})
	return nil
}

func (sc *ScanContext) theRecognizerReports(list string) error {
	sc.automatic = true
	sc.recognized = splitList(list)
	return nil
}

func (sc *ScanContext) theRecognizerReportsNothing() error {
	sc.automatic = true
	sc.recognized = nil
	return nil
}

func (sc *ScanContext) theRecognizerHoldsScans() error {
	sc.automatic = false
	return nil
}

func (sc *ScanContext) theScannerIsStartedIn(mode string) error {
	m, err := scanner.ParseMode(mode)
	if err != nil {
		return err
	}
	return sc.start(m)
}

func (sc *ScanContext) theScannerIsReset() error {
	if err := sc.requireStarted(); err != nil {
		return err
	}
	sc.Orchestrator.Reset()
	return nil
}

func (sc *ScanContext) theModeIsToggled() error {
	if err := sc.requireStarted(); err != nil {
		return err
	}
	sc.Orchestrator.ToggleLiveMode()
	return nil
}

func (sc *ScanContext) thePhaseShouldBe(want string) error {
	if err := sc.requireStarted(); err != nil {
		return err
	}
	if got := sc.Orchestrator.State().Phase.String(); got != want {
		return fmt.Errorf("expected phase %q, got %q", want, got)
	}
	return nil
}

func (sc *ScanContext) theModeShouldBe(want string) error {
	if err := sc.requireStarted(); err != nil {
		return err
	}
	if got := sc.Orchestrator.State().Mode.String(); got != want {
		return fmt.Errorf("expected mode %q, got %q", want, got)
	}
	return nil
}

func (sc *ScanContext) theFoundAddressesShouldBe(list string) error {
	if err := sc.requireStarted(); err != nil {
		return err
	}
	got := words(sc.Orchestrator.State().Found)
	if want := splitList(list); !slices.Equal(got, want) {
		return fmt.Errorf("expected found addresses %v, got %v", want, got)
	}
	return nil
}

func (sc *ScanContext) noAddressesShouldBeFound() error {
	if err := sc.requireStarted(); err != nil {
		return err
	}
	if found := sc.Orchestrator.State().Found; len(found) > 0 {
		return fmt.Errorf("expected no addresses, got %v", words(found))
	}
	return nil
}

func (sc *ScanContext) theValidationServiceShouldHaveBeenCalled(n int) error {
	if calls := sc.Validator.Calls(); len(calls) != n {
		return fmt.Errorf("expected %d validation calls, got %d: %v", n, len(calls), calls)
	}
	return nil
}

func (sc *ScanContext) theValidationServiceShouldNotHaveBeenCalled() error {
	return sc.theValidationServiceShouldHaveBeenCalled(0)
}

func (sc *ScanContext) aStillShouldBeUnderReview() error {
	if err := sc.requireStarted(); err != nil {
		return err
	}
	if !sc.Orchestrator.State().HasCapturedImage() {
		return errors.New("expected a captured still")
	}
	return nil
}

func (sc *ScanContext) noStillShouldBeUnderReview() error {
	if err := sc.requireStarted(); err != nil {
		return err
	}
	if sc.Orchestrator.State().HasCapturedImage() {
		return errors.New("expected no captured still")
	}
	return nil
}

// RegisterScannerSteps registers steps driving the orchestrator.
func (sc *ScanContext) RegisterScannerSteps(ctx *godog.ScenarioContext) {
	ctx.Step(`^the validation service confirms "([^"]*)"$`, sc.theValidationServiceConfirms)
	ctx.Step(`^the validation service only suggests "([^"]*)" for "([^"]*)"$`, sc.theValidationServiceOnlySuggests)
	ctx.Step(`^the recognizer reports "([^"]*)" for every frame$`, sc.theRecognizerReports)
	ctx.Step(`^the recognizer reports nothing$`, sc.theRecognizerReportsNothing)
	ctx.Step(`^the recognizer holds every scan until answered$`, sc.theRecognizerHoldsScans)
	ctx.Step(`^the scanner is started in (live|single_frame) mode$`, sc.theScannerIsStartedIn)
	ctx.Step(`^the scanner is reset$`, sc.theScannerIsReset)
	ctx.Step(`^the mode is toggled$`, sc.theModeIsToggled)

	ctx.Step(`^the phase should be "([^"]*)"$`, sc.thePhaseShouldBe)
	ctx.Step(`^the mode should be "([^"]*)"$`, sc.theModeShouldBe)
	ctx.Step(`^the found addresses should be "([^"]*)"$`, sc.theFoundAddressesShouldBe)
	ctx.Step(`^no addresses should be found$`, sc.noAddressesShouldBeFound)
	ctx.Step(`^the validation service should have been called (\d+) times?$`, sc.theValidationServiceShouldHaveBeenCalled)
	ctx.Step(`^the validation service should not have been called$`, sc.theValidationServiceShouldNotHaveBeenCalled)
	ctx.Step(`^a still should be under review$`, sc.aStillShouldBeUnderReview)
	ctx.Step(`^no still should be under review$`, sc.noStillShouldBeUnderReview)
}
