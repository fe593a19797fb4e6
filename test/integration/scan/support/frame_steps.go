package support

import (
	"errors"
	"fmt"

	"github.com/cucumber/godog"
)

func (sc *ScanContext) aCameraFrameArrives() error {
	if err := sc.requireStarted(); err != nil {
		return err
	}
	sc.Pipeline.Analyze(sc.frame())
	return nil
}

func (sc *ScanContext) moreCameraFramesArrive(n int) error {
	for range n {
		if err := sc.aCameraFrameArrives(); err != nil {
			return err
		}
	}
	return nil
}

func (sc *ScanContext) theNextFrameIsCaptured() error {
	if err := sc.requireStarted(); err != nil {
		return err
	}
	if err := sc.Orchestrator.CaptureNextFrame(); err != nil {
		return err
	}
	return sc.aCameraFrameArrives()
}

func (sc *ScanContext) capturingShouldBeRefused() error {
	if err := sc.requireStarted(); err != nil {
		return err
	}
	if err := sc.Orchestrator.CaptureNextFrame(); err == nil {
		return errors.New("expected capture to be refused")
	}
	return nil
}

func (sc *ScanContext) theCapturedStillIsDiscarded() error {
	if err := sc.requireStarted(); err != nil {
		return err
	}
	sc.Orchestrator.OnBackPressed()
	return nil
}

func (sc *ScanContext) thePendingScanDetects(list string) error {
	if sc.Recognizer == nil {
		return errors.New("scanner has not been started")
	}
	scan, ok := sc.Recognizer.Next()
	if !ok {
		return errors.New("no scan is pending")
	}
	scan.Detect(splitList(list)...)
	return nil
}

func (sc *ScanContext) thePendingScanDetectsNothing() error {
	return sc.thePendingScanDetects("")
}

func (sc *ScanContext) scansShouldBePending(n int) error {
	if got := sc.Recognizer.Pending(); got != n {
		return fmt.Errorf("expected %d pending scans, got %d", n, got)
	}
	return nil
}

func (sc *ScanContext) theRecognizerShouldHaveScanned(n int) error {
	if got := sc.Recognizer.Scans(); got != n {
		return fmt.Errorf("expected %d scans, got %d", n, got)
	}
	return nil
}

func (sc *ScanContext) framesShouldHaveBeen(n int, outcome string) error {
	st := sc.Pipeline.Stats()
	var got int64
	switch outcome {
	case "submitted":
		got = st.Submitted
	case "dropped":
		got = st.Dropped
	case "released":
		got = st.Released
	}
	if got != int64(n) {
		return fmt.Errorf("expected %d frames %s, got %d", n, outcome, got)
	}
	return nil
}

func (sc *ScanContext) everyFrameShouldHaveBeenReleased() error {
	for i, f := range sc.Frames {
		if !f.Released() {
			return fmt.Errorf("frame %d was not released", i+1)
		}
	}
	return nil
}

func (sc *ScanContext) frameShouldBeHeld(n int) error {
	if n < 1 || n > len(sc.Frames) {
		return fmt.Errorf("no frame %d (have %d)", n, len(sc.Frames))
	}
	if sc.Frames[n-1].Released() {
		return fmt.Errorf("frame %d was released while still being processed", n)
	}
	return nil
}

// RegisterFrameSteps registers steps feeding camera frames.
func (sc *ScanContext) RegisterFrameSteps(ctx *godog.ScenarioContext) {
	ctx.Step(`^a camera frame arrives$`, sc.aCameraFrameArrives)
	ctx.Step(`^(\d+) more camera frames? arrives?$`, sc.moreCameraFramesArrive)
	ctx.Step(`^the next frame is captured$`, sc.theNextFrameIsCaptured)
	ctx.Step(`^capturing should be refused$`, sc.capturingShouldBeRefused)
	ctx.Step(`^the captured still is discarded$`, sc.theCapturedStillIsDiscarded)
	ctx.Step(`^the pending scan detects "([^"]*)"$`, sc.thePendingScanDetects)
	ctx.Step(`^the pending scan detects nothing$`, sc.thePendingScanDetectsNothing)

	ctx.Step(`^(\d+) scans? should be pending$`, sc.scansShouldBePending)
	ctx.Step(`^the recognizer should have scanned (\d+) frames?$`, sc.theRecognizerShouldHaveScanned)
	ctx.Step(`^(\d+) frames? should have been (submitted|dropped|released)$`, sc.framesShouldHaveBeen)
	ctx.Step(`^every camera frame should have been released$`, sc.everyFrameShouldHaveBeenReleased)
	ctx.Step(`^frame (\d+) should still be held$`, sc.frameShouldBeHeld)
}
