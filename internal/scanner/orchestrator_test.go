package scanner_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/wordscan/internal/address"
	"github.com/MeKo-Tech/wordscan/internal/dispatch"
	"github.com/MeKo-Tech/wordscan/internal/frames"
	"github.com/MeKo-Tech/wordscan/internal/recognition"
	"github.com/MeKo-Tech/wordscan/internal/scanner"
	"github.com/MeKo-Tech/wordscan/internal/testutil"
)

func still() image.Image { return testutil.CreateTestImage(16, 16, color.White) }

// released counts how many tickets were resolved.
type released struct{ n int }

func (r *released) ticket() *frames.Ticket { return frames.NewTicket(func() { r.n++ }) }

func newStarted(t *testing.T, rec *testutil.FakeRecognizer, val *testutil.FakeValidator, opts ...scanner.Option) *scanner.Orchestrator {
	t.Helper()
	opts = append([]scanner.Option{scanner.WithExecutor(dispatch.Inline{})}, opts...)
	o := scanner.New(rec, val, opts...)
	require.NoError(t, o.Start(context.Background()))
	return o
}

func words(list []address.Confirmed) []string {
	out := make([]string, 0, len(list))
	for _, c := range list {
		out = append(out, c.Words)
	}
	return out
}

func detects(cands ...string) func(image.Image) ([]string, error) {
	return func(image.Image) ([]string, error) { return cands, nil }
}

func TestScenarioA_LiveFrameFound(t *testing.T) {
	rec := &testutil.FakeRecognizer{Auto: detects("index.home.raft")}
	val := testutil.NewFakeValidator().Confirm("index.home.raft", "en")
	o := newStarted(t, rec, val)

	var rel released
	o.SubmitFrame(still(), rel.ticket())

	st := o.State()
	assert.Equal(t, scanner.PhaseFound, st.Phase)
	assert.Equal(t, []string{"index.home.raft"}, words(st.Found))
	assert.Equal(t, 1, rel.n, "frame released after validation")
	assert.NotEmpty(t, st.Cycle)
}

func TestScenarioB_SingleFrameNoCandidates(t *testing.T) {
	rec := &testutil.FakeRecognizer{Auto: detects()}
	val := testutil.NewFakeValidator()
	o := newStarted(t, rec, val)

	res, err := o.ScanImage(still(), true)
	require.NoError(t, err)

	st := <-res
	assert.Equal(t, scanner.PhaseNotFound, st.Phase)
	assert.Equal(t, scanner.ModeSingleFrame, st.Mode)
	assert.True(t, st.FromImport)
	assert.True(t, st.HasCapturedImage())
	assert.Empty(t, val.Calls(), "validation is not invoked without candidates")

	_, open := <-res
	assert.False(t, open)
}

func TestScenarioC_LivePipelineDropsWhileBusy(t *testing.T) {
	rec := &testutil.FakeRecognizer{}
	val := testutil.NewFakeValidator().Confirm("filled.count.soap", "en")
	o := newStarted(t, rec, val)
	p := frames.New(o, frames.Config{})

	f1 := frames.NewPooledFrame(still(), 0)
	f2 := frames.NewPooledFrame(still(), 0)
	f3 := frames.NewPooledFrame(still(), 0)

	p.Analyze(f1)
	p.Analyze(f2)
	assert.True(t, f2.Released(), "frame arriving while busy is dropped")
	assert.Equal(t, 1, rec.Pending())

	scan, ok := rec.Next()
	require.True(t, ok)
	scan.Detect("filled.count.soap")
	assert.True(t, f1.Released())

	p.Analyze(f3)
	assert.Equal(t, 2, rec.Scans(), "exactly one of the extra frames is processed")
	scan, ok = rec.Next()
	require.True(t, ok)
	scan.Detect()
	assert.True(t, f3.Released())

	st := p.Stats()
	assert.Equal(t, int64(2), st.Submitted)
	assert.Equal(t, int64(1), st.Dropped)
	assert.Equal(t, scanner.PhaseFound, o.State().Phase)
}

func TestScenarioD_DuplicateCandidatesValidatedOnce(t *testing.T) {
	rec := &testutil.FakeRecognizer{Auto: detects("a.b.c", "A.B.C")}
	val := testutil.NewFakeValidator().Confirm("a.b.c", "en")
	o := newStarted(t, rec, val)

	var rel released
	o.SubmitFrame(still(), rel.ticket())
	assert.Equal(t, []string{"a.b.c"}, val.Calls())

	o.SubmitFrame(still(), rel.ticket())
	assert.Equal(t, []string{"a.b.c"}, val.Calls(), "already found addresses are not revalidated")

	st := o.State()
	assert.Equal(t, scanner.PhaseFound, st.Phase)
	assert.Len(t, st.Found, 1)
	assert.Equal(t, 2, rel.n)
}

func TestLateValidationAfterStopIsIgnored(t *testing.T) {
	entered := make(chan struct{})
	unblock := make(chan struct{})
	val := testutil.NewFakeValidator().Confirm("index.home.raft", "en")
	val.Before = func(context.Context, string) {
		close(entered)
		<-unblock
	}

	exec := &dispatch.Goroutines{}
	rec := &testutil.FakeRecognizer{Auto: detects("index.home.raft")}
	o := scanner.New(rec, val, scanner.WithExecutor(exec))
	require.NoError(t, o.Start(context.Background()))

	var rel released
	o.SubmitFrame(still(), rel.ticket())

	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("validation never started")
	}
	o.Stop()
	close(unblock)
	exec.Wait()

	st := o.State()
	assert.Equal(t, scanner.PhaseIdle, st.Phase)
	assert.Empty(t, st.Found)
	assert.Equal(t, 1, rel.n, "in-flight frame is still released")
	assert.Equal(t, 1, rec.Stops())
}

func TestLiveEmptyDetectionIsNoop(t *testing.T) {
	rec := &testutil.FakeRecognizer{Auto: detects()}
	val := testutil.NewFakeValidator()
	o := newStarted(t, rec, val)

	var rel released
	o.SubmitFrame(still(), rel.ticket())

	assert.Equal(t, scanner.PhaseScanning, o.State().Phase)
	assert.Empty(t, val.Calls())
	assert.Equal(t, 1, rel.n)
}

func TestLiveNoMatchReturnsToScanning(t *testing.T) {
	rec := &testutil.FakeRecognizer{Auto: detects("not.an.address")}
	val := testutil.NewFakeValidator()
	o := newStarted(t, rec, val)

	o.SubmitFrame(still(), nil)
	assert.Equal(t, scanner.PhaseScanning, o.State().Phase)
	assert.Equal(t, []string{"not.an.address"}, val.Calls())
}

func TestFoundIsSticky(t *testing.T) {
	cands := []string{"index.home.raft"}
	rec := &testutil.FakeRecognizer{Auto: func(image.Image) ([]string, error) { return cands, nil }}
	val := testutil.NewFakeValidator().Confirm("index.home.raft", "en")
	o := newStarted(t, rec, val)

	o.SubmitFrame(still(), nil)
	require.Equal(t, scanner.PhaseFound, o.State().Phase)

	sub, cancel := o.Subscribe()
	defer cancel()
	<-sub

	cands = []string{"other.words.here"}
	o.SubmitFrame(still(), nil)
	assert.Equal(t, scanner.PhaseFound, o.State().Phase)

	cands = nil
	o.SubmitFrame(still(), nil)
	st := <-sub
	assert.Equal(t, scanner.PhaseFound, st.Phase)
}

func TestScanBeforeStart(t *testing.T) {
	rec := &testutil.FakeRecognizer{Auto: detects("index.home.raft")}
	o := scanner.New(rec, testutil.NewFakeValidator(), scanner.WithExecutor(dispatch.Inline{}))

	var rel released
	o.SubmitFrame(still(), rel.ticket())
	assert.Equal(t, 1, rel.n)
	assert.Zero(t, rec.Scans())

	_, err := o.ScanImage(still(), false)
	assert.ErrorIs(t, err, scanner.ErrNotReady)
	assert.ErrorIs(t, o.CaptureNextFrame(), scanner.ErrNotReady)
	assert.Equal(t, scanner.PhaseIdle, o.State().Phase)
}

func TestStartFailure(t *testing.T) {
	rec := &testutil.FakeRecognizer{FailStart: true}
	o := scanner.New(rec, testutil.NewFakeValidator())

	err := o.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, testutil.ErrFakeStart)
	assert.False(t, o.Ready())
	assert.Equal(t, scanner.PhaseIdle, o.State().Phase)

	rec.FailStart = false
	require.NoError(t, o.Start(context.Background()))
	assert.True(t, o.Ready())
}

func TestSingleFlight(t *testing.T) {
	rec := &testutil.FakeRecognizer{}
	val := testutil.NewFakeValidator().Confirm("index.home.raft", "en")
	o := newStarted(t, rec, val, scanner.WithMode(scanner.ModeSingleFrame))

	res, err := o.ScanImage(still(), false)
	require.NoError(t, err)

	_, err = o.ScanImage(still(), false)
	assert.ErrorIs(t, err, scanner.ErrBusy)
	assert.ErrorIs(t, o.CaptureNextFrame(), scanner.ErrBusy)

	scan, ok := rec.Next()
	require.True(t, ok)
	scan.Detect("index.home.raft")

	st := <-res
	assert.Equal(t, scanner.PhaseFound, st.Phase)

	_, err = o.ScanImage(still(), false)
	assert.NoError(t, err, "a new still is accepted once the cycle settled")
}

func TestCaptureNextFrame(t *testing.T) {
	rec := &testutil.FakeRecognizer{}
	o := newStarted(t, rec, testutil.NewFakeValidator())

	assert.ErrorIs(t, o.CaptureNextFrame(), scanner.ErrNotSingleFrame)
	assert.Equal(t, scanner.ModeSingleFrame, o.ToggleLiveMode())

	var rel released
	o.SubmitFrame(still(), rel.ticket())
	assert.Equal(t, 1, rel.n, "preview frames are released without scanning")
	assert.Zero(t, rec.Scans())

	require.NoError(t, o.CaptureNextFrame())
	frame := still()
	o.SubmitFrame(frame, rel.ticket())
	assert.Equal(t, 1, rec.Scans())

	st := o.State()
	require.True(t, st.HasCapturedImage())
	assert.NotSame(t, frame, st.CapturedImage, "the still outlives the frame buffer")
	assert.False(t, st.FromImport)

	// Only one frame is captured per request.
	o.SubmitFrame(still(), rel.ticket())
	assert.Equal(t, 1, rec.Scans())

	scan, _ := rec.Next()
	scan.Detect()
	assert.Equal(t, scanner.PhaseNotFound, o.State().Phase)
	assert.Equal(t, 3, rel.n)
}

func TestOnBackPressedDiscardsStill(t *testing.T) {
	rec := &testutil.FakeRecognizer{}
	val := testutil.NewFakeValidator().Confirm("index.home.raft", "en")
	o := newStarted(t, rec, val, scanner.WithMode(scanner.ModeSingleFrame))

	res, err := o.ScanImage(still(), true)
	require.NoError(t, err)
	o.OnBackPressed()

	st := o.State()
	assert.False(t, st.HasCapturedImage())
	assert.False(t, st.FromImport)
	assert.Equal(t, scanner.PhaseScanning, st.Phase)

	scan, _ := rec.Next()
	scan.Detect("index.home.raft")
	<-res

	st = o.State()
	assert.Empty(t, st.Found, "results for a discarded still are ignored")
	assert.Equal(t, scanner.PhaseScanning, st.Phase)
}

func TestToggleKeepsFoundAndClearsStill(t *testing.T) {
	rec := &testutil.FakeRecognizer{Auto: detects("index.home.raft")}
	val := testutil.NewFakeValidator().Confirm("index.home.raft", "en")
	o := newStarted(t, rec, val)

	res, err := o.ScanImage(still(), true)
	require.NoError(t, err)
	<-res
	require.Len(t, o.State().Found, 1)

	assert.Equal(t, scanner.ModeLive, o.ToggleLiveMode())
	st := o.State()
	assert.Equal(t, scanner.ModeLive, st.Mode)
	assert.False(t, st.HasCapturedImage())
	assert.Len(t, st.Found, 1)
	assert.Equal(t, scanner.PhaseFound, st.Phase)
}

func TestNearMatchesAreFiltered(t *testing.T) {
	rec := &testutil.FakeRecognizer{Auto: detects("index.home.raft")}
	val := testutil.NewFakeValidator().Answer("index.home.raft",
		address.Confirmed{Words: "index.home.rafts", Language: "en"},
		address.Confirmed{Words: "INDEX.HOME.RAFT", Language: "en"},
		address.Confirmed{Words: "index.homes.raft", Language: "en"},
	)
	o := newStarted(t, rec, val)

	o.SubmitFrame(still(), nil)
	assert.Equal(t, []string{"INDEX.HOME.RAFT"}, words(o.State().Found))
}

func TestValidationErrorsAreAbsorbed(t *testing.T) {
	rec := &testutil.FakeRecognizer{Auto: detects("bad.network.call", "index.home.raft")}
	val := testutil.NewFakeValidator().
		Fail("bad.network.call", errors.New("connection reset")).
		Confirm("index.home.raft", "en")
	o := newStarted(t, rec, val, scanner.WithMode(scanner.ModeSingleFrame))

	res, err := o.ScanImage(still(), false)
	require.NoError(t, err)
	st := <-res
	assert.Equal(t, scanner.PhaseFound, st.Phase)
	assert.Equal(t, []string{"index.home.raft"}, words(st.Found))
	assert.Empty(t, st.Error)
}

func TestTotalValidationFailureSingleFrameIsNotFound(t *testing.T) {
	rec := &testutil.FakeRecognizer{Auto: detects("bad.network.call")}
	val := testutil.NewFakeValidator().Fail("bad.network.call", errors.New("timeout"))
	o := newStarted(t, rec, val)

	res, err := o.ScanImage(still(), false)
	require.NoError(t, err)
	assert.Equal(t, scanner.PhaseNotFound, (<-res).Phase)
}

func TestRecognitionErrorSingleFrame(t *testing.T) {
	rec := &testutil.FakeRecognizer{Auto: func(image.Image) ([]string, error) {
		return nil, errors.New("engine crashed")
	}}
	val := testutil.NewFakeValidator()
	o := newStarted(t, rec, val)

	res, err := o.ScanImage(still(), false)
	require.NoError(t, err)
	st := <-res
	assert.Equal(t, scanner.PhaseNotFound, st.Phase)
	assert.Contains(t, st.Error, "engine crashed")
	assert.Empty(t, val.Calls())
}

func TestLiveErrorClearedByNextCycle(t *testing.T) {
	calls := 0
	rec := &testutil.FakeRecognizer{Auto: func(image.Image) ([]string, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("blurry frame")
		}
		return nil, nil
	}}
	o := newStarted(t, rec, testutil.NewFakeValidator())

	var rel released
	o.SubmitFrame(still(), rel.ticket())
	assert.Contains(t, o.State().Error, "blurry frame")

	o.SubmitFrame(still(), rel.ticket())
	st := o.State()
	assert.Empty(t, st.Error)
	assert.Equal(t, scanner.PhaseScanning, st.Phase)
	assert.Equal(t, 2, rel.n)
}

func TestMergeNewestFirst(t *testing.T) {
	cands := []string{"a.b.c"}
	rec := &testutil.FakeRecognizer{Auto: func(image.Image) ([]string, error) { return cands, nil }}
	val := testutil.NewFakeValidator().Confirm("a.b.c", "en").Confirm("d.e.f", "en")
	o := newStarted(t, rec, val)

	o.SubmitFrame(still(), nil)
	cands = []string{"d.e.f", "a.b.c"}
	o.SubmitFrame(still(), nil)

	assert.Equal(t, []string{"d.e.f", "a.b.c"}, words(o.State().Found))
}

func TestSeparatorsNormalizedBeforeValidation(t *testing.T) {
	rec := &testutil.FakeRecognizer{Auto: detects("///ちょうど。ひたい。あける")}
	val := testutil.NewFakeValidator().Confirm("ちょうど.ひたい.あける", "ja")
	o := newStarted(t, rec, val)

	o.SubmitFrame(still(), nil)
	assert.Equal(t, []string{"ちょうど.ひたい.あける"}, val.Calls())
	assert.Equal(t, scanner.PhaseFound, o.State().Phase)
}

func TestResetKeepsRecognizer(t *testing.T) {
	rec := &testutil.FakeRecognizer{Auto: detects("index.home.raft")}
	val := testutil.NewFakeValidator().Confirm("index.home.raft", "en")
	o := newStarted(t, rec, val)

	o.SubmitFrame(still(), nil)
	require.Equal(t, scanner.PhaseFound, o.State().Phase)

	o.Reset()
	st := o.State()
	assert.Equal(t, scanner.PhaseIdle, st.Phase)
	assert.Empty(t, st.Found)
	assert.True(t, o.Ready())
	assert.Zero(t, rec.Stops())

	o.SubmitFrame(still(), nil)
	assert.Equal(t, scanner.PhaseFound, o.State().Phase)
	assert.Len(t, val.Calls(), 2, "found list was cleared so the address is validated again")
}

func TestStopThenRestart(t *testing.T) {
	rec := &testutil.FakeRecognizer{Auto: detects("index.home.raft")}
	val := testutil.NewFakeValidator().Confirm("index.home.raft", "en")
	o := newStarted(t, rec, val)

	o.SubmitFrame(still(), nil)
	o.Stop()
	assert.False(t, o.Ready())
	assert.Equal(t, scanner.PhaseIdle, o.State().Phase)

	require.NoError(t, o.Start(context.Background()))
	o.SubmitFrame(still(), nil)
	assert.Equal(t, scanner.PhaseFound, o.State().Phase)
}

func TestStartContextCancelled(t *testing.T) {
	o := scanner.New(blockingRecognizer{}, testutil.NewFakeValidator())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := o.Start(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, o.Ready())
}

// blockingRecognizer never reports readiness.
type blockingRecognizer struct{}

func (blockingRecognizer) Start(func(), func(error)) {}

func (blockingRecognizer) Scan(image.Image, recognition.Callbacks) {}

func (blockingRecognizer) Stop() {}
