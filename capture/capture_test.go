package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeValue struct {
	num float64
	str string
	b   bool
}

func (v fakeValue) Num() float64 { return v.num }
func (v fakeValue) Str() string  { return v.str }
func (v fakeValue) Bool() bool   { return v.b }

type fakeElement struct {
	clicks    int
	frame     []byte
	shotErr   error
	shotCalls int
}

func (e *fakeElement) Click() error { e.clicks++; return nil }

func (e *fakeElement) Screenshot() ([]byte, error) {
	e.shotCalls++
	if e.shotErr != nil {
		return nil, e.shotErr
	}
	return e.frame, nil
}

// fakeSession dispatches Eval by recognizable fragments of the scripts the
// orchestrator sends. Unknown scripts succeed with a zero value.
type fakeSession struct {
	navErr   error
	navCalls int
	elements map[string]*fakeElement
	onQuery  func(sel string) (Element, bool, error)
	onEval   func(js string) (Value, error)
	closed   int
}

func (s *fakeSession) Navigate(_ context.Context, _ string) error {
	s.navCalls++
	return s.navErr
}

func (s *fakeSession) Query(sel string) (Element, bool, error) {
	if s.onQuery != nil {
		return s.onQuery(sel)
	}
	el, ok := s.elements[sel]
	if !ok {
		return nil, false, nil
	}
	return el, true, nil
}

func (s *fakeSession) Eval(_ context.Context, js string) (Value, error) {
	if s.onEval != nil {
		return s.onEval(js)
	}
	return fakeValue{}, nil
}

func (s *fakeSession) Close() error { s.closed++; return nil }

type fakeEngine struct {
	sess    *fakeSession
	sessErr error
	opts    []Options
}

func (e *fakeEngine) NewSession(opts Options) (Session, error) {
	e.opts = append(e.opts, opts)
	if e.sessErr != nil {
		return nil, e.sessErr
	}
	return e.sess, nil
}

type fakeFallback struct {
	data  []byte
	err   error
	calls int
}

func (f *fakeFallback) Fetch(_ context.Context, _ string, _ float64) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

// happyEval answers every orchestrator script as a fully cooperative player
// parked at currentTime settled.
func happyEval(settled float64) func(js string) (Value, error) {
	return func(js string) (Value, error) {
		switch {
		case strings.Contains(js, "v.play()"):
			return fakeValue{b: true}, nil
		case strings.Contains(js, "videoWidth > 0"):
			return fakeValue{b: true}, nil
		case strings.Contains(js, "currentTime ="):
			return fakeValue{b: true}, nil
		case strings.Contains(js, "readyState >= 2"):
			return fakeValue{num: settled}, nil
		default:
			return fakeValue{b: true}, nil
		}
	}
}

func TestCaptureLiveSuccess(t *testing.T) {
	frame := []byte("png-bytes")
	sess := &fakeSession{
		elements: map[string]*fakeElement{"video": {frame: frame}},
		onEval:   happyEval(10.3),
	}
	eng := &fakeEngine{sess: sess}
	o := NewOrchestrator(eng, WithLogger(testLogger()), WithUserAgent("test-agent"))

	res, err := o.Capture(context.Background(), Request{
		URL:       "https://www.youtube.com/watch?v=abc123",
		Timestamp: 10,
		Width:     1280,
		Height:    720,
	})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.Source != SourceLive {
		t.Fatalf("source = %q, want %q", res.Source, SourceLive)
	}
	if string(res.Data) != string(frame) {
		t.Fatalf("data = %q, want %q", res.Data, frame)
	}
	if sess.closed != 1 {
		t.Fatalf("session closed %d times, want 1", sess.closed)
	}
	if eng.opts[0].Width != 1280 || eng.opts[0].Height != 720 {
		t.Fatalf("session opts = %+v", eng.opts[0])
	}
	if eng.opts[0].UserAgent != "test-agent" {
		t.Fatalf("user agent = %q", eng.opts[0].UserAgent)
	}
}

func TestCaptureRejectsUnsupportedURL(t *testing.T) {
	o := NewOrchestrator(&fakeEngine{sess: &fakeSession{}}, WithLogger(testLogger()))
	_, err := o.Capture(context.Background(), Request{URL: "https://example.com/page"})
	if !errors.Is(err, ErrInvalidURL) {
		t.Fatalf("err = %v, want ErrInvalidURL", err)
	}
	var se *StepError
	if !errors.As(err, &se) || se.State != StateInit {
		t.Fatalf("err = %v, want StepError at init", err)
	}
}

func TestCaptureFallsBackOnNavigationFailure(t *testing.T) {
	sess := &fakeSession{navErr: fmt.Errorf("net::ERR_TIMED_OUT")}
	fb := &fakeFallback{data: []byte("thumb-bytes")}
	o := NewOrchestrator(&fakeEngine{sess: sess}, WithLogger(testLogger()), WithFallback(fb))

	res, err := o.Capture(context.Background(), Request{
		URL: "https://vimeo.com/12345", Timestamp: 5, Width: 640, Height: 360,
	})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.Source != SourceFallback {
		t.Fatalf("source = %q, want %q", res.Source, SourceFallback)
	}
	if fb.calls != 1 {
		t.Fatalf("fallback called %d times, want 1", fb.calls)
	}
	if sess.closed == 0 {
		t.Fatal("session not closed on failure path")
	}
}

func TestCaptureNoFallbackForFrameExtraction(t *testing.T) {
	sess := &fakeSession{
		elements: map[string]*fakeElement{
			"video": {shotErr: fmt.Errorf("target crashed")},
		},
		onEval: happyEval(5.3),
	}
	fb := &fakeFallback{data: []byte("thumb")}
	o := NewOrchestrator(&fakeEngine{sess: sess}, WithLogger(testLogger()), WithFallback(fb))

	_, err := o.Capture(context.Background(), Request{
		URL: "https://www.youtube.com/watch?v=abc", Timestamp: 5, Width: 640, Height: 360,
	})
	if !errors.Is(err, ErrFrameExtraction) {
		t.Fatalf("err = %v, want ErrFrameExtraction", err)
	}
	if fb.calls != 0 {
		t.Fatalf("fallback called %d times on a non-eligible step", fb.calls)
	}
	if sess.closed == 0 {
		t.Fatal("session not closed on failure path")
	}
}

func TestCaptureFallbackFailurePreservesCause(t *testing.T) {
	sess := &fakeSession{navErr: fmt.Errorf("dns failure")}
	fb := &fakeFallback{err: ErrFallbackUnavailable}
	o := NewOrchestrator(&fakeEngine{sess: sess}, WithLogger(testLogger()), WithFallback(fb))

	_, err := o.Capture(context.Background(), Request{
		URL: "https://vimeo.com/999", Width: 640, Height: 360,
	})
	if !errors.Is(err, ErrFallbackUnavailable) {
		t.Fatalf("err = %v, want ErrFallbackUnavailable", err)
	}
}

func TestLocateMediaClicksPlayAffordance(t *testing.T) {
	// No video element at first; the player builds one only after the play
	// affordance is clicked.
	play := &fakeElement{}
	video := &fakeElement{frame: []byte("f")}
	sess := &fakeSession{onEval: happyEval(0.3)}
	sess.onQuery = func(sel string) (Element, bool, error) {
		switch {
		case sel == ".ytp-large-play-button":
			return play, true, nil
		case sel == "video" && play.clicks > 0:
			return video, true, nil
		default:
			return nil, false, nil
		}
	}
	o := NewOrchestrator(&fakeEngine{sess: sess}, WithLogger(testLogger()))

	sel, err := o.locateMedia(context.Background(), sess)
	if err != nil {
		t.Fatalf("locateMedia: %v", err)
	}
	if sel != "video" {
		t.Fatalf("selector = %q, want video", sel)
	}
	if play.clicks == 0 {
		t.Fatal("play affordance never clicked")
	}
}

func TestCaptureProceedsWhenSeekDriftExceedsTolerance(t *testing.T) {
	// Player cooperates fully but parks far from the target; the breach is a
	// warning and the run still produces a frame.
	frame := []byte("png-bytes")
	sess := &fakeSession{
		elements: map[string]*fakeElement{"video": {frame: frame}},
		onEval:   happyEval(130),
	}
	o := NewOrchestrator(&fakeEngine{sess: sess}, WithLogger(testLogger()))

	res, err := o.Capture(context.Background(), Request{
		URL:       "https://www.youtube.com/watch?v=abc",
		Timestamp: 30,
		Width:     1280,
		Height:    720,
	})
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if res.Source != SourceLive {
		t.Fatalf("source = %q, want %q", res.Source, SourceLive)
	}
	if string(res.Data) != string(frame) {
		t.Fatalf("data = %q, want %q", res.Data, frame)
	}
}

func TestPrimePlaybackReloadsWedgedPlayer(t *testing.T) {
	// Readiness arrives only after the page is reloaded once.
	sess := &fakeSession{}
	sess.onEval = func(js string) (Value, error) {
		switch {
		case strings.Contains(js, "v.play()"):
			return fakeValue{b: true}, nil
		case strings.Contains(js, "videoWidth > 0"):
			return fakeValue{b: sess.navCalls >= 1}, nil
		default:
			return fakeValue{b: true}, nil
		}
	}
	o := NewOrchestrator(&fakeEngine{sess: sess}, WithLogger(testLogger()))
	o.readyBudget = 50 * time.Millisecond

	if err := o.primePlayback(context.Background(), sess, "video", "https://vimeo.com/1"); err != nil {
		t.Fatalf("primePlayback: %v", err)
	}
	if sess.navCalls != 1 {
		t.Fatalf("navigate called %d times, want 1 reload", sess.navCalls)
	}
}

func TestPrimePlaybackGivesUpAfterOneReload(t *testing.T) {
	sess := &fakeSession{}
	sess.onEval = func(js string) (Value, error) {
		switch {
		case strings.Contains(js, "v.play()"):
			return fakeValue{b: true}, nil
		case strings.Contains(js, "videoWidth > 0"):
			return fakeValue{b: false}, nil
		default:
			return fakeValue{b: true}, nil
		}
	}
	o := NewOrchestrator(&fakeEngine{sess: sess}, WithLogger(testLogger()))
	o.readyBudget = 50 * time.Millisecond

	err := o.primePlayback(context.Background(), sess, "video", "https://vimeo.com/1")
	if !errors.Is(err, ErrPlaybackNotReady) {
		t.Fatalf("err = %v, want ErrPlaybackNotReady", err)
	}
	if sess.navCalls != 1 {
		t.Fatalf("navigate called %d times, want exactly 1 reload", sess.navCalls)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateInit:           "init",
		StatePageLoaded:     "page_loaded",
		StateVideoLocated:   "video_located",
		StatePlaybackPrimed: "playback_primed",
		StateSeekVerified:   "seek_verified",
		StateFrameCaptured:  "frame_captured",
		State(42):           "state(42)",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}

func TestFormatTimestamp(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0:00"},
		{5.7, "0:05"},
		{65, "1:05"},
		{600, "10:00"},
		{3725, "62:05"},
		{-3, "0:00"},
	}
	for _, c := range cases {
		if got := formatTimestamp(c.in); got != c.want {
			t.Errorf("formatTimestamp(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}
