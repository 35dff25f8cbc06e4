// Package capture turns a video page URL and a timestamp into raw frame
// bytes. A single orchestrator drives one headless render session per request
// through an explicit state machine; every step has a budget and a retry
// policy, and a class of failures can degrade to a platform thumbnail
// fallback instead of failing the request.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/hazyhaar/timecap/platform"
)

// State names a position in the capture pipeline. States only advance; a
// failed transition terminates the run at the state it was trying to reach.
type State int

const (
	StateInit State = iota
	StatePageLoaded
	StateVideoLocated
	StatePlaybackPrimed
	StateSeekVerified
	StateFrameCaptured
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StatePageLoaded:
		return "page_loaded"
	case StateVideoLocated:
		return "video_located"
	case StatePlaybackPrimed:
		return "playback_primed"
	case StateSeekVerified:
		return "seek_verified"
	case StateFrameCaptured:
		return "frame_captured"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Source records where the final image came from.
type Source string

const (
	SourceLive     Source = "live"
	SourceFallback Source = "fallback"
)

// Request is one capture job. Dimensions are the session viewport; the
// timestamp is seconds into the video.
type Request struct {
	URL       string
	Timestamp float64
	Width     int
	Height    int
}

// Result carries the captured frame and its provenance.
type Result struct {
	Data   []byte
	Source Source
}

// stepPolicy is the budget for reaching one state. The table below is the
// single place step behavior is tuned; the machine itself never hardcodes a
// timeout or retry count.
type stepPolicy struct {
	timeout    time.Duration
	retries    int
	fallbackOK bool
}

var policies = map[State]stepPolicy{
	StatePageLoaded:     {timeout: 30 * time.Second, retries: 0, fallbackOK: true},
	StateVideoLocated:   {timeout: 10 * time.Second, retries: 1, fallbackOK: true},
	StatePlaybackPrimed: {timeout: 15 * time.Second, retries: 1, fallbackOK: true},
	StateSeekVerified:   {timeout: 10 * time.Second, retries: 1, fallbackOK: false},
	StateFrameCaptured:  {timeout: 10 * time.Second, retries: 1, fallbackOK: false},
}

const (
	// seekBias nudges the target forward so the decoder lands on a frame at
	// or after the requested instant rather than a stale one before it.
	seekBias = 0.3
	// seekTolerance is how far the settled currentTime may drift from the
	// target before we log a warning. Drift is never fatal.
	seekTolerance = 2.0

	pollInterval = 250 * time.Millisecond

	// Inner polls run under sub-budgets strictly smaller than their step's
	// timeout, so a blown poll is distinguishable from a dead step context
	// and the recovery branches (reload, tolerance warning) stay reachable.
	defaultReadyBudget  = 6 * time.Second
	defaultVerifyBudget = 4 * time.Second
)

// videoSelectors are tried in order when locating the media element.
var videoSelectors = []string{
	"video",
	".html5-main-video",
	"video.vjs-tech",
	"iframe video",
}

// playAffordances are clicked when no video element is present yet, in case
// the player only builds its media element after a user gesture.
var playAffordances = []string{
	".ytp-large-play-button",
	".vjs-big-play-button",
	"button[aria-label*='Play']",
	"[class*='play-button']",
}

// FallbackFetcher produces a substitute image when live capture fails on a
// fallback-eligible step.
type FallbackFetcher interface {
	Fetch(ctx context.Context, rawurl string, timestamp float64) ([]byte, error)
}

// Orchestrator runs capture jobs. Safe for concurrent use; each job gets its
// own session.
type Orchestrator struct {
	engine    SessionEngine
	fallback  FallbackFetcher
	logger    *slog.Logger
	userAgent string

	readyBudget  time.Duration
	verifyBudget time.Duration
}

// OrchestratorOption customizes an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithFallback installs a fallback fetcher. Without one, fallback-eligible
// failures are plain failures.
func WithFallback(f FallbackFetcher) OrchestratorOption {
	return func(o *Orchestrator) { o.fallback = f }
}

// WithUserAgent overrides the session user agent.
func WithUserAgent(ua string) OrchestratorOption {
	return func(o *Orchestrator) { o.userAgent = ua }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

// NewOrchestrator builds an orchestrator on top of a session engine.
func NewOrchestrator(engine SessionEngine, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		engine:       engine,
		logger:       slog.Default(),
		readyBudget:  defaultReadyBudget,
		verifyBudget: defaultVerifyBudget,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Capture runs the full pipeline for req. On a fallback-eligible live
// failure it degrades to the thumbnail fetcher; the returned Result's Source
// says which path produced the bytes.
func (o *Orchestrator) Capture(ctx context.Context, req Request) (*Result, error) {
	if !platform.Supported(req.URL) {
		return nil, stepErr(StateInit, ErrInvalidURL)
	}

	start := time.Now()
	data, err := o.captureLive(ctx, req)
	if err == nil {
		o.logger.Info("capture complete", "url", req.URL, "source", SourceLive,
			"elapsed", time.Since(start).Round(time.Millisecond))
		return &Result{Data: data, Source: SourceLive}, nil
	}

	var se *StepError
	if errors.As(err, &se) && policies[se.State].fallbackOK && o.fallback != nil {
		o.logger.Warn("live capture failed, trying fallback",
			"url", req.URL, "state", se.State.String(), "error", se.Err)
		fb, ferr := o.fallback.Fetch(ctx, req.URL, req.Timestamp)
		if ferr == nil {
			o.logger.Info("capture complete", "url", req.URL, "source", SourceFallback,
				"elapsed", time.Since(start).Round(time.Millisecond))
			return &Result{Data: fb, Source: SourceFallback}, nil
		}
		return nil, fmt.Errorf("%w (after %v)", ferr, err)
	}
	return nil, err
}

func (o *Orchestrator) captureLive(ctx context.Context, req Request) ([]byte, error) {
	sess, err := o.engine.NewSession(Options{
		Width:     req.Width,
		Height:    req.Height,
		UserAgent: o.userAgent,
	})
	if err != nil {
		return nil, stepErr(StateInit, err)
	}
	defer sess.Close()

	// Navigate to the platform's own deep link so players that honor a
	// start-time parameter begin close to the target.
	target := platform.SeekURL(req.URL, req.Timestamp)
	if err := o.step(ctx, StatePageLoaded, func(sc context.Context) error {
		if err := sess.Navigate(sc, target); err != nil {
			return fmt.Errorf("%w: %v", ErrNavigationTimeout, err)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	var sel string
	if err := o.step(ctx, StateVideoLocated, func(sc context.Context) error {
		s, err := o.locateMedia(sc, sess)
		if err != nil {
			return err
		}
		sel = s
		return nil
	}); err != nil {
		return nil, err
	}

	if err := o.step(ctx, StatePlaybackPrimed, func(sc context.Context) error {
		return o.primePlayback(sc, sess, sel, target)
	}); err != nil {
		return nil, err
	}

	if err := o.step(ctx, StateSeekVerified, func(sc context.Context) error {
		return o.seek(sc, sess, sel, req.Timestamp)
	}); err != nil {
		return nil, err
	}

	// Cosmetic steps never fail a run.
	o.hideChrome(ctx, sess, sel)
	o.forceQuality(ctx, sess)

	var frame []byte
	if err := o.step(ctx, StateFrameCaptured, func(sc context.Context) error {
		// Re-query: player chrome manipulation can detach the old handle.
		el, found, err := sess.Query(sel)
		if err != nil || !found {
			return fmt.Errorf("%w: element lost (%v)", ErrFrameExtraction, err)
		}
		data, err := el.Screenshot()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrFrameExtraction, err)
		}
		frame = data
		return nil
	}); err != nil {
		return nil, err
	}
	return frame, nil
}

// step runs fn under the state's policy: a per-attempt timeout and up to
// policy.retries re-runs.
func (o *Orchestrator) step(ctx context.Context, state State, fn func(context.Context) error) error {
	pol := policies[state]
	var err error
	for attempt := 0; attempt <= pol.retries; attempt++ {
		sc, cancel := context.WithTimeout(ctx, pol.timeout)
		err = fn(sc)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
		if attempt < pol.retries {
			o.logger.Warn("step retrying", "state", state.String(), "attempt", attempt+1, "error", err)
		}
	}
	return stepErr(state, err)
}

// locateMedia polls the selector list for a video element, clicking play
// affordances between rounds in case the player lazy-builds its media
// element.
func (o *Orchestrator) locateMedia(ctx context.Context, sess Session) (string, error) {
	recoveries := 0
	var found string
	err := poll(ctx, policies[StateVideoLocated].timeout, pollInterval, func() (bool, error) {
		for _, sel := range videoSelectors {
			_, ok, err := sess.Query(sel)
			if err != nil {
				continue
			}
			if ok {
				found = sel
				return true, nil
			}
		}
		if recoveries < 2 {
			recoveries++
			for _, sel := range playAffordances {
				el, ok, err := sess.Query(sel)
				if err == nil && ok {
					if cerr := el.Click(); cerr == nil {
						o.logger.Debug("clicked play affordance", "selector", sel)
					}
					break
				}
			}
		}
		return false, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMediaNotFound, err)
	}
	return found, nil
}

// primePlayback mutes and starts the video, then polls until the element
// reports real dimensions and a duration. One page reload is attempted if
// readiness never arrives, since some players wedge on first load.
func (o *Orchestrator) primePlayback(ctx context.Context, sess Session, sel, pageURL string) error {
	prime := fmt.Sprintf(`() => {
		const v = document.querySelector(%q);
		if (!v) return false;
		v.muted = true;
		const p = v.play();
		if (p && p.catch) p.catch(() => {});
		return true;
	}`, sel)
	ready := fmt.Sprintf(`() => {
		const v = document.querySelector(%q);
		return !!v && v.videoWidth > 0 && v.videoHeight > 0 && v.duration > 0;
	}`, sel)

	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if v, perr := sess.Eval(ctx, prime); perr != nil || !v.Bool() {
			return fmt.Errorf("%w: play() unavailable", ErrPlaybackNotReady)
		}
		// Sub-budget, not the step timeout: the reload branch below needs
		// budget left to run.
		err = poll(ctx, o.readyBudget, pollInterval, func() (bool, error) {
			v, rerr := sess.Eval(ctx, ready)
			if rerr != nil {
				return false, nil
			}
			return v.Bool(), nil
		})
		if err == nil {
			return nil
		}
		if attempt > 0 || ctx.Err() != nil {
			break
		}
		o.logger.Warn("playback wedged, reloading page", "url", pageURL)
		if nerr := sess.Navigate(ctx, pageURL); nerr != nil {
			return fmt.Errorf("%w: reload failed: %v", ErrPlaybackNotReady, nerr)
		}
	}
	return fmt.Errorf("%w: %v", ErrPlaybackNotReady, err)
}

// seek jumps to the biased target, pauses, and waits for currentTime to
// settle. Landing outside tolerance after the retry is logged, not failed: a
// nearby frame beats no frame.
func (o *Orchestrator) seek(ctx context.Context, sess Session, sel string, timestamp float64) error {
	target := timestamp + seekBias
	jump := fmt.Sprintf(`() => {
		const v = document.querySelector(%q);
		if (!v) return false;
		v.currentTime = %v;
		v.pause();
		return true;
	}`, sel, target)
	position := fmt.Sprintf(`() => {
		const v = document.querySelector(%q);
		return v && v.readyState >= 2 ? v.currentTime : -1;
	}`, sel)

	settled := -1.0
	for attempt := 0; attempt < 2; attempt++ {
		if v, err := sess.Eval(ctx, jump); err != nil || !v.Bool() {
			return fmt.Errorf("%w: seek rejected", ErrPlaybackNotReady)
		}
		prev := -1.0
		err := poll(ctx, o.verifyBudget, pollInterval, func() (bool, error) {
			v, err := sess.Eval(ctx, position)
			if err != nil {
				return false, nil
			}
			settled = v.Num()
			if settled < 0 {
				return false, nil
			}
			if math.Abs(settled-target) <= seekTolerance {
				return true, nil
			}
			// The element is paused, so a position that stopped moving will
			// not drift into tolerance on its own. Treat two identical
			// readings as settled and let the tolerance check below decide.
			stable := prev >= 0 && math.Abs(settled-prev) < 0.01
			prev = settled
			return stable, nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %v", ErrSeekTolerance, err)
			}
			continue
		}
		if math.Abs(settled-target) <= seekTolerance {
			return nil
		}
	}
	o.logger.Warn("seek settled outside tolerance",
		"target", target, "settled", settled, "tolerance", seekTolerance)
	return nil
}

// hideChrome strips player controls so they don't bleed into the frame.
func (o *Orchestrator) hideChrome(ctx context.Context, sess Session, sel string) {
	js := fmt.Sprintf(`() => {
		const v = document.querySelector(%q);
		if (v) v.controls = false;
		const chrome = document.querySelectorAll(
			'.ytp-chrome-bottom, .ytp-gradient-bottom, .vjs-control-bar, [class*="controls"]');
		chrome.forEach(el => { el.style.opacity = '0'; });
		return true;
	}`, sel)
	if _, err := sess.Eval(ctx, js); err != nil {
		o.logger.Debug("hide chrome failed", "error", err)
	}
}

// forceQuality nudges players that expose a quality API toward their highest
// rendition.
func (o *Orchestrator) forceQuality(ctx context.Context, sess Session) {
	js := `() => {
		const p = document.querySelector('.html5-video-player');
		if (p && typeof p.setPlaybackQualityRange === 'function') {
			const levels = typeof p.getAvailableQualityLevels === 'function'
				? p.getAvailableQualityLevels() : [];
			if (levels.length > 0) p.setPlaybackQualityRange(levels[0], levels[0]);
			return true;
		}
		return false;
	}`
	if _, err := sess.Eval(ctx, js); err != nil {
		o.logger.Debug("force quality failed", "error", err)
	}
}
