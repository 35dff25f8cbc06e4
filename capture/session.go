package capture

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// Session is one isolated render context. The orchestrator owns exactly one
// per request and closes it on every exit path. The interface is the whole
// surface the state machine needs, so tests can drive it with a fake.
type Session interface {
	// Navigate loads rawurl and waits for the load event, bounded by ctx.
	Navigate(ctx context.Context, rawurl string) error
	// Query returns a handle to the first element matching sel, without
	// waiting. found is false when nothing matches.
	Query(sel string) (el Element, found bool, err error)
	// Eval runs a JS function expression in the page and returns its value.
	Eval(ctx context.Context, js string) (Value, error)
	// Close tears the context down. Safe to call more than once.
	Close() error
}

// Element is a handle to a DOM node inside a Session.
type Element interface {
	Click() error
	Screenshot() ([]byte, error)
}

// Value is an evaluated JS result.
type Value interface {
	Num() float64
	Str() string
	Bool() bool
}

// rodSession adapts a Rod page to the Session interface.
type rodSession struct {
	page   *rod.Page
	logger *slog.Logger
	closed bool
}

func (s *rodSession) Navigate(ctx context.Context, rawurl string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(rawurl); err != nil {
		return fmt.Errorf("navigate %s: %w", rawurl, err)
	}
	// A slow load event is not fatal: the DOM may already be usable.
	if err := p.WaitLoad(); err != nil {
		s.logger.Warn("wait load timed out", "url", rawurl, "error", err)
	}
	return nil
}

func (s *rodSession) Query(sel string) (Element, bool, error) {
	has, el, err := s.page.Has(sel)
	if err != nil {
		return nil, false, fmt.Errorf("query %q: %w", sel, err)
	}
	if !has {
		return nil, false, nil
	}
	return &rodElement{el: el}, true, nil
}

func (s *rodSession) Eval(ctx context.Context, js string) (Value, error) {
	res, err := s.page.Context(ctx).Eval(js)
	if err != nil {
		return nil, fmt.Errorf("eval: %w", err)
	}
	return res.Value, nil
}

func (s *rodSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.page.Close()
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Click() error {
	return e.el.Click(proto.InputMouseButtonLeft, 1)
}

func (e *rodElement) Screenshot() ([]byte, error) {
	// Element-scoped PNG of the rendered bounding box, not the full page.
	data, err := e.el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return nil, fmt.Errorf("element screenshot: %w", err)
	}
	return data, nil
}

// poll runs cond until it reports done, an error, or the deadline passes.
// Bounded condition polling replaces fixed sleeps so every wait has an
// explicit budget.
func poll(ctx context.Context, timeout, interval time.Duration, cond func() (bool, error)) error {
	deadline := time.Now().Add(timeout)
	for {
		done, err := cond()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if time.Now().After(deadline) {
			return context.DeadlineExceeded
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
