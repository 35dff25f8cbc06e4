// Package screenshot is the cache-aware front of the capture pipeline: it
// maps a (url, timestamp, width, height) tuple to a cached JPEG artifact,
// capturing and normalizing on miss.
package screenshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/hazyhaar/timecap/capture"
	"github.com/hazyhaar/timecap/fingerprint"
	"github.com/hazyhaar/timecap/store"
)

// Capturer produces raw frame bytes for a request. Satisfied by
// *capture.Orchestrator.
type Capturer interface {
	Capture(ctx context.Context, req capture.Request) (*capture.Result, error)
}

// Image is one resolved artifact.
type Image struct {
	Key    string
	Data   []byte
	Source capture.Source
	Cached bool
}

// Normalizer converts raw frame bytes to the canonical artifact form.
// Satisfied by *frame.Normalizer.
type Normalizer interface {
	Normalize(data []byte, width, height int) []byte
}

// Service coordinates cache, capture, and normalization. Concurrent requests
// for the same fingerprint are coalesced into one capture; followers share
// the leader's result.
type Service struct {
	artifacts *store.ArtifactStore
	capt      Capturer
	norm      Normalizer
	logger    *slog.Logger
	flight    singleflight.Group
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService wires the screenshot pipeline together.
func NewService(artifacts *store.ArtifactStore, capt Capturer, norm Normalizer, opts ...ServiceOption) *Service {
	s := &Service{
		artifacts: artifacts,
		capt:      capt,
		norm:      norm,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the artifact for the request tuple, from cache when possible.
func (s *Service) Get(ctx context.Context, req capture.Request) (*Image, error) {
	key := fingerprint.Key(req.URL, req.Timestamp, req.Width, req.Height)

	if data, err := s.artifacts.Get(key); err == nil {
		s.logger.Debug("cache hit", "key", key)
		return &Image{Key: key, Data: data, Source: capture.SourceLive, Cached: true}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("screenshot: cache read: %w", err)
	}

	v, err, shared := s.flight.Do(key, func() (any, error) {
		// Re-check inside the flight: a just-finished leader may have
		// populated the cache between our miss and this call.
		if data, err := s.artifacts.Get(key); err == nil {
			return &Image{Key: key, Data: data, Source: capture.SourceLive, Cached: true}, nil
		}

		res, err := s.capt.Capture(ctx, req)
		if err != nil {
			return nil, err
		}
		data := s.norm.Normalize(res.Data, req.Width, req.Height)
		if err := s.artifacts.Put(key, data); err != nil {
			return nil, fmt.Errorf("screenshot: cache write: %w", err)
		}
		return &Image{Key: key, Data: data, Source: res.Source}, nil
	})
	if err != nil {
		return nil, err
	}
	img := v.(*Image)
	if shared {
		s.logger.Debug("coalesced capture", "key", key)
	}
	return img, nil
}
