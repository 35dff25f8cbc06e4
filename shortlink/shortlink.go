// Package shortlink is the registry in front of the screenshot pipeline: it
// mints short ids for (url, timestamp) pairs, serves crawler-friendly
// preview pages, and redirects humans to the timestamped video.
package shortlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/timecap/capture"
	"github.com/hazyhaar/timecap/idgen"
	"github.com/hazyhaar/timecap/platform"
	"github.com/hazyhaar/timecap/screenshot"
	"github.com/hazyhaar/timecap/store"
)

// shortIDLength keeps ids URL-friendly; 36^8 leaves collisions to the
// retry loop.
const shortIDLength = 8

// idRetries bounds how many collisions Create absorbs before giving up.
const idRetries = 5

// ErrIDSpace is returned when id generation keeps colliding, which in
// practice means the generator is broken.
var ErrIDSpace = errors.New("shortlink: could not mint a unique id")

// ErrNotFound aliases the store sentinel so callers depend on one package.
var ErrNotFound = store.ErrNotFound

// Screenshotter produces the cached artifact for a capture request.
// Satisfied by *screenshot.Service.
type Screenshotter interface {
	Get(ctx context.Context, req capture.Request) (*screenshot.Image, error)
}

// MetadataExtractor harvests page metadata. Satisfied by
// *capture.MetadataExtractor.
type MetadataExtractor interface {
	Extract(ctx context.Context, rawurl string) capture.VideoMetadata
}

// ClickLogger records resolution events. Satisfied by *clicklog.Log.
type ClickLogger interface {
	Record(shortID, userAgent string, automated bool)
}

// Service owns the short-link lifecycle.
type Service struct {
	links     *store.LinkStore
	artifacts *store.ArtifactStore
	shots     Screenshotter
	meta      MetadataExtractor
	clicks    ClickLogger
	logger    *slog.Logger
	newID     idgen.Generator
	baseURL   string
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithClickLog enables resolution event logging.
func WithClickLog(cl ClickLogger) ServiceOption {
	return func(s *Service) { s.clicks = cl }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithIDGenerator overrides the short-id strategy.
func WithIDGenerator(g idgen.Generator) ServiceOption {
	return func(s *Service) { s.newID = g }
}

// NewService wires the registry. baseURL is the externally visible origin,
// without a trailing slash.
func NewService(links *store.LinkStore, artifacts *store.ArtifactStore, shots Screenshotter, meta MetadataExtractor, baseURL string, opts ...ServiceOption) *Service {
	s := &Service{
		links:     links,
		artifacts: artifacts,
		shots:     shots,
		meta:      meta,
		logger:    slog.Default(),
		newID:     idgen.NanoID(shortIDLength),
		baseURL:   baseURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest is the input to Create.
type CreateRequest struct {
	URL       string
	Timestamp float64
	Width     int
	Height    int
}

// Create captures (or reuses) the screenshot for the request, mints a short
// id, and persists the registry record.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*store.Record, error) {
	meta := s.meta.Extract(ctx, req.URL)

	img, err := s.shots.Get(ctx, capture.Request{
		URL:       req.URL,
		Timestamp: req.Timestamp,
		Width:     req.Width,
		Height:    req.Height,
	})
	if err != nil {
		return nil, fmt.Errorf("shortlink: screenshot: %w", err)
	}

	id, err := s.mintID()
	if err != nil {
		return nil, err
	}

	// The artifact is re-keyed under the short id so the preview image URL
	// is stable even if the fingerprint entry is evicted.
	if err := s.artifacts.Put(id, img.Data); err != nil {
		return nil, fmt.Errorf("shortlink: store artifact: %w", err)
	}

	rec := &store.Record{
		ShortID:       id,
		OriginalURL:   req.URL,
		Timestamp:     req.Timestamp,
		Width:         req.Width,
		Height:        req.Height,
		ScreenshotURL: "/cache/" + id + ".jpg",
		Metadata:      meta,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.links.Save(rec); err != nil {
		return nil, fmt.Errorf("shortlink: save record: %w", err)
	}
	s.logger.Info("short link created", "short_id", id, "url", req.URL,
		"timestamp", req.Timestamp, "source", img.Source, "cached", img.Cached)
	return rec, nil
}

func (s *Service) mintID() (string, error) {
	for i := 0; i < idRetries; i++ {
		id := s.newID()
		if !s.links.Exists(id) {
			return id, nil
		}
		s.logger.Warn("short id collision", "short_id", id, "attempt", i+1)
	}
	return "", ErrIDSpace
}

// Resolution is the outcome of resolving a short link: exactly one of
// RedirectURL or PreviewHTML is set.
type Resolution struct {
	Record      *store.Record
	Automated   bool
	RedirectURL string
	PreviewHTML []byte
}

// Resolve counts the click, records the event, and picks redirect or preview
// based on who is asking.
func (s *Service) Resolve(ctx context.Context, id string, req Requester) (*Resolution, error) {
	rec, err := s.links.IncrementClicks(id)
	if err != nil {
		return nil, err
	}

	automated := req.Automated()
	if s.clicks != nil {
		s.clicks.Record(id, req.UserAgent, automated)
	}

	res := &Resolution{Record: rec, Automated: automated}
	if !automated {
		res.RedirectURL = platform.SeekURL(rec.OriginalURL, rec.Timestamp)
		return res, nil
	}

	title := rec.Metadata.Title
	if title == "" {
		title = "Video"
	}
	if rec.Timestamp > 0 {
		title = fmt.Sprintf("%s at %s", title, formatOffset(rec.Timestamp))
	}
	html, err := renderPreview(previewData{
		Title:       title,
		Description: rec.Metadata.Description,
		SiteName:    rec.Metadata.SiteName,
		// Cache-buster: crawlers cache og:image aggressively and would
		// otherwise pin a stale artifact forever.
		ImageURL:  fmt.Sprintf("%s%s?v=%d", s.baseURL, rec.ScreenshotURL, time.Now().Unix()),
		PageURL:   s.baseURL + "/s/" + id,
		TargetURL: platform.SeekURL(rec.OriginalURL, rec.Timestamp),
		Width:     rec.Width,
		Height:    rec.Height,
	})
	if err != nil {
		return nil, err
	}
	res.PreviewHTML = html
	return res, nil
}

// Info is the read-only view of a record with absolute URLs.
type Info struct {
	ShortID       string                `json:"short_id"`
	ShortURL      string                `json:"short_url"`
	OriginalURL   string                `json:"original_url"`
	Timestamp     float64               `json:"timestamp"`
	Width         int                   `json:"width"`
	Height        int                   `json:"height"`
	ScreenshotURL string                `json:"screenshot_url"`
	Metadata      capture.VideoMetadata `json:"metadata"`
	CreatedAt     time.Time             `json:"created_at"`
	Clicks        int64                 `json:"clicks"`
}

// GetInfo returns registry details for id without counting a click.
func (s *Service) GetInfo(id string) (*Info, error) {
	rec, err := s.links.Load(id)
	if err != nil {
		return nil, err
	}
	return &Info{
		ShortID:       rec.ShortID,
		ShortURL:      s.baseURL + "/s/" + rec.ShortID,
		OriginalURL:   rec.OriginalURL,
		Timestamp:     rec.Timestamp,
		Width:         rec.Width,
		Height:        rec.Height,
		ScreenshotURL: s.baseURL + rec.ScreenshotURL,
		Metadata:      rec.Metadata,
		CreatedAt:     rec.CreatedAt,
		Clicks:        rec.Clicks,
	}, nil
}
