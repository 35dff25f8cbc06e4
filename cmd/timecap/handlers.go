package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/timecap/capture"
	"github.com/hazyhaar/timecap/config"
	"github.com/hazyhaar/timecap/platform"
	"github.com/hazyhaar/timecap/screenshot"
	"github.com/hazyhaar/timecap/shield"
	"github.com/hazyhaar/timecap/shortlink"
	"github.com/hazyhaar/timecap/store"
)

// minDimension rejects viewports too small to render a player.
const minDimension = 100

type screenshotGetter interface {
	Get(ctx context.Context, req capture.Request) (*screenshot.Image, error)
}

type linkService interface {
	Create(ctx context.Context, req shortlink.CreateRequest) (*store.Record, error)
	Resolve(ctx context.Context, id string, req shortlink.Requester) (*shortlink.Resolution, error)
	GetInfo(id string) (*shortlink.Info, error)
}

type artifactCache interface {
	Get(key string) ([]byte, error)
	Delete(key string) bool
	ClearAll() (int, error)
}

type server struct {
	cfg   *config.Config
	shots screenshotGetter
	links linkService
	cache artifactCache
}

func (s *server) routes(r chi.Router) {
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})
	r.Get("/api", s.handleAPI)
	r.Get("/screenshot", s.handleScreenshot)
	r.Get("/cache/{key}", s.handleCacheGet)
	r.Delete("/cache/{key}", s.handleCacheDelete)
	r.Delete("/cache", s.handleCacheClear)
	r.Post("/shorten", s.handleShorten)
	r.Get("/s/{id}", s.handleResolve)
	r.Get("/s/{id}/info", s.handleInfo)
}

func (s *server) handleAPI(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, 200, map[string]any{
		"service": "timecap",
		"endpoints": map[string]string{
			"GET /screenshot":     "capture a frame: url, t, w, h",
			"GET /cache/{key}":    "fetch a cached artifact",
			"DELETE /cache/{key}": "evict one artifact",
			"DELETE /cache":       "evict everything",
			"POST /shorten":       "create a short link: url, t, w, h",
			"GET /s/{id}":         "resolve a short link",
			"GET /s/{id}/info":    "short link details",
		},
		"limits": map[string]int{
			"min_dimension": minDimension,
			"max_width":     s.cfg.MaxWidth,
			"max_height":    s.cfg.MaxHeight,
		},
	})
}

// captureParams validates the shared (url, t, width, height) tuple.
func (s *server) captureParams(rawurl string, t float64, width, height int) (capture.Request, error) {
	if rawurl == "" {
		return capture.Request{}, errors.New("url is required")
	}
	if !platform.Supported(rawurl) {
		return capture.Request{}, errors.New("url is not a supported video page")
	}
	if t < 0 {
		return capture.Request{}, errors.New("timestamp must be non-negative")
	}
	if width == 0 {
		width = s.cfg.DefaultWidth
	}
	if height == 0 {
		height = s.cfg.DefaultHeight
	}
	if width < minDimension || height < minDimension || width > s.cfg.MaxWidth || height > s.cfg.MaxHeight {
		return capture.Request{}, fmt.Errorf("dimensions must be between %dx%d and %dx%d",
			minDimension, minDimension, s.cfg.MaxWidth, s.cfg.MaxHeight)
	}
	return capture.Request{URL: rawurl, Timestamp: t, Width: width, Height: height}, nil
}

func (s *server) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	t, err := queryFloat(q.Get("t"), 0)
	if err != nil {
		writeError(w, 400, errors.New("t must be a number"))
		return
	}
	req, err := s.captureParams(q.Get("url"), t, queryDim(q, "w", "width"), queryDim(q, "h", "height"))
	if err != nil {
		writeError(w, 400, err)
		return
	}

	img, err := s.shots.Get(r.Context(), req)
	if err != nil {
		logger := shield.GetLogger(r.Context())
		logger.Error("screenshot failed", "url", req.URL, "error", err)
		if errors.Is(err, capture.ErrInvalidURL) {
			writeError(w, 400, errors.New("url is not a supported video page"))
			return
		}
		// Internal detail stays in the log.
		writeError(w, 502, errors.New("could not capture screenshot"))
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(s.cfg.CacheExpiry.Seconds())))
	w.Header().Set("X-Screenshot-Source", string(img.Source))
	if img.Cached {
		w.Header().Set("X-Screenshot-Cache", "hit")
	} else {
		w.Header().Set("X-Screenshot-Cache", "miss")
	}
	w.Write(img.Data)
}

func (s *server) handleCacheGet(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSuffix(chi.URLParam(r, "key"), ".jpg")
	data, err := s.cache.Get(key)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, 404, errors.New("not found"))
		return
	}
	if err != nil {
		shield.GetLogger(r.Context()).Error("cache read failed", "key", key, "error", err)
		writeError(w, 500, errors.New("cache read failed"))
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(s.cfg.CacheExpiry.Seconds())))
	w.Write(data)
}

func (s *server) handleCacheDelete(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSuffix(chi.URLParam(r, "key"), ".jpg")
	if !s.cache.Delete(key) {
		writeError(w, 404, errors.New("not found"))
		return
	}
	writeJSON(w, 200, map[string]string{"status": "deleted", "key": key})
}

func (s *server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	removed, err := s.cache.ClearAll()
	if err != nil {
		shield.GetLogger(r.Context()).Error("cache clear failed", "error", err)
		writeError(w, 500, errors.New("cache clear failed"))
		return
	}
	writeJSON(w, 200, map[string]any{"status": "cleared", "removed": removed})
}

type shortenRequest struct {
	URL       string  `json:"url"`
	Timestamp float64 `json:"timestamp"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
}

// handleShorten takes its parameters from the query string, or from a JSON
// body when no url parameter is present.
func (s *server) handleShorten(w http.ResponseWriter, r *http.Request) {
	var body shortenRequest
	if q := r.URL.Query(); q.Get("url") != "" {
		t, err := queryFloat(q.Get("t"), 0)
		if err != nil {
			writeError(w, 400, errors.New("t must be a number"))
			return
		}
		body = shortenRequest{
			URL:       q.Get("url"),
			Timestamp: t,
			Width:     queryDim(q, "w", "width"),
			Height:    queryDim(q, "h", "height"),
		}
	} else if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, 400, errors.New("provide url as a query parameter or a json body"))
		return
	}
	req, err := s.captureParams(body.URL, body.Timestamp, body.Width, body.Height)
	if err != nil {
		writeError(w, 400, err)
		return
	}

	rec, err := s.links.Create(r.Context(), shortlink.CreateRequest{
		URL:       req.URL,
		Timestamp: req.Timestamp,
		Width:     req.Width,
		Height:    req.Height,
	})
	if err != nil {
		shield.GetLogger(r.Context()).Error("shorten failed", "url", req.URL, "error", err)
		writeError(w, 502, errors.New("could not create short link"))
		return
	}
	writeJSON(w, 201, map[string]any{
		"short_id":       rec.ShortID,
		"short_url":      s.cfg.BaseURL + "/s/" + rec.ShortID,
		"original_url":   rec.OriginalURL,
		"timestamp":      rec.Timestamp,
		"screenshot_url": s.cfg.BaseURL + rec.ScreenshotURL,
		"metadata":       rec.Metadata,
		"created_at":     rec.CreatedAt,
	})
}

func (s *server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := s.links.Resolve(r.Context(), id, shortlink.Requester{
		UserAgent:    r.UserAgent(),
		ForcePreview: r.URL.Query().Get("preview") == "1",
	})
	if errors.Is(err, shortlink.ErrNotFound) {
		writeError(w, 404, errors.New("not found"))
		return
	}
	if err != nil {
		shield.GetLogger(r.Context()).Error("resolve failed", "short_id", id, "error", err)
		writeError(w, 500, errors.New("could not resolve link"))
		return
	}
	if res.Automated {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write(res.PreviewHTML)
		return
	}
	http.Redirect(w, r, res.RedirectURL, http.StatusFound)
}

func (s *server) handleInfo(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, err := s.links.GetInfo(id)
	if errors.Is(err, shortlink.ErrNotFound) {
		writeError(w, 404, errors.New("not found"))
		return
	}
	if err != nil {
		shield.GetLogger(r.Context()).Error("info failed", "short_id", id, "error", err)
		writeError(w, 500, errors.New("could not load link"))
		return
	}
	writeJSON(w, 200, info)
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// queryDim reads a dimension under its short name, falling back to the long
// alias.
func queryDim(q url.Values, short, long string) int {
	if v := q.Get(short); v != "" {
		return queryInt(v, 0)
	}
	return queryInt(q.Get(long), 0)
}

func queryInt(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func queryFloat(s string, def float64) (float64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseFloat(s, 64)
}
