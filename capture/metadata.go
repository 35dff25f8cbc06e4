package capture

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/timecap/platform"
)

// VideoMetadata is what the page declares about its video, harvested from
// OpenGraph and Twitter meta tags. Duration is seconds; zero means the page
// never said.
type VideoMetadata struct {
	Title        string  `json:"title"`
	Description  string  `json:"description,omitempty"`
	SiteName     string  `json:"site_name,omitempty"`
	Duration     float64 `json:"duration,omitempty"`
	ThumbnailURL string  `json:"thumbnail_url,omitempty"`
}

// MetadataExtractor reads page metadata through its own short-lived render
// session. Extraction is best effort end to end: any failure yields defaults,
// never an error, because preview pages must render with or without metadata.
type MetadataExtractor struct {
	engine  SessionEngine
	logger  *slog.Logger
	timeout time.Duration
}

// NewMetadataExtractor wires the extractor to a session engine.
func NewMetadataExtractor(engine SessionEngine, logger *slog.Logger, timeout time.Duration) *MetadataExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &MetadataExtractor{engine: engine, logger: logger, timeout: timeout}
}

// metaProbe evaluates to the first non-empty content attribute among the
// given selectors, or the empty string.
func metaProbe(selectors ...string) string {
	var b strings.Builder
	b.WriteString("() => { const sels = [")
	for i, s := range selectors {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(strconv.Quote(s))
	}
	b.WriteString(`]; for (const s of sels) { const el = document.querySelector(s); if (el) { const v = el.getAttribute('content'); if (v && v.trim()) return v.trim(); } } return ''; }`)
	return b.String()
}

// Extract opens a session on rawurl and harvests metadata.
func (m *MetadataExtractor) Extract(ctx context.Context, rawurl string) VideoMetadata {
	meta := VideoMetadata{
		Title:    "Video",
		SiteName: platform.SiteName(rawurl),
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	sess, err := m.engine.NewSession(Options{})
	if err != nil {
		m.logger.Warn("metadata session failed", "url", rawurl, "error", err)
		return meta
	}
	defer sess.Close()

	if err := sess.Navigate(ctx, rawurl); err != nil {
		m.logger.Warn("metadata navigation failed", "url", rawurl, "error", err)
		return meta
	}

	probe := func(js string) string {
		v, err := sess.Eval(ctx, js)
		if err != nil {
			return ""
		}
		return v.Str()
	}

	if title := probe(metaProbe(`meta[property="og:title"]`, `meta[name="twitter:title"]`)); title != "" {
		meta.Title = title
	} else if title := probe(`() => document.title || ''`); title != "" {
		meta.Title = title
	}
	meta.Description = probe(metaProbe(
		`meta[property="og:description"]`,
		`meta[name="twitter:description"]`,
		`meta[name="description"]`,
	))
	if site := probe(metaProbe(`meta[property="og:site_name"]`)); site != "" {
		meta.SiteName = site
	}
	meta.ThumbnailURL = probe(metaProbe(`meta[property="og:image"]`, `meta[name="twitter:image"]`))
	if raw := probe(metaProbe(
		`meta[property="og:video:duration"]`,
		`meta[property="video:duration"]`,
		`meta[itemprop="duration"]`,
	)); raw != "" {
		meta.Duration = parseDuration(raw)
	}
	return meta
}

var isoDurationRe = regexp.MustCompile(`^PT(?:(\d+)H)?(?:(\d+)M)?(?:(\d+(?:\.\d+)?)S)?$`)

// parseDuration accepts plain seconds or an ISO 8601 PT duration. Anything
// unparseable maps to zero, the absent value.
func parseDuration(raw string) float64 {
	raw = strings.TrimSpace(raw)
	if secs, err := strconv.ParseFloat(raw, 64); err == nil && secs >= 0 {
		return secs
	}
	m := isoDurationRe.FindStringSubmatch(strings.ToUpper(raw))
	if m == nil {
		return 0
	}
	var total float64
	if m[1] != "" {
		h, _ := strconv.ParseFloat(m[1], 64)
		total += h * 3600
	}
	if m[2] != "" {
		min, _ := strconv.ParseFloat(m[2], 64)
		total += min * 60
	}
	if m[3] != "" {
		s, _ := strconv.ParseFloat(m[3], 64)
		total += s
	}
	return total
}
