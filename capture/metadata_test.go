package capture

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"212", 212},
		{"212.5", 212.5},
		{"PT3M32S", 212},
		{"PT1H2M3S", 3723},
		{"PT45S", 45},
		{"PT2H", 7200},
		{"pt1m30s", 90},
		{"", 0},
		{"soon", 0},
		{"P1DT2H", 0},
		{"-5", 0},
	}
	for _, c := range cases {
		if got := parseDuration(c.in); got != c.want {
			t.Errorf("parseDuration(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

// metaEval answers the extractor's probes from a selector fragment → content
// table.
func metaEval(tags map[string]string) func(js string) (Value, error) {
	return func(js string) (Value, error) {
		for frag, content := range tags {
			if strings.Contains(js, frag) {
				return fakeValue{str: content}, nil
			}
		}
		return fakeValue{}, nil
	}
}

func TestExtractReadsOpenGraphTags(t *testing.T) {
	sess := &fakeSession{onEval: metaEval(map[string]string{
		"og:title":          "Never Gonna Give You Up",
		"og:description":    "Official music video",
		"og:site_name":      "YouTube",
		"og:image":          "https://i.ytimg.com/vi/x/max.jpg",
		"og:video:duration": "212",
	})}
	m := NewMetadataExtractor(&fakeEngine{sess: sess}, testLogger(), 5*time.Second)

	meta := m.Extract(context.Background(), "https://www.youtube.com/watch?v=x")
	if meta.Title != "Never Gonna Give You Up" {
		t.Fatalf("title = %q", meta.Title)
	}
	if meta.Description != "Official music video" {
		t.Fatalf("description = %q", meta.Description)
	}
	if meta.SiteName != "YouTube" {
		t.Fatalf("site name = %q", meta.SiteName)
	}
	if meta.ThumbnailURL != "https://i.ytimg.com/vi/x/max.jpg" {
		t.Fatalf("thumbnail = %q", meta.ThumbnailURL)
	}
	if meta.Duration != 212 {
		t.Fatalf("duration = %v", meta.Duration)
	}
	if sess.closed != 1 {
		t.Fatalf("session closed %d times, want 1", sess.closed)
	}
}

func TestExtractDefaultsWhenPageIsBare(t *testing.T) {
	sess := &fakeSession{}
	m := NewMetadataExtractor(&fakeEngine{sess: sess}, testLogger(), 5*time.Second)

	meta := m.Extract(context.Background(), "https://www.youtube.com/watch?v=x")
	if meta.Title != "Video" {
		t.Fatalf("title = %q, want default", meta.Title)
	}
	if meta.SiteName != "youtube.com" {
		t.Fatalf("site name = %q, want host fallback", meta.SiteName)
	}
	if meta.Duration != 0 {
		t.Fatalf("duration = %v, want 0", meta.Duration)
	}
}

func TestExtractSurvivesNavigationFailure(t *testing.T) {
	sess := &fakeSession{navErr: context.DeadlineExceeded}
	m := NewMetadataExtractor(&fakeEngine{sess: sess}, testLogger(), 5*time.Second)

	meta := m.Extract(context.Background(), "https://vimeo.com/42")
	if meta.Title != "Video" {
		t.Fatalf("title = %q, want default", meta.Title)
	}
	if meta.SiteName != "vimeo.com" {
		t.Fatalf("site name = %q", meta.SiteName)
	}
	if sess.closed != 1 {
		t.Fatalf("session closed %d times, want 1", sess.closed)
	}
}
