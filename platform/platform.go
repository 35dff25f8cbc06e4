// Package platform encodes per-site knowledge about video platforms: which
// URLs the service accepts, how to deep-link into a timestamp, and where
// public still thumbnails live for the capture fallback path.
package platform

import (
	"fmt"
	"net/url"
	"strings"
)

// Kind identifies a recognized video platform.
type Kind int

const (
	Other Kind = iota
	YouTube
	Vimeo
)

func (k Kind) String() string {
	switch k {
	case YouTube:
		return "youtube"
	case Vimeo:
		return "vimeo"
	default:
		return "other"
	}
}

// supportedDomains lists the hosts the service will open a render session
// for. Subdomains of each entry are accepted too.
var supportedDomains = []string{
	"youtube.com", "youtu.be", "m.youtube.com",
	"vimeo.com", "player.vimeo.com",
	"dailymotion.com", "dai.ly",
	"twitch.tv", "clips.twitch.tv",
	"facebook.com", "fb.watch",
	"instagram.com",
	"tiktok.com",
	"twitter.com", "x.com",
	"streamable.com",
	"wistia.com", "fast.wistia.net",
	"brightcove.com",
	"jwplayer.com",
	"kaltura.com",
}

var videoExtensions = []string{
	".mp4", ".webm", ".ogg", ".avi", ".mov", ".wmv", ".flv", ".mkv",
}

// Supported reports whether rawurl points at a known video platform or a
// direct video file over http(s).
func Supported(rawurl string) bool {
	u, err := url.Parse(rawurl)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := hostOf(u)
	if host == "" {
		return false
	}
	for _, d := range supportedDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	path := strings.ToLower(u.Path)
	for _, ext := range videoExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	return false
}

// Detect classifies rawurl by platform. Unparseable URLs are Other.
func Detect(rawurl string) Kind {
	u, err := url.Parse(rawurl)
	if err != nil {
		return Other
	}
	host := hostOf(u)
	switch {
	case host == "youtu.be" || host == "youtube.com" || strings.HasSuffix(host, ".youtube.com"):
		return YouTube
	case host == "vimeo.com" || strings.HasSuffix(host, ".vimeo.com"):
		return Vimeo
	default:
		return Other
	}
}

// VideoID extracts the platform video identifier, or "" if none is found.
func VideoID(rawurl string) string {
	u, err := url.Parse(rawurl)
	if err != nil {
		return ""
	}
	host := hostOf(u)
	switch {
	case host == "youtu.be":
		return strings.Trim(u.Path, "/")
	case host == "youtube.com" || strings.HasSuffix(host, ".youtube.com"):
		if strings.Contains(u.Path, "watch") {
			return u.Query().Get("v")
		}
		if strings.Contains(u.Path, "embed") || strings.Contains(u.Path, "shorts") {
			return lastSegment(u.Path)
		}
		return u.Query().Get("v")
	default:
		return lastSegment(u.Path)
	}
}

// SeekURL appends the platform's timestamp convention to rawurl, for
// platforms known to honor one: YouTube uses a t=Ns query parameter, Vimeo a
// #t=Ns fragment. Other platforms, and non-positive timestamps, return the
// URL unchanged.
func SeekURL(rawurl string, seconds float64) string {
	if seconds <= 0 {
		return rawurl
	}
	switch Detect(rawurl) {
	case YouTube:
		sep := "?"
		if strings.Contains(rawurl, "?") {
			sep = "&"
		}
		return fmt.Sprintf("%s%st=%ds", rawurl, sep, int(seconds))
	case Vimeo:
		return fmt.Sprintf("%s#t=%ds", rawurl, int(seconds))
	default:
		return rawurl
	}
}

// ThumbnailCandidates returns public still-thumbnail URLs for rawurl, best
// quality first. Empty when the platform has no known thumbnail endpoint.
func ThumbnailCandidates(rawurl string) []string {
	id := VideoID(rawurl)
	if id == "" {
		return nil
	}
	switch Detect(rawurl) {
	case YouTube:
		return []string{
			"https://img.youtube.com/vi/" + id + "/maxresdefault.jpg",
			"https://img.youtube.com/vi/" + id + "/hqdefault.jpg",
		}
	case Vimeo:
		return []string{
			"https://vumbnail.com/" + id + ".jpg",
		}
	default:
		return nil
	}
}

// SiteName returns the host of rawurl without a www. prefix, the fallback
// used when a page exposes no og:site_name.
func SiteName(rawurl string) string {
	u, err := url.Parse(rawurl)
	if err != nil || u.Host == "" {
		return "Unknown"
	}
	return hostOf(u)
}

func hostOf(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

func lastSegment(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return ""
	}
	parts := strings.Split(path, "/")
	return parts[len(parts)-1]
}
