package shortlink

import "strings"

// Requester is what we know about whoever is resolving a short link.
type Requester struct {
	UserAgent    string
	ForcePreview bool
}

// browserTokens are substrings a real browser UA is expected to carry.
var browserTokens = []string{
	"mozilla", "chrome", "safari", "firefox", "edge", "opera",
}

// botMarkers flag scrapers and link-preview crawlers regardless of how
// browser-like the rest of the UA looks.
var botMarkers = []string{"bot", "crawler", "spider"}

// minBrowserUALen filters out the stubby UAs of CLI tools: real browser
// strings are long.
const minBrowserUALen = 20

// Automated classifies the requester. The default bias is automated: only a
// UA that positively looks like a real browser is treated as human, because
// serving a preview page to a human is a nuisance while redirecting a crawler
// loses the unfurl entirely.
func (r Requester) Automated() bool {
	if r.ForcePreview {
		return true
	}
	if len(r.UserAgent) <= minBrowserUALen {
		return true
	}
	ua := strings.ToLower(r.UserAgent)
	for _, m := range botMarkers {
		if strings.Contains(ua, m) {
			return true
		}
	}
	for _, tok := range browserTokens {
		if strings.Contains(ua, tok) {
			return false
		}
	}
	return true
}
