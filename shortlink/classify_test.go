package shortlink

import "testing"

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

func TestRequesterAutomated(t *testing.T) {
	cases := []struct {
		name string
		req  Requester
		want bool
	}{
		{"empty ua", Requester{}, true},
		{"short cli ua", Requester{UserAgent: "curl/8.0"}, true},
		{"real browser", Requester{UserAgent: chromeUA}, false},
		{"firefox", Requester{UserAgent: "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"}, false},
		{"googlebot", Requester{UserAgent: "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"}, true},
		{"twitterbot", Requester{UserAgent: "Twitterbot/1.0 fetching link preview cards today"}, true},
		{"facebook crawler", Requester{UserAgent: "facebookexternalhit/1.1 (+http://www.facebook.com/externalhit_uatext.php)"}, true},
		{"spider", Requester{UserAgent: "Mozilla/5.0 (compatible; Baiduspider/2.0; +http://www.baidu.com/search/spider.html)"}, true},
		{"long but no browser token", Requester{UserAgent: "SomeCustomAgent/3.1 (analytics pipeline; internal)"}, true},
		{"forced preview overrides browser", Requester{UserAgent: chromeUA, ForcePreview: true}, true},
		{"exactly boundary length", Requester{UserAgent: "chrome-is-not-real-x"}, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.req.Automated(); got != c.want {
				t.Fatalf("Automated() = %v, want %v (ua=%q)", got, c.want, c.req.UserAgent)
			}
		})
	}
}

func TestFormatOffset(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "0:00"},
		{42.9, "0:42"},
		{75, "1:15"},
		{3599, "59:59"},
		{-1, "0:00"},
	}
	for _, c := range cases {
		if got := formatOffset(c.in); got != c.want {
			t.Errorf("formatOffset(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}
