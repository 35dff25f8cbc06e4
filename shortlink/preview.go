package shortlink

import (
	"bytes"
	"fmt"
	"html/template"
)

// previewData feeds the unfurl page served to crawlers. All URLs are
// absolute; crawlers do not resolve relative references reliably.
type previewData struct {
	Title       string
	Description string
	SiteName    string
	ImageURL    string
	PageURL     string
	TargetURL   string
	Width       int
	Height      int
}

// The preview page is pure metadata plus a visible link for any human who
// lands on it anyway.
var previewTmpl = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<meta property="og:type" content="video.other">
<meta property="og:title" content="{{.Title}}">
{{if .Description}}<meta property="og:description" content="{{.Description}}">
{{end}}<meta property="og:image" content="{{.ImageURL}}">
<meta property="og:image:width" content="{{.Width}}">
<meta property="og:image:height" content="{{.Height}}">
<meta property="og:url" content="{{.PageURL}}">
{{if .SiteName}}<meta property="og:site_name" content="{{.SiteName}}">
{{end}}<meta name="twitter:card" content="summary_large_image">
<meta name="twitter:title" content="{{.Title}}">
<meta name="twitter:image" content="{{.ImageURL}}">
</head>
<body>
<p><a href="{{.TargetURL}}">{{.Title}}</a></p>
</body>
</html>
`))

func renderPreview(d previewData) ([]byte, error) {
	var buf bytes.Buffer
	if err := previewTmpl.Execute(&buf, d); err != nil {
		return nil, fmt.Errorf("shortlink: render preview: %w", err)
	}
	return buf.Bytes(), nil
}

// formatOffset renders seconds as m:ss for preview titles.
func formatOffset(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
