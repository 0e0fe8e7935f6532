package ingest

import (
	"net/url"
	"strings"

	"dossier/api/internal/report"
)

var profileURLPatterns = map[string]string{
	"twitter":   "https://twitter.com/%s",
	"x":         "https://x.com/%s",
	"instagram": "https://www.instagram.com/%s",
	"facebook":  "https://www.facebook.com/%s",
	"linkedin":  "https://www.linkedin.com/in/%s",
	"github":    "https://github.com/%s",
	"tiktok":    "https://www.tiktok.com/@%s",
	"youtube":   "https://www.youtube.com/@%s",
	"reddit":    "https://www.reddit.com/user/%s",
	"telegram":  "https://t.me/%s",
}

// profileURL synthesizes the canonical profile URL for handle on platform.
// Unknown platforms yield nil and keep the handle only.
func profileURL(platform, handle string) *string {
	pattern, ok := profileURLPatterns[strings.ToLower(strings.TrimSpace(platform))]
	if !ok {
		return nil
	}
	h := strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if h == "" {
		return nil
	}
	return report.String(strings.Replace(pattern, "%s", url.PathEscape(h), 1))
}
