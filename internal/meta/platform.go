// Package meta derives source platform, author identity, and a representative
// image from a capture URL and whatever markup the scraper retrieved. Every
// lookup degrades to absence; nothing here is fatal to the pipeline.
package meta

import (
	"net/url"
	"strings"
)

// platformHosts maps known hosts to their platform tag. Subdomains of these
// hosts match too (gist.github.com, someone.medium.com).
var platformHosts = map[string]string{
	"twitter.com":          "twitter",
	"x.com":                "twitter",
	"youtube.com":          "youtube",
	"youtu.be":             "youtube",
	"github.com":           "github",
	"gitlab.com":           "gitlab",
	"reddit.com":           "reddit",
	"medium.com":           "medium",
	"linkedin.com":         "linkedin",
	"instagram.com":        "instagram",
	"tiktok.com":           "tiktok",
	"vimeo.com":            "vimeo",
	"twitch.tv":            "twitch",
	"news.ycombinator.com": "hackernews",
	"stackoverflow.com":    "stackoverflow",
	"substack.com":         "substack",
	"dev.to":               "devto",
	"facebook.com":         "facebook",
	"threads.net":          "threads",
	"bsky.app":             "bluesky",
	"mastodon.social":      "mastodon",
	"arxiv.org":            "arxiv",
	"wikipedia.org":        "wikipedia",
}

// multiPartTLDs are second-level registries that make the registrable name
// sit one label deeper (bbc.co.uk -> "bbc", not "co").
var multiPartTLDs = map[string]bool{
	"co.uk":  true,
	"org.uk": true,
	"ac.uk":  true,
	"gov.uk": true,
	"com.au": true,
	"net.au": true,
	"org.au": true,
	"co.jp":  true,
	"co.kr":  true,
	"co.in":  true,
	"com.br": true,
	"com.cn": true,
	"co.nz":  true,
}

// DetectPlatform returns a short tag for the originating site: a known
// platform name, or the cleaned registrable-domain label for everything else.
func DetectPlatform(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "web"
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")

	if tag, ok := platformHosts[host]; ok {
		return tag
	}
	for known, tag := range platformHosts {
		if strings.HasSuffix(host, "."+known) {
			return tag
		}
	}

	return baseDomainLabel(host)
}

// baseDomainLabel reduces a host to its registrable name: "blog.example.co.uk"
// becomes "example".
func baseDomainLabel(host string) string {
	parts := strings.Split(host, ".")
	if len(parts) < 2 {
		return host
	}

	tldParts := 1
	if len(parts) >= 3 {
		lastTwo := strings.Join(parts[len(parts)-2:], ".")
		if multiPartTLDs[lastTwo] {
			tldParts = 2
		}
	}

	idx := len(parts) - tldParts - 1
	if idx < 0 {
		return host
	}
	return parts[idx]
}
