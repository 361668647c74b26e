package meta

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const imageLookupTimeout = 10 * time.Second

// placeholderPatterns mark preview images that are site furniture rather
// than content: default share cards, tracking pixels, blank spacers.
var placeholderPatterns = []string{
	"placeholder",
	"default-og",
	"default_og",
	"og-default",
	"gravatar.com/avatar",
	"blank.",
	"spacer.",
	"1x1",
	"pixel.",
	"missing.",
}

var youtubeIDPattern = regexp.MustCompile(`^[\w-]{11}$`)

// Extractor resolves a representative image for a capture. Platform lookups
// may hit the network; everything degrades to "" on failure.
type Extractor struct {
	client         *http.Client
	vimeoOEmbedURL string
}

// NewExtractor creates an image Extractor with default endpoints.
func NewExtractor() *Extractor {
	return &Extractor{
		client:         &http.Client{Timeout: imageLookupTimeout},
		vimeoOEmbedURL: "https://vimeo.com/api/oembed.json",
	}
}

// ExtractImageURL finds a preview image for the page: platform-specific
// lookups first, then generic social preview tags. Never returns an error;
// absence of an image is a normal outcome.
func (e *Extractor) ExtractImageURL(ctx context.Context, rawURL, rawHTML string) string {
	switch DetectPlatform(rawURL) {
	case "youtube":
		if id := youtubeVideoID(rawURL); id != "" {
			return fmt.Sprintf("https://i.ytimg.com/vi/%s/hqdefault.jpg", id)
		}
	case "vimeo":
		if img := e.vimeoThumbnail(ctx, rawURL); img != "" {
			return img
		}
	}
	return socialPreviewImage(rawHTML)
}

// youtubeVideoID pulls the 11-char video id out of watch, shorts, embed, and
// youtu.be URL shapes.
func youtubeVideoID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	var id string
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")

	switch {
	case host == "youtu.be":
		if len(segments) > 0 {
			id = segments[0]
		}
	case u.Query().Get("v") != "":
		id = u.Query().Get("v")
	case len(segments) >= 2 && (segments[0] == "shorts" || segments[0] == "embed" || segments[0] == "live"):
		id = segments[1]
	}

	if !youtubeIDPattern.MatchString(id) {
		return ""
	}
	return id
}

// vimeoThumbnail asks Vimeo's public oEmbed endpoint for the canonical
// thumbnail of a video URL.
func (e *Extractor) vimeoThumbnail(ctx context.Context, videoURL string) string {
	ctx, cancel := context.WithTimeout(ctx, imageLookupTimeout)
	defer cancel()

	endpoint := e.vimeoOEmbedURL + "?url=" + url.QueryEscape(videoURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ""
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var result struct {
		ThumbnailURL string `json:"thumbnail_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return ""
	}
	return result.ThumbnailURL
}

// socialPreviewImage reads og:image / twitter:image tags, rejecting known
// placeholder URLs.
func socialPreviewImage(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	images := map[string]string{}
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "meta" {
			return
		}
		key := strings.ToLower(attr(n, "property"))
		if key == "" {
			key = strings.ToLower(attr(n, "name"))
		}
		if content := attr(n, "content"); content != "" {
			if _, seen := images[key]; !seen {
				images[key] = content
			}
		}
	})

	for _, key := range []string{"og:image", "og:image:url", "twitter:image", "twitter:image:src"} {
		img := images[key]
		if img == "" || isPlaceholderImage(img) {
			continue
		}
		if !strings.HasPrefix(img, "http://") && !strings.HasPrefix(img, "https://") {
			continue
		}
		return img
	}
	return ""
}

func isPlaceholderImage(imgURL string) bool {
	lower := strings.ToLower(imgURL)
	for _, p := range placeholderPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
