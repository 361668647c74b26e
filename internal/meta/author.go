package meta

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// reservedPaths are leading path segments that look like handles but never
// identify a person.
var reservedPaths = map[string]bool{
	"home": true, "search": true, "explore": true, "notifications": true,
	"settings": true, "messages": true, "login": true, "signup": true,
	"about": true, "help": true, "terms": true, "privacy": true,
	"trending": true, "hashtag": true, "intent": true, "i": true,
	"features": true, "topics": true, "marketplace": true, "orgs": true,
	"sponsors": true, "collections": true, "pricing": true, "blog": true,
	"p": true, "reel": true, "reels": true, "stories": true, "watch": true,
	"shorts": true, "channel": true, "playlist": true, "results": true,
	"share": true, "embed": true, "tag": true, "tags": true,
}

// authorMetaNames are <meta> name/property/itemprop values checked in order.
var authorMetaNames = []string{
	"author",
	"article:author",
	"parsely-author",
	"twitter:creator",
	"dc.creator",
	"sailthru.author",
}

var bylinePattern = regexp.MustCompile(`[Bb]y[:\s]+([A-Z][\w.'-]*(?:\s+[A-Z][\w.'-]*){0,3})`)

// ExtractAuthor derives an author identity from URL conventions and markup.
// Returns "" when no credible author is found. Priority: URL path handles,
// head metadata, JSON-LD structured data, byline heuristics.
func ExtractAuthor(rawHTML, rawURL string) string {
	if a := authorFromURL(rawURL); a != "" {
		return a
	}

	if rawHTML == "" {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return ""
	}

	if a := sanitizeAuthor(authorFromMetaTags(doc)); a != "" {
		return a
	}
	if a := sanitizeAuthor(authorFromJSONLD(doc)); a != "" {
		return a
	}
	return sanitizeAuthor(authorFromByline(doc))
}

// authorFromURL interprets platform-specific path conventions as handles.
func authorFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return ""
	}
	first := segments[0]

	switch DetectPlatform(rawURL) {
	case "twitter":
		if !reservedPaths[strings.ToLower(first)] {
			return sanitizeAuthor("@" + first)
		}
	case "github":
		if !reservedPaths[strings.ToLower(first)] {
			return sanitizeAuthor(first)
		}
	case "medium":
		if strings.HasPrefix(first, "@") {
			return sanitizeAuthor(first)
		}
	case "tiktok", "youtube", "threads":
		if strings.HasPrefix(first, "@") {
			return sanitizeAuthor(first)
		}
		if first == "user" || first == "c" {
			if len(segments) > 1 {
				return sanitizeAuthor(segments[1])
			}
		}
	case "reddit":
		if (first == "user" || first == "u") && len(segments) > 1 {
			return sanitizeAuthor("u/" + segments[1])
		}
	case "instagram":
		if !reservedPaths[strings.ToLower(first)] {
			return sanitizeAuthor("@" + first)
		}
	case "substack":
		// name.substack.com: the subdomain is the author.
		host := strings.ToLower(u.Hostname())
		if sub, ok := strings.CutSuffix(host, ".substack.com"); ok && sub != "www" && sub != "" {
			return sanitizeAuthor(sub)
		}
	}
	return ""
}

func authorFromMetaTags(doc *html.Node) string {
	metas := map[string]string{}
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "meta" {
			return
		}
		key := attr(n, "name")
		if key == "" {
			key = attr(n, "property")
		}
		if key == "" {
			key = attr(n, "itemprop")
		}
		key = strings.ToLower(key)
		if content := attr(n, "content"); key != "" && content != "" {
			if _, seen := metas[key]; !seen {
				metas[key] = content
			}
		}
	})

	for _, name := range authorMetaNames {
		if v, ok := metas[name]; ok {
			return v
		}
	}
	return ""
}

// authorFromJSONLD searches ld+json blocks for an author or creator field,
// descending into arrays and @graph nests.
func authorFromJSONLD(doc *html.Node) string {
	var found string
	walk(doc, func(n *html.Node) {
		if found != "" || n.Type != html.ElementNode || n.Data != "script" {
			return
		}
		if attr(n, "type") != "application/ld+json" {
			return
		}
		if n.FirstChild == nil {
			return
		}
		var data any
		if err := json.Unmarshal([]byte(n.FirstChild.Data), &data); err != nil {
			return
		}
		found = jsonLDAuthor(data, 0)
	})
	return found
}

func jsonLDAuthor(v any, depth int) string {
	if depth > 6 {
		return ""
	}
	switch val := v.(type) {
	case map[string]any:
		for _, key := range []string{"author", "creator"} {
			if a, ok := val[key]; ok {
				if name := jsonLDName(a, depth+1); name != "" {
					return name
				}
			}
		}
		if graph, ok := val["@graph"]; ok {
			return jsonLDAuthor(graph, depth+1)
		}
	case []any:
		for _, item := range val {
			if name := jsonLDAuthor(item, depth+1); name != "" {
				return name
			}
		}
	}
	return ""
}

func jsonLDName(v any, depth int) string {
	if depth > 6 {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		if name, ok := val["name"].(string); ok {
			return name
		}
	case []any:
		for _, item := range val {
			if name := jsonLDName(item, depth+1); name != "" {
				return name
			}
		}
	}
	return ""
}

// authorFromByline falls back to byline class names and "By X" text patterns.
func authorFromByline(doc *html.Node) string {
	var byClass string
	walk(doc, func(n *html.Node) {
		if byClass != "" || n.Type != html.ElementNode {
			return
		}
		class := strings.ToLower(attr(n, "class") + " " + attr(n, "rel"))
		if strings.Contains(class, "byline") || strings.Contains(class, "author") {
			byClass = nodeText(n)
		}
	})
	if byClass != "" {
		if m := bylinePattern.FindStringSubmatch(byClass); m != nil {
			return m[1]
		}
		return strings.TrimPrefix(strings.TrimPrefix(byClass, "By "), "by ")
	}

	var bodyText strings.Builder
	walk(doc, func(n *html.Node) {
		if n.Type == html.TextNode && bodyText.Len() < 4096 {
			bodyText.WriteString(n.Data)
			bodyText.WriteByte(' ')
		}
	})
	if m := bylinePattern.FindStringSubmatch(bodyText.String()); m != nil {
		return m[1]
	}
	return ""
}

// sanitizeAuthor cleans an extracted name and rejects implausible values.
func sanitizeAuthor(raw string) string {
	s := html.UnescapeString(raw)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, " \t|,;:-")

	if s == "" {
		return ""
	}
	lower := strings.ToLower(s)
	if strings.Contains(lower, "://") || strings.HasPrefix(lower, "www.") {
		return ""
	}
	if n := len(s); n < 2 || n > 100 {
		return ""
	}
	return s
}

// --- small DOM helpers ---

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
			b.WriteByte(' ')
		}
	})
	return strings.Join(strings.Fields(b.String()), " ")
}
