package scrape

import (
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

// skipElements are structural elements whose text is never page content.
var skipElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"iframe":   true,
	"nav":      true,
	"header":   true,
	"footer":   true,
	"aside":    true,
	"template": true,
	"svg":      true,
}

// ExtractText strips markup from an HTML document and returns its visible
// text with whitespace collapsed. Entities are decoded by the tokenizer.
func ExtractText(rawHTML string) string {
	z := html.NewTokenizer(strings.NewReader(rawHTML))

	var b strings.Builder
	depth := 0 // nesting depth inside skipped elements

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return collapseWhitespace(b.String())
		case html.StartTagToken:
			name, _ := z.TagName()
			if skipElements[string(name)] {
				depth++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if skipElements[string(name)] && depth > 0 {
				depth--
			}
		case html.TextToken:
			if depth == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

// extractMainContent runs readability over rendered markup to prefer the
// semantic main-content region, falling back to whole-document extraction.
func extractMainContent(renderedHTML, pageURL string) string {
	u, err := url.Parse(pageURL)
	if err != nil {
		u = nil
	}
	article, err := readability.FromReader(strings.NewReader(renderedHTML), u)
	if err == nil {
		if text := collapseWhitespace(article.TextContent); len(text) >= MinContentLength {
			return text
		}
	}
	return ExtractText(renderedHTML)
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
