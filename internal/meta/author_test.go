package meta

import "testing"

func TestAuthorFromURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"twitter handle", "https://twitter.com/gopher/status/123", "@gopher"},
		{"twitter reserved", "https://twitter.com/search?q=go", ""},
		{"github user", "https://github.com/gopher/repo", "gopher"},
		{"github reserved", "https://github.com/orgs/golang", ""},
		{"medium handle", "https://medium.com/@gopher/post-abc", "@gopher"},
		{"medium publication", "https://medium.com/better-programming/post", ""},
		{"youtube handle", "https://youtube.com/@gopher", "@gopher"},
		{"youtube watch", "https://www.youtube.com/watch?v=abc12345678", ""},
		{"reddit user", "https://reddit.com/user/gopher", "u/gopher"},
		{"reddit post", "https://reddit.com/r/golang/comments/1/abc", ""},
		{"instagram", "https://instagram.com/gopher", "@gopher"},
		{"instagram reel", "https://instagram.com/reel/abc", ""},
		{"substack subdomain", "https://gopher.substack.com/p/post", "gopher"},
		{"plain site", "https://example.com/articles/1", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := authorFromURL(tt.url); got != tt.want {
				t.Errorf("authorFromURL(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestExtractAuthorFromMetaTags(t *testing.T) {
	html := `<html><head>
		<meta name="description" content="a page">
		<meta name="author" content="Jane Writer">
		<meta name="twitter:creator" content="@janew">
	</head><body></body></html>`

	if got := ExtractAuthor(html, "https://example.com/post"); got != "Jane Writer" {
		t.Errorf("got %q, want meta author", got)
	}
}

func TestExtractAuthorFromJSONLD(t *testing.T) {
	html := `<html><head>
		<script type="application/ld+json">
		{"@context": "https://schema.org", "@type": "Article",
		 "author": {"@type": "Person", "name": "Sam Author"}}
		</script>
	</head><body></body></html>`

	if got := ExtractAuthor(html, "https://example.com/post"); got != "Sam Author" {
		t.Errorf("got %q, want JSON-LD author", got)
	}
}

func TestExtractAuthorFromJSONLDGraph(t *testing.T) {
	html := `<html><head>
		<script type="application/ld+json">
		{"@graph": [{"@type": "WebPage"}, {"@type": "Article", "author": [{"name": "Graph Person"}]}]}
		</script>
	</head><body></body></html>`

	if got := ExtractAuthor(html, "https://example.com/post"); got != "Graph Person" {
		t.Errorf("got %q, want graph author", got)
	}
}

func TestExtractAuthorFromByline(t *testing.T) {
	html := `<html><body>
		<div class="article-byline">By Chris Reporter</div>
		<p>Body text.</p>
	</body></html>`

	if got := ExtractAuthor(html, "https://example.com/post"); got != "Chris Reporter" {
		t.Errorf("got %q, want byline author", got)
	}
}

func TestExtractAuthorURLBeatsMarkup(t *testing.T) {
	html := `<html><head><meta name="author" content="Someone Else"></head></html>`

	if got := ExtractAuthor(html, "https://github.com/gopher/repo"); got != "gopher" {
		t.Errorf("got %q, URL convention should win", got)
	}
}

func TestExtractAuthorNothingFound(t *testing.T) {
	if got := ExtractAuthor("<html><body><p>No author here.</p></body></html>", "https://example.com"); got != "" {
		t.Errorf("got %q, want empty", got)
	}
	if got := ExtractAuthor("", "https://example.com"); got != "" {
		t.Errorf("empty markup: got %q, want empty", got)
	}
}

func TestSanitizeAuthor(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Jane   Writer  ", "Jane Writer"},
		{"Jane &amp; Co", "Jane & Co"},
		{"https://example.com/jane", ""},
		{"www.example.com", ""},
		{"J", ""},
		{"", ""},
		{"| Jane -", "Jane"},
	}
	for _, tt := range tests {
		if got := sanitizeAuthor(tt.in); got != tt.want {
			t.Errorf("sanitizeAuthor(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
