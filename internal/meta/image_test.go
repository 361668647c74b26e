package meta

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestYoutubeVideoID(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtu.be/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://youtube.com/shorts/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/embed/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/live/dQw4w9WgXcQ", "dQw4w9WgXcQ"},
		{"https://www.youtube.com/watch?v=short", ""},
		{"https://www.youtube.com/feed/subscriptions", ""},
		{"https://youtu.be/", ""},
	}
	for _, tt := range tests {
		if got := youtubeVideoID(tt.url); got != tt.want {
			t.Errorf("youtubeVideoID(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestExtractImageURLYoutube(t *testing.T) {
	e := NewExtractor()
	got := e.ExtractImageURL(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ", "")
	want := "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestExtractImageURLVimeo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("url"); got != "https://vimeo.com/123456" {
			t.Errorf("oembed url param = %q", got)
		}
		fmt.Fprint(w, `{"thumbnail_url": "https://i.vimeocdn.com/video/abc_640.jpg"}`)
	}))
	defer srv.Close()

	e := &Extractor{client: srv.Client(), vimeoOEmbedURL: srv.URL}
	got := e.ExtractImageURL(context.Background(), "https://vimeo.com/123456", "")
	if got != "https://i.vimeocdn.com/video/abc_640.jpg" {
		t.Errorf("got %q", got)
	}
}

func TestExtractImageURLVimeoFallsBackToMarkup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	html := `<html><head><meta property="og:image" content="https://cdn.example.com/frame.jpg"></head></html>`
	e := &Extractor{client: srv.Client(), vimeoOEmbedURL: srv.URL}
	got := e.ExtractImageURL(context.Background(), "https://vimeo.com/123456", html)
	if got != "https://cdn.example.com/frame.jpg" {
		t.Errorf("got %q", got)
	}
}

func TestSocialPreviewImage(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			"og image",
			`<html><head><meta property="og:image" content="https://example.com/a.jpg"></head></html>`,
			"https://example.com/a.jpg",
		},
		{
			"twitter fallback",
			`<html><head><meta name="twitter:image" content="https://example.com/t.jpg"></head></html>`,
			"https://example.com/t.jpg",
		},
		{
			"og beats twitter",
			`<html><head>
				<meta name="twitter:image" content="https://example.com/t.jpg">
				<meta property="og:image" content="https://example.com/a.jpg">
			</head></html>`,
			"https://example.com/a.jpg",
		},
		{
			"placeholder rejected",
			`<html><head>
				<meta property="og:image" content="https://example.com/default-og.png">
				<meta name="twitter:image" content="https://example.com/real.jpg">
			</head></html>`,
			"https://example.com/real.jpg",
		},
		{
			"relative url rejected",
			`<html><head><meta property="og:image" content="/images/a.jpg"></head></html>`,
			"",
		},
		{
			"no tags",
			`<html><head><title>x</title></head></html>`,
			"",
		},
		{"empty markup", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := socialPreviewImage(tt.html); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsPlaceholderImage(t *testing.T) {
	if !isPlaceholderImage("https://example.com/assets/1x1.gif") {
		t.Error("tracking pixel not flagged")
	}
	if !isPlaceholderImage("https://gravatar.com/avatar/abc") {
		t.Error("gravatar not flagged")
	}
	if isPlaceholderImage("https://example.com/photo.jpg") {
		t.Error("real image flagged")
	}
}
