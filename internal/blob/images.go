package blob

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"
)

const (
	imageFetchTimeout = 10 * time.Second
	maxImageSize      = 5 << 20 // 5MB
)

// ImageStore is the subset of Store the fetcher needs.
type ImageStore interface {
	Put(filename string, data []byte, contentType string) (string, error)
}

// ImageFetcher downloads a discovered preview image and persists a copy, so
// captures never depend on a remote image staying alive.
type ImageFetcher struct {
	store  ImageStore
	client *http.Client
}

// NewImageFetcher creates an ImageFetcher writing into store.
func NewImageFetcher(store ImageStore) *ImageFetcher {
	return &ImageFetcher{
		store:  store,
		client: &http.Client{Timeout: imageFetchTimeout},
	}
}

// FetchAndStore downloads imageURL and stores it under a filename derived
// from the capture id, returning the stored copy's public URL.
func (f *ImageFetcher) FetchAndStore(ctx context.Context, captureID, imageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("building image request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image fetch: HTTP %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if !strings.HasPrefix(mediaType, "image/") {
		return "", fmt.Errorf("unexpected image content type %q", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
	if err != nil {
		return "", fmt.Errorf("reading image: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("empty image body")
	}

	filename := captureID + extensionFor(mediaType)
	return f.store.Put(filename, data, mediaType)
}

func extensionFor(mediaType string) string {
	switch mediaType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	default:
		return ".img"
	}
}
