package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"time"

	"github.com/google/uuid"
)

// maxImageBytes bounds a downloaded image.
const maxImageBytes = 32 << 20

// Rehoster copies a remote image into the store.
type Rehoster struct {
	store  *S3Store
	http   *http.Client
	prefix string
	now    func() time.Time
}

// NewRehoster creates a Rehoster. A nil httpClient uses a client with a 60s timeout.
func NewRehoster(store *S3Store, httpClient *http.Client) *Rehoster {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Rehoster{store: store, http: httpClient, prefix: "generated", now: time.Now}
}

// Rehost downloads url and uploads it, returning the permanent URL.
func (r *Rehoster) Rehost(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("rehost: build request: %w", err)
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("rehost: download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("rehost: download: unexpected status %d", resp.StatusCode)
	}

	// buffered so the SDK can sign a seekable payload
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return "", fmt.Errorf("rehost: read body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	key := path.Join(r.prefix, r.now().UTC().Format("2006/01/02"), uuid.NewString()+extensionFor(contentType))
	return r.store.Put(ctx, key, bytes.NewReader(data), contentType)
}

func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".png"
	}
	switch mediaType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}
