package media

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// some hosts refuse requests without a browser user agent
const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// interface for downloading a selected candidate to a local file
type Fetcher interface {
	// baseName names the file (an extension is derived from the response)
	Fetch(ctx context.Context, url, baseName string) (string, error)
}

// downloads candidates over HTTP into a per-run directory
type HTTPFetcher struct {
	client  *http.Client
	destDir string
}

func NewHTTPFetcher(destDir string) *HTTPFetcher {
	return &HTTPFetcher{
		client:  &http.Client{Timeout: 60 * time.Second},
		destDir: destDir,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url, baseName string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &PermanentError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", requestError("fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError("fetch", resp.StatusCode)
	}

	ext, err := extensionFor(resp.Header.Get("Content-Type"), url)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(f.destDir, 0755); err != nil {
		return "", fmt.Errorf("create media directory: %w", err)
	}

	outPath := filepath.Join(f.destDir, baseName+ext)
	tmpPath := outPath + ".part"

	out, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("create media file: %w", err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		os.Remove(tmpPath)
		return "", requestError("fetch", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close media file: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("finalize media file: %w", err)
	}
	return outPath, nil
}

// maps the response content type (or failing that, the URL) to a file
// extension. SVG is rejected outright: renderers cannot rasterize it.
func extensionFor(contentType, url string) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)

	if strings.Contains(mediaType, "svg") {
		return "", &PermanentError{Err: fmt.Errorf("svg media is not supported: %s", url)}
	}

	switch mediaType {
	case "image/jpeg":
		return ".jpg", nil
	case "image/png":
		return ".png", nil
	case "image/gif":
		return ".gif", nil
	case "image/webp":
		return ".webp", nil
	case "video/mp4":
		return ".mp4", nil
	case "video/webm":
		return ".webm", nil
	case "video/quicktime":
		return ".mov", nil
	}

	lower := strings.ToLower(url)
	for _, ext := range []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".mp4", ".webm", ".mov"} {
		if strings.Contains(lower, ext) {
			if ext == ".jpeg" {
				return ".jpg", nil
			}
			return ext, nil
		}
	}
	if strings.Contains(lower, ".svg") {
		return "", &PermanentError{Err: fmt.Errorf("svg media is not supported: %s", url)}
	}

	// ambiguous; most search results are photos
	return ".jpg", nil
}
