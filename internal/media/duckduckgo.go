package media

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/kpai47/katha/internal/timeline"
)

const (
	ddgHomeURL   = "https://duckduckgo.com/"
	ddgImagesURL = "https://duckduckgo.com/i.js"
)

// the image endpoint requires a per-query vqd token embedded in the
// search page
var vqdRegex = regexp.MustCompile(`vqd=['"]?([\d-]+)['"]?`)

// general image search scraped from DuckDuckGo
type DuckDuckGoProvider struct {
	client *http.Client
}

type ddgResult struct {
	Image     string `json:"image"`
	Thumbnail string `json:"thumbnail"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type ddgResponse struct {
	Results []ddgResult `json:"results"`
}

func NewDuckDuckGoProvider() *DuckDuckGoProvider {
	return &DuckDuckGoProvider{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *DuckDuckGoProvider) Name() timeline.MediaSource { return timeline.SourceDuckDuckGo }

func (p *DuckDuckGoProvider) Search(ctx context.Context, query string, count int) ([]Candidate, error) {
	vqd, err := p.fetchToken(ctx, query)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("l", "us-en")
	params.Set("o", "json")
	params.Set("q", query)
	params.Set("vqd", vqd)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ddgImagesURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &PermanentError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("User-Agent", browserUserAgent)
	req.Header.Set("Referer", ddgHomeURL)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, requestError("duckduckgo", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("duckduckgo", resp.StatusCode)
	}

	var parsed ddgResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &PermanentError{Err: fmt.Errorf("duckduckgo: decode response: %w", err)}
	}

	candidates := make([]Candidate, 0, count)
	for _, r := range parsed.Results {
		link := r.Image
		if link == "" {
			link = r.Thumbnail
		}
		if link == "" {
			continue
		}
		candidates = append(candidates, Candidate{
			URL:         link,
			Kind:        timeline.MediaImage,
			Orientation: orientationFromSize(r.Width, r.Height),
		})
		if len(candidates) == count {
			break
		}
	}
	return candidates, nil
}

func (p *DuckDuckGoProvider) fetchToken(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("iax", "images")
	params.Set("ia", "images")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ddgHomeURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", &PermanentError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", requestError("duckduckgo", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", statusError("duckduckgo", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", requestError("duckduckgo", err)
	}

	m := vqdRegex.FindSubmatch(body)
	if m == nil {
		return "", &PermanentError{Err: fmt.Errorf("duckduckgo: vqd token not found")}
	}
	return string(m[1]), nil
}
