package media

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kpai47/katha/internal/timeline"
)

const (
	pexelsPhotoURL = "https://api.pexels.com/v1/search"
	pexelsVideoURL = "https://api.pexels.com/videos/search"
)

// stock photo/video search via the Pexels API
type PexelsProvider struct {
	apiKey      string
	client      *http.Client
	orientation timeline.Orientation
	videos      bool // search stock footage instead of photos
}

type pexelsPhoto struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	Src    struct {
		Large string `json:"large"`
	} `json:"src"`
}

type pexelsVideoFile struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Link   string `json:"link"`
}

type pexelsVideo struct {
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	VideoFiles []pexelsVideoFile `json:"video_files"`
}

type pexelsResponse struct {
	Photos []pexelsPhoto `json:"photos"`
	Videos []pexelsVideo `json:"videos"`
}

func NewPexelsProvider(apiKey string, orientation timeline.Orientation, videos bool) (*PexelsProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	return &PexelsProvider{
		apiKey:      apiKey,
		client:      &http.Client{Timeout: 30 * time.Second},
		orientation: orientation,
		videos:      videos,
	}, nil
}

func (p *PexelsProvider) Name() timeline.MediaSource { return timeline.SourcePexels }

func (p *PexelsProvider) Search(ctx context.Context, query string, count int) ([]Candidate, error) {
	endpoint := pexelsPhotoURL
	if p.videos {
		endpoint = pexelsVideoURL
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("per_page", strconv.Itoa(count))
	params.Set("orientation", string(p.orientation))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &PermanentError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Authorization", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, requestError("pexels", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError("pexels", resp.StatusCode)
	}

	var parsed pexelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &PermanentError{Err: fmt.Errorf("pexels: decode response: %w", err)}
	}

	if p.videos {
		return videoCandidates(parsed.Videos), nil
	}
	return photoCandidates(parsed.Photos), nil
}

func photoCandidates(photos []pexelsPhoto) []Candidate {
	out := make([]Candidate, 0, len(photos))
	for _, ph := range photos {
		if ph.Src.Large == "" {
			continue
		}
		out = append(out, Candidate{
			URL:         ph.Src.Large,
			Kind:        timeline.MediaImage,
			Orientation: orientationFromSize(ph.Width, ph.Height),
		})
	}
	return out
}

func videoCandidates(videos []pexelsVideo) []Candidate {
	out := make([]Candidate, 0, len(videos))
	for _, v := range videos {
		if len(v.VideoFiles) == 0 {
			continue
		}
		file := v.VideoFiles[0]
		out = append(out, Candidate{
			URL:         file.Link,
			Kind:        timeline.MediaClip,
			Orientation: orientationFromSize(v.Width, v.Height),
		})
	}
	return out
}

func orientationFromSize(width, height int) timeline.Orientation {
	if height > width {
		return timeline.OrientationPortrait
	}
	return timeline.OrientationLandscape
}
