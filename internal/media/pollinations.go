package media

import (
	"context"
	"fmt"
	"net/url"

	"github.com/kpai47/katha/internal/timeline"
)

const pollinationsImageURL = "https://image.pollinations.ai/prompt/"

// AI image generation via Pollinations. Search is free here: the image
// is generated on demand when the URL is fetched, so a single candidate
// is synthesized per query.
type PollinationsProvider struct {
	model       string
	orientation timeline.Orientation
}

func NewPollinationsProvider(model string, orientation timeline.Orientation) *PollinationsProvider {
	if model == "" {
		model = "flux"
	}
	return &PollinationsProvider{
		model:       model,
		orientation: orientation,
	}
}

func (p *PollinationsProvider) Name() timeline.MediaSource { return timeline.SourcePollinations }

func (p *PollinationsProvider) Search(ctx context.Context, query string, count int) ([]Candidate, error) {
	if query == "" {
		return nil, &PermanentError{Err: fmt.Errorf("pollinations: empty prompt")}
	}

	width, height := p.orientation.Resolution()
	params := url.Values{}
	params.Set("model", p.model)
	params.Set("width", fmt.Sprintf("%d", width))
	params.Set("height", fmt.Sprintf("%d", height))
	params.Set("nologo", "true")

	generated := pollinationsImageURL + url.PathEscape(query) + "?" + params.Encode()

	return []Candidate{{
		URL:         generated,
		Kind:        timeline.MediaImage,
		Orientation: p.orientation,
	}}, nil
}
