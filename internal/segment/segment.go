package segment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kpai47/katha/internal/timeline"
)

// why segmentation failed
type Reason string

const (
	ReasonMalformedResponse Reason = "malformed-response"
	ReasonEmptyResult       Reason = "empty-result"
	ReasonLLMUnavailable    Reason = "llm-unavailable"
)

// fatal segmentation failure
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("segmentation failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("segmentation failed (%s)", e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// interface for LLM completion backends
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}

// LLM provider
type Provider string

const (
	ProviderGemini    Provider = "gemini"
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// LLM options
type Options struct {
	Model string
}

// creates an LLM client based on provider
func Factory(ctx context.Context, provider Provider, apiKey string, opts Options) (Client, error) {
	switch provider {
	case ProviderGemini:
		return NewGeminiClient(ctx, apiKey, opts)
	case ProviderOpenAI:
		return NewOpenAIClient(apiKey, opts)
	case ProviderAnthropic:
		return NewAnthropicClient(apiKey, opts)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

// one entry of the LLM's production plan
type sceneEntry struct {
	Narration   string `json:"narration"`
	VisualQuery string `json:"visual_query"`
}

// wrapper shape some models insist on returning
type sceneListWrapper struct {
	Scenes []sceneEntry `json:"scenes"`
}

// partitions the narration into scenes with visual queries
type Segmenter struct {
	client Client
}

func NewSegmenter(client Client) *Segmenter {
	return &Segmenter{client: client}
}

// asks the LLM for a production plan and assigns exact scene times.
// A malformed response is retried once with a stricter re-prompt.
func (s *Segmenter) Segment(
	ctx context.Context,
	script string,
	total time.Duration,
) ([]timeline.Scene, error) {
	if strings.TrimSpace(script) == "" {
		return nil, &Error{Reason: ReasonEmptyResult, Err: fmt.Errorf("empty script")}
	}
	if total <= 0 {
		return nil, &Error{Reason: ReasonEmptyResult, Err: fmt.Errorf("non-positive duration %v", total)}
	}

	entries, err := s.request(ctx, buildPrompt(script, total))
	if err != nil {
		var serr *Error
		if !errors.As(err, &serr) || serr.Reason == ReasonLLMUnavailable {
			return nil, err
		}
		// one stricter re-prompt, then give up
		entries, err = s.request(ctx, buildStrictPrompt(script, total))
		if err != nil {
			return nil, err
		}
	}

	scenes := allocateTimes(entries, total)
	if err := timeline.ValidateScenes(scenes, total); err != nil {
		return nil, &Error{Reason: ReasonMalformedResponse, Err: err}
	}
	return scenes, nil
}

func (s *Segmenter) request(ctx context.Context, prompt string) ([]sceneEntry, error) {
	text, err := s.client.Complete(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &Error{Reason: ReasonLLMUnavailable, Err: err}
	}

	entries, err := parseSceneList(text)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// parses and strictly validates the LLM's scene list
func parseSceneList(text string) ([]sceneEntry, error) {
	cleaned := cleanJSONResponse(text)

	var entries []sceneEntry
	if err := json.Unmarshal([]byte(cleaned), &entries); err != nil {
		var wrapper sceneListWrapper
		if werr := json.Unmarshal([]byte(cleaned), &wrapper); werr != nil || wrapper.Scenes == nil {
			return nil, &Error{
				Reason: ReasonMalformedResponse,
				Err:    fmt.Errorf("failed to parse scene list: %w (response: %s)", err, truncateString(cleaned, 200)),
			}
		}
		entries = wrapper.Scenes
	}

	if len(entries) == 0 {
		return nil, &Error{Reason: ReasonEmptyResult}
	}
	for i, e := range entries {
		if strings.TrimSpace(e.Narration) == "" {
			return nil, &Error{
				Reason: ReasonMalformedResponse,
				Err:    fmt.Errorf("scene %d: empty narration", i),
			}
		}
		if strings.TrimSpace(e.VisualQuery) == "" {
			return nil, &Error{
				Reason: ReasonMalformedResponse,
				Err:    fmt.Errorf("scene %d: empty visual query", i),
			}
		}
	}
	return entries, nil
}

// distributes total duration across scenes proportionally to narration
// length. Boundaries are cumulative so consecutive scenes always touch;
// the final scene takes the rounding remainder so the sum is exact.
func allocateTimes(entries []sceneEntry, total time.Duration) []timeline.Scene {
	weights := make([]int, len(entries))
	sum := 0
	for i, e := range entries {
		w := utf8.RuneCountInString(e.Narration)
		if w < 1 {
			w = 1
		}
		weights[i] = w
		sum += w
	}

	scenes := make([]timeline.Scene, len(entries))
	var cursor time.Duration
	for i, e := range entries {
		end := cursor + time.Duration(float64(total)*float64(weights[i])/float64(sum))
		if i == len(entries)-1 {
			end = total
		}
		scenes[i] = timeline.Scene{
			Index:     i,
			Start:     cursor,
			End:       end,
			Narration: strings.TrimSpace(e.Narration),
			Query:     strings.TrimSpace(e.VisualQuery),
		}
		cursor = end
	}
	return scenes
}

func buildPrompt(script string, total time.Duration) string {
	var sb strings.Builder
	sb.WriteString("You are a video director planning visuals for a narrated video. ")
	sb.WriteString("Split the following script into consecutive scenes. ")
	sb.WriteString("Each scene covers one visual idea and its exact narration text. ")
	sb.WriteString("Together the scenes must cover the entire script in order, with no text omitted or reworded. ")
	sb.WriteString("For each scene write a short concrete image/video search query describing what should be on screen. ")
	sb.WriteString("Respond with a JSON array of objects with 'narration' and 'visual_query' fields. ")
	sb.WriteString("Return ONLY the JSON array, no other text or markdown formatting.\n\n")
	fmt.Fprintf(&sb, "Total narration duration: %.1f seconds.\n\nScript:\n%s", total.Seconds(), script)
	return sb.String()
}

// re-prompt used after a malformed response
func buildStrictPrompt(script string, total time.Duration) string {
	var sb strings.Builder
	sb.WriteString("Your previous answer was not valid JSON. ")
	sb.WriteString(buildPrompt(script, total))
	sb.WriteString("\n\nThe response MUST be exactly this shape and nothing else:\n")
	sb.WriteString(`[{"narration": "...", "visual_query": "..."}]`)
	return sb.String()
}

// strips markdown code fences models like to wrap JSON in
func cleanJSONResponse(s string) string {
	s = strings.TrimSpace(s)

	jsonBlockRegex := regexp.MustCompile("```(?:json)?\\s*")
	s = jsonBlockRegex.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "```", "")

	return strings.TrimSpace(s)
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

