package align

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/kpai47/katha/internal/audio"
	"github.com/kpai47/katha/internal/timeline"
)

// implements Aligner using the OpenAI Audio API with word timestamps
type OpenAIAligner struct {
	client  openai.Client
	model   string
	options Options
}

// word entry from the verbose_json response
type whisperWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// verbose_json response structure from Whisper
type whisperVerboseResponse struct {
	Text     string        `json:"text"`
	Words    []whisperWord `json:"words"`
	Language string        `json:"language"`
	Duration float64       `json:"duration"`
}

func NewOpenAIAligner(apiKey string, opts Options) (*OpenAIAligner, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client := openai.NewClient(option.WithAPIKey(apiKey))

	model := opts.Model
	if model == "" {
		model = "whisper-1"
	}

	return &OpenAIAligner{
		client:  client,
		model:   model,
		options: opts,
	}, nil
}

// produces word-level timings for the narration audio
func (a *OpenAIAligner) Align(
	ctx context.Context,
	audioPath, knownScript string,
) (*Result, error) {
	if _, err := os.Stat(audioPath); os.IsNotExist(err) {
		return nil, &Error{Reason: ReasonAudioUnreadable, Err: fmt.Errorf("audio file not found: %s", audioPath)}
	}

	file, err := os.Open(audioPath)
	if err != nil {
		return nil, &Error{Reason: ReasonAudioUnreadable, Err: err}
	}
	defer file.Close()

	params := openai.AudioTranscriptionNewParams{
		File:                   file,
		Model:                  openai.AudioModel(a.model),
		ResponseFormat:         openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []string{"word"},
	}

	if a.options.Language != "" {
		params.Language = openai.String(a.options.Language)
	}

	// the known script doubles as a recognition hint
	if knownScript != "" {
		params.Prompt = openai.String(truncatePrompt(knownScript, 800))
	}

	resp, err := a.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, &Error{Reason: ReasonBackendUnavailable, Err: err}
	}

	words, backendDuration, err := parseWhisperWords(resp.RawJSON())
	if err != nil {
		return nil, &Error{Reason: ReasonBackendUnavailable, Err: err}
	}
	if len(words) == 0 {
		return nil, &Error{Reason: ReasonNoSpeech}
	}

	if knownScript != "" {
		words = ForceAlign(words, knownScript)
		if len(words) == 0 {
			return nil, &Error{Reason: ReasonNoSpeech, Err: fmt.Errorf("no backend word matched the known script")}
		}
	}

	total := backendDuration
	if probed, err := audio.GetDuration(audioPath); err == nil && probed > 0 {
		total = probed
	}
	if total == 0 {
		total = words[len(words)-1].End
	}

	return &Result{
		Words:         words,
		TotalDuration: total,
	}, nil
}

// extracts timed words from a Whisper verbose_json payload
func parseWhisperWords(rawJSON string) ([]timeline.Word, time.Duration, error) {
	var verbose whisperVerboseResponse
	if err := json.Unmarshal([]byte(rawJSON), &verbose); err != nil {
		return nil, 0, fmt.Errorf("failed to parse verbose_json response: %w", err)
	}

	words := make([]timeline.Word, 0, len(verbose.Words))
	for _, w := range verbose.Words {
		text := strings.TrimSpace(w.Word)
		if text == "" || w.End <= w.Start {
			continue
		}
		words = append(words, timeline.Word{
			Text:  text,
			Start: time.Duration(w.Start * float64(time.Second)),
			End:   time.Duration(w.End * float64(time.Second)),
		})
	}

	return words, time.Duration(verbose.Duration * float64(time.Second)), nil
}

func truncatePrompt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
