package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	ffmpegbin "github.com/kpai47/katha/internal/ffmpeg"
)

const (
	pollinationsChatURL = "https://gen.pollinations.ai/v1/chat/completions"
	maxChunkLength      = 300
	maxAttempts         = 3
)

// implements Speaker using the Pollinations openai-audio endpoint
type PollinationsSpeaker struct {
	apiKey string
	voice  string
	client *http.Client
}

func NewPollinationsSpeaker(apiKey string, opts Options) *PollinationsSpeaker {
	voice := opts.Voice
	if voice == "" {
		voice = "alloy"
	}
	return &PollinationsSpeaker{
		apiKey: apiKey,
		voice:  voice,
		client: &http.Client{Timeout: 90 * time.Second},
	}
}

type chatRequest struct {
	Model      string        `json:"model"`
	Messages   []chatMessage `json:"messages"`
	Modalities []string      `json:"modalities"`
	Audio      audioParams   `json:"audio"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type audioParams struct {
	Voice  string `json:"voice"`
	Format string `json:"format"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Audio struct {
				Data string `json:"data"`
			} `json:"audio"`
		} `json:"message"`
	} `json:"choices"`
}

// synthesizes narration, splitting long scripts into chunks and joining
// the resulting audio
func (s *PollinationsSpeaker) Speak(ctx context.Context, text, outputPath string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("empty script")
	}

	chunks := splitScript(text, maxChunkLength)

	if len(chunks) == 1 {
		return s.speakChunk(ctx, chunks[0], outputPath)
	}

	tempDir := filepath.Dir(outputPath)
	base := strings.TrimSuffix(filepath.Base(outputPath), filepath.Ext(outputPath))

	var chunkPaths []string
	defer func() {
		for _, p := range chunkPaths {
			os.Remove(p)
		}
	}()

	for i, chunk := range chunks {
		chunkPath := filepath.Join(tempDir, fmt.Sprintf("%s_chunk_%03d.mp3", base, i))
		if err := s.speakChunk(ctx, chunk, chunkPath); err != nil {
			return fmt.Errorf("chunk %d: %w", i, err)
		}
		chunkPaths = append(chunkPaths, chunkPath)
	}

	return concatAudio(chunkPaths, outputPath)
}

func (s *PollinationsSpeaker) speakChunk(ctx context.Context, text, outputPath string) error {
	payload := chatRequest{
		Model:      "openai-audio",
		Messages:   []chatMessage{{Role: "user", Content: text}},
		Modalities: []string{"text", "audio"},
		Audio:      audioParams{Voice: s.voice, Format: "mp3"},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}

		audioBytes, err := s.requestAudio(ctx, body)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}

		if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
		return os.WriteFile(outputPath, audioBytes, 0644)
	}
	return fmt.Errorf("synthesis failed after %d attempts: %w", maxAttempts, lastErr)
}

func (s *PollinationsSpeaker) requestAudio(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, pollinationsChatURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Audio.Data == "" {
		return nil, fmt.Errorf("no audio data in response")
	}

	audioBytes, err := base64.StdEncoding.DecodeString(parsed.Choices[0].Message.Audio.Data)
	if err != nil {
		return nil, fmt.Errorf("decode audio payload: %w", err)
	}
	if !looksLikeAudio(audioBytes) {
		return nil, fmt.Errorf("response payload is not audio")
	}
	return audioBytes, nil
}

// checks magic bytes so an HTML error page is never saved as narration
func looksLikeAudio(data []byte) bool {
	if len(data) < 1024 {
		return false
	}
	signatures := [][]byte{
		[]byte("ID3"),        // mp3 with ID3 tag
		{0xFF, 0xFB},         // bare mp3 frame
		{0xFF, 0xF3},         // mp3, MPEG-2
		[]byte("RIFF"),       // wav
		[]byte("OggS"),       // ogg
		[]byte("fLaC"),       // flac
	}
	for _, sig := range signatures {
		if bytes.HasPrefix(data, sig) {
			return true
		}
	}
	return false
}

// splits a script at line boundaries, keeping chunks under maxLen where
// possible; bracketed direction lines like [calm tone] start a new chunk
func splitScript(script string, maxLen int) []string {
	var chunks []string
	var current string

	for _, line := range strings.Split(script, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		isDirection := strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]")
		switch {
		case isDirection && current != "":
			chunks = append(chunks, current)
			current = line
		case current != "" && len(current)+len(line) > maxLen:
			chunks = append(chunks, current)
			current = line
		case current == "":
			current = line
		default:
			current += "\n" + line
		}
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	if len(chunks) == 0 {
		chunks = []string{script}
	}
	return chunks
}

// joins mp3 chunks with the concat demuxer
func concatAudio(chunkPaths []string, outputPath string) error {
	listPath := outputPath + ".txt"
	var sb strings.Builder
	for _, p := range chunkPaths {
		fmt.Fprintf(&sb, "file '%s'\n", p)
	}
	if err := os.WriteFile(listPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	defer os.Remove(listPath)

	ffmpegPath, err := ffmpegbin.FFmpegPath()
	if err != nil {
		return err
	}

	err = ffmpeg.Input(listPath, ffmpeg.KwArgs{"f": "concat", "safe": "0"}).
		Output(outputPath, ffmpeg.KwArgs{"c": "copy"}).
		OverWriteOutput().
		SetFfmpegPath(ffmpegPath).
		Run()
	if err != nil {
		return fmt.Errorf("concat failed: %w", err)
	}
	return nil
}
