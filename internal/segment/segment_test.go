package segment

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kpai47/katha/internal/timeline"
)

// scripted fake LLM client
type fakeClient struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (f *fakeClient) Name() string { return "fake" }

func (f *fakeClient) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	return f.responses[idx], nil
}

const validPlan = `[
	{"narration": "A dog runs in the park.", "visual_query": "dog running park"},
	{"narration": "A cat sleeps on a couch.", "visual_query": "cat sleeping couch"}
]`

func TestSegmentProportionalAllocation(t *testing.T) {
	s := NewSegmenter(&fakeClient{responses: []string{validPlan}})
	total := 10 * time.Second

	scenes, err := s.Segment(context.Background(), "A dog runs in the park. A cat sleeps on a couch.", total)
	if err != nil {
		t.Fatalf("Segment() error: %v", err)
	}
	if len(scenes) != 2 {
		t.Fatalf("got %d scenes, want 2", len(scenes))
	}

	// weights are narration rune counts: 23 and 24
	wantFirst := time.Duration(float64(total) * 23.0 / 47.0)
	if scenes[0].End != wantFirst {
		t.Errorf("scene 0 end = %v, want %v", scenes[0].End, wantFirst)
	}
	if scenes[1].Start != scenes[0].End {
		t.Errorf("scene 1 start %v != scene 0 end %v", scenes[1].Start, scenes[0].End)
	}
	// remainder goes to the last scene: sum is exact, not approximate
	if scenes[1].End != total {
		t.Errorf("scene 1 end = %v, want exactly %v", scenes[1].End, total)
	}
	if scenes[0].Query != "dog running park" {
		t.Errorf("scene 0 query = %q", scenes[0].Query)
	}
}

func TestSegmentAllocationPinnedSplit(t *testing.T) {
	// narrations of 10 and 9 runes over 10s must split at exactly
	// 5.263157894s, with the remainder folded into the last scene
	plan := `[
		{"narration": "ten runes!", "visual_query": "first"},
		{"narration": "nine rune", "visual_query": "second"}
	]`
	s := NewSegmenter(&fakeClient{responses: []string{plan}})

	scenes, err := s.Segment(context.Background(), "ten runes! nine rune", 10*time.Second)
	if err != nil {
		t.Fatalf("Segment() error: %v", err)
	}
	if len(scenes) != 2 {
		t.Fatalf("got %d scenes, want 2", len(scenes))
	}

	const boundary = 5263157894 * time.Nanosecond
	if scenes[0].End != boundary {
		t.Errorf("scene 0 end = %d, want %d", scenes[0].End, boundary)
	}
	if scenes[1].Start != boundary {
		t.Errorf("scene 1 start = %d, want %d", scenes[1].Start, boundary)
	}
	if scenes[1].End != 10*time.Second {
		t.Errorf("scene 1 end = %v, want exactly 10s", scenes[1].End)
	}
	if got := scenes[1].Duration(); got != 4736842106*time.Nanosecond {
		t.Errorf("scene 1 duration = %d, want 4736842106", got)
	}
}

func TestSegmentAllocationIsDeterministic(t *testing.T) {
	total := 10 * time.Second
	first, err := NewSegmenter(&fakeClient{responses: []string{validPlan}}).
		Segment(context.Background(), "script", total)
	if err != nil {
		t.Fatal(err)
	}
	second, err := NewSegmenter(&fakeClient{responses: []string{validPlan}}).
		Segment(context.Background(), "script", total)
	if err != nil {
		t.Fatal(err)
	}
	for i := range first {
		if first[i].Start != second[i].Start || first[i].End != second[i].End {
			t.Errorf("scene %d boundaries differ across runs", i)
		}
	}
}

func TestSegmentRetriesWithStricterPrompt(t *testing.T) {
	client := &fakeClient{responses: []string{"sorry, here you go:", validPlan}}
	s := NewSegmenter(client)

	scenes, err := s.Segment(context.Background(), "script", 10*time.Second)
	if err != nil {
		t.Fatalf("Segment() error: %v", err)
	}
	if client.calls != 2 {
		t.Errorf("calls = %d, want 2", client.calls)
	}
	if len(scenes) != 2 {
		t.Errorf("got %d scenes", len(scenes))
	}
	if client.prompts[0] == client.prompts[1] {
		t.Error("second prompt should be stricter than the first")
	}
}

func TestSegmentSecondFailureSurfacesError(t *testing.T) {
	client := &fakeClient{responses: []string{"garbage", "more garbage"}}
	_, err := NewSegmenter(client).Segment(context.Background(), "script", 10*time.Second)

	var serr *Error
	if !errors.As(err, &serr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if serr.Reason != ReasonMalformedResponse {
		t.Errorf("reason = %s, want %s", serr.Reason, ReasonMalformedResponse)
	}
	if client.calls != 2 {
		t.Errorf("calls = %d, want exactly 2", client.calls)
	}
}

func TestSegmentUnavailableBackendNotRetried(t *testing.T) {
	client := &fakeClient{err: fmt.Errorf("connection refused")}
	_, err := NewSegmenter(client).Segment(context.Background(), "script", 10*time.Second)

	var serr *Error
	if !errors.As(err, &serr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if serr.Reason != ReasonLLMUnavailable {
		t.Errorf("reason = %s, want %s", serr.Reason, ReasonLLMUnavailable)
	}
	if client.calls != 1 {
		t.Errorf("calls = %d, want 1", client.calls)
	}
}

func TestParseSceneList(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantCount  int
		wantErr    bool
		wantReason Reason
	}{
		{
			name:      "plain array",
			input:     validPlan,
			wantCount: 2,
		},
		{
			name:      "code fenced",
			input:     "```json\n" + validPlan + "\n```",
			wantCount: 2,
		},
		{
			name:      "wrapper object with scenes key",
			input:     `{"scenes": [{"narration": "text", "visual_query": "query"}]}`,
			wantCount: 1,
		},
		{
			name:       "empty list",
			input:      `[]`,
			wantErr:    true,
			wantReason: ReasonEmptyResult,
		},
		{
			name:       "not json",
			input:      "I could not do that.",
			wantErr:    true,
			wantReason: ReasonMalformedResponse,
		},
		{
			name:       "missing visual query",
			input:      `[{"narration": "text", "visual_query": ""}]`,
			wantErr:    true,
			wantReason: ReasonMalformedResponse,
		},
		{
			name:       "wrong field names",
			input:      `[{"text": "hi", "query": "x"}]`,
			wantErr:    true,
			wantReason: ReasonMalformedResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := parseSceneList(tt.input)
			if tt.wantErr {
				var serr *Error
				if !errors.As(err, &serr) {
					t.Fatalf("expected *Error, got %v", err)
				}
				if serr.Reason != tt.wantReason {
					t.Errorf("reason = %s, want %s", serr.Reason, tt.wantReason)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseSceneList() error: %v", err)
			}
			if len(entries) != tt.wantCount {
				t.Errorf("got %d entries, want %d", len(entries), tt.wantCount)
			}
		})
	}
}

func TestAllocateTimesSingleScene(t *testing.T) {
	scenes := allocateTimes([]sceneEntry{{Narration: "only", VisualQuery: "q"}}, 7*time.Second)
	if len(scenes) != 1 || scenes[0].Start != 0 || scenes[0].End != 7*time.Second {
		t.Errorf("unexpected allocation: %+v", scenes)
	}
}

func TestAllocateTimesManyScenesSumExact(t *testing.T) {
	var entries []sceneEntry
	for i := 0; i < 7; i++ {
		entries = append(entries, sceneEntry{
			Narration:   fmt.Sprintf("narration text of varying length %d", i),
			VisualQuery: "q",
		})
	}
	total := 33*time.Second + 333*time.Millisecond
	scenes := allocateTimes(entries, total)

	if err := timeline.ValidateScenes(scenes, total); err != nil {
		t.Errorf("allocation invalid: %v", err)
	}
	if scenes[len(scenes)-1].End != total {
		t.Errorf("last end = %v, want exactly %v", scenes[len(scenes)-1].End, total)
	}
}

func TestFactoryRejectsUnknownProvider(t *testing.T) {
	_, err := Factory(context.Background(), Provider("unknown"), "key", Options{})
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestFactoryReturnsOpenAIClient(t *testing.T) {
	client, err := Factory(context.Background(), ProviderOpenAI, "fake-key", Options{})
	if err != nil {
		t.Fatalf("Factory(ProviderOpenAI) returned error: %v", err)
	}
	if _, ok := client.(*OpenAIClient); !ok {
		t.Errorf("expected *OpenAIClient, got %T", client)
	}
}

func TestFactoryReturnsAnthropicClient(t *testing.T) {
	client, err := Factory(context.Background(), ProviderAnthropic, "fake-key", Options{})
	if err != nil {
		t.Fatalf("Factory(ProviderAnthropic) returned error: %v", err)
	}
	if _, ok := client.(*AnthropicClient); !ok {
		t.Errorf("expected *AnthropicClient, got %T", client)
	}
}
