package align

import (
	"testing"
	"time"

	"github.com/kpai47/katha/internal/timeline"
)

func sec(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

func word(text string, start, end float64) timeline.Word {
	return timeline.Word{Text: text, Start: sec(start), End: sec(end)}
}

func TestForceAlign(t *testing.T) {
	tests := []struct {
		name    string
		backend []timeline.Word
		script  string
		want    []string
	}{
		{
			name: "exact match keeps script text",
			backend: []timeline.Word{
				word("a", 0, 0.2), word("dog", 0.2, 0.5), word("runs", 0.5, 1),
			},
			script: "A dog runs.",
			want:   []string{"A", "dog", "runs."},
		},
		{
			name: "extra backend word dropped",
			backend: []timeline.Word{
				word("a", 0, 0.2), word("uh", 0.2, 0.3), word("dog", 0.3, 0.5),
			},
			script: "A dog",
			want:   []string{"A", "dog"},
		},
		{
			name: "misrecognized word resyncs within window",
			backend: []timeline.Word{
				word("a", 0, 0.2), word("dug", 0.2, 0.5), word("runs", 0.5, 1),
			},
			script: "A dog runs",
			want:   []string{"A", "runs"},
		},
		{
			name: "punctuation and case ignored when matching",
			backend: []timeline.Word{
				word("Hello", 0, 0.4), word("world", 0.4, 0.9),
			},
			script: "hello, world!",
			want:   []string{"hello,", "world!"},
		},
		{
			name: "empty script passes backend through",
			backend: []timeline.Word{
				word("free", 0, 0.4), word("form", 0.4, 0.8),
			},
			script: "",
			want:   []string{"free", "form"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ForceAlign(tt.backend, tt.script)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d words, want %d", len(got), len(tt.want))
			}
			for i, w := range got {
				if w.Text != tt.want[i] {
					t.Errorf("word %d = %q, want %q", i, w.Text, tt.want[i])
				}
			}
		})
	}
}

func TestForceAlignPreservesTimings(t *testing.T) {
	backend := []timeline.Word{word("hello", 1.5, 2.0)}
	got := ForceAlign(backend, "Hello")
	if len(got) != 1 {
		t.Fatalf("got %d words", len(got))
	}
	if got[0].Start != sec(1.5) || got[0].End != sec(2.0) {
		t.Errorf("timing changed: %v-%v", got[0].Start, got[0].End)
	}
}

func TestGroupBreaksAtSentencePunctuation(t *testing.T) {
	words := []timeline.Word{
		word("A", 0, 0.2), word("dog", 0.2, 0.5), word("runs.", 0.5, 1),
		word("A", 1, 1.2), word("cat", 1.2, 1.5), word("sleeps.", 1.5, 2),
	}
	lines := DefaultGroupingPolicy().Group(words)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0].Text() != "A dog runs." {
		t.Errorf("line 0 = %q", lines[0].Text())
	}
	if lines[1].Start != sec(1) || lines[1].End != sec(2) {
		t.Errorf("line 1 bounds = %v-%v", lines[1].Start, lines[1].End)
	}
}

func TestGroupBreaksAtMaxWords(t *testing.T) {
	var words []timeline.Word
	for i := 0; i < 20; i++ {
		words = append(words, word("w", float64(i)*0.1, float64(i)*0.1+0.1))
	}
	p := GroupingPolicy{MaxLineDuration: time.Minute, MaxWords: 8}
	lines := p.Group(words)
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
	for i, l := range lines[:2] {
		if len(l.Words) != 8 {
			t.Errorf("line %d has %d words, want 8", i, len(l.Words))
		}
	}
	if err := timeline.ValidateSubtitles(lines); err != nil {
		t.Errorf("grouped lines invalid: %v", err)
	}
}

func TestGroupBreaksAtMaxDuration(t *testing.T) {
	words := []timeline.Word{
		word("slow", 0, 3), word("words", 3, 6), word("here", 6, 9),
	}
	p := GroupingPolicy{MaxLineDuration: 5 * time.Second, MaxWords: 100}
	lines := p.Group(words)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
}

func TestGroupTrimsOverlappingWords(t *testing.T) {
	// whisper word timestamps can overlap while keeping starts ordered
	words := []timeline.Word{
		word("one", 0, 0.6),
		word("two", 0.5, 1),
	}
	if err := timeline.ValidateWords(words); err != nil {
		t.Fatalf("input words invalid: %v", err)
	}

	p := GroupingPolicy{MaxLineDuration: time.Minute, MaxWords: 1}
	lines := p.Group(words)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if err := timeline.ValidateSubtitles(lines); err != nil {
		t.Fatalf("grouped lines invalid: %v", err)
	}
	if lines[1].Start != sec(0.6) {
		t.Errorf("line 1 starts at %v, want %v", lines[1].Start, sec(0.6))
	}
	// input untouched
	if words[1].Start != sec(0.5) {
		t.Errorf("input word mutated: start %v", words[1].Start)
	}
}

func TestGroupTrimsContainedWords(t *testing.T) {
	tests := []struct {
		name  string
		words []timeline.Word
	}{
		{
			name: "word inside previous span",
			words: []timeline.Word{
				word("long", 0, 1),
				word("short", 0.4, 0.7),
				word("after", 0.7, 1.2),
			},
		},
		{
			name: "equal starts",
			words: []timeline.Word{
				word("a", 0, 1),
				word("b", 0, 0.6),
				word("c", 0.6, 1.4),
			},
		},
	}

	p := GroupingPolicy{MaxLineDuration: time.Minute, MaxWords: 1}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := p.Group(tt.words)
			if len(lines) != len(tt.words) {
				t.Fatalf("got %d lines, want %d", len(lines), len(tt.words))
			}
			if err := timeline.ValidateSubtitles(lines); err != nil {
				t.Errorf("grouped lines invalid: %v", err)
			}
		})
	}
}

func TestGroupEmptyInput(t *testing.T) {
	if lines := DefaultGroupingPolicy().Group(nil); lines != nil {
		t.Errorf("expected nil, got %d lines", len(lines))
	}
}

func TestParseWhisperWords(t *testing.T) {
	raw := `{
		"text": "A dog runs",
		"language": "english",
		"duration": 10.0,
		"words": [
			{"word": "A", "start": 0.0, "end": 0.2},
			{"word": " dog ", "start": 0.2, "end": 0.5},
			{"word": "", "start": 0.5, "end": 0.6},
			{"word": "runs", "start": 0.6, "end": 0.6}
		]
	}`
	words, dur, err := parseWhisperWords(raw)
	if err != nil {
		t.Fatalf("parseWhisperWords() error: %v", err)
	}
	// empty and zero-duration words filtered out
	if len(words) != 2 {
		t.Fatalf("got %d words, want 2", len(words))
	}
	if words[1].Text != "dog" {
		t.Errorf("word 1 = %q, want trimmed %q", words[1].Text, "dog")
	}
	if dur != 10*time.Second {
		t.Errorf("duration = %v, want 10s", dur)
	}
}

func TestParseWhisperWordsMalformed(t *testing.T) {
	if _, _, err := parseWhisperWords("not json"); err == nil {
		t.Error("expected error for malformed payload")
	}
}

func TestFactory(t *testing.T) {
	if _, err := Factory(ProviderOpenAI, "fake-key", Options{}); err != nil {
		t.Errorf("Factory(openai) error: %v", err)
	}
	if _, err := Factory(ProviderOpenAI, "", Options{}); err == nil {
		t.Error("expected error for missing API key")
	}
	if _, err := Factory(Provider("unknown"), "k", Options{}); err == nil {
		t.Error("expected error for unknown provider")
	}
}
