package align

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kpai47/katha/internal/timeline"
)

// why an alignment failed
type Reason string

const (
	ReasonNoSpeech           Reason = "no-speech-detected"
	ReasonBackendUnavailable Reason = "backend-unavailable"
	ReasonAudioUnreadable    Reason = "audio-unreadable"
)

// fatal alignment failure; retry policy belongs to the caller
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("alignment failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("alignment failed (%s)", e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// word-level alignment result
type Result struct {
	Words         []timeline.Word
	TotalDuration time.Duration
}

// interface for speech-to-text alignment backends
type Aligner interface {
	// knownScript may be empty; when set, word boundaries are constrained
	// to the known word sequence
	Align(ctx context.Context, audioPath, knownScript string) (*Result, error)
}

// alignment backend provider
type Provider string

const (
	ProviderOpenAI Provider = "openai"
)

// backend options
type Options struct {
	Model    string
	Language string
}

// creates an aligner based on provider
func Factory(provider Provider, apiKey string, opts Options) (Aligner, error) {
	switch provider {
	case ProviderOpenAI:
		return NewOpenAIAligner(apiKey, opts)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

// how many backend words to scan forward when re-synchronizing against
// the known script
const resyncWindow = 3

// constrains backend word timings to the known script's word sequence.
// Backend words that do not match the next script word are dropped as
// low-confidence; nothing is ever inserted that the backend did not time.
func ForceAlign(backend []timeline.Word, knownScript string) []timeline.Word {
	scriptWords := strings.Fields(knownScript)
	if len(scriptWords) == 0 {
		return backend
	}

	aligned := make([]timeline.Word, 0, len(scriptWords))
	si := 0
	for _, bw := range backend {
		if si >= len(scriptWords) {
			break
		}
		matched := -1
		for k := si; k < si+resyncWindow && k < len(scriptWords); k++ {
			if normalizeWord(bw.Text) == normalizeWord(scriptWords[k]) {
				matched = k
				break
			}
		}
		if matched < 0 {
			continue
		}
		// script words skipped during resync have no timing and are dropped
		aligned = append(aligned, timeline.Word{
			Text:  scriptWords[matched],
			Start: bw.Start,
			End:   bw.End,
		})
		si = matched + 1
	}
	return aligned
}

func normalizeWord(w string) string {
	return strings.ToLower(strings.Trim(w, ".,!?;:\"'()[]“”‘’-"))
}

// subtitle line grouping policy
type GroupingPolicy struct {
	MaxLineDuration time.Duration
	MaxWords        int
}

func DefaultGroupingPolicy() GroupingPolicy {
	return GroupingPolicy{
		MaxLineDuration: 5 * time.Second,
		MaxWords:        9,
	}
}

// groups timed words into subtitle lines, breaking preferentially at
// sentence punctuation
func (p GroupingPolicy) Group(words []timeline.Word) []timeline.SubtitleLine {
	if len(words) == 0 {
		return nil
	}
	words = trimOverlaps(words)

	var lines []timeline.SubtitleLine
	var current []timeline.Word

	flush := func() {
		if len(current) == 0 {
			return
		}
		lines = append(lines, timeline.SubtitleLine{
			Words: current,
			Start: current[0].Start,
			End:   current[len(current)-1].End,
		})
		current = nil
	}

	for _, w := range words {
		current = append(current, w)
		switch {
		case endsSentence(w.Text):
			flush()
		case len(current) >= p.MaxWords:
			flush()
		case w.End-current[0].Start >= p.MaxLineDuration:
			flush()
		}
	}
	flush()

	return lines
}

// backend word spans can overlap slightly; nudge the boundaries so a
// line break between two words never produces overlapping lines
func trimOverlaps(words []timeline.Word) []timeline.Word {
	out := make([]timeline.Word, len(words))
	copy(out, words)
	for i := 1; i < len(out); i++ {
		prev := &out[i-1]
		w := &out[i]
		if w.Start >= prev.End {
			continue
		}
		switch {
		case prev.End < w.End:
			w.Start = prev.End
		case w.Start > prev.Start:
			prev.End = w.Start
		default:
			mid := prev.Start + (w.End-prev.Start)/2
			prev.End = mid
			w.Start = mid
		}
	}
	return out
}

func endsSentence(word string) bool {
	trimmed := strings.TrimRight(word, "\"'”’)")
	return strings.HasSuffix(trimmed, ".") ||
		strings.HasSuffix(trimmed, "!") ||
		strings.HasSuffix(trimmed, "?")
}
