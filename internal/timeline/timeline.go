package timeline

import (
	"fmt"
	"time"
)

// tolerance for duration sums, absorbs encoder rounding
const Epsilon = 50 * time.Millisecond

// single spoken word with timing
type Word struct {
	Text  string
	Start time.Duration
	End   time.Duration
}

// one displayed subtitle line, built from consecutive words
type SubtitleLine struct {
	Words []Word
	Start time.Duration
	End   time.Duration
}

// text of the line as displayed
func (l SubtitleLine) Text() string {
	var out string
	for i, w := range l.Words {
		if i > 0 {
			out += " "
		}
		out += w.Text
	}
	return out
}

// target video orientation
type Orientation string

const (
	OrientationLandscape Orientation = "landscape"
	OrientationPortrait  Orientation = "portrait"
)

// pixel resolution for an orientation
func (o Orientation) Resolution() (width, height int) {
	if o == OrientationPortrait {
		return 1080, 1920
	}
	return 1920, 1080
}

// kind of resolved media asset
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaClip  MediaKind = "clip"
)

// which provider produced the asset
type MediaSource string

const (
	SourcePexels       MediaSource = "pexels"
	SourcePollinations MediaSource = "pollinations"
	SourceDuckDuckGo   MediaSource = "duckduckgo"
)

// fully resolved media asset for a scene; never partially populated
type ResolvedMedia struct {
	Kind      MediaKind
	Source    MediaSource
	LocalPath string
	FetchedAt time.Time
}

// contiguous time-bounded segment of the narration paired with a visual query
type Scene struct {
	Index     int
	Start     time.Duration
	End       time.Duration
	Narration string
	Query     string
	Media     *ResolvedMedia
}

func (s Scene) Duration() time.Duration {
	return s.End - s.Start
}

// complete resolved timeline handed to the renderer
type Timeline struct {
	TotalDuration time.Duration
	Subtitles     []SubtitleLine
	Scenes        []Scene
	AudioPath     string
}

// checks the word sequence of a line: start < end per word, non-decreasing starts
func ValidateWords(words []Word) error {
	for i, w := range words {
		if w.Start >= w.End {
			return fmt.Errorf("word %d (%q): start %v not before end %v", i, w.Text, w.Start, w.End)
		}
		if i > 0 && w.Start < words[i-1].Start {
			return fmt.Errorf("word %d (%q): start %v precedes previous start %v", i, w.Text, w.Start, words[i-1].Start)
		}
	}
	return nil
}

// checks that lines are ordered and never overlap
func ValidateSubtitles(lines []SubtitleLine) error {
	for i, l := range lines {
		if len(l.Words) == 0 {
			return fmt.Errorf("line %d: empty", i)
		}
		if err := ValidateWords(l.Words); err != nil {
			return fmt.Errorf("line %d: %w", i, err)
		}
		if l.Start != l.Words[0].Start || l.End != l.Words[len(l.Words)-1].End {
			return fmt.Errorf("line %d: bounds do not match word bounds", i)
		}
		if i > 0 && l.Start < lines[i-1].End {
			return fmt.Errorf("line %d: overlaps previous line", i)
		}
	}
	return nil
}

// checks that scenes partition [0, total) with no gaps or overlaps
func ValidateScenes(scenes []Scene, total time.Duration) error {
	if len(scenes) == 0 {
		return fmt.Errorf("no scenes")
	}
	var cursor time.Duration
	for i, s := range scenes {
		if s.Index != i {
			return fmt.Errorf("scene %d: index %d out of order", i, s.Index)
		}
		if s.Start != cursor {
			return fmt.Errorf("scene %d: starts at %v, expected %v", i, s.Start, cursor)
		}
		if s.End <= s.Start {
			return fmt.Errorf("scene %d: non-positive duration", i)
		}
		if s.Query == "" {
			return fmt.Errorf("scene %d: empty visual query", i)
		}
		cursor = s.End
	}
	if diff := cursor - total; diff < -Epsilon || diff > Epsilon {
		return fmt.Errorf("scenes cover %v, total duration is %v", cursor, total)
	}
	return nil
}

// checks the whole timeline before it is handed to the renderer
func (t *Timeline) Validate() error {
	if t.TotalDuration <= 0 {
		return fmt.Errorf("non-positive total duration %v", t.TotalDuration)
	}
	if t.AudioPath == "" {
		return fmt.Errorf("missing audio path")
	}
	if err := ValidateSubtitles(t.Subtitles); err != nil {
		return fmt.Errorf("subtitles: %w", err)
	}
	if err := ValidateScenes(t.Scenes, t.TotalDuration); err != nil {
		return fmt.Errorf("scenes: %w", err)
	}
	for _, s := range t.Scenes {
		if s.Media != nil {
			if s.Media.LocalPath == "" || s.Media.Source == "" || s.Media.Kind == "" {
				return fmt.Errorf("scene %d: partially populated media", s.Index)
			}
		}
	}
	return nil
}
