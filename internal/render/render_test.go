package render

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/kpai47/katha/internal/timeline"
)

func TestEscapeFilterPath(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "plain path",
			in:   "/tmp/work/subtitles.srt",
			want: "/tmp/work/subtitles.srt",
		},
		{
			name: "windows drive colon",
			in:   `C:\work\subtitles.srt`,
			want: `C\:\\work\\subtitles.srt`,
		},
		{
			name: "colon in directory",
			in:   "/tmp/run:1/subtitles.srt",
			want: `/tmp/run\:1/subtitles.srt`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := escapeFilterPath(tt.in); got != tt.want {
				t.Errorf("escapeFilterPath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRenderRejectsInvalidTimeline(t *testing.T) {
	r := NewFFmpegRenderer(DefaultOptions(t.TempDir()), nil)

	// scenes do not cover the audio duration
	tl := &timeline.Timeline{
		TotalDuration: 10 * time.Second,
		AudioPath:     "narration.mp3",
		Scenes: []timeline.Scene{
			{
				Index:     0,
				Start:     0,
				End:       4 * time.Second,
				Narration: "partial coverage",
				Query:     "anything",
			},
		},
	}

	_, err := r.Render(context.Background(), tl, filepath.Join(t.TempDir(), "out.mp4"))
	if err == nil {
		t.Fatal("expected error for invalid timeline")
	}
	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Errorf("expected *render.Error, got %T: %v", err, err)
	}
}

func TestSceneClipWithoutMediaRequiresPlaceholder(t *testing.T) {
	opts := DefaultOptions(t.TempDir())
	opts.Placeholder = false
	r := NewFFmpegRenderer(opts, nil)

	scene := timeline.Scene{
		Index:     0,
		Start:     0,
		End:       2 * time.Second,
		Narration: "no asset here",
		Query:     "missing",
	}

	err := r.sceneClip(scene, filepath.Join(t.TempDir(), "clip.mp4"), "ffmpeg")
	if err == nil {
		t.Fatal("expected error for media-less scene with placeholders disabled")
	}
}

func TestNewFFmpegRendererDefaults(t *testing.T) {
	r := NewFFmpegRenderer(Options{WorkDir: t.TempDir()}, nil)
	if r.opts.FPS != 24 {
		t.Errorf("expected default FPS 24, got %d", r.opts.FPS)
	}
	if r.logger == nil {
		t.Error("expected fallback logger")
	}
}
