package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	ffmpegbin "github.com/kpai47/katha/internal/ffmpeg"
	"github.com/kpai47/katha/internal/logging"
	"github.com/kpai47/katha/internal/subtitle"
	"github.com/kpai47/katha/internal/timeline"
)

// run-fatal rendering failure
type Error struct {
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("render failed: %v", e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// interface for the final compositing/encoding step
type Renderer interface {
	Render(ctx context.Context, tl *timeline.Timeline, outputPath string) (string, error)
}

// renderer tuning
type Options struct {
	Width          int
	Height         int
	FPS            int
	ImageAnimation bool // Ken Burns zoom on still images
	Placeholder    bool // synthesize a blank card for media-less scenes
	WorkDir        string
}

func DefaultOptions(workDir string) Options {
	return Options{
		Width:   1920,
		Height:  1080,
		FPS:     24,
		WorkDir: workDir,
	}
}

// composites scene media, narration audio and burned-in subtitles with ffmpeg
type FFmpegRenderer struct {
	opts   Options
	logger *logging.Logger
}

func NewFFmpegRenderer(opts Options, logger *logging.Logger) *FFmpegRenderer {
	if opts.FPS <= 0 {
		opts.FPS = 24
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FFmpegRenderer{opts: opts, logger: logger}
}

// builds one clip per scene, concatenates them, then muxes narration
// audio and subtitles into the final file. The output path is only
// written on full success; intermediates live in the work directory.
func (r *FFmpegRenderer) Render(
	ctx context.Context,
	tl *timeline.Timeline,
	outputPath string,
) (string, error) {
	if err := tl.Validate(); err != nil {
		return "", &Error{Err: fmt.Errorf("invalid timeline: %w", err)}
	}

	ffmpegPath, err := ffmpegbin.FFmpegPath()
	if err != nil {
		return "", &Error{Err: err}
	}

	clipDir := filepath.Join(r.opts.WorkDir, "clips")
	if err := os.MkdirAll(clipDir, 0755); err != nil {
		return "", &Error{Err: fmt.Errorf("create clip directory: %w", err)}
	}

	clipPaths := make([]string, 0, len(tl.Scenes))
	for _, scene := range tl.Scenes {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		clipPath := filepath.Join(clipDir, fmt.Sprintf("scene_%03d.mp4", scene.Index))
		if err := r.sceneClip(scene, clipPath, ffmpegPath); err != nil {
			return "", &Error{Err: fmt.Errorf("scene %d: %w", scene.Index, err)}
		}
		clipPaths = append(clipPaths, clipPath)

		r.logger.Debugw("scene clip rendered",
			"scene", scene.Index,
			"duration", scene.Duration().String(),
		)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	combinedPath := filepath.Join(r.opts.WorkDir, "combined.mp4")
	if err := concatClips(clipPaths, combinedPath, ffmpegPath); err != nil {
		return "", &Error{Err: err}
	}

	subPath := filepath.Join(r.opts.WorkDir, "subtitles.srt")
	writer := &subtitle.SRTWriter{}
	if err := writer.Write(tl.Subtitles, subPath); err != nil {
		return "", &Error{Err: fmt.Errorf("write subtitles: %w", err)}
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	// encode to a staging path so a failed mux never leaves a partial
	// file at the output location
	stagedPath := filepath.Join(r.opts.WorkDir, "final.mp4")
	if err := r.mux(combinedPath, tl.AudioPath, subPath, stagedPath, ffmpegPath); err != nil {
		return "", &Error{Err: err}
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return "", &Error{Err: fmt.Errorf("create output directory: %w", err)}
	}
	if err := os.Rename(stagedPath, outputPath); err != nil {
		// cross-device fallback
		if cerr := copyFile(stagedPath, outputPath); cerr != nil {
			return "", &Error{Err: fmt.Errorf("move output: %w", cerr)}
		}
		os.Remove(stagedPath)
	}

	return outputPath, nil
}

// renders a single scene to a fixed-resolution clip of exactly the
// scene's duration
func (r *FFmpegRenderer) sceneClip(scene timeline.Scene, clipPath, ffmpegPath string) error {
	seconds := scene.Duration().Seconds()

	var stream *ffmpeg.Stream
	switch {
	case scene.Media == nil:
		if !r.opts.Placeholder {
			return fmt.Errorf("no media and placeholder policy disabled")
		}
		stream = r.placeholderStream(seconds)
	case scene.Media.Kind == timeline.MediaImage:
		stream = r.imageStream(scene.Media.LocalPath, seconds)
	default:
		stream = r.clipStream(scene.Media.LocalPath, seconds)
	}

	err := stream.
		Output(clipPath, ffmpeg.KwArgs{
			"c:v":     "libx264",
			"preset":  "veryfast",
			"pix_fmt": "yuv420p",
			"r":       r.opts.FPS,
			"t":       seconds,
			"an":      "",
		}).
		OverWriteOutput().
		SetFfmpegPath(ffmpegPath).
		Run()
	if err != nil {
		return fmt.Errorf("encode clip: %w", err)
	}
	return nil
}

// still image looped for the scene duration, optionally animated
func (r *FFmpegRenderer) imageStream(path string, seconds float64) *ffmpeg.Stream {
	stream := ffmpeg.Input(path, ffmpeg.KwArgs{
		"loop":      1,
		"framerate": r.opts.FPS,
		"t":         seconds,
	})
	stream = r.fit(stream)

	if r.opts.ImageAnimation {
		// slow zoom from 100% to 115% across the scene
		frames := int(seconds * float64(r.opts.FPS))
		if frames < 1 {
			frames = 1
		}
		stream = stream.Filter("zoompan", ffmpeg.Args{}, ffmpeg.KwArgs{
			"z":   fmt.Sprintf("min(1+0.15*on/%d,1.15)", frames),
			"d":   1,
			"x":   "iw/2-(iw/zoom/2)",
			"y":   "ih/2-(ih/zoom/2)",
			"s":   fmt.Sprintf("%dx%d", r.opts.Width, r.opts.Height),
			"fps": r.opts.FPS,
		})
	}
	return stream
}

// video asset looped if shorter than the scene, trimmed by output -t
func (r *FFmpegRenderer) clipStream(path string, seconds float64) *ffmpeg.Stream {
	stream := ffmpeg.Input(path, ffmpeg.KwArgs{
		"stream_loop": -1,
		"t":           seconds,
	})
	return r.fit(stream)
}

// solid card for scenes whose provider chain was exhausted
func (r *FFmpegRenderer) placeholderStream(seconds float64) *ffmpeg.Stream {
	return ffmpeg.Input(
		fmt.Sprintf("color=c=0x101018:s=%dx%d:d=%f", r.opts.Width, r.opts.Height, seconds),
		ffmpeg.KwArgs{"f": "lavfi"},
	)
}

// scales into the target frame without cropping, padding the remainder
func (r *FFmpegRenderer) fit(stream *ffmpeg.Stream) *ffmpeg.Stream {
	return stream.
		Filter("scale", ffmpeg.Args{
			fmt.Sprintf("%d:%d:force_original_aspect_ratio=decrease", r.opts.Width, r.opts.Height),
		}).
		Filter("pad", ffmpeg.Args{
			fmt.Sprintf("%d:%d:(ow-iw)/2:(oh-ih)/2:color=black", r.opts.Width, r.opts.Height),
		})
}

// joins scene clips with the concat demuxer
func concatClips(clipPaths []string, outputPath, ffmpegPath string) error {
	listPath := outputPath + ".txt"
	var sb strings.Builder
	for _, p := range clipPaths {
		fmt.Fprintf(&sb, "file '%s'\n", p)
	}
	if err := os.WriteFile(listPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("write concat list: %w", err)
	}
	defer os.Remove(listPath)

	err := ffmpeg.Input(listPath, ffmpeg.KwArgs{"f": "concat", "safe": "0"}).
		Output(outputPath, ffmpeg.KwArgs{"c": "copy"}).
		OverWriteOutput().
		SetFfmpegPath(ffmpegPath).
		Run()
	if err != nil {
		return fmt.Errorf("concat scenes: %w", err)
	}
	return nil
}

// burns subtitles into the combined video and muxes the narration track
func (r *FFmpegRenderer) mux(videoPath, audioPath, subPath, outputPath, ffmpegPath string) error {
	video := ffmpeg.Input(videoPath).
		Filter("subtitles", ffmpeg.Args{escapeFilterPath(subPath)})
	narration := ffmpeg.Input(audioPath)

	err := ffmpeg.Output(
		[]*ffmpeg.Stream{video, narration},
		outputPath,
		ffmpeg.KwArgs{
			"c:v":      "libx264",
			"preset":   "veryfast",
			"c:a":      "aac",
			"b:a":      "192k",
			"shortest": "",
		},
	).
		OverWriteOutput().
		SetFfmpegPath(ffmpegPath).
		Run()
	if err != nil {
		return fmt.Errorf("mux output: %w", err)
	}
	return nil
}

// the subtitles filter parses ':' specially
func escapeFilterPath(path string) string {
	path = strings.ReplaceAll(path, `\`, `\\`)
	return strings.ReplaceAll(path, ":", `\:`)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0644)
}
