package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kpai47/katha/internal/align"
	"github.com/kpai47/katha/internal/logging"
	"github.com/kpai47/katha/internal/media"
	"github.com/kpai47/katha/internal/timeline"
)

// run lifecycle states
type State string

const (
	StateIdle           State = "idle"
	StateAligning       State = "aligning"
	StateSegmenting     State = "segmenting"
	StateResolvingMedia State = "resolving_media"
	StatePreviewReady   State = "preview_ready"
	StateRendering      State = "rendering"
	StateCompleted      State = "completed"
	StateErrored        State = "errored"
	StateCancelled      State = "cancelled"
)

// progress notification emitted at state changes and per-scene milestones
type Event struct {
	Stage   State
	Percent float64
	Message string
}

// receives progress events; implementations must not block
type Sink interface {
	Publish(Event)
}

type nopSink struct{}

func (nopSink) Publish(Event) {}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Publish(e Event) { f(e) }

// segmentation backend as seen by the orchestrator
type Segmenter interface {
	Segment(ctx context.Context, script string, total time.Duration) ([]timeline.Scene, error)
}

// media resolution backend as seen by the orchestrator
type Resolver interface {
	Resolve(ctx context.Context, scene timeline.Scene) (*timeline.ResolvedMedia, error)
}

// rendering backend as seen by the orchestrator
type Renderer interface {
	Render(ctx context.Context, tl *timeline.Timeline, outputPath string) (string, error)
}

type Options struct {
	Workers  int
	Grouping align.GroupingPolicy
	Sink     Sink
}

func DefaultOptions() Options {
	return Options{
		Workers:  3,
		Grouping: align.DefaultGroupingPolicy(),
	}
}

// preview of a fully planned run, inspectable before committing to a render
type Preview struct {
	Timeline *timeline.Timeline
	// scenes whose provider chain was exhausted; the run proceeds
	// without media for them
	Warnings []*media.ResolutionError
}

// drives one generation run through its stages
type Orchestrator struct {
	aligner   align.Aligner
	segmenter Segmenter
	resolver  Resolver
	renderer  Renderer
	opts      Options
	logger    *logging.Logger

	mu    sync.Mutex
	state State
}

func NewOrchestrator(
	aligner align.Aligner,
	segmenter Segmenter,
	resolver Resolver,
	renderer Renderer,
	opts Options,
	logger *logging.Logger,
) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 3
	}
	if opts.Grouping.MaxWords <= 0 && opts.Grouping.MaxLineDuration <= 0 {
		opts.Grouping = align.DefaultGroupingPolicy()
	}
	if opts.Sink == nil {
		opts.Sink = nopSink{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		aligner:   aligner,
		segmenter: segmenter,
		resolver:  resolver,
		renderer:  renderer,
		opts:      opts,
		logger:    logger,
		state:     StateIdle,
	}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(s State, percent float64, msg string) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.opts.Sink.Publish(Event{Stage: s, Percent: percent, Message: msg})
}

// classifies a stage failure: caller cancellation is terminal but not an error state
func (o *Orchestrator) fail(stage State, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		o.setState(StateCancelled, 0, fmt.Sprintf("cancelled during %s", stage))
		return err
	}
	o.setState(StateErrored, 0, fmt.Sprintf("%s failed: %v", stage, err))
	return fmt.Errorf("%s: %w", stage, err)
}

// runs alignment, segmentation and media resolution, stopping at a
// renderable preview. Scenes whose providers are all exhausted are
// reported as warnings; the preview fails only when no scene at all
// could be given media.
func (o *Orchestrator) BuildPreview(
	ctx context.Context,
	script, audioPath string,
) (*Preview, error) {
	o.setState(StateAligning, 0.05, "aligning narration")
	aligned, err := o.aligner.Align(ctx, audioPath, script)
	if err != nil {
		return nil, o.fail(StateAligning, err)
	}
	o.logger.Infow("narration aligned",
		"words", len(aligned.Words),
		"duration", aligned.TotalDuration.String(),
	)

	if err := ctx.Err(); err != nil {
		return nil, o.fail(StateAligning, err)
	}

	o.setState(StateSegmenting, 0.25, "planning scenes")
	scenes, err := o.segmenter.Segment(ctx, script, aligned.TotalDuration)
	if err != nil {
		return nil, o.fail(StateSegmenting, err)
	}
	o.logger.Infow("scenes planned", "count", len(scenes))

	if err := ctx.Err(); err != nil {
		return nil, o.fail(StateSegmenting, err)
	}

	o.setState(StateResolvingMedia, 0.35, "resolving scene media")
	scenes, warnings, err := o.resolveAll(ctx, scenes)
	if err != nil {
		return nil, o.fail(StateResolvingMedia, err)
	}

	resolved := 0
	for _, s := range scenes {
		if s.Media != nil {
			resolved++
		}
	}
	if resolved == 0 {
		return nil, o.fail(StateResolvingMedia, fmt.Errorf("no media found for any of %d scenes", len(scenes)))
	}

	tl := &timeline.Timeline{
		TotalDuration: aligned.TotalDuration,
		Subtitles:     o.opts.Grouping.Group(aligned.Words),
		Scenes:        scenes,
		AudioPath:     audioPath,
	}

	o.setState(StatePreviewReady, 0.8, fmt.Sprintf("%d/%d scenes have media", resolved, len(scenes)))
	return &Preview{Timeline: tl, Warnings: warnings}, nil
}

type resolveResult struct {
	index int
	media *timeline.ResolvedMedia
	err   error
}

// fans scenes out to a bounded worker pool and reassembles them in order
func (o *Orchestrator) resolveAll(
	ctx context.Context,
	scenes []timeline.Scene,
) ([]timeline.Scene, []*media.ResolutionError, error) {
	workers := o.opts.Workers
	if workers > len(scenes) {
		workers = len(scenes)
	}

	jobs := make(chan timeline.Scene, len(scenes))
	results := make(chan resolveResult, len(scenes))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for scene := range jobs {
				if err := ctx.Err(); err != nil {
					results <- resolveResult{index: scene.Index, err: err}
					continue
				}
				m, err := o.resolver.Resolve(ctx, scene)
				results <- resolveResult{index: scene.Index, media: m, err: err}
			}
		}()
	}

	for _, s := range scenes {
		jobs <- s
	}
	close(jobs)

	// progress is reported as each scene finishes, while the pool is
	// still draining
	collected := make([]resolveResult, 0, len(scenes))
	for i := 0; i < len(scenes); i++ {
		r := <-results
		collected = append(collected, r)
		percent := 0.35 + 0.45*float64(i+1)/float64(len(scenes))
		o.opts.Sink.Publish(Event{
			Stage:   StateResolvingMedia,
			Percent: percent,
			Message: fmt.Sprintf("scene %d/%d", i+1, len(scenes)),
		})
	}
	wg.Wait()
	sort.Slice(collected, func(i, j int) bool { return collected[i].index < collected[j].index })

	out := make([]timeline.Scene, len(scenes))
	copy(out, scenes)
	var warnings []*media.ResolutionError
	for _, r := range collected {
		switch {
		case r.err == nil:
			out[r.index].Media = r.media
		case errors.Is(r.err, context.Canceled) || errors.Is(r.err, context.DeadlineExceeded):
			return nil, nil, r.err
		default:
			var rerr *media.ResolutionError
			if !errors.As(r.err, &rerr) {
				return nil, nil, r.err
			}
			warnings = append(warnings, rerr)
			o.logger.Warnw("scene has no media",
				"scene", rerr.SceneIndex,
				"exhausted", rerr.Exhausted,
			)
		}
	}
	return out, warnings, nil
}

// renders a prepared preview to its final output file
func (o *Orchestrator) Render(
	ctx context.Context,
	preview *Preview,
	outputPath string,
) (string, error) {
	if preview == nil || preview.Timeline == nil {
		return "", fmt.Errorf("nothing to render")
	}
	if err := ctx.Err(); err != nil {
		return "", o.fail(StateRendering, err)
	}

	o.setState(StateRendering, 0.85, "rendering")
	path, err := o.renderer.Render(ctx, preview.Timeline, outputPath)
	if err != nil {
		return "", o.fail(StateRendering, err)
	}

	o.setState(StateCompleted, 1.0, path)
	return path, nil
}
