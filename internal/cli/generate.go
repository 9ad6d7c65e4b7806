package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/kpai47/katha/internal/align"
	"github.com/kpai47/katha/internal/audio"
	"github.com/kpai47/katha/internal/config"
	"github.com/kpai47/katha/internal/media"
	"github.com/kpai47/katha/internal/pipeline"
	"github.com/kpai47/katha/internal/render"
	"github.com/kpai47/katha/internal/segment"
	"github.com/kpai47/katha/internal/subtitle"
	"github.com/kpai47/katha/internal/tts"
)

var generateCmd = &cobra.Command{
	Use:   "generate [script_file]",
	Short: "Generate a video from a narration script",
	Long: `Generate a video from the specified narration script.

Narration audio is synthesized from the script unless --audio points at
an existing recording (audio or video; video has its audio extracted).
The narration is word-aligned, split into visual scenes by an LLM, and
each scene gets media from the configured provider chain before the
final render.

Examples:
  katha generate script.txt
  katha generate script.txt --audio narration.mp3
  katha generate script.txt --aspect 9:16 --voice nova
  katha generate script.txt --preview-only
  katha generate script.txt --segmenter openai --clips`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().
		StringP("output", "o", "", "Output video path")
	generateCmd.Flags().
		String("audio", "", "Existing narration recording (skips speech synthesis)")
	generateCmd.Flags().
		Bool("preview-only", false, "Stop after planning; print the scene table without rendering")
	generateCmd.Flags().
		String("segmenter", "gemini", "LLM provider for scene planning (gemini, openai, anthropic)")
	generateCmd.Flags().
		String("model", "", "Override the scene planning model")
	generateCmd.Flags().
		String("aspect", "", "Aspect ratio (16:9 or 9:16)")
	generateCmd.Flags().
		String("voice", "", "Narration voice for speech synthesis")
	generateCmd.Flags().
		Int("workers", 0, "Parallel media resolution workers")
	generateCmd.Flags().
		Bool("clips", false, "Prefer stock video clips over photos where available")
	generateCmd.Flags().
		Bool("placeholder", false, "Render a blank card for scenes with no media instead of failing")
	generateCmd.Flags().
		String("export-subtitles", "", "Also write a subtitle file (srt or vtt)")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	scriptPath := args[0]

	scriptData, err := os.ReadFile(scriptPath)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	script := strings.TrimSpace(string(scriptData))
	if script == "" {
		return fmt.Errorf("script file is empty: %s", scriptPath)
	}

	cfg, err := config.Load(settingsPath)
	if err != nil {
		return err
	}
	applyFlagOverrides(cmd, cfg)

	audioInput, _ := cmd.Flags().GetString("audio")
	previewOnly, _ := cmd.Flags().GetBool("preview-only")
	segmenterName, _ := cmd.Flags().GetString("segmenter")
	model, _ := cmd.Flags().GetString("model")
	outputPath, _ := cmd.Flags().GetString("output")
	useClips, _ := cmd.Flags().GetBool("clips")
	subtitleFormat, _ := cmd.Flags().GetString("export-subtitles")

	if outputPath == "" {
		baseName := strings.TrimSuffix(filepath.Base(scriptPath), filepath.Ext(scriptPath))
		outputPath = filepath.Join(cfg.Settings.OutputDir, baseName+".mp4")
	}

	runDir := filepath.Join(cfg.Settings.OutputDir, "runs", uuid.New().String())
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Infow("Starting video generation",
		"script", scriptPath,
		"output", outputPath,
		"aspect", cfg.Settings.AspectRatio,
		"run_dir", runDir,
	)

	narrationPath, err := prepareNarration(ctx, cfg, script, audioInput, runDir)
	if err != nil {
		return err
	}

	aligner, err := align.Factory(align.ProviderOpenAI, cfg.OpenAIAPIKey, align.Options{})
	if err != nil {
		return fmt.Errorf("create aligner: %w", err)
	}

	provider := segment.Provider(segmenterName)
	client, err := segment.Factory(ctx, provider, segmenterKey(cfg, provider), segment.Options{Model: model})
	if err != nil {
		return fmt.Errorf("create scene planner: %w", err)
	}
	segmenter := segment.NewSegmenter(client)

	resolver, err := buildResolver(cfg, useClips, filepath.Join(runDir, "assets"))
	if err != nil {
		return err
	}

	width, height := cfg.Orientation().Resolution()
	renderer := render.NewFFmpegRenderer(render.Options{
		Width:          width,
		Height:         height,
		FPS:            24,
		ImageAnimation: cfg.Settings.ImageAnimation,
		Placeholder:    cfg.Settings.PlaceholderScenes,
		WorkDir:        filepath.Join(runDir, "work"),
	}, logger)

	orchestrator := pipeline.NewOrchestrator(
		aligner, segmenter, resolver, renderer,
		pipeline.Options{
			Workers: cfg.Settings.Workers,
			Grouping: align.GroupingPolicy{
				MaxLineDuration: time.Duration(cfg.Settings.MaxLineDuration),
				MaxWords:        cfg.Settings.MaxWordsPerLine,
			},
			Sink: pipeline.SinkFunc(func(e pipeline.Event) {
				logger.Debugw("progress",
					"stage", string(e.Stage),
					"percent", fmt.Sprintf("%.0f%%", e.Percent*100),
					"message", e.Message,
				)
			}),
		},
		logger,
	)

	preview, err := orchestrator.BuildPreview(ctx, script, narrationPath)
	if err != nil {
		return err
	}

	fmt.Println(sceneTable(preview))
	for _, w := range preview.Warnings {
		logger.Warnw("No media found",
			"scene", w.SceneIndex,
			"tried", w.Exhausted,
		)
	}

	if subtitleFormat != "" {
		if err := exportSubtitles(preview, subtitleFormat, outputPath); err != nil {
			return err
		}
	}

	if previewOnly {
		fmt.Println("Preview ready; skipping render (--preview-only)")
		return nil
	}

	finalPath, err := orchestrator.Render(ctx, preview, outputPath)
	if err != nil {
		return err
	}

	absOutput, _ := filepath.Abs(finalPath)
	fmt.Printf("Video generated successfully: %s\n", absOutput)
	fmt.Printf("  Scenes:   %d\n", len(preview.Timeline.Scenes))
	fmt.Printf("  Duration: %s\n", preview.Timeline.TotalDuration.String())

	return nil
}

// flags beat the settings file when set
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("aspect") {
		cfg.Settings.AspectRatio, _ = cmd.Flags().GetString("aspect")
	}
	if cmd.Flags().Changed("voice") {
		cfg.Settings.TTSVoice, _ = cmd.Flags().GetString("voice")
	}
	if cmd.Flags().Changed("workers") {
		cfg.Settings.Workers, _ = cmd.Flags().GetInt("workers")
	}
	if cmd.Flags().Changed("placeholder") {
		cfg.Settings.PlaceholderScenes, _ = cmd.Flags().GetBool("placeholder")
	}
}

// returns a local audio file with the narration, synthesizing it when
// no recording was supplied
func prepareNarration(
	ctx context.Context,
	cfg *config.Config,
	script, audioInput, runDir string,
) (string, error) {
	narrationPath := filepath.Join(runDir, "narration.mp3")

	if audioInput == "" {
		logger.Infow("Synthesizing narration", "voice", cfg.Settings.TTSVoice)
		speaker, err := tts.Factory(tts.ProviderPollinations, cfg.PollinationsAPIKey, tts.Options{
			Voice: cfg.Settings.TTSVoice,
		})
		if err != nil {
			return "", fmt.Errorf("create speech synthesizer: %w", err)
		}
		if err := speaker.Speak(ctx, script, narrationPath); err != nil {
			return "", fmt.Errorf("synthesize narration: %w", err)
		}
		return narrationPath, nil
	}

	if _, err := os.Stat(audioInput); os.IsNotExist(err) {
		return "", fmt.Errorf("file not found: %s", audioInput)
	}
	if !audio.IsMediaFile(audioInput) {
		return "", fmt.Errorf("unsupported file type: %s (expected audio or video file)", filepath.Ext(audioInput))
	}

	opts := audio.DefaultCompressionOptions()
	if audio.IsVideoFile(audioInput) {
		logger.Infow("Extracting narration from video")
		if err := audio.ExtractAudio(ctx, audioInput, narrationPath, opts); err != nil {
			return "", fmt.Errorf("extract narration: %w", err)
		}
	} else {
		logger.Infow("Compressing narration for alignment")
		if err := audio.CompressAudio(ctx, audioInput, narrationPath, opts); err != nil {
			return "", fmt.Errorf("compress narration: %w", err)
		}
	}
	return narrationPath, nil
}

func segmenterKey(cfg *config.Config, provider segment.Provider) string {
	switch provider {
	case segment.ProviderOpenAI:
		return cfg.OpenAIAPIKey
	case segment.ProviderAnthropic:
		return cfg.AnthropicAPIKey
	default:
		return cfg.GeminiAPIKey
	}
}

// assembles the provider fallback chain in the configured order
func buildResolver(cfg *config.Config, useClips bool, assetDir string) (*media.Resolver, error) {
	var providers []media.Provider
	for _, name := range cfg.Settings.EnabledSources {
		switch name {
		case "pexels":
			if cfg.PexelsAPIKey == "" {
				logger.Warnw("Skipping Pexels: PEXELS_API_KEY not set")
				continue
			}
			p, err := media.NewPexelsProvider(cfg.PexelsAPIKey, cfg.Orientation(), useClips)
			if err != nil {
				return nil, fmt.Errorf("create pexels provider: %w", err)
			}
			providers = append(providers, p)
		case "pollinations":
			providers = append(providers, media.NewPollinationsProvider("", cfg.Orientation()))
		case "duckduckgo":
			providers = append(providers, media.NewDuckDuckGoProvider())
		}
	}
	if len(providers) == 0 {
		return nil, fmt.Errorf("no usable media sources: check enabled_sources and API keys")
	}

	if err := os.MkdirAll(assetDir, 0755); err != nil {
		return nil, fmt.Errorf("create asset directory: %w", err)
	}

	opts := media.DefaultResolverOptions()
	opts.Orientation = cfg.Orientation()
	opts.Timeout = time.Duration(cfg.Settings.ProviderTimeout)
	opts.MaxAttempts = cfg.Settings.MaxAttempts

	return media.NewResolver(providers, media.NewHTTPFetcher(assetDir), opts, logger), nil
}

// renders the planned scenes for inspection before committing to ffmpeg
func sceneTable(preview *pipeline.Preview) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"#", "Start", "End", "Source", "Visual Query"})

	for _, s := range preview.Timeline.Scenes {
		source := "-"
		if s.Media != nil {
			source = string(s.Media.Source)
		}
		tw.AppendRow(table.Row{
			s.Index,
			formatClock(s.Start),
			formatClock(s.End),
			source,
			truncate(s.Query, 48),
		})
	}
	return tw.Render()
}

func formatClock(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func exportSubtitles(preview *pipeline.Preview, formatStr, outputPath string) error {
	var format subtitle.Format
	switch strings.ToLower(formatStr) {
	case "srt":
		format = subtitle.FormatSRT
	case "vtt":
		format = subtitle.FormatVTT
	default:
		return fmt.Errorf("unsupported subtitle format %q: use srt or vtt", formatStr)
	}

	writer, err := subtitle.NewWriter(format)
	if err != nil {
		return err
	}

	subPath := strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + subtitle.GetExtensionForFormat(format)
	if err := writer.Write(preview.Timeline.Subtitles, subPath); err != nil {
		return fmt.Errorf("write subtitles: %w", err)
	}
	logger.Infow("Subtitles written", "path", subPath)
	return nil
}
