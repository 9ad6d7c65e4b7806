package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kpai47/katha/internal/timeline"
)

// duration setting that reads and writes human-readable values
// ("30s", "1m"); bare numbers keep their nanosecond meaning
type Duration time.Duration

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err == nil {
		*d = Duration(n)
		return nil
	}
	return fmt.Errorf("invalid duration value %q", value.Value)
}

// user-tunable settings, persisted as YAML
type Settings struct {
	AspectRatio       string   `yaml:"aspect_ratio"`        // "16:9" or "9:16"
	TTSVoice          string   `yaml:"tts_voice"`           // voice name for narration synthesis
	ImageAnimation    bool     `yaml:"image_animation"`     // Ken Burns effect on still images
	EnabledSources    []string `yaml:"enabled_sources"`     // ordered media provider chain
	Workers           int      `yaml:"workers"`             // media resolution pool size
	ProviderTimeout   Duration `yaml:"provider_timeout"`    // per provider call
	MaxAttempts       int      `yaml:"max_attempts"`        // retries per provider on transient errors
	PlaceholderScenes bool     `yaml:"placeholder_scenes"`  // synthesize a card for unresolved scenes
	MaxLineDuration   Duration `yaml:"max_line_duration"`   // subtitle grouping
	MaxWordsPerLine   int      `yaml:"max_words_per_line"`  // subtitle grouping
	OutputDir         string   `yaml:"output_dir"`
}

func DefaultSettings() Settings {
	return Settings{
		AspectRatio:     "16:9",
		TTSVoice:        "alloy",
		ImageAnimation:  true,
		EnabledSources:  []string{"pexels", "pollinations", "duckduckgo"},
		Workers:         3,
		ProviderTimeout: Duration(30 * time.Second),
		MaxAttempts:     3,
		MaxLineDuration: Duration(5 * time.Second),
		MaxWordsPerLine: 9,
		OutputDir:       "output",
	}
}

// API credentials plus settings, passed explicitly into the pipeline
type Config struct {
	PexelsAPIKey       string
	PollinationsAPIKey string
	GeminiAPIKey       string
	OpenAIAPIKey       string
	AnthropicAPIKey    string

	Settings Settings
}

// target orientation derived from the aspect ratio setting
func (c *Config) Orientation() timeline.Orientation {
	if c.Settings.AspectRatio == "9:16" {
		return timeline.OrientationPortrait
	}
	return timeline.OrientationLandscape
}

// reads credentials from the environment (.env honored when present) and
// settings from settingsPath when it exists, falling back to defaults
func Load(settingsPath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		PexelsAPIKey:       os.Getenv("PEXELS_API_KEY"),
		PollinationsAPIKey: os.Getenv("POLLINATIONS_API_KEY"),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		AnthropicAPIKey:    os.Getenv("ANTHROPIC_API_KEY"),
		Settings:           DefaultSettings(),
	}

	if settingsPath != "" {
		if data, err := os.ReadFile(settingsPath); err == nil {
			if err := yaml.Unmarshal(data, &cfg.Settings); err != nil {
				return nil, fmt.Errorf("parse settings %s: %w", settingsPath, err)
			}
			cfg.Settings.applyDefaults()
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read settings %s: %w", settingsPath, err)
		}
	}

	if err := cfg.Settings.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// writes the current settings back to disk
func (s Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// fills zero values left by a sparse settings file
func (s *Settings) applyDefaults() {
	def := DefaultSettings()
	if s.AspectRatio == "" {
		s.AspectRatio = def.AspectRatio
	}
	if s.TTSVoice == "" {
		s.TTSVoice = def.TTSVoice
	}
	if len(s.EnabledSources) == 0 {
		s.EnabledSources = def.EnabledSources
	}
	if s.Workers <= 0 {
		s.Workers = def.Workers
	}
	if s.ProviderTimeout <= 0 {
		s.ProviderTimeout = def.ProviderTimeout
	}
	if s.MaxAttempts <= 0 {
		s.MaxAttempts = def.MaxAttempts
	}
	if s.MaxLineDuration <= 0 {
		s.MaxLineDuration = def.MaxLineDuration
	}
	if s.MaxWordsPerLine <= 0 {
		s.MaxWordsPerLine = def.MaxWordsPerLine
	}
	if s.OutputDir == "" {
		s.OutputDir = def.OutputDir
	}
}

func (s Settings) Validate() error {
	if s.AspectRatio != "16:9" && s.AspectRatio != "9:16" {
		return fmt.Errorf("unsupported aspect ratio %q: use 16:9 or 9:16", s.AspectRatio)
	}
	if len(s.EnabledSources) == 0 {
		return fmt.Errorf("at least one media source must be enabled")
	}
	for _, src := range s.EnabledSources {
		switch src {
		case "pexels", "pollinations", "duckduckgo":
		default:
			return fmt.Errorf("unknown media source %q", src)
		}
	}
	return nil
}
