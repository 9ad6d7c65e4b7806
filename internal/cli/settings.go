package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kpai47/katha/internal/config"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage the settings file",
}

var settingsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a settings file with default values",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(settingsPath); err == nil {
			return fmt.Errorf("settings file already exists: %s", settingsPath)
		}
		if err := config.DefaultSettings().Save(settingsPath); err != nil {
			return err
		}
		fmt.Printf("Settings written to %s\n", settingsPath)
		return nil
	},
}

var settingsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(settingsPath)
		if err != nil {
			return err
		}
		s := cfg.Settings
		fmt.Printf("aspect_ratio:       %s\n", s.AspectRatio)
		fmt.Printf("tts_voice:          %s\n", s.TTSVoice)
		fmt.Printf("image_animation:    %t\n", s.ImageAnimation)
		fmt.Printf("enabled_sources:    %v\n", s.EnabledSources)
		fmt.Printf("workers:            %d\n", s.Workers)
		fmt.Printf("provider_timeout:   %s\n", s.ProviderTimeout)
		fmt.Printf("max_attempts:       %d\n", s.MaxAttempts)
		fmt.Printf("placeholder_scenes: %t\n", s.PlaceholderScenes)
		fmt.Printf("output_dir:         %s\n", s.OutputDir)
		return nil
	},
}

func init() {
	settingsCmd.AddCommand(settingsInitCmd)
	settingsCmd.AddCommand(settingsShowCmd)
	rootCmd.AddCommand(settingsCmd)
}
