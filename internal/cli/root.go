package cli

import (
	"github.com/kpai47/katha/internal/logging"
	"github.com/spf13/cobra"
)

var (
	verbose      bool
	settingsPath string
	logger       *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "katha",
	Short: "AI-powered script to video generator",
	Long: `Katha turns a narration script into a finished video.

It synthesizes or aligns narration audio, plans visual scenes with an
LLM, gathers matching stock footage and generated imagery, and renders
the result with burned-in subtitles.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = logging.NewLogger(verbose)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().
		BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		StringVarP(&settingsPath, "settings", "s", "katha.yaml", "Settings file path")
}
