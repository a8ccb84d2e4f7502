// Package main provides the LM Buddy CLI application entry point.
// LM Buddy is a desktop assistant that answers questions and applies actions to
// the text and image of the active window using an OpenAI-compatible LLM.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lmbuddy/internal/logger"
	"lmbuddy/internal/version"
)

var (
	configPath string
	logLevel   string
	logFile    string
	testMode   bool
	plainMode  bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "lmbuddy",
	Short: "LM Buddy - hotkey driven desktop assistant",
	Long: `LM Buddy captures the active window, extracts its text and lets you ask an
LLM about it, or simply chat. Responses stream into the console.`,
	SilenceUsage: true,
	RunE:         runConsole, // Default behavior is the interactive console
}

// runCmd is the explicit version of the default behavior
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the interactive console with the global hotkey",
	RunE:  runConsole,
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a single question and print the streamed answer",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

var (
	actionImage    string
	actionLanguage string
	jsonMode       bool
)

var actionCmd = &cobra.Command{
	Use:   "action <key>",
	Short: "Apply an action to the text and image of a screenshot file",
	Long: `Run OCR on an image file and apply one of the prompt actions to it, as if the
image had been captured with the hotkey.`,
	Args: cobra.ExactArgs(1),
	RunE: runAction,
}

var detailedVersion bool

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, _ []string) {
		if detailedVersion {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.GetDetailedVersion())
			return
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.GetFormattedVersion())
	},
}

func main() {
	runMain(func() {
		if err := rootCmd.Execute(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	})
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (JSON, YAML or TOML) [default: ~/.config/lmbuddy/config.yaml]")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Set log level (debug|info|warn|error) [default: info]")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to file instead of stderr")
	rootCmd.PersistentFlags().BoolVar(&testMode, "test-mode", false, "Run in deterministic test mode")
	rootCmd.PersistentFlags().BoolVar(&plainMode, "plain", false, "Disable colors and markdown rendering")

	// Bind flags to viper
	for _, name := range []string{"log-level", "log-file", "test-mode"} {
		if err := viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			fmt.Fprintf(os.Stderr, "Error binding %s flag: %v\n", name, err)
			os.Exit(1)
		}
	}

	actionCmd.Flags().StringVar(&actionImage, "image", "", "Image file to use as the capture")
	actionCmd.Flags().StringVar(&actionLanguage, "lang", "", "Target language for the translate action")
	_ = actionCmd.MarkFlagRequired("image")

	for _, cmd := range []*cobra.Command{askCmd, actionCmd} {
		cmd.Flags().BoolVar(&jsonMode, "json", false, "Print one JSON object per line instead of streaming text")
	}

	versionCmd.Flags().BoolVar(&detailedVersion, "detailed", false, "Show build details")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(actionCmd)
	rootCmd.AddCommand(versionCmd)

	// Configure logger before any command execution
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// Configure logger with CLI flags
	if err := logger.Configure(logLevel, logFile, testMode); err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logger: %v\n", err)
		os.Exit(1)
	}
}
