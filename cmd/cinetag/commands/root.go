// Package commands implements the CLI commands for cinetag.
package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/cinetag/internal/logger"
	"github.com/jmylchreest/cinetag/pkg/extractor"
)

var rootCmd = &cobra.Command{
	Use:   "cinetag",
	Short: "Extract structured content metadata from show and movie descriptions",
	Long: `Cinetag turns free-text show and movie descriptions into validated
content metadata (genres, themes, mood, audience and content warnings)
using an LLM. Invalid model output is repaired with targeted follow-up
prompts up to a fixed number of attempts.

Examples:
  # Tag a single description
  cinetag extract "A brilliant group of students become card-counting experts."

  # Tag a catalogue export
  cinetag batch -i netflix.csv -o tagged.csv --format csv

  # Measure quality against hand-labeled examples
  cinetag evaluate -a ground_truth.yaml --dataset netflix.csv --sample 50

  # Use local Ollama
  cinetag extract -p ollama -m llama3.2 "..."`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logger.Init(logger.Options{
			Debug: viper.GetBool("debug"),
			Quiet: viper.GetBool("quiet"),
			Level: viper.GetString("log_level"),
			JSON:  viper.GetBool("log_json"),
		})
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()

	// Global flags
	flags.String("config", "", "config file (default $HOME/.cinetag.yaml)")
	flags.Bool("debug", false, "enable debug logging")
	flags.BoolP("quiet", "q", false, "suppress progress output")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.Bool("log-json", false, "write logs as JSON")

	// LLM settings
	flags.StringP("provider", "p", "", "LLM provider: anthropic, openai, openrouter, gemini, ollama (auto-detects from env vars)")
	flags.StringP("model", "m", "", "model name (provider-specific)")
	flags.StringP("api-key", "k", "", "API key (or use env var)")
	flags.String("base-url", "", "custom API base URL")
	flags.Duration("timeout", 60*time.Second, "per-request timeout")

	// Extraction settings
	flags.Float64("temperature", 0, "sampling temperature")
	flags.Int("max-tokens", 500, "max output tokens per model call")
	flags.Int("max-repair-attempts", extractor.DefaultMaxRepairAttempts, "repair prompts allowed after the first model call")
	flags.Bool("lenient-json", false, "repair malformed JSON (quotes, trailing commas) before validation")

	for key, flag := range map[string]string{
		"config":              "config",
		"debug":               "debug",
		"quiet":               "quiet",
		"log_level":           "log-level",
		"log_json":            "log-json",
		"provider":            "provider",
		"model":               "model",
		"api_key":             "api-key",
		"base_url":            "base-url",
		"timeout":             "timeout",
		"temperature":         "temperature",
		"max_tokens":          "max-tokens",
		"max_repair_attempts": "max-repair-attempts",
		"lenient_json":        "lenient-json",
	} {
		_ = viper.BindPFlag(key, flags.Lookup(flag))
	}
}

func initConfig() {
	// .env is optional; real environment variables win over it
	_ = godotenv.Load()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigName(".cinetag")
		viper.SetConfigType("yaml")
	}

	// Environment variables
	viper.SetEnvPrefix("CINETAG")
	viper.AutomaticEnv()

	// Read config file (ignore error if not found)
	_ = viper.ReadInConfig()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// logInfo prints an info message to stderr (unless quiet mode).
func logInfo(format string, args ...any) {
	if !viper.GetBool("quiet") {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}
