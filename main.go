// redshift trains and serves a random-forest classifier for transit
// candidates.
//
// Usage:
//
//	redshift train   --catalog=<csv> --output=<dir>
//	redshift rank    --model=<dir> --catalog=<csv> [--target=CP] [--top=10]
//	redshift predict --model=<dir> <value>... | --input=<json>
//	redshift serve   [--port=8080] [--model=<dir>]
//	redshift candidates export --out=<csv>
package main

import (
	"fmt"
	"os"

	"github.com/kartoza/redshift/internal/config"
	"github.com/kartoza/redshift/internal/logging"
	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	config    string
	logLevel  string
	logFormat string
}

// settings is loaded before any subcommand runs.
var settings *config.Settings

var rootCmd = &cobra.Command{
	Use:   "redshift",
	Short: "Classify transit candidates as confirmed planets or false positives",
	Long: `Redshift trains a random forest on a labeled transit catalog, ranks
unlabeled catalogs by planet likelihood and serves single and batch
verification over HTTP.`,
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: setup,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.StringVar(&rootFlags.config, "config", "", "Settings file (default ./"+config.DefaultSettingsFile+" if present)")
	f.StringVar(&rootFlags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	f.StringVar(&rootFlags.logFormat, "log-format", "", "Log format: text or json")

	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(rankCmd)
	rootCmd.AddCommand(predictCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(candidatesCmd)
	rootCmd.Version = version
}

func setup(cmd *cobra.Command, _ []string) error {
	s, err := config.LoadSettings(rootFlags.config)
	if err != nil {
		return err
	}
	if rootFlags.logLevel != "" {
		s.Log.Level = rootFlags.logLevel
	}
	if rootFlags.logFormat != "" {
		s.Log.Format = rootFlags.logFormat
	}

	level, err := logging.ParseLevel(s.Log.Level)
	if err != nil {
		return err
	}
	logging.Init(level, s.Log.Format, cmd.ErrOrStderr())
	settings = s
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
