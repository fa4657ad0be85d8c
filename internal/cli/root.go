// Package cli provides the command-line interface for sqlsentinel.
package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sqlsentinel",
		Short: "sqlsentinel - SQL query normalizer",
		Long: `sqlsentinel turns raw SQL into a short title and a redacted statement
safe to attach to traces.

Literals are replaced with ?, the statement verb and table form the title, and
schema or cache lookups are skipped.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./sqlsentinel.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log-format", "", "Log format (json|console)")

	_ = rootCmd.RegisterFlagCompletionFunc("log-format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"json", "console"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(NewNormalizeCommand())
	rootCmd.AddCommand(NewServeCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func setupLogger(level, format string, out io.Writer) zerolog.Logger {
	lvl := zerolog.InfoLevel
	switch strings.ToLower(level) {
	case "debug":
		lvl = zerolog.DebugLevel
	case "warn":
		lvl = zerolog.WarnLevel
	case "error":
		lvl = zerolog.ErrorLevel
	}

	if format == "console" || format == "text" {
		out = zerolog.ConsoleWriter{Out: out}
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
