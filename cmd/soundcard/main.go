// ABOUTME: Entry point for the soundcard command line tool
// ABOUTME: Loads configuration, sets up logging and dispatches subcommands
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/Resonate-Protocol/soundcard-go/internal/config"
	"github.com/Resonate-Protocol/soundcard-go/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// app holds what the persistent pre-run prepared for the subcommands
var app struct {
	cfg       config.Config
	logger    *logrus.Logger
	logCloser io.Closer
}

var rootCmd = &cobra.Command{
	Use:           "soundcard",
	Short:         "Play and record audio on local sound devices",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(path, cmd.Flags().Changed("config"))
		if err != nil {
			return err
		}
		if err := cfg.ApplyFlags(cmd.Flags()); err != nil {
			return err
		}

		logger, closer, err := logging.New(logging.Options{
			Level:  cfg.Log.Level,
			Format: cfg.Log.Format,
			File:   cfg.Log.File,
			Quiet:  ownsTerminal(cmd),
		})
		if err != nil {
			return err
		}

		app.cfg = cfg
		app.logger = logger
		app.logCloser = closer
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if app.logCloser != nil {
			return app.logCloser.Close()
		}
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", config.DefaultPath, "Path to configuration file")
	flags.String("backend", "auto", "Audio backend (auto, miniaudio, oto, virtual)")
	flags.Int("samplerate", 48000, "Stream sample rate in Hz")
	flags.Int("blocksize", 0, "Chunk size hint in frames (0 lets the backend choose)")
	flags.String("app-name", "", "Application name shown by sound servers")
	flags.String("log-level", "info", "Logging level (debug, info, warn, error)")
	flags.String("log-format", "text", "Logging format (text, json)")
	flags.String("log-file", "", "Also write logs to this file")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address, e.g. :9100")

	rootCmd.AddCommand(listCmd, toneCmd, playCmd, recordCmd, monitorCmd, loopbackCmd, versionCmd)
}

// ownsTerminal reports whether the command runs a full screen UI, in which
// case logs must not go to stderr
func ownsTerminal(cmd *cobra.Command) bool {
	if cmd != monitorCmd {
		return false
	}
	noTUI, _ := cmd.Flags().GetBool("no-tui")
	return !noTUI
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
