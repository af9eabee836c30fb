// Command mediachan plays and records audio through a single media
// channel, printing the channel's status events as they arrive.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/audiobridge/mediachan/internal/config"
	"github.com/audiobridge/mediachan/internal/logging"
)

var (
	// Version is set via ldflags at build time
	Version = "dev"

	cfgFile  string
	logLevel string

	cfg *config.Config
	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:     "mediachan",
	Short:   "Single-channel audio playback and recording",
	Version: Version,
	Long: `mediachan drives one audio channel that can either play back a file
(local, bundled asset, or HTTP/RTSP URL) or record the microphone to a
WAV file, never both at once.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		level := cfg.LogLevel
		if logLevel != "" {
			level = logLevel
		}
		log = logging.NewWithLevel(level)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/mediachan/mediachan.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(devicesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
