package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/audiobridge/mediachan/internal/channel"
	"github.com/audiobridge/mediachan/internal/engine"
)

var recordFor time.Duration

var recordCmd = &cobra.Command{
	Use:   "record <file>",
	Short: "Record the microphone to a WAV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := engine.NewPortAudio(cfg.Audio.DeviceID, log)
		if err != nil {
			return fmt.Errorf("failed to initialize audio: %w", err)
		}
		defer eng.Close()

		events := make(chan channel.StatusEvent, 64)
		ch := newChannel("cli", args[0], eng, events)
		defer ch.Destroy()

		ch.StartRecording(args[0])
		if ch.State() != channel.StateRunning {
			return fmt.Errorf("recording did not start")
		}
		log.Info().Str("file", args[0]).Msg("Recording; press Ctrl-C to stop")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

		var timeout <-chan time.Time
		if recordFor > 0 {
			timeout = time.After(recordFor)
		}

		for {
			select {
			case <-sigChan:
				ch.StopRecording()
				return nil
			case <-timeout:
				ch.StopRecording()
				return nil
			case ev := <-events:
				printEvent(ev)
				if ev.Kind == channel.KindError {
					return fmt.Errorf("recording failed with code %d", ev.Code)
				}
			}
		}
	},
}

func init() {
	recordCmd.Flags().DurationVar(&recordFor, "duration", 0, "stop automatically after this long (0 = until interrupted)")
}
