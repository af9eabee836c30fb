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

var (
	seekMs     int
	playVolume float64
)

var playCmd = &cobra.Command{
	Use:   "play <file>",
	Short: "Play a local file, bundled asset, or streamed URL",
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

		ch.StartPlaying(args[0])
		if seekMs > 0 {
			ch.SeekTo(seekMs)
		}
		if cmd.Flags().Changed("volume") {
			go func() {
				for ch.State() != channel.StateRunning {
					time.Sleep(10 * time.Millisecond)
				}
				ch.SetVolume(playVolume)
			}()
		}

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

		for {
			select {
			case <-sigChan:
				log.Info().Msg("Interrupted")
				ch.StopPlaying()
				return nil
			case ev := <-events:
				printEvent(ev)
				if ev.Kind == channel.KindError {
					return fmt.Errorf("playback failed with code %d", ev.Code)
				}
				if ev.Kind == channel.KindState && channel.State(ev.Value) == channel.StateStopped {
					return nil
				}
			}
		}
	},
}

func init() {
	playCmd.Flags().IntVar(&seekMs, "seek", 0, "start position in milliseconds")
	playCmd.Flags().Float64Var(&playVolume, "volume", 1.0, "playback volume (0.0-1.0)")
}
