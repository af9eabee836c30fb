package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/audiobridge/mediachan/internal/engine"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available audio input devices",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := engine.NewPortAudio("", log)
		if err != nil {
			return fmt.Errorf("failed to initialize audio: %w", err)
		}
		defer eng.Close()

		devices, err := eng.ListDevices()
		if err != nil {
			return err
		}
		for _, d := range devices {
			marker := " "
			if d.Default {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, d.Name)
		}
		return nil
	},
}
