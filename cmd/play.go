package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/memorable/voicenotes/internal/playback"
	"github.com/memorable/voicenotes/internal/service"

	"github.com/spf13/cobra"
)

var playCmd = &cobra.Command{
	Use:   "play <note-id>",
	Short: "Play back a voice memo",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := service.New(cfg)

		if err := svc.PlayNote(args[0]); err != nil {
			return fmt.Errorf("failed to play note: %w", err)
		}
		defer svc.StopPlayback()

		status := svc.PlaybackStatus()
		fmt.Printf("Playing (%s backend), duration %s - Ctrl+C to stop\n", status.Backend, status.Duration)

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-sigChan:
				fmt.Println("\nStopped")
				return nil
			case <-ticker.C:
				status = svc.PlaybackStatus()
				if status.State == playback.StateEnded || status.State == playback.StateUnloaded {
					fmt.Println("\nPlayback completed")
					return nil
				}
				fmt.Printf("\r%s / %s ", status.CurrentTime, status.Duration)
			}
		}
	},
}
