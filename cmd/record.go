package cmd

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/memorable/voicenotes/internal/playback"
	"github.com/memorable/voicenotes/internal/recorder"
	"github.com/memorable/voicenotes/internal/service"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record [title]",
	Short: "Record a new voice memo",
	Long: `Record audio from the default microphone into a new voice memo.

While recording, type 'p' + Enter to pause, 'r' + Enter to resume and
'q' + Enter (or Ctrl+C) to stop and save.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		title := ""
		if len(args) == 1 {
			title = args[0]
		}

		svc := service.New(cfg)

		slog.Debug("starting recording session")
		if err := svc.StartRecording(cmd.Context()); err != nil {
			return fmt.Errorf("failed to start recording: %w", err)
		}

		fmt.Println("Recording... ('p' pause, 'r' resume, 'q' stop)")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		inputChan := make(chan string)
		go func() {
			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				inputChan <- scanner.Text()
			}
		}()

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-sigChan:
				return stopAndSave(svc, title)

			case line := <-inputChan:
				switch line {
				case "p":
					if err := svc.PauseRecording(); err != nil {
						slog.Error("pause failed", "error", err)
					} else {
						fmt.Println("Paused")
					}
				case "r":
					if err := svc.ResumeRecording(); err != nil {
						slog.Error("resume failed", "error", err)
					} else {
						fmt.Println("Recording")
					}
				case "q":
					return stopAndSave(svc, title)
				}

			case <-ticker.C:
				if svc.RecordingState() == recorder.StateRecording {
					fmt.Printf("\r%s ", playback.FormatTime(float64(svc.RecordingDuration())))
				}
			}
		}
	},
}

func stopAndSave(svc service.Service, title string) error {
	fmt.Println("\nStopping...")
	note, err := svc.StopAndSave(title)
	if err != nil {
		return fmt.Errorf("failed to save recording: %w", err)
	}
	if note == nil {
		fmt.Println("Nothing recorded")
		return nil
	}
	fmt.Printf("Saved %q (%s, %s)\n", note.Title, playback.FormatTime(float64(note.Audio.Duration)), note.ID)
	return nil
}
