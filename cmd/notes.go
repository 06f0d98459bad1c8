package cmd

import (
	"fmt"
	"strings"

	"github.com/memorable/voicenotes/internal/notes"
	"github.com/memorable/voicenotes/internal/playback"
	"github.com/memorable/voicenotes/internal/service"

	"github.com/spf13/cobra"
)

var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "Manage stored notes",
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var notesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all notes, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := service.New(cfg)
		all, err := svc.Notes().List()
		if err != nil {
			return fmt.Errorf("failed to list notes: %w", err)
		}
		printNotes(all)
		return nil
	},
}

var notesSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search notes by title or body substring",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := service.New(cfg)
		matched, err := svc.Notes().Search(args[0])
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}
		printNotes(matched)
		return nil
	},
}

var notesAddCmd = &cobra.Command{
	Use:   "add <title> [body...]",
	Short: "Add a text note",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := service.New(cfg)
		note, err := svc.Notes().CreateText(args[0], strings.Join(args[1:], " "))
		if err != nil {
			return fmt.Errorf("failed to create note: %w", err)
		}
		fmt.Printf("Created %q (%s)\n", note.Title, note.ID)
		return nil
	},
}

var notesDeleteCmd = &cobra.Command{
	Use:   "delete <note-id>",
	Short: "Delete a note and its recording",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := service.New(cfg)
		if err := svc.Notes().Delete(args[0]); err != nil {
			return fmt.Errorf("failed to delete note: %w", err)
		}
		fmt.Println("Deleted")
		return nil
	},
}

var notesExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all notes as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc := service.New(cfg)
		data, err := svc.Notes().ExportYAML()
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		fmt.Print(string(data))
		return nil
	},
}

func printNotes(list []notes.Note) {
	if len(list) == 0 {
		fmt.Println("No notes")
		return
	}
	for _, note := range list {
		switch note.Type {
		case notes.TypeAudio:
			duration := "?"
			if note.Audio != nil {
				duration = playback.FormatTime(float64(note.Audio.Duration))
			}
			fmt.Printf("%s  [voice %s]  %s\n", note.ID, duration, note.Title)
		default:
			fmt.Printf("%s  [text]  %s\n", note.ID, note.Title)
		}
	}
}

func init() {
	notesCmd.AddCommand(notesListCmd)
	notesCmd.AddCommand(notesSearchCmd)
	notesCmd.AddCommand(notesAddCmd)
	notesCmd.AddCommand(notesDeleteCmd)
	notesCmd.AddCommand(notesExportCmd)
}
