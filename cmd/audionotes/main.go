package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SarcasticNickname/AudioNotes-sub000/internal/api"
	"github.com/SarcasticNickname/AudioNotes-sub000/internal/backup"
	"github.com/SarcasticNickname/AudioNotes-sub000/internal/config"
	"github.com/SarcasticNickname/AudioNotes-sub000/internal/content"
	"github.com/SarcasticNickname/AudioNotes-sub000/internal/domain"
	"github.com/SarcasticNickname/AudioNotes-sub000/internal/media"
	"github.com/SarcasticNickname/AudioNotes-sub000/internal/placeholder"
	"github.com/SarcasticNickname/AudioNotes-sub000/internal/store"
)

var dbPath string

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:   "audionotes",
		Short: "Notes with inline audio recordings",
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", cfg.DBPath, "database path")

	rootCmd.AddCommand(newCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(searchCmd())
	rootCmd.AddCommand(recordCmd(cfg))
	rootCmd.AddCommand(archiveCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(backupCmd(cfg))
	rootCmd.AddCommand(restoreCmd(cfg))
	rootCmd.AddCommand(serveCmd(cfg))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getStore() (*store.Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	return store.New(dbPath)
}

func newCmd() *cobra.Command {
	var title, category string

	cmd := &cobra.Command{
		Use:   "new [content]",
		Short: "Create a new note",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			draft := &domain.Note{
				Title:    title,
				Content:  strings.Join(args, " "),
				Category: domain.CategoryFromName(strings.ToUpper(category)),
			}
			id, err := s.SaveNote(cmd.Context(), draft, nil)
			if err != nil {
				return err
			}

			fmt.Printf("Created note %d: %s\n", id, draft.DisplayTitle())
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "note title")
	cmd.Flags().StringVarP(&category, "category", "c", "", "note category")
	return cmd
}

func listCmd() *cobra.Command {
	var limit int
	var archived bool
	var category string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notes",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			filter := store.ListFilter{Archived: &archived, Limit: limit}
			if category != "" {
				cat := domain.CategoryFromName(strings.ToUpper(category))
				filter.Category = &cat
			}

			notes, err := s.ListNotes(cmd.Context(), filter)
			if err != nil {
				return err
			}

			if len(notes) == 0 {
				fmt.Println("No notes yet. Use 'audionotes new' to create one.")
				return nil
			}

			printNotes(notes)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of notes to show")
	cmd.Flags().BoolVar(&archived, "archived", false, "show archived notes")
	cmd.Flags().StringVarP(&category, "category", "c", "", "filter by category")
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Show a note with its audio attachments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			note, err := s.GetNote(cmd.Context(), id)
			if err != nil {
				return err
			}
			blocks, err := s.GetAudioBlocks(cmd.Context(), id)
			if err != nil {
				return err
			}

			fmt.Printf("ID:       %d\n", note.ID)
			fmt.Printf("Title:    %s\n", note.DisplayTitle())
			fmt.Printf("Category: %s\n", note.Category)
			fmt.Printf("Created:  %s\n", note.CreatedAt.Format("2006-01-02 15:04:05"))
			if note.ReminderAt != nil {
				fmt.Printf("Reminder: %s\n", note.ReminderAt.Format("2006-01-02 15:04:05"))
			}
			fmt.Println()

			for _, seg := range content.Segments(note.Content, blocks) {
				if seg.Kind == content.SegmentAudio {
					dur := time.Duration(seg.Block.DurationMs) * time.Millisecond
					fmt.Printf("[audio %d, %s]", seg.Block.ID, dur.Round(100*time.Millisecond))
				} else {
					fmt.Print(seg.Text)
				}
			}
			fmt.Println()
			return nil
		},
	}
}

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search [query]",
		Short: "Search notes by title or content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			notes, err := s.ListNotes(cmd.Context(), store.ListFilter{Query: args[0]})
			if err != nil {
				return err
			}

			if len(notes) == 0 {
				fmt.Println("No matching notes found.")
				return nil
			}

			printNotes(notes)
			return nil
		},
	}
}

func recordCmd(cfg *config.Config) *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a voice note from the microphone",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			rec := media.NewRecorder(cfg.RecordingsDir)
			if err := rec.Start(cmd.Context()); err != nil {
				return err
			}

			fmt.Println("Recording... press Enter to stop.")
			bufio.NewReader(os.Stdin).ReadString('\n')

			path, err := rec.Stop(cmd.Context())
			if err != nil {
				return err
			}

			var durationMs int64
			if d, err := media.WAVProber{}.Probe(path); err == nil {
				durationMs = d.Milliseconds()
			}

			blockID := time.Now().UnixMilli()
			draft := &domain.Note{
				Title:   title,
				Content: placeholder.Encode(blockID),
			}
			blocks := []domain.AudioBlock{{ID: blockID, FilePath: path, DurationMs: durationMs}}

			id, err := s.SaveNote(cmd.Context(), draft, blocks)
			if err != nil {
				return err
			}

			fmt.Printf("Created note %d with a %.1fs recording\n", id, float64(durationMs)/1000)
			return nil
		},
	}

	cmd.Flags().StringVarP(&title, "title", "t", "", "note title")
	return cmd
}

func archiveCmd() *cobra.Command {
	var undo bool

	cmd := &cobra.Command{
		Use:   "archive [id]",
		Short: "Archive a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.SetArchived(cmd.Context(), id, !undo); err != nil {
				return err
			}
			if undo {
				fmt.Printf("Unarchived note %d\n", id)
			} else {
				fmt.Printf("Archived note %d\n", id)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&undo, "undo", false, "unarchive instead")
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a note and its recordings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}

			s, err := getStore()
			if err != nil {
				return err
			}
			defer s.Close()

			paths, err := s.DeleteNote(cmd.Context(), id)
			if err != nil {
				return err
			}
			for _, p := range paths {
				if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
					fmt.Printf("  warning: couldn't remove %s: %v\n", p, err)
				}
			}

			fmt.Printf("Deleted note %d (%d recordings removed)\n", id, len(paths))
			return nil
		},
	}
}

func backupCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Upload all notes to the configured S3 bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, s, err := backupService(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := svc.Export(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Backed up %d notes to %s\n", n, cfg.Backup.Bucket)
			return nil
		},
	}
}

func restoreCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "restore",
		Short: "Restore notes from the configured S3 bucket",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, s, err := backupService(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := svc.Restore(cmd.Context(), cfg.RecordingsDir)
			if err != nil {
				return err
			}
			fmt.Printf("Restored %d notes from %s\n", n, cfg.Backup.Bucket)
			return nil
		},
	}
}

func backupService(ctx context.Context, cfg *config.Config) (*backup.Service, *store.Store, error) {
	if cfg.Backup.Bucket == "" {
		return nil, nil, fmt.Errorf("no backup bucket configured")
	}

	s, err := getStore()
	if err != nil {
		return nil, nil, err
	}

	client, err := backup.NewS3Client(ctx, cfg.Backup.AWSProfile, cfg.Backup.AWSRegion)
	if err != nil {
		s.Close()
		return nil, nil, err
	}

	return backup.New(s, client, cfg.Backup.Bucket, slog.Default()), s, nil
}

func serveCmd(cfg *config.Config) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the REST API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getStore()
			if err != nil {
				return err
			}
			// Note: don't defer s.Close() as server runs indefinitely

			server := api.New(s, addr, slog.Default())
			return server.Run()
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", cfg.ListenAddr, "server address")
	return cmd
}

func parseID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid note id: %s", arg)
	}
	return id, nil
}

func printNotes(notes []domain.Note) {
	for _, n := range notes {
		marker := " "
		if placeholder.FindAll(n.Content) != nil {
			marker = "♪"
		}
		fmt.Printf("%4d %s %-10s %s\n", n.ID, marker, n.Category, truncate(n.DisplayTitle(), 60))
	}
}

func truncate(s string, max int) string {
	// Replace newlines with spaces for display
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
