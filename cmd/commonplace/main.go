package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/karstlabs/commonplace/internal/config"
	"github.com/karstlabs/commonplace/internal/database"
	"github.com/karstlabs/commonplace/internal/device"
	"github.com/karstlabs/commonplace/internal/logging"
	"github.com/karstlabs/commonplace/internal/notes"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "commonplace",
		Short: "Local-first note store with sync and spaced repetition",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(
		newAddCommand(),
		newShowCommand(),
		newListCommand(),
		newSearchCommand(),
		newStudyCommand(),
		newAnswerCommand(),
		newMergeCommand(),
		newHashtagsCommand(),
		newFoldersCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite store path")
	cmd.PersistentFlags().String("device-path", defaults.GetString("device.path"), "Device identity file path")
	cmd.PersistentFlags().String("device-name", defaults.GetString("device.name"), "Device display name")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")

	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "device.path", "device-path")
	bindFlag(cmd, "device.name", "device-name")
	bindFlag(cmd, "log.level", "log-level")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// openDatabase wires config, logging, identity and conflict detection
// into an opened note database. The caller must Close it.
func openDatabase(ctx context.Context) (*notes.Database, *zap.Logger, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	identity, err := device.Load(appConfig.DevicePath, appConfig.DeviceName)
	if err != nil {
		return nil, nil, err
	}

	db := notes.NewDatabase(notes.Config{
		Path:     appConfig.DatabasePath,
		Identity: identity,
		Logger:   logger,
		Replicas: database.NewDirectoryReplicaSource(appConfig.DatabasePath),
	})
	if err := db.Open(ctx); err != nil {
		return nil, nil, err
	}

	if result, err := db.ResolveConflicts(ctx); err != nil {
		logger.Warn("conflict resolution failed", zap.Error(err))
	} else if !result.Empty() {
		logger.Info("conflicting replicas merged",
			zap.Int("notes", result.Notes), zap.Int("prompts", result.Prompts))
	}
	return db, logger, nil
}

func withDatabase(cmd *cobra.Command, run func(ctx context.Context, db *notes.Database) error) error {
	ctx := cmd.Context()
	db, logger, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	defer db.Close()    //nolint:errcheck
	return run(ctx, db)
}

func newAddCommand() *cobra.Command {
	var title, reference, folder, file string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a note from a file or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd, func(ctx context.Context, db *notes.Database) error {
				body, err := readBody(file)
				if err != nil {
					return err
				}
				note, err := db.CreateNote(ctx, notes.NoteDraft{
					Title:     title,
					Body:      body,
					Reference: reference,
					Folder:    folder,
				})
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), note.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Note title")
	cmd.Flags().StringVar(&reference, "reference", "", "Web URL the note refers to")
	cmd.Flags().StringVar(&folder, "folder", "", "Folder classification")
	cmd.Flags().StringVar(&file, "file", "", "Read the note body from this file instead of stdin")
	return cmd
}

func readBody(file string) (string, error) {
	if file != "" {
		raw, err := os.ReadFile(file)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <note-id>",
		Short: "Print one note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd, func(ctx context.Context, db *notes.Database) error {
				id, err := notes.NewNoteID(args[0])
				if err != nil {
					return err
				}
				note, err := db.Note(ctx, id)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "# %s\n", note.Title)
				if note.Reference != "" {
					fmt.Fprintf(out, "reference: %s\n", note.Reference)
				}
				if len(note.Hashtags) > 0 {
					fmt.Fprintf(out, "hashtags: %v\n", note.Hashtags)
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, note.Body)
				for key, collection := range note.Prompts {
					fmt.Fprintf(out, "prompts[%s]: %d\n", key, len(collection))
				}
				return nil
			})
		},
	}
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all notes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd, func(ctx context.Context, db *notes.Database) error {
				for id, metadata := range db.Metadata() {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", id, metadata.Title, metadata.Folder)
				}
				return nil
			})
		},
	}
}

func newSearchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "search <pattern>",
		Short: "Full-text search over note content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd, func(ctx context.Context, db *notes.Database) error {
				matches, err := db.Search(ctx, args[0])
				if err != nil {
					return err
				}
				for _, id := range matches {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	}
}

func newStudyCommand() *cobra.Command {
	var noteID string
	cmd := &cobra.Command{
		Use:   "study",
		Short: "List prompts due for review",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd, func(ctx context.Context, db *notes.Database) error {
				var scope *notes.NoteID
				if noteID != "" {
					id, err := notes.NewNoteID(noteID)
					if err != nil {
						return err
					}
					scope = &id
				}
				eligible, err := db.EligiblePrompts(ctx, time.Now(), scope)
				if err != nil {
					return err
				}
				for _, identifier := range eligible {
					fmt.Fprintln(cmd.OutOrStdout(), identifier)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&noteID, "note", "", "Limit the session to one note")
	return cmd
}

func newAnswerCommand() *cobra.Command {
	var correct, incorrect int64
	var noBury bool
	cmd := &cobra.Command{
		Use:   "answer <note-id> <prompt-key> <prompt-index>",
		Short: "Record an answer for one prompt",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd, func(ctx context.Context, db *notes.Database) error {
				appConfig, err := config.Load(viper.GetViper())
				if err != nil {
					return err
				}
				id, err := notes.NewNoteID(args[0])
				if err != nil {
					return err
				}
				key, err := notes.NewContentKey(args[1])
				if err != nil {
					return err
				}
				index, err := strconv.Atoi(args[2])
				if err != nil {
					return fmt.Errorf("prompt index must be an integer: %w", err)
				}

				bury := appConfig.BuryRelated && !noBury
				record, err := db.RecordAnswer(ctx, notes.StudyAnswer{
					Prompt:    notes.PromptIdentifier{NoteID: id, Key: key, Index: index},
					Correct:   correct,
					Incorrect: incorrect,
					At:        time.Now(),
				}, bury)
				if err != nil {
					return err
				}
				if record.DueMillis != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "next review: %s\n",
						time.UnixMilli(*record.DueMillis).Format(time.RFC3339))
				}
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&correct, "correct", 1, "Correct answer count")
	cmd.Flags().Int64Var(&incorrect, "incorrect", 0, "Incorrect answer count")
	cmd.Flags().BoolVar(&noBury, "no-bury", false, "Do not defer sibling prompts")
	return cmd
}

func newMergeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "merge <replica-path>",
		Short: "Merge another replica of this store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd, func(ctx context.Context, db *notes.Database) error {
				appConfig, err := config.Load(viper.GetViper())
				if err != nil {
					return err
				}
				identity, err := device.Load(appConfig.DevicePath, appConfig.DeviceName)
				if err != nil {
					return err
				}
				source := notes.NewDatabase(notes.Config{
					Path:     args[0],
					Identity: identity,
					ReadOnly: true,
				})
				if err := source.Open(ctx); err != nil {
					return err
				}
				defer source.Close() //nolint:errcheck

				result, err := db.Merge(ctx, source)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "merged %d notes, %d prompts\n", result.Notes, result.Prompts)
				return nil
			})
		},
	}
}

func newHashtagsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hashtags",
		Short: "List all hashtags",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd, func(ctx context.Context, db *notes.Database) error {
				for _, tag := range db.Hashtags() {
					fmt.Fprintln(cmd.OutOrStdout(), tag)
				}
				return nil
			})
		},
	}
}

func newFoldersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "folders",
		Short: "List all folders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDatabase(cmd, func(ctx context.Context, db *notes.Database) error {
				for _, folder := range db.Folders() {
					fmt.Fprintln(cmd.OutOrStdout(), folder)
				}
				return nil
			})
		},
	}
}
