package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/noah-isme/repota/internal/app"
	"github.com/noah-isme/repota/internal/models"
	"github.com/noah-isme/repota/internal/service"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the storage backend and boot report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				return printJSON(cmd.OutOrStdout(), a.Session.Status())
			})
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Copy legacy file data into the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				result := a.Migration.Migrate(cmd.Context())
				if err := printJSON(cmd.OutOrStdout(), result); err != nil {
					return err
				}
				if !result.Success {
					return fmt.Errorf("migration failed: %s", result.Error)
				}
				return nil
			})
		},
	}
}

type backupOptions struct {
	file     string
	password string
	hint     string
}

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export or import a whole-device backup",
	}
	cmd.AddCommand(newBackupExportCmd(), newBackupImportCmd())
	return cmd
}

func newBackupExportCmd() *cobra.Command {
	var opts backupOptions
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a backup file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				file, err := a.Backups.Export(cmd.Context(), opts.password, opts.hint)
				if err != nil {
					return err
				}
				path := opts.file
				if path == "" {
					path = file.Filename
				}
				if err := os.WriteFile(path, file.Body, 0o600); err != nil {
					return fmt.Errorf("write backup: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (encrypted: %t)\n", path, file.Encrypted)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.file, "out", "", "Output path (default: repota-backup-<date>.json)")
	cmd.Flags().StringVar(&opts.password, "password", "", "Encrypt the backup with this password")
	cmd.Flags().StringVar(&opts.hint, "hint", "", "Password hint stored in the clear")
	return cmd
}

func newBackupImportCmd() *cobra.Command {
	var opts backupOptions
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Replace all data with a backup file",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(opts.file)
			if err != nil {
				return fmt.Errorf("read backup: %w", err)
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				summary, err := a.Backups.Import(cmd.Context(), raw, opts.password)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), summary)
			})
		},
	}
	cmd.Flags().StringVar(&opts.file, "file", "", "Backup file to import (required)")
	cmd.Flags().StringVar(&opts.password, "password", "", "Password for an encrypted backup")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newClassesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classes [class]",
		Short: "List classes, or print one class's ranked report",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				if len(args) == 0 {
					return printJSON(cmd.OutOrStdout(), a.Gradebook.Classes())
				}
				view, err := a.Gradebook.ClassView(args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), view)
			})
		},
	}
}

func newGradeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grade <level> <total>",
		Short: "Band a subject total for a school level",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			total, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid total %q: %w", args[1], err)
			}
			result := service.GradeFor(total, models.ParseSchoolLevel(args[0]))
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}
