package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/repota/internal/app"
	"github.com/noah-isme/repota/pkg/config"
	"github.com/noah-isme/repota/pkg/logger"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "repotactl",
		Short:         "Maintain the Repota gradebook store from the command line",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newStatusCmd(),
		newMigrateCmd(),
		newBackupCmd(),
		newClassesCmd(),
		newGradeCmd(),
	)
	return root
}

// withApp loads configuration, opens the store and runs fn. Pending writes
// are flushed before returning.
func withApp(ctx context.Context, fn func(a *app.App) error) (err error) {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Reports.Enabled = false

	logr, err := logger.New(cfg)
	if err != nil {
		logr = zap.NewNop()
	}
	defer logr.Sync() //nolint:errcheck

	a, err := app.Build(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := a.Close(ctx); err == nil {
			err = closeErr
		}
	}()
	return fn(a)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
