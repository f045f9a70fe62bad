package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cipherstudio/cipherstudio/internal/studio/auth"
	"github.com/cipherstudio/cipherstudio/internal/studio/db"
	"github.com/cipherstudio/cipherstudio/internal/studio/loadtest"
	studiosync "github.com/cipherstudio/cipherstudio/internal/studio/sync"
	"github.com/cipherstudio/cipherstudio/internal/ui"
)

var benchCmd = &cobra.Command{
	Use:     "bench",
	GroupID: "maint",
	Short:   "Measure save/load latency with generated projects",
	Long: `Generate projects of a given shape and time full-replace saves and
loads against a database.

By default a throwaway SQLite database in a temp directory is used. With
--use-config the configured database is measured instead, as the logged-in
owner; generated projects are deleted afterwards unless --keep is set.

Examples:
  cstudio bench
  cstudio bench --depth 4 --breadth 4 --files 5 --rounds 50
  cstudio bench --use-config --workers 4 --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := loadtest.DefaultOptions()
		opts.Depth, _ = cmd.Flags().GetInt("depth")
		opts.Breadth, _ = cmd.Flags().GetInt("breadth")
		opts.FilesPerFolder, _ = cmd.Flags().GetInt("files")
		opts.ContentSize, _ = cmd.Flags().GetInt("size")
		opts.Rounds, _ = cmd.Flags().GetInt("rounds")
		opts.Workers, _ = cmd.Flags().GetInt("workers")
		opts.Keep, _ = cmd.Flags().GetBool("keep")
		useConfig, _ := cmd.Flags().GetBool("use-config")
		jsonOutput, _ := cmd.Flags().GetBool("json")

		var (
			ctx    context.Context
			engine studiosync.Engine
			err    error
		)
		if useConfig {
			ctx, engine, err = state.connect(cmd.Context())
			if err != nil {
				return err
			}
		} else {
			dir, err := os.MkdirTemp("", "cstudio-bench-")
			if err != nil {
				return fmt.Errorf("failed to create temp dir: %w", err)
			}
			defer os.RemoveAll(dir)

			store, err := db.OpenSQLite(filepath.Join(dir, "bench.db"))
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.InitSchemaContext(cmd.Context()); err != nil {
				return err
			}
			ctx = auth.WithOwner(cmd.Context(), "bench")
			engine = studiosync.New(store, state.logger)
		}

		if !jsonOutput {
			fmt.Printf("%s Running %d x %d round trips on %d-node projects...\n",
				ui.RenderAccent("⏱"), opts.Workers, opts.Rounds, loadtest.NodeCount(opts))
		}

		res, err := loadtest.Run(ctx, engine, opts)
		if err != nil {
			return err
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}
		res.Print(os.Stdout)
		if res.Errors > 0 || res.Mismatches > 0 {
			fmt.Printf("\n%s %d errors, %d mismatches\n", ui.RenderWarn("⚠"), res.Errors, res.Mismatches)
		}
		return nil
	},
}

func init() {
	defaults := loadtest.DefaultOptions()
	benchCmd.Flags().Int("depth", defaults.Depth, "folder levels below the root")
	benchCmd.Flags().Int("breadth", defaults.Breadth, "subfolders per folder")
	benchCmd.Flags().Int("files", defaults.FilesPerFolder, "files per folder")
	benchCmd.Flags().Int("size", defaults.ContentSize, "bytes of content per file")
	benchCmd.Flags().Int("rounds", defaults.Rounds, "save/load round trips per worker")
	benchCmd.Flags().Int("workers", defaults.Workers, "concurrent workers, one project each")
	benchCmd.Flags().Bool("keep", false, "keep generated projects")
	benchCmd.Flags().Bool("use-config", false, "measure the configured database")
	benchCmd.Flags().Bool("json", false, "output results as JSON")
	rootCmd.AddCommand(benchCmd)
}
