package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cipherstudio/cipherstudio/internal/config"
	"github.com/cipherstudio/cipherstudio/internal/logging"
	"github.com/cipherstudio/cipherstudio/internal/ui"
)

var (
	cfgFile    string
	projectRef string
)

var rootCmd = &cobra.Command{
	Use:   "cstudio",
	Short: "Edit, store and preview small web projects from the terminal",
	Long: `cstudio manages projects made of nested files and folders.

Projects are stored per owner in a database (SQLite by default, Postgres or
libSQL when configured) and always saved as a whole. A project can be
mirrored to a directory for editing with any editor, served to a live
preview, or moved between machines as a JSONL bundle.

Start with:
  cstudio login
  cstudio project list        # creates "My First Project" on first use
  cstudio workspace ./my-app --preview`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		v := viper.New()
		if err := v.BindPFlag("log.level", cmd.Root().PersistentFlags().Lookup("log-level")); err != nil {
			return err
		}
		if err := v.BindPFlag("database.dsn", cmd.Root().PersistentFlags().Lookup("db")); err != nil {
			return err
		}

		cfg, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		state.cfg = cfg
		state.cfgUsed = v.ConfigFileUsed()
		state.logger = logging.New(cfg.Logging())
		cmd.SetContext(logging.WithLogger(cmd.Context(), state.logger))
		return nil
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "projects", Title: "Projects:"},
		&cobra.Group{ID: "files", Title: "Files:"},
		&cobra.Group{ID: "live", Title: "Live editing:"},
		&cobra.Group{ID: "account", Title: "Account:"},
		&cobra.Group{ID: "maint", Title: "Maintenance:"},
	)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./cstudio.toml or $XDG_CONFIG_HOME/cstudio/cstudio.toml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("db", "", "database DSN (overrides database.dsn)")
	rootCmd.PersistentFlags().StringVarP(&projectRef, "project", "p", "", "project id, id prefix or name")
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	cancel()
	state.close()

	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("Error:"), err)
		os.Exit(1)
	}
}
