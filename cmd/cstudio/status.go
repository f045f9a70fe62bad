package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cipherstudio/cipherstudio/internal/studio/db"
	"github.com/cipherstudio/cipherstudio/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "maint",
	Short:   "Show configuration, login and storage status",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := state.cfg

		fmt.Printf("\n%s cstudio status\n\n", ui.RenderAccent("📊"))
		configFile := state.cfgUsed
		if configFile == "" {
			configFile = ui.RenderMuted("(defaults)")
		}
		fmt.Printf("Config:    %s\n", configFile)
		fmt.Printf("Data dir:  %s\n", cfg.DataDir)
		fmt.Printf("Database:  %s\n", cfg.Database.Driver)
		if cfg.Database.Driver == db.DriverSQLite {
			fmt.Printf("Location:  %s\n", cfg.Database.DSN)
			if info, err := os.Stat(cfg.Database.DSN); err == nil {
				fmt.Printf("Size:      %s\n", ui.FormatSize(int(info.Size())))
				fmt.Printf("Modified:  %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
			}
		}

		claims, err := currentClaims()
		if err != nil {
			fmt.Printf("Login:     %s %v\n\n", ui.RenderWarn("⚠"), err)
			return nil
		}
		expires := ""
		if claims.ExpiresAt != nil {
			expires = fmt.Sprintf(" (expires %s)", claims.ExpiresAt.Time.Local().Format("2006-01-02"))
		}
		fmt.Printf("Login:     %s%s\n", ui.RenderPass(claims.OwnerID), expires)

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		store, err := state.open(ctx)
		if err != nil {
			fmt.Printf("Storage:   %s %v\n\n", ui.RenderFail("✗"), err)
			return nil
		}
		store.UpdateConnectionMetrics()

		projects, err := store.CountProjects(ctx, claims.OwnerID)
		if err != nil {
			return err
		}
		files, err := store.CountFiles(ctx, claims.OwnerID)
		if err != nil {
			return err
		}
		fmt.Printf("Projects:  %d\n", projects)
		fmt.Printf("Nodes:     %d\n", files)
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
