package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cipherstudio/cipherstudio/internal/studio/preview"
	"github.com/cipherstudio/cipherstudio/internal/studio/session"
	"github.com/cipherstudio/cipherstudio/internal/studio/workspace"
	"github.com/cipherstudio/cipherstudio/internal/ui"
)

var workspaceCmd = &cobra.Command{
	Use:     "workspace <dir>",
	GroupID: "live",
	Short:   "Mirror a project to a directory and apply edits made there",
	Long: `Write every file of the project under dir, then watch dir and apply
changes back to the project until interrupted.

Creating, writing and deleting files or folders under dir creates, updates
and deletes them in the project. Renames are seen as a delete plus a
create. Hidden files (names starting with ".") are ignored.

With autosave (workspace.autosave, default on) the project is saved after
every batch of changes; otherwise it is saved once on exit.

  cstudio workspace ./my-app --preview`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		withPreview, _ := cmd.Flags().GetBool("preview")
		port, _ := cmd.Flags().GetInt("port")
		if !cmd.Flags().Changed("port") {
			port = state.cfg.Preview.Port
		}
		autosave := state.cfg.Workspace.Autosave
		if cmd.Flags().Changed("no-autosave") {
			autosave = false
		}

		ctx, engine, p, err := state.load(cmd.Context())
		if err != nil {
			return err
		}
		if err := workspace.Materialize(p, args[0]); err != nil {
			return err
		}

		sess := session.New(engine, p, state.logger)

		if withPreview {
			server, err := startPreview(sess, port)
			if err != nil {
				return err
			}
			defer server.Stop()
		}

		mirror, err := workspace.NewMirror(sess, args[0], &workspace.Config{
			Debounce: state.cfg.Workspace.Debounce,
			Autosave: autosave,
			Logger:   state.logger,
		})
		if err != nil {
			return err
		}

		fmt.Printf("%s Mirroring %s to %s\n", ui.RenderAccent("🔄"), ui.RenderAccent(p.Name), mirror.Root())
		fmt.Printf("   Autosave: %v\n", autosave)
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		if err := mirror.Start(ctx); err != nil {
			return err
		}

		if !sess.Dirty() {
			return nil
		}
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if _, err := sess.Save(saveCtx); err != nil {
			return fmt.Errorf("final save failed, edits remain in %s: %w", mirror.Root(), err)
		}
		fmt.Printf("%s Saved %s\n", ui.RenderPass("✓"), p.Name)
		return nil
	},
}

var previewCmd = &cobra.Command{
	Use:     "preview",
	GroupID: "live",
	Short:   "Serve a project to the live preview",
	Long: `Serve the project's files over HTTP and WebSocket until interrupted.

Endpoints:
  /files    path → content map, keyed "/<path>", with the entry file
  /ws       snapshot on connect, then files_changed on every change
  /health   status and connected client count
  /metrics  Prometheus metrics

With --reload the stored project is re-read periodically, so saves made by
other cstudio commands reach connected clients.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		if !cmd.Flags().Changed("port") {
			port = state.cfg.Preview.Port
		}
		reload, _ := cmd.Flags().GetDuration("reload")

		ctx, engine, p, err := state.load(cmd.Context())
		if err != nil {
			return err
		}
		sess := session.New(engine, p, state.logger)

		server, err := startPreview(sess, port)
		if err != nil {
			return err
		}
		defer server.Stop()

		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		if reload <= 0 {
			<-ctx.Done()
			return nil
		}

		ticker := time.NewTicker(reload)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if _, err := sess.Reload(ctx); err != nil && !errors.Is(err, context.Canceled) {
					state.logger.Warn("reload failed", zap.Error(err))
				}
			}
		}
	},
}

func startPreview(sess *session.Session, port int) (*preview.Server, error) {
	server := preview.NewServer(&preview.Config{
		Host:   "127.0.0.1",
		Port:   port,
		Logger: state.logger,
	})
	preview.NewHandler(server, state.logger).Attach(sess)
	if err := server.Start(); err != nil {
		return nil, err
	}

	fmt.Printf("%s Preview at http://%s\n", ui.RenderAccent("🌐"), server.Addr())
	fmt.Printf("   WebSocket: ws://%s/ws\n", server.Addr())
	return server, nil
}

func init() {
	workspaceCmd.Flags().Bool("preview", false, "also serve the live preview")
	workspaceCmd.Flags().Int("port", 0, "preview port (default: preview.port)")
	workspaceCmd.Flags().Bool("no-autosave", false, "save only on exit")

	previewCmd.Flags().Int("port", 0, "port to listen on (default: preview.port)")
	previewCmd.Flags().Duration("reload", 0, "re-read the stored project at this interval")

	rootCmd.AddCommand(workspaceCmd)
	rootCmd.AddCommand(previewCmd)
}
