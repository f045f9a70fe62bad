package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cipherstudio/cipherstudio/internal/studio/bundle"
	"github.com/cipherstudio/cipherstudio/internal/studio/project"
	"github.com/cipherstudio/cipherstudio/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export <file>",
	GroupID: "projects",
	Short:   "Write a project to a JSONL bundle",
	Long: `Write the selected project to a JSONL bundle: a header line followed by
one line per file or folder. Use "-" to write to stdout.

The owner is not stored in the bundle.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, p, err := state.load(cmd.Context())
		if err != nil {
			return err
		}

		if args[0] == "-" {
			_, err := bundle.Export(cmd.OutOrStdout(), p)
			return err
		}
		n, err := bundle.ExportFile(args[0], p)
		if err != nil {
			return err
		}
		fmt.Printf("%s Exported %s (%d nodes) to %s\n", ui.RenderPass("✓"), p.Name, n, args[0])
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "projects",
	Short:   "Create a project from a JSONL bundle",
	Long: `Read a bundle written by export and save it as a project owned by the
logged-in user. Use "-" to read from stdin.

The whole tree is validated before anything is saved. Use --new-id to keep
an existing copy of the same project.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		newID, _ := cmd.Flags().GetBool("new-id")
		name, _ := cmd.Flags().GetString("name")
		opts := bundle.ImportOptions{NewID: newID, Name: name}

		ctx, engine, err := state.connect(cmd.Context())
		if err != nil {
			return err
		}

		var p *project.Project
		if args[0] == "-" {
			p, err = bundle.Import(cmd.InOrStdin(), opts)
		} else {
			p, err = bundle.ImportFile(args[0], opts)
		}
		if err != nil {
			return err
		}

		saved, err := engine.Save(ctx, p)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%s Imported %s (%d nodes) as %s\n", ui.RenderPass("✓"), saved.Name, saved.Tree.Len(), saved.ID)
		return nil
	},
}

func init() {
	importCmd.Flags().Bool("new-id", false, "give the imported project a fresh id")
	importCmd.Flags().String("name", "", "rename the imported project")

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(importCmd)
}
