package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cipherstudio/cipherstudio/internal/studio/session"
	"github.com/cipherstudio/cipherstudio/internal/studio/tree"
	"github.com/cipherstudio/cipherstudio/internal/ui"
)

var fileCmd = &cobra.Command{
	Use:     "file",
	GroupID: "files",
	Short:   "Edit the files and folders of a project",
	Long: `Edit the files and folders of a project.

Paths are relative to the project root and use the configured separator
(tree.separator, default "/"). Every command saves the whole project when
it changed something. Select the project with --project when you have more
than one.`,
}

var fileTouchCmd = &cobra.Command{
	Use:   "touch <path>",
	Short: "Create an empty file, and any missing folders above it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := state.edit(cmd.Context(), func(sess *session.Session) error {
			_, err := sess.Apply(func(t *tree.Snapshot) (*tree.Snapshot, error) {
				if _, err := t.FindByPath(args[0]); err == nil {
					return t, nil
				}
				return createFile(t, args[0])
			})
			return err
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", ui.RenderPass("✓"), args[0])
		return nil
	},
}

var fileMkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create a folder and any missing parents",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := state.edit(cmd.Context(), func(sess *session.Session) error {
			_, err := sess.Apply(func(t *tree.Snapshot) (*tree.Snapshot, error) {
				next, _, err := t.MkdirAll(args[0])
				return next, err
			})
			return err
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", ui.RenderPass("✓"), args[0])
		return nil
	},
}

var fileRenameCmd = &cobra.Command{
	Use:   "rename <path> <new-name>",
	Short: "Rename a file or folder in place",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := state.edit(cmd.Context(), func(sess *session.Session) error {
			n, err := sess.Current().Tree.FindByPath(args[0])
			if err != nil {
				return err
			}
			return sess.Rename(n.ID, args[1])
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s %s → %s\n", ui.RenderPass("✓"), args[0], args[1])
		return nil
	},
}

var fileRmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Delete a file, or a folder with everything inside it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		removed := 0
		_, err := state.edit(cmd.Context(), func(sess *session.Session) error {
			before := sess.Current().Tree.Len()
			n, err := sess.Current().Tree.FindByPath(args[0])
			if err != nil {
				return err
			}
			if err := sess.Delete(n.ID); err != nil {
				return err
			}
			removed = before - sess.Current().Tree.Len()
			return nil
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s Removed %s (%d nodes)\n", ui.RenderPass("✓"), args[0], removed)
		return nil
	},
}

var fileWriteCmd = &cobra.Command{
	Use:   "write <path>",
	Short: "Replace a file's content from stdin or --from",
	Long: `Replace a file's content. The file and its folders are created when
missing. Content is read from --from, or from stdin.

  echo 'body { margin: 0 }' | cstudio file write src/styles.css`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, _ := cmd.Flags().GetString("from")

		var data []byte
		var err error
		if from != "" {
			data, err = os.ReadFile(from)
		} else {
			data, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}

		_, err = state.edit(cmd.Context(), func(sess *session.Session) error {
			_, err := sess.Apply(func(t *tree.Snapshot) (*tree.Snapshot, error) {
				if n, err := t.FindByPath(args[0]); err == nil {
					return t.UpdateContent(n.ID, string(data))
				}
				next, err := createFile(t, args[0])
				if err != nil {
					return nil, err
				}
				n, err := next.FindByPath(args[0])
				if err != nil {
					return nil, err
				}
				return next.UpdateContent(n.ID, string(data))
			})
			return err
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s %s (%s)\n", ui.RenderPass("✓"), args[0], ui.FormatSize(len(data)))
		return nil
	},
}

var fileCatCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Print a file's content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, p, err := state.load(cmd.Context())
		if err != nil {
			return err
		}
		n, err := p.Tree.FindByPath(args[0])
		if err != nil {
			return err
		}
		if n.IsFolder() {
			return fmt.Errorf("%w: %s is a folder", tree.ErrWrongKind, args[0])
		}
		_, err = io.WriteString(cmd.OutOrStdout(), n.Content)
		return err
	},
}

var fileLsCmd = &cobra.Command{
	Use:   "ls [folder]",
	Short: "List files, or the direct children of a folder",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asTree, _ := cmd.Flags().GetBool("tree")

		_, _, p, err := state.load(cmd.Context())
		if err != nil {
			return err
		}

		if asTree {
			fmt.Print(ui.RenderTree(p.Name, p.Tree))
			return nil
		}

		if len(args) == 0 {
			for path, content := range p.Tree.Files() {
				fmt.Printf("%-40s %s\n", path, ui.RenderMuted(ui.FormatSize(len(content))))
			}
			return nil
		}

		folder, err := p.Tree.FindByPath(args[0])
		if err != nil {
			return err
		}
		children, err := p.Tree.ChildrenOf(folder.ID)
		if err != nil {
			return err
		}
		for _, c := range children {
			if c.IsFolder() {
				fmt.Println(ui.RenderAccent(c.Name + p.Tree.Separator()))
			} else {
				fmt.Printf("%-40s %s\n", c.Name, ui.RenderMuted(ui.FormatSize(len(c.Content))))
			}
		}
		return nil
	},
}

// createFile adds an empty file at path, creating missing folders.
func createFile(t *tree.Snapshot, path string) (*tree.Snapshot, error) {
	dir, name := splitPath(path, t.Separator())
	if name == "" {
		return nil, fmt.Errorf("%w: empty file name in %q", tree.ErrInvalidName, path)
	}
	next, parentID, err := t.MkdirAll(dir)
	if err != nil {
		return nil, err
	}
	next, _, err = next.Create(parentID, name, tree.KindFile)
	return next, err
}

// splitPath returns the folder part and the last name of path.
func splitPath(path, sep string) (dir, name string) {
	path = strings.Trim(path, sep)
	i := strings.LastIndex(path, sep)
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+len(sep):]
}

func init() {
	fileWriteCmd.Flags().String("from", "", "read content from this file instead of stdin")
	fileLsCmd.Flags().Bool("tree", false, "draw the whole project as a tree")

	fileCmd.AddCommand(fileTouchCmd)
	fileCmd.AddCommand(fileMkdirCmd)
	fileCmd.AddCommand(fileRenameCmd)
	fileCmd.AddCommand(fileRmCmd)
	fileCmd.AddCommand(fileWriteCmd)
	fileCmd.AddCommand(fileCatCmd)
	fileCmd.AddCommand(fileLsCmd)
	rootCmd.AddCommand(fileCmd)
}
