package main

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/cipherstudio/cipherstudio/internal/studio/auth"
	"github.com/cipherstudio/cipherstudio/internal/studio/project"
	studiosync "github.com/cipherstudio/cipherstudio/internal/studio/sync"
	"github.com/cipherstudio/cipherstudio/internal/studio/tree"
	"github.com/cipherstudio/cipherstudio/internal/ui"
)

var projectCmd = &cobra.Command{
	Use:     "project",
	GroupID: "projects",
	Short:   "Create, list, show and delete projects",
}

var projectNewCmd = &cobra.Command{
	Use:   "new [name]",
	Short: "Create and save a project",
	Long: `Create a project and save it immediately.

By default the project is seeded with src/App.jsx and src/styles.css.
Use --empty for a project without files.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		empty, _ := cmd.Flags().GetBool("empty")
		description, _ := cmd.Flags().GetString("description")

		ctx, engine, err := state.connect(cmd.Context())
		if err != nil {
			return err
		}

		now := time.Now()
		var p *project.Project
		if empty {
			p = project.New(project.DefaultName, now, state.treeOptions()...)
		} else if p, err = project.NewDefault(now, state.treeOptions()...); err != nil {
			return err
		}
		if len(args) == 1 {
			p.Name = args[0]
		}
		p.Description = description

		saved, err := engine.Save(ctx, p)
		if err != nil {
			return err
		}
		fmt.Printf("%s Created %s %s\n", ui.RenderPass("✓"), ui.RenderAccent(saved.Name), ui.RenderMuted(saved.ID))
		return nil
	},
}

var projectListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List your projects, most recently updated first",
	Long: `List every project of the logged-in owner, most recently updated first.

The first time an owner lists projects and has none, the starter project
"My First Project" is created and saved.

--since accepts a date (2025-01-31) or natural language ("yesterday",
"3 days ago", "last monday").`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		sinceText, _ := cmd.Flags().GetString("since")

		var since time.Time
		if sinceText != "" {
			t, err := parseSince(sinceText, time.Now())
			if err != nil {
				return err
			}
			since = t
		}

		ctx, engine, err := state.connect(cmd.Context())
		if err != nil {
			return err
		}
		projects, err := engine.LoadAll(ctx)
		if err != nil {
			return err
		}

		if len(projects) == 0 && sinceText == "" {
			store, err := state.open(ctx)
			if err != nil {
				return err
			}
			p, err := ensureStarter(ctx, engine, store)
			if err != nil {
				return err
			}
			if p != nil {
				fmt.Fprintf(os.Stderr, "%s Created starter project %s\n", ui.RenderAccent("✨"), ui.RenderAccent(p.Name))
				projects = append(projects, p)
			} else {
				fmt.Fprintf(os.Stderr, "%s Stored projects could not be loaded; see the log for details\n", ui.RenderWarn("⚠"))
			}
		}

		var shown []*project.Project
		for _, p := range projects {
			if since.IsZero() || !p.UpdatedAt.Before(since) {
				shown = append(shown, p)
			}
		}

		if format != "table" {
			views := make([]projectSummary, 0, len(shown))
			for _, p := range shown {
				views = append(views, summarize(p))
			}
			return writeStructured(os.Stdout, format, views)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tFILES\tUPDATED")
		for _, p := range shown {
			s := summarize(p)
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", shortID(s.ID), s.Name, s.Files, s.UpdatedAt.Local().Format("2006-01-02 15:04"))
		}
		return w.Flush()
	},
}

var projectShowCmd = &cobra.Command{
	Use:   "show [project]",
	Short: "Show a project's tree",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		withContent, _ := cmd.Flags().GetBool("content")

		ctx, engine, err := state.connect(cmd.Context())
		if err != nil {
			return err
		}
		p, err := state.resolve(ctx, engine, refFromArgs(args))
		if err != nil {
			return err
		}

		if format == "tree" {
			fmt.Print(ui.RenderTree(p.Name, p.Tree))
			fmt.Println(ui.RenderMuted(fmt.Sprintf("%s · updated %s", p.ID, p.UpdatedAt.Local().Format("2006-01-02 15:04"))))
			return nil
		}
		detail, err := describe(p, withContent)
		if err != nil {
			return err
		}
		return writeStructured(os.Stdout, format, detail)
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:     "delete [project]",
	Aliases: []string{"rm"},
	Short:   "Delete a project and all its files",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")

		ctx, engine, err := state.connect(cmd.Context())
		if err != nil {
			return err
		}
		p, err := state.resolve(ctx, engine, refFromArgs(args))
		if err != nil {
			return err
		}

		if !yes {
			if !ui.IsTerminal(os.Stdin) {
				return fmt.Errorf("refusing to delete %s without --yes", p.Name)
			}
			confirmed := false
			err := huh.NewConfirm().
				Title(fmt.Sprintf("Delete %q and its %d nodes?", p.Name, p.Tree.Len())).
				Affirmative("Delete").
				Negative("Cancel").
				Value(&confirmed).
				Run()
			if err != nil {
				return err
			}
			if !confirmed {
				fmt.Println("Cancelled")
				return nil
			}
		}

		if err := engine.Delete(ctx, p.ID); err != nil {
			return err
		}
		fmt.Printf("%s Deleted %s\n", ui.RenderPass("✓"), p.Name)
		return nil
	},
}

// projectCounter counts stored project rows, including ones that fail to
// load.
type projectCounter interface {
	CountProjects(ctx context.Context, ownerID string) (int, error)
}

// ensureStarter saves the starter project only when the owner has no
// stored projects at all. It returns nil when the owner already has some.
func ensureStarter(ctx context.Context, engine studiosync.Engine, counter projectCounter) (*project.Project, error) {
	owner, err := auth.OwnerFrom(ctx)
	if err != nil {
		return nil, err
	}
	n, err := counter.CountProjects(ctx, owner)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, nil
	}
	return bootstrap(ctx, engine)
}

// bootstrap creates and saves the starter project for a new owner.
func bootstrap(ctx context.Context, engine studiosync.Engine) (*project.Project, error) {
	p, err := project.NewDefault(time.Now(), state.treeOptions()...)
	if err != nil {
		return nil, err
	}
	return engine.Save(ctx, p)
}

func refFromArgs(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return projectRef
}

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// parseSince accepts a calendar date or a natural-language expression
// relative to now.
func parseSince(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	if isoDate.MatchString(text) {
		return time.ParseInLocation("2006-01-02", text, now.Location())
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	r, err := w.Parse(text, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse --since %q: %w", text, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("failed to parse --since %q: no date found", text)
	}
	return r.Time, nil
}

// projectSummary is one row of project list.
type projectSummary struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Files       int       `json:"files" yaml:"files"`
	Folders     int       `json:"folders" yaml:"folders"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

func summarize(p *project.Project) projectSummary {
	s := projectSummary{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
	for n := range p.Tree.Walk() {
		if n.IsFolder() {
			s.Folders++
		} else {
			s.Files++
		}
	}
	return s
}

// nodeView is one node of project show.
type nodeView struct {
	ID      string `json:"id" yaml:"id"`
	Path    string `json:"path" yaml:"path"`
	Type    string `json:"type" yaml:"type"`
	Size    int    `json:"size,omitempty" yaml:"size,omitempty"`
	Content string `json:"content,omitempty" yaml:"content,omitempty"`
}

type projectDetail struct {
	projectSummary `yaml:",inline"`
	Entry          string     `json:"entry,omitempty" yaml:"entry,omitempty"`
	Nodes          []nodeView `json:"nodes" yaml:"nodes"`
}

func describe(p *project.Project, withContent bool) (*projectDetail, error) {
	d := &projectDetail{projectSummary: summarize(p), Nodes: []nodeView{}}
	if entry, ok := p.Entry(); ok {
		path, err := p.Tree.PathOf(entry.ID)
		if err != nil {
			return nil, err
		}
		d.Entry = path
	}
	for n := range p.Tree.Walk() {
		path, err := p.Tree.PathOf(n.ID)
		if err != nil {
			return nil, err
		}
		v := nodeView{ID: n.ID, Path: path, Type: string(n.Kind)}
		if n.Kind == tree.KindFile {
			v.Size = len(n.Content)
			if withContent {
				v.Content = n.Content
			}
		}
		d.Nodes = append(d.Nodes, v)
	}
	return d, nil
}

func init() {
	projectNewCmd.Flags().Bool("empty", false, "create the project without starter files")
	projectNewCmd.Flags().String("description", "", "project description")

	projectListCmd.Flags().String("format", "table", "output format: table, json, yaml")
	projectListCmd.Flags().String("since", "", "only projects updated since this date or expression")

	projectShowCmd.Flags().String("format", "tree", "output format: tree, json, yaml")
	projectShowCmd.Flags().Bool("content", false, "include file contents (json, yaml)")

	projectDeleteCmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")

	projectCmd.AddCommand(projectNewCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectShowCmd)
	projectCmd.AddCommand(projectDeleteCmd)
	rootCmd.AddCommand(projectCmd)
}
