// Package loadtest measures save and load latency for synthetic projects.
//
// Each worker owns one generated project and repeats a round of: edit one
// file, full-replace save, load it back and compare. Latencies for saves
// and loads are reported separately.
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cipherstudio/cipherstudio/internal/studio/project"
	studiosync "github.com/cipherstudio/cipherstudio/internal/studio/sync"
	"github.com/cipherstudio/cipherstudio/internal/studio/tree"
)

// Options shapes the generated projects and the run.
type Options struct {
	// Depth is the number of folder levels below the root.
	Depth int
	// Breadth is the number of subfolders per folder.
	Breadth int
	// FilesPerFolder is the number of files in every folder, root included.
	FilesPerFolder int
	// ContentSize is the length of each file's content in bytes.
	ContentSize int

	// Rounds is the number of save/load round trips per worker.
	Rounds int
	// Workers run concurrently, each on its own project.
	Workers int

	// Keep leaves the generated projects in storage after the run.
	Keep bool
	Seed int64
}

// DefaultOptions returns a medium-sized run: 3 levels of 3 folders with 4
// files in every folder, 199 nodes per project.
func DefaultOptions() Options {
	return Options{
		Depth:          3,
		Breadth:        3,
		FilesPerFolder: 4,
		ContentSize:    512,
		Rounds:         20,
		Workers:        1,
		Seed:           42,
	}
}

func (o Options) validate() error {
	switch {
	case o.Depth < 0, o.Breadth < 0, o.FilesPerFolder < 0, o.ContentSize < 0:
		return fmt.Errorf("tree shape must not be negative")
	case o.FilesPerFolder == 0:
		return fmt.Errorf("at least one file per folder is required")
	case o.Rounds < 1:
		return fmt.Errorf("rounds must be at least 1")
	case o.Workers < 1:
		return fmt.Errorf("workers must be at least 1")
	}
	return nil
}

// LatencyStats captures the distribution of one kind of operation.
type LatencyStats struct {
	Min   time.Duration
	Max   time.Duration
	Mean  time.Duration
	P50   time.Duration // Median
	P95   time.Duration
	P99   time.Duration
	Count int
}

// Result is the outcome of Run.
type Result struct {
	Projects   int
	Nodes      int // per project
	Save       LatencyStats
	Load       LatencyStats
	Errors     int
	Mismatches int // loads that did not match the saved tree
	Elapsed    time.Duration
}

// GenerateProject builds a synthetic project of the given shape.
func GenerateProject(name string, opts Options, rng *rand.Rand) (*project.Project, error) {
	p := project.New(name, time.Now())
	s := p.Tree

	var fill func(parentID string, level int) error
	fill = func(parentID string, level int) error {
		for i := 0; i < opts.FilesPerFolder; i++ {
			next, id, err := s.Create(parentID, fmt.Sprintf("file%02d.js", i), tree.KindFile)
			if err != nil {
				return err
			}
			if next, err = next.UpdateContent(id, randomContent(rng, opts.ContentSize)); err != nil {
				return err
			}
			s = next
		}
		if level == opts.Depth {
			return nil
		}
		for i := 0; i < opts.Breadth; i++ {
			next, id, err := s.Create(parentID, fmt.Sprintf("dir%02d", i), tree.KindFolder)
			if err != nil {
				return err
			}
			s = next
			if err := fill(id, level+1); err != nil {
				return err
			}
		}
		return nil
	}

	if err := fill(tree.Root, 0); err != nil {
		return nil, fmt.Errorf("failed to generate tree: %w", err)
	}
	return p.WithTree(s), nil
}

// NodeCount returns how many nodes GenerateProject creates for opts.
func NodeCount(opts Options) int {
	folders, level := 0, 1
	for d := 1; d <= opts.Depth; d++ {
		level *= opts.Breadth
		folders += level
	}
	return folders + (folders+1)*opts.FilesPerFolder
}

// Run generates opts.Workers projects and measures save/load round trips
// against engine. ctx must carry the owner.
func Run(ctx context.Context, engine studiosync.Engine, opts Options) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	projects := make([]*project.Project, opts.Workers)
	for i := range projects {
		p, err := GenerateProject(fmt.Sprintf("loadtest-%02d", i), opts, rng)
		if err != nil {
			return nil, err
		}
		projects[i] = p
	}

	start := time.Now()

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		saves      []time.Duration
		loads      []time.Duration
		errCount   int
		mismatches int
		firstErr   error
	)
	for i, p := range projects {
		wg.Add(1)
		go func(worker int, p *project.Project) {
			defer wg.Done()
			w := rand.New(rand.NewSource(opts.Seed + int64(worker) + 1))
			s, l, mis, err := runWorker(ctx, engine, p, opts, w)

			mu.Lock()
			defer mu.Unlock()
			saves = append(saves, s...)
			loads = append(loads, l...)
			mismatches += mis
			if err != nil {
				errCount++
				if firstErr == nil {
					firstErr = fmt.Errorf("worker %d: %w", worker, err)
				}
			}
		}(i, p)
	}
	wg.Wait()

	res := &Result{
		Projects:   len(projects),
		Nodes:      projects[0].Tree.Len(),
		Save:       computeLatencyStats(saves),
		Load:       computeLatencyStats(loads),
		Errors:     errCount,
		Mismatches: mismatches,
		Elapsed:    time.Since(start),
	}

	if !opts.Keep {
		var cleanupErrs []error
		for _, p := range projects {
			if err := engine.Delete(ctx, p.ID); err != nil && !errors.Is(err, studiosync.ErrNotFound) {
				cleanupErrs = append(cleanupErrs, err)
			}
		}
		if err := errors.Join(cleanupErrs...); err != nil {
			return res, fmt.Errorf("failed to clean up: %w", err)
		}
	}

	if errCount == len(projects) {
		return res, fmt.Errorf("every worker failed: %w", firstErr)
	}
	return res, nil
}

// runWorker stops at the first error; latencies gathered so far are kept.
func runWorker(ctx context.Context, engine studiosync.Engine, p *project.Project, opts Options, rng *rand.Rand) (saves, loads []time.Duration, mismatches int, err error) {
	var fileIDs []string
	for _, n := range p.Tree.Nodes() {
		if n.Kind == tree.KindFile {
			fileIDs = append(fileIDs, n.ID)
		}
	}

	for round := 0; round < opts.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return saves, loads, mismatches, err
		}

		id := fileIDs[rng.Intn(len(fileIDs))]
		next, err := p.Tree.UpdateContent(id, randomContent(rng, opts.ContentSize))
		if err != nil {
			return saves, loads, mismatches, err
		}
		p = p.WithTree(next)

		begin := time.Now()
		saved, err := engine.Save(ctx, p)
		saves = append(saves, time.Since(begin))
		if err != nil {
			return saves, loads, mismatches, err
		}
		p = saved

		begin = time.Now()
		loaded, err := engine.LoadOne(ctx, p.ID)
		loads = append(loads, time.Since(begin))
		if err != nil {
			return saves, loads, mismatches, err
		}
		if !tree.Equal(p.Tree, loaded.Tree) {
			mismatches++
		}
	}
	return saves, loads, mismatches, nil
}

const contentAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789 \n"

func randomContent(rng *rand.Rand, n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(contentAlphabet[rng.Intn(len(contentAlphabet))])
	}
	return b.String()
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) LatencyStats {
	if len(durations) == 0 {
		return LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return LatencyStats{
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		Mean:  sum / time.Duration(len(sorted)),
		P50:   sorted[len(sorted)*50/100],
		P95:   sorted[len(sorted)*95/100],
		P99:   sorted[len(sorted)*99/100],
		Count: len(sorted),
	}
}

// Print writes a plain-text report of r to w.
func (r *Result) Print(w io.Writer) {
	fmt.Fprintf(w, "Projects:   %d x %d nodes\n", r.Projects, r.Nodes)
	fmt.Fprintf(w, "Elapsed:    %v\n", r.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Errors:     %d\n", r.Errors)
	fmt.Fprintf(w, "Mismatches: %d\n", r.Mismatches)
	r.Save.print(w, "Save")
	r.Load.print(w, "Load")
}

func (s LatencyStats) print(w io.Writer, label string) {
	fmt.Fprintf(w, "%s latency (%d ops):\n", label, s.Count)
	fmt.Fprintf(w, "  Min:          %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median): %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:         %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:          %v\n", s.P95)
	fmt.Fprintf(w, "  P99:          %v\n", s.P99)
	fmt.Fprintf(w, "  Max:          %v\n", s.Max)
}
