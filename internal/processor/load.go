package processor

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"

	"arstate/internal/media"
)

// LoadOptions controls how Load expands its inputs.
type LoadOptions struct {
	// SkipDir is excluded from directory walks, typically the output folder.
	SkipDir string
}

// Load reads and classifies the files named by paths, expanding directories.
// Sources come back in argument order, with directory contents in lexical
// order. Unsupported files are counted, not returned.
func Load(ctx context.Context, paths []string, opts LoadOptions) ([]media.Source, int, error) {
	jobs, err := collectJobs(ctx, paths, opts)
	if err != nil {
		return nil, 0, err
	}

	jobCh := make(chan Job)
	results := make(chan Loaded)

	workers := runtime.NumCPU()
	if workers > len(jobs) {
		workers = len(jobs)
	}
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			loadWorker(ctx, jobCh, results)
		}()
	}

	go func() {
		defer close(jobCh)
		for _, job := range jobs {
			select {
			case jobCh <- job:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	loaded := make([]Loaded, len(jobs))
	var firstErr error
	for res := range results {
		loaded[res.Job.Index] = res
		if res.Err != nil && firstErr == nil {
			firstErr = fmt.Errorf("read %s: %w", res.Job.Display, res.Err)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	if firstErr != nil {
		return nil, 0, firstErr
	}

	var sources []media.Source
	ignored := 0
	for _, res := range loaded {
		if !res.Supported {
			ignored++
			continue
		}
		sources = append(sources, res.Source)
	}
	return sources, ignored, nil
}

func loadWorker(ctx context.Context, jobs <-chan Job, results chan<- Loaded) {
	for job := range jobs {
		if err := ctx.Err(); err != nil {
			return
		}

		res := Loaded{Job: job}
		data, err := os.ReadFile(job.Path)
		if err != nil {
			res.Err = err
			results <- res
			continue
		}

		src, err := media.NewSource(job.Display, mimetype.Detect(data).String(), data)
		if err == nil {
			res.Source = src
			res.Supported = true
		}
		results <- res
	}
}

func collectJobs(ctx context.Context, paths []string, opts LoadOptions) ([]Job, error) {
	var skipAbs string
	if opts.SkipDir != "" {
		if abs, err := filepath.Abs(opts.SkipDir); err == nil {
			skipAbs = filepath.Clean(abs)
		}
	}

	var jobs []Job
	add := func(path, rel string) {
		jobs = append(jobs, Job{Index: len(jobs), Path: path, RelPath: rel, Display: filepath.Base(path)})
	}

	for _, root := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		absRoot, err := filepath.Abs(root)
		if err != nil {
			return nil, err
		}

		if !info.IsDir() {
			add(absRoot, filepath.Base(absRoot))
			continue
		}

		var found []string
		err = fs.WalkDir(os.DirFS(absRoot), ".", func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				full := filepath.Join(absRoot, path)
				if skipAbs != "" && full != filepath.Clean(absRoot) && isWithin(full, skipAbs) {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			found = append(found, path)
			return nil
		})
		if err != nil {
			return nil, err
		}

		sort.Strings(found)
		for _, rel := range found {
			add(filepath.Join(absRoot, filepath.FromSlash(rel)), rel)
		}
	}
	return jobs, nil
}

func isWithin(path string, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
