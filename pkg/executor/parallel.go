package executor

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cucumber/godog"
	"golang.org/x/sync/errgroup"

	"github.com/devicelab-dev/parabank-e2e/pkg/core"
	"github.com/devicelab-dev/parabank-e2e/pkg/logger"
	"github.com/devicelab-dev/parabank-e2e/pkg/report"
)

// suite is one godog run: either a set of paths or in-memory features.
type suite struct {
	name     string
	paths    []string
	features []godog.Feature
	catalog  catalog
}

var errStopped = errors.New("run stopped after failure")

// plan splits the run into suites. With Parallel > 1 every feature file
// becomes its own suite, pulled from a shared queue.
func (r *Runner) plan() ([]suite, error) {
	if len(r.config.Features) > 0 {
		s := suite{name: r.config.Name, features: r.config.Features, catalog: catalog{}}
		return []suite{s}, nil
	}

	paths := r.config.Paths
	if len(paths) == 0 {
		paths = []string{"features"}
	}
	files, err := discover(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNoFeatures
	}

	if r.config.Parallel <= 1 {
		return []suite{r.newSuite(r.config.Name, paths)}, nil
	}
	suites := make([]suite, 0, len(files))
	for _, f := range files {
		name := strings.TrimSuffix(filepath.Base(f), ".feature")
		suites = append(suites, r.newSuite(name, []string{f}))
	}
	return suites, nil
}

func (r *Runner) newSuite(name string, paths []string) suite {
	s := suite{name: name, paths: paths, catalog: catalog{}}
	features, err := godog.TestSuite{
		Name:    name,
		Options: &godog.Options{Paths: paths, Tags: r.config.Tags},
	}.RetrieveFeatures()
	if err != nil {
		// godog reports the same parse error when the suite runs
		logger.Warn("parsing %v: %v", paths, err)
		return s
	}
	for _, f := range features {
		s.catalog.add(f.GherkinDocument)
	}
	return s
}

// discover expands directories into their .feature files, sorted.
func discover(paths []string) ([]string, error) {
	seen := map[string]bool{}
	var files []string
	for _, p := range paths {
		// godog accepts path:line to pick a scenario
		path := p
		if i := strings.LastIndex(p, ".feature:"); i >= 0 {
			path = p[:i+len(".feature")]
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, core.ConfigError("feature path " + path + " is not available").WithCause(err)
		}
		if !info.IsDir() {
			if !seen[p] {
				seen[p] = true
				files = append(files, p)
			}
			continue
		}
		err = filepath.WalkDir(path, func(f string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(f, ".feature") && !seen[f] {
				seen[f] = true
				files = append(files, f)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	sort.Strings(files)
	return files, nil
}

// executeSuites runs suites sequentially or with at most Parallel at once.
// Output of concurrent suites is buffered and written whole, one suite at
// a time.
func (r *Runner) executeSuites(ctx context.Context, suites []suite, w *report.IndexWriter) []core.SuiteResult {
	results := make([]core.SuiteResult, len(suites))

	if r.config.Parallel <= 1 || len(suites) == 1 {
		for i, s := range suites {
			if ctx.Err() != nil {
				results[i] = skippedSuite(s)
				continue
			}
			results[i] = r.runSuite(ctx, s, r.config.Output, w)
		}
		return results
	}

	var outMu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.Parallel)
	for i, s := range suites {
		g.Go(func() error {
			if gctx.Err() != nil {
				results[i] = skippedSuite(s)
				return nil
			}

			var buf bytes.Buffer
			res := r.runSuite(gctx, s, &buf, w)
			results[i] = res

			outMu.Lock()
			_, err := io.Copy(r.config.Output, &buf)
			outMu.Unlock()
			if err != nil {
				logger.Warn("writing output of suite %s: %v", s.name, err)
			}

			if r.config.StopOnFailure && !res.Success() {
				return errStopped
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Info("%v", err)
	}
	return results
}

func skippedSuite(s suite) core.SuiteResult {
	return core.SuiteResult{Name: s.name, ExitCode: exitFailure}
}
