// Package executor runs godog suites over the feature files, connecting the
// step catalog to the report.
package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cucumber/godog"
	"github.com/google/uuid"

	"github.com/devicelab-dev/parabank-e2e/pkg/core"
	"github.com/devicelab-dev/parabank-e2e/pkg/logger"
	"github.com/devicelab-dev/parabank-e2e/pkg/report"
	"github.com/devicelab-dev/parabank-e2e/pkg/steps"
)

// godog exit codes
const (
	exitFailure     = 1
	exitOptionError = 2
)

// ErrNoFeatures is returned when no feature file matches the paths.
var ErrNoFeatures = errors.New("no feature files found")

// RunnerConfig configures the test runner.
type RunnerConfig struct {
	Name     string          // Suite name, also the report title
	Paths    []string        // Feature files or directories
	Features []godog.Feature // In-memory features, run as one suite
	Tags     string          // godog tag expression, e.g. "@api && ~@wip"
	Format   string          // godog formatter: pretty, progress, cucumber, junit
	Output   io.Writer       // Formatter output (default: stdout)
	NoColors bool

	Parallel      int  // Max concurrent suites (<= 1 runs one suite with every path)
	StopOnFailure bool // Stop remaining scenarios and suites on first failure

	Steps *steps.Config

	// Report metadata. No report is written when OutputDir is empty.
	OutputDir     string
	Server        string
	Browser       *core.BrowserInfo
	CI            *report.CI
	RunnerVersion string
	DriverName    string

	// Live progress callbacks
	OnScenarioStart func(name string)
	OnScenarioEnd   func(core.ScenarioResult)
}

// RunResult contains the outcome of a test run.
type RunResult struct {
	RunID            string
	Status           report.Status
	Suites           []core.SuiteResult
	TotalScenarios   int
	PassedScenarios  int
	FailedScenarios  int
	SkippedScenarios int
	Duration         time.Duration // Wall clock
	ReportDir        string
}

// Success reports whether every suite exited cleanly.
func (r *RunResult) Success() bool {
	return r.Status == report.StatusPassed
}

// Runner orchestrates suite execution.
type Runner struct {
	config RunnerConfig
}

// New creates a new Runner.
func New(cfg RunnerConfig) *Runner {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.Format == "" {
		cfg.Format = "pretty"
	}
	if cfg.Name == "" {
		cfg.Name = "parabank"
	}
	return &Runner{config: cfg}
}

// Run executes every suite and writes the report.
func (r *Runner) Run(ctx context.Context) (*RunResult, error) {
	if r.config.Steps == nil {
		return nil, core.ConfigError("runner needs a step configuration")
	}

	suites, err := r.plan()
	if err != nil {
		return nil, err
	}

	var w *report.IndexWriter
	if r.config.OutputDir != "" {
		w, err = report.NewIndexWriter(r.config.OutputDir, report.NewIndex(report.BuilderConfig{
			Name:          r.config.Name,
			Server:        r.config.Server,
			Browser:       r.config.Browser,
			CI:            r.config.CI,
			RunnerVersion: r.config.RunnerVersion,
			DriverName:    r.config.DriverName,
		}))
		if err != nil {
			return nil, fmt.Errorf("create report: %w", err)
		}
		defer w.Close()
		w.Start()
	}

	start := time.Now()
	results := r.executeSuites(ctx, suites, w)
	if w != nil {
		w.End()
	}

	res := r.buildRunResult(results, time.Since(start))
	if w != nil {
		res.RunID = w.Index().RunID
		res.ReportDir = w.Dir()
	} else {
		res.RunID = uuid.NewString()
	}
	return res, nil
}

// runSuite runs one godog suite and collects its scenarios.
func (r *Runner) runSuite(ctx context.Context, s suite, out io.Writer, w *report.IndexWriter) core.SuiteResult {
	rec := newRecorder(s.catalog, w)
	rec.onStart = r.config.OnScenarioStart
	rec.onEnd = r.config.OnScenarioEnd

	opts := &godog.Options{
		Format:          r.config.Format,
		Paths:           s.paths,
		FeatureContents: s.features,
		Tags:            r.config.Tags,
		Output:          out,
		NoColors:        r.config.NoColors,
		Strict:          true,
		StopOnFailure:   r.config.StopOnFailure,
		DefaultContext:  ctx,
	}

	initScenario := steps.InitializeScenario(r.config.Steps)
	result := core.SuiteResult{
		Name:      s.name,
		RunID:     uuid.NewString(),
		StartTime: time.Now(),
	}
	logger.Info("suite %s started (%d paths)", s.name, len(s.paths))

	result.ExitCode = godog.TestSuite{
		Name: s.name,
		ScenarioInitializer: func(sc *godog.ScenarioContext) {
			initScenario(sc)
			rec.register(sc)
		},
		Options: opts,
	}.Run()

	if result.ExitCode == exitOptionError {
		logger.Error("suite %s: godog rejected the options (format %q, tags %q)", s.name, r.config.Format, r.config.Tags)
	}
	result.Duration = time.Since(result.StartTime)
	result.Scenarios = rec.results()
	result.ComputeSummary()
	logger.Info("suite %s finished: exit %d, %d/%d scenarios passed in %s",
		s.name, result.ExitCode, result.PassedScenarios, result.TotalScenarios, result.Duration.Round(time.Millisecond))
	return result
}

// buildRunResult aggregates suite results into a run result.
func (r *Runner) buildRunResult(suites []core.SuiteResult, wall time.Duration) *RunResult {
	result := &RunResult{
		Suites:   suites,
		Duration: wall,
		Status:   report.StatusPassed,
	}
	for _, s := range suites {
		result.TotalScenarios += s.TotalScenarios
		result.PassedScenarios += s.PassedScenarios
		result.FailedScenarios += s.FailedScenarios
		result.SkippedScenarios += s.SkippedScenarios
		if !s.Success() {
			result.Status = report.StatusFailed
		}
	}
	return result
}
