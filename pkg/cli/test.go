package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cucumber/godog/colors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/devicelab-dev/parabank-e2e/pkg/config"
	"github.com/devicelab-dev/parabank-e2e/pkg/core"
	"github.com/devicelab-dev/parabank-e2e/pkg/display"
	"github.com/devicelab-dev/parabank-e2e/pkg/driver/chrome"
	"github.com/devicelab-dev/parabank-e2e/pkg/driver/playwright"
	"github.com/devicelab-dev/parabank-e2e/pkg/executor"
	"github.com/devicelab-dev/parabank-e2e/pkg/logger"
	"github.com/devicelab-dev/parabank-e2e/pkg/report"
	"github.com/devicelab-dev/parabank-e2e/pkg/steps"
)

var testCommand = &cli.Command{
	Name:      "test",
	Usage:     "Run feature files against a ParaBank server",
	ArgsUsage: "[feature-file-or-folder]...",
	Description: `Run Gherkin features. Without arguments the "features" setting
(default: ./features) is used. A file may carry a line, e.g. login.feature:12.

Settings are layered: defaults, parabank.yaml (or --config), PARABANK_*
environment variables, -D user data, then the flags below.

Reports are generated in the output directory:
  - Default: <home>/reports/<timestamp>/
  - With --output: <output>/<timestamp>/
  - With --output and --flatten: <output>/ (no timestamp subfolder)

Examples:
  parabank-e2e test
  parabank-e2e test features/api/registration.feature
  parabank-e2e test --tags "@web && ~@wip" --driver playwright
  parabank-e2e test -D DRIVER_WAIT_TIME=20 -D server=http://localhost:8080
  parabank-e2e test --parallel 4 --output ./my-reports --flatten`,
	Flags: []cli.Flag{
		// Configuration
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to parabank.yaml",
		},
		&cli.StringSliceFlag{
			Name:    "define",
			Aliases: []string{"D"},
			Usage:   "User data override (KEY=VALUE)",
		},

		// Target
		&cli.StringFlag{
			Name:  "server",
			Usage: "ParaBank base URL",
		},
		&cli.StringFlag{
			Name:  "browser",
			Usage: "Browser for @web scenarios (chrome)",
		},
		&cli.StringFlag{
			Name:  "driver",
			Usage: "Browser driver (chromedp, playwright)",
		},
		&cli.BoolFlag{
			Name:  "headless",
			Usage: "Run browsers on a virtual display (Xvfb, or headless Chrome without it)",
		},

		// Selection
		&cli.StringFlag{
			Name:  "tags",
			Usage: `Tag expression, e.g. "@api && ~@wip"`,
		},

		// Output
		&cli.StringFlag{
			Name:  "format",
			Usage: "godog formatter (pretty, progress, cucumber, junit)",
		},
		&cli.StringFlag{
			Name:  "output",
			Usage: "Output directory for reports (default: <home>/reports)",
		},
		&cli.BoolFlag{
			Name:  "flatten",
			Usage: "Don't create timestamp subfolder (requires --output)",
		},
		&cli.BoolFlag{
			Name:  "allure",
			Usage: "Also write allure-results into the report directory",
		},

		// Execution
		&cli.IntFlag{
			Name:  "parallel",
			Usage: "Run up to N feature files at once",
		},
		&cli.BoolFlag{
			Name:  "stop-on-failure",
			Usage: "Stop after the first failed scenario",
		},
	},
	Action: runTest,
}

// RunConfig holds everything resolved from the command line.
type RunConfig struct {
	Paths      []string
	ConfigPath string
	WorkDir    string // Where parabank.yaml is looked up

	// Config overrides from -D and flags, flags last
	UserData map[string]string

	Flatten       bool
	Allure        bool
	StopOnFailure bool
	Verbose       bool
	NoColors      bool
}

// flagKeys maps string flags to the config keys they override.
var flagKeys = map[string]string{
	"server":  "server",
	"browser": "browser",
	"driver":  "driver",
	"tags":    "tags",
	"format":  "format",
	"output":  "output",
}

func runTest(c *cli.Context) error {
	rc, err := newRunConfig(lookup{c}, c.Args().Slice())
	if err != nil {
		return err
	}
	return executeTest(c.Context, rc, os.Stdout)
}

func newRunConfig(f lookup, args []string) (*RunConfig, error) {
	userData, err := config.ParseUserData(f.StringSlice("define"))
	if err != nil {
		return nil, err
	}
	for name, key := range flagKeys {
		if f.IsSet(name) {
			userData[key] = f.String(name)
		}
	}
	if f.IsSet("headless") {
		userData["headless"] = strconv.FormatBool(f.Bool("headless"))
	}
	if f.IsSet("parallel") {
		userData["parallel"] = strconv.Itoa(f.Int("parallel"))
	}

	if f.Bool("flatten") && userData["output"] == "" {
		return nil, fmt.Errorf("--flatten requires --output to be specified")
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("get working directory: %w", err)
	}

	return &RunConfig{
		Paths:         args,
		ConfigPath:    f.String("config"),
		WorkDir:       wd,
		UserData:      userData,
		Flatten:       f.Bool("flatten"),
		Allure:        f.Bool("allure"),
		StopOnFailure: f.Bool("stop-on-failure"),
		Verbose:       f.Bool("verbose"),
		NoColors:      f.Bool("no-ansi") || !colorsEnabled,
	}, nil
}

// resolveOutputDir determines the output directory based on flags.
// - No --output: <home>/reports/<timestamp>/
// - --output given: <output>/<timestamp>/
// - --output + --flatten: <output>/ (error if --output not given)
func resolveOutputDir(output string, flatten bool) (string, error) {
	if flatten && output == "" {
		return "", fmt.Errorf("--flatten requires --output to be specified")
	}

	baseDir := output
	if baseDir == "" {
		baseDir = config.GetReportsDir()
	}

	if flatten {
		return filepath.Clean(baseDir), nil
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return filepath.Join(baseDir, timestamp), nil
}

// loggerConfig applies the global flags to the configured logger. The
// file lives under the home directory so lumberjack can rotate it across
// runs.
func loggerConfig(cfg *config.Config, rc *RunConfig) logger.Config {
	lc := cfg.Logger
	if rc.Verbose {
		lc.Level = "debug"
	}
	if rc.NoColors {
		lc.Color = false
	}
	if lc.File == "" {
		name := lc.Name
		if name == "" {
			name = "parabank-e2e"
		}
		lc.File = config.GetLogFile(name)
	}
	return lc
}

// newBrowserFactory returns the factory @web scenarios open browsers with.
func newBrowserFactory(driver string, headless bool, log *zap.Logger) (steps.BrowserFactory, error) {
	switch driver {
	case config.DriverChromedp:
		return func(context.Context) (core.Driver, error) {
			return chrome.New(chrome.Options{Headless: headless, Logger: log.Named("chromedp")})
		}, nil
	case config.DriverPlaywright:
		return func(context.Context) (core.Driver, error) {
			return playwright.New(playwright.Options{Headless: headless, Logger: log.Named("playwright")})
		}, nil
	}
	return nil, core.ConfigError(fmt.Sprintf("unknown driver %q", driver))
}

func buildStepsConfig(cfg *config.Config, headlessBrowser bool, log *zap.Logger) (*steps.Config, error) {
	factory, err := newBrowserFactory(cfg.Driver, headlessBrowser, log)
	if err != nil {
		return nil, err
	}
	return &steps.Config{
		Server:     strings.TrimRight(cfg.Server, "/"),
		Policy:     cfg.WaitPolicy(),
		Artifacts:  cfg.Artifacts(),
		NewBrowser: factory,
		Expander:   steps.NewExpander(log.Named("js")),
		Logger:     log,
	}, nil
}

// startDisplay starts Xvfb when browsers should not need a real screen.
// It reports whether the browser itself must run headless instead.
func startDisplay(ctx context.Context, cfg *config.Config) (*display.Display, bool, error) {
	if !cfg.Headless {
		return nil, false, nil
	}
	d, err := display.Start(ctx, display.Options{})
	if errors.Is(err, display.ErrNotFound) {
		logger.Warn("%v, falling back to headless Chrome", err)
		return nil, true, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("start virtual display: %w", err)
	}
	return d, false, nil
}

func executeTest(ctx context.Context, rc *RunConfig, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	// 1. Load configuration
	cfg, err := config.Load(rc.ConfigPath, rc.WorkDir, rc.UserData)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// 2. Create output directory
	outputDir, err := resolveOutputDir(cfg.Output, rc.Flatten)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// 3. Initialize logging
	if err := logger.Init(loggerConfig(cfg, rc)); err != nil {
		fmt.Fprintf(out, "Warning: Failed to initialize logger: %v\n", err)
	}
	defer logger.Close()

	logger.Info("=== Test execution started ===")
	logger.Info("Output directory: %s", outputDir)
	logger.Info("Server: %s", cfg.Server)
	logger.Info("Driver: %s", cfg.Driver)

	// Ctrl+C cancels running scenarios; deferred cleanup still runs
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Virtual display
	disp, headlessBrowser, err := startDisplay(ctx, cfg)
	if err != nil {
		logger.Error("%v", err)
		return err
	}
	if disp != nil {
		defer func() {
			if err := disp.Stop(); err != nil {
				logger.Warn("%v", err)
			}
		}()
	}

	// 5. Run suites
	stepsCfg, err := buildStepsConfig(cfg, headlessBrowser, logger.L())
	if err != nil {
		return err
	}

	paths := rc.Paths
	if len(paths) == 0 {
		paths = cfg.Features
	}

	runner := executor.New(executor.RunnerConfig{
		Name:          "parabank",
		Paths:         paths,
		Tags:          cfg.Tags,
		Format:        cfg.Format,
		Output:        out,
		NoColors:      rc.NoColors,
		Parallel:      cfg.Parallel,
		StopOnFailure: rc.StopOnFailure,
		Steps:         stepsCfg,
		OutputDir:     outputDir,
		Server:        cfg.Server,
		CI:            report.DetectCI(nil),
		RunnerVersion: Version,
		DriverName:    cfg.Driver,
		OnScenarioEnd: onScenarioEnd,
	})

	result, err := runner.Run(ctx)
	if err != nil {
		logger.Error("Run failed: %v", err)
		return err
	}
	logger.Info("Run completed: %d passed, %d failed, %d skipped",
		result.PassedScenarios, result.FailedScenarios, result.SkippedScenarios)

	// 6. Summary and reports
	w := out
	if rc.NoColors {
		w = colors.Uncolored(out)
	}
	printSummary(w, result)
	printReports(w, result.ReportDir, rc.Allure)

	if !result.Success() {
		return cli.Exit("", 1)
	}
	return nil
}

func onScenarioEnd(r core.ScenarioResult) {
	if r.Status == core.StatusPassed {
		logger.Debug("scenario %q passed in %s", r.Name, r.Duration.Round(time.Millisecond))
		return
	}
	logger.Info("scenario %q %s: %s", r.Name, r.Status, r.Error)
}

func printReports(w io.Writer, dir string, allure bool) {
	if dir == "" {
		return
	}
	fmt.Fprintln(w, "  Reports:")
	fmt.Fprintf(w, "    HTML:   %s\n", filepath.Join(dir, report.HTMLFile))
	fmt.Fprintf(w, "    JSON:   %s\n", filepath.Join(dir, report.IndexFile))
	if !allure {
		fmt.Fprintln(w)
		return
	}
	if err := report.GenerateAllure(dir); err != nil {
		fmt.Fprintf(w, "  %s failed to generate Allure results: %v\n", colors.Yellow("⚠"), err)
	} else {
		fmt.Fprintf(w, "    Allure: %s\n", filepath.Join(dir, report.AllureResultsDir))
	}
	fmt.Fprintln(w)
}
