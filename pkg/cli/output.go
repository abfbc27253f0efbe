package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cucumber/godog/colors"

	"github.com/devicelab-dev/parabank-e2e/pkg/core"
	"github.com/devicelab-dev/parabank-e2e/pkg/executor"
)

var colorsEnabled = true

func init() {
	// Respect NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	// Check if stdout is a terminal
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colorsEnabled = false
		}
	}
}

const tableWidth = 92

// printSummary prints the per-scenario table after godog's own output.
// Colors are escapes; wrap w with colors.Uncolored to drop them.
func printSummary(w io.Writer, result *executor.RunResult) {
	var total, passed, failed, skipped int
	for _, s := range result.Suites {
		for _, sc := range s.Scenarios {
			total += sc.TotalSteps
			passed += sc.PassedSteps
			failed += sc.FailedSteps
			skipped += sc.SkippedSteps + sc.UndefinedSteps
		}
	}

	fmt.Fprintln(w)
	if passed > 0 {
		fmt.Fprintf(w, "  %s (%s)\n", colors.Green(fmt.Sprintf("%d steps passing", passed)), formatDuration(result.Duration))
	}
	if failed > 0 {
		fmt.Fprintf(w, "  %s\n", colors.Red(fmt.Sprintf("%d steps failing", failed)))
	}
	if skipped > 0 {
		fmt.Fprintf(w, "  %s\n", colors.Cyan(fmt.Sprintf("%d steps skipped", skipped)))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, strings.Repeat("═", tableWidth))
	fmt.Fprintf(w, "  %-42s %6s %7s %6s %6s %6s %10s\n", "Scenario", "Status", "Steps", "Pass", "Fail", "Skip", "Duration")
	fmt.Fprintln(w, strings.Repeat("─", tableWidth))

	for _, s := range result.Suites {
		for _, sc := range s.Scenarios {
			fmt.Fprintf(w, "  %-42s %s %7d %6d %6d %6d %10s\n",
				truncate(sc.Name, 42), statusLabel(sc.Status),
				sc.TotalSteps, sc.PassedSteps, sc.FailedSteps, sc.SkippedSteps+sc.UndefinedSteps,
				formatDuration(sc.Duration))
		}
	}

	fmt.Fprintln(w, strings.Repeat("─", tableWidth))
	ratio := fmt.Sprintf("%6s", fmt.Sprintf("%d/%d", result.PassedScenarios, result.TotalScenarios))
	if result.FailedScenarios > 0 || !result.Success() {
		ratio = colors.Red(ratio)
	} else {
		ratio = colors.Green(ratio)
	}
	fmt.Fprintf(w, "  %s %s %7d %6d %6d %6d %10s\n",
		colors.Bold(colors.White)(fmt.Sprintf("%-42s", "TOTAL")), ratio,
		total, passed, failed, skipped, formatDuration(result.Duration))
	fmt.Fprintln(w, strings.Repeat("═", tableWidth))
	fmt.Fprintln(w)
}

func statusLabel(s core.StepStatus) string {
	switch s {
	case core.StatusPassed:
		return colors.Green(fmt.Sprintf("%6s", "✓ PASS"))
	case core.StatusFailed, core.StatusErrored:
		return colors.Red(fmt.Sprintf("%6s", "✗ FAIL"))
	case core.StatusUndefined:
		return colors.Yellow(fmt.Sprintf("%6s", "? UNDF"))
	default:
		return colors.Cyan(fmt.Sprintf("%6s", "- SKIP"))
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// formatDuration shows milliseconds below a second, seconds below a
// minute and minutes with seconds otherwise.
func formatDuration(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm %ds", mins, secs)
}
