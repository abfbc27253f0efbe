package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/parabank-e2e/pkg/report"
)

var reportCommand = &cli.Command{
	Name:      "report",
	Usage:     "Regenerate reports from a finished run",
	ArgsUsage: "<report-dir>",
	Description: `Rebuild report.html from report.json and, with --allure, write
allure-results/ next to it.

Examples:
  parabank-e2e report reports/2026-01-02_15-04-05
  parabank-e2e report ./my-reports --allure --embed`,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "allure",
			Usage: "Write allure-results into the report directory",
		},
		&cli.BoolFlag{
			Name:  "embed",
			Usage: "Embed screenshots in the HTML as base64",
		},
		&cli.StringFlag{
			Name:  "title",
			Usage: "HTML report title (default: ParaBank E2E Report)",
		},
	},
	Action: runReport,
}

func runReport(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one report directory is required")
	}
	dir := c.Args().First()
	if _, err := os.Stat(filepath.Join(dir, report.IndexFile)); err != nil {
		return fmt.Errorf("%s is not a report directory: %w", dir, err)
	}

	htmlPath := filepath.Join(dir, report.HTMLFile)
	if err := report.GenerateHTML(dir, report.HTMLConfig{
		OutputPath:  htmlPath,
		EmbedAssets: c.Bool("embed"),
		Title:       c.String("title"),
	}); err != nil {
		return fmt.Errorf("generate HTML report: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "HTML:   %s\n", htmlPath)

	if c.Bool("allure") {
		if err := report.GenerateAllure(dir); err != nil {
			return fmt.Errorf("generate Allure results: %w", err)
		}
		fmt.Fprintf(c.App.Writer, "Allure: %s\n", filepath.Join(dir, report.AllureResultsDir))
	}
	return nil
}
