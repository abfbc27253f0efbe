package cli

import (
	"fmt"

	"github.com/cucumber/godog/colors"
	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/parabank-e2e/pkg/steps"
	"github.com/devicelab-dev/parabank-e2e/pkg/validator"
)

var validateCommand = &cli.Command{
	Name:      "validate",
	Usage:     "Check feature files without running them",
	ArgsUsage: "[feature-file-or-folder]...",
	Description: `Parse every feature file and match each step against the step
catalog. Undefined and ambiguous steps are reported with their line.

Examples:
  parabank-e2e validate
  parabank-e2e validate features/web --tags @web`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "tags",
			Usage: "Only check scenarios matching this tag expression",
		},
	},
	Action: runValidate,
}

func runValidate(c *cli.Context) error {
	paths := c.Args().Slice()
	if len(paths) == 0 {
		paths = []string{"features"}
	}

	v := validator.New(c.String("tags"), steps.Definitions())
	w := c.App.Writer
	if !colorsEnabled || (lookup{c}).Bool("no-ansi") {
		w = colors.Uncolored(w)
	}

	var files, scenarios, failures int
	for _, p := range paths {
		result := v.Validate(p)
		files += len(result.Files)
		scenarios += result.Scenarios
		failures += len(result.Errors)
		for _, err := range result.Errors {
			fmt.Fprintf(w, "  %s %v\n", colors.Red("✗"), err)
		}
	}

	if failures > 0 {
		fmt.Fprintf(w, "\n%s in %d file(s)\n", colors.Red(fmt.Sprintf("%d problem(s)", failures)), files)
		return cli.Exit("", 1)
	}
	fmt.Fprintf(w, "%s %d file(s), %d scenario(s)\n", colors.Green("✓"), files, scenarios)
	return nil
}
