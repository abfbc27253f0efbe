// Package cli provides the command-line interface for parabank-e2e.
package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable debug logging",
		EnvVars: []string{"PARABANK_VERBOSE"},
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// NewApp builds the command tree.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "parabank-e2e",
		Usage:   "BDD end-to-end suite for the ParaBank demo bank",
		Version: Version,
		Description: `parabank-e2e runs Gherkin features against a ParaBank server,
through its HTTP endpoints and through a real Chrome browser.

Examples:
  parabank-e2e test
  parabank-e2e test features/api --tags @api
  parabank-e2e test --server http://localhost:8080 -D DRIVER_WAIT_TIME=20
  parabank-e2e validate features/
  parabank-e2e report reports/2026-01-02_15-04-05 --allure`,
		Flags: GlobalFlags,
		Commands: []*cli.Command{
			testCommand,
			validateCommand,
			reportCommand,
		},
	}
}

// Execute runs the CLI.
func Execute() {
	if err := NewApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// lookup reads a flag from the command, falling back to the parent
// context where global flags live.
type lookup struct {
	c *cli.Context
}

func (l lookup) ctx(name string) *cli.Context {
	if l.c.IsSet(name) {
		return l.c
	}
	for _, p := range l.c.Lineage()[1:] {
		if p != nil && p.IsSet(name) {
			return p
		}
	}
	return l.c
}

func (l lookup) String(name string) string { return l.ctx(name).String(name) }
func (l lookup) Int(name string) int       { return l.ctx(name).Int(name) }
func (l lookup) Bool(name string) bool     { return l.ctx(name).Bool(name) }
func (l lookup) IsSet(name string) bool    { return l.ctx(name).IsSet(name) }

func (l lookup) StringSlice(name string) []string {
	return l.ctx(name).StringSlice(name)
}
