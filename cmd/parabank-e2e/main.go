// Command parabank-e2e runs the ParaBank end-to-end suite.
package main

import "github.com/devicelab-dev/parabank-e2e/pkg/cli"

func main() {
	cli.Execute()
}
