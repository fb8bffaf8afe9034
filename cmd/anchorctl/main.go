// Command anchorctl inspects persisted anchor records and runs anchor
// lifecycle scenarios.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/anchorage/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		if !cli.IsReported(err) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
