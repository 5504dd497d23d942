// Command sequencer compiles and runs schedule graphs.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/sequencer/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
