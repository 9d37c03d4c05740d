// Command herdsync captures herd records offline and syncs them with the
// registry.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/herdsync/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "herdsync:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
