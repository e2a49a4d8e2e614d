// Command cachescope opens and browses on-disk key/value caches.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/cachescope/internal/cli"
)

func main() {
	err := cli.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "cachescope:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
