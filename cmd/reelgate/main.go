// Command reelgate runs the approval-gated agent engine and its CLI.
package main

import (
	"fmt"
	"os"

	"reelgate/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
