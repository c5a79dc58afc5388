// Command prospensity trains and serves the wellness-package purchase
// propensity model.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newCLI().rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
