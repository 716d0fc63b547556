// kodama is the admin command line for a kodama server.
package main

import (
	"fmt"
	"os"

	"github.com/fidde/kodama/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
