// Command sqlsentinel normalizes SQL statements from the command line.
package main

import (
	"os"

	"github.com/kroma-labs/sqlsentinel/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
