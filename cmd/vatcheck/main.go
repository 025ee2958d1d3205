// vatcheck validates VAT numbers from the command line using the same engine
// and configuration as the MCP server.
//
// Usage:
//
//	vatcheck validate NL004495445B01 BE0123456749
//	cat numbers.txt | vatcheck validate --normalize --json
//	vatcheck lookup NL004495445B01
//	vatcheck countries --eu-only
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, errInvalidNumbers) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
