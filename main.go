// The main package for the lexharvest executable.
package main

import (
	"fmt"
	"os"

	"github.com/lexharvest/lexharvest/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
