// Command marketplace runs the marketplace API and its email queue tooling.
package main

import (
	"os"

	"github.com/motorlot/marketplace/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
