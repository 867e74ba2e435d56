package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/iambrandonn/docrun/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		// The run command has already printed the snippet's warnings.
		if !errors.Is(err, cli.ErrSnippetFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
