package main

import (
	"context"
	"fmt"
	"os"

	"github.com/safehome/safehome/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "safehome: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
