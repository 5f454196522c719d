package main

import (
	"context"
	"fmt"
	"os"

	"github.com/acme/autodialer/internal/cli"
	apperrors "github.com/acme/autodialer/pkg/errors"
)

// Set by ldflags at build time.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cli.SetVersionInfo(version, commit)

	if err := cli.Execute(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(apperrors.ExitCode(err))
	}
}
