package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/nyctaxi/taxietl/internal/errs"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps the pipeline's error taxonomy onto the process
// exit code a cron wrapper or systemd unit can branch on: 2 for an
// operator mistake that needs fixing before any retry is useful, 1
// for anything else terminal.
func exitCodeFor(err error) int {
	if errors.Is(err, errCancelled) {
		return 130
	}
	return errs.ExitCode(errs.KindOf(err))
}
