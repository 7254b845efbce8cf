package main

import (
	"errors"
	"fmt"
	"os"
)

// Exit codes for different failure modes
const (
	ExitSuccess        = 0 // Everything ran and reconciled
	ExitPartialFailure = 1 // One or more benchmark targets failed
	ExitError          = 2 // Configuration or runtime error
)

// PartialFailureError indicates that the run itself worked, but some
// benchmark targets failed.
type PartialFailureError struct {
	Failed int
	Total  int
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%d of %d benchmark target(s) failed", e.Failed, e.Total)
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		// Check error type to determine exit code
		var partialErr *PartialFailureError
		if errors.As(err, &partialErr) {
			os.Exit(ExitPartialFailure)
		}

		// All other errors are configuration/runtime errors
		os.Exit(ExitError)
	}
}
