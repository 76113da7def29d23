package cmd

import (
	"errors"
	"fmt"
)

const (
	exitFailure     = 1
	exitScanFailure = 2
)

// ScanFailuresError reports that some scans of a batch did not produce a result.
// The report for the other URLs has already been written.
type ScanFailuresError struct {
	Failed int
	Total  int
}

func (e *ScanFailuresError) Error() string {
	return fmt.Sprintf("%d of %d scan(s) failed", e.Failed, e.Total)
}

func exitCode(err error) int {
	var scanErr *ScanFailuresError
	if errors.As(err, &scanErr) {
		return exitScanFailure
	}
	return exitFailure
}
