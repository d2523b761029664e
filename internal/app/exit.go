package app

import (
	"context"
	"errors"

	"meetwatch/internal/watch"
)

// ErrConfig marks problems the operator has to fix in the configuration.
var ErrConfig = errors.New("configuration error")

const (
	ExitOK      = 0
	ExitFailure = 1
	ExitAborted = 2
)

// ExitCode maps the result of Run to a process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return ExitOK
	case errors.Is(err, watch.ErrAborted):
		return ExitAborted
	default:
		return ExitFailure
	}
}
