package commands

import (
	"errors"

	"securechat/internal/domain"
)

const (
	exitOK         = 0
	exitError      = 1
	exitAuthFailed = 2
	exitServerFull = 3
)

// ExitCode maps an Execute error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, domain.ErrAuthentication):
		return exitAuthFailed
	case errors.Is(err, domain.ErrCapacity):
		return exitServerFull
	default:
		return exitError
	}
}
