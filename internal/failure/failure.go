// Package failure classifies minter errors into stable, machine-readable
// codes and process exit statuses. Orchestration scripts can program
// against these codes; do not rename or remove existing ones.
package failure

import (
	"errors"

	"github.com/dskow/newtoken/internal/config"
	"github.com/dskow/newtoken/internal/token"
)

// Code is a machine-readable error classification string.
type Code string

const (
	ConfigMissing Code = "NEWTOKEN_CONFIG_MISSING"
	ConfigInvalid Code = "NEWTOKEN_CONFIG_INVALID"
	SigningFailed Code = "NEWTOKEN_SIGNING_FAILED"
	Usage         Code = "NEWTOKEN_USAGE"
	Internal      Code = "NEWTOKEN_INTERNAL"
)

// Exit statuses.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitConfig  = 2
)

// UsageError wraps command-line parsing errors.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string { return e.Err.Error() }

func (e *UsageError) Unwrap() error { return e.Err }

// Classify returns the code and exit status for err. A nil error maps to
// ("", ExitOK).
func Classify(err error) (Code, int) {
	if err == nil {
		return "", ExitOK
	}

	if config.IsMissing(err) {
		return ConfigMissing, ExitConfig
	}
	var ce *config.ConfigurationError
	if errors.As(err, &ce) {
		return ConfigInvalid, ExitConfig
	}

	var ue *UsageError
	if errors.As(err, &ue) {
		return Usage, ExitConfig
	}

	var se *token.SigningError
	if errors.As(err, &se) {
		return SigningFailed, ExitFailure
	}

	return Internal, ExitFailure
}
