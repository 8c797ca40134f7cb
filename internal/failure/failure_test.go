package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/dskow/newtoken/internal/config"
	"github.com/dskow/newtoken/internal/token"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode Code
		wantExit int
	}{
		{"nil", nil, "", ExitOK},
		{"missing", &config.ConfigurationError{Missing: []string{"JWT_SECRET"}}, ConfigMissing, ExitConfig},
		{"invalid", &config.ConfigurationError{Err: errors.New("bad level")}, ConfigInvalid, ExitConfig},
		{"wrapped config", fmt.Errorf("loading: %w", &config.ConfigurationError{Missing: []string{"DEVICE_ID"}}), ConfigMissing, ExitConfig},
		{"usage", &UsageError{Err: errors.New("unknown flag: --ttl")}, Usage, ExitConfig},
		{"signing", &token.SigningError{Err: errors.New("key is invalid")}, SigningFailed, ExitFailure},
		{"other", errors.New("disk full"), Internal, ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, exit := Classify(tt.err)
			if code != tt.wantCode {
				t.Errorf("code = %q, want %q", code, tt.wantCode)
			}
			if exit != tt.wantExit {
				t.Errorf("exit = %d, want %d", exit, tt.wantExit)
			}
		})
	}
}

func TestCodes_Stable(t *testing.T) {
	codes := map[Code]string{
		ConfigMissing: "NEWTOKEN_CONFIG_MISSING",
		ConfigInvalid: "NEWTOKEN_CONFIG_INVALID",
		SigningFailed: "NEWTOKEN_SIGNING_FAILED",
		Usage:         "NEWTOKEN_USAGE",
		Internal:      "NEWTOKEN_INTERNAL",
	}
	for code, want := range codes {
		if string(code) != want {
			t.Errorf("code %q changed, want %q", code, want)
		}
	}
}
