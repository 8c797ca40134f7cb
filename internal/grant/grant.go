// Package grant builds and inspects the capability strings carried in the
// "grants" claim of device tokens.
package grant

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Separator joins the parts of a grant string.
const Separator = ":"

const (
	ActionConnect = "connect"
	KindDevice    = "device"
)

// Grant is a parsed grant string of the form <action>:<kind>:<id>.
type Grant struct {
	Action string
	Kind   string
	ID     string
}

// String returns the wire form of the grant.
func (g Grant) String() string {
	return g.Action + Separator + g.Kind + Separator + g.ID
}

// ConnectDevice returns the grant allowing a connection to the given device.
func ConnectDevice(deviceID string) string {
	return Grant{Action: ActionConnect, Kind: KindDevice, ID: deviceID}.String()
}

// ErrEmptyDeviceID is returned by ValidateDeviceID for an empty identifier.
var ErrEmptyDeviceID = errors.New("device id is empty")

// InvalidDeviceIDError reports a device identifier that cannot be embedded
// in a grant without changing its meaning.
type InvalidDeviceIDError struct {
	DeviceID string
	Rune     rune
	Offset   int
}

func (e *InvalidDeviceIDError) Error() string {
	if e.Rune == utf8.RuneError {
		return fmt.Sprintf("device id %q is not valid UTF-8 at byte %d", e.DeviceID, e.Offset)
	}
	return fmt.Sprintf("device id %q contains invalid character %q at byte %d", e.DeviceID, e.Rune, e.Offset)
}

// ValidateDeviceID checks that id is usable as the last segment of a grant.
// The separator, whitespace, and control characters are rejected.
func ValidateDeviceID(id string) error {
	if id == "" {
		return ErrEmptyDeviceID
	}
	for i, r := range id {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(id[i:]); size == 1 {
				return &InvalidDeviceIDError{DeviceID: id, Rune: r, Offset: i}
			}
		}
		if r == ':' || unicode.IsSpace(r) || unicode.IsControl(r) {
			return &InvalidDeviceIDError{DeviceID: id, Rune: r, Offset: i}
		}
	}
	return nil
}

// Parse splits a grant string into its three parts. The id may not be empty
// and may not contain the separator.
func Parse(s string) (Grant, error) {
	parts := strings.Split(s, Separator)
	if len(parts) != 3 {
		return Grant{}, fmt.Errorf("grant %q: want 3 %q-separated parts, got %d", s, Separator, len(parts))
	}
	g := Grant{Action: parts[0], Kind: parts[1], ID: parts[2]}
	if g.Action == "" || g.Kind == "" || g.ID == "" {
		return Grant{}, fmt.Errorf("grant %q: empty part", s)
	}
	return g, nil
}
