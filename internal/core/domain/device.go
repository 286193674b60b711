package domain

import (
	"errors"
	"fmt"
)

// MaxDeviceIDLength bounds device identifiers.
const MaxDeviceIDLength = 128

// ErrInvalidDeviceID is returned for identifiers that cannot be used as a
// session key or message subject token.
var ErrInvalidDeviceID = errors.New("invalid device id")

// ValidateDeviceID accepts 1-128 characters of [A-Za-z0-9_-].
func ValidateDeviceID(id string) error {
	if id == "" || len(id) > MaxDeviceIDLength {
		return fmt.Errorf("%w: length must be 1-%d", ErrInvalidDeviceID, MaxDeviceIDLength)
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return fmt.Errorf("%w: unexpected character %q", ErrInvalidDeviceID, c)
		}
	}
	return nil
}
