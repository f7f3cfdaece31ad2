//go:build !linux

package gpio

import "github.com/pkg/errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealCover is not available on non-Linux platforms.
type RealCover struct{}

// NewRealCover returns an error on non-Linux platforms.
func NewRealCover(chip string, pin int) (*RealCover, error) {
	return nil, errUnsupported
}

// Closed is not implemented on non-Linux platforms.
func (r *RealCover) Closed() (bool, error) {
	return false, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (r *RealCover) Close() error {
	return nil
}

// RealKey is not available on non-Linux platforms.
type RealKey struct{}

// NewRealKey returns an error on non-Linux platforms.
func NewRealKey(chip string, pin int, onPress func()) (*RealKey, error) {
	return nil, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (r *RealKey) Close() error {
	return nil
}
