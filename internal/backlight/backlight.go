// Package backlight drives the panel backlight and the key-backlight LED.
// The real implementation writes Linux backlight class attributes.
// The fake implementation records calls for tests.
package backlight

import "context"

// Actuator turns the physical display on, dim, off, or into standby.
type Actuator interface {
	// Update re-reads the stored brightness preference and applies it,
	// unblanking the panel if needed.
	Update() error

	// Dim lowers the panel to the configured dim level.
	Dim() error

	// Off blanks the panel.
	Off() error

	// Standby enters or leaves the physical standby mode: panel dark while
	// the rest of the system keeps running.
	Standby(on bool) error

	// KeyLight switches the key-backlight LED.
	KeyLight(on bool) error
}

// BrightnessSource supplies the user's stored brightness in percent.
type BrightnessSource interface {
	Brightness(ctx context.Context) (int, error)
}
