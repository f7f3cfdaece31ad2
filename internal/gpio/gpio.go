// Package gpio provides the enclosure cover sensor and the power key with
// hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// CoverSensor reports whether the enclosure cover is closed over the
// front-facing sensor.
type CoverSensor interface {
	// Closed returns true when the cover obstructs the sensor.
	// The hall sensor is active low: raw 0 = magnet present = closed.
	Closed() (bool, error)

	// Close releases GPIO resources.
	Close() error
}

// KeyWatcher delivers key presses from a GPIO line.
type KeyWatcher interface {
	// Close stops watching and releases the line.
	Close() error
}

// Default chip name.
const DefaultChip = "gpiochip0"
