//go:build linux

package gpio

import (
	"time"

	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

const keyDebounce = 20 * time.Millisecond

// RealCover reads the cover hall sensor from a GPIO line.
type RealCover struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealCover requests pin on chip as an input with pull-up, so an absent
// magnet reads as open.
func NewRealCover(chip string, pin int) (*RealCover, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, errors.Wrap(err, "open gpio chip")
	}

	line, err := c.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		c.Close()
		return nil, errors.Wrapf(err, "request cover pin %d", pin)
	}

	return &RealCover{chip: c, line: line}, nil
}

// Closed returns true when the sensor line is pulled low by the cover magnet.
func (r *RealCover) Closed() (bool, error) {
	raw, err := r.line.Value()
	if err != nil {
		return false, errors.Wrap(err, "read cover pin")
	}
	return raw == 0, nil
}

// Close releases GPIO resources.
func (r *RealCover) Close() error {
	var errs []error
	if r.line != nil {
		if err := r.line.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "close cover pin"))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "close chip"))
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealKey watches an active-low key line and calls onPress on each press.
// onPress runs on the gpiocdev event goroutine and must not block.
type RealKey struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealKey starts watching pin on chip.
func NewRealKey(chip string, pin int, onPress func()) (*RealKey, error) {
	c, err := gpiocdev.NewChip(chip)
	if err != nil {
		return nil, errors.Wrap(err, "open gpio chip")
	}

	handler := func(evt gpiocdev.LineEvent) {
		if evt.Type == gpiocdev.LineEventFallingEdge {
			onPress()
		}
	}
	line, err := c.RequestLine(pin,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithDebounce(keyDebounce),
		gpiocdev.WithEventHandler(handler))
	if err != nil {
		c.Close()
		return nil, errors.Wrapf(err, "request key pin %d", pin)
	}

	return &RealKey{chip: c, line: line}, nil
}

// Close stops event delivery and releases GPIO resources.
func (r *RealKey) Close() error {
	var errs []error
	if r.line != nil {
		if err := r.line.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "close key pin"))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "close chip"))
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("close errors: %v", errs)
	}
	return nil
}
