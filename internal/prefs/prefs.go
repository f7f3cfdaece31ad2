// Package prefs persists the user's display preferences: screen brightness
// and the auto-brightness switch.
package prefs

import (
	"context"

	"github.com/pkg/errors"
)

// Keys and defaults.
const (
	KeyBrightness     = "brightness"
	KeyAutoBrightness = "auto_brightness"

	DefaultBrightness = 60
	MinBrightness     = 1
	MaxBrightness     = 100
)

// ErrNotFound is returned when a key has never been written.
var ErrNotFound = errors.New("preference not found")

// Store reads and writes display preferences. Missing keys read as defaults.
type Store interface {
	Brightness(ctx context.Context) (int, error)
	SetBrightness(ctx context.Context, pct int) error
	AutoBrightness(ctx context.Context) (bool, error)
	SetAutoBrightness(ctx context.Context, on bool) error
}

// ClampBrightness limits pct to the valid brightness range.
func ClampBrightness(pct int) int {
	if pct < MinBrightness {
		return MinBrightness
	}
	if pct > MaxBrightness {
		return MaxBrightness
	}
	return pct
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
