// Package smartstay loads the optional face/orientation detection capability.
//
// The capability ships as a Go plugin exporting
//
//	func Detect(done func(degree int)) error
//
// Detect must return immediately. done is invoked once, from any goroutine
// and possibly before Detect returns, with the detected orientation or one of
// the sentinel degrees below.
package smartstay

import (
	"plugin"

	"github.com/pkg/errors"
)

// Reported degrees. The four right angles mean a face was found in that
// orientation; everything else is a failure of some kind.
const (
	Degree0   = 0
	Degree90  = 90
	Degree180 = 180
	Degree270 = 270

	// DegreeOccupied means the camera was busy; the result is inconclusive.
	DegreeOccupied = -1

	// DegreeFailed means detection ran and found nothing.
	DegreeFailed = -2
)

// SymbolDetect is the exported symbol looked up in the plugin.
const SymbolDetect = "Detect"

// ErrUnavailable is returned when no detection capability can be loaded.
var ErrUnavailable = errors.New("smart stay unavailable")

// Callback receives a detection result.
type Callback func(degree int)

// Capability starts one detection attempt.
type Capability interface {
	Detect(done Callback) error
}

// Loader resolves the capability. It is called at most once per process.
type Loader interface {
	Load() (Capability, error)
}

// IsFaceDetected reports whether degree is one of the positive orientations.
func IsFaceDetected(degree int) bool {
	switch degree {
	case Degree0, Degree90, Degree180, Degree270:
		return true
	}
	return false
}

// PluginLoader opens a Go plugin from Path.
type PluginLoader struct {
	Path string
}

// Load opens the plugin and resolves SymbolDetect.
func (l PluginLoader) Load() (Capability, error) {
	if l.Path == "" {
		return nil, errors.Wrap(ErrUnavailable, "no plugin configured")
	}
	p, err := plugin.Open(l.Path)
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "open %s: %v", l.Path, err)
	}
	sym, err := p.Lookup(SymbolDetect)
	if err != nil {
		return nil, errors.Wrapf(ErrUnavailable, "lookup %s: %v", SymbolDetect, err)
	}
	switch fn := sym.(type) {
	case func(func(int)) error:
		return funcCapability(fn), nil
	case *func(func(int)) error:
		return funcCapability(*fn), nil
	}
	return nil, errors.Wrapf(ErrUnavailable, "%s has type %T", SymbolDetect, sym)
}

type funcCapability func(func(int)) error

func (f funcCapability) Detect(done Callback) error {
	return f(done)
}
