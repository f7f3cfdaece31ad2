// Package device is the registry of peripherals the display controller can
// stop and start, such as the touchscreen and touch keys.
package device

import (
	"os"
	"sort"

	"github.com/pkg/errors"
)

// Well-known peripheral names.
const (
	Touchscreen = "touchscreen"
	Touchkey    = "touchkey"
)

// ErrNotFound is returned by Find for an unregistered name.
var ErrNotFound = errors.New("device not found")

// Mode qualifies a stop or start request.
type Mode int

const (
	// NormalMode is a routine power-saving stop or start.
	NormalMode Mode = iota
	// ForceMode overrides any device-side hold.
	ForceMode
)

func (m Mode) String() string {
	if m == ForceMode {
		return "force"
	}
	return "normal"
}

// Ops controls a single peripheral.
type Ops interface {
	Stop(mode Mode) error
	Start(mode Mode) error
}

// Registry looks up peripherals by name.
type Registry interface {
	Find(name string) (Ops, error)
}

// SysfsRegistry controls input devices through their "inhibited" attribute.
type SysfsRegistry struct {
	attrs map[string]string
}

// NewSysfsRegistry creates a registry from a name to attribute-path map, e.g.
// "touchscreen" -> "/sys/class/input/input3/inhibited".
func NewSysfsRegistry(attrs map[string]string) *SysfsRegistry {
	m := make(map[string]string, len(attrs))
	for k, v := range attrs {
		m[k] = v
	}
	return &SysfsRegistry{attrs: m}
}

// Find returns the peripheral registered under name.
func (r *SysfsRegistry) Find(name string) (Ops, error) {
	path, ok := r.attrs[name]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	return sysfsDevice{name: name, path: path}, nil
}

// Names lists registered peripherals in sorted order.
func (r *SysfsRegistry) Names() []string {
	names := make([]string, 0, len(r.attrs))
	for k := range r.attrs {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

type sysfsDevice struct {
	name string
	path string
}

func (d sysfsDevice) Stop(Mode) error {
	return d.write("1")
}

func (d sysfsDevice) Start(Mode) error {
	return d.write("0")
}

func (d sysfsDevice) write(v string) error {
	if err := os.WriteFile(d.path, []byte(v), 0o644); err != nil {
		return errors.Wrapf(err, "%s: write %s", d.name, d.path)
	}
	return nil
}
