package device

import (
	"fmt"

	"github.com/pkg/errors"
)

// FakeDevice records stop/start calls.
type FakeDevice struct {
	// Calls lists "stop:normal", "start:normal" and so on, in order.
	Calls []string

	// Err, if set, is returned by Stop and Start after recording.
	Err error

	// Stopped tracks the last call.
	Stopped bool
}

// Stop records the call.
func (d *FakeDevice) Stop(mode Mode) error {
	d.Calls = append(d.Calls, fmt.Sprintf("stop:%s", mode))
	d.Stopped = true
	return d.Err
}

// Start records the call.
func (d *FakeDevice) Start(mode Mode) error {
	d.Calls = append(d.Calls, fmt.Sprintf("start:%s", mode))
	d.Stopped = false
	return d.Err
}

// FakeRegistry is an in-memory Registry for tests.
type FakeRegistry struct {
	Devices map[string]*FakeDevice
}

// NewFakeRegistry creates a registry holding a FakeDevice per name.
func NewFakeRegistry(names ...string) *FakeRegistry {
	r := &FakeRegistry{Devices: make(map[string]*FakeDevice)}
	for _, n := range names {
		r.Devices[n] = &FakeDevice{}
	}
	return r
}

// Find returns the fake registered under name.
func (r *FakeRegistry) Find(name string) (Ops, error) {
	d, ok := r.Devices[name]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	return d, nil
}
