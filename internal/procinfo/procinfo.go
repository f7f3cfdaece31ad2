// Package procinfo resolves process names and liveness for lease holders.
package procinfo

import (
	"github.com/mitchellh/go-ps"
	"github.com/pkg/errors"
)

// UnknownName is reported for processes that cannot be resolved.
const UnknownName = "unknown"

// Table answers questions about running processes.
type Table interface {
	// Name returns the executable name of pid, or UnknownName.
	Name(pid int) string

	// Alive reports whether pid is running.
	Alive(pid int) (bool, error)
}

// System reads the host process table.
type System struct{}

// Name returns the executable name of pid.
func (System) Name(pid int) string {
	p, err := ps.FindProcess(pid)
	if err != nil || p == nil {
		return UnknownName
	}
	return p.Executable()
}

// Alive reports whether pid is in the process table.
func (System) Alive(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	p, err := ps.FindProcess(pid)
	if err != nil {
		return false, errors.Wrapf(err, "find process %d", pid)
	}
	return p != nil, nil
}
