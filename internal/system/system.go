// Package system asks the host to suspend when the display controller
// reaches its sleep state.
package system

import (
	"context"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
)

const (
	login1Name   = "org.freedesktop.login1"
	login1Path   = "/org/freedesktop/login1"
	login1Method = "org.freedesktop.login1.Manager.Suspend"

	suspendTimeout = 5 * time.Second
)

// Suspender puts the system to sleep.
type Suspender interface {
	Suspend() error
}

// Logind suspends through systemd-logind on the system bus.
type Logind struct {
	obj dbus.BusObject
}

// NewLogind creates a suspender using conn.
func NewLogind(conn *dbus.Conn) *Logind {
	return &Logind{obj: conn.Object(login1Name, dbus.ObjectPath(login1Path))}
}

// Suspend calls Manager.Suspend without interactive authorization.
func (l *Logind) Suspend() error {
	ctx, cancel := context.WithTimeout(context.Background(), suspendTimeout)
	defer cancel()

	call := l.obj.CallWithContext(ctx, login1Method, 0, false)
	if call.Err != nil {
		return errors.Wrap(call.Err, "logind suspend")
	}
	return nil
}
