// Package lease exposes the standby lease API, the diagnostic dump and the
// explicit off request on the D-Bus system bus.
package lease

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/display-powerd/internal/display"
)

// Bus coordinates.
const (
	BusName    = "org.sweeney.DisplayPower"
	Interface  = "org.sweeney.DisplayPower"
	ObjectPath = dbus.ObjectPath("/org/sweeney/DisplayPower")

	ErrNameInvalidPID = Interface + ".Error.InvalidPID"
	ErrNameInvalidKey = Interface + ".Error.InvalidKey"
)

// ErrInvalidPID is returned for lease requests with a non-positive pid.
var ErrInvalidPID = display.ErrInvalidPID

// Controller is the part of the display controller the service exposes.
type Controller interface {
	SetStandbyMode(pid int, enable bool) error
	PrintStandbyMode(w io.Writer) error
	RequestOff()
	Current() display.State
	NoteActivity()
	Dispatch(ev display.Event)
}

// Caller runs fn on the controller's event loop and waits for it.
type Caller interface {
	Call(ctx context.Context, fn func()) error
}

// callTimeout bounds how long a bus method waits for the event loop.
const callTimeout = 2 * time.Second

// Service is the exported D-Bus object. Every method hops onto the event
// loop, so lease changes are complete before the reply is sent.
type Service struct {
	ctl  Controller
	loop Caller
	log  logrus.FieldLogger
}

// NewService creates a Service.
func NewService(ctl Controller, loop Caller, log logrus.FieldLogger) *Service {
	return &Service{
		ctl:  ctl,
		loop: loop,
		log:  log.WithField("component", "lease"),
	}
}

func (s *Service) call(fn func()) *dbus.Error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	if err := s.loop.Call(ctx, fn); err != nil {
		s.log.WithError(err).Warn("event loop unavailable")
		return dbus.MakeFailedError(err)
	}
	return nil
}

// SetStandbyMode acquires or releases a standby lease for pid.
func (s *Service) SetStandbyMode(pid int32, enable bool) *dbus.Error {
	s.log.WithFields(logrus.Fields{"pid": pid, "enable": enable}).Debug("SetStandbyMode")
	var err error
	if derr := s.call(func() { err = s.ctl.SetStandbyMode(int(pid), enable) }); derr != nil {
		return derr
	}
	if errors.Is(err, display.ErrInvalidPID) {
		return dbus.NewError(ErrNameInvalidPID, []interface{}{err.Error()})
	}
	if err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

// PrintStandbyMode returns the lease dump.
func (s *Service) PrintStandbyMode() (string, *dbus.Error) {
	var buf bytes.Buffer
	var err error
	if derr := s.call(func() { err = s.ctl.PrintStandbyMode(&buf) }); derr != nil {
		return "", derr
	}
	if err != nil {
		return "", dbus.MakeFailedError(err)
	}
	return buf.String(), nil
}

// TurnOff requests an immediate LCD-OFF.
func (s *Service) TurnOff() *dbus.Error {
	s.log.Debug("TurnOff")
	return s.call(s.ctl.RequestOff)
}

// NotifyActivity reports user input seen by another process, such as the
// compositor's touch handling. key is a display key name; empty means plain
// activity.
func (s *Service) NotifyActivity(key string) *dbus.Error {
	k, err := display.ParseKey(key)
	if err != nil {
		return dbus.NewError(ErrNameInvalidKey, []interface{}{err.Error()})
	}
	s.ctl.NoteActivity()
	return s.call(func() { s.ctl.Dispatch(display.KeyInput(k)) })
}

// State returns the current state name.
func (s *Service) State() (string, *dbus.Error) {
	var st display.State
	if derr := s.call(func() { st = s.ctl.Current() }); derr != nil {
		return "", derr
	}
	return st.String(), nil
}

// Register exports s on conn and claims BusName.
func Register(conn *dbus.Conn, s *Service) error {
	if err := conn.Export(s, ObjectPath, Interface); err != nil {
		return errors.Wrap(err, "export service")
	}
	if err := conn.Export(introspect.NewIntrospectable(Node(s)), ObjectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return errors.Wrap(err, "export introspection")
	}

	reply, err := conn.RequestName(BusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return errors.Wrapf(err, "request name %s", BusName)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return errors.Errorf("bus name %s already taken", BusName)
	}
	s.log.WithField("name", BusName).Info("lease service registered")
	return nil
}

// Node describes the exported object for introspection.
func Node(s *Service) *introspect.Node {
	return &introspect.Node{
		Name: string(ObjectPath),
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{Name: Interface, Methods: introspect.Methods(s)},
		},
	}
}
