package lease

import (
	"context"

	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
)

// Client calls a running daemon over the bus.
type Client struct {
	obj dbus.BusObject
}

// NewClient creates a Client on conn.
func NewClient(conn *dbus.Conn) *Client {
	return &Client{obj: conn.Object(BusName, ObjectPath)}
}

// SetStandbyMode acquires (enable) or releases a lease for pid.
func (c *Client) SetStandbyMode(ctx context.Context, pid int, enable bool) error {
	call := c.obj.CallWithContext(ctx, Interface+".SetStandbyMode", 0, int32(pid), enable)
	return remoteErr(call.Err)
}

// PrintStandbyMode fetches the lease dump.
func (c *Client) PrintStandbyMode(ctx context.Context) (string, error) {
	var out string
	if err := c.obj.CallWithContext(ctx, Interface+".PrintStandbyMode", 0).Store(&out); err != nil {
		return "", remoteErr(err)
	}
	return out, nil
}

// TurnOff asks the daemon to turn the display off.
func (c *Client) TurnOff(ctx context.Context) error {
	return remoteErr(c.obj.CallWithContext(ctx, Interface+".TurnOff", 0).Err)
}

// NotifyActivity reports user input to the daemon. An empty key is plain
// activity.
func (c *Client) NotifyActivity(ctx context.Context, key string) error {
	return remoteErr(c.obj.CallWithContext(ctx, Interface+".NotifyActivity", 0, key).Err)
}

// State returns the daemon's current state name.
func (c *Client) State(ctx context.Context) (string, error) {
	var out string
	if err := c.obj.CallWithContext(ctx, Interface+".State", 0).Store(&out); err != nil {
		return "", remoteErr(err)
	}
	return out, nil
}

// remoteErr maps well-known bus error names back to sentinels.
func remoteErr(err error) error {
	if err == nil {
		return nil
	}
	name := ""
	var de dbus.Error
	var pde *dbus.Error
	switch {
	case errors.As(err, &de):
		name = de.Name
	case errors.As(err, &pde):
		name = pde.Name
	}
	if name == ErrNameInvalidPID {
		return errors.WithStack(ErrInvalidPID)
	}
	return errors.Wrap(err, "display-powerd")
}
