package display

import (
	"fmt"
	"io"

	"github.com/emirpasic/gods/sets/treeset"
	"github.com/emirpasic/gods/utils"
	"github.com/sirupsen/logrus"
)

// leaseSet holds standby lease holders ordered by pid.
type leaseSet struct {
	set *treeset.Set
}

func newLeaseSet() *leaseSet {
	return &leaseSet{set: treeset.NewWith(utils.IntComparator)}
}

func (l *leaseSet) add(pid int) { l.set.Add(pid) }
func (l *leaseSet) remove(pid int) { l.set.Remove(pid) }
func (l *leaseSet) has(pid int) bool { return l.set.Contains(pid) }
func (l *leaseSet) size() int { return l.set.Size() }

func (l *leaseSet) pids() []int {
	vals := l.set.Values()
	out := make([]int, 0, len(vals))
	for _, v := range vals {
		out = append(out, v.(int))
	}
	return out
}

// SetStandbyMode acquires (enable) or releases a standby lease for pid.
func (c *Controller) SetStandbyMode(pid int, enable bool) error {
	if enable {
		return c.AcquireStandby(pid)
	}
	return c.ReleaseStandby(pid)
}

// AcquireStandby adds a lease for pid. The first lease overrides LCD-OFF so
// that it cycles through the standby action instead of proceeding to SLEEP.
// A repeated acquire by the same pid is a logged no-op.
func (c *Controller) AcquireStandby(pid int) error {
	if pid <= 0 {
		return ErrInvalidPID
	}
	log := c.log.WithField("pid", pid)
	if c.leases.has(pid) {
		log.Warn("standby already held by this pid")
		return nil
	}
	c.leases.add(pid)
	if c.leases.size() == 1 {
		c.applyStandby()
	}
	log.WithField("holders", c.leases.size()).Info("standby lease acquired")
	c.emitStandby(StandbyChange{PID: pid, Acquired: true})
	return nil
}

// ReleaseStandby drops the lease of pid. Releasing the last lease removes the
// override; if the display is in LCD-OFF it re-enters ordinary LCD-OFF right
// away. Releasing a pid that holds no lease is a logged no-op.
func (c *Controller) ReleaseStandby(pid int) error {
	if pid <= 0 {
		return ErrInvalidPID
	}
	c.release(pid, false)
	return nil
}

func (c *Controller) release(pid int, reaped bool) {
	log := c.log.WithField("pid", pid)
	if !c.leases.has(pid) {
		log.Warn("standby release without a lease")
		return
	}
	c.leases.remove(pid)
	log.WithFields(logrus.Fields{"holders": c.leases.size(), "reaped": reaped}).Info("standby lease released")
	if c.leases.size() == 0 {
		c.teardownStandby()
	}
	c.emitStandby(StandbyChange{PID: pid, Reaped: reaped})
}

func (c *Controller) applyStandby() {
	c.table.push(StateLCDOff, ActionStandby, StateLCDOff)
	c.standbyActive = true
	if c.cfg.ReapInterval > 0 {
		c.d.Timers.Arm(SlotReaper, c.cfg.ReapInterval, true, c.ReapLeases)
	}
	c.log.Info("standby override applied")
}

func (c *Controller) teardownStandby() {
	c.table.pop(StateLCDOff)
	c.standbyActive = false
	c.d.Timers.CancelSlot(SlotReaper)
	c.log.Info("standby override removed")

	if c.current == StateLCDOff {
		c.transition(StateLCDOff, c.offReason, TriggerStandbyRelease)
		return
	}
	if c.physStandby {
		if err := c.d.Backlight.Standby(false); err != nil {
			c.log.WithError(err).Warn("leave standby")
		}
		c.physStandby = false
	}
}

// StandbyActive reports whether the standby override is in force.
func (c *Controller) StandbyActive() bool {
	return c.standbyActive
}

// StandbyHolders returns the lease holders in ascending pid order.
func (c *Controller) StandbyHolders() []int {
	return c.leases.pids()
}

// ReapLeases releases leases whose holder process has exited.
func (c *Controller) ReapLeases() {
	for _, pid := range c.leases.pids() {
		alive, err := c.d.Procs.Alive(pid)
		if err != nil {
			c.log.WithError(err).WithField("pid", pid).Warn("lease liveness check")
			continue
		}
		if !alive {
			c.log.WithField("pid", pid).Info("reaping lease of exited process")
			c.release(pid, true)
		}
	}
}

// PrintStandbyMode writes the standby status and each holder with its
// process name.
func (c *Controller) PrintStandbyMode(w io.Writer) error {
	if !c.standbyActive {
		_, err := fmt.Fprintln(w, "standby mode: inactive")
		return err
	}
	pids := c.leases.pids()
	noun := "leases"
	if len(pids) == 1 {
		noun = "lease"
	}
	if _, err := fmt.Fprintf(w, "standby mode: active (%d %s)\n", len(pids), noun); err != nil {
		return err
	}
	for _, pid := range pids {
		if _, err := fmt.Fprintf(w, "  pid %d (%s)\n", pid, c.d.Procs.Name(pid)); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) emitStandby(s StandbyChange) {
	s.Active = c.standbyActive
	s.Holders = c.leases.size()
	c.emitter.Emit(EventNameStandby, s)
}
