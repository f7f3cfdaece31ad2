package display

import (
	"bytes"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/display-powerd/internal/device"
)

func TestStandbyTwoClients(t *testing.T) {
	r := newRig(t).started(t)
	r.procs.Names[100] = "media-player"
	r.procs.Names[200] = "recorder"

	require.NoError(t, r.c.AcquireStandby(100))
	require.NoError(t, r.c.AcquireStandby(200))
	r.c.RequestOff()
	assert.True(t, r.bl.InStandby)
	assert.True(t, r.timers.Periodic(SlotState))

	// LCD-OFF keeps refreshing itself instead of going to SLEEP.
	r.timers.Advance(5 * time.Minute)
	assert.Equal(t, StateLCDOff, r.c.Current())
	assert.Zero(t, r.susp.Calls)

	require.NoError(t, r.c.ReleaseStandby(100))
	assert.True(t, r.c.StandbyActive())
	assert.Equal(t, []int{200}, r.c.StandbyHolders())

	require.NoError(t, r.c.ReleaseStandby(200))
	assert.False(t, r.c.StandbyActive())
	assert.Equal(t, StateLCDOff, r.c.Current())
	assert.Equal(t, TriggerStandbyRelease, r.last().Trigger)
	assert.False(t, r.bl.InStandby, "left physical standby")
	assert.False(t, r.timers.Periodic(SlotState))
	assert.Equal(t, OffReasonRequest, r.c.OffReason())

	r.timers.Advance(r.cfg.LCDOffTimeout)
	assert.Equal(t, StateSleep, r.c.Current())
	assert.Equal(t, 1, r.susp.Calls)
}

func TestStandbyEnteredFromLCDOffTimeout(t *testing.T) {
	r := newRig(t).started(t)
	r.c.RequestOff()
	assert.False(t, r.bl.InStandby)

	require.NoError(t, r.c.AcquireStandby(42))
	r.timers.Advance(r.cfg.LCDOffTimeout)
	assert.Equal(t, StateLCDOff, r.c.Current())
	assert.True(t, r.bl.InStandby)
	assert.Equal(t, StateLCDOff, r.c.Previous())
}

func TestStandbyRefreshDoesNotRepeatActuators(t *testing.T) {
	r := newRig(t).started(t)
	r.procs.Names[1] = "init"
	require.NoError(t, r.c.AcquireStandby(1))
	r.c.RequestOff()
	r.bl.Calls = nil

	r.timers.Advance(3 * r.cfg.LCDOffTimeout)
	assert.Empty(t, r.bl.Calls)
	assert.Len(t, r.transitions, 5, "start, off and three refreshes")
}

func TestStandbyAcquireIdempotent(t *testing.T) {
	r := newRig(t).started(t)
	require.NoError(t, r.c.AcquireStandby(100))
	require.NoError(t, r.c.AcquireStandby(100))

	assert.Equal(t, []int{100}, r.c.StandbyHolders())
	assert.Equal(t, 1, r.countLogs("standby already held by this pid"))
	assert.Len(t, r.standby, 1)
}

func TestStandbyReleaseWithoutLease(t *testing.T) {
	r := newRig(t).started(t)
	r.c.RequestOff()
	n := len(r.transitions)

	require.NoError(t, r.c.ReleaseStandby(100))
	assert.Len(t, r.transitions, n)
	assert.Equal(t, 1, r.countLogs("standby release without a lease"))
	assert.Empty(t, r.standby)
}

func TestStandbyInvalidPID(t *testing.T) {
	r := newRig(t).started(t)
	assert.ErrorIs(t, r.c.AcquireStandby(0), ErrInvalidPID)
	assert.ErrorIs(t, r.c.SetStandbyMode(-5, false), ErrInvalidPID)
	assert.False(t, r.c.StandbyActive())
}

func TestStandbyOverrideRoundTrip(t *testing.T) {
	r := newRig(t).started(t)
	assert.Equal(t, ActionLCDOff, r.c.table.action(StateLCDOff))
	assert.Equal(t, StateSleep, r.c.table.next(StateLCDOff))

	require.NoError(t, r.c.SetStandbyMode(10, true))
	require.NoError(t, r.c.SetStandbyMode(11, true))
	assert.Equal(t, ActionStandby, r.c.table.action(StateLCDOff))
	assert.Equal(t, StateLCDOff, r.c.table.next(StateLCDOff))

	require.NoError(t, r.c.SetStandbyMode(10, false))
	require.NoError(t, r.c.SetStandbyMode(11, false))
	assert.Equal(t, ActionLCDOff, r.c.table.action(StateLCDOff))
	assert.Equal(t, StateSleep, r.c.table.next(StateLCDOff))
	assert.False(t, r.c.table.overridden(StateLCDOff))
}

func TestStandbyReleaseOutsideLCDOff(t *testing.T) {
	r := newRig(t).started(t)
	require.NoError(t, r.c.AcquireStandby(5))
	require.NoError(t, r.c.ReleaseStandby(5))

	assert.Equal(t, StateNormal, r.c.Current())
	assert.Len(t, r.transitions, 1, "no nudge outside LCD-OFF")
}

func TestWakeFromStandby(t *testing.T) {
	r := newRig(t).started(t)
	require.NoError(t, r.c.AcquireStandby(5))
	r.c.RequestOff()
	require.True(t, r.bl.InStandby)
	require.True(t, r.devs.Devices[device.Touchscreen].Stopped)

	r.c.Dispatch(Input())
	assert.Equal(t, StateNormal, r.c.Current())
	assert.False(t, r.bl.InStandby)
	assert.False(t, r.devs.Devices[device.Touchscreen].Stopped)
	assert.True(t, r.c.StandbyActive(), "lease survives wake")

	// Going dark again re-enters standby.
	r.c.RequestOff()
	assert.True(t, r.bl.InStandby)
}

func TestPrintStandbyMode(t *testing.T) {
	r := newRig(t).started(t)
	r.procs.Names[100] = "media-player"

	var buf bytes.Buffer
	require.NoError(t, r.c.PrintStandbyMode(&buf))
	assert.Equal(t, "standby mode: inactive\n", buf.String())

	require.NoError(t, r.c.AcquireStandby(200))
	require.NoError(t, r.c.AcquireStandby(100))
	buf.Reset()
	require.NoError(t, r.c.PrintStandbyMode(&buf))
	assert.Equal(t, "standby mode: active (2 leases)\n  pid 100 (media-player)\n  pid 200 (unknown)\n", buf.String())

	require.NoError(t, r.c.ReleaseStandby(200))
	buf.Reset()
	require.NoError(t, r.c.PrintStandbyMode(&buf))
	assert.Equal(t, "standby mode: active (1 lease)\n  pid 100 (media-player)\n", buf.String())
}

func TestReapLeases(t *testing.T) {
	r := newRig(t).started(t)
	r.procs.Names[100] = "media-player"

	require.NoError(t, r.c.AcquireStandby(100))
	require.NoError(t, r.c.AcquireStandby(200))
	require.True(t, r.timers.Active(SlotReaper))

	require.True(t, r.timers.Fire(SlotReaper))
	assert.Equal(t, []int{100}, r.c.StandbyHolders())
	require.NotEmpty(t, r.standby)
	assert.True(t, r.standby[len(r.standby)-1].Reaped)

	r.procs.Kill(100)
	r.timers.Fire(SlotReaper)
	assert.False(t, r.c.StandbyActive())
	assert.False(t, r.timers.Active(SlotReaper))
}

func TestReapLeasesSkipsOnError(t *testing.T) {
	r := newRig(t).started(t)
	require.NoError(t, r.c.AcquireStandby(100))
	r.procs.Err = assert.AnError

	r.c.ReapLeases()
	assert.Equal(t, []int{100}, r.c.StandbyHolders())
	assert.Equal(t, 1, r.countLogs("lease liveness check"))
}

func TestReaperDisabled(t *testing.T) {
	r := newRig(t, func(c *Config, _ *Deps) { c.ReapInterval = 0 }).started(t)
	require.NoError(t, r.c.AcquireStandby(100))
	assert.False(t, r.timers.Active(SlotReaper))
}

// Random event sequences never break the override bookkeeping.
func TestStandbyBookkeepingUnderRandomEvents(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	r := newRig(t).started(t)

	for i := 0; i < 2000; i++ {
		switch rng.Intn(6) {
		case 0:
			r.c.Dispatch(Input())
		case 1:
			r.timers.Advance(time.Duration(rng.Intn(40)) * time.Second)
		case 2:
			r.c.RequestOff()
		case 3:
			_ = r.c.AcquireStandby(1 + rng.Intn(4))
		case 4:
			_ = r.c.ReleaseStandby(1 + rng.Intn(4))
		case 5:
			r.c.Dispatch(KeyInput(KeyPower))
		}

		active := r.c.StandbyActive()
		require.Equal(t, len(r.c.StandbyHolders()) > 0, active, "step %d", i)
		require.Equal(t, active, r.c.table.overridden(StateLCDOff), "step %d", i)
		require.True(t, r.c.Current().Valid())
		if r.c.Current() == StateLCDOff && r.bl.InStandby {
			require.True(t, active, "physical standby only under a lease, step %d", i)
		}
	}
}
