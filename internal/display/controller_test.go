package display

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/display-powerd/internal/backlight"
	"github.com/sweeney/display-powerd/internal/device"
	"github.com/sweeney/display-powerd/internal/gpio"
	"github.com/sweeney/display-powerd/internal/prefs"
	"github.com/sweeney/display-powerd/internal/procinfo"
	"github.com/sweeney/display-powerd/internal/smartstay"
	"github.com/sweeney/display-powerd/internal/system"
	"github.com/sweeney/display-powerd/internal/timer"
)

var t0 = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

// queue is a manual event loop: posted work runs only on drain.
type queue struct {
	fns []func()
}

func (q *queue) Post(fn func()) { q.fns = append(q.fns, fn) }

func (q *queue) drain() {
	for len(q.fns) > 0 {
		fn := q.fns[0]
		q.fns = q.fns[1:]
		fn()
	}
}

type rig struct {
	c      *Controller
	cfg    Config
	timers *timer.Fake
	loop   *queue
	bl     *backlight.Fake
	devs   *device.FakeRegistry
	prefs  *prefs.Fake
	susp   *system.FakeSuspender
	procs  *procinfo.Fake
	hook   *test.Hook

	transitions []Transition
	outcomes    []DetectionOutcome
	standby     []StandbyChange
}

type option func(*Config, *Deps)

func withDetector(l smartstay.Loader) option {
	return func(_ *Config, d *Deps) { d.Detector = l }
}

func withCover(c gpio.CoverSensor) option {
	return func(_ *Config, d *Deps) { d.Cover = c }
}

func withoutDim() option {
	return func(c *Config, _ *Deps) { c.DimEnabled = false }
}

func newRig(t *testing.T, opts ...option) *rig {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	r := &rig{
		cfg:    DefaultConfig(),
		timers: timer.NewFake(t0),
		loop:   &queue{},
		bl:     backlight.NewFake(),
		devs:   device.NewFakeRegistry(device.Touchscreen, device.Touchkey),
		prefs:  prefs.NewFake(),
		susp:   &system.FakeSuspender{},
		procs:  procinfo.NewFake(nil),
		hook:   hook,
	}
	deps := Deps{
		Timers:    r.timers,
		Post:      r.loop,
		Backlight: r.bl,
		Devices:   r.devs,
		Prefs:     r.prefs,
		Suspender: r.susp,
		Procs:     r.procs,
		Log:       logger,
		Now:       r.timers.Now,
	}
	for _, o := range opts {
		o(&r.cfg, &deps)
	}
	r.c = New(r.cfg, deps)
	r.c.OnTransition(func(tr Transition) { r.transitions = append(r.transitions, tr) })
	r.c.OnDetection(func(o DetectionOutcome) { r.outcomes = append(r.outcomes, o) })
	r.c.OnStandby(func(s StandbyChange) { r.standby = append(r.standby, s) })
	return r
}

func (r *rig) started(t *testing.T) *rig {
	t.Helper()
	r.c.Start()
	require.Equal(t, StateNormal, r.c.Current())
	return r
}

// into drives a started, detector-less rig into s.
func (r *rig) into(t *testing.T, s State) {
	t.Helper()
	switch s {
	case StateNormal:
	case StateDim:
		r.timers.Advance(r.cfg.NormalTimeout)
	case StateLCDOff:
		r.c.RequestOff()
	case StateSleep:
		r.c.RequestOff()
		r.timers.Advance(r.cfg.LCDOffTimeout)
	}
	require.Equal(t, s, r.c.Current())
}

func (r *rig) countLogs(msg string) int {
	n := 0
	for _, e := range r.hook.AllEntries() {
		if e.Message == msg {
			n++
		}
	}
	return n
}

func (r *rig) last() Transition {
	return r.transitions[len(r.transitions)-1]
}

func TestStartEntersNormal(t *testing.T) {
	r := newRig(t).started(t)

	assert.Equal(t, StateStart, r.c.Previous())
	assert.Equal(t, []string{"update", "key:on"}, r.bl.Calls)
	assert.Equal(t, []string{"start:normal"}, r.devs.Devices[device.Touchscreen].Calls)
	assert.Equal(t, []string{"state/30s"}, r.timers.Armed)
	require.Len(t, r.transitions, 1)
	assert.Equal(t, TriggerStart, r.transitions[0].Trigger)
	assert.Equal(t, t0, r.transitions[0].At)

	// A second Start is ignored.
	r.c.Start()
	assert.Len(t, r.transitions, 1)
}

func TestTimeoutChain(t *testing.T) {
	r := newRig(t).started(t)

	r.timers.Advance(30 * time.Second)
	assert.Equal(t, StateDim, r.c.Current())
	assert.Equal(t, "dim", r.bl.Last())

	r.timers.Advance(5 * time.Second)
	assert.Equal(t, StateLCDOff, r.c.Current())
	assert.Equal(t, OffReasonTimeout, r.c.OffReason())
	assert.True(t, r.devs.Devices[device.Touchkey].Stopped)

	r.timers.Advance(10 * time.Second)
	assert.Equal(t, StateSleep, r.c.Current())
	assert.Equal(t, 1, r.susp.Calls)

	// SLEEP has no timeout.
	r.timers.Advance(time.Hour)
	assert.Equal(t, StateSleep, r.c.Current())
	assert.False(t, r.timers.Active(SlotState))
	assert.Equal(t, 1, r.susp.Calls)
}

func TestDimDisabled(t *testing.T) {
	r := newRig(t, withoutDim()).started(t)
	r.timers.Advance(30 * time.Second)
	assert.Equal(t, StateLCDOff, r.c.Current())
	assert.Equal(t, OffReasonTimeout, r.c.OffReason())
}

func TestNoTimeoutBeforeExpiry(t *testing.T) {
	r := newRig(t).started(t)
	r.timers.Advance(29 * time.Second)
	assert.Equal(t, StateNormal, r.c.Current())
}

func TestTimeoutInStartMovesToNormal(t *testing.T) {
	r := newRig(t)
	r.c.Dispatch(Timeout())
	assert.Equal(t, StateNormal, r.c.Current())
}

func TestInputAlwaysYieldsNormal(t *testing.T) {
	for _, s := range []State{StateNormal, StateDim, StateLCDOff, StateSleep} {
		t.Run(s.String(), func(t *testing.T) {
			r := newRig(t).started(t)
			r.into(t, s)

			r.c.Dispatch(Input())
			assert.Equal(t, StateNormal, r.c.Current())
			assert.Equal(t, s, r.c.Previous())
			assert.Equal(t, TriggerInput, r.last().Trigger)
			assert.True(t, r.timers.Active(SlotState))
		})
	}
}

func TestWakeFromSleepRestartsDevices(t *testing.T) {
	r := newRig(t).started(t)
	r.into(t, StateSleep)
	r.bl.Reset()

	r.c.Dispatch(Input())
	assert.Equal(t, []string{"update", "key:on"}, r.bl.Calls)
	assert.False(t, r.devs.Devices[device.Touchscreen].Stopped)
	assert.False(t, r.devs.Devices[device.Touchkey].Stopped)
}

func TestInputInNormalRearmsTimer(t *testing.T) {
	r := newRig(t).started(t)
	r.timers.Advance(20 * time.Second)
	r.c.Dispatch(Input())
	r.timers.Advance(20 * time.Second)
	assert.Equal(t, StateNormal, r.c.Current())
	r.timers.Advance(10 * time.Second)
	assert.Equal(t, StateDim, r.c.Current())
}

func TestRequestOff(t *testing.T) {
	r := newRig(t).started(t)

	r.c.RequestOff()
	assert.Equal(t, StateLCDOff, r.c.Current())
	assert.Equal(t, OffReasonRequest, r.c.OffReason())
	assert.Equal(t, TriggerRequest, r.last().Trigger)
	assert.Equal(t, OffReasonRequest, r.last().Reason)

	n := len(r.transitions)
	r.c.RequestOff()
	assert.Len(t, r.transitions, n, "already off")
}

func TestPowerKey(t *testing.T) {
	r := newRig(t).started(t)

	r.c.Dispatch(KeyInput(KeyPower))
	assert.Equal(t, StateLCDOff, r.c.Current())

	r.c.Dispatch(KeyInput(KeyPower))
	assert.Equal(t, StateNormal, r.c.Current())

	r.into(t, StateDim)
	r.c.Dispatch(KeyInput(KeyPower))
	assert.Equal(t, StateLCDOff, r.c.Current())
}

func TestBrightnessKeys(t *testing.T) {
	r := newRig(t).started(t)
	r.prefs.Values[prefs.KeyBrightness] = 50
	r.prefs.Values[prefs.KeyAutoBrightness] = 1

	r.c.Dispatch(KeyInput(KeyBrightnessUp))
	assert.Equal(t, StateNormal, r.c.Current())
	assert.Equal(t, []string{"auto_brightness=0", "brightness=60"}, r.prefs.Writes)
	assert.Equal(t, "update", r.bl.Last())

	r.c.Dispatch(KeyInput(KeyBrightnessDown))
	assert.Equal(t, 50, r.prefs.Values[prefs.KeyBrightness])

	// Going dark turns auto-brightness back on, once.
	r.c.RequestOff()
	assert.Equal(t, 1, r.prefs.Values[prefs.KeyAutoBrightness])
	writes := len(r.prefs.Writes)
	r.c.Dispatch(Input())
	r.c.RequestOff()
	assert.Len(t, r.prefs.Writes, writes)
}

func TestBrightnessClamped(t *testing.T) {
	r := newRig(t).started(t)
	r.prefs.Values[prefs.KeyBrightness] = 95

	r.c.Dispatch(KeyInput(KeyBrightnessUp))
	assert.Equal(t, prefs.MaxBrightness, r.prefs.Values[prefs.KeyBrightness])

	r.prefs.Values[prefs.KeyBrightness] = 5
	r.c.Dispatch(KeyInput(KeyBrightnessDown))
	assert.Equal(t, prefs.MinBrightness, r.prefs.Values[prefs.KeyBrightness])
}

func TestActionFailureStillCommits(t *testing.T) {
	r := newRig(t).started(t)
	r.bl.Err = errors.New("sysfs write failed")
	r.devs.Devices[device.Touchscreen].Err = errors.New("busy")

	r.c.RequestOff()
	assert.Equal(t, StateLCDOff, r.c.Current())
	assert.True(t, r.timers.Active(SlotState), "timer armed despite failures")
	assert.Equal(t, 1, r.countLogs("entry action failed"))
}

func TestMissingDeviceSkipped(t *testing.T) {
	r := newRig(t)
	delete(r.devs.Devices, device.Touchkey)
	r.c.Start()
	r.c.RequestOff()

	assert.Equal(t, StateLCDOff, r.c.Current())
	assert.True(t, r.devs.Devices[device.Touchscreen].Stopped)
	assert.Zero(t, r.countLogs("entry action failed"))
}

func TestSnapshot(t *testing.T) {
	r := newRig(t).started(t)
	require.NoError(t, r.c.AcquireStandby(7))
	r.c.RequestOff()

	s := r.c.Snapshot()
	assert.Equal(t, StateLCDOff, s.Current)
	assert.Equal(t, StateNormal, s.Previous)
	assert.Equal(t, OffReasonRequest, s.OffReason)
	assert.True(t, s.StandbyActive)
	assert.Equal(t, []int{7}, s.Holders)
	assert.Equal(t, "unknown", s.Detection)
}

func TestUnknownEventIgnored(t *testing.T) {
	r := newRig(t).started(t)
	r.c.Dispatch(Event{Type: EventType(42)})
	assert.Equal(t, StateNormal, r.c.Current())
	assert.Equal(t, 1, r.countLogs("ignoring unknown event type"))
}

func TestSameEventsSameTransitions(t *testing.T) {
	run := func() []Transition {
		r := newRig(t).started(t)
		r.timers.Advance(30 * time.Second)
		r.c.Dispatch(Input())
		r.c.Dispatch(KeyInput(KeyPower))
		_ = r.c.AcquireStandby(3)
		r.timers.Advance(25 * time.Second)
		_ = r.c.ReleaseStandby(3)
		r.timers.Advance(10 * time.Second)
		return r.transitions
	}
	assert.Equal(t, run(), run())
}

func TestStepErrorsKeepCauses(t *testing.T) {
	busy := errors.New("busy")
	gone := errors.New("gone")

	var none stepErrors
	none.add("ignored", nil)
	assert.NoError(t, none.err())

	var one stepErrors
	one.add("stop devices", busy)
	assert.EqualError(t, one.err(), "stop devices: busy")
	assert.True(t, errors.Is(one.err(), busy))

	var two stepErrors
	two.add("backlight off", gone)
	two.add("stop devices", busy)
	err := two.err()
	assert.EqualError(t, err, "2 steps failed: backlight off: gone; stop devices: busy")
	assert.True(t, errors.Is(err, busy))
	assert.True(t, errors.Is(err, gone))
}
