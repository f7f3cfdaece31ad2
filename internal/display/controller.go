package display

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kataras/go-events"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/display-powerd/internal/backlight"
	"github.com/sweeney/display-powerd/internal/device"
	"github.com/sweeney/display-powerd/internal/eventloop"
	"github.com/sweeney/display-powerd/internal/gpio"
	"github.com/sweeney/display-powerd/internal/prefs"
	"github.com/sweeney/display-powerd/internal/procinfo"
	"github.com/sweeney/display-powerd/internal/smartstay"
	"github.com/sweeney/display-powerd/internal/system"
	"github.com/sweeney/display-powerd/internal/timer"
)

// Timer slots.
const (
	SlotState     = "state"
	SlotSmartStay = "smartstay"
	SlotReaper    = "reaper"
)

// Emitted event names.
const (
	EventNameTransition events.EventName = "transition"
	EventNameDetection  events.EventName = "detection"
	EventNameStandby    events.EventName = "standby"
)

const prefsTimeout = 200 * time.Millisecond

// Deps are the collaborators of a Controller. Timers, Post, Backlight,
// Devices and Prefs are required; the rest may be nil.
type Deps struct {
	Timers    timer.Service
	Post      eventloop.Poster
	Backlight backlight.Actuator
	Devices   device.Registry
	Prefs     prefs.Store

	// Detector loads the smart stay capability on first use.
	Detector smartstay.Loader

	// Cover, if set, is sampled before detection results are honored.
	Cover gpio.CoverSensor

	// Suspender is called on SLEEP entry.
	Suspender system.Suspender

	// Procs resolves lease holder names and liveness.
	Procs procinfo.Table

	Log logrus.FieldLogger

	// Now stamps transitions. Defaults to time.Now.
	Now func() time.Time
}

type capState int

const (
	capUnknown capState = iota
	capAvailable
	capUnavailable
)

func (s capState) String() string {
	switch s {
	case capAvailable:
		return "available"
	case capUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// Controller is the display power state machine.
type Controller struct {
	cfg Config
	d   Deps
	log logrus.FieldLogger

	table     *table
	current   State
	previous  State
	offReason OffReason

	detect     smartstay.Capability
	detectLoad capState
	session    *session

	// activity is set by NoteActivity from any goroutine and consumed by the
	// next detection request.
	activity atomic.Bool

	leases        *leaseSet
	standbyActive bool

	// physStandby tracks whether the panel was put into physical standby.
	physStandby bool

	// autoSuspended records that a brightness key turned auto-brightness
	// off; it is turned back on when the display goes dark.
	autoSuspended bool

	emitter events.EventEmmiter
}

// New creates a Controller in the START state. Call Start to enter NORMAL.
func New(cfg Config, d Deps) *Controller {
	if d.Log == nil {
		l := logrus.New()
		l.Out = io.Discard
		d.Log = l
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Procs == nil {
		d.Procs = procinfo.System{}
	}
	if cfg.BrightnessStep <= 0 {
		cfg.BrightnessStep = DefaultConfig().BrightnessStep
	}
	return &Controller{
		cfg:     cfg,
		d:       d,
		log:     d.Log.WithField("component", "display"),
		table:   newTable(cfg),
		current: StateStart,
		leases:  newLeaseSet(),
		emitter: events.New(),
	}
}

// Start enters NORMAL from START.
func (c *Controller) Start() {
	if c.current != StateStart {
		return
	}
	c.transition(StateNormal, OffReasonNone, TriggerStart)
}

// Current returns the current state.
func (c *Controller) Current() State { return c.current }

// Previous returns the state before the last transition.
func (c *Controller) Previous() State { return c.previous }

// OffReason returns why the display last entered LCD-OFF.
func (c *Controller) OffReason() OffReason { return c.offReason }

// Snapshot returns the observable controller state.
func (c *Controller) Snapshot() Snapshot {
	return Snapshot{
		Current:       c.current,
		Previous:      c.previous,
		OffReason:     c.offReason,
		StandbyActive: c.standbyActive,
		Holders:       c.leases.pids(),
		Detection:     c.detectLoad.String(),
	}
}

// OnTransition registers fn for every committed transition.
func (c *Controller) OnTransition(fn func(Transition)) {
	c.emitter.On(EventNameTransition, func(args ...interface{}) {
		if t, ok := args[0].(Transition); ok {
			fn(t)
		}
	})
}

// OnDetection registers fn for every finished detection attempt.
func (c *Controller) OnDetection(fn func(DetectionOutcome)) {
	c.emitter.On(EventNameDetection, func(args ...interface{}) {
		if o, ok := args[0].(DetectionOutcome); ok {
			fn(o)
		}
	})
}

// OnStandby registers fn for every lease set change.
func (c *Controller) OnStandby(fn func(StandbyChange)) {
	c.emitter.On(EventNameStandby, func(args ...interface{}) {
		if s, ok := args[0].(StandbyChange); ok {
			fn(s)
		}
	})
}

// NoteActivity records ongoing user interaction. The next detection request
// is skipped and the flag cleared. Safe to call from any goroutine.
func (c *Controller) NoteActivity() {
	c.activity.Store(true)
}

// Dispatch feeds one event to the machine.
func (c *Controller) Dispatch(ev Event) {
	switch ev.Type {
	case EventInput:
		c.onInput(ev.Key)
	case EventTimeout:
		c.onTimeout()
	case EventDetection:
		c.onDetectionEvent(ev)
	default:
		c.log.WithField("type", int(ev.Type)).Warn("ignoring unknown event type")
	}
}

// RequestOff turns the display off immediately. It is a no-op when the
// display is already off or asleep.
func (c *Controller) RequestOff() {
	if c.current == StateLCDOff || c.current == StateSleep {
		c.log.WithField("state", c.current).Debug("off request ignored, display already off")
		return
	}
	c.transition(StateLCDOff, OffReasonRequest, TriggerRequest)
}

func (c *Controller) onInput(key Key) {
	c.activity.Store(false)
	if key == KeyPower && (c.current == StateNormal || c.current == StateDim) {
		c.RequestOff()
		return
	}
	c.transition(StateNormal, OffReasonNone, TriggerInput)

	switch key {
	case KeyBrightnessUp:
		c.stepBrightness(c.cfg.BrightnessStep)
	case KeyBrightnessDown:
		c.stepBrightness(-c.cfg.BrightnessStep)
	}
}

func (c *Controller) onTimeout() {
	if c.current == StateSleep {
		c.log.Debug("timeout ignored while asleep")
		return
	}
	next := c.table.next(c.current)
	if c.current == StateNormal && c.requestDetection(next) {
		return
	}
	reason := OffReasonNone
	if next == StateLCDOff {
		reason = OffReasonTimeout
		if c.current == StateLCDOff {
			// Standby self-refresh keeps the original reason.
			reason = c.offReason
		}
	}
	c.transition(next, reason, TriggerTimeout)
}

// transition commits the new state and then runs its entry action. Action
// failures are logged; the state stays committed.
func (c *Controller) transition(to State, reason OffReason, trigger Trigger) {
	from := c.current
	c.cancelDetection()
	c.d.Timers.CancelSlot(SlotState)

	c.previous, c.current = from, to
	if to == StateLCDOff {
		c.offReason = reason
	}

	action := c.table.action(to)
	c.log.WithFields(logrus.Fields{
		"from":    from,
		"to":      to,
		"trigger": string(trigger),
		"action":  action,
	}).Info("state transition")

	c.emitter.Emit(EventNameTransition, Transition{
		At:      c.d.Now(),
		From:    from,
		To:      to,
		Reason:  reason,
		Trigger: trigger,
	})

	if err := c.run(action, from); err != nil {
		c.log.WithError(err).WithField("action", action).Warn("entry action failed")
	}
}

func (c *Controller) run(a Action, from State) error {
	switch a {
	case ActionNormal:
		return c.actionNormal(from)
	case ActionDim:
		return c.actionDim()
	case ActionLCDOff:
		return c.actionLCDOff()
	case ActionStandby:
		return c.actionStandby()
	case ActionSleep:
		return c.actionSleep()
	}
	return nil
}

func (c *Controller) actionNormal(from State) error {
	var errs stepErrors
	if from == StateLCDOff || from == StateSleep || from == StateStart {
		if c.physStandby {
			errs.add("leave standby", c.d.Backlight.Standby(false))
			c.physStandby = false
		}
		errs.add("start devices", c.devices(func(o device.Ops) error { return o.Start(device.NormalMode) }))
	}
	if from != StateNormal {
		errs.add("update backlight", c.d.Backlight.Update())
		errs.add("key light on", c.d.Backlight.KeyLight(true))
	}
	c.armStateTimer()
	return errs.err()
}

func (c *Controller) actionDim() error {
	err := c.d.Backlight.Dim()
	c.armStateTimer()
	return err
}

func (c *Controller) actionLCDOff() error {
	var errs stepErrors
	if c.physStandby {
		errs.add("leave standby", c.d.Backlight.Standby(false))
		c.physStandby = false
	}
	errs.add("backlight off", c.d.Backlight.Off())
	errs.add("key light off", c.d.Backlight.KeyLight(false))
	errs.add("stop devices", c.devices(func(o device.Ops) error { return o.Stop(device.NormalMode) }))
	c.restoreAutoBrightness()
	c.armStateTimer()
	return errs.err()
}

func (c *Controller) actionStandby() error {
	var errs stepErrors
	if !c.physStandby {
		errs.add("enter standby", c.d.Backlight.Standby(true))
		c.physStandby = true
		errs.add("key light off", c.d.Backlight.KeyLight(false))
		errs.add("stop devices", c.devices(func(o device.Ops) error { return o.Stop(device.NormalMode) }))
		c.restoreAutoBrightness()
	}
	c.armStateTimer()
	return errs.err()
}

func (c *Controller) actionSleep() error {
	if c.d.Suspender == nil {
		return nil
	}
	return c.d.Suspender.Suspend()
}

// armStateTimer arms the current state's timeout. The standby action uses a
// periodic timer so it refreshes itself for as long as the override holds.
func (c *Controller) armStateTimer() {
	d := c.table.timeout(c.current)
	if d <= 0 {
		return
	}
	periodic := c.table.action(c.current) == ActionStandby
	c.d.Timers.Arm(SlotState, d, periodic, func() {
		c.Dispatch(Timeout())
	})
}

func (c *Controller) devices(fn func(device.Ops) error) error {
	var errs stepErrors
	for _, name := range []string{device.Touchscreen, device.Touchkey} {
		ops, err := c.d.Devices.Find(name)
		if err != nil {
			c.log.WithField("device", name).Debug("device not registered")
			continue
		}
		errs.add(name, fn(ops))
	}
	return errs.err()
}

func (c *Controller) stepBrightness(delta int) {
	ctx, cancel := context.WithTimeout(context.Background(), prefsTimeout)
	defer cancel()

	cur, err := c.d.Prefs.Brightness(ctx)
	if err != nil {
		c.log.WithError(err).Warn("read brightness")
		return
	}
	auto, err := c.d.Prefs.AutoBrightness(ctx)
	if err != nil {
		c.log.WithError(err).Warn("read auto brightness")
	}
	if auto {
		if err := c.d.Prefs.SetAutoBrightness(ctx, false); err != nil {
			c.log.WithError(err).Warn("suspend auto brightness")
		} else {
			c.autoSuspended = true
		}
	}
	level := prefs.ClampBrightness(cur + delta)
	if err := c.d.Prefs.SetBrightness(ctx, level); err != nil {
		c.log.WithError(err).Warn("store brightness")
		return
	}
	if err := c.d.Backlight.Update(); err != nil {
		c.log.WithError(err).Warn("apply brightness")
	}
	c.log.WithField("brightness", level).Debug("brightness changed")
}

func (c *Controller) restoreAutoBrightness() {
	if !c.autoSuspended {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), prefsTimeout)
	defer cancel()
	if err := c.d.Prefs.SetAutoBrightness(ctx, true); err != nil {
		c.log.WithError(err).Warn("restore auto brightness")
		return
	}
	c.autoSuspended = false
}

// stepErrors collects the failures of an entry action's independent steps.
type stepErrors []error

func (s *stepErrors) add(what string, err error) {
	if err != nil {
		*s = append(*s, errors.Wrap(err, what))
	}
}

func (s stepErrors) err() error {
	switch len(s) {
	case 0:
		return nil
	case 1:
		return s[0]
	}
	return s
}

func (s stepErrors) Error() string {
	msgs := make([]string, len(s))
	for i, err := range s {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("%d steps failed: %s", len(s), strings.Join(msgs, "; "))
}

func (s stepErrors) Unwrap() []error { return s }
