package display

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/display-powerd/internal/smartstay"
	"github.com/sweeney/display-powerd/internal/timer"
)

// session is one in-flight smart stay attempt. The plugin callback and the
// fallback timer race to complete it; claim lets exactly one win.
type session struct {
	id       string
	fallback State
	timer    timer.Handle
	done     bool
	blocked  bool
}

func (s *session) claim() bool {
	if s.done || s.blocked {
		return false
	}
	s.done = true
	return true
}

// DetectionInFlight reports whether a smart stay attempt is pending.
func (c *Controller) DetectionInFlight() bool {
	return c.session != nil
}

// requestDetection starts a smart stay attempt while leaving NORMAL. It
// returns false when the caller should proceed to fallback itself.
func (c *Controller) requestDetection(fallback State) bool {
	if c.current != StateNormal {
		return false
	}
	if c.activity.Swap(false) {
		c.log.Debug("user active, skipping smart stay")
		c.emitDetection(DetectionOutcome{Outcome: OutcomeBlocked, Degree: smartstay.DegreeFailed, Target: fallback})
		return false
	}
	capab := c.capability()
	if capab == nil {
		return false
	}
	if c.coverClosed() {
		c.log.Debug("cover closed, skipping smart stay")
		return false
	}

	s := &session{id: uuid.NewString(), fallback: fallback}
	s.timer = c.d.Timers.Arm(SlotSmartStay, c.cfg.DetectionFallback, false, func() {
		c.completeDetection(s, smartstay.DegreeFailed, s.fallback, true)
	})
	c.session = s

	err := capab.Detect(func(degree int) {
		c.d.Post.Post(func() {
			c.Dispatch(Event{Type: EventDetection, Degree: degree, Fallback: fallback, Session: s.id})
		})
	})
	if err != nil {
		c.log.WithError(err).Warn("smart stay request failed")
		c.d.Timers.Cancel(s.timer)
		c.session = nil
		return false
	}
	c.log.WithFields(logrus.Fields{"session": s.id, "fallback": fallback}).Debug("smart stay requested")
	return true
}

// capability loads the detector at most once. A failed load is logged once
// and detection stays disabled for the life of the controller.
func (c *Controller) capability() smartstay.Capability {
	switch c.detectLoad {
	case capAvailable:
		return c.detect
	case capUnavailable:
		return nil
	}
	if c.d.Detector == nil {
		c.detectLoad = capUnavailable
		c.log.Info("smart stay not configured")
		return nil
	}
	capab, err := c.d.Detector.Load()
	if err != nil {
		c.detectLoad = capUnavailable
		c.log.WithError(err).Warn("smart stay unavailable, continuing without detection")
		c.emitDetection(DetectionOutcome{Outcome: OutcomeUnavailable, Degree: smartstay.DegreeFailed})
		return nil
	}
	c.detect = capab
	c.detectLoad = capAvailable
	c.log.Info("smart stay loaded")
	return capab
}

func (c *Controller) onDetectionEvent(ev Event) {
	s := c.session
	if s == nil {
		c.log.WithField("degree", ev.Degree).Debug("detection result with nothing in flight")
		return
	}
	if ev.Session != "" && ev.Session != s.id {
		c.log.WithField("session", ev.Session).Debug("stale detection result")
		return
	}
	c.completeDetection(s, ev.Degree, ev.Fallback, false)
}

// completeDetection applies the result of s if nothing completed it first.
func (c *Controller) completeDetection(s *session, degree int, fallback State, timedOut bool) {
	if !s.claim() {
		c.log.WithField("session", s.id).Debug("detection already completed")
		return
	}
	c.d.Timers.Cancel(s.timer)
	if c.session == s {
		c.session = nil
	}

	out := DetectionOutcome{Session: s.id, Degree: degree}
	if c.coverClosed() {
		out.Outcome = OutcomeDiscarded
		out.Target = c.current
		c.log.Info("cover closed, discarding detection result")
		c.emitDetection(out)
		c.armStateTimer()
		return
	}

	switch {
	case !timedOut && smartstay.IsFaceDetected(degree):
		out.Outcome = OutcomeFace
		out.Target = StateNormal
		c.emitDetection(out)
		c.transition(StateNormal, OffReasonNone, TriggerDetection)
	case !timedOut && degree == smartstay.DegreeOccupied:
		out.Outcome = OutcomeOccupied
		out.Target = c.current
		c.emitDetection(out)
		c.armStateTimer()
	default:
		target := c.clampFallback(fallback)
		out.Outcome = OutcomeFailed
		if timedOut {
			out.Outcome = OutcomeTimeout
		}
		out.Target = target
		c.emitDetection(out)
		reason := OffReasonNone
		if target == StateLCDOff {
			reason = OffReasonDetection
		}
		c.transition(target, reason, TriggerDetection)
	}
}

func (c *Controller) clampFallback(s State) State {
	if s < StateStart || s > StateLCDOff {
		c.log.WithField("fallback", s).Warn("fallback state out of range, using NORMAL")
		return StateNormal
	}
	return s
}

// cancelDetection abandons the in-flight attempt; a late callback is dropped.
func (c *Controller) cancelDetection() {
	s := c.session
	if s == nil {
		return
	}
	s.blocked = true
	c.d.Timers.Cancel(s.timer)
	c.session = nil
	c.log.WithField("session", s.id).Debug("smart stay cancelled")
}

func (c *Controller) coverClosed() bool {
	if c.d.Cover == nil {
		return false
	}
	closed, err := c.d.Cover.Closed()
	if err != nil {
		c.log.WithError(err).Warn("read cover sensor")
		return false
	}
	return closed
}

func (c *Controller) emitDetection(o DetectionOutcome) {
	c.emitter.Emit(EventNameDetection, o)
}
