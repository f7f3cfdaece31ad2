// Package timer provides slot-keyed countdown timers whose expiries are
// delivered on the event loop.
package timer

import (
	"time"

	"github.com/sweeney/display-powerd/internal/eventloop"
)

// Handle identifies one arming of a timer. Zero is never a valid handle.
type Handle uint64

// Service arms and cancels timers. At most one timer is outstanding per slot:
// arming a slot cancels whatever was armed there before.
//
// Implementations are not safe for concurrent use; call them from the loop.
type Service interface {
	// Arm schedules fire after d. A periodic timer keeps firing every d
	// until cancelled or replaced.
	Arm(slot string, d time.Duration, periodic bool, fire func()) Handle

	// Cancel stops the timer with the given handle. Unknown or already
	// finished handles are ignored.
	Cancel(h Handle)

	// CancelSlot stops whatever is armed in slot.
	CancelSlot(slot string)

	// Active reports whether a timer is outstanding in slot.
	Active(slot string) bool
}

type entry struct {
	handle    Handle
	slot      string
	d         time.Duration
	periodic  bool
	fire      func()
	t         *time.Timer
	cancelled bool
}

// Loop is the real Service. Expiries are posted to the event loop and
// dropped there if the timer was cancelled while the post was queued.
type Loop struct {
	post  eventloop.Poster
	next  Handle
	slots map[string]*entry
}

// NewLoop creates a timer service that delivers expiries through post.
func NewLoop(post eventloop.Poster) *Loop {
	return &Loop{
		post:  post,
		slots: make(map[string]*entry),
	}
}

// Arm schedules fire on the loop after d.
func (l *Loop) Arm(slot string, d time.Duration, periodic bool, fire func()) Handle {
	l.CancelSlot(slot)

	l.next++
	e := &entry{
		handle:   l.next,
		slot:     slot,
		d:        d,
		periodic: periodic,
		fire:     fire,
	}
	l.slots[slot] = e
	l.start(e)
	return e.handle
}

func (l *Loop) start(e *entry) {
	e.t = time.AfterFunc(e.d, func() {
		l.post.Post(func() { l.expire(e) })
	})
}

func (l *Loop) expire(e *entry) {
	if e.cancelled || l.slots[e.slot] != e {
		return
	}
	if !e.periodic {
		delete(l.slots, e.slot)
	}
	e.fire()
	// fire may have re-armed or cancelled the slot.
	if e.periodic && !e.cancelled && l.slots[e.slot] == e {
		l.start(e)
	}
}

// Cancel stops the timer identified by h.
func (l *Loop) Cancel(h Handle) {
	for slot, e := range l.slots {
		if e.handle == h {
			l.stop(slot, e)
			return
		}
	}
}

// CancelSlot stops whatever is armed in slot.
func (l *Loop) CancelSlot(slot string) {
	if e, ok := l.slots[slot]; ok {
		l.stop(slot, e)
	}
}

func (l *Loop) stop(slot string, e *entry) {
	e.cancelled = true
	if e.t != nil {
		e.t.Stop()
	}
	delete(l.slots, slot)
}

// Active reports whether slot has an outstanding timer.
func (l *Loop) Active(slot string) bool {
	_, ok := l.slots[slot]
	return ok
}
