package timer

import (
	"sort"
	"time"
)

type fakeEntry struct {
	handle   Handle
	slot     string
	d        time.Duration
	periodic bool
	fire     func()
	deadline time.Time
}

// Fake is a virtual-clock Service for tests. Timers fire synchronously from
// Advance or Fire, never on their own.
type Fake struct {
	now   time.Time
	next  Handle
	slots map[string]*fakeEntry

	// Armed records every Arm call in order as "slot/duration".
	Armed []string
}

// NewFake creates a Fake whose clock starts at start.
func NewFake(start time.Time) *Fake {
	return &Fake{
		now:   start,
		slots: make(map[string]*fakeEntry),
	}
}

// Now returns the virtual time.
func (f *Fake) Now() time.Time {
	return f.now
}

// Arm schedules fire at Now()+d.
func (f *Fake) Arm(slot string, d time.Duration, periodic bool, fire func()) Handle {
	f.CancelSlot(slot)
	f.next++
	f.slots[slot] = &fakeEntry{
		handle:   f.next,
		slot:     slot,
		d:        d,
		periodic: periodic,
		fire:     fire,
		deadline: f.now.Add(d),
	}
	f.Armed = append(f.Armed, slot+"/"+d.String())
	return f.next
}

// Cancel stops the timer identified by h.
func (f *Fake) Cancel(h Handle) {
	for slot, e := range f.slots {
		if e.handle == h {
			delete(f.slots, slot)
			return
		}
	}
}

// CancelSlot stops whatever is armed in slot.
func (f *Fake) CancelSlot(slot string) {
	delete(f.slots, slot)
}

// Active reports whether slot has an outstanding timer.
func (f *Fake) Active(slot string) bool {
	_, ok := f.slots[slot]
	return ok
}

// Deadline returns when the timer in slot is due.
func (f *Fake) Deadline(slot string) (time.Time, bool) {
	e, ok := f.slots[slot]
	if !ok {
		return time.Time{}, false
	}
	return e.deadline, true
}

// Period returns the duration the timer in slot was armed with.
func (f *Fake) Period(slot string) (time.Duration, bool) {
	e, ok := f.slots[slot]
	if !ok {
		return 0, false
	}
	return e.d, true
}

// Periodic reports whether the timer in slot repeats.
func (f *Fake) Periodic(slot string) bool {
	e, ok := f.slots[slot]
	return ok && e.periodic
}

// Advance moves the clock forward by d, firing due timers in deadline order.
// Timers armed by a firing callback fire too if they fall due within d.
func (f *Fake) Advance(d time.Duration) {
	target := f.now.Add(d)
	for {
		e := f.earliest()
		if e == nil || e.deadline.After(target) {
			break
		}
		f.now = e.deadline
		f.expire(e)
	}
	f.now = target
}

// Fire expires the timer in slot immediately, regardless of its deadline.
// It reports whether a timer was armed there.
func (f *Fake) Fire(slot string) bool {
	e, ok := f.slots[slot]
	if !ok {
		return false
	}
	f.expire(e)
	return true
}

func (f *Fake) expire(e *fakeEntry) {
	if e.periodic && e.d > 0 {
		e.deadline = f.now.Add(e.d)
	} else {
		delete(f.slots, e.slot)
	}
	e.fire()
}

func (f *Fake) earliest() *fakeEntry {
	if len(f.slots) == 0 {
		return nil
	}
	all := make([]*fakeEntry, 0, len(f.slots))
	for _, e := range f.slots {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].deadline.Equal(all[j].deadline) {
			return all[i].deadline.Before(all[j].deadline)
		}
		return all[i].handle < all[j].handle
	})
	return all[0]
}
