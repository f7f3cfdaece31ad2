// Package status provides a thread-safe status tracker for the display-powerd daemon.
// It is read by the HTTP handlers and by MQTT system events.
package status

import (
	"strings"
	"sync"
	"time"

	metrics "github.com/rcrowley/go-metrics"

	"github.com/sweeney/display-powerd/internal/display"
)

// Counter names.
const (
	CounterTransitionPrefix = "transitions."
	CounterDetectionPrefix  = "detection."
	CounterStandbyAcquire   = "standby.acquire"
	CounterStandbyRelease   = "standby.release"
	CounterStandbyReaped    = "standby.reaped"
)

// Config contains daemon configuration for display.
type Config struct {
	NormalTimeout time.Duration
	DimTimeout    time.Duration
	LCDOffTimeout time.Duration
	DimEnabled    bool
	Heartbeat     time.Duration
	Broker        string
	HTTPAddr      string
	Plugin        string
}

// Holder is a standby lease holder.
type Holder struct {
	PID  int
	Name string
}

// Counts are the counter values at snapshot time.
type Counts struct {
	// Transitions is keyed by target state name.
	Transitions map[string]int64

	// Detection is keyed by outcome.
	Detection map[string]int64

	StandbyAcquire int64
	StandbyRelease int64
	StandbyReaped  int64
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	State          string
	Previous       string
	OffReason      string
	StandbyActive  bool
	Holders        []Holder
	Detection      string
	LastTransition time.Time
	Counts         Counts
	StartTime      time.Time
	Now            time.Time
	MQTTConnected  bool
	Config         Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex. Counters live in a
// go-metrics registry.
type Tracker struct {
	mu       sync.RWMutex
	snap     Snapshot
	registry metrics.Registry
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			State:     display.StateStart.String(),
			Previous:  display.StateStart.String(),
			Detection: "unknown",
			StartTime: startTime,
			Config:    cfg,
		},
		registry: metrics.NewRegistry(),
	}
}

// Registry exposes the counter registry.
func (t *Tracker) Registry() metrics.Registry {
	return t.registry
}

// Update copies the controller's state. holders carries resolved names.
// Called from the event loop after every controller change.
func (t *Tracker) Update(s display.Snapshot, holders []Holder) {
	h := make([]Holder, len(holders))
	copy(h, holders)

	t.mu.Lock()
	t.snap.State = s.Current.String()
	t.snap.Previous = s.Previous.String()
	t.snap.OffReason = string(s.OffReason)
	t.snap.StandbyActive = s.StandbyActive
	t.snap.Holders = h
	t.snap.Detection = s.Detection
	t.mu.Unlock()
}

// RecordTransition counts tr and notes its time.
func (t *Tracker) RecordTransition(tr display.Transition) {
	t.inc(CounterTransitionPrefix + tr.To.String())
	t.mu.Lock()
	t.snap.LastTransition = tr.At
	t.mu.Unlock()
}

// RecordDetection counts a detection outcome.
func (t *Tracker) RecordDetection(o display.DetectionOutcome) {
	t.inc(CounterDetectionPrefix + o.Outcome)
}

// RecordStandby counts a lease change.
func (t *Tracker) RecordStandby(c display.StandbyChange) {
	switch {
	case c.Acquired:
		t.inc(CounterStandbyAcquire)
	case c.Reaped:
		t.inc(CounterStandbyReaped)
	default:
		t.inc(CounterStandbyRelease)
	}
}

func (t *Tracker) inc(name string) {
	metrics.GetOrRegisterCounter(name, t.registry).Inc(1)
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Holders = append([]Holder(nil), t.snap.Holders...)
	t.mu.RUnlock()
	s.Counts = t.counts()
	s.Now = time.Now()
	return s
}

func (t *Tracker) counts() Counts {
	c := Counts{
		Transitions: make(map[string]int64),
		Detection:   make(map[string]int64),
	}
	t.registry.Each(func(name string, m interface{}) {
		counter, ok := m.(metrics.Counter)
		if !ok {
			return
		}
		n := counter.Count()
		switch {
		case strings.HasPrefix(name, CounterTransitionPrefix):
			c.Transitions[strings.TrimPrefix(name, CounterTransitionPrefix)] = n
		case strings.HasPrefix(name, CounterDetectionPrefix):
			c.Detection[strings.TrimPrefix(name, CounterDetectionPrefix)] = n
		case name == CounterStandbyAcquire:
			c.StandbyAcquire = n
		case name == CounterStandbyRelease:
			c.StandbyRelease = n
		case name == CounterStandbyReaped:
			c.StandbyReaped = n
		}
	})
	return c
}
