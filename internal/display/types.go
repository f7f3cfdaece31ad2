// Package display is the display power state controller: a table-driven state
// machine over NORMAL, DIM, LCD-OFF and SLEEP, with smart stay detection and
// the reference-counted standby override.
//
// The package performs no I/O of its own. Every side effect goes through an
// injected collaborator and time comes from a timer.Service, so the whole
// machine runs deterministically under fakes. A Controller is not safe for
// concurrent use: call it from the event loop only (NoteActivity excepted).
package display

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// State is a display power state.
type State int

const (
	StateStart State = iota
	StateNormal
	StateDim
	StateLCDOff
	StateSleep

	numStates = int(StateSleep) + 1
)

var stateNames = [numStates]string{"START", "NORMAL", "DIM", "LCDOFF", "SLEEP"}

func (s State) String() string {
	if !s.Valid() {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Valid reports whether s is one of the defined states.
func (s State) Valid() bool {
	return s >= StateStart && s <= StateSleep
}

// ParseState converts a state name (case-insensitive) to a State.
func ParseState(name string) (State, error) {
	for i, n := range stateNames {
		if strings.EqualFold(n, name) {
			return State(i), nil
		}
	}
	return 0, errors.Errorf("unknown state %q", name)
}

// EventType tags an Event.
type EventType int

const (
	EventInput EventType = iota
	EventTimeout
	EventDetection
)

func (t EventType) String() string {
	switch t {
	case EventInput:
		return "INPUT"
	case EventTimeout:
		return "TIMEOUT"
	case EventDetection:
		return "DETECTION_RESULT"
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Key identifies the source of an input event.
type Key int

const (
	KeyNone Key = iota
	KeyPower
	KeyBrightnessUp
	KeyBrightnessDown
)

var keyNames = []string{"none", "power", "brightness-up", "brightness-down"}

func (k Key) String() string {
	if k < KeyNone || int(k) >= len(keyNames) {
		return fmt.Sprintf("Key(%d)", int(k))
	}
	return keyNames[k]
}

// ParseKey converts a key name to a Key. The empty name is KeyNone.
func ParseKey(name string) (Key, error) {
	if name == "" {
		return KeyNone, nil
	}
	for i, n := range keyNames {
		if strings.EqualFold(n, name) {
			return Key(i), nil
		}
	}
	return KeyNone, errors.Errorf("unknown key %q", name)
}

// Event is the only way to drive the machine.
type Event struct {
	Type EventType

	// Key is set for EventInput.
	Key Key

	// Degree, Fallback and Session are set for EventDetection. An empty
	// Session applies the result to whatever detection is in flight.
	Degree   int
	Fallback State
	Session  string
}

// Input returns a generic activity event.
func Input() Event { return Event{Type: EventInput} }

// KeyInput returns an input event for key.
func KeyInput(key Key) Event { return Event{Type: EventInput, Key: key} }

// Timeout returns a timeout event for the current state.
func Timeout() Event { return Event{Type: EventTimeout} }

// DetectionResult returns a detection result event.
func DetectionResult(degree int, fallback State) Event {
	return Event{Type: EventDetection, Degree: degree, Fallback: fallback}
}

// OffReason records why the display last entered LCD-OFF.
type OffReason string

const (
	OffReasonNone      OffReason = ""
	OffReasonTimeout   OffReason = "timeout"
	OffReasonRequest   OffReason = "request"
	OffReasonDetection OffReason = "detection-timeout"
)

// Trigger names what caused a transition.
type Trigger string

const (
	TriggerStart          Trigger = "start"
	TriggerInput          Trigger = "input"
	TriggerTimeout        Trigger = "timeout"
	TriggerDetection      Trigger = "detection"
	TriggerRequest        Trigger = "request"
	TriggerStandbyRelease Trigger = "standby-release"
)

// Transition describes one committed state change, including self-transitions.
type Transition struct {
	At      time.Time
	From    State
	To      State
	Reason  OffReason
	Trigger Trigger
}

// Detection outcomes.
const (
	OutcomeFace        = "face"
	OutcomeOccupied    = "occupied"
	OutcomeFailed      = "failed"
	OutcomeTimeout     = "timeout"
	OutcomeDiscarded   = "discarded"
	OutcomeBlocked     = "blocked"
	OutcomeUnavailable = "unavailable"
)

// DetectionOutcome describes how a smart stay attempt ended.
type DetectionOutcome struct {
	Session string
	Outcome string
	Degree  int
	Target  State
}

// StandbyChange describes a lease operation that changed the lease set.
type StandbyChange struct {
	PID      int
	Acquired bool
	Reaped   bool
	Active   bool
	Holders  int
}

// Snapshot is a point-in-time view of controller state.
type Snapshot struct {
	Current       State
	Previous      State
	OffReason     OffReason
	StandbyActive bool
	Holders       []int
	Detection     string
}

// Config holds the timing and policy knobs of the machine.
type Config struct {
	NormalTimeout time.Duration
	DimTimeout    time.Duration
	LCDOffTimeout time.Duration
	DimEnabled    bool

	// DetectionFallback bounds how long a smart stay attempt may run.
	DetectionFallback time.Duration

	// ReapInterval is the lease liveness check period; zero disables it.
	ReapInterval time.Duration

	// BrightnessStep is the percent change per brightness key press.
	BrightnessStep int
}

// DefaultConfig returns the stock timings.
func DefaultConfig() Config {
	return Config{
		NormalTimeout:     30 * time.Second,
		DimTimeout:        5 * time.Second,
		LCDOffTimeout:     10 * time.Second,
		DimEnabled:        true,
		DetectionFallback: 3 * time.Second,
		ReapInterval:      30 * time.Second,
		BrightnessStep:    10,
	}
}

// ErrInvalidPID is returned for lease requests with a non-positive pid.
var ErrInvalidPID = errors.New("invalid pid")
