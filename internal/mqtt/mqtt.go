// Package mqtt publishes display transitions and daemon lifecycle events.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/display-powerd/internal/display"
)

// Topics.
const (
	Topic       = "display/power/events"
	TopicSystem = "display/power/system"
)

// EventTransition is the event name carried by transition payloads.
const EventTransition = "TRANSITION"

// Publisher sends events to the broker. Errors are reported to the caller,
// which logs them and carries on.
type Publisher interface {
	Publish(t display.Transition) error
	PublishSystem(event SystemEvent) error
	Close() error
}

// ConnectionStatus reports whether the broker connection is up.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent is a lifecycle message: STARTUP, SHUTDOWN, HEARTBEAT or OFFLINE.
type SystemEvent struct {
	Timestamp time.Time
	Event     string
	Reason    string // shutdown signal, LWT cause

	// RawPayload, when set, is sent as is. Used for full status snapshots.
	RawPayload []byte
	Retained   bool
}

// Payload is the body published on Topic.
type Payload struct {
	Display TransitionBody `json:"display"`
}

// TransitionBody describes one committed transition.
type TransitionBody struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	From      string `json:"from"`
	To        string `json:"to"`
	Reason    string `json:"reason,omitempty"`
	Trigger   string `json:"trigger"`
}

// FormatPayload encodes t. The off reason is only reported for transitions
// into LCD-OFF.
func FormatPayload(t display.Transition) ([]byte, error) {
	body := TransitionBody{
		Timestamp: t.At.UTC().Format(time.RFC3339),
		Event:     EventTransition,
		From:      t.From.String(),
		To:        t.To.String(),
		Trigger:   string(t.Trigger),
	}
	if t.To == display.StateLCDOff {
		body.Reason = string(t.Reason)
	}
	return json.Marshal(Payload{Display: body})
}

// SystemPayload is the minimal body for system events without a snapshot,
// such as the will message.
type SystemPayload struct {
	System SystemBody `json:"system"`
}

// SystemBody names the event and when it happened.
type SystemBody struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload encodes event, or returns event.RawPayload if set.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{System: SystemBody{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     event.Event,
		Reason:    event.Reason,
	}})
}
