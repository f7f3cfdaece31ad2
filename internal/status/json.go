package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event          string      `json:"event,omitempty"`
	Reason         string      `json:"reason,omitempty"`
	State          string      `json:"state"`
	Previous       string      `json:"previous"`
	OffReason      string      `json:"off_reason,omitempty"`
	Detection      string      `json:"smart_stay"`
	Standby        StandbyJSON `json:"standby"`
	LastTransition string      `json:"last_transition,omitempty"`
	UptimeSeconds  int64       `json:"uptime_seconds"`
	StartTime      string      `json:"start_time"`
	Timestamp      string      `json:"timestamp"`
	MQTT           MQTTStatus  `json:"mqtt"`
	Counts         CountsJSON  `json:"counts"`
	Config         ConfigJSON  `json:"config"`
}

// StandbyJSON reports the standby override.
type StandbyJSON struct {
	Active  bool         `json:"active"`
	Holders []HolderJSON `json:"holders"`
}

// HolderJSON is one lease holder.
type HolderJSON struct {
	PID  int    `json:"pid"`
	Name string `json:"name"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of the counters.
type CountsJSON struct {
	Transitions    map[string]int64 `json:"transitions"`
	Detection      map[string]int64 `json:"detection"`
	StandbyAcquire int64            `json:"standby_acquire"`
	StandbyRelease int64            `json:"standby_release"`
	StandbyReaped  int64            `json:"standby_reaped"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	NormalMs    int64  `json:"normal_ms"`
	DimMs       int64  `json:"dim_ms"`
	LCDOffMs    int64  `json:"lcdoff_ms"`
	DimEnabled  bool   `json:"dim_enabled"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
	Broker      string `json:"broker"`
	HTTPAddr    string `json:"http_addr"`
	Plugin      string `json:"smart_stay_plugin,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	holders := make([]HolderJSON, 0, len(snap.Holders))
	for _, h := range snap.Holders {
		holders = append(holders, HolderJSON{PID: h.PID, Name: h.Name})
	}

	inner := StatusInner{
		State:         snap.State,
		Previous:      snap.Previous,
		OffReason:     snap.OffReason,
		Detection:     snap.Detection,
		Standby:       StandbyJSON{Active: snap.StandbyActive, Holders: holders},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Transitions:    nonNil(snap.Counts.Transitions),
			Detection:      nonNil(snap.Counts.Detection),
			StandbyAcquire: snap.Counts.StandbyAcquire,
			StandbyRelease: snap.Counts.StandbyRelease,
			StandbyReaped:  snap.Counts.StandbyReaped,
		},
		Config: ConfigJSON{
			NormalMs:    snap.Config.NormalTimeout.Milliseconds(),
			DimMs:       snap.Config.DimTimeout.Milliseconds(),
			LCDOffMs:    snap.Config.LCDOffTimeout.Milliseconds(),
			DimEnabled:  snap.Config.DimEnabled,
			HeartbeatMs: snap.Config.Heartbeat.Milliseconds(),
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			Plugin:      snap.Config.Plugin,
		},
	}
	if !snap.LastTransition.IsZero() {
		inner.LastTransition = snap.LastTransition.UTC().Format(time.RFC3339)
	}
	return inner
}

func nonNil(m map[string]int64) map[string]int64 {
	if m == nil {
		return map[string]int64{}
	}
	return m
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
