package main

import (
	"bytes"
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/sweeney/display-powerd/internal/display"
	"github.com/sweeney/display-powerd/internal/eventloop"
	"github.com/sweeney/display-powerd/internal/mqtt"
	"github.com/sweeney/display-powerd/internal/procinfo"
	"github.com/sweeney/display-powerd/internal/status"
)

// System event names.
const (
	eventStartup   = "STARTUP"
	eventShutdown  = "SHUTDOWN"
	eventHeartbeat = "HEARTBEAT"
	eventOffline   = "OFFLINE"
)

// observer mirrors controller events into the status tracker and onto MQTT.
// Its controller callbacks run on the event loop; publishing is handed to
// out so a slow broker never stalls the loop.
type observer struct {
	ctl     *display.Controller
	tracker *status.Tracker
	pub     mqtt.Publisher // nil when MQTT is disabled
	out     eventloop.Poster
	procs   procinfo.Table
	log     logrus.FieldLogger
}

func (o *observer) attach() {
	o.ctl.OnTransition(func(t display.Transition) {
		o.tracker.RecordTransition(t)
		o.refresh()
		if o.pub == nil {
			return
		}
		o.out.Post(func() {
			if err := o.pub.Publish(t); err != nil {
				o.log.WithError(err).Warn("publish transition")
			}
		})
	})
	o.ctl.OnDetection(func(d display.DetectionOutcome) {
		o.tracker.RecordDetection(d)
		o.refresh()
	})
	o.ctl.OnStandby(func(c display.StandbyChange) {
		o.tracker.RecordStandby(c)
		o.refresh()
	})
}

// refresh copies the controller snapshot into the tracker. Loop only.
func (o *observer) refresh() {
	snap := o.ctl.Snapshot()
	holders := make([]status.Holder, 0, len(snap.Holders))
	for _, pid := range snap.Holders {
		holders = append(holders, status.Holder{PID: pid, Name: o.procs.Name(pid)})
	}
	o.tracker.Update(snap, holders)
}

// system queues a lifecycle event carrying the current status snapshot.
func (o *observer) system(event, reason string, retained bool) {
	if o.pub == nil {
		return
	}
	if cs, ok := o.pub.(mqtt.ConnectionStatus); ok {
		o.tracker.SetMQTTConnected(cs.IsConnected())
	}
	snap := o.tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	o.out.Post(func() {
		if err := o.pub.PublishSystem(ev); err != nil {
			o.log.WithError(err).WithField("event", event).Warn("publish system event")
			return
		}
		o.log.WithField("event", event).Debug("published system event")
	})
}

// heartbeat refreshes the tracker and publishes a HEARTBEAT. Loop only.
func (o *observer) heartbeat() {
	o.refresh()
	snap := o.tracker.Snapshot()
	o.log.WithFields(logrus.Fields{
		"state":  snap.State,
		"uptime": snap.Uptime().String(),
	}).Info("heartbeat")
	o.system(eventHeartbeat, "", false)
}

// loopDumper renders the standby dump on the event loop for the web server.
type loopDumper struct {
	loop interface {
		Call(ctx context.Context, fn func()) error
	}
	ctl *display.Controller
}

// DumpStandby writes the dump to w. w is only written after the loop call
// returns, because a timed out call can still run afterwards.
func (d loopDumper) DumpStandby(ctx context.Context, w io.Writer) error {
	var buf bytes.Buffer
	var err error
	if cerr := d.loop.Call(ctx, func() { err = d.ctl.PrintStandbyMode(&buf) }); cerr != nil {
		return cerr
	}
	if err != nil {
		return err
	}
	_, err = buf.WriteTo(w)
	return err
}
