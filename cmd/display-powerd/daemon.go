package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/godbus/dbus/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/sweeney/display-powerd/internal/backlight"
	"github.com/sweeney/display-powerd/internal/config"
	"github.com/sweeney/display-powerd/internal/device"
	"github.com/sweeney/display-powerd/internal/display"
	"github.com/sweeney/display-powerd/internal/eventloop"
	"github.com/sweeney/display-powerd/internal/gpio"
	"github.com/sweeney/display-powerd/internal/lease"
	"github.com/sweeney/display-powerd/internal/mqtt"
	"github.com/sweeney/display-powerd/internal/prefs"
	"github.com/sweeney/display-powerd/internal/procinfo"
	"github.com/sweeney/display-powerd/internal/smartstay"
	"github.com/sweeney/display-powerd/internal/status"
	"github.com/sweeney/display-powerd/internal/system"
	"github.com/sweeney/display-powerd/internal/timer"
	"github.com/sweeney/display-powerd/internal/web"
)

const (
	loopDepth      = 256
	outboxDepth    = 128
	busRetries     = 5
	slotHeartbeat  = "heartbeat"
	shutdownWindow = 3 * time.Second
)

func runDaemon(ctx context.Context, cfg config.Config, log *logrus.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}

	conn, err := connectSystemBus(ctx, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	store, err := prefs.Open(ctx, cfg.PrefsPath)
	if err != nil {
		return errors.Wrap(err, "open preferences")
	}
	defer store.Close()

	loop := eventloop.New(loopDepth)
	outbox := eventloop.New(outboxDepth)
	timers := timer.NewLoop(loop)
	procs := procinfo.System{}

	deps := display.Deps{
		Timers:    timers,
		Post:      loop,
		Backlight: backlight.NewSysfs(cfg.BacklightDir, cfg.KeyLED, cfg.DimPercent, store, log),
		Devices:   device.NewSysfsRegistry(cfg.Devices),
		Prefs:     store,
		Suspender: system.NewLogind(conn),
		Procs:     procs,
		Log:       log,
	}
	if cfg.Plugin != "" {
		deps.Detector = smartstay.PluginLoader{Path: cfg.Plugin}
	}
	if cfg.CoverPin >= 0 {
		cover, err := gpio.NewRealCover(cfg.GPIOChip, cfg.CoverPin)
		if err != nil {
			log.WithError(err).Warn("cover sensor unavailable")
		} else {
			defer cover.Close()
			deps.Cover = cover
		}
	}
	ctl := display.New(cfg.Display(), deps)

	keyLines := []struct {
		key display.Key
		pin int
	}{
		{display.KeyPower, cfg.PowerPin},
		{display.KeyBrightnessUp, cfg.BrightnessUpPin},
		{display.KeyBrightnessDown, cfg.BrightnessDownPin},
	}
	for _, kl := range keyLines {
		if kl.pin < 0 {
			continue
		}
		key, err := gpio.NewRealKey(cfg.GPIOChip, kl.pin, inputHandler(ctl, loop, kl.key))
		if err != nil {
			log.WithError(err).WithField("key", kl.key).Warn("key unavailable")
			continue
		}
		defer key.Close()
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		NormalTimeout: cfg.NormalTimeout,
		DimTimeout:    cfg.DimTimeout,
		LCDOffTimeout: cfg.LCDOffTimeout,
		DimEnabled:    cfg.DimEnabled,
		Heartbeat:     cfg.Heartbeat,
		Broker:        cfg.Broker,
		HTTPAddr:      cfg.HTTPAddr,
		Plugin:        cfg.Plugin,
	})

	obs := &observer{ctl: ctl, tracker: tracker, out: outbox, procs: procs, log: log}
	if cfg.Broker != "" {
		will, _ := mqtt.FormatSystemPayload(mqtt.SystemEvent{
			Timestamp: time.Now(),
			Event:     eventOffline,
			Reason:    "MQTT_DISCONNECT",
		})
		pub, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:             cfg.Broker,
			Will:               will,
			OnConnectionChange: tracker.SetMQTTConnected,
			Log:                log,
		})
		if err != nil {
			log.WithError(err).Warn("mqtt disabled")
		} else {
			defer pub.Close()
			obs.pub = pub
		}
	}
	obs.attach()

	svc := lease.NewService(ctl, loop, log)
	if err := lease.Register(conn, svc); err != nil {
		return err
	}

	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	go loop.Run(loopCtx)
	go outbox.Run(loopCtx)

	if err := loop.Call(ctx, func() {
		ctl.Start()
		obs.refresh()
		if cfg.Heartbeat > 0 {
			timers.Arm(slotHeartbeat, cfg.Heartbeat, true, obs.heartbeat)
		}
	}); err != nil {
		return errors.Wrap(err, "start controller")
	}
	obs.system(eventStartup, "", true)

	var srv *web.Server
	if cfg.HTTPAddr != "" {
		srv = web.New(cfg.HTTPAddr, tracker, loopDumper{loop: loop, ctl: ctl}, log)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("http server")
			}
		}()
		log.WithField("addr", cfg.HTTPAddr).Info("http status server listening")
	}

	log.WithFields(logrus.Fields{
		"normal":    cfg.NormalTimeout,
		"dim":       cfg.DimTimeout,
		"lcdoff":    cfg.LCDOffTimeout,
		"broker":    cfg.Broker,
		"heartbeat": cfg.Heartbeat,
	}).Info("started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	reason := "CONTEXT"
	select {
	case s := <-sigCh:
		reason = signalName(s)
		log.WithField("signal", s.String()).Info("shutting down")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownWindow)
	defer cancel()

	if err := loop.Call(shutdownCtx, obs.refresh); err != nil {
		log.WithError(err).Warn("final status refresh")
	}
	obs.system(eventShutdown, reason, true)
	// Let the outbox flush before the publisher closes.
	if err := outbox.Call(shutdownCtx, func() {}); err != nil {
		log.WithError(err).Warn("flush outbox")
	}
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("http shutdown")
		}
	}
	return nil
}

// inputHandler returns the callback for an input source outside the loop. The
// activity flag is set at once so a detection already queued sees it.
func inputHandler(ctl *display.Controller, loop eventloop.Poster, key display.Key) func() {
	return func() {
		ctl.NoteActivity()
		loop.Post(func() { ctl.Dispatch(display.KeyInput(key)) })
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// connectSystemBus retries the system bus with exponential backoff; the bus
// may come up after us at boot.
func connectSystemBus(ctx context.Context, log logrus.FieldLogger) (*dbus.Conn, error) {
	var conn *dbus.Conn
	op := func() error {
		c, err := dbus.ConnectSystemBus()
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), busRetries), ctx)
	notify := func(err error, next time.Duration) {
		log.WithError(err).WithField("retry_in", next).Warn("system bus not available")
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		log.WithError(err).Error("giving up on system bus")
		return nil, errors.Wrap(err, "connect system bus")
	}
	return conn, nil
}
