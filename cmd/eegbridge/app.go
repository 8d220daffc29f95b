package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/Siddamnn/SpeakMind/bridge"
	"github.com/Siddamnn/SpeakMind/component"
	"github.com/Siddamnn/SpeakMind/errors"
	"github.com/Siddamnn/SpeakMind/health"
	"github.com/Siddamnn/SpeakMind/input/serial"
	"github.com/Siddamnn/SpeakMind/metric"
	"github.com/Siddamnn/SpeakMind/natsclient"
	"github.com/Siddamnn/SpeakMind/output/natsmirror"
	"github.com/Siddamnn/SpeakMind/output/recorder"
	"github.com/Siddamnn/SpeakMind/output/websocket"
	"github.com/Siddamnn/SpeakMind/session"
)

// app is the wired process: every component plus the status server.
type app struct {
	cfg    *Config
	logger *slog.Logger

	group   *component.Group
	monitor *health.Monitor
	status  *metric.Server // nil when EEG_STATUS_PORT is 0

	hub     *websocket.Hub
	bridge  *bridge.Bridge
	driver  *serial.Driver
	tracker *session.Tracker
}

// newApp builds the components in startup order. opener may be nil to use
// the real serial device.
func newApp(cfg *Config, deps *component.Dependencies, opener serial.Opener) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  deps.GetLogger(),
		group:   component.NewGroup(deps),
		monitor: health.NewMonitor(deps.GetMetricsRegistry().CoreMetrics()),
		tracker: session.NewTracker(deps),
	}

	sinks, err := a.buildSinks(deps)
	if err != nil {
		return nil, err
	}

	hubCfg := websocket.DefaultConfig()
	hubCfg.Port = cfg.WSPort
	a.hub, err = websocket.NewHub(hubCfg, deps)
	if err != nil {
		return nil, errors.Wrap(err, "app", "newApp", "create websocket hub")
	}
	a.group.Add(a.hub)

	// hub first so WebSocket subscribers see an event before any sink
	a.bridge = bridge.New(deps, append([]bridge.Broadcaster{a.hub, a.tracker}, sinks...)...)

	driverCfg := serial.DefaultConfig(cfg.SerialPort)
	driverCfg.Reconnect = cfg.SerialReconnect
	a.driver, err = serial.NewDriver(driverCfg, opener, a.bridge, deps)
	if err != nil {
		return nil, errors.Wrap(err, "app", "newApp", "create serial driver")
	}
	// added last so the group stops it first
	a.group.Add(a.driver)

	a.monitor.Track(a.group.Components()...)
	a.monitor.Track(a.bridge)

	if cfg.StatusPort > 0 {
		a.status = metric.NewServer(cfg.StatusPort, deps.GetMetricsRegistry(), a.logger)
		a.status.Handle("/health", a.monitor.Handler(appName))
		a.status.Handle("/session", a.tracker.SummaryHandler())
		a.status.Handle("/session/reset", a.tracker.ResetHandler())
	}
	return a, nil
}

// buildSinks creates the optional recorder and NATS mirror and registers
// them with the group ahead of the hub.
func (a *app) buildSinks(deps *component.Dependencies) ([]bridge.Broadcaster, error) {
	var sinks []bridge.Broadcaster

	if a.cfg.RecordDB != "" {
		rec, err := recorder.NewRecorder(recorder.DefaultConfig(a.cfg.RecordDB), deps)
		if err != nil {
			return nil, errors.Wrap(err, "app", "buildSinks", "create recorder")
		}
		a.group.Add(rec)
		sinks = append(sinks, rec)
	}

	if a.cfg.NATSURL != "" {
		client, err := natsclient.NewClient(a.cfg.NATSURL,
			natsclient.WithName(appName),
			natsclient.WithLogger(deps.GetLoggerWithComponent("natsclient")),
			natsclient.WithMetrics(deps.GetMetricsRegistry().CoreMetrics()),
			natsclient.WithRetryOnFailedConnect(true),
		)
		if err != nil {
			return nil, errors.Wrap(err, "app", "buildSinks", "create NATS client")
		}
		mirror, err := natsmirror.New(client, a.cfg.NATSSubject, deps)
		if err != nil {
			return nil, errors.Wrap(err, "app", "buildSinks", "create NATS mirror")
		}
		a.group.Add(mirror)
		sinks = append(sinks, mirror)
	}
	return sinks, nil
}

// start brings up the group, then the status server.
func (a *app) start(ctx context.Context) error {
	if err := a.group.Start(ctx); err != nil {
		return err
	}
	if a.status != nil {
		if err := a.status.Start(ctx); err != nil {
			_ = a.group.Stop(a.cfg.ShutdownTimeout)
			return err
		}
	}
	a.monitor.Refresh()
	return nil
}

// stop closes the serial device first, then the hub and sinks, then the
// status server.
func (a *app) stop() error {
	err := a.group.Stop(a.cfg.ShutdownTimeout)
	if a.status != nil {
		if serr := a.status.Stop(a.cfg.ShutdownTimeout); serr != nil && err == nil {
			err = serr
		}
	}
	accepted, skipped := a.bridge.Counts()
	a.logger.Info("Bridge stopped", "accepted", accepted, "skipped", skipped)
	return err
}

// watchHealth refreshes the monitor every interval and logs when the
// aggregate status changes.
func (a *app) watchHealth(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := a.monitor.AggregateHealth(appName).Status
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.monitor.Refresh()
			current := a.monitor.AggregateHealth(appName)
			if current.Status != last {
				a.logger.Info("Health changed", "from", last, "to", current.Status, "message", current.Message)
				last = current.Status
			}
		}
	}
}
