package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"rfidscan/indicator"
	"rfidscan/logging"
	"rfidscan/mqtt"
	"rfidscan/reader"
	"rfidscan/scan"
	"rfidscan/server"
)

const defaultIdleAfter = 3 * time.Second

// App reports scans on the indicator and over MQTT.
type App struct {
	log       *zap.Logger
	indicator indicator.Indicator
	mqtt      *mqtt.Client
	idleAfter time.Duration

	mu        sync.Mutex
	idleTimer *time.Timer
}

func newApp(log *zap.Logger, ind indicator.Indicator, idleAfter time.Duration) *App {
	if idleAfter <= 0 {
		idleAfter = defaultIdleAfter
	}
	return &App{log: log, indicator: ind, idleAfter: idleAfter}
}

// ScanStarted implements scan.Notifier.
func (app *App) ScanStarted(scanID string, mode scan.Mode) {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.stopIdleTimer()
	app.indicator.Scanning()
}

// ScanFinished implements scan.Notifier.
func (app *App) ScanFinished(evt scan.Event) {
	app.mu.Lock()
	switch evt.Status {
	case scan.StatusFound:
		app.indicator.Found()
	case scan.StatusTimeout:
		app.indicator.TimedOut()
	default:
		app.indicator.Failed()
	}
	app.stopIdleTimer()
	var t *time.Timer
	t = time.AfterFunc(app.idleAfter, func() { app.idle(t) })
	app.idleTimer = t
	app.mu.Unlock()

	if app.mqtt == nil {
		return
	}
	err := app.mqtt.PublishScan(mqtt.ScanMessage{
		ScanID: evt.ScanID,
		Status: string(evt.Status),
		ID:     evt.TagID,
		Mode:   string(evt.Mode),
	})
	if err != nil {
		app.log.Warn("Failed to publish scan", zap.String("scan_id", evt.ScanID), zap.Error(err))
	}
}

// idle fires for t unless a later scan or shutdown has replaced it.
func (app *App) idle(t *time.Timer) {
	app.mu.Lock()
	defer app.mu.Unlock()
	if app.idleTimer != t {
		return
	}
	app.idleTimer = nil
	app.indicator.Idle()
}

func (app *App) stopIdleTimer() {
	if app.idleTimer != nil {
		app.idleTimer.Stop()
		app.idleTimer = nil
	}
}

func (app *App) onMQTTConnect() {
	app.indicator.Connected()
}

func (app *App) onMQTTDisconnect() {
	app.indicator.ConnectionLost()
}

// shutdown turns the indicator off and releases it.
func (app *App) shutdown() error {
	app.mu.Lock()
	defer app.mu.Unlock()
	app.stopIdleTimer()
	app.indicator.Shutdown()
	return app.indicator.Release()
}

// run starts the scan server and blocks until ctx is cancelled.
func run(ctx context.Context, opts options) error {
	if err := opts.validate(); err != nil {
		return err
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	level := opts.logLevel
	if level == "" {
		level = cfg.LogLevel
	}
	log, err := logging.New(opts.logPath, level)
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("Startup RFID reader.",
		zap.String("build", myBuild),
		zap.Int("port", opts.port),
		zap.Duration("timeout", opts.scanTimeout()))

	dev, err := reader.New(cfg.Reader)
	if err != nil {
		log.Error("Failed to open reader", zap.Error(err))
		return fmt.Errorf("init reader: %w", err)
	}

	ind, err := indicator.New(cfg.Indicator)
	if err != nil {
		log.Error("Failed to open indicator", zap.Error(err))
		dev.Release()
		return fmt.Errorf("init indicator: %w", err)
	}
	ind.ConnectionLost()

	app := newApp(log, ind, cfg.IdleAfter)
	app.mqtt, err = mqtt.New(cfg.MQTT, cfg.ClientID, log, mqtt.Handlers{
		OnConnect:    app.onMQTTConnect,
		OnDisconnect: app.onMQTTDisconnect,
	})
	if err != nil {
		log.Error("Failed to set up MQTT", zap.Error(err))
		dev.Release()
		app.shutdown()
		return fmt.Errorf("init MQTT: %w", err)
	}

	go func() {
		if err := app.mqtt.Connect(); err != nil {
			log.Warn("MQTT connect failed", zap.Error(err))
		}
	}()
	go app.mqtt.PingLoop(ctx, mqtt.DefaultPingInterval)

	handler := scan.NewHandler(dev, log,
		scan.WithContext(ctx),
		scan.WithTimeout(opts.scanTimeout()),
		scan.WithNotifier(app))

	srv := server.New(server.Config{Port: opts.port}, handler, log)
	srv.OnShutdown("reader", dev.Release)
	srv.OnShutdown("indicator", app.shutdown)
	srv.OnShutdown("mqtt", app.mqtt.Disconnect)

	return srv.Run(ctx)
}
