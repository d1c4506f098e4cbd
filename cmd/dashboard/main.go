// cmd/dashboard/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"sensor-dashboard/internal/actuator"
	"sensor-dashboard/internal/api"
	"sensor-dashboard/internal/auth"
	"sensor-dashboard/internal/config"
	"sensor-dashboard/internal/data"
	"sensor-dashboard/internal/display"
	"sensor-dashboard/internal/feed"
	"sensor-dashboard/internal/logging"
	"sensor-dashboard/internal/metrics"
	"sensor-dashboard/internal/mqttbridge"
	"sensor-dashboard/internal/settings"
	"sensor-dashboard/internal/upstream"
	"sensor-dashboard/internal/websocket"
)

type ProgramArgs struct {
	ConfigDir string `short:"c" long:"config" default:"." description:"Directory holding config.yaml"`
	WebDir    string `short:"w" long:"webdir" description:"Path to the web assets directory (overrides server.web_dir)"`
	SensorURL string `short:"s" long:"sensor" description:"Board WebSocket URL (overrides sensor.url)"`
}

func main() {
	args := ProgramArgs{}
	if _, err := flags.NewParser(&args, flags.Default).Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(2)
	}

	// --- Configuration ---
	cfg, err := config.Load(args.ConfigDir)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	if args.WebDir != "" {
		cfg.Server.WebDir = args.WebDir
	}
	if args.SensorURL != "" {
		cfg.Sensor.URL = args.SensorURL
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "sensor-dashboard")
	if err != nil {
		log.Fatalf("Error building logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Dashboard stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Initialize Components ---
	m := metrics.New()
	hub := websocket.NewHub(logger, m)
	go hub.Run(ctx)

	dispatcher := actuator.NewDispatcher(logger)
	f := feed.New(feed.Options{
		Capacity:    cfg.Feed.Capacity,
		LabelLayout: cfg.Feed.LabelLayout,
		Threshold:   cfg.Feed.ProximityThreshold,
		Axes: map[data.Channel]feed.AxisBounds{
			data.Temp:  {Min: cfg.Axes.Temp.Min, Max: cfg.Axes.Temp.Max},
			data.Light: {Min: cfg.Axes.Light.Min, Max: cfg.Axes.Light.Max},
		},
	}, display.NewBroadcaster(hub, logger), dispatcher, logger, m)

	router := settings.NewRouter(f, logger, m)
	hub.OnCommit(router.Commit)

	// --- Board link ---
	link, err := upstream.Dial(ctx, upstream.Config{
		URL:              cfg.Sensor.URL,
		Subprotocol:      cfg.Sensor.Subprotocol,
		Origin:           cfg.Sensor.Origin,
		HandshakeTimeout: cfg.Sensor.HandshakeTimeout,
		IdleTimeout:      cfg.Sensor.IdleTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("connect to sensor board: %w", err)
	}
	defer link.Close()
	dispatcher.AddSink("board", link)

	if cfg.MQTT.Enabled {
		pub, err := mqttbridge.Connect(mqttbridge.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Topic:    cfg.MQTT.Topic,
			QoS:      cfg.MQTT.QoS,
			Retained: cfg.MQTT.Retained,
		}, logger)
		if err != nil {
			return fmt.Errorf("connect to mqtt broker: %w", err)
		}
		defer pub.Close()
		dispatcher.AddSink("mqtt", pub)
	}

	// A dropped board link is not redialed; the page keeps its last state.
	go func() {
		if err := link.Run(ctx, f.HandleFrame); err != nil {
			logger.Error("Sensor link ended", zap.Error(err))
			return
		}
		logger.Info("Sensor link closed")
	}()

	// --- HTTP ---
	sensorConnected := func() bool {
		select {
		case <-link.Done():
			return false
		default:
			return true
		}
	}
	authManager := auth.NewManager(cfg.Auth)
	if !authManager.Enabled() {
		logger.Warn("No API keys or JWT secret configured; settings endpoints are open")
	}
	apiHandler, err := api.NewAPIHandler(api.Options{
		Feed:            f,
		Settings:        router,
		Hub:             hub,
		Auth:            authManager,
		Metrics:         m,
		Logger:          logger,
		WebDir:          cfg.Server.WebDir,
		SensorConnected: sensorConnected,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.UIPort),
		Handler:           api.SetupUIRouter(apiHandler),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting Web UI & WebSocket Server", zap.Int("port", cfg.Server.UIPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// --- Graceful Shutdown ---
	select {
	case <-ctx.Done():
		logger.Info("Shutting down server...")
	case err := <-serveErr:
		return fmt.Errorf("ui server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info("Server gracefully stopped")
	return nil
}
