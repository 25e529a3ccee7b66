package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	server "rollsync/server"
	servernet "rollsync/server/internal/net"
	"rollsync/server/internal/telemetry"
	"rollsync/server/logging"
	loggingSinks "rollsync/server/logging/sinks"
)

type Config struct {
	Addr   string
	Logger telemetry.Logger
}

// Run wires the logging router, hub, and HTTP surface together and serves
// until the listener fails.
func Run(ctx context.Context, cfg Config) error {
	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	logConfig := logging.DefaultConfig()
	sinks := []logging.NamedSink{
		{Name: "console", Sink: loggingSinks.NewConsoleSink(os.Stdout, logConfig.Console)},
	}
	if path := os.Getenv("EVENT_LOG_PATH"); path != "" {
		logConfig.JSON.FilePath = path
	}
	if logConfig.JSON.FilePath != "" {
		file, err := os.OpenFile(logConfig.JSON.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			telemetryLogger.Printf("failed to open event log %q: %v", logConfig.JSON.FilePath, err)
		} else {
			logConfig.EnabledSinks = append(logConfig.EnabledSinks, "json")
			sinks = append(sinks, logging.NamedSink{
				Name: "json",
				Sink: loggingSinks.NewJSON(file, logConfig.JSON.FlushInterval),
			})
		}
	}

	router, err := logging.NewRouter(logging.SystemClock{}, logConfig, sinks)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		if cerr := router.Close(ctx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	hubCfg := server.DefaultConfig()
	if raw := os.Getenv("TICK_RATE"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			hubCfg.TickRate = value
		} else {
			telemetryLogger.Printf("invalid TICK_RATE=%q: %v", raw, err)
		}
	}
	if raw := os.Getenv("INPUT_DELAY_FRAMES"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			hubCfg.InputDelay = value
		} else {
			telemetryLogger.Printf("invalid INPUT_DELAY_FRAMES=%q: %v", raw, err)
		}
	}
	if raw := os.Getenv("SNAPSHOT_WINDOW"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			hubCfg.Window = value
		} else {
			telemetryLogger.Printf("invalid SNAPSHOT_WINDOW=%q: %v", raw, err)
		}
	}
	hubCfg.Logger = telemetryLogger
	hubCfg = hubCfg.Normalized()

	hub, err := server.NewHubWithConfig(hubCfg, router)
	if err != nil {
		return fmt.Errorf("failed to construct hub: %w", err)
	}
	stop := make(chan struct{})
	go hub.RunSimulation(stop)
	defer close(stop)

	fallbackLogger := log.Default()
	if provider, ok := telemetryLogger.(interface{ StandardLogger() *log.Logger }); ok {
		if candidate := provider.StandardLogger(); candidate != nil {
			fallbackLogger = candidate
		}
	}

	handler := servernet.NewHTTPHandler(hub, servernet.HTTPHandlerConfig{
		Logger: fallbackLogger,
	})

	addr := cfg.Addr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	telemetryLogger.Printf("server listening on %s", srv.Addr)

	if err := srv.ListenAndServe(); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
