package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/bus"
	"github.com/taskloop/taskloop/internal/config"
	"github.com/taskloop/taskloop/internal/handlers"
	"github.com/taskloop/taskloop/internal/logger"
	"github.com/taskloop/taskloop/internal/middleware"
	"github.com/taskloop/taskloop/internal/models"
	"github.com/taskloop/taskloop/internal/ws"
)

const groupSync = "sync"

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.DebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() {
		if syncErr := logger.Sync(zapLogger); syncErr != nil {
			_ = syncErr
		}
	}()

	zapLogger.Info("starting_syncd",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("bus_backend", cfg.BusBackend),
	)

	eventBus, err := bus.Connect(cfg.BusBackend, cfg.RabbitMQURL, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Close(); err != nil {
			zapLogger.Warn("failed_to_close_bus_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_bus", zap.String("backend", cfg.BusBackend))

	manager := ws.NewManager(zapLogger)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	if cfg.BusBackend == config.BusBackendRabbitMQ {
		go func() {
			if err := bus.Run(runCtx, eventBus, models.TopicTaskUpdates, groupSync,
				cfg.RabbitMQPrefetch, manager.HandleTaskUpdate, zapLogger); err != nil {
				zapLogger.Error("consumer_stopped",
					zap.String("topic", models.TopicTaskUpdates),
					zap.Error(err),
				)
			}
		}()
		zapLogger.Info("consumer_started", zap.String("topic", models.TopicTaskUpdates))
	} else {
		zapLogger.Info("memory_bus_active_events_arrive_over_http")
	}

	// Browsers connect from the frontend origin; everything else is
	// rejected at the upgrade.
	checkOrigin := func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || origin == cfg.FrontendURL
	}

	health := handlers.NewHealthHandler(map[string]handlers.HealthCheck{
		"bus": eventBus.HealthCheck,
	})
	health.AddGauge("connections", func() any { return manager.ConnectionCount() })

	r := mux.NewRouter()
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	r.Handle("/ws/{user_id}", handlers.NewWSHandler(manager, checkOrigin, zapLogger)).Methods("GET")
	r.Handle("/events/task-updates",
		handlers.NewEventEndpoint(models.TopicTaskUpdates, manager.HandleTaskUpdate, zapLogger)).Methods("POST")
	r.Handle("/healthz", health).Methods("GET")

	// No WriteTimeout: WebSocket connections stay open indefinitely.
	srv := &http.Server{
		Addr:        ":" + cfg.ServerPort,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		zapLogger.Info("syncd_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("syncd_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("syncd_shutting_down",
		zap.Int("open_connections", manager.ConnectionCount()),
	)
	runCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Fatal("syncd_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("syncd_exited")
}
