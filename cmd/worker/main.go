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
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/audit"
	"github.com/taskloop/taskloop/internal/bus"
	"github.com/taskloop/taskloop/internal/config"
	"github.com/taskloop/taskloop/internal/handlers"
	"github.com/taskloop/taskloop/internal/logger"
	"github.com/taskloop/taskloop/internal/middleware"
	"github.com/taskloop/taskloop/internal/models"
	"github.com/taskloop/taskloop/internal/notify"
	"github.com/taskloop/taskloop/internal/recurrence"
	"github.com/taskloop/taskloop/internal/scheduler"
	"github.com/taskloop/taskloop/internal/store"
	"github.com/taskloop/taskloop/internal/tasks"
)

// Subscriber group names. Each group gets its own queue and sees every
// event on the topic.
const (
	groupAudit      = "audit"
	groupRecurrence = "recurrence"
	groupNotify     = "notify"
)

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

	zapLogger.Info("starting_worker",
		zap.Bool("debug_mode", debugMode),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("bus_backend", cfg.BusBackend),
		zap.Int("prefetch", cfg.RabbitMQPrefetch),
	)

	st, err := store.Open(cfg.StoreBackend, cfg.RedisURL, cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_open_state_store", zap.Error(err))
	}
	defer func() {
		if err := st.Close(); err != nil {
			zapLogger.Warn("failed_to_close_state_store", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_state_store", zap.String("backend", cfg.StoreBackend))

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

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()

	// The recurrence worker creates follow-up tasks through the same
	// lifecycle engine the server uses, so spawned occurrences emit events
	// and schedule reminders like any other create.
	var sched scheduler.Scheduler
	if cfg.BusBackend == config.BusBackendRabbitMQ {
		markers, err := markerClient(st, cfg.RedisURL)
		if err != nil {
			zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
		}
		delayed, err := scheduler.NewDelayedScheduler(cfg.RabbitMQURL, markers, zapLogger)
		if err != nil {
			zapLogger.Fatal("failed_to_create_scheduler", zap.Error(err))
		}
		defer func() {
			if err := delayed.Close(); err != nil {
				zapLogger.Warn("failed_to_close_scheduler", zap.Error(err))
			}
		}()
		sched = delayed
	} else {
		mem := scheduler.NewMemoryScheduler(func(ctx context.Context, payload models.ReminderEventData) error {
			ev, err := models.NewReminderEvent(cfg.EventSource, payload)
			if err != nil {
				return err
			}
			return eventBus.Publish(ctx, models.TopicReminders, ev)
		})
		defer func() {
			if err := mem.Close(); err != nil {
				_ = err
			}
		}()
		sched = mem
	}

	svc := tasks.NewService(st, eventBus, sched, cfg.EventSource, zapLogger)

	recorder := audit.NewRecorder(st, zapLogger)
	recurWorker := recurrence.NewWorker(svc, st, zapLogger)
	dispatcher := notify.NewDispatcher(zapLogger)

	// Both task-events consumers run against every delivery; either failing
	// asks the bus to redeliver.
	taskEvents := func(ctx context.Context, ev *models.CloudEvent) error {
		if err := recorder.HandleTaskEvent(ctx, ev); err != nil {
			return err
		}
		return recurWorker.HandleTaskEvent(ctx, ev)
	}

	if cfg.BusBackend == config.BusBackendRabbitMQ {
		consume := func(topic, group string, h bus.Handler) {
			go func() {
				if err := bus.Run(runCtx, eventBus, topic, group, cfg.RabbitMQPrefetch, h, zapLogger); err != nil {
					zapLogger.Error("consumer_stopped",
						zap.String("topic", topic),
						zap.String("group", group),
						zap.Error(err),
					)
				}
			}()
		}
		consume(models.TopicTaskEvents, groupAudit, recorder.HandleTaskEvent)
		consume(models.TopicTaskEvents, groupRecurrence, recurWorker.HandleTaskEvent)
		consume(models.TopicReminders, groupNotify, dispatcher.HandleReminderEvent)
		zapLogger.Info("consumers_started")
	} else {
		zapLogger.Info("memory_bus_active_events_arrive_over_http")
	}

	// HTTP delivery endpoints mirror the queue consumers for buses that
	// push over HTTP, plus health for the orchestrator.
	r := mux.NewRouter()
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	r.Handle("/events/task-events",
		handlers.NewEventEndpoint(models.TopicTaskEvents, taskEvents, zapLogger)).Methods("POST")
	r.Handle("/events/reminders",
		handlers.NewEventEndpoint(models.TopicReminders, dispatcher.HandleReminderEvent, zapLogger)).Methods("POST")
	r.Handle("/healthz", handlers.NewHealthHandler(healthChecks(st, eventBus))).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		zapLogger.Info("worker_http_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("worker_http_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("worker_shutting_down")
	runCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Fatal("worker_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("worker_exited")
}

func markerClient(st store.StateStore, redisURL string) (*redis.Client, error) {
	if rs, ok := st.(*store.RedisStore); ok {
		return rs.Client(), nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

func healthChecks(st store.StateStore, eventBus bus.EventBus) map[string]handlers.HealthCheck {
	checks := map[string]handlers.HealthCheck{
		"bus": eventBus.HealthCheck,
	}
	if pinger, ok := st.(interface{ Ping(ctx context.Context) error }); ok {
		checks["store"] = pinger.Ping
	}
	return checks
}
