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
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/audit"
	"github.com/taskloop/taskloop/internal/bus"
	"github.com/taskloop/taskloop/internal/chat"
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
	"github.com/taskloop/taskloop/internal/telemetry"
)

// version is stamped at build time via -ldflags
var version = "dev"

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

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("bus_backend", cfg.BusBackend),
		zap.String("auth_mode", cfg.AuthMode),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	// OpenTelemetry tracing, if enabled
	otelEnabled := false
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else {
			tp, err := telemetry.InitTracer(context.Background(), "taskloop-server", cfg.OTELEndpoint)
			if err != nil {
				zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
			} else {
				otelEnabled = true
				zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
				defer func() {
					shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer shutdownCancel()
					if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
						zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
					}
				}()
			}
		}
	}

	// State store
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

	// Event bus
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

	// Reminder scheduler. Fired jobs turn into reminder.due events on the
	// reminders topic.
	fire := func(ctx context.Context, payload models.ReminderEventData) error {
		ev, err := models.NewReminderEvent(cfg.EventSource, payload)
		if err != nil {
			return err
		}
		return eventBus.Publish(ctx, models.TopicReminders, ev)
	}

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
		go func() {
			if err := delayed.Run(runCtx, cfg.RabbitMQPrefetch, fire); err != nil {
				zapLogger.Error("scheduler_consumer_stopped", zap.Error(err))
			}
		}()
		sched = delayed
	} else {
		mem := scheduler.NewMemoryScheduler(fire)
		defer func() {
			if err := mem.Close(); err != nil {
				_ = err
			}
		}()
		sched = mem
	}

	svc := tasks.NewService(st, eventBus, sched, cfg.EventSource, zapLogger)

	// With the in-process bus this binary runs standalone: the worker-side
	// consumers attach directly instead of through broker queues.
	if mb, ok := eventBus.(*bus.MemoryBus); ok {
		mb.SubscribeFunc(models.TopicTaskEvents, audit.NewRecorder(st, zapLogger).HandleTaskEvent)
		mb.SubscribeFunc(models.TopicTaskEvents, recurrence.NewWorker(svc, st, zapLogger).HandleTaskEvent)
		mb.SubscribeFunc(models.TopicReminders, notify.NewDispatcher(zapLogger).HandleReminderEvent)
		zapLogger.Info("standalone_consumers_attached")
	}

	// Authentication
	var authn middleware.Authenticator
	if cfg.AuthMode == config.AuthModeJWT {
		jwtAuthn, err := middleware.NewJWTAuthenticator(runCtx, cfg.JWKSURL, cfg.JWTIssuer)
		if err != nil {
			zapLogger.Fatal("failed_to_initialize_jwt_authenticator", zap.Error(err))
		}
		authn = jwtAuthn
	} else {
		authn = middleware.PassthroughAuthenticator{}
		zapLogger.Warn("passthrough_auth_enabled")
	}

	// Rate limiting, redis-backed when the store runs on redis
	var rateLimitMW func(http.Handler) http.Handler
	if rs, ok := st.(*store.RedisStore); ok {
		rateLimitMW, err = middleware.RateLimit(rs.Client(), cfg.RateLimit)
	} else {
		rateLimitMW, err = middleware.RateLimitInMemory(cfg.RateLimit)
	}
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limiter", zap.Error(err))
	}

	// Handlers
	taskHandler := handlers.NewTaskHandler(svc)
	auditHandler := handlers.NewAuditHandler(audit.NewRecorder(st, zapLogger))
	chatHandler := handlers.NewChatHandler(chat.NewDispatcher(svc, zapLogger))
	jobHandler := handlers.NewReminderJobHandler(eventBus, cfg.EventSource, zapLogger)
	health := handlers.NewHealthHandler(healthChecks(st, eventBus))

	// Router. Middleware executes in registration order in gorilla/mux.
	r := mux.NewRouter()
	if otelEnabled {
		r.Use(otelmux.Middleware("taskloop-server"))
	}
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.CORSFromEnv(cfg.FrontendURL))
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ContentType)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	// Public routes
	r.Handle("/healthz", health).Methods("GET")
	r.HandleFunc("/version", handlers.VersionHandler(version)).Methods("GET")

	// API v1 routes (authenticated, rate limited)
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Auth(authn, zapLogger))
	api.Use(rateLimitMW)
	taskHandler.RegisterRoutes(api.PathPrefix("/tasks").Subrouter())
	api.Handle("/audit", auditHandler).Methods("GET")
	api.Handle("/chat", chatHandler).Methods("POST")
	api.Handle("/jobs/reminder", jobHandler).Methods("POST")

	// Preflight requests short-circuit after the CORS middleware has set
	// its headers.
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")
	runCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Fatal("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}

// markerClient returns the redis client used for scheduler live-job markers,
// reusing the store's connection when the store itself runs on redis.
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
