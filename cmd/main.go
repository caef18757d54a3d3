package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	// Drivers
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	// Instrumentation
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	// Internal
	"github.com/jupiterclapton/cenackle/services/profile-service/config"
	"github.com/jupiterclapton/cenackle/services/profile-service/internal/adapters/primary/auth"
	"github.com/jupiterclapton/cenackle/services/profile-service/internal/adapters/primary/events"
	http_adapter "github.com/jupiterclapton/cenackle/services/profile-service/internal/adapters/primary/http"
	"github.com/jupiterclapton/cenackle/services/profile-service/internal/adapters/secondary/cache"
	"github.com/jupiterclapton/cenackle/services/profile-service/internal/adapters/secondary/notifier"
	"github.com/jupiterclapton/cenackle/services/profile-service/internal/adapters/secondary/restapi"
	"github.com/jupiterclapton/cenackle/services/profile-service/internal/core/ports"
	"github.com/jupiterclapton/cenackle/services/profile-service/internal/core/services"
)

func main() {
	// 1. Config & Logger
	cfg := config.Load()
	initLogger(cfg)
	slog.Info("🚀 Starting Profile Service", "config", cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Telemetry (Tracing)
	tp, err := initTracer(ctx, cfg)
	if err != nil {
		slog.Error("Failed to init tracer", "error", err)
	} else {
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	// 3. Infrastructure: Redis profile cache (optional)
	var profileCache ports.ProfileCache
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisotel.InstrumentTracing(rdb); err != nil {
		slog.Error("Failed to instrument Redis", "error", err)
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		slog.Warn("⚠️ Redis unavailable, profile cache disabled", "error", err)
	} else {
		defer rdb.Close()
		profileCache = cache.NewRedisProfileCache(rdb, cfg.CacheTTL)
		slog.Info("✅ Connected to Redis")
	}

	// 4. Infrastructure: notifications (log always, NATS when reachable)
	sinks := notifier.Fanout{notifier.NewLogNotifier(slog.Default())}
	nc, err := nats.Connect(cfg.NatsUrl, nats.Name("profile-service"))
	if err != nil {
		slog.Warn("⚠️ NATS unavailable, notifications are logged only", "error", err)
	} else {
		defer nc.Close()
		sinks = append(sinks, notifier.NewNatsNotifier(nc))
		slog.Info("✅ Connected to NATS")
	}

	// 5. Infrastructure: upstream REST backend
	api := restapi.NewClient(cfg.APIBaseURL, cfg.MediaBaseURL, cfg.RequestTimeout)

	// 6. Core
	profileService := services.NewProfileService(api, sinks, profileCache, cfg.LikesPageSize)
	catalogService := services.NewCatalogService(api)

	// 6b. Events: new posts invalidate the author's cached profile
	if nc != nil {
		eventHandler := events.NewEventHandler(profileService)
		if _, err := nc.Subscribe(events.SubjectPostCreated, eventHandler.HandlePostCreated); err != nil {
			slog.Warn("⚠️ Failed to subscribe", "subject", events.SubjectPostCreated, "error", err)
		} else {
			slog.Info("🎧 Listening for events", "subject", events.SubjectPostCreated)
		}
	}

	// 7. HTTP middleware chain
	var h http.Handler = http_adapter.NewHandler(profileService, catalogService, cfg.RequestTimeout).Router()

	// A. Auth (verified token -> viewer key)
	validator, err := newValidator(cfg, api)
	if err != nil {
		slog.Error("Failed to init token validation", "error", err)
		os.Exit(1)
	}
	h = auth.Middleware(validator)(h)

	// B. CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "baggage", "sentry-trace"},
		AllowCredentials: true,
	})
	h = c.Handler(h)

	// C. OTEL HTTP (root)
	h = otelhttp.NewHandler(h, "Profile-BFF", otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
		return fmt.Sprintf("HTTP %s %s", r.Method, r.URL.Path)
	}))

	srvHTTP := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("📡 Profile Service HTTP listening", "port", cfg.HTTPPort)
		if err := srvHTTP.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// 8. gRPC: health check & reflection for the orchestrator
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		slog.Error("Failed to listen", "error", err)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	go func() {
		slog.Info("📡 Health gRPC listening", "port", cfg.GRPCPort)
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("gRPC server error", "error", err)
			os.Exit(1)
		}
	}()

	// 9. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("🛑 Shutting down server...")
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := srvHTTP.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	// In-flight mutations still owe a notification and a reconcile.
	if err := profileService.Drain(shutdownCtx); err != nil {
		slog.Warn("Mutations still in flight at shutdown", "error", err)
	}
	grpcServer.GracefulStop()

	slog.Info("👋 Server exited")
}

// --- Helpers ---

func initLogger(cfg config.Config) {
	level := slog.LevelInfo
	if cfg.Env == "local" {
		level = slog.LevelDebug
	}
	if cfg.LogLevel != "" {
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			fmt.Fprintf(os.Stderr, "invalid LOG_LEVEL %q, using %s\n", cfg.LogLevel, level)
		}
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.Env != "local"}

	var handler slog.Handler
	if cfg.Env == "local" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func initTracer(ctx context.Context, cfg config.Config) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OtelEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(cfg.Env),
		),
	)
	if err != nil {
		slog.Warn("Partial tracing resource", "error", err)
	}

	// Children follow the caller's decision; new traces are sampled by ratio.
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.TraceSampleRatio))),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp, nil
}

// newValidator verifies signatures when a key is configured, and otherwise
// asks the upstream backend who owns each token.
func newValidator(cfg config.Config, api *restapi.Client) (auth.Validator, error) {
	var publicKey []byte
	if cfg.JWTPublicKeyPath != "" {
		pem, err := os.ReadFile(cfg.JWTPublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read public key: %w", err)
		}
		publicKey = pem
	}
	if len(publicKey) == 0 && cfg.JWTSecret == "" {
		slog.Warn("⚠️ No JWT key configured, tokens are checked against the upstream API")
		return auth.NewUpstreamValidator(api), nil
	}
	v, err := auth.NewJWTValidator(publicKey, []byte(cfg.JWTSecret))
	if err != nil {
		return nil, err
	}
	return v, nil
}
