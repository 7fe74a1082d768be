package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"av-ops-console/alertmanager/internal/engine"
	"av-ops-console/alertmanager/internal/handlers"
	"av-ops-console/alertmanager/internal/incidents"
	"av-ops-console/alertmanager/internal/issuecache"
	"av-ops-console/alertmanager/internal/middleware"
	"av-ops-console/alertmanager/internal/store"
	"av-ops-console/shared/authx"
	"av-ops-console/shared/cachex"
	"av-ops-console/shared/config"
	"av-ops-console/shared/dbx"
	"av-ops-console/shared/events"
	"av-ops-console/shared/httpx"
	"av-ops-console/shared/influxx"
	"av-ops-console/shared/logx"
	"av-ops-console/shared/metricsx"
	"av-ops-console/shared/mqx"
	"av-ops-console/shared/observability"
)

type statusResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Env     string `json:"env,omitempty"`
	Version string `json:"version,omitempty"`
}

func main() {
	cfg, readyProblems := config.Load("alertmanager", 8080)
	version := strings.TrimSpace(os.Getenv("VERSION"))
	logger := logx.New(cfg.ServiceName, cfg.Env, version, cfg.LogLevel)

	metricsx.Register()

	ctx := context.Background()
	shutdownTracer, err := observability.InitTracer(ctx, observability.TracerConfig{
		ServiceName: cfg.ServiceName,
		Env:         cfg.Env,
		Endpoint:    cfg.OtelEndpoint,
		Insecure:    cfg.OtelInsecure,
		SampleRatio: cfg.OtelSampleRatio,
	})
	if err != nil {
		logger.Error(ctx, "tracer_init_failed", "tracer init failed", slog.String("error", err.Error()))
		shutdownTracer = func(context.Context) error { return nil }
	}

	if cfg.DatabaseURL == "" {
		readyProblems = append(readyProblems, config.Problem{Field: "DATABASE_URL", Message: "DATABASE_URL is required"})
	}
	if len(readyProblems) > 0 {
		logger.Error(ctx, "config_invalid", "invalid config",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.Any("problems", readyProblems),
		)
		os.Exit(1)
	}

	dbPool, err := dbx.NewPool(cfg)
	if err != nil {
		logger.Error(ctx, "db_init_failed", "db init failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	defer dbPool.Close()

	st := store.New(dbPool)

	var redis *cachex.Client
	if cfg.RedisAddr != "" {
		redis, err = cachex.New(cfg)
		if err != nil {
			logger.Warn(ctx, "redis_init_failed", "issue cache runs without redis snapshots",
				slog.String("error", err.Error()),
			)
		}
	}

	cache := issuecache.New(st, redis, logger)
	if err := cache.WarmStart(ctx); err != nil {
		logger.Error(ctx, "cache_warm_failed", "issue cache warm start failed",
			slog.String("error_code", "FAILED_PRECONDITION"),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	logger.Info(ctx, "cache_warm", "issue cache warmed", slog.Int("issues", cache.Len()))

	var influx *influxx.Client
	if cfg.InfluxURL != "" {
		influx, err = influxx.New(cfg)
		if err != nil {
			logger.Warn(ctx, "influx_init_failed", "alert transition points disabled",
				slog.String("error", err.Error()),
			)
		} else {
			defer influx.Close()
		}
	}

	rules := engine.DefaultRules()
	if cfg.RulesPath != "" {
		rules, err = engine.LoadRules(cfg.RulesPath)
		if err != nil {
			logger.Error(ctx, "rules_load_failed", "alert rules load failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("rules_path", cfg.RulesPath),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}
	logger.Info(ctx, "rules_loaded", "alert rules loaded", slog.Int("rules", len(rules)))

	eng := engine.New(rules, st, cache, influx, logger)

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()

	// Periodic resync reconciles the cache with the store after a
	// missed refresh and keeps the redis snapshot from expiring.
	go cache.ResyncEvery(consumerCtx, time.Duration(cfg.CacheResyncSec)*time.Second)

	consumerDone := make(chan struct{})
	if len(cfg.KafkaBrokers) > 0 {
		reader, err := mqx.NewConsumer(cfg, events.TopicDeviceEvents, cfg.KafkaGroupID)
		if err != nil {
			logger.Error(ctx, "kafka_init_failed", "device event consumer init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
		go func() {
			defer close(consumerDone)
			defer func() {
				if err := reader.Close(); err != nil {
					logger.Warn(ctx, "kafka_close_failed", "consumer close failed", slog.String("error", err.Error()))
				}
			}()
			consumeDeviceEvents(consumerCtx, logger, eng, reader)
		}()
	} else {
		close(consumerDone)
		logger.Warn(ctx, "kafka_disabled", "no brokers configured, device events will not be consumed")
	}

	var verifier *authx.JWTVerifier
	if cfg.OIDCIssuer != "" {
		verifier, err = authx.NewJWTVerifier(cfg.OIDCIssuer, cfg.OIDCAudience, cfg.OIDCJWKSURL, cfg.JWKSTTLSeconds, cfg.JWTClockSkewSec)
		if err != nil {
			logger.Error(ctx, "auth_init_failed", "jwt verifier init failed",
				slog.String("error_code", "FAILED_PRECONDITION"),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	} else {
		logger.Warn(ctx, "auth_disabled", "OIDC_ISSUER not set, requests are not authenticated")
	}

	var ticketing handlers.IncidentClient
	if cfg.TicketingURL != "" {
		client, err := incidents.New(cfg)
		if err != nil {
			logger.Warn(ctx, "ticketing_init_failed", "incident endpoints will fail",
				slog.String("error", err.Error()),
			)
		} else {
			ticketing = client
		}
	}

	h := &handlers.Handlers{
		Store:     st,
		Cache:     cache,
		Incidents: ticketing,
		Log:       logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ok",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := dbPool.Ping(r.Context()); err != nil {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "service not ready: database unreachable", nil)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, statusResponse{
			Status:  "ready",
			Service: cfg.ServiceName,
			Env:     cfg.Env,
			Version: version,
		})
	})
	mux.Handle("GET /metrics", metricsx.Handler())
	h.Register(mux)

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})

	skipOps := func(r *http.Request) bool {
		switch r.URL.Path {
		case "/healthz", "/readyz", "/metrics":
			return true
		}
		return false
	}

	handler := httpx.WrapServeMux(mux, notFound)
	handler = middleware.AuthMiddleware{Verifier: verifier, Skip: skipOps}.Wrap(handler)
	handler = metricsx.Instrument(handler)
	handler = httpx.WithTimeout(cfg.RequestTimeout, handler)
	handler = middleware.CORSMiddleware{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowCredentials: true,
		MaxAge:           10 * time.Minute,
		Skip:             skipOps,
	}.Wrap(handler)
	handler = httpx.WithRequestID(handler)
	handler = httpx.WithRecover(logger, handler)
	handler = httpx.WithRequestLog(logger, httpx.RequestLogOptions{SkipPaths: map[string]bool{"/healthz": true, "/metrics": true}}, handler)

	server := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(cfg.HTTPPort)),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "service_start", "starting service",
			slog.String("addr", server.Addr),
			slog.Int("http_port", cfg.HTTPPort),
			slog.Int("rules", len(rules)),
		)
		errCh <- server.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info(ctx, "shutdown_signal", "received signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error(ctx, "server_failed", "server failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	stopConsumer()
	<-consumerDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "shutdown_failed", "shutdown failed",
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
	}
	_ = shutdownTracer(shutdownCtx)
	logger.Info(ctx, "service_stop", "service stopped")
}

// consumeDeviceEvents drains the device event topic and feeds each
// state change through the alert rules. Messages are committed only
// after the engine has applied them, so a crash replays the tail of
// the partition rather than losing transitions.
func consumeDeviceEvents(ctx context.Context, logger logx.Logger, eng *engine.Engine, reader *kafka.Reader) {
	tracer := otel.Tracer("kafka-consumer")
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Error(ctx, "kafka_fetch_failed", "fetch failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		msgCtx, span := tracer.Start(ctx, "device.events.consume")
		span.SetAttributes(
			attribute.String("kafka.topic", msg.Topic),
			attribute.Int("kafka.partition", msg.Partition),
			attribute.Int64("kafka.offset", msg.Offset),
		)

		var event events.DeviceEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Warn(msgCtx, "device_event_malformed", "dropping undecodable device event",
				slog.String("key", string(msg.Key)),
				slog.String("error", err.Error()),
			)
			span.SetStatus(codes.Error, "unmarshal failed")
		} else if err := eng.HandleDeviceEvent(msgCtx, event); err != nil {
			logger.Error(msgCtx, "device_event_failed", "device event not applied",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("device_id", event.DeviceID),
				slog.String("error", err.Error()),
			)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			// Leave the message uncommitted so the group replays it.
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if err := reader.CommitMessages(msgCtx, msg); err != nil {
			logger.Error(msgCtx, "kafka_commit_failed", "commit failed",
				slog.String("error_code", "INTERNAL_ERROR"),
				slog.String("error", err.Error()),
			)
		}
		metricsx.SetKafkaLag(reader.Config().Topic, reader.Config().GroupID, reader.Lag())
		span.End()
	}
}
