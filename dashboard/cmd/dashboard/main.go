package main

import (
	"context"
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

	"av-ops-console/dashboard/internal/client"
	"av-ops-console/dashboard/internal/poll"
	"av-ops-console/dashboard/internal/view"
	"av-ops-console/shared/config"
	"av-ops-console/shared/httpx"
	"av-ops-console/shared/logx"
	"av-ops-console/shared/metricsx"
	"av-ops-console/shared/observability"
)

type statusResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Env     string `json:"env,omitempty"`
	Version string `json:"version,omitempty"`
}

type issuesResponse struct {
	FetchedAt time.Time `json:"fetchedAt"`
	view.Page
}

func main() {
	cfg, readyProblems := config.Load("dashboard", 8081)
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

	if cfg.APIBaseURL == "" {
		readyProblems = append(readyProblems, config.Problem{Field: "API_BASE_URL", Message: "API_BASE_URL is required"})
	}

	var api *client.Client
	if cfg.APIBaseURL != "" {
		api, err = client.New(cfg, logger)
		if err != nil {
			readyProblems = append(readyProblems, config.Problem{Field: "API_BASE_URL", Message: "failed to build API client"})
		}
	}

	var poller *poll.Poller
	if api != nil {
		poller = poll.New(api, time.Duration(cfg.PollIntervalSec)*time.Second, logger, func(s poll.Snapshot) {
			alerts := 0
			for _, issue := range s.Issues {
				alerts += view.ActiveAlertCount(issue)
			}
			metricsx.SetActiveIssues(len(s.Issues))
			metricsx.SetActiveAlerts(alerts)
		})
		poller.Start(ctx)
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
		if len(readyProblems) > 0 {
			httpx.WriteError(
				w,
				r,
				http.StatusServiceUnavailable,
				"FAILED_PRECONDITION",
				"service not ready: invalid configuration",
				map[string]any{"problems": readyProblems},
			)
			return
		}
		if poller == nil || poller.Current().Seq == 0 {
			httpx.WriteError(
				w,
				r,
				http.StatusServiceUnavailable,
				"FAILED_PRECONDITION",
				"service not ready: no snapshot yet",
				nil,
			)
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

	mux.HandleFunc("GET /view/issues", func(w http.ResponseWriter, r *http.Request) {
		if poller == nil {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "polling not configured", nil)
			return
		}
		snapshot := poller.Current()

		page := view.Assemble(snapshot.Issues, time.Now(), view.Query{
			Filter: view.Filter{
				Query:           r.URL.Query().Get("query"),
				ShowMaintenance: r.URL.Query().Get("showMaintenance") == "true",
			},
			SortKey:   r.URL.Query().Get("sort"),
			Direction: r.URL.Query().Get("direction"),
		})
		httpx.WriteJSON(w, http.StatusOK, issuesResponse{
			FetchedAt: snapshot.FetchedAt,
			Page:      page,
		})
	})
	mux.HandleFunc("GET /view/rooms", func(w http.ResponseWriter, r *http.Request) {
		if api == nil {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "API client not configured", nil)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, api.Rooms(r.Context()))
	})
	mux.HandleFunc("GET /view/issuetypes", func(w http.ResponseWriter, r *http.Request) {
		if api == nil {
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "FAILED_PRECONDITION", "API client not configured", nil)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, api.IssueTypes(r.Context()))
	})

	notFound := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})

	handler := httpx.WrapServeMux(mux, notFound)
	handler = metricsx.Instrument(handler)
	handler = httpx.WithTimeout(cfg.RequestTimeout, handler)
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
			slog.Int("poll_interval_sec", cfg.PollIntervalSec),
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

	if poller != nil {
		poller.Stop()
	}
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
