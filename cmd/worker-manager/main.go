// cmd/worker-manager/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"artifact-compiler/internal/common/camunda"
	"artifact-compiler/internal/common/config"
	"artifact-compiler/internal/common/logger"
	"artifact-compiler/internal/common/observability"
	"artifact-compiler/internal/common/validation"
	"artifact-compiler/internal/compiler/pipeline"
	"artifact-compiler/internal/compiler/provider"
	"artifact-compiler/internal/compiler/report"
	"artifact-compiler/internal/models"
	compileartifact "artifact-compiler/internal/workers/compiler/compile-artifact"
	"artifact-compiler/pkg/registry"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	if err := config.ValidateWorker(cfg); err != nil {
		zapLog.Fatal("invalid worker configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zapLog.Info("Starting worker manager",
		zap.String("environment", cfg.App.Environment),
		zap.String("reportSink", cfg.Reports.Sink),
	)

	obs, err := observability.New(cfg.App.Name)
	if err != nil {
		zapLog.Fatal("observability setup failed", zap.Error(err))
	}
	obs.Install()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = obs.Shutdown(sctx)
	}()

	// --- Pass registry & schemas ---
	reg, err := registry.LoadRegistry(cfg.Compiler.RegistryPath)
	if err != nil {
		zapLog.Fatal("pass registry load failed", zap.Error(err))
	}
	schemas := validation.NewSchemaValidator(cfg.Compiler.SchemaDir)
	if err := schemas.Preload(passKinds(reg)...); err != nil {
		zapLog.Fatal("schema preload failed", zap.Error(err))
	}
	zapLog.Info("Pass registry loaded",
		zap.Int("passes", len(reg.Passes)),
		zap.Strings("order", reg.Order()),
	)

	// --- Failure reports ---
	sink, closer, err := report.OpenSink(ctx, cfg)
	if err != nil {
		zapLog.Fatal("report sink failed", zap.String("sink", cfg.Reports.Sink), zap.Error(err))
	}
	defer closer.Close()

	notifier, err := report.OpenNotifier(ctx, cfg)
	if err != nil {
		zapLog.Fatal("notifier setup failed", zap.Error(err))
	}
	reporter := report.NewReporter(sink, notifier, log)

	// --- Pipeline & model ---
	opts := append(pipeline.OptionsFromConfig(cfg.Compiler, log),
		pipeline.WithReporter(reporter),
		pipeline.WithObservability(obs),
	)
	p := pipeline.New(schemas, opts...)

	model := provider.New(provider.Config{
		BaseURL:     cfg.Model.BaseURL,
		APIKey:      cfg.Model.APIKey,
		Model:       cfg.Model.Model,
		Provider:    cfg.Model.Provider,
		Timeout:     config.GetDuration(cfg.Model.TimeoutMs),
		Temperature: cfg.Model.Temperature,
		MaxTokens:   cfg.Model.MaxTokens,
	})

	// --- Zeebe ---
	zeebe, err := camunda.NewClientWithConfig(ctx, &camunda.ClientConfig{
		GatewayAddress:         cfg.Camunda.BrokerAddress,
		UsePlaintextConnection: true,
		ConnectionTimeout:      config.GetDuration(cfg.Camunda.RequestTimeout),
	}, log)
	if err != nil {
		zapLog.Fatal("zeebe client failed", zap.Error(err))
	}
	defer zeebe.Close()
	zapLog.Info("Zeebe client connected", zap.String("gateway", cfg.Camunda.BrokerAddress))

	handler, err := compileartifact.NewHandler(compileartifact.HandlerOptions{
		AppConfig: cfg,
		Pipeline:  p,
		Registry:  reg,
		Model:     model,
		Logger:    log,
	})
	if err != nil {
		zapLog.Fatal("compile-artifact handler failed", zap.Error(err))
	}
	if handler.IsEnabled() {
		w := camunda.NewWorker(zeebe.GetClient(), handler.GetTaskType(), handler.GetConfig().MaxJobsActive, handler, log)
		defer w.Stop()
	} else {
		zapLog.Info("Worker disabled by configuration", zap.String("worker", compileartifact.WorkerName))
	}

	// --- Health & Metrics Server ---
	var srv *http.Server
	if cfg.Metrics.Enabled {
		srv = &http.Server{Addr: cfg.Metrics.Address, Handler: newMux(zeebe)}
		go func() {
			zapLog.Info("Health/Metrics server listening", zap.String("address", cfg.Metrics.Address))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zapLog.Error("Health/Metrics server failed", zap.Error(err))
			}
		}()
	}

	// --- Graceful Shutdown ---
	<-ctx.Done()
	zapLog.Info("Shutdown signal received, stopping workers...")

	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			zapLog.Error("Health/Metrics server shutdown failed", zap.Error(err))
		}
	}
}

func passKinds(reg *registry.PassRegistry) []models.ArtifactKind {
	seen := make(map[models.ArtifactKind]bool)
	var kinds []models.ArtifactKind
	for _, p := range reg.Passes {
		if !seen[p.ArtifactKind] {
			seen[p.ArtifactKind] = true
			kinds = append(kinds, p.ArtifactKind)
		}
	}
	return kinds
}

func newMux(zeebe *camunda.Client) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "healthy")
	})
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := zeebe.HealthCheck(ctx); err != nil {
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ready")
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
