package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/RaghavMittal2005/speech2speech/checkpoint"
	"github.com/RaghavMittal2005/speech2speech/config"
	"github.com/RaghavMittal2005/speech2speech/graph"
	"github.com/RaghavMittal2005/speech2speech/llm"
	"github.com/RaghavMittal2005/speech2speech/sandbox"
)

// app is the wired process: executor, its store and the metrics endpoint.
type app struct {
	exec     *graph.Executor
	registry *prometheus.Registry
	closers  []func() error
}

type appBuilder func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error)

// threadStore is the checkpoint store on its own, for commands that inspect
// history without a model or tools.
type threadStore struct {
	store  checkpoint.Store
	lister checkpoint.Lister
	close  func() error
}

type storeOpener func(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*threadStore, error)

// Close releases the underlying database, if any.
func (s *threadStore) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// Close stops the executor and releases resources in reverse order.
func (a *app) Close() error {
	if a.exec != nil {
		a.exec.Close()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	a := &app{registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	client, err := newModelClient(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, client.Close)

	tools, err := newToolRegistry(cfg, logger, a.registry)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	threads, err := openThreadStore(ctx, cfg, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.closers = append(a.closers, threads.Close)

	guard, err := cfg.Guard.Build()
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	execCfg := cfg.Executor()
	a.exec, err = graph.NewExecutor(graph.Options{
		Client:   client,
		Tools:    tools,
		Store:    threads.store,
		Guard:    guard,
		Logger:   logger,
		Registry: a.registry,
	}, &execCfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	if cfg.Metrics.Addr != "" {
		if err := a.serveMetrics(cfg.Metrics.Addr, logger); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	return a, nil
}

func newModelClient(cfg *config.Config, logger *zap.Logger) (*llm.Client, error) {
	opts := []llm.GollmAdapterOption{
		llm.WithAPIKey(cfg.LLM.APIKey),
		llm.WithModel(cfg.LLM.Model),
	}
	if cfg.LLM.MaxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(cfg.LLM.MaxTokens))
	}
	if cfg.LLM.Temperature != nil {
		opts = append(opts, llm.WithTemperature(*cfg.LLM.Temperature))
	}

	adapter, err := llm.NewGollmAdapter(cfg.LLM.Provider, opts...)
	if err != nil {
		return nil, err
	}
	return llm.NewClient(adapter,
		llm.WithDefaultModel(cfg.LLM.Model),
		llm.WithMiddleware(
			llm.LoggingMiddleware(logger),
			llm.RetryMiddleware(cfg.RetryPolicy(), logger),
		),
	), nil
}

func newToolRegistry(cfg *config.Config, logger *zap.Logger, registry *prometheus.Registry) (*sandbox.Registry, error) {
	box := cfg.SandboxToolbox()
	metrics := sandbox.NewMetrics(registry)
	tb := sandbox.NewToolbox(box, sandbox.NewOsFs(box.WorkDir), sandbox.NewShellRunner(), logger, metrics)
	return sandbox.NewCoreRegistry(tb, logger, metrics)
}

// openThreadStore opens the configured checkpoint store wrapped in retries.
// Only the checkpoint section of cfg is validated.
func openThreadStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*threadStore, error) {
	if err := cfg.Checkpoint.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	ts := &threadStore{}
	var inner checkpoint.Store
	switch cfg.Checkpoint.Driver {
	case "memory":
		mem := checkpoint.NewMemory()
		inner, ts.lister = mem, mem
	default:
		db, err := checkpoint.OpenSQLite(ctx, cfg.Checkpoint.Path, logger)
		if err != nil {
			return nil, err
		}
		inner, ts.lister, ts.close = db, db, db.Close
	}
	ts.store = checkpoint.NewRetrying(inner, cfg.Checkpoint.MaxTries, cfg.Checkpoint.RetryInitial.Std(), logger)
	return ts, nil
}

func (a *app) serveMetrics(addr string, logger *zap.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen for metrics on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
	return nil
}
