// Package app builds the orchestrator from configuration.
package app

import (
	"context"
	"fmt"
	"time"

	"orqon-dispatch/internal/collaborators/knowledge"
	"orqon-dispatch/internal/collaborators/records"
	"orqon-dispatch/internal/collaborators/similarity"
	"orqon-dispatch/internal/common/config"
	"orqon-dispatch/internal/common/database"
	"orqon-dispatch/internal/common/logger"
	"orqon-dispatch/internal/common/observability"
	"orqon-dispatch/internal/dispatch"
	"orqon-dispatch/internal/models"
	"orqon-dispatch/internal/resolver"
	"orqon-dispatch/internal/transport"
)

// App holds the dispatcher and the clients it was built from.
type App struct {
	Config     *config.Config
	Logger     logger.Logger
	Dispatcher *dispatch.Dispatcher

	records   records.Source
	store     records.TradeStore
	cache     *records.CachedSource
	index     *similarity.ChromemIndex
	knowledge *knowledge.ElasticSearcher
	obs       *observability.Observability
	checks    map[string]transport.Check
	closers   []func() error

	seed         []models.Record
	retries      int
	retryDelay   time.Duration
	observeLocal bool
}

type Option func(*App)

// WithRecords seeds the in-memory record source used when no database is
// configured.
func WithRecords(recs ...models.Record) Option {
	return func(a *App) { a.seed = recs }
}

// WithConnectRetries sets how often database connections are attempted.
func WithConnectRetries(n int, delay time.Duration) Option {
	return func(a *App) { a.retries, a.retryDelay = n, delay }
}

// WithoutTelemetry skips the otel providers. Tests and one-shot commands use it.
func WithoutTelemetry() Option {
	return func(a *App) { a.observeLocal = true }
}

// New connects every configured backend and wires the dispatcher. Optional
// collaborators that are not configured fall back to in-memory versions.
func New(ctx context.Context, cfg *config.Config, log logger.Logger, opts ...Option) (*App, error) {
	a := &App{
		Config:     cfg,
		Logger:     log,
		checks:     make(map[string]transport.Check),
		retries:    10,
		retryDelay: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.observeLocal {
		a.obs = observability.NewNoop()
	} else {
		a.obs = observability.New(observability.Options{
			ServiceName:    cfg.Observability.ServiceName,
			JaegerEndpoint: cfg.Observability.JaegerEndpoint,
			SampleRatio:    cfg.Observability.SampleRatio,
		}, log)
	}

	if err := a.build(ctx); err != nil {
		a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg := a.Config

	redis, err := a.connectRedis(ctx)
	if err != nil {
		return err
	}
	if err := a.buildRecords(ctx, redis); err != nil {
		return err
	}
	if err := a.buildKnowledge(ctx); err != nil {
		return err
	}

	contexts, buffer, err := a.buildSessions(redis)
	if err != nil {
		return err
	}

	var simIndex resolver.SimilarityIndex
	if idx, err := a.buildIndex(ctx); err != nil {
		a.Logger.Warn("similarity index unavailable, semantic matching disabled", map[string]interface{}{"error": err.Error()})
	} else if idx != nil {
		a.index = idx
		simIndex = idx
	}
	res := resolver.New(simIndex, cfg.Resolver.SemanticThreshold, a.Logger.With(map[string]interface{}{"component": "resolver"}))

	collab, err := a.buildCollaborators(ctx)
	if err != nil {
		return err
	}
	fallback, handlers, err := a.buildHandlers(collab)
	if err != nil {
		return err
	}
	registry, err := dispatch.NewRegistry(fallback, handlers...)
	if err != nil {
		return err
	}

	timeouts := make(map[string]time.Duration, len(cfg.Handlers))
	for name, h := range cfg.Handlers {
		timeouts[name] = config.GetDuration(h.Timeout)
	}

	a.Dispatcher, err = dispatch.New(dispatch.Deps{
		Registry:      registry,
		Classifier:    a.buildClassifier(collab.llm),
		Contexts:      contexts,
		Buffer:        buffer,
		Resolver:      res,
		Records:       a.records,
		Observability: a.obs,
		Logger:        a.Logger.With(map[string]interface{}{"component": "dispatcher"}),
	}, dispatch.Config{
		MaxQueryLength: cfg.Dispatch.MaxQueryLength,
		TurnTimeout:    config.GetDuration(cfg.Dispatch.TurnTimeout),
		Timeouts:       timeouts,
	})
	if err != nil {
		return err
	}

	names := make([]string, 0, len(handlers))
	for _, h := range registry.Handlers() {
		names = append(names, fmt.Sprintf("%s:%d", h.Name, h.Rank))
	}
	a.Logger.Info("dispatcher ready", map[string]interface{}{
		"handlers":       names,
		"sessionBackend": cfg.Session.Backend,
		"semantic":       a.index != nil,
	})
	return nil
}

func (a *App) connectRedis(ctx context.Context) (*database.RedisClient, error) {
	cfg := a.Config
	if cfg.Database.Redis.Address == "" {
		return nil, nil
	}

	var rdb *database.RedisClient
	err := retryWithBackoff(ctx, func() error {
		var err error
		rdb, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, a.retries, a.retryDelay, a.Logger, "Redis connection")
	if err != nil {
		if rdb != nil {
			_ = rdb.Close()
		}
		return nil, err
	}

	a.closers = append(a.closers, rdb.Close)
	a.checks["redis"] = rdb.Ping
	a.Logger.Info("Redis connected successfully", map[string]interface{}{"address": cfg.Database.Redis.Address})
	return rdb, nil
}

func (a *App) buildKnowledge(ctx context.Context) error {
	esCfg := a.Config.Database.Elasticsearch
	if esCfg.GetURL() == "" {
		a.Logger.Warn("no elasticsearch configured, compliance guidance answers from nothing", nil)
		return nil
	}

	var es *database.ElasticsearchClient
	err := retryWithBackoff(ctx, func() error {
		var err error
		es, err = database.NewElasticsearch(esCfg)
		if err != nil {
			return err
		}
		return es.Ping(ctx)
	}, a.retries, a.retryDelay, a.Logger, "Elasticsearch connection")
	if err != nil {
		return err
	}

	a.knowledge = knowledge.NewElasticSearcher(es.Client, esCfg.Index)
	a.checks["elasticsearch"] = es.Ping
	a.Logger.Info("Elasticsearch connected successfully", map[string]interface{}{"index": esCfg.Index})
	return nil
}

// Checks returns readiness probes for the connected backends.
func (a *App) Checks() map[string]transport.Check {
	out := make(map[string]transport.Check, len(a.checks))
	for k, v := range a.checks {
		out[k] = v
	}
	return out
}

// Close flushes telemetry and closes every client, newest first.
func (a *App) Close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("close failed", map[string]interface{}{"error": err.Error()})
		}
	}
	a.closers = nil
	if a.obs != nil {
		a.obs.Shutdown(ctx)
	}
}
