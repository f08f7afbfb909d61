package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"orqon-dispatch/internal/collaborators/knowledge"
	"orqon-dispatch/internal/collaborators/records"
	"orqon-dispatch/internal/collaborators/similarity"
	"orqon-dispatch/internal/common/database"
	"orqon-dispatch/internal/models"
	"orqon-dispatch/internal/session"
)

const (
	embedderOpenAI = "openai"
	embedderGenAI  = "genai"
	embedderNone   = "none"
)

// buildRecords picks Postgres when configured, otherwise the seeded static
// source, and puts the Redis cache in front when Redis is available.
func (a *App) buildRecords(ctx context.Context, redis *database.RedisClient) error {
	cfg := a.Config
	recLog := a.Logger.With(map[string]interface{}{"component": "records"})

	var inner interface {
		records.Source
		records.TradeStore
	}
	if cfg.Database.Postgres.Enabled() {
		var pg *database.PostgresClient
		err := retryWithBackoff(ctx, func() error {
			var err error
			pg, err = database.NewPostgres(cfg.Database.Postgres)
			if err != nil {
				return err
			}
			return pg.Ping(ctx)
		}, a.retries, a.retryDelay, a.Logger, "PostgreSQL connection")
		if err != nil {
			if pg != nil {
				_ = pg.Close()
			}
			return err
		}
		a.closers = append(a.closers, pg.Close)
		a.checks["postgres"] = pg.Ping
		a.Logger.Info("PostgreSQL connected successfully", map[string]interface{}{"database": cfg.Database.Postgres.Database})
		inner = records.NewPostgresSource(pg)
	} else {
		a.Logger.Warn("no postgres configured, using in-memory records", map[string]interface{}{"records": len(a.seed)})
		inner = records.NewStaticSource(a.seed...)
	}

	if redis == nil {
		a.records, a.store = inner, inner
		return nil
	}
	ttl := time.Duration(cfg.Database.Redis.CacheTTL) * time.Second
	a.cache = records.NewCachedSource(inner, redis, cfg.Session.KeyPrefix, ttl, recLog)
	a.records, a.store = a.cache, a.cache
	return nil
}

func (a *App) buildSessions(redis *database.RedisClient) (session.ContextStore, session.BufferStore, error) {
	cfg := a.Config.Session
	switch cfg.Backend {
	case "redis":
		if redis == nil {
			return nil, nil, fmt.Errorf("session backend redis needs database.redis.address")
		}
		ttl := time.Duration(cfg.IdleTTL) * time.Second
		return session.NewRedisContextStore(redis, cfg.KeyPrefix, ttl),
			session.NewRedisBufferStore(redis, cfg.KeyPrefix, cfg.BufferCap, ttl), nil
	default:
		mem := session.NewMemoryStore(cfg.BufferCap, cfg.MaxSessions)
		return mem, mem, nil
	}
}

// buildIndex returns nil without error when semantic matching is switched off
// or has no credentials.
func (a *App) buildIndex(ctx context.Context) (*similarity.ChromemIndex, error) {
	cfg := a.Config
	embedder, err := a.embedder(ctx)
	if err != nil || embedder == nil {
		return nil, err
	}

	idx, err := similarity.NewChromemIndex(embedder, cfg.Resolver.Collection,
		a.Logger.With(map[string]interface{}{"component": "similarity"}))
	if err != nil {
		return nil, err
	}

	if path := cfg.Resolver.PersistPath; path != "" {
		if err := idx.Load(path); err != nil {
			a.Logger.Warn("persisted index unreadable, rebuilding", map[string]interface{}{"path": path, "error": err.Error()})
		}
		if idx.Count() > 0 {
			a.Logger.Info("similarity index loaded", map[string]interface{}{"path": path, "documents": idx.Count()})
			return idx, nil
		}
	}

	a.index = idx
	if _, _, err := a.RebuildIndex(ctx); err != nil {
		a.index = nil
		return nil, err
	}
	return idx, nil
}

func (a *App) embedder(ctx context.Context) (similarity.Embedder, error) {
	apis := a.Config.APIs
	switch a.Config.Resolver.Embedder {
	case embedderOpenAI:
		if apis.OpenAI.APIKey == "" {
			a.Logger.Warn("no OpenAI key, semantic matching disabled", nil)
			return nil, nil
		}
		return similarity.NewOpenAIEmbedder(apis.OpenAI.APIKey, apis.OpenAI.BaseURL, apis.OpenAI.EmbeddingModel), nil
	case embedderGenAI:
		if apis.GenAI.APIKey == "" {
			a.Logger.Warn("no GenAI key, semantic matching disabled", nil)
			return nil, nil
		}
		return similarity.NewGenAIEmbedder(ctx, apis.GenAI.APIKey, apis.GenAI.EmbeddingModel)
	case embedderNone:
		return nil, nil
	}
	return nil, fmt.Errorf("unknown embedder %q", a.Config.Resolver.Embedder)
}

// RebuildIndex re-embeds every client name from the record source and, when a
// persist path is configured, writes the index to disk. It reports the number
// of records read and documents indexed.
func (a *App) RebuildIndex(ctx context.Context) (int, int, error) {
	if a.index == nil {
		return 0, 0, fmt.Errorf("semantic matching is disabled")
	}
	recs, err := a.records.List(ctx)
	if err != nil {
		return 0, 0, err
	}
	n, err := a.index.Rebuild(ctx, recs)
	if err != nil {
		return len(recs), 0, err
	}
	if path := a.Config.Resolver.PersistPath; path != "" {
		if err := a.index.Persist(path); err != nil {
			return len(recs), n, fmt.Errorf("persist index: %w", err)
		}
	}
	return len(recs), n, nil
}

// SeedKnowledge loads a JSON array of articles from path into the compliance
// knowledge base.
func (a *App) SeedKnowledge(ctx context.Context, path string) (int, error) {
	if a.knowledge == nil {
		return 0, fmt.Errorf("no elasticsearch configured")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var articles []knowledge.Article
	if err := json.Unmarshal(raw, &articles); err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return a.knowledge.Index(ctx, articles)
}

// reindexingStore refreshes the similarity index after trades are logged so
// new clients become resolvable by near matches.
type reindexingStore struct {
	app *App
}

func (s reindexingStore) InsertTrades(ctx context.Context, tickets []models.TradeTicket) error {
	if err := s.app.store.InsertTrades(ctx, tickets); err != nil {
		return err
	}
	if s.app.index == nil {
		return nil
	}
	if _, _, err := s.app.RebuildIndex(ctx); err != nil {
		s.app.Logger.Warn("similarity index refresh failed", map[string]interface{}{"error": err.Error()})
	}
	return nil
}
