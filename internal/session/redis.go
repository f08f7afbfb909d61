package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"orqon-dispatch/internal/common/database"
	apperrors "orqon-dispatch/internal/common/errors"
	"orqon-dispatch/internal/models"
)

// Hash fields of a session context key. Each ContextUpdate field maps to one
// hash field so concurrent writers never clobber fields they did not set.
const (
	fieldEntity     = "entity"
	fieldOutcome    = "outcome"
	fieldEntityName = "entity_name"
	fieldUpdatedAt  = "updated_at"
)

func contextKey(prefix, sessionID string) string {
	return fmt.Sprintf("%s:session:%s:context", prefix, sessionID)
}

func bufferKey(prefix, sessionID string) string {
	return fmt.Sprintf("%s:session:%s:buffer", prefix, sessionID)
}

// RedisContextStore keeps each session's context in a hash that expires after
// idleTTL without writes.
type RedisContextStore struct {
	rdb     *database.RedisClient
	prefix  string
	idleTTL time.Duration
	now     func() time.Time
}

func NewRedisContextStore(rdb *database.RedisClient, prefix string, idleTTL time.Duration) *RedisContextStore {
	return &RedisContextStore{rdb: rdb, prefix: prefix, idleTTL: idleTTL, now: time.Now}
}

func (s *RedisContextStore) Get(ctx context.Context, sessionID string) (models.SharedContext, error) {
	vals, err := s.rdb.Client.HGetAll(ctx, contextKey(s.prefix, sessionID)).Result()
	if err != nil {
		return models.SharedContext{}, apperrors.NewSessionStoreError("context_get", err)
	}

	var shared models.SharedContext
	if raw, ok := vals[fieldEntity]; ok {
		var e models.ResolvedEntity
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return models.SharedContext{}, apperrors.NewSessionStoreError("context_decode", err)
		}
		shared.LastResolvedEntity = &e
	}
	if raw, ok := vals[fieldOutcome]; ok {
		var o models.Outcome
		if err := json.Unmarshal([]byte(raw), &o); err != nil {
			return models.SharedContext{}, apperrors.NewSessionStoreError("context_decode", err)
		}
		shared.LastHandlerOutcome = &o
	}
	shared.LastEntityName = vals[fieldEntityName]
	if raw, ok := vals[fieldUpdatedAt]; ok {
		if ts, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			shared.UpdatedAt = ts
		}
	}
	return shared, nil
}

func (s *RedisContextStore) Update(ctx context.Context, sessionID string, update models.ContextUpdate) error {
	if update.IsEmpty() {
		return nil
	}

	fields := map[string]interface{}{
		fieldUpdatedAt: s.now().UTC().Format(time.RFC3339Nano),
	}
	if update.ResolvedEntity != nil {
		raw, err := json.Marshal(update.ResolvedEntity)
		if err != nil {
			return apperrors.NewSessionStoreError("context_encode", err)
		}
		fields[fieldEntity] = raw
	}
	if update.Outcome != nil {
		raw, err := json.Marshal(update.Outcome)
		if err != nil {
			return apperrors.NewSessionStoreError("context_encode", err)
		}
		fields[fieldOutcome] = raw
	}
	if update.EntityName != nil {
		fields[fieldEntityName] = *update.EntityName
	}

	key := contextKey(s.prefix, sessionID)
	_, err := s.rdb.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, fields)
		pipe.Expire(ctx, key, s.idleTTL)
		return nil
	})
	if err != nil {
		return apperrors.NewSessionStoreError("context_update", err)
	}
	return nil
}

func (s *RedisContextStore) Forget(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, contextKey(s.prefix, sessionID)); err != nil {
		return apperrors.NewSessionStoreError("context_forget", err)
	}
	return nil
}

// RedisBufferStore keeps each session's transcript in a capped list.
type RedisBufferStore struct {
	rdb     *database.RedisClient
	prefix  string
	cap     int
	idleTTL time.Duration
}

func NewRedisBufferStore(rdb *database.RedisClient, prefix string, capacity int, idleTTL time.Duration) *RedisBufferStore {
	if capacity <= 0 {
		capacity = DefaultBufferCap
	}
	return &RedisBufferStore{rdb: rdb, prefix: prefix, cap: capacity, idleTTL: idleTTL}
}

func (s *RedisBufferStore) Append(ctx context.Context, sessionID string, entry models.SessionEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return apperrors.NewSessionStoreError("buffer_encode", err)
	}

	key := bufferKey(s.prefix, sessionID)
	_, err = s.rdb.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, raw)
		pipe.LTrim(ctx, key, int64(-s.cap), -1)
		pipe.Expire(ctx, key, s.idleTTL)
		return nil
	})
	if err != nil {
		return apperrors.NewSessionStoreError("buffer_append", err)
	}
	return nil
}

func (s *RedisBufferStore) Recent(ctx context.Context, sessionID string, n int) ([]models.SessionEntry, error) {
	if n <= 0 {
		return []models.SessionEntry{}, nil
	}
	if n > s.cap {
		n = s.cap
	}

	raws, err := s.rdb.Client.LRange(ctx, bufferKey(s.prefix, sessionID), int64(-n), -1).Result()
	if err != nil {
		return nil, apperrors.NewSessionStoreError("buffer_recent", err)
	}

	out := make([]models.SessionEntry, 0, len(raws))
	for _, raw := range raws {
		var e models.SessionEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, apperrors.NewSessionStoreError("buffer_decode", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *RedisBufferStore) Len(ctx context.Context, sessionID string) (int, error) {
	n, err := s.rdb.Client.LLen(ctx, bufferKey(s.prefix, sessionID)).Result()
	if err != nil {
		return 0, apperrors.NewSessionStoreError("buffer_len", err)
	}
	return int(n), nil
}

func (s *RedisBufferStore) Forget(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, bufferKey(s.prefix, sessionID)); err != nil {
		return apperrors.NewSessionStoreError("buffer_forget", err)
	}
	return nil
}
