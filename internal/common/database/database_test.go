package database

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orqon-dispatch/internal/common/config"
)

// ==========================
// Postgres Tests
// ==========================

func TestInTx(t *testing.T) {
	t.Run("commits", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO trade_blotter").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		err = WrapPostgres(db).InTx(context.Background(), func(tx *sql.Tx) error {
			_, err := tx.Exec("INSERT INTO trade_blotter (ticket_id) VALUES ($1)", "TKT-1")
			return err
		})
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectRollback()

		boom := errors.New("boom")
		err = WrapPostgres(db).InTx(context.Background(), func(*sql.Tx) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("begin fails", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

		err = WrapPostgres(db).InTx(context.Background(), func(*sql.Tx) error { return nil })
		require.Error(t, err)
		assert.Contains(t, err.Error(), "begin tx")
	})
}

func TestPostgresPing(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	mock.ExpectPing()
	c := WrapPostgres(db)
	require.NoError(t, c.Ping(context.Background()))
	mock.ExpectClose()
	require.NoError(t, c.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Redis Tests
// ==========================

func TestNewRedis_RequiresAddress(t *testing.T) {
	_, err := NewRedis(config.RedisConfig{})
	require.Error(t, err)
}

func TestRedisClient_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewRedis(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Ping(ctx))
	require.NoError(t, c.Set(ctx, "orqon:records:all", "[]", time.Minute))

	got, err := c.Get(ctx, "orqon:records:all")
	require.NoError(t, err)
	assert.Equal(t, "[]", got)

	mr.FastForward(2 * time.Minute)
	_, err = c.Get(ctx, "orqon:records:all")
	assert.ErrorIs(t, err, redis.Nil)

	require.NoError(t, c.Set(ctx, "k", "v", 0))
	require.NoError(t, c.Del(ctx, "k"))
	assert.False(t, mr.Exists("k"))
}

func TestRedisClient_PingFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	c := WrapRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	mr.Close()

	err := c.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
	assert.NoError(t, c.Close())
}

// ==========================
// Elasticsearch Tests
// ==========================

func TestNewElasticsearch_RequiresAddress(t *testing.T) {
	_, err := NewElasticsearch(config.ElasticsearchConfig{})
	require.Error(t, err)
}

func TestElasticsearchPing(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "healthy", status: http.StatusOK},
		{name: "unavailable", status: http.StatusServiceUnavailable, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Elastic-Product", "Elasticsearch")
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c, err := NewElasticsearch(config.ElasticsearchConfig{URL: srv.URL})
			require.NoError(t, err)

			err = c.Ping(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
