package store

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runConformance exercises the Store contract against any backend.
func runConformance(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("absent collection", func(t *testing.T) {
		rec, err := s.Get(ctx, "absent")
		require.NoError(t, err)
		assert.False(t, rec.Exists())
	})

	t.Run("init is create-if-absent", func(t *testing.T) {
		require.NoError(t, s.Init(ctx, "tokens", []byte(`[]`)))
		require.NoError(t, s.Commit(ctx, Write{Key: "tokens", Version: 1, Data: []byte(`["a"]`)}))
		require.NoError(t, s.Init(ctx, "tokens", []byte(`[]`)))

		rec, err := s.Get(ctx, "tokens")
		require.NoError(t, err)
		assert.Equal(t, int64(2), rec.Version)
		assert.JSONEq(t, `["a"]`, string(rec.Data))
	})

	t.Run("stale version conflicts", func(t *testing.T) {
		require.NoError(t, s.Commit(ctx, Write{Key: "reseller:bob", Version: 0, Data: []byte(`{"credits":20}`)}))

		err := s.Commit(ctx, Write{Key: "reseller:bob", Version: 0, Data: []byte(`{"credits":1}`)})
		assert.ErrorIs(t, err, ErrConflict)

		rec, err := s.Get(ctx, "reseller:bob")
		require.NoError(t, err)
		assert.JSONEq(t, `{"credits":20}`, string(rec.Data))
	})

	t.Run("commit is all or nothing", func(t *testing.T) {
		require.NoError(t, s.Commit(ctx, Write{Key: "keys:amy", Version: 0, Data: []byte(`[]`)}))

		err := s.Commit(ctx,
			Write{Key: "keys:amy", Version: 1, Data: []byte(`[{"id":"k1"}]`)},
			Write{Key: "reseller:amy", Version: 7, Data: []byte(`{}`)},
		)
		assert.ErrorIs(t, err, ErrConflict)

		rec, err := s.Get(ctx, "keys:amy")
		require.NoError(t, err)
		assert.Equal(t, int64(1), rec.Version)
		assert.JSONEq(t, `[]`, string(rec.Data))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Commit(ctx, Write{Key: "reseller:gone", Version: 0, Data: []byte(`{}`)}))
		assert.ErrorIs(t, s.Commit(ctx, Write{Key: "reseller:gone", Version: 4, Delete: true}), ErrConflict)
		require.NoError(t, s.Commit(ctx, Write{Key: "reseller:gone", Version: 1, Delete: true}))

		rec, err := s.Get(ctx, "reseller:gone")
		require.NoError(t, err)
		assert.False(t, rec.Exists())
	})

	t.Run("check asserts the version without writing", func(t *testing.T) {
		require.NoError(t, s.Commit(ctx, Write{Key: "keys:cat", Version: 0, Data: []byte(`[{"id":"k1"}]`)}))
		require.NoError(t, s.Commit(ctx, Write{Key: "verifications:k1", Version: 0, Data: []byte(`[]`)}))

		require.NoError(t, s.Commit(ctx,
			Write{Key: "keys:cat", Version: 1, Check: true},
			Write{Key: "verifications:k1", Version: 1, Data: []byte(`[{"id":"e1"}]`)},
		))
		rec, err := s.Get(ctx, "keys:cat")
		require.NoError(t, err)
		assert.Equal(t, int64(1), rec.Version)
		assert.JSONEq(t, `[{"id":"k1"}]`, string(rec.Data))

		require.NoError(t, s.Commit(ctx, Write{Key: "keys:cat", Version: 1, Data: []byte(`[]`)}))
		err = s.Commit(ctx,
			Write{Key: "keys:cat", Version: 1, Check: true},
			Write{Key: "verifications:k1", Version: 2, Data: []byte(`[{"id":"e1"},{"id":"e2"}]`)},
		)
		assert.ErrorIs(t, err, ErrConflict)

		rec, err = s.Get(ctx, "verifications:k1")
		require.NoError(t, err)
		assert.Equal(t, int64(2), rec.Version)
		assert.JSONEq(t, `[{"id":"e1"}]`, string(rec.Data))
	})

	t.Run("concurrent writers on one version", func(t *testing.T) {
		require.NoError(t, s.Init(ctx, "usage", []byte(`[]`)))

		var (
			wg   sync.WaitGroup
			wins atomic.Int32
		)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.Commit(ctx, Write{Key: "usage", Version: 1, Data: []byte(`[1]`)})
				if err == nil {
					wins.Add(1)
				} else if !errors.Is(err, ErrConflict) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})
}

func TestMemory(t *testing.T) {
	runConformance(t, NewMemory())
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Init(ctx, "tokens", []byte(`["abc"]`)))

	rec, err := m.Get(ctx, "tokens")
	require.NoError(t, err)
	rec.Data[2] = 'X'

	again, err := m.Get(ctx, "tokens")
	require.NoError(t, err)
	assert.Equal(t, `["abc"]`, string(again.Data))
}

func TestCommit_RejectsMalformedWrites(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	assert.Error(t, m.Commit(ctx, Write{Key: "", Data: []byte(`{}`)}))
	assert.Error(t, m.Commit(ctx, Write{Key: "a"}, Write{Key: "a"}))
	assert.Error(t, m.Commit(ctx, Write{Key: "a", Delete: true}))
	assert.Error(t, m.Commit(ctx, Write{Key: "a", Check: true}))
	assert.Error(t, m.Commit(ctx, Write{Key: "a", Version: 1, Check: true, Delete: true}))
}

func TestDefaultFor(t *testing.T) {
	assert.Equal(t, "[]", string(DefaultFor(TokensKey)))
	assert.Equal(t, "[]", string(DefaultFor(KeysKey("bob"))))
	assert.Equal(t, "[]", string(DefaultFor(VerificationsKey("k1"))))
	assert.Equal(t, "{}", string(DefaultFor(AdminKey)))
	assert.Equal(t, "{}", string(DefaultFor(ResellerKey("bob"))))
}

func TestRedis(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	client.FlushDB(ctx)
	t.Cleanup(func() {
		client.FlushDB(ctx)
		client.Close()
	})

	runConformance(t, NewRedis(client, "keygate-test"))
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("KEYGATE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("KEYGATE_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	require.NoError(t, RunMigrations(ctx, dsn, "up"))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `TRUNCATE records`)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	runConformance(t, NewPostgres(pool))
}
