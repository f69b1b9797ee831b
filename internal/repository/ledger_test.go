package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keygate/internal/apperror"
	"keygate/internal/model"
	"keygate/internal/store"
)

// flakyStore fails the first n commits with a conflict.
type flakyStore struct {
	store.Store
	conflicts atomic.Int32
	commits   atomic.Int32
}

func (f *flakyStore) Commit(ctx context.Context, writes ...store.Write) error {
	f.commits.Add(1)
	if f.conflicts.Add(-1) >= 0 {
		return store.ErrConflict
	}
	return f.Store.Commit(ctx, writes...)
}

// brokenStore fails every read.
type brokenStore struct {
	store.Store
}

func (brokenStore) Get(context.Context, string) (store.Record, error) {
	return store.Record{}, errors.New("disk on fire")
}

func newRepo(s store.Store) *LedgerRepo {
	return NewLedgerRepo(s, Options{Timeout: time.Second, Retries: 5, Backoff: time.Millisecond})
}

func TestTx_ListCollectionsMaterializeOnFirstRead(t *testing.T) {
	mem := store.NewMemory()
	repo := newRepo(mem)

	err := repo.View(context.Background(), func(tx *Tx) error {
		tokens, err := tx.Tokens()
		require.NoError(t, err)
		assert.Empty(t, tokens)
		return nil
	})
	require.NoError(t, err)

	rec, err := mem.Get(context.Background(), store.TokensKey)
	require.NoError(t, err)
	assert.True(t, rec.Exists())
	assert.Equal(t, "[]", string(rec.Data))
}

func TestTx_AbsentResellerIsNotMaterialized(t *testing.T) {
	mem := store.NewMemory()
	repo := newRepo(mem)

	err := repo.View(context.Background(), func(tx *Tx) error {
		r, err := tx.Reseller("ghost")
		require.NoError(t, err)
		assert.Nil(t, r)
		return nil
	})
	require.NoError(t, err)

	rec, err := mem.Get(context.Background(), store.ResellerKey("ghost"))
	require.NoError(t, err)
	assert.False(t, rec.Exists())
}

func TestUpdate_RetriesOnConflict(t *testing.T) {
	flaky := &flakyStore{Store: store.NewMemory()}
	flaky.conflicts.Store(2)
	repo := newRepo(flaky)

	runs := 0
	err := repo.Update(context.Background(), func(tx *Tx) error {
		runs++
		tokens, err := tx.Tokens()
		if err != nil {
			return err
		}
		return tx.SetTokens(append(tokens, "abc123"))
	})
	require.NoError(t, err)
	assert.Equal(t, 3, runs)

	err = repo.View(context.Background(), func(tx *Tx) error {
		tokens, err := tx.Tokens()
		require.NoError(t, err)
		assert.Equal(t, []string{"abc123"}, tokens)
		return nil
	})
	require.NoError(t, err)
}

func TestUpdate_ConflictsExhausted(t *testing.T) {
	flaky := &flakyStore{Store: store.NewMemory()}
	flaky.conflicts.Store(100)
	repo := newRepo(flaky)

	err := repo.Update(context.Background(), func(tx *Tx) error {
		return tx.SetTokens([]string{"x"})
	})
	assert.ErrorIs(t, err, apperror.ErrStorageFailure)
	assert.Equal(t, int32(6), flaky.commits.Load())
}

func TestUpdate_BusinessErrorIsNotRetried(t *testing.T) {
	repo := newRepo(store.NewMemory())

	runs := 0
	err := repo.Update(context.Background(), func(tx *Tx) error {
		runs++
		return apperror.ErrInvalidToken
	})
	assert.ErrorIs(t, err, apperror.ErrInvalidToken)
	assert.Equal(t, 1, runs)
}

func TestUpdate_StorageFaultIsReported(t *testing.T) {
	repo := newRepo(brokenStore{Store: store.NewMemory()})

	err := repo.Update(context.Background(), func(tx *Tx) error {
		_, err := tx.Tokens()
		return err
	})
	assert.ErrorIs(t, err, apperror.ErrStorageFailure)
}

func TestTx_StagedValuesAreVisible(t *testing.T) {
	repo := newRepo(store.NewMemory())

	err := repo.Update(context.Background(), func(tx *Tx) error {
		require.NoError(t, tx.PutReseller(model.Reseller{Username: "bob", Credits: 20}))
		r, err := tx.Reseller("bob")
		require.NoError(t, err)
		require.NotNil(t, r)
		assert.Equal(t, int64(20), r.Credits)

		require.NoError(t, tx.DeleteReseller("bob"))
		r, err = tx.Reseller("bob")
		require.NoError(t, err)
		assert.Nil(t, r)
		return nil
	})
	require.NoError(t, err)
}

func TestUpdate_ConcurrentAppendsAreNotLost(t *testing.T) {
	repo := NewLedgerRepo(store.NewMemory(), Options{Timeout: time.Second, Retries: 200, Backoff: time.Millisecond})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Update(context.Background(), func(tx *Tx) error {
				events, err := tx.Usage()
				if err != nil {
					return err
				}
				return tx.SetUsage(append(events, model.UsageEvent{Endpoint: "/api/verify/pubg"}))
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	err := repo.View(context.Background(), func(tx *Tx) error {
		events, err := tx.Usage()
		require.NoError(t, err)
		assert.Len(t, events, 20)
		return nil
	})
	require.NoError(t, err)
}

func TestTx_GuardKeysRetriesWhenKeyListMoves(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	repo := newRepo(mem)
	require.NoError(t, repo.Update(ctx, func(tx *Tx) error {
		return tx.SetKeys("bob", []model.Key{{ID: "k1", CreatedBy: "bob"}})
	}))

	attempts := 0
	err := repo.Update(ctx, func(tx *Tx) error {
		attempts++
		keys, err := tx.Keys("bob")
		if err != nil {
			return err
		}
		if attempts == 1 {
			// k1 is deleted between this read and the commit.
			rec, err := mem.Get(ctx, store.KeysKey("bob"))
			require.NoError(t, err)
			require.NoError(t, mem.Commit(ctx, store.Write{Key: store.KeysKey("bob"), Version: rec.Version, Data: []byte(`[]`)}))
		}
		if len(keys) == 0 {
			return apperror.ErrInvalidKey
		}
		if err := tx.GuardKeys("bob"); err != nil {
			return err
		}
		return tx.SetVerifications(keys[0].ID, []model.VerificationEvent{{ID: "e1", KeyID: "k1"}})
	})
	require.ErrorIs(t, err, apperror.ErrInvalidKey)
	assert.Equal(t, 2, attempts)

	rec, err := mem.Get(ctx, store.VerificationsKey("k1"))
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(rec.Data))
}

func TestTx_GuardKeysLeavesKeyListUntouched(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	repo := newRepo(mem)
	require.NoError(t, repo.Update(ctx, func(tx *Tx) error {
		return tx.SetKeys("bob", []model.Key{{ID: "k1", CreatedBy: "bob"}})
	}))
	before, err := mem.Get(ctx, store.KeysKey("bob"))
	require.NoError(t, err)

	require.NoError(t, repo.Update(ctx, func(tx *Tx) error {
		if _, err := tx.Keys("bob"); err != nil {
			return err
		}
		if err := tx.GuardKeys("bob"); err != nil {
			return err
		}
		keys, err := tx.Keys("bob")
		require.NoError(t, err)
		require.Len(t, keys, 1)
		return tx.SetVerifications("k1", []model.VerificationEvent{{ID: "e1", KeyID: "k1"}})
	}))

	after, err := mem.Get(ctx, store.KeysKey("bob"))
	require.NoError(t, err)
	assert.Equal(t, before, after)

	rec, err := mem.Get(ctx, store.VerificationsKey("k1"))
	require.NoError(t, err)
	assert.Contains(t, string(rec.Data), `"e1"`)
}
