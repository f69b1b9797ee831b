package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"keygate/internal/apperror"
	"keygate/internal/model"
	"keygate/internal/store"
)

type Options struct {
	// Timeout bounds every individual store call.
	Timeout time.Duration
	// Retries is how many times a conflicting commit is re-run.
	Retries uint64
	// Backoff is the base delay of the exponential retry backoff.
	Backoff time.Duration
}

// LedgerRepo runs read-modify-write cycles against the record store as
// optimistic transactions: collections are read with their versions, writes
// are staged, and the commit fails if any written collection moved. Conflicts
// are retried with exponential backoff.
type LedgerRepo struct {
	store store.Store
	opts  Options
}

func NewLedgerRepo(s store.Store, opts Options) *LedgerRepo {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	if opts.Retries == 0 {
		opts.Retries = 8
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 5 * time.Millisecond
	}
	return &LedgerRepo{store: s, opts: opts}
}

var errConflictExhausted = apperror.New(apperror.KindStorageFailure, "concurrent update, please retry")

// Update runs fn in a transaction and commits its staged writes. fn may run
// more than once; it must not have side effects outside tx. Errors returned
// by fn abort the transaction without retry.
func (r *LedgerRepo) Update(ctx context.Context, fn func(tx *Tx) error) error {
	backoff := retry.NewExponential(r.opts.Backoff)
	backoff = retry.WithJitterPercent(20, backoff)
	backoff = retry.WithCappedDuration(100*time.Millisecond, backoff)
	backoff = retry.WithMaxRetries(r.opts.Retries, backoff)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		tx := newTx(ctx, r)
		if err := fn(tx); err != nil {
			return err
		}
		err := tx.commit()
		if errors.Is(err, store.ErrConflict) {
			slog.Debug("commit conflict, retrying", "collections", tx.writeKeys())
			return retry.RetryableError(err)
		}
		return err
	})
	if errors.Is(err, store.ErrConflict) {
		return errConflictExhausted
	}
	return err
}

// View runs fn once without committing.
func (r *LedgerRepo) View(ctx context.Context, fn func(tx *Tx) error) error {
	return fn(newTx(ctx, r))
}

// Tx is one attempt of a transaction.
type Tx struct {
	ctx    context.Context
	repo   *LedgerRepo
	reads  map[string]store.Record
	writes []store.Write
	staged map[string]int
}

func newTx(ctx context.Context, r *LedgerRepo) *Tx {
	return &Tx{
		ctx:    ctx,
		repo:   r,
		reads:  make(map[string]store.Record),
		staged: make(map[string]int),
	}
}

func (tx *Tx) get(key string) (store.Record, error) {
	if rec, ok := tx.reads[key]; ok {
		return rec, nil
	}

	ctx, cancel := context.WithTimeout(tx.ctx, tx.repo.opts.Timeout)
	defer cancel()

	rec, err := tx.repo.store.Get(ctx, key)
	if err != nil {
		return store.Record{}, apperror.Storage("read "+key, err)
	}
	if !rec.Exists() && store.IsListKey(key) {
		// First read materializes the empty collection.
		if err := tx.repo.store.Init(ctx, key, store.DefaultFor(key)); err != nil {
			return store.Record{}, apperror.Storage("init "+key, err)
		}
		if rec, err = tx.repo.store.Get(ctx, key); err != nil {
			return store.Record{}, apperror.Storage("read "+key, err)
		}
	}
	tx.reads[key] = rec
	return rec, nil
}

// load decodes the collection into v, preferring this transaction's staged
// value. It reports whether the collection exists.
func (tx *Tx) load(key string, v any) (bool, error) {
	if i, ok := tx.staged[key]; ok && !tx.writes[i].Check {
		w := tx.writes[i]
		if w.Delete {
			return false, nil
		}
		return true, json.Unmarshal(w.Data, v)
	}

	rec, err := tx.get(key)
	if err != nil {
		return false, err
	}
	if !rec.Exists() {
		return false, nil
	}
	if err := json.Unmarshal(rec.Data, v); err != nil {
		return false, apperror.Storage("decode "+key, err)
	}
	return true, nil
}

func (tx *Tx) put(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if string(data) == "null" {
		data = store.DefaultFor(key)
	}
	return tx.stage(store.Write{Key: key, Data: data})
}

func (tx *Tx) remove(key string) error {
	return tx.stage(store.Write{Key: key, Delete: true})
}

func (tx *Tx) stage(w store.Write) error {
	rec, err := tx.get(w.Key)
	if err != nil {
		return err
	}
	if w.Delete && !rec.Exists() {
		return nil
	}
	w.Version = rec.Version
	if i, ok := tx.staged[w.Key]; ok {
		tx.writes[i] = w
		return nil
	}
	tx.staged[w.Key] = len(tx.writes)
	tx.writes = append(tx.writes, w)
	return nil
}

// guard fails the commit if key moved since this transaction read it,
// without writing key. A staged write already carries the same check.
func (tx *Tx) guard(key string) error {
	if _, ok := tx.staged[key]; ok {
		return nil
	}
	rec, err := tx.get(key)
	if err != nil || !rec.Exists() {
		return err
	}
	tx.staged[key] = len(tx.writes)
	tx.writes = append(tx.writes, store.Write{Key: key, Version: rec.Version, Check: true})
	return nil
}

func (tx *Tx) commit() error {
	if len(tx.writes) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(tx.ctx, tx.repo.opts.Timeout)
	defer cancel()

	err := tx.repo.store.Commit(ctx, tx.writes...)
	if errors.Is(err, store.ErrConflict) {
		return err
	}
	return apperror.Storage("commit", err)
}

func (tx *Tx) writeKeys() []string {
	keys := make([]string, 0, len(tx.writes))
	for _, w := range tx.writes {
		keys = append(keys, w.Key)
	}
	return keys
}

// Usernames returns the registered reseller usernames in registration order.
func (tx *Tx) Usernames() ([]string, error) {
	var names []string
	_, err := tx.load(store.ResellersKey, &names)
	return names, err
}

func (tx *Tx) SetUsernames(names []string) error {
	return tx.put(store.ResellersKey, names)
}

// Reseller returns nil when the username is not registered.
func (tx *Tx) Reseller(username string) (*model.Reseller, error) {
	var r model.Reseller
	ok, err := tx.load(store.ResellerKey(username), &r)
	if err != nil || !ok {
		return nil, err
	}
	return &r, nil
}

func (tx *Tx) PutReseller(r model.Reseller) error {
	return tx.put(store.ResellerKey(r.Username), r)
}

func (tx *Tx) DeleteReseller(username string) error {
	return tx.remove(store.ResellerKey(username))
}

func (tx *Tx) Tokens() ([]string, error) {
	var tokens []string
	_, err := tx.load(store.TokensKey, &tokens)
	return tokens, err
}

func (tx *Tx) SetTokens(tokens []string) error {
	return tx.put(store.TokensKey, tokens)
}

func (tx *Tx) Keys(username string) ([]model.Key, error) {
	var keys []model.Key
	_, err := tx.load(store.KeysKey(username), &keys)
	return keys, err
}

func (tx *Tx) SetKeys(username string, keys []model.Key) error {
	return tx.put(store.KeysKey(username), keys)
}

// GuardKeys ties the commit to the reseller's key list as it was read, so a
// concurrent issue or delete forces a retry.
func (tx *Tx) GuardKeys(username string) error {
	return tx.guard(store.KeysKey(username))
}

func (tx *Tx) Verifications(keyID string) ([]model.VerificationEvent, error) {
	var events []model.VerificationEvent
	_, err := tx.load(store.VerificationsKey(keyID), &events)
	return events, err
}

func (tx *Tx) SetVerifications(keyID string, events []model.VerificationEvent) error {
	return tx.put(store.VerificationsKey(keyID), events)
}

func (tx *Tx) Usage() ([]model.UsageEvent, error) {
	var events []model.UsageEvent
	_, err := tx.load(store.UsageKey, &events)
	return events, err
}

func (tx *Tx) SetUsage(events []model.UsageEvent) error {
	return tx.put(store.UsageKey, events)
}

// Admin returns nil until the admin credential has been seeded.
func (tx *Tx) Admin() (*model.Admin, error) {
	var a model.Admin
	ok, err := tx.load(store.AdminKey, &a)
	if err != nil || !ok || a.Username == "" {
		return nil, err
	}
	return &a, nil
}

func (tx *Tx) PutAdmin(a model.Admin) error {
	return tx.put(store.AdminKey, a)
}
