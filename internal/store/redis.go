package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

//go:embed commit.lua
var commitLuaScript string

//go:embed init.lua
var initLuaScript string

var (
	commitScript = redis.NewScript(commitLuaScript)
	initScript   = redis.NewScript(initLuaScript)
)

// Redis keeps each collection in a hash with fields "v" (version) and "d"
// (JSON data). All keys share one hash tag so multi-key commits stay in a
// single cluster slot.
type Redis struct {
	client *redis.Client
	prefix string
}

func NewRedis(client *redis.Client, namespace string) *Redis {
	if namespace == "" {
		namespace = "keygate"
	}
	return &Redis{client: client, prefix: "{" + namespace + "}:"}
}

func (r *Redis) key(k string) string { return r.prefix + k }

func (r *Redis) Get(ctx context.Context, key string) (Record, error) {
	vals, err := r.client.HMGet(ctx, r.key(key), "v", "d").Result()
	if err != nil {
		return Record{}, fmt.Errorf("redis hmget %s: %w", key, err)
	}
	if len(vals) != 2 || vals[0] == nil {
		return Record{}, nil
	}

	vs, ok := vals[0].(string)
	if !ok {
		return Record{}, fmt.Errorf("redis %s: unexpected version type %T", key, vals[0])
	}
	version, err := strconv.ParseInt(vs, 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("redis %s: bad version %q: %w", key, vs, err)
	}
	data, _ := vals[1].(string)
	return Record{Data: []byte(data), Version: version}, nil
}

func (r *Redis) Init(ctx context.Context, key string, def []byte) error {
	if err := initScript.Run(ctx, r.client, []string{r.key(key)}, string(def)).Err(); err != nil {
		return fmt.Errorf("redis init %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Commit(ctx context.Context, writes ...Write) error {
	if err := validate(writes); err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}

	keys := make([]string, 0, len(writes))
	args := make([]interface{}, 0, len(writes)*3)
	for _, w := range writes {
		keys = append(keys, r.key(w.Key))
		op := "set"
		switch {
		case w.Check:
			op = "chk"
		case w.Delete:
			op = "del"
		}
		args = append(args, w.Version, op, string(w.Data))
	}

	res, err := commitScript.Run(ctx, r.client, keys, args...).Int64()
	if err != nil {
		return fmt.Errorf("error executing commit script: %w", err)
	}
	switch res {
	case 1:
		return nil
	case 0:
		return ErrConflict
	default:
		return errors.New("unexpected response from commit script")
	}
}

func (r *Redis) Close() error {
	return r.client.Close()
}
