package store

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

const redisKeyPrefix = "uci:"
const metaValueField = "value"
const metaUpdatedAtField = "updated_at"

// Redis persists every store key as a Redis hash: a "value" field plus one
// field per metadata tag (type, array, ...). It additionally stamps
// "updated_at" (Unix seconds) on every key each Commit writes.
type Redis struct {
	client *redis.Client
}

// NewRedis connects to addr (host:port) and selects db.
func NewRedis(addr string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "connect to redis")
	}
	return &Redis{client: client}, nil
}

func redisKey(key string) string {
	return redisKeyPrefix + key
}

func (r *Redis) Open(root string) (Txn, error) {
	ctx := context.Background()
	preload, err := r.Walk(root)
	if err != nil {
		return nil, errors.Wrapf(err, "preload %s", root)
	}
	m := make(map[string]Entry, len(preload))
	for _, e := range preload {
		m[e.Key] = e
	}
	return &redisTxn{client: r.client, ctx: ctx, root: root, preload: m, staged: make(map[string]Entry)}, nil
}

func (r *Redis) Walk(root string) ([]Entry, error) {
	ctx := context.Background()
	pattern := redisKey(root) + "*"
	var out []Entry
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, errors.Wrap(err, "scan")
		}
		for _, rk := range keys {
			key := strings.TrimPrefix(rk, redisKeyPrefix)
			// The SCAN glob is prefix-based, so it also matches sibling keys
			// that merely share root as a leading substring ("network" vs
			// "networking"); keep only root itself and its descendants.
			if key != root && !strings.HasPrefix(key, root+"/") {
				continue
			}
			fields, err := r.client.HGetAll(ctx, rk).Result()
			if err != nil {
				return nil, errors.Wrapf(err, "hgetall %s", rk)
			}
			e := Entry{Key: key, Meta: make(map[string]string)}
			for field, v := range fields {
				switch field {
				case metaValueField:
					e.Value = v
				case metaUpdatedAtField:
					// surfaced through Meta like any other tag; no
					// caller in this repository reads it.
					e.Meta[field] = v
				default:
					e.Meta[field] = v
				}
			}
			out = append(out, e)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return out, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

type redisTxn struct {
	client  *redis.Client
	ctx     context.Context
	root    string
	preload map[string]Entry
	staged  map[string]Entry
	deletes []string
}

func (t *redisTxn) Set(key, value string, meta map[string]string) {
	e := Entry{Key: key, Value: value, Meta: make(map[string]string, len(meta))}
	for k, v := range meta {
		e.Meta[k] = v
	}
	t.staged[key] = e
}

func (t *redisTxn) Delete(key string, recursive bool) {
	t.deletes = append(t.deletes, key)
	if recursive {
		for k := range t.preload {
			if k == key || strings.HasPrefix(k, key+"/") {
				t.deletes = append(t.deletes, k)
			}
		}
	}
}

func (t *redisTxn) Commit() error {
	pipe := t.client.TxPipeline()
	now := strconv.FormatInt(time.Now().Unix(), 10)
	for _, k := range t.deletes {
		pipe.Del(t.ctx, redisKey(k))
	}
	for k, e := range t.staged {
		fields := map[string]interface{}{metaValueField: e.Value, metaUpdatedAtField: now}
		for mk, mv := range e.Meta {
			fields[mk] = mv
		}
		pipe.HSet(t.ctx, redisKey(k), fields)
	}
	_, err := pipe.Exec(t.ctx)
	t.staged = make(map[string]Entry)
	t.deletes = nil
	return errors.Wrap(err, "commit")
}
