package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yangwenmai/casefill/internal/model"
)

var _ Backend = (*RedisBackend)(nil)

// RedisBackend stores object bodies as plain keys, metadata as hashes and
// keeps one sorted set of all object keys scored by upload time.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisBackend creates a backend on client. Every redis key is prefixed with keyPrefix.
func NewRedisBackend(client *redis.Client, keyPrefix string) *RedisBackend {
	return &RedisBackend{client: client, prefix: keyPrefix}
}

// DialRedis parses a redis URL and verifies the connection.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (b *RedisBackend) bodyKey(key string) string { return b.prefix + "obj:" + key }
func (b *RedisBackend) metaKey(key string) string { return b.prefix + "meta:" + key }
func (b *RedisBackend) indexKey() string          { return b.prefix + "index" }

// Put writes the body with SETNX, then records metadata and the index entry.
// When the second step fails the object is rolled back so the key stays free.
func (b *RedisBackend) Put(ctx context.Context, key string, body []byte, meta ObjectMeta) error {
	ok, err := b.client.SetNX(ctx, b.bodyKey(key), body, 0).Result()
	if err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	if !ok {
		return ErrExists
	}
	_, err = b.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, b.metaKey(key), map[string]interface{}{
			"case_id":      meta.CaseID,
			"namespace":    meta.Namespace,
			"category":     string(meta.Category),
			"content_type": meta.ContentType,
			"size":         len(body),
			"uploaded_at":  meta.UploadedAt.UTC().Format(time.RFC3339Nano),
		})
		p.ZAdd(ctx, b.indexKey(), redis.Z{Score: float64(meta.UploadedAt.UnixNano()), Member: key})
		return nil
	})
	if err != nil {
		b.rollback(context.WithoutCancel(ctx), key)
		return fmt.Errorf("redis index: %w", err)
	}
	return nil
}

func (b *RedisBackend) rollback(ctx context.Context, key string) {
	_, _ = b.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, b.bodyKey(key), b.metaKey(key))
		p.ZRem(ctx, b.indexKey(), key)
		return nil
	})
}

// Get loads one object. A missing body maps redis.Nil to ErrNotFound.
func (b *RedisBackend) Get(ctx context.Context, key string) (*Object, error) {
	body, err := b.client.Get(ctx, b.bodyKey(key)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	fields, err := b.client.HGetAll(ctx, b.metaKey(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis meta: %w", err)
	}
	return &Object{Key: key, Meta: metaFromHash(fields), Body: body}, nil
}

// Exists reports whether any indexed key starts with prefix.
func (b *RedisBackend) Exists(ctx context.Context, prefix string) (bool, error) {
	keys, err := b.indexed(ctx, prefix)
	if err != nil {
		return false, err
	}
	return len(keys) > 0, nil
}

// List returns metadata for every key under prefix, newest first.
func (b *RedisBackend) List(ctx context.Context, prefix string) ([]Object, error) {
	keys, err := b.indexed(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]Object, 0, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err = b.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = p.HGetAll(ctx, b.metaKey(k))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis list meta: %w", err)
	}
	for i, k := range keys {
		out = append(out, Object{Key: k, Meta: metaFromHash(cmds[i].Val())})
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].Meta.UploadedAt, out[j].Meta.UploadedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

// DeletePrefix removes every object under prefix.
func (b *RedisBackend) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	keys, err := b.indexed(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	_, err = b.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		members := make([]interface{}, 0, len(keys))
		for _, k := range keys {
			p.Del(ctx, b.bodyKey(k), b.metaKey(k))
			members = append(members, k)
		}
		p.ZRem(ctx, b.indexKey(), members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("redis delete: %w", err)
	}
	return int64(len(keys)), nil
}

// Close closes the redis client.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}

// indexed returns index members starting with prefix.
func (b *RedisBackend) indexed(ctx context.Context, prefix string) ([]string, error) {
	all, err := b.client.ZRange(ctx, b.indexKey(), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis index: %w", err)
	}
	var out []string
	for _, k := range all {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func metaFromHash(fields map[string]string) ObjectMeta {
	size, _ := strconv.ParseInt(fields["size"], 10, 64)
	uploaded, _ := time.Parse(time.RFC3339Nano, fields["uploaded_at"])
	return ObjectMeta{
		CaseID:      fields["case_id"],
		Namespace:   fields["namespace"],
		Category:    model.Category(fields["category"]),
		ContentType: fields["content_type"],
		Size:        size,
		UploadedAt:  uploaded,
	}
}
