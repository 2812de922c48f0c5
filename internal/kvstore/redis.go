package kvstore

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sreq-inc/solo/internal/errdef"
)

const defaultRedisTimeout = 3 * time.Second

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key so several workspaces can share a server.
	Prefix  string
	Timeout time.Duration
}

type Redis struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

func OpenRedis(opts RedisOptions) (*Redis, error) {
	if strings.TrimSpace(opts.Addr) == "" {
		return nil, errdef.New(errdef.CodeConfig, "redis address is required")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	r := &Redis{client: client, prefix: opts.Prefix, timeout: timeout}
	ctx, cancel := r.ctx()
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errdef.Wrap(errdef.CodeStorage, err, "connect to redis %s", opts.Addr)
	}
	return r, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Get(key string) (string, bool, error) {
	ctx, cancel := r.ctx()
	defer cancel()
	value, err := r.client.Get(ctx, r.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errdef.Wrap(errdef.CodeStorage, err, "get %q", key)
	}
	return value, true, nil
}

func (r *Redis) Set(key, value string) error {
	ctx, cancel := r.ctx()
	defer cancel()
	err := r.client.Set(ctx, r.prefix+key, value, 0).Err()
	return errdef.Wrap(errdef.CodeStorage, err, "set %q", key)
}

func (r *Redis) Remove(key string) error {
	ctx, cancel := r.ctx()
	defer cancel()
	err := r.client.Del(ctx, r.prefix+key).Err()
	return errdef.Wrap(errdef.CodeStorage, err, "remove %q", key)
}

// Keys walks the keyspace with SCAN rather than KEYS to avoid blocking the server.
func (r *Redis) Keys() ([]string, error) {
	ctx, cancel := r.ctx()
	defer cancel()

	var keys []string
	iter := r.client.Scan(ctx, 0, escapeGlob(r.prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), r.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, errdef.Wrap(errdef.CodeStorage, err, "scan keys")
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *Redis) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.timeout)
}

func escapeGlob(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return replacer.Replace(s)
}
