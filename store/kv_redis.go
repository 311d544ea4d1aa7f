package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// RedisKV stores blobs as plain Redis strings, optionally under a key prefix
type RedisKV struct {
	client *redis.Client
	prefix string
}

func NewRedisKV(ctx context.Context, addr, password string, database int, prefix string) (*RedisKV, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           database,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, eris.Wrapf(err, "redis: connect %s", addr)
	}
	return &RedisKV{client: client, prefix: prefix}, nil
}

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "redis: get %s", key)
	}
	return value, nil
}

func (r *RedisKV) Put(ctx context.Context, key string, value []byte) error {
	return eris.Wrapf(r.client.Set(ctx, r.prefix+key, value, 0).Err(), "redis: put %s", key)
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	return eris.Wrapf(r.client.Del(ctx, r.prefix+key).Err(), "redis: delete %s", key)
}

func (r *RedisKV) Close() error {
	return r.client.Close()
}
