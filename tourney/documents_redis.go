package tourney

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisDocumentStore keeps each document under a single string key. SET replaces the
// value in one command, so readers never observe a partial document.
type RedisDocumentStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisDocumentStore(client redis.UniversalClient, prefix string) *RedisDocumentStore {
	if prefix == "" {
		prefix = "tourney"
	}
	return &RedisDocumentStore{client: client, prefix: prefix}
}

func (r *RedisDocumentStore) key(name string) string {
	return r.prefix + ":" + name
}

func (r *RedisDocumentStore) Load(ctx context.Context, name string) (Document, error) {
	data, err := r.client.Get(ctx, r.key(name)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrDocumentNotFound
		}
		return nil, err
	}
	return decodeDocument(data)
}

func (r *RedisDocumentStore) Save(ctx context.Context, name string, doc Document) error {
	data, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(name), data, 0).Err()
}

func (r *RedisDocumentStore) Quarantine(ctx context.Context, name string) error {
	err := r.client.Rename(ctx, r.key(name), r.key(name+corruptSuffix)).Err()
	if err != nil && strings.Contains(err.Error(), "no such key") {
		return ErrDocumentNotFound
	}
	return err
}
