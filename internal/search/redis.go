package search

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

var _ Index = (*RedisIndex)(nil)

// RedisIndex keeps one set of ids per word and one set of words per id:
//
//	<prefix>:word:<word>  ids containing the word
//	<prefix>:object:<id>  words indexed for the id
type RedisIndex struct {
	client *redis.Client
	prefix string
}

// NewRedisIndex wraps an existing client. An empty prefix defaults to
// "q:search".
func NewRedisIndex(client *redis.Client, prefix string) *RedisIndex {
	if prefix == "" {
		prefix = "q:search"
	}
	return &RedisIndex{client: client, prefix: prefix}
}

func (r *RedisIndex) wordKey(w string) string    { return r.prefix + ":word:" + w }
func (r *RedisIndex) objectKey(id string) string { return r.prefix + ":object:" + id }

func (r *RedisIndex) Index(ctx context.Context, id, text string) error {
	if err := r.Remove(ctx, id); err != nil {
		return err
	}
	words := Words(text)
	if len(words) == 0 {
		return nil
	}

	members := make([]interface{}, len(words))
	pipe := r.client.TxPipeline()
	for i, w := range words {
		pipe.SAdd(ctx, r.wordKey(w), id)
		members[i] = w
	}
	pipe.SAdd(ctx, r.objectKey(id), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to index %s: %w", id, err)
	}
	return nil
}

func (r *RedisIndex) Remove(ctx context.Context, id string) error {
	words, err := r.client.SMembers(ctx, r.objectKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to read index for %s: %w", id, err)
	}
	if len(words) == 0 {
		return nil
	}

	pipe := r.client.TxPipeline()
	for _, w := range words {
		pipe.SRem(ctx, r.wordKey(w), id)
	}
	pipe.Del(ctx, r.objectKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to unindex %s: %w", id, err)
	}
	return nil
}

func (r *RedisIndex) Query(ctx context.Context, text string) ([]string, error) {
	words := Words(text)
	if len(words) == 0 {
		return []string{}, nil
	}

	keys := make([]string, len(words))
	for i, w := range words {
		keys[i] = r.wordKey(w)
	}
	ids, err := r.client.SInter(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query index: %w", err)
	}
	sortIDs(ids)
	return ids, nil
}
