package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Compile-time interface check.
var _ Store = (*RedisStore)(nil)

// RedisStore keeps each field as a sorted set scored by insertion time, so
// ZADD NX gives set semantics while ZRANGE preserves arrival order. A plain
// set per document records which fields exist.
//
//	<prefix>:<doc>:fields        SET  of field paths
//	<prefix>:<doc>:f:<field>     ZSET of tickers
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client. Keys are namespaced under prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

// DialRedis connects to addr and verifies the connection with PING.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return client, nil
}

func (s *RedisStore) fieldsKey(doc Document) string {
	return s.prefix + ":" + string(doc) + ":fields"
}

func (s *RedisStore) fieldKey(doc Document, field string) string {
	return s.prefix + ":" + string(doc) + ":f:" + field
}

// Read returns every non-empty field of doc.
func (s *RedisStore) Read(ctx context.Context, doc Document) (map[string][]string, error) {
	fields, err := s.client.SMembers(ctx, s.fieldsKey(doc)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading %s fields: %w", doc, err)
	}

	out := make(map[string][]string, len(fields))
	for _, f := range fields {
		vals, err := s.client.ZRange(ctx, s.fieldKey(doc, f), 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("reading %s.%s: %w", doc, f, err)
		}
		if len(vals) > 0 {
			out[f] = vals
		}
	}
	return out, nil
}

// ArrayUnion adds values to the field in a single MULTI/EXEC.
func (s *RedisStore) ArrayUnion(ctx context.Context, doc Document, field string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	base := float64(time.Now().UnixMicro())
	members := make([]redis.Z, len(values))
	for i, v := range values {
		members[i] = redis.Z{Score: base + float64(i), Member: v}
	}

	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SAdd(ctx, s.fieldsKey(doc), field)
		p.ZAddNX(ctx, s.fieldKey(doc, field), members...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("array union %s.%s: %w", doc, field, err)
	}
	return nil
}

// ArrayRemove removes values from the field.
func (s *RedisStore) ArrayRemove(ctx context.Context, doc Document, field string, values ...string) error {
	if len(values) == 0 {
		return nil
	}
	members := make([]any, len(values))
	for i, v := range values {
		members[i] = v
	}
	if err := s.client.ZRem(ctx, s.fieldKey(doc, field), members...).Err(); err != nil {
		return fmt.Errorf("array remove %s.%s: %w", doc, field, err)
	}
	return nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
