package store

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/i474232898/air-quality-features/internal/features"
)

// RedisStore keeps feature groups in Redis: the schema as a list, every record
// as a hash, and a sorted set of record ids scored by event_time.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a RedisStore. prefix defaults to "featurestore".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "featurestore"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) definitionsKey(group string) string {
	return fmt.Sprintf("%s:%s:definitions", s.prefix, group)
}

func (s *RedisStore) recordKey(group, id string) string {
	return fmt.Sprintf("%s:%s:record:%s", s.prefix, group, id)
}

func (s *RedisStore) indexKey(group string) string {
	return fmt.Sprintf("%s:%s:records", s.prefix, group)
}

// EnsureFeatureGroup writes the definitions list if the group does not exist yet.
func (s *RedisStore) EnsureFeatureGroup(ctx context.Context, group string, definitions []string) error {
	if len(definitions) == 0 {
		return fmt.Errorf("feature group %s: no feature definitions", group)
	}
	key := s.definitionsKey(group)

	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis exists %s: %w", key, err)
	}
	if n > 0 {
		return nil
	}

	values := make([]interface{}, len(definitions))
	for i, d := range definitions {
		values[i] = d
	}
	if err := s.client.RPush(ctx, key, values...).Err(); err != nil {
		return fmt.Errorf("redis rpush %s: %w", key, err)
	}
	log.Printf("store: redis feature group created group=%s features=%d", group, len(definitions))
	return nil
}

func (s *RedisStore) definitions(ctx context.Context, group string) ([]string, error) {
	defs, err := s.client.LRange(ctx, s.definitionsKey(group), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange %s: %w", s.definitionsKey(group), err)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrFeatureGroupNotFound, group)
	}
	return defs, nil
}

// AllowedFields returns the group's feature names.
func (s *RedisStore) AllowedFields(ctx context.Context, group string) (map[string]struct{}, error) {
	defs, err := s.definitions(ctx, group)
	if err != nil {
		return nil, err
	}
	return toSet(defs), nil
}

// PutRecord replaces the record hash and its index entry in one MULTI/EXEC.
func (s *RedisStore) PutRecord(ctx context.Context, group string, record []features.FeatureValue) error {
	id, eventTime, err := recordIdentity(record)
	if err != nil {
		return err
	}
	defs, err := s.definitions(ctx, group)
	if err != nil {
		return err
	}
	if err := checkFeatures(group, toSet(defs), record); err != nil {
		return err
	}

	fields := make([]interface{}, 0, 2*len(record))
	for _, v := range record {
		fields = append(fields, v.FeatureName, v.ValueAsString)
	}

	key := s.recordKey(group, id)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields...)
		pipe.ZAdd(ctx, s.indexKey(group), redis.Z{Score: eventTime, Member: id})
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put record %s: %w", key, err)
	}
	return nil
}

// GetRecord reads a record hash, ordered by the group's definitions.
func (s *RedisStore) GetRecord(ctx context.Context, group, recordID string) ([]features.FeatureValue, error) {
	defs, err := s.definitions(ctx, group)
	if err != nil {
		return nil, err
	}
	hash, err := s.client.HGetAll(ctx, s.recordKey(group, recordID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(hash) == 0 {
		return nil, ErrNotFound
	}

	out := make([]features.FeatureValue, 0, len(hash))
	for _, name := range defs {
		if v, ok := hash[name]; ok {
			out = append(out, features.FeatureValue{FeatureName: name, ValueAsString: v})
		}
	}
	return out, nil
}

// RecentRecordIDs returns up to n record ids, newest event_time first.
func (s *RedisStore) RecentRecordIDs(ctx context.Context, group string, n int64) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	return s.client.ZRevRange(ctx, s.indexKey(group), 0, n-1).Result()
}
