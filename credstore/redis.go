package credstore

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces record keys.
const DefaultRedisPrefix = "gvrec"

// RedisStore keeps one binary-encoded record per key. Put uses SET NX and
// CompareAndSwap uses a WATCH/MULTI transaction, so concurrent writers from
// any number of processes serialize on the key.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore returns a RedisStore. An empty prefix selects
// DefaultRedisPrefix.
func NewRedisStore(redisClient redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *RedisStore) key(subject, purpose string) string {
	return s.prefix + ":" + recordKey(subject, purpose)
}

func (s *RedisStore) GetActive(ctx context.Context, subject, purpose string) (*Record, error) {
	data, err := s.redis.Get(ctx, s.key(subject, purpose)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, wrapUnavailable(err)
	}

	rec, err := decodeRecord(data)
	if err != nil {
		// An undecodable record is unusable; treat it as absent so a fresh
		// issue can replace it.
		s.dropUndecodable(ctx, s.key(subject, purpose), data)
		return nil, ErrNotFound
	}
	return rec, nil
}

// dropUndecodable deletes key only while it still holds data. A record
// written by a concurrent Put in between is left alone.
func (s *RedisStore) dropUndecodable(ctx context.Context, key string, data []byte) {
	_ = s.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err != nil || !bytes.Equal(current, data) {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)
}

func (s *RedisStore) Put(ctx context.Context, rec *Record, ttl time.Duration) error {
	if err := validateRecord(rec, ttl); err != nil {
		return err
	}

	stored := *rec
	stored.Version = 1
	encoded, err := encodeRecord(&stored)
	if err != nil {
		return err
	}

	ok, err := s.redis.SetNX(ctx, s.key(rec.Subject, rec.Purpose), encoded, ttl).Result()
	if err != nil {
		return wrapUnavailable(err)
	}
	if !ok {
		return ErrConflict
	}
	rec.Version = 1
	return nil
}

func (s *RedisStore) CompareAndSwap(ctx context.Context, rec *Record, ttl time.Duration) error {
	if err := validateRecord(rec, ttl); err != nil {
		return err
	}

	key := s.key(rec.Subject, rec.Purpose)
	expected := rec.Version

	stored := *rec
	stored.Version = expected + 1
	encoded, err := encodeRecord(&stored)
	if err != nil {
		return err
	}

	err = s.redis.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrConflict
			}
			return err
		}

		current, err := decodeRecord(data)
		if err != nil || current.Version != expected {
			return ErrConflict
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, encoded, ttl)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		rec.Version = stored.Version
		return nil
	case errors.Is(err, redis.TxFailedErr), errors.Is(err, ErrConflict):
		return ErrConflict
	default:
		return wrapUnavailable(err)
	}
}
