// Package redisstore implements persistence.Store over go-redis v9,
// adapted from this codebase's GoRedisAdapter: same dial/read/write
// timeout shape, same "ping once at construction, fail fast" pattern,
// same log/slog usage, repurposed from an ad-hoc key/set/pubsub client
// into the narrow four-op persistence.Store contract.
package redisstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/session-network/snrr/internal/persistence"
)

// Store wraps a *redis.Client to implement persistence.Store.
type Store struct {
	rdb *redis.Client
}

// New dials Redis and pings it once to fail fast on misconfiguration,
// mirroring this codebase's Redis adapter construction.
func New(addr, password string, db int) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     20,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed (%s): %w", addr, err)
	}

	slog.Info("snrr: redis persistence store connected", "addr", addr, "db", db)
	return &Store{rdb: rdb}, nil
}

// Close shuts down the underlying client.
func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	return s.rdb.Set(ctx, key, value, 0).Err()
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, key).Err()
}

// Tx applies every op inside a single MULTI/EXEC pipeline so a reader
// never observes a partial write.
func (s *Store) Tx(ctx context.Context, ops []persistence.Op) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, op := range ops {
			if op.Delete {
				pipe.Del(ctx, op.Key)
				continue
			}
			pipe.Set(ctx, op.Key, op.Value, 0)
		}
		return nil
	})
	return err
}
