package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store wraps the Redis client used for auth sessions and consumer-side
// event dedupe. Presence deliberately does not live here: it is
// process-local by design.
type Store struct {
	cli *redis.Client
}

type Options struct {
	Addr     string
	Password string
	Database int
	Timeout  time.Duration
}

func New(opt Options) (*Store, error) {
	if opt.Addr == "" {
		return nil, fmt.Errorf("redis: missing addr")
	}
	if opt.Timeout == 0 {
		opt.Timeout = 5 * time.Second
	}

	cli := redis.NewClient(&redis.Options{
		Addr:         opt.Addr,
		Password:     opt.Password,
		DB:           opt.Database,
		DialTimeout:  opt.Timeout,
		ReadTimeout:  opt.Timeout,
		WriteTimeout: opt.Timeout,
	})
	return &Store{cli: cli}, nil
}

func (s *Store) Client() *redis.Client { return s.cli }

func (s *Store) Close() error { return s.cli.Close() }

func (s *Store) Ping(ctx context.Context) error {
	return s.cli.Ping(ctx).Err()
}

// DedupeEvent returns true if eventID is seen for the first time within ttl.
// SET NX gives consumer-side idempotency; on Redis failure callers should
// proceed (at-least-once beats dropped delivery).
func (s *Store) DedupeEvent(ctx context.Context, eventID int64, ttl time.Duration) (bool, error) {
	if eventID <= 0 {
		return false, fmt.Errorf("dedupe: invalid event id")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	key := fmt.Sprintf("chat:dedupe:evt:%d", eventID)
	return s.cli.SetNX(ctx, key, "1", ttl).Result()
}
