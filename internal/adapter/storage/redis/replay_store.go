package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ReplayStore implements ports.ReplayGuard on Redis. Gateway transaction
// IDs are keyed per gateway so the same ID from two gateways cannot
// collide. IDs are recorded only after the callback's effects are
// committed, so the store never claims a delivery that was lost.
type ReplayStore struct {
	client *goredis.Client
	prefix string
}

// NewReplayStore creates a new Redis-backed replay guard.
func NewReplayStore(client *goredis.Client) *ReplayStore {
	return &ReplayStore{
		client: client,
		prefix: "replay:",
	}
}

func (s *ReplayStore) key(gateway, transactionID string) string {
	return s.prefix + gateway + ":" + transactionID
}

// Seen reports whether a transaction ID was already recorded.
func (s *ReplayStore) Seen(ctx context.Context, gateway string, transactionID string) (bool, error) {
	n, err := s.client.Exists(ctx, s.key(gateway, transactionID)).Result()
	if err != nil {
		return false, fmt.Errorf("redis replay check: %w", err)
	}
	return n > 0, nil
}

// Remember records a processed transaction ID for the given TTL.
func (s *ReplayStore) Remember(ctx context.Context, gateway string, transactionID string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.key(gateway, transactionID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("redis replay record: %w", err)
	}
	return nil
}
