package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisState keeps cooldown state in redis so it is shared across
// worker instances and survives restarts. The cooldown key carries a
// TTL equal to the cooldown itself: SET NX either arms it atomically or
// observes an active cooldown, whichever instance gets there first.
type RedisState struct {
	client *redis.Client
}

// NewRedisState creates a redis-backed state store.
func NewRedisState(client *redis.Client) *RedisState {
	return &RedisState{client: client}
}

func stateKey(ruleID string) string {
	return fmt.Sprintf("alert:cooldown:%s", ruleID)
}

func (r *RedisState) TryArm(ctx context.Context, ruleID string, now time.Time, cooldown time.Duration) (bool, error) {
	armed, err := r.client.SetNX(ctx, stateKey(ruleID), now.UTC().Format(time.RFC3339Nano), cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("failed to arm cooldown for %s: %w", ruleID, err)
	}
	return armed, nil
}

func (r *RedisState) LastTriggered(ctx context.Context, ruleID string) (time.Time, bool, error) {
	data, err := r.client.Get(ctx, stateKey(ruleID)).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get cooldown state for %s: %w", ruleID, err)
	}

	triggered, err := time.Parse(time.RFC3339Nano, data)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse cooldown state for %s: %w", ruleID, err)
	}
	return triggered, true, nil
}
