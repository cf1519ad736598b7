package cache

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/homesense/energy-insights/internal/rollup"
)

// Cache is the short-TTL key/value cache fronting the rollup store.
// Get reports a miss with ok=false; an entry may vanish at any time and
// absence is always a valid state. Implementations must be safe for
// concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Key identifies one query result. Structurally distinct queries must
// never collide and identical queries must always produce the same key,
// so every field participates in the serialized form.
type Key struct {
	Metric  string
	Scope   rollup.Scope
	ScopeID string
	Start   time.Time
	End     time.Time
	Step    time.Duration
}

// String renders the key as
// agg:{metric}:{scope}:{scope_id}:{start_iso}:{end_iso}:{step}.
func (k Key) String() string {
	return fmt.Sprintf("agg:%s:%s:%s:%s:%s:%s",
		k.Metric,
		k.Scope,
		k.ScopeID,
		k.Start.UTC().Format(time.RFC3339),
		k.End.UTC().Format(time.RFC3339),
		FormatStep(k.Step),
	)
}

// FormatStep renders a step duration compactly ("5m", "1h").
func FormatStep(step time.Duration) string {
	switch {
	case step >= time.Hour && step%time.Hour == 0:
		return fmt.Sprintf("%dh", int(step/time.Hour))
	case step >= time.Minute && step%time.Minute == 0:
		return fmt.Sprintf("%dm", int(step/time.Minute))
	default:
		return step.String()
	}
}

// JitteredTTL returns base plus a uniform random addition in
// [0, jitterMax). The jitter desynchronizes expiry of the many
// dashboard queries that share bucket boundaries, so they do not all
// recompute at the same instant.
func JitteredTTL(base, jitterMax time.Duration) time.Duration {
	if jitterMax <= 0 {
		return base
	}
	return base + time.Duration(rand.Int63n(int64(jitterMax)))
}

// Noop is the degraded-mode cache used when no backend is configured:
// every Get misses and Set discards. Callers behave identically, just
// slower.
type Noop struct{}

func (Noop) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return nil, false, nil
}

func (Noop) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return nil
}
