package rollup

import (
	"context"
	"fmt"
	"time"

	"github.com/homesense/energy-insights/pkg/config"
)

// RefreshPolicy is the set of policy parameters handed to the continuous
// aggregate facility for one view. The facility does the actual rollup
// computation out of band; this core only parameterizes it.
type RefreshPolicy struct {
	Granularity      Granularity
	ScheduleInterval time.Duration
	EndOffset        time.Duration
}

// policies expands the rollup config into one policy per view.
func policies(cfg config.RollupConfig) []RefreshPolicy {
	return []RefreshPolicy{
		{Device1m, cfg.RefreshDevice1m, cfg.EndOffsetDevice1m},
		{Household5m, cfg.RefreshHousehold5m, cfg.EndOffsetHousehold5m},
		{Device1h, cfg.RefreshDevice1h, cfg.EndOffsetDevice1h},
	}
}

// MaxStaleness returns the staleness bound a policy guarantees:
// schedule interval plus end offset.
func (p RefreshPolicy) MaxStaleness() time.Duration {
	return p.ScheduleInterval + p.EndOffset
}

// ApplyRefreshPolicies (re)configures the refresh policy of every
// continuous aggregate view, plus the hypertable chunk interval
// guidance. Idempotent: safe to run at every startup.
func (s *Store) ApplyRefreshPolicies(ctx context.Context, cfg config.RollupConfig) error {
	for _, p := range policies(cfg) {
		// Drop-and-add rather than alter: add_continuous_aggregate_policy
		// has no upsert form that changes intervals in place.
		remove := fmt.Sprintf(
			`SELECT remove_continuous_aggregate_policy('%s', if_exists => TRUE);`,
			p.Granularity.Table(),
		)
		if _, err := s.ExecContext(ctx, remove); err != nil {
			return fmt.Errorf("%w: remove refresh policy for %s: %v", ErrStorageUnavailable, p.Granularity.Table(), err)
		}

		add := fmt.Sprintf(
			`SELECT add_continuous_aggregate_policy('%s',
				start_offset      => NULL,
				end_offset        => INTERVAL '%s',
				schedule_interval => INTERVAL '%s',
				if_not_exists     => TRUE);`,
			p.Granularity.Table(),
			formatInterval(p.EndOffset),
			formatInterval(p.ScheduleInterval),
		)
		if _, err := s.ExecContext(ctx, add); err != nil {
			return fmt.Errorf("%w: add refresh policy for %s: %v", ErrStorageUnavailable, p.Granularity.Table(), err)
		}

		fmt.Printf("Rollup policy applied: %s refresh=%s end_offset=%s\n",
			p.Granularity, p.ScheduleInterval, p.EndOffset)
	}

	if cfg.ChunkInterval > 0 {
		chunk := fmt.Sprintf(
			`SELECT set_chunk_time_interval('telemetry', INTERVAL '%s');`,
			formatInterval(cfg.ChunkInterval),
		)
		if _, err := s.ExecContext(ctx, chunk); err != nil {
			return fmt.Errorf("%w: set chunk interval: %v", ErrStorageUnavailable, err)
		}
	}

	return nil
}

// formatInterval renders a duration as a postgres interval literal.
func formatInterval(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%d hours", int(d/time.Hour))
	}
	if d%time.Minute == 0 {
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	}
	return fmt.Sprintf("%d seconds", int(d/time.Second))
}
