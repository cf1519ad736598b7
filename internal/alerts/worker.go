package alerts

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/homesense/energy-insights/internal/metrics"
	"github.com/homesense/energy-insights/internal/notify"
	"github.com/homesense/energy-insights/internal/rollup"
)

// BucketReader is the slice of the rollup store the worker needs.
type BucketReader interface {
	GetBuckets(ctx context.Context, scope rollup.Scope, scopeID string, g rollup.Granularity, start, end time.Time) ([]rollup.AggregateBucket, error)
}

// Worker polls the freshest rollup buckets on a fixed interval and
// evaluates a static rule set against them. One worker runs one loop;
// horizontal scaling requires a shared StateStore (RedisState), or two
// instances could both fire inside the same cooldown.
type Worker struct {
	rules    []Rule
	store    BucketReader
	states   StateStore
	notifier notify.Notifier

	interval     time.Duration
	fetchTimeout time.Duration
	trailing     time.Duration

	now    func() time.Time
	logger *log.Logger
}

// NewWorker creates an alerts worker.
func NewWorker(rules []Rule, store BucketReader, states StateStore, notifier notify.Notifier,
	interval, fetchTimeout, trailing time.Duration, logger *log.Logger) *Worker {
	if logger == nil {
		logger = log.Default()
	}
	return &Worker{
		rules:        rules,
		store:        store,
		states:       states,
		notifier:     notifier,
		interval:     interval,
		fetchTimeout: fetchTimeout,
		trailing:     trailing,
		now:          time.Now,
		logger:       logger,
	}
}

// Run polls until ctx is cancelled. The first cycle runs immediately.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.RunCycle(ctx)
		}
	}
}

// RunCycle evaluates every rule once. A rule's failure is logged and
// never stops the remaining rules from being evaluated.
func (w *Worker) RunCycle(ctx context.Context) {
	for _, rule := range w.rules {
		if err := w.evaluate(ctx, rule); err != nil {
			metrics.AlertRuleErrors.Inc()
			w.logger.Printf("rule %s: %v", rule.ID, err)
		}
	}
	metrics.AlertCycles.Inc()
}

func (w *Worker) evaluate(ctx context.Context, rule Rule) error {
	now := w.now().UTC()

	// Bounded fetch: one slow query must not stall the whole cycle.
	fetchCtx, cancel := context.WithTimeout(ctx, w.fetchTimeout)
	defer cancel()

	// The lookback must cover at least two bucket widths of the chosen
	// view, or coarse-view rules would find nothing between refreshes.
	g := rule.granularity()
	lookback := w.trailing
	if floor := 2 * g.Width(); lookback < floor {
		lookback = floor
	}

	buckets, err := w.store.GetBuckets(fetchCtx, rule.Scope, rule.ScopeID, g, now.Add(-lookback), now)
	if err != nil {
		return fmt.Errorf("fetch buckets: %w", err)
	}
	if len(buckets) == 0 {
		// Absence of data is not a failure; the rule simply skips
		// this cycle.
		return nil
	}

	// The latest bucket may be provisional (inside the recency
	// exclusion window). A provisional under-count can only suppress a
	// high-threshold rule, never false-fire it.
	latest := buckets[len(buckets)-1]
	value, err := latest.MetricValue(rule.Metric)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}

	if !rule.Op.Test(value, rule.Value) {
		// A false reading leaves any running cooldown untouched.
		return nil
	}

	// Arm before dispatching: the cooldown holds whether or not the
	// send succeeds, and TryArm is the atomic gate across instances.
	armed, err := w.states.TryArm(ctx, rule.ID, now, rule.Cooldown)
	if err != nil {
		return fmt.Errorf("arm cooldown: %w", err)
	}
	if !armed {
		metrics.AlertsSuppressed.Inc()
		return nil
	}

	alert := &notify.Alert{
		ID:         uuid.NewString(),
		RuleID:     rule.ID,
		Scope:      rule.Scope,
		ScopeID:    rule.ScopeID,
		Metric:     rule.Metric,
		Value:      value,
		Threshold:  rule.Value,
		Operator:   string(rule.Op),
		BucketTime: latest.BucketStart,
		FiredAt:    now,
	}

	if err := w.notifier.Send(ctx, alert); err != nil {
		// No retry here: the cooldown is already armed, so a sustained
		// breach will not be redelivered until it naturally re-arms.
		metrics.NotifyErrors.Inc()
		w.logger.Printf("rule %s: notification dispatch failed (cooldown stays armed): %v", rule.ID, err)
		return nil
	}

	metrics.AlertsFired.Inc()
	w.logger.Printf("rule %s: alert fired, %s=%.2f %s %.2f at %s",
		rule.ID, rule.Metric, value, rule.Op, rule.Value, latest.BucketStart.Format(time.RFC3339))
	return nil
}
