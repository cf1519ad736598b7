package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/homesense/energy-insights/internal/cache"
	"github.com/homesense/energy-insights/internal/metrics"
	"github.com/homesense/energy-insights/internal/rollup"
)

// BucketReader is the slice of the rollup store the read service needs.
type BucketReader interface {
	GetBuckets(ctx context.Context, scope rollup.Scope, scopeID string, g rollup.Granularity, start, end time.Time) ([]rollup.AggregateBucket, error)
	HouseholdDeviceBuckets(ctx context.Context, householdID string, start, end time.Time) ([]rollup.AggregateBucket, error)
}

// Point is one step bucket of an energy series.
type Point struct {
	T time.Time `json:"t"`
	V float64   `json:"v"`
}

// EnergySeries is a time-bucketed energy result. FreshAsOf is stamped at
// read time, never at bucket time, so consumers can judge staleness
// without knowing bucket semantics.
type EnergySeries struct {
	FreshAsOf time.Time `json:"fresh_as_of"`
	Series    []Point   `json:"series"`
}

// DeviceEnergy is one entry of a top-devices ranking.
type DeviceEnergy struct {
	DeviceID string  `json:"device_id"`
	EnergyWh float64 `json:"energy"`
}

// DefaultTopLimit bounds rankings when the caller passes limit <= 0.
const DefaultTopLimit = 5

// Service answers the dashboard read queries. It is stateless and safe
// for concurrent use; the cache is its only shared mutable collaborator.
// It never waits on or triggers a rollup refresh.
type Service struct {
	store     BucketReader
	cache     cache.Cache
	baseTTL   time.Duration
	jitterMax time.Duration
	now       func() time.Time
	logger    *log.Logger
}

// New creates the read service. Pass cache.Noop{} to run without a
// cache backend; results are identical, just slower.
func New(store BucketReader, c cache.Cache, baseTTL, jitterMax time.Duration, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		store:     store,
		cache:     c,
		baseTTL:   baseTTL,
		jitterMax: jitterMax,
		now:       time.Now,
		logger:    logger,
	}
}

// EnergyByScope returns the energy series for one scope entity,
// bucketed by step. Cache-first: a hit returns the cached result as
// served at its original read time; a miss reads the matching rollup
// view, resamples to step, and writes back with a jittered TTL. No data
// yields an empty series, never an error.
func (s *Service) EnergyByScope(ctx context.Context, scope rollup.Scope, scopeID string, start, end time.Time, step time.Duration) (EnergySeries, error) {
	g, err := granularityFor(scope, step)
	if err != nil {
		return EnergySeries{}, err
	}

	key := cache.Key{
		Metric:  rollup.MetricEnergyWhSum,
		Scope:   scope,
		ScopeID: scopeID,
		Start:   start,
		End:     end,
		Step:    step,
	}.String()

	// Cache errors are a silent downgrade to a direct read, never a
	// user-visible failure.
	if data, ok, err := s.cache.Get(ctx, key); err != nil {
		s.logger.Printf("cache get %s: %v", key, err)
	} else if ok {
		var cached EnergySeries
		if err := json.Unmarshal(data, &cached); err == nil {
			metrics.CacheHits.Inc()
			return cached, nil
		}
		s.logger.Printf("cache entry %s: undecodable, treating as miss", key)
	}
	metrics.CacheMisses.Inc()

	buckets, err := s.store.GetBuckets(ctx, scope, scopeID, g, start, end)
	if err != nil {
		return EnergySeries{}, err
	}
	metrics.StoreReads.WithLabelValues(g.String()).Inc()

	result := EnergySeries{
		FreshAsOf: s.now().UTC(),
		Series:    resample(buckets, step),
	}

	if data, err := json.Marshal(result); err == nil {
		ttl := cache.JitteredTTL(s.baseTTL, s.jitterMax)
		if err := s.cache.Set(ctx, key, data, ttl); err != nil {
			s.logger.Printf("cache set %s: %v", key, err)
		}
	}

	return result, nil
}

// TopDevices ranks a household's devices by total energy over the
// trailing window, descending. Ties break ascending by device ID so
// repeated calls over identical data are identical.
func (s *Service) TopDevices(ctx context.Context, householdID string, window time.Duration, limit int) ([]DeviceEnergy, error) {
	if limit <= 0 {
		limit = DefaultTopLimit
	}

	end := s.now().UTC()
	start := end.Add(-window)

	buckets, err := s.store.HouseholdDeviceBuckets(ctx, householdID, start, end)
	if err != nil {
		return nil, err
	}
	metrics.StoreReads.WithLabelValues(rollup.Device1h.String()).Inc()

	totals := make(map[string]float64)
	for _, b := range buckets {
		totals[b.ScopeID] += b.EnergyWh
	}

	ranking := make([]DeviceEnergy, 0, len(totals))
	for deviceID, energy := range totals {
		ranking = append(ranking, DeviceEnergy{DeviceID: deviceID, EnergyWh: energy})
	}
	sort.Slice(ranking, func(i, j int) bool {
		if ranking[i].EnergyWh != ranking[j].EnergyWh {
			return ranking[i].EnergyWh > ranking[j].EnergyWh
		}
		return ranking[i].DeviceID < ranking[j].DeviceID
	})

	if len(ranking) > limit {
		ranking = ranking[:limit]
	}
	return ranking, nil
}

// granularityFor picks the rollup view serving a scope/step pair:
// the finest view of the scope whose width divides the step.
func granularityFor(scope rollup.Scope, step time.Duration) (rollup.Granularity, error) {
	switch scope {
	case rollup.ScopeDevice:
		switch {
		case step >= time.Hour && step%time.Hour == 0:
			return rollup.Device1h, nil
		case step >= time.Minute && step%time.Minute == 0:
			return rollup.Device1m, nil
		}
	case rollup.ScopeHousehold:
		if step >= 5*time.Minute && step%(5*time.Minute) == 0 {
			return rollup.Household5m, nil
		}
	}
	return 0, fmt.Errorf("no rollup serves scope %q at step %s", scope, cache.FormatStep(step))
}

// resample folds source buckets into step-wide windows by summing
// energy. Source buckets arrive ascending, so windows emit in order.
func resample(buckets []rollup.AggregateBucket, step time.Duration) []Point {
	series := make([]Point, 0, len(buckets))
	for _, b := range buckets {
		t := b.BucketStart.Truncate(step)
		if n := len(series); n > 0 && series[n-1].T.Equal(t) {
			series[n-1].V += b.EnergyWh
			continue
		}
		series = append(series, Point{T: t, V: b.EnergyWh})
	}
	return series
}
