package rollup

import (
	"fmt"
	"time"
)

// Scope identifies what kind of entity a bucket aggregates over.
type Scope string

const (
	ScopeDevice    Scope = "device"
	ScopeHousehold Scope = "household"
)

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	return s == ScopeDevice || s == ScopeHousehold
}

// Granularity selects one of the precomputed rollup views. It is a closed
// enum: callers pick the view by intent (alert reactivity, dashboard
// coarseness, ranking efficiency) rather than by table name.
type Granularity int

const (
	Device1m Granularity = iota
	Household5m
	Device1h
)

func (g Granularity) String() string {
	switch g {
	case Device1m:
		return "device_1m"
	case Household5m:
		return "household_5m"
	case Device1h:
		return "device_1h"
	default:
		return fmt.Sprintf("granularity(%d)", int(g))
	}
}

// Table returns the continuous aggregate view backing this granularity.
func (g Granularity) Table() string {
	switch g {
	case Device1m:
		return "device_energy_1m"
	case Household5m:
		return "household_energy_5m"
	case Device1h:
		return "device_energy_1h"
	default:
		return ""
	}
}

// Width returns the bucket width of this granularity.
func (g Granularity) Width() time.Duration {
	switch g {
	case Device1m:
		return time.Minute
	case Household5m:
		return 5 * time.Minute
	case Device1h:
		return time.Hour
	default:
		return 0
	}
}

// Scope returns the scope the granularity's view is keyed by.
func (g Granularity) Scope() Scope {
	if g == Household5m {
		return ScopeHousehold
	}
	return ScopeDevice
}

// AggregateBucket is one row of a rollup view. Buckets are produced
// asynchronously by the aggregation facility; the most recent bucket in
// any range may still be provisional (inside the recency exclusion
// window of its refresh policy).
type AggregateBucket struct {
	Scope       Scope
	ScopeID     string
	BucketStart time.Time
	BucketWidth time.Duration
	EnergyWh    float64
	PowerAvgW   float64
	PowerMaxW   float64
}

// Metric names served out of a bucket.
const (
	MetricEnergyWhSum = "energy_wh_sum"
	MetricPowerAvgW   = "power_avg_w"
	MetricPowerMaxW   = "power_max_w"
)

// MetricValue extracts the named metric from a bucket.
func (b AggregateBucket) MetricValue(metric string) (float64, error) {
	switch metric {
	case MetricEnergyWhSum:
		return b.EnergyWh, nil
	case MetricPowerAvgW:
		return b.PowerAvgW, nil
	case MetricPowerMaxW:
		return b.PowerMaxW, nil
	default:
		return 0, fmt.Errorf("unknown metric %q", metric)
	}
}
