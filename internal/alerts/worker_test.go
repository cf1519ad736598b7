package alerts

import (
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/homesense/energy-insights/internal/notify"
	"github.com/homesense/energy-insights/internal/rollup"
)

type fakeReader struct {
	buckets map[string][]rollup.AggregateBucket // keyed by scope ID
	errs    map[string]error
}

func (f *fakeReader) GetBuckets(ctx context.Context, scope rollup.Scope, scopeID string, g rollup.Granularity, start, end time.Time) ([]rollup.AggregateBucket, error) {
	if err := f.errs[scopeID]; err != nil {
		return nil, err
	}
	return f.buckets[scopeID], nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []*notify.Alert
	err    error
}

func (n *recordingNotifier) Send(ctx context.Context, alert *notify.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.alerts = append(n.alerts, alert)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.alerts)
}

func powerBucket(deviceID string, start time.Time, powerMax float64) rollup.AggregateBucket {
	return rollup.AggregateBucket{
		Scope:       rollup.ScopeDevice,
		ScopeID:     deviceID,
		BucketStart: start,
		BucketWidth: time.Minute,
		PowerMaxW:   powerMax,
	}
}

func testRule(id, deviceID string, threshold float64, cooldown time.Duration) Rule {
	return Rule{
		ID:       id,
		Scope:    rollup.ScopeDevice,
		ScopeID:  deviceID,
		Metric:   rollup.MetricPowerMaxW,
		Window:   5 * time.Minute,
		Op:       OpGreater,
		Value:    threshold,
		Cooldown: cooldown,
	}
}

func newTestWorker(rules []Rule, reader BucketReader, notifier notify.Notifier, now time.Time) *Worker {
	w := NewWorker(rules, reader, NewMemoryState(), notifier,
		10*time.Second, time.Second, 5*time.Minute, log.Default())
	w.now = func() time.Time { return now }
	return w
}

func TestWorker_Cooldown(t *testing.T) {
	t0 := time.Date(2025, 7, 30, 12, 0, 0, 0, time.UTC)
	reader := &fakeReader{buckets: map[string][]rollup.AggregateBucket{
		"d1": {powerBucket("d1", t0.Add(-time.Minute), 3000)},
	}}
	notifier := &recordingNotifier{}
	w := newTestWorker([]Rule{testRule("r1", "d1", 2500, 300*time.Second)}, reader, notifier, t0)

	// Breach at t=0: fires.
	w.RunCycle(context.Background())
	require.Equal(t, 1, notifier.count())

	// Still breaching at t=100s: suppressed by the cooldown.
	w.now = func() time.Time { return t0.Add(100 * time.Second) }
	w.RunCycle(context.Background())
	require.Equal(t, 1, notifier.count())

	// Still breaching at t=301s: cooldown elapsed, fires again.
	w.now = func() time.Time { return t0.Add(301 * time.Second) }
	w.RunCycle(context.Background())
	require.Equal(t, 2, notifier.count())
}

func TestWorker_FalseReadingLeavesCooldownUntouched(t *testing.T) {
	t0 := time.Date(2025, 7, 30, 12, 0, 0, 0, time.UTC)
	reader := &fakeReader{buckets: map[string][]rollup.AggregateBucket{
		"d1": {powerBucket("d1", t0.Add(-time.Minute), 3000)},
	}}
	notifier := &recordingNotifier{}
	w := newTestWorker([]Rule{testRule("r1", "d1", 2500, 300*time.Second)}, reader, notifier, t0)

	w.RunCycle(context.Background())
	require.Equal(t, 1, notifier.count())

	// Value drops below threshold mid-cooldown; nothing resets.
	reader.buckets["d1"] = []rollup.AggregateBucket{powerBucket("d1", t0.Add(time.Minute), 100)}
	w.now = func() time.Time { return t0.Add(150 * time.Second) }
	w.RunCycle(context.Background())
	require.Equal(t, 1, notifier.count())

	// Breach again before the original cooldown elapsed: still
	// suppressed; the false reading did not shorten it.
	reader.buckets["d1"] = []rollup.AggregateBucket{powerBucket("d1", t0.Add(4*time.Minute), 3000)}
	w.now = func() time.Time { return t0.Add(250 * time.Second) }
	w.RunCycle(context.Background())
	require.Equal(t, 1, notifier.count())
}

func TestWorker_RuleIsolation(t *testing.T) {
	t0 := time.Date(2025, 7, 30, 12, 0, 0, 0, time.UTC)
	reader := &fakeReader{
		buckets: map[string][]rollup.AggregateBucket{
			"d-healthy": {powerBucket("d-healthy", t0.Add(-time.Minute), 3000)},
		},
		errs: map[string]error{
			"d-broken": rollup.ErrStorageUnavailable,
		},
	}
	notifier := &recordingNotifier{}
	rules := []Rule{
		testRule("r-broken", "d-broken", 2500, 300*time.Second),
		testRule("r-healthy", "d-healthy", 2500, 300*time.Second),
	}
	w := newTestWorker(rules, reader, notifier, t0)

	// The broken rule's fetch failure must not stop the healthy rule
	// from firing in the same cycle.
	w.RunCycle(context.Background())
	require.Equal(t, 1, notifier.count())
	require.Equal(t, "r-healthy", notifier.alerts[0].RuleID)
}

func TestWorker_NoDataSkipsRule(t *testing.T) {
	t0 := time.Date(2025, 7, 30, 12, 0, 0, 0, time.UTC)
	reader := &fakeReader{buckets: map[string][]rollup.AggregateBucket{}}
	notifier := &recordingNotifier{}
	w := newTestWorker([]Rule{testRule("r1", "d1", 2500, 300*time.Second)}, reader, notifier, t0)

	w.RunCycle(context.Background())
	require.Zero(t, notifier.count())

	// Skipping on no data must not arm the cooldown.
	_, triggered, err := w.states.LastTriggered(context.Background(), "r1")
	require.NoError(t, err)
	require.False(t, triggered)
}

func TestWorker_FailedDispatchStillArmsCooldown(t *testing.T) {
	t0 := time.Date(2025, 7, 30, 12, 0, 0, 0, time.UTC)
	reader := &fakeReader{buckets: map[string][]rollup.AggregateBucket{
		"d1": {powerBucket("d1", t0.Add(-time.Minute), 3000)},
	}}
	notifier := &recordingNotifier{err: errors.New("broker down")}
	w := newTestWorker([]Rule{testRule("r1", "d1", 2500, 300*time.Second)}, reader, notifier, t0)

	w.RunCycle(context.Background())
	require.Zero(t, notifier.count())

	// Dispatch failed, but the cooldown armed anyway: the breach will
	// not be redelivered until it naturally re-arms.
	notifier.err = nil
	w.now = func() time.Time { return t0.Add(100 * time.Second) }
	w.RunCycle(context.Background())
	require.Zero(t, notifier.count())

	w.now = func() time.Time { return t0.Add(301 * time.Second) }
	w.RunCycle(context.Background())
	require.Equal(t, 1, notifier.count())
}

func TestWorker_EvaluatesLatestBucket(t *testing.T) {
	t0 := time.Date(2025, 7, 30, 12, 0, 0, 0, time.UTC)
	reader := &fakeReader{buckets: map[string][]rollup.AggregateBucket{
		"d1": {
			powerBucket("d1", t0.Add(-3*time.Minute), 3000), // old breach
			powerBucket("d1", t0.Add(-time.Minute), 100),    // latest is calm
		},
	}}
	notifier := &recordingNotifier{}
	w := newTestWorker([]Rule{testRule("r1", "d1", 2500, 300*time.Second)}, reader, notifier, t0)

	w.RunCycle(context.Background())
	require.Zero(t, notifier.count())
}

func TestWorker_AlertPayload(t *testing.T) {
	t0 := time.Date(2025, 7, 30, 12, 0, 0, 0, time.UTC)
	bucketStart := t0.Add(-time.Minute)
	reader := &fakeReader{buckets: map[string][]rollup.AggregateBucket{
		"d1": {powerBucket("d1", bucketStart, 3000)},
	}}
	notifier := &recordingNotifier{}
	w := newTestWorker([]Rule{testRule("r1", "d1", 2500, 300*time.Second)}, reader, notifier, t0)

	w.RunCycle(context.Background())
	require.Equal(t, 1, notifier.count())

	alert := notifier.alerts[0]
	require.NotEmpty(t, alert.ID)
	require.Equal(t, "r1", alert.RuleID)
	require.Equal(t, rollup.ScopeDevice, alert.Scope)
	require.Equal(t, "d1", alert.ScopeID)
	require.Equal(t, rollup.MetricPowerMaxW, alert.Metric)
	require.Equal(t, 3000.0, alert.Value)
	require.Equal(t, 2500.0, alert.Threshold)
	require.Equal(t, ">", alert.Operator)
	require.Equal(t, bucketStart, alert.BucketTime)
	require.Equal(t, t0, alert.FiredAt)
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	t0 := time.Date(2025, 7, 30, 12, 0, 0, 0, time.UTC)
	reader := &fakeReader{buckets: map[string][]rollup.AggregateBucket{}}
	w := newTestWorker(nil, reader, &recordingNotifier{}, t0)
	w.interval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
}

func TestMemoryState_TryArm(t *testing.T) {
	s := NewMemoryState()
	ctx := context.Background()
	t0 := time.Date(2025, 7, 30, 12, 0, 0, 0, time.UTC)

	armed, err := s.TryArm(ctx, "r1", t0, 300*time.Second)
	require.NoError(t, err)
	require.True(t, armed)

	// Inside the cooldown: refused, state untouched.
	armed, err = s.TryArm(ctx, "r1", t0.Add(100*time.Second), 300*time.Second)
	require.NoError(t, err)
	require.False(t, armed)

	triggered, ok, err := s.LastTriggered(ctx, "r1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, t0, triggered)

	// Cooldown elapsed: re-arms.
	armed, err = s.TryArm(ctx, "r1", t0.Add(301*time.Second), 300*time.Second)
	require.NoError(t, err)
	require.True(t, armed)

	// Rules are independent.
	armed, err = s.TryArm(ctx, "r2", t0, 300*time.Second)
	require.NoError(t, err)
	require.True(t, armed)
}
