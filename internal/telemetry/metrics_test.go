package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{250 * time.Millisecond, BucketP500},
		{2 * time.Second, BucketP1000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.d), tt.d.String())
	}
}

func TestResolveMetrics_Snapshot(t *testing.T) {
	m := NewResolveMetricsWithConfig(nil, Config{TopNotFoundCapacity: 10, RecentNotFoundCapacity: 2})
	defer m.Close()

	m.RecordBatch(BatchEvent{
		Strategy: "per-item",
		Items:    4,
		Outcomes: map[string]int{OutcomeResolved: 3, OutcomeNotFound: 1},
	})
	m.RecordBatch(BatchEvent{
		Strategy: "per-provider",
		Items:    1,
		Outcomes: map[string]int{OutcomeResolved: 1},
	})
	m.RecordProviderCall(ProviderEvent{Provider: "stored", Latency: time.Millisecond, Hit: true})
	m.RecordProviderCall(ProviderEvent{Provider: "geocoder", Latency: 200 * time.Millisecond, Err: true})
	m.RecordNotFound("Nowhere  St")
	m.RecordNotFound("nowhere st")
	m.RecordNotFound("other")
	m.RecordNotFound("  ")

	s := m.Snapshot()
	assert.Equal(t, int64(2), s.TotalBatches)
	assert.Equal(t, int64(5), s.TotalItems)
	assert.Equal(t, int64(4), s.Outcomes[OutcomeResolved])
	assert.Equal(t, map[string]int64{"per-item": 1, "per-provider": 1}, s.Strategies)
	assert.Equal(t, ProviderStats{Calls: 1, Hits: 1}, s.Providers["stored"])
	assert.Equal(t, ProviderStats{Calls: 1, Errors: 1}, s.Providers["geocoder"])
	assert.Equal(t, int64(1), s.LatencyDistribution[BucketP10])
	assert.Equal(t, int64(1), s.LatencyDistribution[BucketP500])
	assert.Equal(t, []QueryCount{{Query: "nowhere st", Count: 2}, {Query: "other", Count: 1}}, s.TopNotFound)
	assert.Equal(t, []string{"nowhere st", "other"}, s.RecentNotFound)
	assert.InDelta(t, 80.0, s.ResolutionRate(), 1e-9)
}

func TestResolveMetrics_NilIsNoOp(t *testing.T) {
	var m *ResolveMetrics
	m.RecordBatch(BatchEvent{Items: 1})
	m.RecordProviderCall(ProviderEvent{Provider: "x"})
	m.RecordNotFound("x")

	s := m.Snapshot()
	assert.Zero(t, s.TotalItems)
	assert.Zero(t, s.ResolutionRate())
	assert.NoError(t, m.Flush())
	assert.NoError(t, m.Close())
}

func TestResolveMetrics_FlushWritesDeltasOnly(t *testing.T) {
	store, err := NewSQLiteMetricsStore(setupTestDB(t))
	require.NoError(t, err)

	m := NewResolveMetricsWithConfig(store, Config{})
	m.RecordBatch(BatchEvent{Items: 2, Outcomes: map[string]int{OutcomeResolved: 2}})
	m.RecordNotFound("x")
	require.NoError(t, m.Flush())
	require.NoError(t, m.Flush())

	m.RecordBatch(BatchEvent{Items: 1, Outcomes: map[string]int{OutcomeResolved: 1}})
	require.NoError(t, m.Close())

	today := time.Now().Format("2006-01-02")
	counts, err := store.GetOutcomeCounts(today, today)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts[OutcomeResolved])

	top, err := store.GetTopNotFound(10)
	require.NoError(t, err)
	assert.Equal(t, []QueryCount{{Query: "x", Count: 1}}, top)
}

func TestResolveMetrics_ClosedIgnoresEvents(t *testing.T) {
	m := NewResolveMetrics(nil)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	m.RecordBatch(BatchEvent{Items: 1})
	assert.Zero(t, m.Snapshot().TotalItems)
}

func TestResolveMetrics_ConcurrentRecording(t *testing.T) {
	m := NewResolveMetrics(nil)
	defer m.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordProviderCall(ProviderEvent{Provider: "p", Hit: true})
			m.RecordNotFound("q")
		}()
	}
	wg.Wait()

	s := m.Snapshot()
	assert.Equal(t, int64(20), s.Providers["p"].Calls)
	assert.Equal(t, []QueryCount{{Query: "q", Count: 20}}, s.TopNotFound)
}

func TestCircularBuffer_EvictsOldest(t *testing.T) {
	b := NewCircularBuffer[int](3)
	for i := 1; i <= 5; i++ {
		b.Add(i)
	}
	assert.Equal(t, []int{3, 4, 5}, b.Items())
	assert.Equal(t, 3, b.Size())
	assert.Empty(t, NewCircularBuffer[int](0).Items())
}
