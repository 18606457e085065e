// Package telemetry collects resolver metrics: per-batch outcome counts,
// provider call statistics, latency histograms and the queries no provider
// could resolve. Data stays local; persistence is an optional SQLite store.
package telemetry

import (
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Outcome labels recorded per item.
const (
	OutcomeResolved    = "resolved"
	OutcomeNotFound    = "NOT_FOUND"
	OutcomeNoProviders = "NO_PROVIDERS"
	OutcomeError       = "PROVIDER_ERROR"
)

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// BatchEvent summarizes one ResolveBatch call.
type BatchEvent struct {
	Strategy string
	Items    int
	Latency  time.Duration
	Outcomes map[string]int
}

// ProviderEvent describes one Search call.
type ProviderEvent struct {
	Provider string
	Latency  time.Duration
	Hit      bool
	Err      bool
}

// ProviderStats aggregates calls to one provider.
type ProviderStats struct {
	Calls  int64 `json:"calls"`
	Hits   int64 `json:"hits"`
	Errors int64 `json:"errors"`
}

// QueryCount pairs a query with how often it was seen.
type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Snapshot is an immutable copy of the collected metrics.
type Snapshot struct {
	TotalBatches        int64                    `json:"total_batches"`
	TotalItems          int64                    `json:"total_items"`
	Outcomes            map[string]int64         `json:"outcomes"`
	Strategies          map[string]int64         `json:"strategies"`
	Providers           map[string]ProviderStats `json:"providers"`
	LatencyDistribution map[LatencyBucket]int64  `json:"latency_distribution"`
	TopNotFound         []QueryCount             `json:"top_not_found"`
	RecentNotFound      []string                 `json:"recent_not_found"`
	Since               time.Time                `json:"since"`
}

// ResolutionRate returns the share of items that resolved, in percent.
func (s *Snapshot) ResolutionRate() float64 {
	if s.TotalItems == 0 {
		return 0
	}
	return float64(s.Outcomes[OutcomeResolved]) / float64(s.TotalItems) * 100
}

// Config configures the collector.
type Config struct {
	TopNotFoundCapacity    int           // distinct NOT_FOUND queries counted (default: 100)
	RecentNotFoundCapacity int           // recent NOT_FOUND queries kept (default: 50)
	FlushInterval          time.Duration // 0 disables auto-flush
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		TopNotFoundCapacity:    100,
		RecentNotFoundCapacity: 50,
		FlushInterval:          60 * time.Second,
	}
}

// ResolveMetrics collects resolver telemetry. A nil *ResolveMetrics is a
// valid no-op collector. Safe for concurrent use.
type ResolveMetrics struct {
	mu sync.Mutex

	batches        int64
	items          int64
	outcomes       map[string]int64
	strategies     map[string]int64
	providers      map[string]*ProviderStats
	latencies      map[LatencyBucket]int64
	topNotFound    *lru.Cache[string, int64]
	recentNotFound *CircularBuffer[string]
	startTime      time.Time

	// deltas since the last flush
	pending pendingCounts

	store       MetricsStore
	flushTicker *time.Ticker
	stopCh      chan struct{}
	closed      bool
}

type pendingCounts struct {
	outcomes  map[string]int64
	latencies map[LatencyBucket]int64
	notFound  map[string]int64
}

func newPending() pendingCounts {
	return pendingCounts{
		outcomes:  make(map[string]int64),
		latencies: make(map[LatencyBucket]int64),
		notFound:  make(map[string]int64),
	}
}

// NewResolveMetrics creates a collector with default configuration.
// If store is nil, metrics are only kept in memory.
func NewResolveMetrics(store MetricsStore) *ResolveMetrics {
	return NewResolveMetricsWithConfig(store, DefaultConfig())
}

// NewResolveMetricsWithConfig creates a collector with custom configuration.
func NewResolveMetricsWithConfig(store MetricsStore, cfg Config) *ResolveMetrics {
	if cfg.TopNotFoundCapacity <= 0 {
		cfg.TopNotFoundCapacity = 100
	}
	if cfg.RecentNotFoundCapacity <= 0 {
		cfg.RecentNotFoundCapacity = 50
	}

	top, _ := lru.New[string, int64](cfg.TopNotFoundCapacity)
	m := &ResolveMetrics{
		outcomes:       make(map[string]int64),
		strategies:     make(map[string]int64),
		providers:      make(map[string]*ProviderStats),
		latencies:      make(map[LatencyBucket]int64),
		topNotFound:    top,
		recentNotFound: NewCircularBuffer[string](cfg.RecentNotFoundCapacity),
		startTime:      time.Now(),
		pending:        newPending(),
		store:          store,
		stopCh:         make(chan struct{}),
	}

	if cfg.FlushInterval > 0 && store != nil {
		m.flushTicker = time.NewTicker(cfg.FlushInterval)
		go m.flushLoop()
	}
	return m
}

func (m *ResolveMetrics) flushLoop() {
	for {
		select {
		case <-m.flushTicker.C:
			_ = m.Flush()
		case <-m.stopCh:
			return
		}
	}
}

// RecordBatch captures the outcome of one batch.
func (m *ResolveMetrics) RecordBatch(event BatchEvent) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	m.batches++
	m.items += int64(event.Items)
	m.strategies[event.Strategy]++
	for outcome, n := range event.Outcomes {
		m.outcomes[outcome] += int64(n)
		m.pending.outcomes[outcome] += int64(n)
	}
}

// RecordProviderCall captures one provider search.
func (m *ResolveMetrics) RecordProviderCall(event ProviderEvent) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	ps, ok := m.providers[event.Provider]
	if !ok {
		ps = &ProviderStats{}
		m.providers[event.Provider] = ps
	}
	ps.Calls++
	if event.Hit {
		ps.Hits++
	}
	if event.Err {
		ps.Errors++
	}

	bucket := LatencyToBucket(event.Latency)
	m.latencies[bucket]++
	m.pending.latencies[bucket]++
}

// RecordNotFound notes a query that no provider resolved.
func (m *ResolveMetrics) RecordNotFound(query string) {
	if m == nil {
		return
	}
	q := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	if q == "" {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	count, _ := m.topNotFound.Get(q)
	m.topNotFound.Add(q, count+1)
	m.recentNotFound.Add(q)
	m.pending.notFound[q]++
}

// Snapshot returns current metrics for reporting.
func (m *ResolveMetrics) Snapshot() *Snapshot {
	if m == nil {
		return &Snapshot{
			Outcomes:            map[string]int64{},
			Strategies:          map[string]int64{},
			Providers:           map[string]ProviderStats{},
			LatencyDistribution: map[LatencyBucket]int64{},
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Snapshot{
		TotalBatches:        m.batches,
		TotalItems:          m.items,
		Outcomes:            make(map[string]int64, len(m.outcomes)),
		Strategies:          make(map[string]int64, len(m.strategies)),
		Providers:           make(map[string]ProviderStats, len(m.providers)),
		LatencyDistribution: make(map[LatencyBucket]int64, len(m.latencies)),
		RecentNotFound:      m.recentNotFound.Items(),
		Since:               m.startTime,
	}
	for k, v := range m.outcomes {
		s.Outcomes[k] = v
	}
	for k, v := range m.strategies {
		s.Strategies[k] = v
	}
	for k, v := range m.providers {
		s.Providers[k] = *v
	}
	for k, v := range m.latencies {
		s.LatencyDistribution[k] = v
	}

	for _, q := range m.topNotFound.Keys() {
		if n, ok := m.topNotFound.Peek(q); ok {
			s.TopNotFound = append(s.TopNotFound, QueryCount{Query: q, Count: n})
		}
	}
	sort.SliceStable(s.TopNotFound, func(i, j int) bool {
		if s.TopNotFound[i].Count != s.TopNotFound[j].Count {
			return s.TopNotFound[i].Count > s.TopNotFound[j].Count
		}
		return s.TopNotFound[i].Query < s.TopNotFound[j].Query
	})
	return s
}

// Flush persists counts accumulated since the previous flush.
// Safe to call even if no store is configured.
func (m *ResolveMetrics) Flush() error {
	if m == nil || m.store == nil {
		return nil
	}

	m.mu.Lock()
	pending := m.pending
	m.pending = newPending()
	m.mu.Unlock()

	today := time.Now().Format("2006-01-02")
	if err := m.store.SaveOutcomeCounts(today, pending.outcomes); err != nil {
		return err
	}
	if err := m.store.SaveLatencyCounts(today, pending.latencies); err != nil {
		return err
	}
	return m.store.UpsertNotFoundCounts(pending.notFound)
}

// Close stops auto-flush and flushes once more. The store itself is owned
// by the caller.
func (m *ResolveMetrics) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.flushTicker != nil {
		m.flushTicker.Stop()
		close(m.stopCh)
	}
	return m.Flush()
}
