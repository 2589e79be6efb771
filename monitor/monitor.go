package monitor

import (
	"sync"
	"time"

	"github.com/c360/tiercache/errors"
	"github.com/c360/tiercache/metric"
)

// Tier identifies which cache layer an event refers to.
type Tier string

const (
	TierMemory  Tier = "memory"
	TierDisk    Tier = "disk"
	TierNetwork Tier = "network"
)

const (
	// maxEvents bounds the in-memory event ring. The oldest events are
	// discarded once the ring is full.
	maxEvents = 1000

	// durationWindow is the number of samples kept per operation for the
	// rolling average latency.
	durationWindow = 100

	// exportEvents is how many trailing events an Export includes.
	exportEvents = 50
)

// Event is a single recorded cache access.
type Event struct {
	Tier      Tier      `json:"tier"`
	Operation string    `json:"operation"`
	Hit       bool      `json:"hit"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats is a point-in-time snapshot of everything the monitor tracks.
//
// TotalRequests counts reads that consulted the cache tiers, i.e. memory
// hits plus memory misses. Forced refreshes bypass the tiers and show up
// only in NetworkRequests; they dilute neither hit rate.
type Stats struct {
	MemoryHits      int64              `json:"memory_hits"`
	MemoryMisses    int64              `json:"memory_misses"`
	MemoryHitRate   float64            `json:"memory_hit_rate"`
	DiskHits        int64              `json:"disk_hits"`
	DiskMisses      int64              `json:"disk_misses"`
	DiskHitRate     float64            `json:"disk_hit_rate"`
	NetworkRequests int64              `json:"network_requests"`
	TotalRequests   int64              `json:"total_requests"`
	OverallHitRate  float64            `json:"overall_hit_rate"`
	OperationCounts map[string]int64   `json:"operation_counts"`
	AvgDurationsMS  map[string]float64 `json:"average_durations_ms"`
	EventCount      int                `json:"event_count"`
}

// Export bundles a stats snapshot with the most recent events.
type Export struct {
	Timestamp time.Time `json:"timestamp"`
	Stats     Stats     `json:"stats"`
	Events    []Event   `json:"events"`
}

// Monitor tracks cache effectiveness across tiers. All methods are safe for
// concurrent use.
type Monitor struct {
	mu    sync.Mutex
	clock func() time.Time

	memoryHits      int64
	memoryMisses    int64
	diskHits        int64
	diskMisses      int64
	networkRequests int64

	opCounts  map[string]int64
	durations map[string][]time.Duration

	// events is a ring buffer: next points at the slot the next event
	// lands in once len(events) has reached maxEvents.
	events []Event
	next   int

	metrics *monitorMetrics
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock overrides the time source used to stamp events.
func WithClock(clock func() time.Time) Option {
	return func(m *Monitor) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// New creates a Monitor.
func New(options ...Option) *Monitor {
	m := &Monitor{
		clock:     time.Now,
		opCounts:  make(map[string]int64),
		durations: make(map[string][]time.Duration),
		events:    make([]Event, 0, maxEvents),
	}
	for _, opt := range options {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// NewWithMetrics creates a Monitor that mirrors its counters as Prometheus
// metrics under the given component name.
func NewWithMetrics(registry *metric.Registry, component string, options ...Option) (*Monitor, error) {
	m := New(options...)

	metrics, err := newMonitorMetrics(registry, component)
	if err != nil {
		return nil, errors.WrapTransient(err, "monitor", "NewWithMetrics", "metrics registration")
	}
	m.metrics = metrics
	return m, nil
}

// RecordHit records a hit on the given tier for an operation.
func (m *Monitor) RecordHit(tier Tier, operation string) {
	m.record(tier, operation, true)
}

// RecordMiss records a miss on the given tier for an operation.
func (m *Monitor) RecordMiss(tier Tier, operation string) {
	m.record(tier, operation, false)
}

// RecordNetworkRequest records a fetch that went to the network.
func (m *Monitor) RecordNetworkRequest(operation string) {
	m.mu.Lock()
	m.networkRequests++
	m.opCounts[operation]++
	m.appendEvent(Event{
		Tier:      TierNetwork,
		Operation: operation,
		Timestamp: m.clock(),
	})
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.recordNetworkRequest()
	}
}

// RecordDuration records how long an operation took. Only the most recent
// samples per operation contribute to the rolling average.
func (m *Monitor) RecordDuration(operation string, d time.Duration) {
	m.mu.Lock()
	window := m.durations[operation]
	if len(window) >= durationWindow {
		window = window[1:]
	}
	m.durations[operation] = append(window, d)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.observeDuration(operation, d)
	}
}

func (m *Monitor) record(tier Tier, operation string, hit bool) {
	m.mu.Lock()
	switch tier {
	case TierMemory:
		if hit {
			m.memoryHits++
		} else {
			m.memoryMisses++
		}
	case TierDisk:
		if hit {
			m.diskHits++
		} else {
			m.diskMisses++
		}
	case TierNetwork:
		// Network accesses are recorded via RecordNetworkRequest; a
		// hit/miss on the network tier only contributes an event.
	}
	m.opCounts[operation]++
	m.appendEvent(Event{
		Tier:      tier,
		Operation: operation,
		Hit:       hit,
		Timestamp: m.clock(),
	})
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.recordAccess(tier, hit)
	}
}

// appendEvent adds an event to the ring. Must be called with the lock held.
func (m *Monitor) appendEvent(e Event) {
	if len(m.events) < maxEvents {
		m.events = append(m.events, e)
		return
	}
	m.events[m.next] = e
	m.next = (m.next + 1) % maxEvents
}

// Stats returns a snapshot of all counters and rolling averages.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := Stats{
		MemoryHits:      m.memoryHits,
		MemoryMisses:    m.memoryMisses,
		MemoryHitRate:   ratio(m.memoryHits, m.memoryMisses),
		DiskHits:        m.diskHits,
		DiskMisses:      m.diskMisses,
		DiskHitRate:     ratio(m.diskHits, m.diskMisses),
		NetworkRequests: m.networkRequests,
		TotalRequests:   m.memoryHits + m.memoryMisses,
		OperationCounts: make(map[string]int64, len(m.opCounts)),
		AvgDurationsMS:  make(map[string]float64, len(m.durations)),
		EventCount:      len(m.events),
	}

	// A request is an overall hit when either cache tier served it.
	if s.TotalRequests > 0 {
		s.OverallHitRate = float64(m.memoryHits+m.diskHits) / float64(s.TotalRequests)
	}

	for op, count := range m.opCounts {
		s.OperationCounts[op] = count
	}
	for op, window := range m.durations {
		if len(window) == 0 {
			continue
		}
		var total time.Duration
		for _, d := range window {
			total += d
		}
		avg := total / time.Duration(len(window))
		s.AvgDurationsMS[op] = float64(avg) / float64(time.Millisecond)
	}

	return s
}

// RecentEvents returns up to limit of the most recent events in
// chronological order. A limit <= 0 returns all retained events.
func (m *Monitor) RecentEvents(limit int) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	ordered := m.orderedEvents()
	if limit > 0 && len(ordered) > limit {
		ordered = ordered[len(ordered)-limit:]
	}

	out := make([]Event, len(ordered))
	copy(out, ordered)
	return out
}

// Export returns a stats snapshot together with the trailing events,
// suitable for JSON serialization.
func (m *Monitor) Export() Export {
	stats := m.Stats()
	return Export{
		Timestamp: m.clock(),
		Stats:     stats,
		Events:    m.RecentEvents(exportEvents),
	}
}

// Reset zeroes all counters, averages, and retained events.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.memoryHits = 0
	m.memoryMisses = 0
	m.diskHits = 0
	m.diskMisses = 0
	m.networkRequests = 0
	m.opCounts = make(map[string]int64)
	m.durations = make(map[string][]time.Duration)
	m.events = make([]Event, 0, maxEvents)
	m.next = 0
}

// orderedEvents returns the ring contents oldest first. Must be called with
// the lock held.
func (m *Monitor) orderedEvents() []Event {
	if len(m.events) < maxEvents {
		return m.events
	}
	ordered := make([]Event, 0, maxEvents)
	ordered = append(ordered, m.events[m.next:]...)
	ordered = append(ordered, m.events[:m.next]...)
	return ordered
}

func ratio(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
