// Package perf keeps a bounded window of request and query timings for the admin diagnostics endpoint.
package perf

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRingSize is the default capacity of the ring buffer.
const DefaultRingSize = 4096

// Kind distinguishes HTTP requests from store statements.
type Kind uint8

const (
	KindRequest Kind = iota
	KindQuery
)

// Sample is a single timing record.
type Sample struct {
	Kind     Kind
	Name     string // "GET /api/fines" or a statement kind such as "exec"
	Status   int    // HTTP status, 0 for queries
	Duration time.Duration
	At       time.Time
}

// Collector is a fixed-size ring buffer of samples.
// Writes never block on readers; when full the oldest sample is overwritten.
type Collector struct {
	mu      sync.Mutex
	samples []Sample
	pos     int
	total   atomic.Int64
	errors  atomic.Int64
}

// NewCollector creates a collector holding at most size samples.
// PRE: none; a non-positive size uses DefaultRingSize
// POST: Returns a ready-to-use collector
func NewCollector(size int) *Collector {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Collector{samples: make([]Sample, size)}
}

// RecordRequest stores one HTTP request timing.
func (c *Collector) RecordRequest(method, route string, status int, d time.Duration, at time.Time) {
	if status >= 500 {
		c.errors.Add(1)
	}
	c.record(Sample{Kind: KindRequest, Name: method + " " + route, Status: status, Duration: d, At: at})
}

// RecordQuery stores one store statement timing.
// Its signature matches the storage.TimedDB hook.
func (c *Collector) RecordQuery(op string, d time.Duration) {
	c.record(Sample{Kind: KindQuery, Name: op, Duration: d, At: time.Now()})
}

func (c *Collector) record(s Sample) {
	c.mu.Lock()
	c.samples[c.pos] = s
	c.pos = (c.pos + 1) % len(c.samples)
	c.mu.Unlock()
	c.total.Add(1)
}

// Total returns the number of samples ever recorded.
func (c *Collector) Total() int64 {
	return c.total.Load()
}

// Snapshot is the aggregated view served to admins.
type Snapshot struct {
	Since          time.Time `json:"since"`
	Requests       int       `json:"requests"`
	ServerErrors   int64     `json:"serverErrors"`
	P50Ms          float64   `json:"p50Ms"`
	P95Ms          float64   `json:"p95Ms"`
	P99Ms          float64   `json:"p99Ms"`
	SlowestRoutes  []Stat    `json:"slowestRoutes"`
	SlowestQueries []Stat    `json:"slowestQueries"`
}

// Stat aggregates samples sharing a name.
type Stat struct {
	Name  string  `json:"name"`
	Count int     `json:"count"`
	AvgMs float64 `json:"avgMs"`
	MaxMs float64 `json:"maxMs"`
	sumMs float64
}

// Snapshot aggregates samples recorded at or after since.
// POST: Routes and queries each limited to topN, slowest average first
func (c *Collector) Snapshot(since time.Time, topN int) Snapshot {
	c.mu.Lock()
	buf := make([]Sample, len(c.samples))
	copy(buf, c.samples)
	c.mu.Unlock()

	var durations []float64
	routes := make(map[string]*Stat)
	queries := make(map[string]*Stat)
	for _, s := range buf {
		if s.At.IsZero() || s.At.Before(since) {
			continue
		}
		ms := float64(s.Duration.Microseconds()) / 1000
		stats := queries
		if s.Kind == KindRequest {
			stats = routes
			durations = append(durations, ms)
		}
		st, ok := stats[s.Name]
		if !ok {
			st = &Stat{Name: s.Name}
			stats[s.Name] = st
		}
		st.Count++
		st.sumMs += ms
		st.MaxMs = math.Max(st.MaxMs, ms)
	}

	snap := Snapshot{
		Since:          since,
		Requests:       len(durations),
		ServerErrors:   c.errors.Load(),
		SlowestRoutes:  topByAvg(routes, topN),
		SlowestQueries: topByAvg(queries, topN),
	}
	if len(durations) > 0 {
		sort.Float64s(durations)
		snap.P50Ms = percentile(durations, 50)
		snap.P95Ms = percentile(durations, 95)
		snap.P99Ms = percentile(durations, 99)
	}
	return snap
}

// percentile interpolates the p-th percentile of a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (p / 100) * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))
	if lower == upper {
		return sorted[lower]
	}
	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

func topByAvg(stats map[string]*Stat, n int) []Stat {
	list := make([]Stat, 0, len(stats))
	for _, s := range stats {
		s.AvgMs = s.sumMs / float64(s.Count)
		list = append(list, *s)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].AvgMs != list[j].AvgMs {
			return list[i].AvgMs > list[j].AvgMs
		}
		return list[i].Name < list[j].Name
	})
	if n > 0 && len(list) > n {
		list = list[:n]
	}
	return list
}
