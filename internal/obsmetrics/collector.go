// Package obsmetrics exposes Prometheus counters, gauges and histograms
// for the matching engine: orders processed, matches executed, book
// depth, and match latency.
package obsmetrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	collector     *Collector
	collectorOnce sync.Once
)

// Collector holds every metric the engine emits.
type Collector struct {
	OrdersTotal     *prometheus.CounterVec
	OrdersRejected  *prometheus.CounterVec
	MatchesTotal    *prometheus.CounterVec
	MatchedShares   *prometheus.CounterVec
	MatchLatency    *prometheus.HistogramVec
	BookDepth       *prometheus.GaugeVec
	SpreadTicks     *prometheus.GaugeVec
	RateLimitHits   *prometheus.CounterVec
	WSConnsActive   prometheus.Gauge
	RingBufferFull  prometheus.Counter
}

// GetCollector returns the process-wide singleton collector.
func GetCollector() *Collector {
	collectorOnce.Do(func() {
		collector = newCollector()
	})
	return collector
}

func newCollector() *Collector {
	c := &Collector{
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lobcore",
			Subsystem: "orders",
			Name:      "total",
			Help:      "Total number of orders submitted",
		}, []string{"symbol", "side"}),

		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lobcore",
			Subsystem: "orders",
			Name:      "rejected_total",
			Help:      "Total number of orders rejected before reaching the book",
		}, []string{"symbol", "reason"}),

		MatchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lobcore",
			Subsystem: "matching",
			Name:      "fills_total",
			Help:      "Total number of fills produced by the matching loop",
		}, []string{"symbol"}),

		MatchedShares: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lobcore",
			Subsystem: "matching",
			Name:      "shares_total",
			Help:      "Total shares matched",
		}, []string{"symbol"}),

		MatchLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lobcore",
			Subsystem: "matching",
			Name:      "latency_us",
			Help:      "Time from ring buffer submission to the engine's response, in microseconds",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		}, []string{"symbol"}),

		BookDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lobcore",
			Subsystem: "book",
			Name:      "depth",
			Help:      "Number of distinct price levels on a side of the book",
		}, []string{"symbol", "side"}),

		SpreadTicks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "lobcore",
			Subsystem: "book",
			Name:      "spread_ticks",
			Help:      "Best ask minus best bid, in price ticks",
		}, []string{"symbol"}),

		RateLimitHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lobcore",
			Subsystem: "gateway",
			Name:      "rate_limit_hits_total",
			Help:      "Total requests rejected by the per-account rate limiter",
		}, []string{"account_id"}),

		WSConnsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lobcore",
			Subsystem: "websocket",
			Name:      "connections_active",
			Help:      "Number of connected websocket subscribers",
		}),

		RingBufferFull: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lobcore",
			Subsystem: "disruptor",
			Name:      "ring_buffer_full_total",
			Help:      "Times a producer exhausted its spin budget waiting for a free ring buffer slot",
		}),
	}

	c.registerAll()
	return c
}

func (c *Collector) registerAll() {
	prometheus.MustRegister(
		c.OrdersTotal,
		c.OrdersRejected,
		c.MatchesTotal,
		c.MatchedShares,
		c.MatchLatency,
		c.BookDepth,
		c.SpreadTicks,
		c.RateLimitHits,
		c.WSConnsActive,
		c.RingBufferFull,
	)
}

// RecordOrder records an accepted order submission.
func (c *Collector) RecordOrder(symbol, side string) {
	c.OrdersTotal.WithLabelValues(symbol, side).Inc()
}

// RecordRejected records an order that never reached the book.
func (c *Collector) RecordRejected(symbol, reason string) {
	c.OrdersRejected.WithLabelValues(symbol, reason).Inc()
}

// RecordFill records a single fill produced by the matching loop.
func (c *Collector) RecordFill(symbol string, shares int64) {
	c.MatchesTotal.WithLabelValues(symbol).Inc()
	c.MatchedShares.WithLabelValues(symbol).Add(float64(shares))
}

// RecordMatchLatency records how long one order took from ring buffer
// submission to the engine's response.
func (c *Collector) RecordMatchLatency(symbol string, d time.Duration) {
	c.MatchLatency.WithLabelValues(symbol).Observe(float64(d.Microseconds()))
}

// SetBookDepth records the current number of occupied price levels.
func (c *Collector) SetBookDepth(symbol, side string, depth int) {
	c.BookDepth.WithLabelValues(symbol, side).Set(float64(depth))
}

// SetSpread records the current bid/ask spread in ticks.
func (c *Collector) SetSpread(symbol string, ticks int64) {
	c.SpreadTicks.WithLabelValues(symbol).Set(float64(ticks))
}

// RecordRateLimitHit records a request rejected by the token bucket.
func (c *Collector) RecordRateLimitHit(accountID string) {
	c.RateLimitHits.WithLabelValues(accountID).Inc()
}

// RecordRingBufferFull records a producer giving up on Sequencer.Next
// after exhausting its spin budget.
func (c *Collector) RecordRingBufferFull() {
	c.RingBufferFull.Inc()
}

// Handler returns the HTTP handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures elapsed wall-clock time for a single operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() Timer {
	return Timer{start: time.Now()}
}

// Elapsed returns the time since the timer started.
func (t Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}
