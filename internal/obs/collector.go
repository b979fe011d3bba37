package obs

import (
	"execgw/internal/adapter"

	"github.com/prometheus/client_golang/prometheus"
)

var _ prometheus.Collector = (*Collector)(nil)

// Collector exports a Metrics snapshot to prometheus on every scrape.
type Collector struct {
	m *Metrics

	outcomes    *prometheus.Desc
	counters    map[string]*prometheus.Desc
	latencyAvg  *prometheus.Desc
	latencyMax  *prometheus.Desc
	latencyObsv *prometheus.Desc
}

// NewCollector builds a collector under namespace.
func NewCollector(namespace string, m *Metrics) *Collector {
	counter := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
	}
	return &Collector{
		m:        m,
		outcomes: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "outcomes_total"), "Resolved submissions by outcome code.", []string{"code"}, nil),
		counters: map[string]*prometheus.Desc{
			"posts":               counter("posts_total", "Correlated requests sent over the duplex connection."),
			"post_timeouts":       counter("post_timeouts_total", "Correlated requests that timed out."),
			"late_replies":        counter("late_replies_total", "Replies discarded because the request was no longer pending."),
			"push_dropped":        counter("push_dropped_total", "Push messages dropped on a full dispatch queue."),
			"batches_sent":        counter("batches_sent_total", "Batch actions submitted."),
			"batch_items":         counter("batch_items_total", "Orders submitted inside batch actions."),
			"rate_limited":        counter("rate_limited_total", "Outcomes resolved as rate limited."),
			"invalid_transitions": counter("invalid_transitions_total", "Order updates rejected for moving state backward."),
			"duplicate_fills":     counter("duplicate_fills_total", "Fills ignored as redelivered."),
			"reconnects":          counter("reconnects_total", "Duplex reconnects."),
			"fallback_sends":      counter("fallback_sends_total", "Submissions sent over the synchronous fallback."),
		},
		latencyAvg:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "latency_avg_seconds"), "Average latency.", []string{"op"}, nil),
		latencyMax:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "latency_max_seconds"), "Maximum latency.", []string{"op"}, nil),
		latencyObsv: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "latency_observations_total"), "Latency samples.", []string{"op"}, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.outcomes
	for _, d := range c.counters {
		ch <- d
	}
	ch <- c.latencyAvg
	ch <- c.latencyMax
	ch <- c.latencyObsv
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.m.Snapshot()
	for code := adapter.OutcomeOK; code <= adapter.OutcomeNotFound; code++ {
		ch <- prometheus.MustNewConstMetric(c.outcomes, prometheus.CounterValue, float64(s.Outcomes[code]), code.String())
	}

	values := map[string]uint64{
		"posts":               s.Posts,
		"post_timeouts":       s.PostTimeouts,
		"late_replies":        s.LateReplies,
		"push_dropped":        s.PushDropped,
		"batches_sent":        s.BatchesSent,
		"batch_items":         s.BatchItems,
		"rate_limited":        s.RateLimited,
		"invalid_transitions": s.InvalidTransitions,
		"duplicate_fills":     s.DuplicateFills,
		"reconnects":          s.Reconnects,
		"fallback_sends":      s.FallbackSends,
	}
	for name, d := range c.counters {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(values[name]))
	}

	for op, l := range map[string]LatencySnapshot{"post": s.PostLatency, "batch_flush": s.FlushLatency} {
		ch <- prometheus.MustNewConstMetric(c.latencyAvg, prometheus.GaugeValue, l.Avg.Seconds(), op)
		ch <- prometheus.MustNewConstMetric(c.latencyMax, prometheus.GaugeValue, l.Max.Seconds(), op)
		ch <- prometheus.MustNewConstMetric(c.latencyObsv, prometheus.CounterValue, float64(l.Count), op)
	}
}
