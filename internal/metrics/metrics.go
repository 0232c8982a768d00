package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CallStatusProvider exposes the state of the single call slot.
type CallStatusProvider interface {
	// ActiveCall reports whether a call occupies the slot, and its state
	// label when it does.
	ActiveCall() (bool, string)
}

// RegistrationProvider reports the SIP registration state.
type RegistrationProvider interface {
	Registered() bool
}

// CallDirectionCounter returns history counts grouped by direction.
type CallDirectionCounter interface {
	CountByDirection(ctx context.Context) (map[string]int64, error)
}

// AnalyticsStatsProvider exposes analytics pipeline counters.
type AnalyticsStatsProvider interface {
	Processed() int64
	Failed() int64
	QueueDepth() int
}

// Collector is a prometheus.Collector that gathers softphone metrics at
// scrape time.
type Collector struct {
	call         CallStatusProvider
	registration RegistrationProvider
	history      CallDirectionCounter
	analytics    AnalyticsStatsProvider
	startTime    time.Time

	activeCallDesc      *prometheus.Desc
	registeredDesc      *prometheus.Desc
	callsTotalDesc      *prometheus.Desc
	analyticsDoneDesc   *prometheus.Desc
	analyticsFailedDesc *prometheus.Desc
	analyticsQueuedDesc *prometheus.Desc
	uptimeDesc          *prometheus.Desc
}

// NewCollector creates a new metrics collector. Any provider may be nil if
// unavailable.
func NewCollector(
	call CallStatusProvider,
	registration RegistrationProvider,
	history CallDirectionCounter,
	analytics AnalyticsStatsProvider,
	startTime time.Time,
) *Collector {
	return &Collector{
		call:         call,
		registration: registration,
		history:      history,
		analytics:    analytics,
		startTime:    startTime,

		activeCallDesc: prometheus.NewDesc(
			"sipdeck_active_call",
			"Whether a call currently occupies the line (1) with its state label",
			[]string{"state"}, nil,
		),
		registeredDesc: prometheus.NewDesc(
			"sipdeck_sip_registered",
			"Whether the SIP account is currently registered",
			nil, nil,
		),
		callsTotalDesc: prometheus.NewDesc(
			"sipdeck_calls_total",
			"Total number of calls in the history",
			[]string{"direction"}, nil,
		),
		analyticsDoneDesc: prometheus.NewDesc(
			"sipdeck_analytics_processed_total",
			"Analytics jobs completed since startup",
			nil, nil,
		),
		analyticsFailedDesc: prometheus.NewDesc(
			"sipdeck_analytics_failed_total",
			"Analytics jobs failed since startup",
			nil, nil,
		),
		analyticsQueuedDesc: prometheus.NewDesc(
			"sipdeck_analytics_queue_depth",
			"Analytics jobs waiting in the queue",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"sipdeck_uptime_seconds",
			"Seconds since the sipdeck process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeCallDesc
	ch <- c.registeredDesc
	ch <- c.callsTotalDesc
	ch <- c.analyticsDoneDesc
	ch <- c.analyticsFailedDesc
	ch <- c.analyticsQueuedDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector. It queries all providers at
// scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.call != nil {
		active, state := c.call.ActiveCall()
		val := 0.0
		if active {
			val = 1.0
		} else {
			state = "idle"
		}
		ch <- prometheus.MustNewConstMetric(
			c.activeCallDesc, prometheus.GaugeValue, val, state,
		)
	}

	if c.registration != nil {
		val := 0.0
		if c.registration.Registered() {
			val = 1.0
		}
		ch <- prometheus.MustNewConstMetric(
			c.registeredDesc, prometheus.GaugeValue, val,
		)
	}

	if c.history != nil {
		counts, err := c.history.CountByDirection(ctx)
		if err != nil {
			slog.Error("metrics: failed to count calls by direction", "error", err)
		} else {
			for _, dir := range []string{"inbound", "outbound"} {
				ch <- prometheus.MustNewConstMetric(
					c.callsTotalDesc, prometheus.CounterValue,
					float64(counts[dir]), dir,
				)
			}
		}
	}

	if c.analytics != nil {
		ch <- prometheus.MustNewConstMetric(
			c.analyticsDoneDesc, prometheus.CounterValue,
			float64(c.analytics.Processed()),
		)
		ch <- prometheus.MustNewConstMetric(
			c.analyticsFailedDesc, prometheus.CounterValue,
			float64(c.analytics.Failed()),
		)
		ch <- prometheus.MustNewConstMetric(
			c.analyticsQueuedDesc, prometheus.GaugeValue,
			float64(c.analytics.QueueDepth()),
		)
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
