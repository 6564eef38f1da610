package monitoring

import (
	"context"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	quantityChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_quantity_checks_total",
			Help: "Ticket quantity validations by result",
		},
		[]string{"result"},
	)

	checkoutHandoffs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_handoffs_total",
			Help: "Proceed-to-payment attempts by outcome",
		},
		[]string{"outcome"},
	)

	bookingOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "booking_operations_total",
			Help: "Booking commits and cancellations",
		},
		[]string{"operation", "status"},
	)

	authAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_attempts_total",
			Help: "Login, registration and reset attempts",
		},
		[]string{"flow", "status"},
	)

	remoteCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "remote_call_duration_seconds",
			Help:    "Latency of store and identity provider calls",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"call"},
	)

	pendingIntents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "booking_intents_pending",
			Help: "Booking intents parked while their tab logs in",
		},
	)
)

// Monitor records workflow metrics.  A nil *Monitor is valid and still
// records counters; it only lacks the Redis-backed gauge collection.
type Monitor struct {
	redis        *redis.Client
	intentPrefix string
}

// NewMonitor starts the periodic gauge collection when rdb is set.
func NewMonitor(ctx context.Context, rdb *redis.Client, intentPrefix string) *Monitor {
	m := &Monitor{redis: rdb, intentPrefix: intentPrefix}
	if rdb != nil {
		go m.collectMetrics(ctx)
	}
	return m
}

func (m *Monitor) collectMetrics(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collectIntentMetrics(ctx)
		}
	}
}

func (m *Monitor) collectIntentMetrics(ctx context.Context) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := m.redis.Scan(ctx, cursor, m.intentPrefix+":*", 200).Result()
		if err != nil {
			log.Warnf("monitor: scan intents: %v", err)
			return
		}
		total += len(keys)
		if cursor = next; cursor == 0 {
			break
		}
	}
	pendingIntents.Set(float64(total))
}

func (m *Monitor) TrackQuantity(result string) { quantityChecks.WithLabelValues(result).Inc() }

func (m *Monitor) TrackCheckout(outcome string) { checkoutHandoffs.WithLabelValues(outcome).Inc() }

func (m *Monitor) TrackBooking(operation, status string) {
	bookingOperations.WithLabelValues(operation, status).Inc()
}

func (m *Monitor) TrackAuth(flow, status string) { authAttempts.WithLabelValues(flow, status).Inc() }

// ObserveCall records how long a remote call took; use with defer:
//
//	defer m.ObserveCall("events.available", time.Now())
func (m *Monitor) ObserveCall(call string, start time.Time) {
	remoteCallDuration.WithLabelValues(call).Observe(time.Since(start).Seconds())
}
