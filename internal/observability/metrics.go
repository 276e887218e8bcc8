// Package observability exposes engine activity as Prometheus metrics.
package observability

import (
	"math/big"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector the engine and its transports report to.
type Metrics struct {
	// Operation metrics
	OperationsTotal      *prometheus.CounterVec
	OperationDuration    *prometheus.HistogramVec
	ReentrancyRejections prometheus.Counter

	// Pool metrics
	ReserveA    prometheus.Gauge
	ReserveB    prometheus.Gauge
	TotalShares prometheus.Gauge

	// Swap metrics
	SwapsTotal prometheus.Counter
	SwapVolume *prometheus.CounterVec

	// Flash loan metrics
	FlashLoansTotal *prometheus.CounterVec

	// Farming metrics
	FarmStaked     *prometheus.GaugeVec
	RewardsClaimed prometheus.Counter

	// Event stream metrics
	EventsPublished *prometheus.CounterVec
	JournalErrors   prometheus.Counter
	WSClients       prometheus.Gauge
}

// NewMetrics registers all collectors on the default registry under the
// given namespace. Call it once per process; an empty namespace picks
// "fundex".
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "fundex"
	}

	return &Metrics{
		// Operation metrics
		OperationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operations_total",
			Help:      "Total number of engine operations by outcome",
		}, []string{"op", "status"}),
		OperationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "operation_duration_seconds",
			Help:      "Engine operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		ReentrancyRejections: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "reentrancy_rejections_total",
			Help:      "Total number of calls rejected by the reentrancy guard",
		}),

		// Pool metrics
		ReserveA: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "reserve_a",
			Help:      "Current asset A reserve in base units",
		}),
		ReserveB: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "reserve_b",
			Help:      "Current asset B reserve in base units",
		}),
		TotalShares: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "total_shares",
			Help:      "Total liquidity shares outstanding",
		}),

		// Swap metrics
		SwapsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "executed_total",
			Help:      "Total number of executed swaps",
		}),
		SwapVolume: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "volume_base_units_total",
			Help:      "Cumulative swap input volume in base units by asset",
		}, []string{"asset"}),

		// Flash loan metrics
		FlashLoansTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flash",
			Name:      "loans_total",
			Help:      "Total number of flash loans by outcome",
		}, []string{"status"}),

		// Farming metrics
		FarmStaked: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "farm",
			Name:      "staked_base_units",
			Help:      "Currently staked principal in base units by pool",
		}, []string{"pool"}),
		RewardsClaimed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "farm",
			Name:      "rewards_claimed_total",
			Help:      "Cumulative rewards paid out in base units",
		}),

		// Event stream metrics
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Total number of committed events by type",
		}, []string{"type"}),
		JournalErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "journal_errors_total",
			Help:      "Total number of persistence failures while recording events",
		}),
		WSClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "ws_clients",
			Help:      "Currently connected websocket subscribers",
		}),
	}
}

// Handler serves the default registry in Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the process-wide instance the Record helpers write to.
var DefaultMetrics = NewMetrics("")

// RecordOperation records one engine operation with its outcome and duration.
func RecordOperation(op, status string, seconds float64) {
	DefaultMetrics.OperationsTotal.WithLabelValues(op, status).Inc()
	DefaultMetrics.OperationDuration.WithLabelValues(op).Observe(seconds)
}

// RecordReentrancyRejection counts a call rejected mid-callback.
func RecordReentrancyRejection() {
	DefaultMetrics.ReentrancyRejections.Inc()
}

// RecordFlashLoan counts a flash loan by outcome.
func RecordFlashLoan(status string) {
	DefaultMetrics.FlashLoansTotal.WithLabelValues(status).Inc()
}

// RecordEventPublished counts a committed event by type.
func RecordEventPublished(eventType string) {
	DefaultMetrics.EventsPublished.WithLabelValues(eventType).Inc()
}

// RecordJournalError counts a persistence failure.
func RecordJournalError() {
	DefaultMetrics.JournalErrors.Inc()
}

// SetWSClients updates the websocket subscriber gauge.
func SetWSClients(n int) {
	DefaultMetrics.WSClients.Set(float64(n))
}

// UpdatePoolGauges sets the reserve and share gauges.
func UpdatePoolGauges(reserveA, reserveB, totalShares *big.Int) {
	DefaultMetrics.ReserveA.Set(bigToFloat(reserveA))
	DefaultMetrics.ReserveB.Set(bigToFloat(reserveB))
	DefaultMetrics.TotalShares.Set(bigToFloat(totalShares))
}

// RecordSwap counts an executed swap and its input volume.
func RecordSwap(assetIn string, amountIn *big.Int) {
	DefaultMetrics.SwapsTotal.Inc()
	DefaultMetrics.SwapVolume.WithLabelValues(assetIn).Add(bigToFloat(amountIn))
}

// UpdateFarmStaked sets the staked gauge for one pool.
func UpdateFarmStaked(poolID string, totalStaked *big.Int) {
	DefaultMetrics.FarmStaked.WithLabelValues(poolID).Set(bigToFloat(totalStaked))
}

// RecordRewardsClaimed adds a reward payout to the cumulative counter.
func RecordRewardsClaimed(amount *big.Int) {
	DefaultMetrics.RewardsClaimed.Add(bigToFloat(amount))
}

// bigToFloat renders an arbitrary-precision amount for a gauge. Precision
// loss above 2^53 is acceptable for monitoring.
func bigToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
