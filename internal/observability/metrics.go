package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the auction service.
type Metrics struct {
	// --- Orders ---
	OrdersSubmitted *prometheus.CounterVec
	OrdersRejected  *prometheus.CounterVec
	OrdersCancelled *prometheus.CounterVec
	PendingOrders   *prometheus.GaugeVec
	PendingDeposit  *prometheus.GaugeVec

	// --- Rounds ---
	RoundsTriggered    prometheus.Counter
	RoundsSettled      prometheus.Counter
	RoundsRejected     *prometheus.CounterVec
	RoundState         prometheus.Gauge
	RoundOrders        prometheus.Histogram
	SettlementDuration prometheus.Histogram
	DecryptionWait     prometheus.Histogram
	Trades             prometheus.Counter
	MatchedVolume      prometheus.Counter
	ClearingPrice      prometheus.Gauge
	Refunds            *prometheus.CounterVec

	// --- Collateral ---
	CollateralMoves *prometheus.CounterVec
	CoreJournals    *prometheus.CounterVec
	CoreSequence    prometheus.Gauge

	// --- Idempotency ---
	IdempotencyDuplicates *prometheus.CounterVec

	// --- Channels ---
	ChannelSize        *prometheus.GaugeVec
	ChannelCapacity    *prometheus.GaugeVec
	ChannelUtilization *prometheus.GaugeVec
	PublishDrops       prometheus.Counter

	// --- Persistence ---
	PersistEventsWritten   prometheus.Counter
	PersistJournalsWritten prometheus.Counter
	PersistBatchSize       prometheus.Histogram
	PersistBatchDur        prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistRetry           prometheus.Counter
	PersistLastSequence    prometheus.Gauge

	// --- Snapshot ---
	SnapshotTaken     prometheus.Counter
	SnapshotDuration  prometheus.Histogram
	SnapshotSizeBytes prometheus.Gauge

	// --- API ---
	APIRequests *prometheus.CounterVec
	APIDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics on reg. A nil reg uses the
// default Prometheus registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	latencyBuckets := []float64{
		0.00001, 0.00005, 0.0001, 0.00025, 0.0005,
		0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1,
	}

	return &Metrics{
		OrdersSubmitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sealed_orders_submitted_total",
			Help: "Sealed orders accepted into the pending pool",
		}, []string{"side"}),

		OrdersRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sealed_orders_rejected_total",
			Help: "Submit or cancel calls rejected",
		}, []string{"op", "reason"}),

		OrdersCancelled: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sealed_orders_cancelled_total",
			Help: "Orders cancelled by their owner",
		}, []string{"side"}),

		PendingOrders: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sealed_pending_orders",
			Help: "Orders waiting for the next round",
		}, []string{"side"}),

		PendingDeposit: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sealed_pending_deposit",
			Help: "Collateral locked by pending orders, fixed-point",
		}, []string{"side"}),

		RoundsTriggered: f.NewCounter(prometheus.CounterOpts{
			Name: "sealed_rounds_triggered_total",
			Help: "Rounds handed to the decryption oracle",
		}),

		RoundsSettled: f.NewCounter(prometheus.CounterOpts{
			Name: "sealed_rounds_settled_total",
			Help: "Rounds matched and settled",
		}),

		RoundsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sealed_rounds_rejected_total",
			Help: "Trigger calls or decrypted batches rejected",
		}, []string{"stage", "reason"}),

		RoundState: f.NewGauge(prometheus.GaugeOpts{
			Name: "sealed_round_state",
			Help: "0 idle, 1 awaiting decryption",
		}),

		RoundOrders: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sealed_round_orders",
			Help:    "Orders swept into a round",
			Buckets: []float64{2, 4, 8, 16, 32, 64, 128, 256, 512},
		}),

		SettlementDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sealed_settlement_duration_seconds",
			Help:    "Match plus settle time inside the callback",
			Buckets: latencyBuckets,
		}),

		DecryptionWait: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sealed_decryption_wait_seconds",
			Help:    "Trigger to decrypted batch arrival",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		Trades: f.NewCounter(prometheus.CounterOpts{
			Name: "sealed_trades_total",
			Help: "Crossed buy/sell pairs",
		}),

		MatchedVolume: f.NewCounter(prometheus.CounterOpts{
			Name: "sealed_matched_volume_total",
			Help: "Matched base quantity, fixed-point",
		}),

		ClearingPrice: f.NewGauge(prometheus.GaugeOpts{
			Name: "sealed_last_clearing_price",
			Help: "Representative price of the last settled round",
		}),

		Refunds: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sealed_refunds_total",
			Help: "Collateral returned from custody, fixed-point",
		}, []string{"asset", "reason"}),

		CollateralMoves: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sealed_collateral_moves_total",
			Help: "Wallet deposits and withdrawals applied",
		}, []string{"direction", "asset"}),

		CoreJournals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sealed_core_journals_generated_total",
			Help: "Journal entries generated",
		}, []string{"journal_type"}),

		CoreSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "sealed_core_sequence",
			Help: "Current engine sequence number",
		}),

		IdempotencyDuplicates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sealed_idempotency_duplicates_total",
			Help: "Duplicates caught (lru/postgres)",
		}, []string{"event_type", "tier"}),

		ChannelSize: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sealed_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sealed_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sealed_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		PublishDrops: f.NewCounter(prometheus.CounterOpts{
			Name: "sealed_publish_drops_total",
			Help: "Events dropped due to full publish channel",
		}),

		PersistEventsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "sealed_persist_events_written_total",
			Help: "Events written to Postgres",
		}),

		PersistJournalsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "sealed_persist_journals_written_total",
			Help: "Journal entries written to Postgres",
		}),

		PersistBatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sealed_persist_batch_size",
			Help:    "Events per batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),

		PersistBatchDur: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sealed_persist_batch_duration_seconds",
			Help:    "Postgres batch write duration",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),

		PersistErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sealed_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: f.NewCounter(prometheus.CounterOpts{
			Name: "sealed_persist_retry_total",
			Help: "Persistence retries",
		}),

		PersistLastSequence: f.NewGauge(prometheus.GaugeOpts{
			Name: "sealed_persist_last_sequence",
			Help: "Last persisted sequence",
		}),

		SnapshotTaken: f.NewCounter(prometheus.CounterOpts{
			Name: "sealed_snapshot_taken_total",
			Help: "Snapshots created",
		}),

		SnapshotDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "sealed_snapshot_duration_seconds",
			Help:    "Snapshot creation time",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}),

		SnapshotSizeBytes: f.NewGauge(prometheus.GaugeOpts{
			Name: "sealed_snapshot_size_bytes",
			Help: "Last snapshot size",
		}),

		APIRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sealed_api_requests_total",
			Help: "API requests by method and outcome",
		}, []string{"method", "code"}),

		APIDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sealed_api_duration_seconds",
			Help:    "API latency",
			Buckets: latencyBuckets,
		}, []string{"method"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
