package settlement

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики очереди сеттлмента
// ============================================================

// ExecutionLatency - время одной попытки записи в леджер
var ExecutionLatency = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "indexmarket",
		Subsystem: "settlement",
		Name:      "execution_latency_ms",
		Help:      "Time of a single ledger write attempt in milliseconds",
		Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000},
	},
)

// SettlementsTotal - завершённые запросы по терминальному статусу
var SettlementsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "indexmarket",
		Subsystem: "settlement",
		Name:      "settlements_total",
		Help:      "Total settlement requests by terminal status",
	},
	[]string{"status"}, // completed, failed
)

// RetriesTotal - повторные попытки
var RetriesTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "indexmarket",
		Subsystem: "settlement",
		Name:      "retries_total",
		Help:      "Total settlement retry attempts",
	},
)

// QueueDepth - текущая глубина лейнов
var QueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "indexmarket",
		Subsystem: "settlement",
		Name:      "queue_depth",
		Help:      "Current depth of each priority lane",
	},
	[]string{"lane"},
)
