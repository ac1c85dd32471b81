package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики торгового ядра
// ============================================================
//
// - Латентность исполнения ордеров (роутер не должен блокироваться
//   на сеттлменте - гистограмма это покажет)
// - Счётчики чанков по источникам (баланс pool/orderbook)
// - Деградации источников (алерты на нестабильные коллабораторы)

// OrderExecutionLatency - полное время роутинга одного ордера
var OrderExecutionLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "indexmarket",
		Subsystem: "trading",
		Name:      "order_execution_latency_ms",
		Help:      "Time to route and execute an order in milliseconds",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250},
	},
	[]string{"side"},
)

// RouterChunksTotal - исполненные чанки по источникам
var RouterChunksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "indexmarket",
		Subsystem: "trading",
		Name:      "router_chunks_total",
		Help:      "Total executed chunks by liquidity source",
	},
	[]string{"source"}, // pool, orderbook
)

// OrdersTotal - принятые ордера по результату
var OrdersTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "indexmarket",
		Subsystem: "trading",
		Name:      "orders_total",
		Help:      "Total submitted orders by side and result",
	},
	[]string{"side", "result"}, // result: filled, partial, rejected
)

// CurveTradesTotal - сделки против кривой выпуска
var CurveTradesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "indexmarket",
		Subsystem: "trading",
		Name:      "curve_trades_total",
		Help:      "Total trades executed against the issuance curve",
	},
	[]string{"side"},
)

// GraduationsTotal - одноразовые события градуации
var GraduationsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "indexmarket",
		Subsystem: "trading",
		Name:      "graduations_total",
		Help:      "Total tokens graduated to hybrid execution",
	},
)
