package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics 定义支付网关的业务监控指标
type BusinessMetrics struct {
	PaymentsReceivedTotal  prometheus.Counter
	PaymentsDuplicateTotal prometheus.Counter
	ForwardsTotal          *prometheus.CounterVec
	ForwardDuration        prometheus.Histogram
	CallbacksTotal         *prometheus.CounterVec
	SweepDuration          prometheus.Histogram
	PaymentsExpiredTotal   prometheus.Counter
	AddressesIssuedTotal   prometheus.Counter
	ExchangeRate           prometheus.Gauge
}

// Business 全局业务指标，包加载时即注册，服务层直接引用
var Business = newBusinessMetrics()

func newBusinessMetrics() *BusinessMetrics {
	return &BusinessMetrics{
		PaymentsReceivedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paygate_payments_received_total",
			Help: "The total number of payments recorded",
		}),
		PaymentsDuplicateTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paygate_payments_duplicate_total",
			Help: "The total number of duplicate payment deliveries absorbed",
		}),
		ForwardsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paygate_forwards_total",
			Help: "The total number of forwarding attempts",
		}, []string{"result"}),
		ForwardDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "paygate_forward_duration_seconds",
			Help:    "Duration of forward transactions",
			Buckets: prometheus.DefBuckets,
		}),
		CallbacksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "paygate_callbacks_total",
			Help: "The total number of merchant callbacks",
		}, []string{"result"}),
		SweepDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "paygate_sweep_duration_seconds",
			Help:    "Duration of confirmation sweep passes",
			Buckets: prometheus.DefBuckets,
		}),
		PaymentsExpiredTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paygate_payments_expired_total",
			Help: "The total number of payments deactivated by retention expiry",
		}),
		AddressesIssuedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paygate_addresses_issued_total",
			Help: "The total number of deposit addresses issued",
		}),
		ExchangeRate: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "paygate_exchange_rate_btcusd",
			Help: "Last observed BTCUSD exchange rate",
		}),
	}
}
