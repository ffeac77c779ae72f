package metrics

import "github.com/prometheus/client_golang/prometheus"

// StockMetrics tracks shared stock watches and their subscribers.
type StockMetrics struct {
	watches     prometheus.Gauge
	subscribers prometheus.Gauge
}

// NewStockMetrics registers the stock gauges on the provided registerer.
func NewStockMetrics(reg prometheus.Registerer) *StockMetrics {
	if reg == nil {
		return &StockMetrics{}
	}
	watches := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_stock_watches_open",
		Help: "Underlying stock watches currently open.",
	})
	subscribers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "storefront_stock_subscribers",
		Help: "Stock subscribers currently attached to a watch.",
	})
	reg.MustRegister(watches, subscribers)
	return &StockMetrics{watches: watches, subscribers: subscribers}
}

func (m *StockMetrics) WatchOpened() {
	if m == nil || m.watches == nil {
		return
	}
	m.watches.Inc()
}

func (m *StockMetrics) WatchClosed() {
	if m == nil || m.watches == nil {
		return
	}
	m.watches.Dec()
}

func (m *StockMetrics) SubscriberAdded() {
	if m == nil || m.subscribers == nil {
		return
	}
	m.subscribers.Inc()
}

func (m *StockMetrics) SubscriberRemoved() {
	if m == nil || m.subscribers == nil {
		return
	}
	m.subscribers.Dec()
}
