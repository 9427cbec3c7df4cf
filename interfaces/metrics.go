package interfaces

// MetricsCollector receives broker-level counters and gauges. The
// default implementation is a no-op; the metrics package provides a
// Prometheus-backed one.
type MetricsCollector interface {
	MessagePublished(exchange string, bytes int)
	MessageDelivered(queue string)
	MessageAcknowledged(queue string)
	MessageUnroutable(exchange string)
	QueueDeclared(name string)
	QueueDepth(name string, ready, unacked int)
	ConsumerAdded(queue string)
	ConsumerRemoved(queue string)
	ChannelOpened()
}

// NoOpMetricsCollector discards all metrics.
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) MessagePublished(string, int)    {}
func (NoOpMetricsCollector) MessageDelivered(string)         {}
func (NoOpMetricsCollector) MessageAcknowledged(string)      {}
func (NoOpMetricsCollector) MessageUnroutable(string)        {}
func (NoOpMetricsCollector) QueueDeclared(string)            {}
func (NoOpMetricsCollector) QueueDepth(string, int, int)     {}
func (NoOpMetricsCollector) ConsumerAdded(string)            {}
func (NoOpMetricsCollector) ConsumerRemoved(string)          {}
func (NoOpMetricsCollector) ChannelOpened()                  {}
