// Package metrics exposes broker activity as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ismaild/vumi/interfaces"
)

// Collector holds all Prometheus metrics for the gateway broker
type Collector struct {
	// Message metrics
	MessagesPublished      *prometheus.CounterVec
	MessagesPublishedBytes *prometheus.CounterVec
	MessagesDelivered      *prometheus.CounterVec
	MessagesAcknowledged   *prometheus.CounterVec
	MessagesUnroutable     *prometheus.CounterVec

	// Queue metrics
	QueuesDeclared       prometheus.Counter
	QueueMessagesReady   *prometheus.GaugeVec
	QueueMessagesUnacked *prometheus.GaugeVec

	// Consumer metrics
	ConsumersTotal *prometheus.GaugeVec

	// Channel metrics
	ChannelsOpened prometheus.Counter
}

// NewCollector creates a collector registered on the default
// Prometheus registry.
func NewCollector(namespace string) *Collector {
	return NewCollectorWith(namespace, prometheus.DefaultRegisterer)
}

// NewCollectorWith creates a collector on the given registerer. Tests
// pass a fresh registry to avoid duplicate registration.
func NewCollectorWith(namespace string, reg prometheus.Registerer) *Collector {
	if namespace == "" {
		namespace = "vumi"
	}
	factory := promauto.With(reg)

	return &Collector{
		MessagesPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_published_total",
			Help:      "Total number of messages published since gateway start",
		}, []string{"exchange"}),
		MessagesPublishedBytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_published_bytes_total",
			Help:      "Total bytes of messages published since gateway start",
		}, []string{"exchange"}),
		MessagesDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_delivered_total",
			Help:      "Total number of messages delivered to consumers since gateway start",
		}, []string{"queue"}),
		MessagesAcknowledged: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_acknowledged_total",
			Help:      "Total number of messages acknowledged since gateway start",
		}, []string{"queue"}),
		MessagesUnroutable: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_unroutable_total",
			Help:      "Total number of messages dropped for lack of a route",
		}, []string{"exchange"}),

		QueuesDeclared: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queues_declared_total",
			Help:      "Total number of queues declared since gateway start",
		}),
		QueueMessagesReady: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_messages_ready",
			Help:      "Number of messages ready to be delivered in queue",
		}, []string{"queue"}),
		QueueMessagesUnacked: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_messages_unacknowledged",
			Help:      "Number of messages delivered but not yet acknowledged in queue",
		}, []string{"queue"}),

		ConsumersTotal: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_consumers",
			Help:      "Number of consumers on queue",
		}, []string{"queue"}),

		ChannelsOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "channels_opened_total",
			Help:      "Total number of channels opened since gateway start",
		}),
	}
}

// MessagePublished records a publish on an exchange
func (c *Collector) MessagePublished(exchange string, bytes int) {
	c.MessagesPublished.WithLabelValues(exchange).Inc()
	c.MessagesPublishedBytes.WithLabelValues(exchange).Add(float64(bytes))
}

// MessageDelivered records a delivery from a queue
func (c *Collector) MessageDelivered(queue string) {
	c.MessagesDelivered.WithLabelValues(queue).Inc()
}

// MessageAcknowledged records an acknowledgement on a queue
func (c *Collector) MessageAcknowledged(queue string) {
	c.MessagesAcknowledged.WithLabelValues(queue).Inc()
}

// MessageUnroutable records a publish that found no exchange
func (c *Collector) MessageUnroutable(exchange string) {
	c.MessagesUnroutable.WithLabelValues(exchange).Inc()
}

// QueueDeclared records a queue declaration
func (c *Collector) QueueDeclared(string) {
	c.QueuesDeclared.Inc()
}

// QueueDepth records a queue's ready and unacked message counts
func (c *Collector) QueueDepth(name string, ready, unacked int) {
	c.QueueMessagesReady.WithLabelValues(name).Set(float64(ready))
	c.QueueMessagesUnacked.WithLabelValues(name).Set(float64(unacked))
}

// ConsumerAdded records a new consumer on a queue
func (c *Collector) ConsumerAdded(queue string) {
	c.ConsumersTotal.WithLabelValues(queue).Inc()
}

// ConsumerRemoved records a consumer leaving a queue
func (c *Collector) ConsumerRemoved(queue string) {
	c.ConsumersTotal.WithLabelValues(queue).Dec()
}

// ChannelOpened records a channel open
func (c *Collector) ChannelOpened() {
	c.ChannelsOpened.Inc()
}

var _ interfaces.MetricsCollector = (*Collector)(nil)
