package flowdag

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors a pipeline updates while running.
// Created through WithMetrics; a nil Metrics disables instrumentation.
type Metrics struct {
	// Delivered per (node, port) by Output.Send / Output.TrySend, one
	// increment per target queue that accepted the message.
	messagesSent *prometheus.CounterVec

	// Oldest-entry drops per (node, port) on non-blocking input queues.
	messagesDropped *prometheus.CounterVec

	// Current depth per (node, port) input queue.
	queueDepth *prometheus.GaugeVec

	// Nodes currently in the Running state.
	runningNodes prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		messagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowdag",
			Subsystem: "port",
			Name:      "messages_sent_total",
			Help:      "Messages delivered into connected queues",
		}, []string{"node", "port"}),

		messagesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowdag",
			Subsystem: "queue",
			Name:      "messages_dropped_total",
			Help:      "Messages dropped by overwrite-on-full input queues",
		}, []string{"node", "port"}),

		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "flowdag",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Current number of queued messages per input",
		}, []string{"node", "port"}),

		runningNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowdag",
			Subsystem: "node",
			Name:      "running",
			Help:      "Nodes currently executing",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.messagesSent, m.messagesDropped, m.queueDepth, m.runningNodes,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) nodeRunning(delta float64) {
	if m == nil {
		return
	}
	m.runningNodes.Add(delta)
}

func (m *Metrics) instrumentOutput(label string, out *Output) {
	if m == nil {
		return
	}
	out.sent = m.messagesSent.WithLabelValues(label, out.Key().String())
}

func (m *Metrics) instrumentInput(label string, in *Input) {
	if m == nil {
		return
	}
	key := in.Key().String()
	in.queue.instrument(
		m.queueDepth.WithLabelValues(label, key),
		m.messagesDropped.WithLabelValues(label, key),
	)
}

// instrumentNode attaches per-port collectors to a freshly placed node.
// Ports materialized later through port maps are instrumented as they are
// registered.
func (m *Metrics) instrumentNode(n Node) {
	if m == nil {
		return
	}
	b := n.Base()
	label := b.metricsLabel()
	for _, out := range b.Outputs() {
		m.instrumentOutput(label, out)
	}
	for _, in := range b.Inputs() {
		m.instrumentInput(label, in)
	}
}
