package tcpclient

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Disconnect reasons recorded by Metrics.
const (
	reasonRequested   = "requested"
	reasonRemoteClose = "remote_close"
	reasonError       = "error"
)

// Metrics records client activity as Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	connectAttempts  *prometheus.CounterVec
	disconnects      *prometheus.CounterVec
	bytesRead        prometheus.Counter
	bytesWritten     prometheus.Counter
	chunksRead       prometheus.Counter
	writersCompleted prometheus.Counter
	state            *prometheus.GaugeVec
}

// NewMetrics creates unregistered collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		connectAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "connect_attempts_total",
				Help:      "Total number of connection attempts by setup result",
			},
			[]string{"result"},
		),
		disconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "disconnects_total",
				Help:      "Total number of disconnects by reason",
			},
			[]string{"reason"},
		),
		bytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_bytes_total",
			Help:      "Total number of bytes handed to the reader",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "written_bytes_total",
			Help:      "Total number of bytes accepted by the transport",
		}),
		chunksRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "read_chunks_total",
			Help:      "Total number of chunks handed to the reader",
		}),
		writersCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writers_completed_total",
			Help:      "Total number of writers drained to completion",
		}),
		state: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "connection_state",
				Help:      "1 for the current connection state, 0 otherwise",
			},
			[]string{"state"},
		),
	}
}

// Collectors returns every collector, for custom registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.connectAttempts,
		m.disconnects,
		m.bytesRead,
		m.bytesWritten,
		m.chunksRead,
		m.writersCompleted,
		m.state,
	}
}

// Register registers every collector with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) connectAttempt(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.connectAttempts.WithLabelValues(result).Inc()
}

func (m *Metrics) disconnected(reason string) {
	if m == nil {
		return
	}
	m.disconnects.WithLabelValues(reason).Inc()
}

func (m *Metrics) read(n int) {
	if m == nil {
		return
	}
	m.chunksRead.Inc()
	m.bytesRead.Add(float64(n))
}

func (m *Metrics) written(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesWritten.Add(float64(n))
}

func (m *Metrics) writerCompleted() {
	if m == nil {
		return
	}
	m.writersCompleted.Inc()
}

func (m *Metrics) setState(s State) {
	if m == nil {
		return
	}
	for _, st := range []State{StateDisconnected, StateConnecting, StateConnected, StateDisconnecting} {
		v := 0.0
		if st == s {
			v = 1
		}
		m.state.WithLabelValues(st.String()).Set(v)
	}
}
