package chat

import "github.com/prometheus/client_golang/prometheus"

var (
	ConnectedPeers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connected_peers",
		Help: "Number of peers currently registered",
	})

	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Broadcasts started, by message kind",
	}, []string{"kind"})

	DeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_deliveries_total",
		Help: "Per-peer enqueue outcomes of broadcasts",
	}, []string{"result"})

	RegistryOpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_registry_op_seconds",
		Help:    "Time the registry owner spends on each operation",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	ConnectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_connections_total",
		Help: "Accepted connections, by transport",
	}, []string{"transport"})
)

func init() {
	prometheus.MustRegister(ConnectedPeers)
	prometheus.MustRegister(MessagesTotal)
	prometheus.MustRegister(DeliveriesTotal)
	prometheus.MustRegister(RegistryOpDuration)
	prometheus.MustRegister(ConnectionsTotal)
}
