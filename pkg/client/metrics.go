package client

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Transport and pipeline counters. Exported through the default registry;
// the daemon decides whether to expose them.
var (
	metricVoiceSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mumd",
		Name:      "voice_packets_sent_total",
		Help:      "Voice packets transmitted over UDP.",
	})
	metricVoiceReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mumd",
		Name:      "voice_packets_received_total",
		Help:      "Voice packets received and decrypted.",
	})
	metricVoiceDecryptFail = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mumd",
		Name:      "voice_decrypt_failures_total",
		Help:      "UDP datagrams dropped because authentication failed.",
	})
	metricFramesConcealed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "mumd",
		Name:      "frames_concealed_total",
		Help:      "Loss-concealment frames produced for missing packets.",
	})
	metricActiveStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "mumd",
		Name:      "active_voice_streams",
		Help:      "Remote users currently holding a live receive stream.",
	})
)
