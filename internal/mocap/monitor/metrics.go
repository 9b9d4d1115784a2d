package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/banshee-data/facecap/internal/mocap"
	"github.com/banshee-data/facecap/internal/mocap/parse"
)

// Metrics are the Prometheus counters fed by PacketStats.
type Metrics struct {
	Datagrams      prometheus.Counter
	Bytes          prometheus.Counter
	DecodeErrors   *prometheus.CounterVec
	Frames         *prometheus.CounterVec
	WeightValues   prometheus.Counter
	SkippedPairs   prometheus.Counter
	ForwardDropped prometheus.Counter
}

// NewMetrics registers the receiver metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		Datagrams: f.NewCounter(prometheus.CounterOpts{
			Name: "facecap_datagrams_received_total",
			Help: "Total number of UDP datagrams received",
		}),
		Bytes: f.NewCounter(prometheus.CounterOpts{
			Name: "facecap_datagram_bytes_total",
			Help: "Total number of UDP payload bytes received",
		}),
		DecodeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "facecap_decode_errors_total",
			Help: "Datagrams dropped by the decoder, by error kind",
		}, []string{"kind"}),
		Frames: f.NewCounterVec(prometheus.CounterOpts{
			Name: "facecap_frames_applied_total",
			Help: "Decoded frames applied to the store, by message type",
		}, []string{"type"}),
		WeightValues: f.NewCounter(prometheus.CounterOpts{
			Name: "facecap_weight_values_total",
			Help: "Total number of expression weight values applied",
		}),
		SkippedPairs: f.NewCounter(prometheus.CounterOpts{
			Name: "facecap_blendshape_pairs_skipped_total",
			Help: "Malformed name&value pairs skipped inside otherwise valid datagrams",
		}),
		ForwardDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "facecap_forward_dropped_total",
			Help: "Datagrams dropped because the forward queue was full",
		}),
	}

	// Pre-create label values so they show up as zero.
	for _, kind := range []parse.ErrorKind{parse.ErrKindEncoding, parse.ErrKindTooShort, parse.ErrKindBadNumber, parse.ErrKindUnknownType} {
		m.DecodeErrors.WithLabelValues(kind.String())
	}
	for _, kind := range []mocap.FrameKind{mocap.FrameHead, mocap.FrameWeights} {
		m.Frames.WithLabelValues(kind.String())
	}
	return m
}
